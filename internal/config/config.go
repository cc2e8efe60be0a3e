// Package config holds the chatrelay configuration: a JSON5 file overlaid
// with CHATRELAY_* environment variables. Secrets (the Postgres DSN) come
// from the environment only and are never written to the config file.
package config

import (
	"fmt"
	"time"

	"github.com/nextlevelbuilder/chatrelay/internal/rules"
)

// Config is the root configuration for the relay.
type Config struct {
	Bridge    BridgeConfig    `json:"bridge"`
	Rules     RulesConfig     `json:"rules"`
	Matching  MatchingConfig  `json:"matching,omitempty"`
	Relay     RelayConfig     `json:"relay,omitempty"`
	Storage   StorageConfig   `json:"storage,omitempty"`
	Health    HealthConfig    `json:"health,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// BridgeConfig configures the WebSocket connection to the messaging bridge.
type BridgeConfig struct {
	URL               string `json:"url"`                            // e.g. "ws://localhost:3000/ws"
	SendRatePerMinute int    `json:"send_rate_per_minute,omitempty"` // outbound send cap (default 30)
	ResolveTimeout    string `json:"resolve_timeout,omitempty"`      // live name lookup bound (default "20s")
}

// ResolveTimeoutDuration parses the resolve timeout, zero if unset/invalid.
func (b BridgeConfig) ResolveTimeoutDuration() time.Duration {
	if b.ResolveTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(b.ResolveTimeout)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// RulesConfig configures the rule file and its reload triggers.
type RulesConfig struct {
	Path       string `json:"path"`                  // CSV rule file
	Watch      bool   `json:"watch,omitempty"`       // reload on file change
	ReloadCron string `json:"reload_cron,omitempty"` // additional cron-scheduled reload
}

// MatchingConfig selects the rule-matching policy variant. Historical
// iterations of the rule sheet disagree on these semantics, so each is an
// explicit choice.
type MatchingConfig struct {
	EmptyRestriction string `json:"empty_restriction,omitempty"` // "skip" (default) or "cancel"
	OriginMatch      string `json:"origin_match,omitempty"`      // "exact" (default) or "contains"
	Restriction1     string `json:"restriction_1,omitempty"`     // "full_phrase" (default) or "any_word"
}

// ToPolicy converts the config strings into a validated rules.Policy.
func (m MatchingConfig) ToPolicy() (rules.Policy, error) {
	p := rules.DefaultPolicy()
	if m.EmptyRestriction != "" {
		p.EmptyRestriction = rules.EmptyRestrictionPolicy(m.EmptyRestriction)
	}
	if m.OriginMatch != "" {
		p.OriginMatch = rules.OriginMatchPolicy(m.OriginMatch)
	}
	if m.Restriction1 != "" {
		p.RestrictionOne = rules.RestrictionOnePolicy(m.Restriction1)
	}
	if err := p.Validate(); err != nil {
		return rules.Policy{}, fmt.Errorf("matching config: %w", err)
	}
	return p, nil
}

// RelayConfig tunes the forwarded message format.
type RelayConfig struct {
	// Header is prepended to every forward; {origin} expands to the source
	// chat's display name. Empty uses the built-in default.
	Header string `json:"header,omitempty"`
}

// StorageConfig selects and configures the persistence backend for the
// directory cache and dedup ledger.
type StorageConfig struct {
	Backend     string `json:"backend,omitempty"`     // "file" (default), "sqlite", "postgres"
	Dir         string `json:"dir,omitempty"`         // file backend directory (default "~/.chatrelay/state")
	SQLitePath  string `json:"sqlite_path,omitempty"` // sqlite backend database file
	PostgresDSN string `json:"-"`                     // from env CHATRELAY_POSTGRES_DSN only
}

// HealthConfig configures the keep-alive HTTP endpoint.
type HealthConfig struct {
	Addr string `json:"addr,omitempty"` // e.g. ":8080"; empty disables
}

// TelemetryConfig configures OpenTelemetry span export for forward
// decisions. When disabled, spans are no-ops.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // skip TLS (local collectors)
	ServiceName string            `json:"service_name,omitempty"` // default "chatrelay"
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (auth tokens)
}
