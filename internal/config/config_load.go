package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			URL:               "ws://localhost:3000/ws",
			SendRatePerMinute: 30,
			ResolveTimeout:    "20s",
		},
		Rules: RulesConfig{
			Path:  "rules.csv",
			Watch: true,
		},
		Matching: MatchingConfig{
			EmptyRestriction: "skip",
			OriginMatch:      "exact",
			Restriction1:     "full_phrase",
		},
		Storage: StorageConfig{
			Backend: "file",
			Dir:     "~/.chatrelay/state",
		},
		Health: HealthConfig{
			Addr: ":8080",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error; the defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("CHATRELAY_BRIDGE_URL", &c.Bridge.URL)
	envStr("CHATRELAY_RULES_PATH", &c.Rules.Path)
	envStr("CHATRELAY_RULES_RELOAD_CRON", &c.Rules.ReloadCron)
	envStr("CHATRELAY_STORAGE_BACKEND", &c.Storage.Backend)
	envStr("CHATRELAY_STORAGE_DIR", &c.Storage.Dir)
	envStr("CHATRELAY_SQLITE_PATH", &c.Storage.SQLitePath)
	envStr("CHATRELAY_POSTGRES_DSN", &c.Storage.PostgresDSN)
	envStr("CHATRELAY_HEALTH_ADDR", &c.Health.Addr)

	if v := os.Getenv("CHATRELAY_SEND_RATE_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Bridge.SendRatePerMinute = n
		}
	}

	// Matching policy overrides
	envStr("CHATRELAY_MATCH_EMPTY_RESTRICTION", &c.Matching.EmptyRestriction)
	envStr("CHATRELAY_MATCH_ORIGIN", &c.Matching.OriginMatch)
	envStr("CHATRELAY_MATCH_RESTRICTION_1", &c.Matching.Restriction1)

	// Telemetry
	envStr("CHATRELAY_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("CHATRELAY_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("CHATRELAY_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("CHATRELAY_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CHATRELAY_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
