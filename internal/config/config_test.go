package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/chatrelay/internal/rules"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bridge.URL != "ws://localhost:3000/ws" {
		t.Errorf("bridge url = %q", cfg.Bridge.URL)
	}
	if cfg.Rules.Path != "rules.csv" || !cfg.Rules.Watch {
		t.Errorf("rules config = %+v", cfg.Rules)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("storage backend = %q", cfg.Storage.Backend)
	}
	if cfg.Health.Addr != ":8080" {
		t.Errorf("health addr = %q", cfg.Health.Addr)
	}
}

func TestLoadJSON5File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	contents := `{
		// comments are allowed
		bridge: { url: "ws://bridge:9000/ws", send_rate_per_minute: 10 },
		rules: { path: "/etc/chatrelay/rules.csv", watch: false },
		relay: { header: "[{origin}]" },
	}`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bridge.URL != "ws://bridge:9000/ws" {
		t.Errorf("bridge url = %q", cfg.Bridge.URL)
	}
	if cfg.Bridge.SendRatePerMinute != 10 {
		t.Errorf("send rate = %d", cfg.Bridge.SendRatePerMinute)
	}
	if cfg.Rules.Path != "/etc/chatrelay/rules.csv" || cfg.Rules.Watch {
		t.Errorf("rules config = %+v", cfg.Rules)
	}
	if cfg.Relay.Header != "[{origin}]" {
		t.Errorf("relay header = %q", cfg.Relay.Header)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{bridge: {url: "ws://file:1/ws"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CHATRELAY_BRIDGE_URL", "ws://env:2/ws")
	t.Setenv("CHATRELAY_POSTGRES_DSN", "postgres://u:p@db/chatrelay")
	t.Setenv("CHATRELAY_SEND_RATE_PER_MINUTE", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bridge.URL != "ws://env:2/ws" {
		t.Errorf("env did not win: %q", cfg.Bridge.URL)
	}
	if cfg.Storage.PostgresDSN != "postgres://u:p@db/chatrelay" {
		t.Errorf("dsn = %q", cfg.Storage.PostgresDSN)
	}
	if cfg.Bridge.SendRatePerMinute != 5 {
		t.Errorf("send rate = %d", cfg.Bridge.SendRatePerMinute)
	}
}

func TestToPolicy(t *testing.T) {
	m := MatchingConfig{}
	p, err := m.ToPolicy()
	if err != nil {
		t.Fatal(err)
	}
	if p != rules.DefaultPolicy() {
		t.Errorf("empty matching config = %+v, want defaults", p)
	}

	m = MatchingConfig{EmptyRestriction: "cancel", OriginMatch: "contains", Restriction1: "any_word"}
	p, err = m.ToPolicy()
	if err != nil {
		t.Fatal(err)
	}
	if p.EmptyRestriction != rules.EmptyRestrictionCancel ||
		p.OriginMatch != rules.OriginMatchContains ||
		p.RestrictionOne != rules.RestrictionOneAnyWord {
		t.Errorf("policy = %+v", p)
	}

	if _, err := (MatchingConfig{OriginMatch: "fuzzy"}).ToPolicy(); err == nil {
		t.Error("expected error for unknown origin_match value")
	}
}

func TestResolveTimeoutDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"20s", 20 * time.Second},
		{"2m", 2 * time.Minute},
		{"nonsense", 0},
		{"-5s", 0},
	}
	for _, tt := range tests {
		if got := (BridgeConfig{ResolveTimeout: tt.in}).ResolveTimeoutDuration(); got != tt.want {
			t.Errorf("ResolveTimeoutDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandHome("~/x"); got != home+"/x" {
		t.Errorf("ExpandHome(~/x) = %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandHome(/abs/path) = %q", got)
	}
	if got := ExpandHome("~"); got != home {
		t.Errorf("ExpandHome(~) = %q", got)
	}
}
