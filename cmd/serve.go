package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/chatrelay/internal/bridge"
	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/directory"
	"github.com/nextlevelbuilder/chatrelay/internal/health"
	"github.com/nextlevelbuilder/chatrelay/internal/ledger"
	"github.com/nextlevelbuilder/chatrelay/internal/relay"
	"github.com/nextlevelbuilder/chatrelay/internal/rules"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
	filestore "github.com/nextlevelbuilder/chatrelay/internal/store/file"
	pgstore "github.com/nextlevelbuilder/chatrelay/internal/store/pg"
	sqlitestore "github.com/nextlevelbuilder/chatrelay/internal/store/sqlite"
	"github.com/nextlevelbuilder/chatrelay/internal/telemetry"
)

func runRelay() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	policy, err := cfg.Matching.ToPolicy()
	if err != nil {
		slog.Error("invalid matching config", "error", err)
		os.Exit(1)
	}

	// Rules are required at startup: with no prior valid set there is
	// nothing to fall back on, so a load failure here is fatal.
	ruleStore := rules.NewStore(config.ExpandHome(cfg.Rules.Path))
	if err := ruleStore.Load(); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}

	stores, err := openStores(cfg.Storage)
	if err != nil {
		slog.Error("failed to open storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	dir, err := directory.New(stores.Directory)
	if err != nil {
		slog.Error("failed to load directory cache", "error", err)
		os.Exit(1)
	}
	led, err := ledger.New(stores.Ledger)
	if err != nil {
		slog.Error("failed to load dedup ledger", "error", err)
		os.Exit(1)
	}
	slog.Info("state loaded", "directory_entries", dir.Len(), "ledger_records", led.Len())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	var rel *relay.Relay
	client, err := bridge.NewClient(cfg.Bridge.URL,
		func(ctx context.Context, ev bridge.Event) { rel.OnEvent(ctx, ev) },
		bridge.Options{
			SendRatePerMinute: cfg.Bridge.SendRatePerMinute,
			ResolveTimeout:    cfg.Bridge.ResolveTimeoutDuration(),
		})
	if err != nil {
		slog.Error("failed to create bridge client", "error", err)
		os.Exit(1)
	}
	rel = relay.New(ruleStore, rules.NewMatcher(policy), dir, led, client, cfg.Relay.Header)

	if err := client.Start(ctx); err != nil {
		slog.Error("failed to start bridge client", "error", err)
		os.Exit(1)
	}
	defer client.Stop()

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Rules.Watch {
		g.Go(func() error { return ruleStore.Watch(ctx) })
	}
	if cfg.Rules.ReloadCron != "" {
		g.Go(func() error { return ruleStore.RunSchedule(ctx, cfg.Rules.ReloadCron) })
	}
	if cfg.Health.Addr != "" {
		g.Go(func() error {
			return health.Serve(ctx, cfg.Health.Addr, func() health.Status {
				return health.Status{
					Rules:     ruleStore.Active().Len(),
					Directory: dir.Len(),
					Ledger:    led.Len(),
				}
			})
		})
	}

	slog.Info("chatrelay started",
		"rules", ruleStore.Active().Len(),
		"bridge", cfg.Bridge.URL,
		"storage", backendName(cfg.Storage))

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("relay stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("chatrelay shut down")
}

func backendName(cfg config.StorageConfig) string {
	if cfg.Backend == "" {
		return "file"
	}
	return cfg.Backend
}

// openStores selects the persistence backend from config.
func openStores(cfg config.StorageConfig) (*store.Stores, error) {
	switch cfg.Backend {
	case "", "file":
		return filestore.NewStores(config.ExpandHome(cfg.Dir))
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "~/.chatrelay/state/chatrelay.db"
		}
		return sqlitestore.NewStores(config.ExpandHome(path))
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("storage backend postgres requires CHATRELAY_POSTGRES_DSN")
		}
		return pgstore.NewStores(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
