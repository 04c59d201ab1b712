package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cf "github.com/cloudflare/cloudflare-go"
	"github.com/evanofslack/dns-whitelist-sync/internal/config"
	"github.com/evanofslack/dns-whitelist-sync/internal/entry"
	"github.com/evanofslack/dns-whitelist-sync/internal/export"
	"github.com/evanofslack/dns-whitelist-sync/internal/export/caddy"
	"github.com/evanofslack/dns-whitelist-sync/internal/export/cloudflare"
	"github.com/evanofslack/dns-whitelist-sync/internal/export/nginx"
	"github.com/evanofslack/dns-whitelist-sync/internal/export/traefik"
	"github.com/evanofslack/dns-whitelist-sync/internal/logger"
	"github.com/evanofslack/dns-whitelist-sync/internal/metrics"
	"github.com/evanofslack/dns-whitelist-sync/internal/reconcile"
	"github.com/evanofslack/dns-whitelist-sync/internal/resolver"
	"github.com/evanofslack/dns-whitelist-sync/internal/server"
	"github.com/libdns/libdns"
	"github.com/thejerf/suture/v4"
)

const (
	configPathEnv     = "DNS_WHITELIST_SYNC_CONFIG"
	defaultConfigPath = "config.yaml"
)

func main() {
	path := os.Getenv(configPathEnv)
	if path == "" {
		path = defaultConfigPath
	}

	store, err := config.NewStore(path)
	if err != nil {
		slog.Error("Failed to load config", "path", path, "error", err)
		os.Exit(1)
	}
	cfg := store.Snapshot()
	logger.Configure(cfg.Log.Level, cfg.Log.Env)

	metrics := metrics.New(cfg.MetricsEnabled())

	entries, err := entry.NewBadger(cfg.StatePath, metrics)
	if err != nil {
		slog.Error("Failed to open entry store", "path", cfg.StatePath, "error", err)
		os.Exit(1)
	}
	defer entries.Close()

	registry, err := buildRegistry(cfg, metrics)
	if err != nil {
		slog.Error("Failed to build export registry", "error", err)
		entries.Close()
		os.Exit(1)
	}

	flusher := resolver.CacheFlusher(resolver.NoopFlusher{})
	if cfg.DNS.FlushCache {
		flusher = resolver.SystemFlusher()
	}
	res := resolver.New(resolver.Options{
		Nameservers: cfg.DNS.Nameservers,
		Timeout:     cfg.DNS.Timeout,
		Flusher:     flusher,
		Metrics:     metrics,
	})

	reconciler := reconcile.NewReconciler(store, res, entries, registry, metrics)
	scheduler := reconcile.NewScheduler(reconciler, reconcile.SchedulerOptions{
		Interval:   cfg.Interval,
		RunOnStart: cfg.ShouldRunOnStart(),
	})

	supervisor := suture.New("dns-whitelist-sync", suture.Spec{
		EventHook: func(e suture.Event) {
			slog.Warn("Supervisor event", "event", e.String())
		},
	})
	supervisor.Add(store)
	supervisor.Add(scheduler)
	if cfg.MetricsEnabled() {
		supervisor.Add(server.New(cfg.Metrics.Address, metrics, entries))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting dns-whitelist-sync service",
		"entries", len(cfg.Entries),
		"whitelists", len(cfg.Whitelists),
		"schemas", registry.Types())

	err = supervisor.Serve(ctx)
	if errors.Is(err, suture.ErrTerminateSupervisorTree) || (err != nil && ctx.Err() == nil) {
		slog.Error("Service terminated", "error", err)
		entries.Close()
		os.Exit(1)
	}
	slog.Info("Service shutdown complete")
}

// buildRegistry registers every schema type the configuration can serve.
// Remote schema types are only registered when their credentials are set.
func buildRegistry(cfg *config.Config, metrics *metrics.Metrics) (*export.Registry, error) {
	registry := export.NewRegistry()
	registry.Register(export.Traefik, export.Pair[traefik.Config](traefik.Adaptor{}, traefik.FileRepository{}), export.MiddlewareAndPath)
	registry.Register(export.TraefikV2, export.Pair[traefik.Config](traefik.Adaptor{V2: true}, traefik.FileRepository{}), export.MiddlewareAndPath)
	registry.Register(export.Nginx, export.Pair[nginx.ACL](nginx.Adaptor{}, nginx.FileRepository{}), export.PathOnly)

	if cfg.Caddy.AdminURL != "" {
		client := caddy.New(cfg.Caddy.AdminURL, cfg.Caddy.Timeout, metrics)
		registry.Register(export.Caddy, export.Pair[caddy.Matcher](caddy.Adaptor{}, client), export.MiddlewareID)
	}

	if cfg.Cloudflare.Token == "" {
		return registry, nil
	}
	api, err := cloudflare.NewAPI(cfg.Cloudflare.Token, cfg.Cloudflare.Timeout)
	if err != nil {
		return nil, err
	}
	records := cloudflare.NewRecordRepository(api, metrics)
	registry.Register(export.DNSRecords, export.Pair[[]libdns.Record](cloudflare.RecordAdaptor{}, records), export.RecordInZone)

	if cfg.Cloudflare.AccountID != "" {
		lists, err := cloudflare.NewListRepository(api, cfg.Cloudflare.AccountID, metrics)
		if err != nil {
			return nil, fmt.Errorf("create cloudflare list repository: %w", err)
		}
		registry.Register(export.CloudflareList, export.Pair[[]cf.ListItemCreateRequest](cloudflare.ListAdaptor{}, lists), export.ListDestination)
	}
	return registry, nil
}
