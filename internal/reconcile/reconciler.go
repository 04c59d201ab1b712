package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/evanofslack/dns-whitelist-sync/internal/config"
	"github.com/evanofslack/dns-whitelist-sync/internal/entry"
	"github.com/evanofslack/dns-whitelist-sync/internal/export"
	"github.com/evanofslack/dns-whitelist-sync/internal/metrics"
	"github.com/evanofslack/dns-whitelist-sync/internal/resolver"
	"github.com/rs/xid"
	"github.com/sourcegraph/conc/panics"
)

// Settings hands out the configuration snapshot for one tick.
type Settings interface {
	Snapshot() *config.Config
}

type Reconciler struct {
	settings Settings
	resolver resolver.Resolver
	entries  entry.Repository
	registry *export.Registry
	metrics  *metrics.Metrics
	now      func() time.Time

	running atomic.Bool
}

func NewReconciler(settings Settings, res resolver.Resolver, entries entry.Repository, registry *export.Registry, metrics *metrics.Metrics) *Reconciler {
	return &Reconciler{
		settings: settings,
		resolver: res,
		entries:  entries,
		registry: registry,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Run performs one reconciliation tick. It returns false without doing
// anything when another tick is still in flight.
func (r *Reconciler) Run(ctx context.Context) (Results, bool) {
	if !r.running.CompareAndSwap(false, true) {
		slog.Warn("Previous tick still running, skipping")
		r.metrics.IncTick("skipped")
		return Results{}, false
	}
	defer r.running.Store(false)

	log := slog.Default().With("tick", xid.New().String())
	log.Info("Starting tick")
	start := time.Now()

	var results Results
	var pc panics.Catcher
	pc.Try(func() {
		results = r.tick(ctx, log)
	})
	if rec := pc.Recovered(); rec != nil {
		log.Error("Tick panicked", "panic", rec.Value, "stack", string(rec.Stack))
		results.Panic = fmt.Errorf("tick panicked: %v", rec.Value)
	}

	duration := time.Since(start)
	r.metrics.SetTickDuration(duration)
	if results.Failed() {
		r.metrics.IncTick("failure")
		log.Warn("Tick completed with failures",
			"updated", len(results.Updated),
			"exported", len(results.Exported),
			"rendered", len(results.Rendered),
			"skipped", len(results.Skipped),
			"duration", duration,
			"error", results.Err())
	} else {
		r.metrics.IncTick("success")
		log.Info("Tick completed",
			"updated", len(results.Updated),
			"exported", len(results.Exported),
			"rendered", len(results.Rendered),
			"skipped", len(results.Skipped),
			"duration", duration)
	}
	return results, true
}

func (r *Reconciler) tick(ctx context.Context, log *slog.Logger) Results {
	cfg := r.settings.Snapshot()
	results := Results{}
	r.metrics.SetEntriesTracked(len(cfg.Entries))

	r.updateEntries(ctx, log, cfg.Entries, &results)
	r.exportWhitelists(ctx, log, cfg.Whitelists, cfg.DryRun, &results)
	return results
}

func (r *Reconciler) updateEntries(ctx context.Context, log *slog.Logger, entries []config.Entry, results *Results) {
	for _, ce := range entries {
		e, err := r.updateEntry(ctx, ce)
		if err != nil {
			log.Error("Failed to update entry", "name", ce.Name, "fqdn", ce.FQDN, "error", err)
			results.ResolveFailures = append(results.ResolveFailures, Failure{Name: ce.Name, Err: err})
			continue
		}
		if e.Changed() {
			log.Info("Entry address changed", "name", e.Name, "fqdn", e.FQDN, "previous", e.CurrentIP, "latest", e.LatestIP)
		} else {
			log.Debug("Entry address unchanged", "name", e.Name, "fqdn", e.FQDN, "latest", e.LatestIP)
		}
		results.Updated = append(results.Updated, e)
	}
}

func (r *Reconciler) updateEntry(ctx context.Context, ce config.Entry) (entry.Entry, error) {
	addrs, err := r.resolver.Resolve(ctx, ce.FQDN)
	r.metrics.IncResolution(err == nil)
	if err != nil {
		var rerr *resolver.ResolutionError
		if !errors.As(err, &rerr) {
			err = &resolver.ResolutionError{FQDN: ce.FQDN, Err: err}
		}
		return entry.Entry{}, err
	}
	if len(addrs) == 0 {
		return entry.Entry{}, &resolver.ResolutionError{FQDN: ce.FQDN, Err: resolver.ErrNoAddresses}
	}

	e, err := r.entries.GetByName(ctx, ce.Name)
	if err != nil && !errors.Is(err, entry.ErrNotFound) {
		return entry.Entry{}, fmt.Errorf("load entry: %w", err)
	}
	e.Name = ce.Name
	e.FQDN = ce.FQDN
	e.Shift(addrs[0], r.now())

	if err := r.entries.AddOrUpdate(ctx, e); err != nil {
		return entry.Entry{}, fmt.Errorf("store entry: %w", err)
	}
	return e, nil
}

func (r *Reconciler) exportWhitelists(ctx context.Context, log *slog.Logger, whitelists []config.Whitelist, dryRun bool, results *Results) {
	for i, w := range whitelists {
		schema := export.SchemaType(w.Type)
		if len(w.Entries) == 0 {
			log.Debug("Skipping whitelist without entries", "index", i, "type", w.Type)
			results.Skipped = append(results.Skipped, schema)
			continue
		}

		err := r.exportWhitelist(ctx, log, schema, w, dryRun)
		switch {
		case errors.Is(err, export.ErrNoAddresses):
			log.Warn("Skipping whitelist, none of its entries has an address yet", "index", i, "type", w.Type, "entries", w.Entries)
			results.Skipped = append(results.Skipped, schema)
		case err != nil:
			eerr := &export.ExportError{Schema: schema, Err: err}
			r.metrics.IncExport(string(schema), false)
			log.Error("Failed to export whitelist", "index", i, "type", w.Type, "error", eerr)
			results.ExportFailures = append(results.ExportFailures, Failure{Name: w.Type, Err: eerr})
		case dryRun:
			results.Rendered = append(results.Rendered, schema)
		default:
			r.metrics.IncExport(string(schema), true)
			log.Debug("Exported whitelist", "index", i, "type", w.Type, "entries", len(w.Entries))
			results.Exported = append(results.Exported, schema)
		}
	}
}

func (r *Reconciler) exportWhitelist(ctx context.Context, log *slog.Logger, schema export.SchemaType, w config.Whitelist, dryRun bool) error {
	entries, err := r.entries.FindByNames(ctx, w.Entries)
	if err != nil {
		return err
	}
	exporter, params, err := r.registry.Lookup(schema)
	if err != nil {
		return err
	}
	p := params(w)
	if !dryRun {
		return exporter.Export(ctx, entries, p)
	}
	rendered, err := exporter.Render(entries, p)
	if err != nil {
		return err
	}
	log.Info("Dry run, not saving whitelist", "type", w.Type, "destination", p.Destination, "schema", rendered)
	return nil
}
