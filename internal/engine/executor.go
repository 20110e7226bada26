package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"habsync/internal/openhab"
	"habsync/internal/store"
)

const (
	otelScope     = "habsync/engine"
	spanRun       = "sync.run"
	metricSynced  = "habsync.sync.items.synced"
	metricSkipped = "habsync.sync.items.skipped"
	metricErrors  = "habsync.sync.items.errors"
	metricRuns    = "habsync.sync.runs"

	// defaultConcurrency bounds the per-item fetch fan-out. Small on
	// purpose: OpenHAB installations are usually one box on a LAN.
	defaultConcurrency = 4
)

// Result is what a completed run reports back to its trigger.
type Result struct {
	Synced int
	Total  int
	Errors []string
}

// Executor runs one sync pass per invocation: fetch every enabled mapping's
// current item state, ingest numeric readings, and record the run outcome.
// There is no in-process scheduler; manual operator actions and the external
// cron trigger both land on [Executor.Run].
type Executor struct {
	store       Store
	clients     ClientFactory
	concurrency int
	locks       *runLocks
	log         *slog.Logger

	// OTel instruments, always non-nil (no-op when telemetry is disabled).
	tracer     trace.Tracer
	cntSynced  metric.Int64Counter
	cntSkipped metric.Int64Counter
	cntErrors  metric.Int64Counter
	cntRuns    metric.Int64Counter
}

// NewExecutor creates an Executor. A nil clients factory defaults to real
// [openhab.Client] instances; concurrency < 1 defaults to 4.
func NewExecutor(st Store, clients ClientFactory, concurrency int, logger *slog.Logger) *Executor {
	if clients == nil {
		clients = func(endpointURL, token string) ItemSource {
			return openhab.NewClient(endpointURL, token)
		}
	}
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}

	meter := otel.Meter(otelScope)
	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Executor{
		store:       st,
		clients:     clients,
		concurrency: concurrency,
		locks:       newRunLocks(),
		log:         logger,

		tracer:     otel.Tracer(otelScope),
		cntSynced:  mustCounter(metricSynced, "Items whose reading was ingested during sync"),
		cntSkipped: mustCounter(metricSkipped, "Items skipped for sentinel or non-numeric states"),
		cntErrors:  mustCounter(metricErrors, "Per-item errors recorded during sync"),
		cntRuns:    mustCounter(metricRuns, "Sync runs started"),
	}
}

// Run performs one sync pass for the given configuration.
//
// Precondition failures (unknown or disabled config, nothing to sync, a run
// already in flight) return a [*PreconditionError] with no audit entry; the
// run never started. Run-level failures (the config or mapping list could
// not be read) abort the run, write an audit entry classified error, and
// propagate. Per-item failures never abort the run: they are accumulated
// into Result.Errors and the audit entry's error summary.
func (e *Executor) Run(ctx context.Context, configID string, trigger store.TriggerKind) (Result, error) {
	ctx, span := e.tracer.Start(ctx, spanRun, trace.WithAttributes(
		attribute.String("sync.config_id", configID),
		attribute.String("sync.trigger", string(trigger)),
	))
	defer span.End()

	if !e.locks.acquire(configID) {
		return Result{}, &PreconditionError{Reason: "a sync run is already in progress for this configuration"}
	}
	defer e.locks.release(configID)

	cfg, err := e.store.GetConfig(ctx, configID)
	if err != nil {
		err = fmt.Errorf("reading sync config: %w", err)
		span.RecordError(err)
		e.logRunFailure(ctx, configID, trigger, err)
		return Result{}, err
	}
	if cfg == nil || !cfg.Enabled {
		return Result{}, &PreconditionError{Reason: "synchronization is not enabled for this configuration"}
	}

	mappings, err := e.store.ListMappings(ctx, configID, true)
	if err != nil {
		err = fmt.Errorf("reading item mappings: %w", err)
		span.RecordError(err)
		e.logRunFailure(ctx, configID, trigger, err)
		return Result{}, err
	}
	if len(mappings) == 0 {
		return Result{}, &PreconditionError{Reason: "no items are configured for synchronization"}
	}

	e.cntRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", string(trigger))))
	e.log.Info("sync run started",
		"config_id", configID,
		"trigger", trigger,
		"mappings", len(mappings),
	)

	client := e.clients(cfg.EndpointURL, cfg.AuthToken)

	// Bounded fan-out over the mappings. Each item's failure stays its own:
	// workers always return nil so one bad item cannot cancel its siblings,
	// and Wait is the barrier before the config and audit writes below.
	var (
		mu      sync.Mutex
		synced  int
		skipped int
		errs    []string
	)
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, m := range mappings {
		g.Go(func() error {
			st := e.syncItem(ctx, client, m)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case st.err != "":
				errs = append(errs, st.err)
			case st.synced:
				synced++
			default:
				skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	now := time.Now().UTC()
	if err := e.store.TouchConfigLastSynced(ctx, configID, now); err != nil {
		// The run itself completed; surface the inconsistency and move on.
		e.log.Error("updating config last-sync time", "config_id", configID, "error", err)
	}

	outcome := store.OutcomeSuccess
	if len(errs) > 0 {
		outcome = store.OutcomePartial
	}
	e.writeLog(ctx, &store.SyncLogEntry{
		ConfigID:     configID,
		Trigger:      trigger,
		Outcome:      outcome,
		ItemsSynced:  synced,
		ErrorSummary: strings.Join(errs, "; "),
		CreatedAt:    now,
	})

	e.cntSynced.Add(ctx, int64(synced))
	e.cntSkipped.Add(ctx, int64(skipped))
	e.cntErrors.Add(ctx, int64(len(errs)))
	span.SetAttributes(
		attribute.Int("sync.synced", synced),
		attribute.Int("sync.skipped", skipped),
		attribute.Int("sync.errors", len(errs)),
		attribute.String("sync.outcome", string(outcome)),
	)

	e.log.Info("sync run complete",
		"config_id", configID,
		"outcome", outcome,
		"synced", synced,
		"skipped", skipped,
		"errors", len(errs),
	)

	return Result{Synced: synced, Total: len(mappings), Errors: errs}, nil
}

// itemStatus is the per-item outcome: synced, silently skipped, or errored.
type itemStatus struct {
	synced bool
	err    string // non-empty iff the failure counts against the run
}

// syncItem processes a single mapping: fetch, parse, ingest.
//
// A fetch or insert failure is recorded against the run; a sentinel
// ("NULL"/"UNDEF"/empty) or non-numeric state is a silent skip: "the device
// has nothing to report" is expected noise, not an operational problem. On
// any failure the mapping's own stored state is left untouched.
func (e *Executor) syncItem(ctx context.Context, client ItemSource, m *store.ItemMapping) itemStatus {
	item, err := client.GetItem(ctx, m.ExternalItemName)
	if err != nil {
		return itemStatus{err: fmt.Sprintf("%s: %v", m.ExternalItemName, err)}
	}

	if IsSentinel(item.State) {
		e.log.Debug("item has no current value", "item", m.ExternalItemName, "state", item.State)
		return itemStatus{}
	}
	value, ok := ParseState(item.State)
	if !ok {
		e.log.Debug("item state is not numeric", "item", m.ExternalItemName, "state", item.State)
		return itemStatus{}
	}

	now := time.Now().UTC()
	if m.SensorID != "" {
		reading := &store.SensorReading{SensorID: m.SensorID, Value: value, RecordedAt: now}
		if err := e.store.InsertReading(ctx, reading); err != nil {
			return itemStatus{err: fmt.Sprintf("%s: %v", m.ExternalItemName, err)}
		}
		// The reading row is durable; a stale denormalised copy is
		// tolerable but must not pass silently.
		if err := e.store.SetSensorLastReading(ctx, m.SensorID, value, now); err != nil {
			e.log.Error("updating sensor last reading",
				"sensor_id", m.SensorID,
				"item", m.ExternalItemName,
				"error", err,
			)
		}
	}

	if err := e.store.SetMappingSyncState(ctx, m.ID, item.State, now); err != nil {
		return itemStatus{err: fmt.Sprintf("%s: %v", m.ExternalItemName, err)}
	}
	return itemStatus{synced: true}
}

// writeLog appends the audit entry for a run. A log-write failure is logged
// and swallowed: it must never unwind an otherwise completed sync.
func (e *Executor) writeLog(ctx context.Context, entry *store.SyncLogEntry) {
	if err := e.store.InsertLogEntry(ctx, entry); err != nil {
		e.log.Error("writing sync log entry", "config_id", entry.ConfigID, "error", err)
	}
}

// logRunFailure records a run-level failure (outside the per-item loop).
func (e *Executor) logRunFailure(ctx context.Context, configID string, trigger store.TriggerKind, cause error) {
	e.writeLog(ctx, &store.SyncLogEntry{
		ConfigID:     configID,
		Trigger:      trigger,
		Outcome:      store.OutcomeError,
		ErrorSummary: cause.Error(),
		CreatedAt:    time.Now().UTC(),
	})
}
