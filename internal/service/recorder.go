package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// ChannelComparisons is the bus channel carrying finished compare runs.
const ChannelComparisons = "comparisons"

// EventComparisonRun is the Type of events published on ChannelComparisons.
const EventComparisonRun = "comparison_run"

// recordTimeout bounds the time spent writing one run to every sink.
const recordTimeout = 10 * time.Second

// RunArchiver stores a run document and returns its object key.
type RunArchiver interface {
	Archive(ctx context.Context, run domain.ComparisonRun) (string, error)
}

// RunAlerter is told about every recorded run and decides itself whether to
// alert.
type RunAlerter interface {
	NotifyRun(ctx context.Context, run domain.ComparisonRun) error
}

// RunEvent is the payload published on ChannelComparisons.
type RunEvent struct {
	Type        string           `json:"type"`
	RunID       string           `json:"run_id"`
	Query       string           `json:"query"`
	CreatedAt   string           `json:"created_at"`
	DurationMs  int64            `json:"duration_ms"`
	MarketCount int              `json:"market_count"`
	ErrorCount  int              `json:"error_count"`
	Comparisons []ComparisonView `json:"comparisons"`
}

// Recorder fans a finished run out to the optional bus, store and archive.
// Sink failures are logged and never reach the caller.
type Recorder struct {
	bus      domain.SignalBus
	store    domain.ComparisonRunStore
	archiver RunArchiver
	alerter  RunAlerter
	logger   *slog.Logger
	newID    func() string

	pending sync.WaitGroup
}

// NewRecorder creates a Recorder. Any sink may be nil.
func NewRecorder(bus domain.SignalBus, store domain.ComparisonRunStore, archiver RunArchiver, logger *slog.Logger) *Recorder {
	return &Recorder{
		bus:      bus,
		store:    store,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "run_recorder")),
		newID:    uuid.NewString,
	}
}

// WithAlerter adds an alert sink and returns r.
func (r *Recorder) WithAlerter(a RunAlerter) *Recorder {
	r.alerter = a
	return r
}

// RecordAsync runs Record in the background so callers never wait on the
// sinks. Wait blocks until every such write has finished.
func (r *Recorder) RecordAsync(ctx context.Context, run domain.ComparisonRun) {
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		r.Record(ctx, run)
	}()
}

// Wait blocks until all writes started by RecordAsync have returned.
func (r *Recorder) Wait() {
	r.pending.Wait()
}

// Record assigns run an ID and writes it to every configured sink. It is
// detached from ctx cancellation so an aborted request still leaves a record.
func (r *Recorder) Record(ctx context.Context, run domain.ComparisonRun) string {
	if run.ID == "" {
		run.ID = r.newID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.CreatedAt = run.CreatedAt.UTC()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	log := r.logger.With(slog.String("run_id", run.ID))

	if r.bus != nil {
		if err := r.publish(ctx, run); err != nil {
			log.WarnContext(ctx, "publish run failed", slog.String("error", err.Error()))
		}
	}
	if r.store != nil {
		if err := r.store.Insert(ctx, run); err != nil {
			log.WarnContext(ctx, "store run failed", slog.String("error", err.Error()))
		}
	}
	if r.archiver != nil {
		key, err := r.archiver.Archive(ctx, run)
		if err != nil {
			log.WarnContext(ctx, "archive run failed", slog.String("error", err.Error()))
		} else {
			log.DebugContext(ctx, "run archived", slog.String("key", key))
		}
	}

	if r.alerter != nil {
		if err := r.alerter.NotifyRun(ctx, run); err != nil {
			log.WarnContext(ctx, "spread alert failed", slog.String("error", err.Error()))
		}
	}

	log.InfoContext(ctx, "run recorded",
		slog.String("query", run.Query),
		slog.Int("comparisons", len(run.Comparisons)),
		slog.Int("errors", len(run.Errors)),
	)
	return run.ID
}

func (r *Recorder) publish(ctx context.Context, run domain.ComparisonRun) error {
	payload, err := json.Marshal(NewRunEvent(run))
	if err != nil {
		return err
	}
	return r.bus.Publish(ctx, ChannelComparisons, payload)
}

// NewRunEvent builds the bus event for run.
func NewRunEvent(run domain.ComparisonRun) RunEvent {
	return RunEvent{
		Type:        EventComparisonRun,
		RunID:       run.ID,
		Query:       run.Query,
		CreatedAt:   run.CreatedAt.UTC().Format(time.RFC3339),
		DurationMs:  run.Duration.Milliseconds(),
		MarketCount: run.MarketCount,
		ErrorCount:  len(run.Errors),
		Comparisons: newComparisonViews(run.Comparisons),
	}
}
