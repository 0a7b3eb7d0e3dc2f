package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

type fakeStore struct {
	mu       sync.Mutex
	runs     []domain.ComparisonRun
	gotLimit int
	err      error
}

func (f *fakeStore) Insert(_ context.Context, run domain.ComparisonRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeStore) ListRecent(_ context.Context, limit int) ([]domain.ComparisonRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotLimit = limit
	return f.runs, f.err
}

type fakeBus struct {
	mu       sync.Mutex
	channel  string
	payloads [][]byte
	err      error
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.channel = channel
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

type fakeArchiver struct {
	runs []domain.ComparisonRun
	err  error
}

func (f *fakeArchiver) Archive(_ context.Context, run domain.ComparisonRun) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.runs = append(f.runs, run)
	return "runs/" + run.ID + ".json", nil
}

func sampleRun() domain.ComparisonRun {
	return domain.ComparisonRun{
		Query: "eurovision 2026",
		Comparisons: []domain.Comparison{{
			Title:     "Eurovision 2026 winner Sweden?",
			Platforms: map[domain.Platform]domain.Quote{domain.PlatformManifold: {Probability: 0.2}, domain.PlatformPolymarket: {Probability: 0.3}},
			Spread:    0.1,
		}},
		Errors:      []domain.PlatformError{{Platform: domain.PlatformKalshi, Err: domain.ErrRateLimited}},
		MarketCount: 4,
		Duration:    1200 * time.Millisecond,
		CreatedAt:   time.Date(2026, 5, 16, 20, 0, 0, 0, time.UTC),
	}
}

func TestRecorderWritesEverySink(t *testing.T) {
	bus, store, arch := &fakeBus{}, &fakeStore{}, &fakeArchiver{}
	rec := NewRecorder(bus, store, arch, testLogger())
	rec.newID = func() string { return "run-1" }

	// A cancelled request context must not stop the recording.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id := rec.Record(ctx, sampleRun())
	if id != "run-1" {
		t.Errorf("id = %q", id)
	}
	if len(store.runs) != 1 || store.runs[0].ID != "run-1" {
		t.Errorf("store runs = %+v", store.runs)
	}
	if len(arch.runs) != 1 || arch.runs[0].ID != "run-1" {
		t.Errorf("archived runs = %+v", arch.runs)
	}
	if bus.channel != ChannelComparisons || len(bus.payloads) != 1 {
		t.Fatalf("bus channel = %q, payloads = %d", bus.channel, len(bus.payloads))
	}

	var ev RunEvent
	if err := json.Unmarshal(bus.payloads[0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventComparisonRun || ev.RunID != "run-1" || ev.ErrorCount != 1 || ev.MarketCount != 4 || ev.DurationMs != 1200 {
		t.Errorf("event = %+v", ev)
	}
	if ev.CreatedAt != "2026-05-16T20:00:00Z" {
		t.Errorf("created_at = %q", ev.CreatedAt)
	}
	if len(ev.Comparisons) != 1 || ev.Comparisons[0].Spread != 0.1 {
		t.Errorf("comparisons = %+v", ev.Comparisons)
	}
}

func TestRecorderSurvivesSinkFailures(t *testing.T) {
	arch := &fakeArchiver{}
	rec := NewRecorder(
		&fakeBus{err: errors.New("redis down")},
		&fakeStore{err: errors.New("pg down")},
		arch,
		testLogger(),
	)
	run := sampleRun()
	run.ID = "fixed"

	if id := rec.Record(context.Background(), run); id != "fixed" {
		t.Errorf("id = %q, want caller-provided id kept", id)
	}
	if len(arch.runs) != 1 {
		t.Error("archive skipped after earlier sink failures")
	}
}

func TestRecorderWithoutSinks(t *testing.T) {
	rec := NewRecorder(nil, nil, nil, testLogger())
	if id := rec.Record(context.Background(), domain.ComparisonRun{Query: "q"}); id == "" {
		t.Error("Record returned empty id")
	}
}

type fakeAlerter struct {
	runs []domain.ComparisonRun
	err  error
}

func (f *fakeAlerter) NotifyRun(_ context.Context, run domain.ComparisonRun) error {
	f.runs = append(f.runs, run)
	return f.err
}

func TestRecorderAlerts(t *testing.T) {
	alerter := &fakeAlerter{err: errors.New("webhook down")}
	rec := NewRecorder(nil, nil, nil, testLogger()).WithAlerter(alerter)
	rec.newID = func() string { return "run-9" }

	if id := rec.Record(context.Background(), sampleRun()); id != "run-9" {
		t.Errorf("id = %q", id)
	}
	if len(alerter.runs) != 1 || alerter.runs[0].ID != "run-9" {
		t.Errorf("alerted runs = %+v", alerter.runs)
	}
}
