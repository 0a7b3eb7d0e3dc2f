package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "runs"

// RunArchiver serializes comparison runs to JSON documents and stores them
// under <prefix>/YYYY/MM/DD/<run id>.json.
type RunArchiver struct {
	w      domain.BlobWriter
	prefix string
}

// NewRunArchiver creates a RunArchiver writing through w.
func NewRunArchiver(w domain.BlobWriter, prefix string) *RunArchiver {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RunArchiver{w: w, prefix: prefix}
}

type runDocument struct {
	ID          string              `json:"id"`
	Query       string              `json:"query"`
	CreatedAt   string              `json:"created_at"`
	DurationMs  int64               `json:"duration_ms"`
	MarketCount int                 `json:"market_count"`
	Comparisons []domain.Comparison `json:"comparisons"`
	Errors      []runError          `json:"errors"`
}

type runError struct {
	Platform domain.Platform `json:"platform"`
	Error    string          `json:"error"`
}

// Path returns the object key for run.
func (a *RunArchiver) Path(run domain.ComparisonRun) string {
	t := run.CreatedAt.UTC()
	return path.Join(a.prefix,
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		fmt.Sprintf("%02d", t.Day()),
		run.ID+".json",
	)
}

// Archive uploads run and returns the key it was stored under.
func (a *RunArchiver) Archive(ctx context.Context, run domain.ComparisonRun) (string, error) {
	doc := runDocument{
		ID:          run.ID,
		Query:       run.Query,
		CreatedAt:   run.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		DurationMs:  run.Duration.Milliseconds(),
		MarketCount: run.MarketCount,
		Comparisons: run.Comparisons,
		Errors:      make([]runError, 0, len(run.Errors)),
	}
	if doc.Comparisons == nil {
		doc.Comparisons = []domain.Comparison{}
	}
	for _, e := range run.Errors {
		doc.Errors = append(doc.Errors, runError{Platform: e.Platform, Error: e.Err.Error()})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("s3blob: encode run %s: %w", run.ID, err)
	}

	key := a.Path(run)
	if err := a.w.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return "", err
	}
	return key, nil
}
