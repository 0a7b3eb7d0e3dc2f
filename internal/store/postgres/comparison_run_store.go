package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// maxListLimit caps ListRecent regardless of what the caller asks for.
const maxListLimit = 200

// ComparisonRunStore implements domain.ComparisonRunStore using PostgreSQL.
type ComparisonRunStore struct {
	pool *pgxpool.Pool
}

// NewComparisonRunStore creates a new ComparisonRunStore.
func NewComparisonRunStore(pool *pgxpool.Pool) *ComparisonRunStore {
	return &ComparisonRunStore{pool: pool}
}

// platformErrorRow is the JSONB shape of one PlatformError.
type platformErrorRow struct {
	Platform domain.Platform `json:"platform"`
	Error    string          `json:"error"`
}

func encodeErrors(errs []domain.PlatformError) ([]byte, error) {
	rows := make([]platformErrorRow, 0, len(errs))
	for _, e := range errs {
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		rows = append(rows, platformErrorRow{Platform: e.Platform, Error: msg})
	}
	return json.Marshal(rows)
}

func decodeErrors(data []byte) ([]domain.PlatformError, error) {
	var rows []platformErrorRow
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, err
		}
	}
	out := make([]domain.PlatformError, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.PlatformError{Platform: r.Platform, Err: errors.New(r.Error)})
	}
	return out, nil
}

// Insert records one finished compare call.
func (s *ComparisonRunStore) Insert(ctx context.Context, run domain.ComparisonRun) error {
	comps := run.Comparisons
	if comps == nil {
		comps = []domain.Comparison{}
	}
	compsJSON, err := json.Marshal(comps)
	if err != nil {
		return fmt.Errorf("postgres: encode comparisons for run %s: %w", run.ID, err)
	}
	errsJSON, err := encodeErrors(run.Errors)
	if err != nil {
		return fmt.Errorf("postgres: encode errors for run %s: %w", run.ID, err)
	}

	const query = `
		INSERT INTO comparison_runs (id, query, comparisons, errors, market_count, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.pool.Exec(ctx, query,
		run.ID, run.Query, compsJSON, errsJSON, run.MarketCount, run.Duration.Milliseconds(), run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert comparison_run %s: %w", run.ID, err)
	}
	return nil
}

// ListRecent returns up to limit runs, newest first.
func (s *ComparisonRunStore) ListRecent(ctx context.Context, limit int) ([]domain.ComparisonRun, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	const query = `
		SELECT id::text, query, comparisons, errors, market_count, duration_ms, created_at
		FROM comparison_runs
		ORDER BY created_at DESC
		LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list comparison_runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, scanRun)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan comparison_runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.CollectableRow) (domain.ComparisonRun, error) {
	var (
		r          domain.ComparisonRun
		compsJSON  []byte
		errsJSON   []byte
		durationMs int64
	)
	if err := row.Scan(&r.ID, &r.Query, &compsJSON, &errsJSON, &r.MarketCount, &durationMs, &r.CreatedAt); err != nil {
		return domain.ComparisonRun{}, err
	}
	if err := json.Unmarshal(compsJSON, &r.Comparisons); err != nil {
		return domain.ComparisonRun{}, fmt.Errorf("decode comparisons: %w", err)
	}
	errs, err := decodeErrors(errsJSON)
	if err != nil {
		return domain.ComparisonRun{}, fmt.Errorf("decode errors: %w", err)
	}
	r.Errors = errs
	r.Duration = time.Duration(durationMs) * time.Millisecond
	return r, nil
}

var _ domain.ComparisonRunStore = (*ComparisonRunStore)(nil)
