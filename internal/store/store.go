// Package store keeps the history log of estimation runs and their
// per-region records.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/fer004/Sensores/internal/config"
	"github.com/fer004/Sensores/internal/model"
)

// ErrNoRuns is returned by LatestRun when the log is empty.
var ErrNoRuns = eris.New("store: no runs recorded")

// DefaultLimit caps list queries when the caller passes a non-positive limit.
const DefaultLimit = 20

// Store defines the persistence interface for run history.
type Store interface {
	// SaveRun appends a run and its records atomically. Record order is kept.
	SaveRun(ctx context.Context, run *model.Run, records []model.RegionEstimate) error
	// LatestRun returns the most recent run with its records, or ErrNoRuns.
	LatestRun(ctx context.Context) (*model.Run, []model.RegionEstimate, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	// RegionHistory returns one region's values newest first.
	RegionHistory(ctx context.Context, region string, limit int) ([]model.HistoryPoint, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open connects the configured backend and applies migrations. The "none"
// driver yields a nil Store.
func Open(ctx context.Context, cfg config.HistoryConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "none", "":
		return nil, nil
	case "sqlite":
		s, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

var recordColumns = []string{"run_id", "position", "region_index", "region", "value", "category", "method", "sensors"}

func recordRows(runID string, records []model.RegionEstimate) [][]any {
	rows := make([][]any, len(records))
	for i, r := range records {
		var value any
		if r.Value != nil {
			value = *r.Value
		}
		rows[i] = []any{runID, i, r.Index, r.Name, value, r.Category, string(r.Method), r.Sensors}
	}
	return rows
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (model.RegionEstimate, error) {
	var (
		rec    model.RegionEstimate
		method string
	)
	if err := row.Scan(&rec.Index, &rec.Name, &rec.Value, &rec.Category, &method, &rec.Sensors); err != nil {
		return rec, err
	}
	rec.Method = model.Method(method)
	return rec, nil
}
