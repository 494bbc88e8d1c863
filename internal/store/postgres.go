package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/fer004/Sensores/internal/db"
	"github.com/fer004/Sensores/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id                  TEXT PRIMARY KEY,
	started_at          TIMESTAMPTZ NOT NULL,
	pollutant           TEXT NOT NULL,
	profile             TEXT NOT NULL,
	sensors             INTEGER NOT NULL,
	regions             INTEGER NOT NULL,
	skipped             INTEGER NOT NULL,
	containment         INTEGER NOT NULL,
	interpolated        INTEGER NOT NULL,
	no_data             INTEGER NOT NULL,
	triangulation_error TEXT NOT NULL DEFAULT '',
	duration_ms         BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);

CREATE TABLE IF NOT EXISTS region_estimates (
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	region_index INTEGER NOT NULL,
	region       TEXT NOT NULL,
	value        DOUBLE PRECISION,
	category     TEXT NOT NULL,
	method       TEXT NOT NULL,
	sensors      INTEGER NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_region_estimates_region ON region_estimates(region);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *model.Run, records []model.RegionEstimate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, started_at, pollutant, profile, sensors, regions, skipped, containment, interpolated, no_data, triangulation_error, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID, run.StartedAt.UTC(), string(run.Pollutant), run.Profile,
		run.Sensors, run.Regions, run.Skipped, run.Containment, run.Interpolated, run.NoData,
		run.TriangulationError, run.DurationMs,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert run %s", run.ID)
	}

	if _, err := db.CopyFrom(ctx, tx, "region_estimates", recordColumns, recordRows(run.ID, records)); err != nil {
		return eris.Wrapf(err, "postgres: copy records for run %s", run.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit run")
	}
	return nil
}

const postgresRunColumns = `id, started_at, pollutant, profile, sensors, regions, skipped, containment, interpolated, no_data, triangulation_error, duration_ms`

func (s *PostgresStore) LatestRun(ctx context.Context) (*model.Run, []model.RegionEstimate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM runs ORDER BY started_at DESC LIMIT 1`)
	run, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNoRuns
	}
	if err != nil {
		return nil, nil, eris.Wrap(err, "postgres: latest run")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT region_index, region, value, category, method, sensors FROM region_estimates WHERE run_id = $1 ORDER BY position`, run.ID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "postgres: records for run %s", run.ID)
	}
	defer rows.Close()

	var records []model.RegionEstimate
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, nil, eris.Wrap(err, "postgres: scan record")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "postgres: iterate records")
	}
	return run, records, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresRunColumns+` FROM runs ORDER BY started_at DESC LIMIT $1`, limitOrDefault(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) RegionHistory(ctx context.Context, region string, limit int) ([]model.HistoryPoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.started_at, e.value, e.category, e.method
		 FROM region_estimates e JOIN runs r ON r.id = e.run_id
		 WHERE e.region = $1
		 ORDER BY r.started_at DESC
		 LIMIT $2`, region, limitOrDefault(limit))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: history for %s", region)
	}
	defer rows.Close()

	var points []model.HistoryPoint
	for rows.Next() {
		var (
			p      model.HistoryPoint
			method string
		)
		if err := rows.Scan(&p.RunID, &p.StartedAt, &p.Value, &p.Category, &method); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history point")
		}
		p.StartedAt = p.StartedAt.UTC()
		p.Method = model.Method(method)
		points = append(points, p)
	}
	return points, eris.Wrap(rows.Err(), "postgres: iterate history")
}

func scanPostgresRun(row scannable) (*model.Run, error) {
	var (
		run       model.Run
		pollutant string
	)
	err := row.Scan(&run.ID, &run.StartedAt, &pollutant, &run.Profile,
		&run.Sensors, &run.Regions, &run.Skipped, &run.Containment, &run.Interpolated, &run.NoData,
		&run.TriangulationError, &run.DurationMs)
	if err != nil {
		return nil, err
	}
	run.StartedAt = run.StartedAt.UTC()
	run.Pollutant = model.Pollutant(pollutant)
	return &run, nil
}
