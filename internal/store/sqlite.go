package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fer004/Sensores/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer keeps runs and records consistent without busy retries.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Migrate applies the embedded migrations up to the latest version.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "sqlite: load migrations")
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return eris.Wrap(err, "sqlite: migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return eris.Wrap(err, "sqlite: migrate instance")
	}
	m.Log = migrateLogger{log: zap.L().With(zap.String("component", "store.migrate"))}

	// m is not closed: that would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return eris.Wrap(err, "sqlite: migrate up")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.Run, records []model.RegionEstimate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, pollutant, profile, sensors, regions, skipped, containment, interpolated, no_data, triangulation_error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().UnixNano(), string(run.Pollutant), run.Profile,
		run.Sensors, run.Regions, run.Skipped, run.Containment, run.Interpolated, run.NoData,
		run.TriangulationError, run.DurationMs,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO region_estimates (run_id, position, region_index, region, value, category, method, sensors) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare record insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range recordRows(run.ID, records) {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert record %v", row[3])
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit run")
	}
	return nil
}

const sqliteRunColumns = `id, started_at, pollutant, profile, sensors, regions, skipped, containment, interpolated, no_data, triangulation_error, duration_ms`

func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.Run, []model.RegionEstimate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	run, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNoRuns
	}
	if err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: latest run")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT region_index, region, value, category, method, sensors FROM region_estimates WHERE run_id = ? ORDER BY position`, run.ID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "sqlite: records for run %s", run.ID)
	}
	defer rows.Close() //nolint:errcheck

	var records []model.RegionEstimate
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, nil, eris.Wrap(err, "sqlite: scan record")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: iterate records")
	}
	return run, records, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limitOrDefault(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) RegionHistory(ctx context.Context, region string, limit int) ([]model.HistoryPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.started_at, e.value, e.category, e.method
		 FROM region_estimates e JOIN runs r ON r.id = e.run_id
		 WHERE e.region = ?
		 ORDER BY r.started_at DESC, r.rowid DESC
		 LIMIT ?`, region, limitOrDefault(limit))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: history for %s", region)
	}
	defer rows.Close() //nolint:errcheck

	var points []model.HistoryPoint
	for rows.Next() {
		var (
			p      model.HistoryPoint
			nanos  int64
			method string
		)
		if err := rows.Scan(&p.RunID, &nanos, &p.Value, &p.Category, &method); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history point")
		}
		p.StartedAt = time.Unix(0, nanos).UTC()
		p.Method = model.Method(method)
		points = append(points, p)
	}
	return points, eris.Wrap(rows.Err(), "sqlite: iterate history")
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var (
		run       model.Run
		nanos     int64
		pollutant string
	)
	err := row.Scan(&run.ID, &nanos, &pollutant, &run.Profile,
		&run.Sensors, &run.Regions, &run.Skipped, &run.Containment, &run.Interpolated, &run.NoData,
		&run.TriangulationError, &run.DurationMs)
	if err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, nanos).UTC()
	run.Pollutant = model.Pollutant(pollutant)
	return &run, nil
}

// migrateLogger adapts zap to migrate.Logger.
type migrateLogger struct {
	log *zap.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Sugar().Debugf(format, v...)
}

func (l migrateLogger) Verbose() bool {
	return false
}
