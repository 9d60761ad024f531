package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/landcover-cli/internal/db"
	"github.com/sells-group/landcover-cli/internal/region"
	"github.com/sells-group/landcover-cli/internal/zonal"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.NewPool(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller keeps ownership of
// the pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	raster_path  TEXT NOT NULL,
	regions_path TEXT NOT NULL,
	regions      INTEGER NOT NULL DEFAULT 0,
	processed    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	empty        INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS region_results (
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	region_index INTEGER NOT NULL,
	region       TEXT NOT NULL,
	total_pixels INTEGER NOT NULL,
	unclassified INTEGER NOT NULL,
	area         DOUBLE PRECISION NOT NULL,
	classes      JSONB,
	geom         BYTEA,
	PRIMARY KEY (run_id, region_index)
);

CREATE TABLE IF NOT EXISTS class_maxima (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	code     INTEGER NOT NULL,
	class    TEXT NOT NULL,
	color    TEXT NOT NULL,
	region   TEXT NOT NULL,
	percent  DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, code)
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

var resultRows = db.ScopedRows{
	Table:   "region_results",
	Columns: []string{"run_id", "region_index", "region", "total_pixels", "unclassified", "area", "classes", "geom"},
	Keys:    []string{"run_id", "region_index"},
	Scope:   "run_id",
}

var maximaRows = db.ScopedRows{
	Table:   "class_maxima",
	Columns: []string{"run_id", "position", "code", "class", "color", "region", "percent"},
	Keys:    []string{"run_id", "code"},
	Scope:   "run_id",
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

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

func (s *PostgresStore) CreateRun(ctx context.Context, run Run) (*Run, error) {
	r := newRun(run, uuid.New().String())

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, raster_path, regions_path, regions, processed, failed, empty, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.RasterPath, r.RegionsPath, r.Regions, r.Processed, r.Failed, r.Empty, r.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return r, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, raster_path, regions_path, regions, processed, failed, empty, created_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, raster_path, regions_path, regions, processed, failed, empty, created_at FROM runs ORDER BY created_at DESC, id LIMIT $1`
	args := []any{listLimit(filter)}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, len(args)+1)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveReport replaces the stored results and maxima of a run and updates
// its counters in one transaction. Absent (nil) results are not stored.
func (s *PostgresStore) SaveReport(ctx context.Context, runID string, report *zonal.Report, regions []region.Region) error {
	rows := make([][]any, 0, len(report.Results))
	for i, r := range report.Results {
		if r == nil {
			continue
		}
		row, err := resultRow(runID, i, r, regions)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	maxima := make([][]any, len(report.Maxima))
	for i, m := range report.Maxima {
		maxima[i] = []any{runID, int32(i), m.Code, m.Class, m.Color, m.Region, zonal.Round2(m.Percent)}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE runs SET regions = $1, processed = $2, failed = $3, empty = $4 WHERE id = $5`,
		len(report.Results), report.Processed, report.Failed, report.Empty, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}

	resStats, err := db.SyncRows(ctx, tx, resultRows, runID, rows)
	if err != nil {
		return eris.Wrapf(err, "postgres: save results %s", runID)
	}
	maxStats, err := db.SyncRows(ctx, tx, maximaRows, runID, maxima)
	if err != nil {
		return eris.Wrapf(err, "postgres: save maxima %s", runID)
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit report")
	}

	zap.L().Debug("postgres: saved report",
		zap.String("run_id", runID),
		zap.Int64("results", resStats.Upserted),
		zap.Int64("results_pruned", resStats.Deleted),
		zap.Int64("maxima", maxStats.Upserted),
	)
	return nil
}

func (s *PostgresStore) GetResults(ctx context.Context, runID string) ([]RegionResult, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT region_index, region, total_pixels, unclassified, area, classes, geom FROM region_results WHERE run_id = $1 ORDER BY region_index`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get results %s", runID)
	}
	defer rows.Close()

	var out []RegionResult
	for rows.Next() {
		var rr RegionResult
		var classes, geomData []byte
		if err := rows.Scan(&rr.Index, &rr.Region, &rr.TotalPixels, &rr.Unclassified, &rr.Area, &classes, &geomData); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		if len(classes) > 0 {
			if err := json.Unmarshal(classes, &rr.Classes); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal classes")
			}
		}
		if rr.Geometry, err = decodeGeometry(geomData); err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get results iterate")
}

func (s *PostgresStore) GetMaxima(ctx context.Context, runID string) ([]zonal.Maximum, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT code, class, color, region, percent FROM class_maxima WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get maxima %s", runID)
	}
	defer rows.Close()

	var out []zonal.Maximum
	for rows.Next() {
		var m zonal.Maximum
		if err := rows.Scan(&m.Code, &m.Class, &m.Color, &m.Region, &m.Percent); err != nil {
			return nil, eris.Wrap(err, "postgres: scan maximum")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get maxima iterate")
}
