package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/landcover-cli/internal/region"
	"github.com/sells-group/landcover-cli/internal/zonal"
)

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

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	raster_path  TEXT NOT NULL,
	regions_path TEXT NOT NULL,
	regions      INTEGER NOT NULL DEFAULT 0,
	processed    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	empty        INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS region_results (
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	region_index INTEGER NOT NULL,
	region       TEXT NOT NULL,
	total_pixels INTEGER NOT NULL,
	unclassified INTEGER NOT NULL,
	area         REAL NOT NULL,
	classes      TEXT,
	geom         BLOB,
	PRIMARY KEY (run_id, region_index)
);

CREATE TABLE IF NOT EXISTS class_maxima (
	run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	code    INTEGER NOT NULL,
	class   TEXT NOT NULL,
	color   TEXT NOT NULL,
	region  TEXT NOT NULL,
	percent REAL NOT NULL,
	PRIMARY KEY (run_id, code)
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run Run) (*Run, error) {
	r := newRun(run, uuid.New().String())

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, raster_path, regions_path, regions, processed, failed, empty, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RasterPath, r.RegionsPath, r.Regions, r.Processed, r.Failed, r.Empty, r.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return r, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, raster_path, regions_path, regions, processed, failed, empty, created_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, raster_path, regions_path, regions, processed, failed, empty, created_at
		FROM runs ORDER BY created_at DESC, id LIMIT ?`
	args := []any{listLimit(filter)}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveReport replaces the stored results and maxima of a run and updates
// its counters. Absent (nil) results are not stored.
func (s *SQLiteStore) SaveReport(ctx context.Context, runID string, report *zonal.Report, regions []region.Region) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET regions = ?, processed = ?, failed = ?, empty = ? WHERE id = ?`,
		len(report.Results), report.Processed, report.Failed, report.Empty, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run %s", runID)
	}
	if err := checkRowsAffected(res, "run", runID); err != nil {
		return err
	}

	for _, stmt := range []string{
		`DELETE FROM region_results WHERE run_id = ?`,
		`DELETE FROM class_maxima WHERE run_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, runID); err != nil {
			return eris.Wrapf(err, "sqlite: clear results %s", runID)
		}
	}

	insertResult, err := tx.PrepareContext(ctx,
		`INSERT INTO region_results (run_id, region_index, region, total_pixels, unclassified, area, classes, geom)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare result insert")
	}
	defer insertResult.Close()

	for i, r := range report.Results {
		if r == nil {
			continue
		}
		row, err := resultRow(runID, i, r, regions)
		if err != nil {
			return err
		}
		if _, err := insertResult.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert result %s", r.Region)
		}
	}

	for _, m := range report.Maxima {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO class_maxima (run_id, code, class, color, region, percent) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, m.Code, m.Class, m.Color, m.Region, zonal.Round2(m.Percent),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert maximum %s", m.Class)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit report")
}

func (s *SQLiteStore) GetResults(ctx context.Context, runID string) ([]RegionResult, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT region_index, region, total_pixels, unclassified, area, classes, geom
		 FROM region_results WHERE run_id = ? ORDER BY region_index`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get results %s", runID)
	}
	defer rows.Close()

	var out []RegionResult
	for rows.Next() {
		var rr RegionResult
		var classes sql.NullString
		var geomData []byte
		if err := rows.Scan(&rr.Index, &rr.Region, &rr.TotalPixels, &rr.Unclassified, &rr.Area, &classes, &geomData); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		if classes.Valid && classes.String != "" {
			if err := json.Unmarshal([]byte(classes.String), &rr.Classes); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal classes")
			}
		}
		if rr.Geometry, err = decodeGeometry(geomData); err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get results iterate")
}

func (s *SQLiteStore) GetMaxima(ctx context.Context, runID string) ([]zonal.Maximum, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT code, class, color, region, percent FROM class_maxima WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get maxima %s", runID)
	}
	defer rows.Close()

	var out []zonal.Maximum
	for rows.Next() {
		var m zonal.Maximum
		if err := rows.Scan(&m.Code, &m.Class, &m.Color, &m.Region, &m.Percent); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan maximum")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get maxima iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

// resultRow flattens a result into region_results column order.
func resultRow(runID string, index int, r *zonal.Result, regions []region.Region) ([]any, error) {
	rounded := roundResult(r)
	var classes any
	if rounded.Classes != nil {
		data, err := json.Marshal(rounded.Classes)
		if err != nil {
			return nil, eris.Wrap(err, "store: marshal classes")
		}
		classes = string(data)
	}
	geomData, err := encodeGeometry(regionGeometry(regions, index))
	if err != nil {
		return nil, err
	}
	return []any{runID, index, rounded.Region, rounded.TotalPixels, rounded.Unclassified, rounded.Area, classes, geomData}, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	if err := row.Scan(&r.ID, &r.RasterPath, &r.RegionsPath, &r.Regions, &r.Processed, &r.Failed, &r.Empty, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
