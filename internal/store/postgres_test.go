package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

var runCols = []string{"id", "raster_path", "regions_path", "regions", "processed", "failed", "empty", "created_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "cover.asc", "prov.shp", 0, 0, 0, 0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), Run{RasterPath: "cover.asc", RegionsPath: "prov.shp"})
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, raster_path, regions_path, regions, processed, failed, empty, created_at FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(mock.NewRows(runCols).AddRow("run-1", "r.asc", "p.shp", 24, 23, 1, 0, created))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 24, run.Regions)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, created, run.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM runs ORDER BY created_at DESC, id LIMIT \$1 OFFSET \$2`).
		WithArgs(10, 5).
		WillReturnRows(mock.NewRows(runCols).
			AddRow("b", "r.asc", "p.shp", 2, 2, 0, 0, now).
			AddRow("a", "r.asc", "p.shp", 2, 1, 1, 0, now.Add(-time.Hour)))

	runs, err := s.ListRuns(context.Background(), RunFilter{Limit: 10, Offset: 5})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveReport(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	report, regions := testReport()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE runs SET regions = \$1`).
		WithArgs(3, 2, 1, 1, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`CREATE TEMP TABLE "_sync_region_results"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_sync_region_results"}, resultRows.Columns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "region_results" .* ON CONFLICT`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec(`DELETE FROM "region_results" t WHERE t."run_id" = \$1`).
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`CREATE TEMP TABLE "_sync_class_maxima"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_sync_class_maxima"}, maximaRows.Columns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "class_maxima" .* ON CONFLICT \("run_id", "code"\)`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec(`DELETE FROM "class_maxima" t WHERE t."run_id" = \$1`).
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	require.NoError(t, s.SaveReport(context.Background(), "run-1", report, regions))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveReport_UnknownRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	report, regions := testReport()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE runs SET`).
		WithArgs(3, 2, 1, 1, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.SaveReport(context.Background(), "missing", report, regions)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveReport_RollsBackOnFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	report, regions := testReport()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE runs SET`).
		WithArgs(3, 2, 1, 1, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`CREATE TEMP TABLE "_sync_region_results"`).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := s.SaveReport(context.Background(), "run-1", report, regions)
	assert.ErrorContains(t, err, "postgres: save results run-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMaxima(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(mock.NewRows(runCols).AddRow("run-1", "r.asc", "p.shp", 3, 2, 1, 1, time.Now()))
	mock.ExpectQuery(`SELECT code, class, color, region, percent FROM class_maxima`).
		WithArgs("run-1").
		WillReturnRows(mock.NewRows([]string{"code", "class", "color", "region", "percent"}).
			AddRow(int32(47), "Agua", "#419bdf", "Salta", 66.67))

	maxima, err := s.GetMaxima(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, maxima, 1)
	assert.Equal(t, int32(47), maxima[0].Code)
	assert.Equal(t, "Salta", maxima[0].Region)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetResults(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	geomData, err := encodeGeometry(square(0, 0, 2))
	require.NoError(t, err)

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(mock.NewRows(runCols).AddRow("run-1", "r.asc", "p.shp", 1, 1, 0, 0, time.Now()))
	mock.ExpectQuery(`FROM region_results WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(mock.NewRows([]string{"region_index", "region", "total_pixels", "unclassified", "area", "classes", "geom"}).
			AddRow(0, "Salta", 3, 0, 3.0, []byte(`[{"code":47,"name":"Agua","color":"#419bdf","pixels":3,"area":3,"percent":100}]`), geomData))

	results, err := s.GetResults(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Salta", results[0].Region)
	require.Len(t, results[0].Classes, 1)
	assert.InDelta(t, 100.0, results[0].Classes[0].Percent, 1e-9)
	require.NotNil(t, results[0].Geometry)
	assert.NoError(t, mock.ExpectationsWereMet())
}
