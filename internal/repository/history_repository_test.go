package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qlf-monitor-api/internal/models"
)

func newHistoryMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestExposureRepositoryList(t *testing.T) {
	db, mock, cleanup := newHistoryMock(t)
	defer cleanup()
	repo := NewExposureRepository(db)

	start := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 5, 6, 0, 0, 0, 0, time.UTC)
	obs := time.Date(2020, 5, 6, 10, 0, 0, 0, time.UTC)
	procStart := obs.Add(time.Minute)
	procEnd := procStart.Add(3 * time.Minute)

	rows := sqlmock.NewRows([]string{"exposure_id", "telra", "teldec", "tile", "dateobs", "flavor", "night", "airmass", "program", "exptime",
		"last_exposure_process_id", "last_exposure_process_qa_tests", "last_exposure_process_start", "last_exposure_process_end"}).
		AddRow(3, 10.5, -2.25, 1001, obs, "science", "20200506", 1.2, "DARK", 900.0, 17, []byte(`[{"snr":"NORMAL"}]`), procStart, procEnd).
		AddRow(4, nil, nil, nil, obs, "arc", "20200506", nil, nil, nil, nil, nil, nil, nil)

	mock.ExpectQuery(`(?s)FROM dashboard_exposure e\s+LEFT JOIN LATERAL .* WHERE 1=1 AND e.dateobs >= \$1 AND e.dateobs < \$2 AND \(e.program ILIKE \$3 OR e.flavor ILIKE \$3 OR e.night ILIKE \$3 OR CAST\(e.exposure_id AS TEXT\) ILIKE \$3\) ORDER BY e.night ASC, e.exposure_id ASC LIMIT 25 OFFSET 50`).
		WithArgs(start, end.AddDate(0, 0, 1), "%b0%").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM dashboard_exposure e WHERE 1=1 AND e.dateobs >= $1")).
		WithArgs(start, end.AddDate(0, 0, 1), "%b0%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(52))

	records, total, err := repo.List(context.Background(), models.HistoryQuery{
		Start: start, End: end, Order: "night", Offset: 50, Limit: 25, Filter: " b0 ",
	})
	require.NoError(t, err)
	assert.Equal(t, 52, total)
	require.Len(t, records, 2)
	assert.Equal(t, int64(17), *records[0].LastExposureProcessID)
	assert.Equal(t, "0:03:00", *records[0].LastExposureProcessRuntime())
	assert.Len(t, records[0].LastExposureProcessQATests, 1)
	assert.Nil(t, records[1].LastExposureProcessID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExposureRepositoryListFallsBackToDefaultSort(t *testing.T) {
	db, mock, cleanup := newHistoryMock(t)
	defer cleanup()
	repo := NewExposureRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 ORDER BY e.dateobs DESC, e.exposure_id DESC LIMIT 25 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows([]string{"exposure_id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM dashboard_exposure e WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	records, total, err := repo.List(context.Background(), models.HistoryQuery{Order: "-password"})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessRepositoryList(t *testing.T) {
	db, mock, cleanup := newHistoryMock(t)
	defer cleanup()
	repo := NewProcessRepository(db)

	obs := time.Date(2020, 5, 6, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "pipeline_name", "process_dir", "version", "start", "end", "status", "exposure_id", "qa_tests", "configuration_id",
		"exposure.exposure_id", "exposure.telra", "exposure.teldec", "exposure.tile", "exposure.dateobs", "exposure.flavor", "exposure.night",
		"exposure.airmass", "exposure.program", "exposure.exptime", "last_exposure_process_id", "last_exposure_process_qa_tests"}).
		AddRow(17, "QL", "ql-3", "1.0", obs, nil, 0, 3, nil, 1, 3, 10.5, -2.25, 1001, obs, "science", "20200506", 1.2, "DARK", 900.0, 17, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM dashboard_process p JOIN dashboard_exposure e ON e.exposure_id = p.exposure_id WHERE 1=1 ORDER BY (p."end" - p.start) DESC, p.id DESC LIMIT 10 OFFSET 20`)).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM dashboard_process p JOIN dashboard_exposure e")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))

	records, total, err := repo.List(context.Background(), models.HistoryQuery{Order: "-runtime", Offset: 20, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 21, total)
	require.Len(t, records, 1)
	assert.Equal(t, int64(17), records[0].ID)
	assert.Equal(t, int64(3), records[0].Exposure.ExposureID)
	assert.Equal(t, "20200506", *records[0].Exposure.Night)
	assert.Nil(t, records[0].Runtime())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessRepositoryLatestID(t *testing.T) {
	db, mock, cleanup := newHistoryMock(t)
	defer cleanup()
	repo := NewProcessRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM dashboard_process ORDER BY start DESC")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(99))
	id, err := repo.LatestID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(99), *id)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM dashboard_process ORDER BY start DESC")).
		WillReturnError(sql.ErrNoRows)
	id, err = repo.LatestID(context.Background())
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepository(t *testing.T) {
	db, mock, cleanup := newHistoryMock(t)
	defer cleanup()
	repo := NewCommentRepository(db)

	mock.ExpectQuery("INSERT INTO dashboard_processcomment").
		WithArgs(int64(17), "user-1", "re-run after dome flat", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	comment := &models.ProcessComment{ProcessID: 17, UserID: "user-1", Text: "re-run after dome flat"}
	require.NoError(t, repo.Create(context.Background(), comment))
	assert.Equal(t, int64(5), comment.ID)
	assert.False(t, comment.Date.IsZero())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, process_id, user_id, text, date FROM dashboard_processcomment WHERE process_id = $1")).
		WithArgs(int64(17)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "process_id", "user_id", "text", "date"}).AddRow(5, 17, "user-1", "re-run after dome flat", time.Now()))
	comments, err := repo.ListByProcess(context.Background(), 17)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "user-1", comments[0].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
