package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/qlf-monitor-api/internal/models"
)

var exposureSorts = map[string]string{
	"dateobs":     "e.dateobs",
	"datemjd":     "e.dateobs",
	"exposure_id": "e.exposure_id",
	"tile":        "e.tile",
	"program":     "e.program",
	"flavor":      "e.flavor",
	"night":       "e.night",
	"exptime":     "e.exptime",
	"airmass":     "e.airmass",
	"telra":       "e.telra",
	"teldec":      "e.teldec",
}

// ExposureRepository reads the observation history.
type ExposureRepository struct {
	db *sqlx.DB
}

// NewExposureRepository constructs an ExposureRepository.
func NewExposureRepository(db *sqlx.DB) *ExposureRepository {
	return &ExposureRepository{db: db}
}

// List returns one page of exposures, each with its most recent process.
func (r *ExposureRepository) List(ctx context.Context, q models.HistoryQuery) ([]models.ExposureHistoryRecord, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if !q.Start.IsZero() {
		conditions = append(conditions, fmt.Sprintf("e.dateobs >= $%d", len(args)+1))
		args = append(args, q.Start)
	}
	if !q.End.IsZero() {
		conditions = append(conditions, fmt.Sprintf("e.dateobs < $%d", len(args)+1))
		args = append(args, q.End.AddDate(0, 0, 1))
	}
	if strings.TrimSpace(q.Filter) != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(e.program ILIKE $%d OR e.flavor ILIKE $%d OR e.night ILIKE $%d OR CAST(e.exposure_id AS TEXT) ILIKE $%d)", n, n, n, n))
		args = append(args, filterPattern(q.Filter))
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	column, direction := resolveOrder(q.Order, exposureSorts, "e.dateobs")
	limit, offset := pageBounds(q.Limit, q.Offset)

	query := fmt.Sprintf(`SELECT e.exposure_id, e.telra, e.teldec, e.tile, e.dateobs, e.flavor, e.night, e.airmass, e.program, e.exptime,
        lp.id AS last_exposure_process_id, lp.qa_tests AS last_exposure_process_qa_tests,
        lp.start AS last_exposure_process_start, lp."end" AS last_exposure_process_end
        FROM dashboard_exposure e
        LEFT JOIN LATERAL (SELECT p.id, p.qa_tests, p.start, p."end" FROM dashboard_process p WHERE p.exposure_id = e.exposure_id ORDER BY p.start DESC NULLS LAST, p.id DESC LIMIT 1) lp ON TRUE
        %s ORDER BY %s %s, e.exposure_id %s LIMIT %d OFFSET %d`, where, column, direction, direction, limit, offset)

	var records []models.ExposureHistoryRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list exposures: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM dashboard_exposure e %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count exposures: %w", err)
	}
	return records, total, nil
}
