package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/qlf-monitor-api/internal/models"
)

var processSorts = map[string]string{
	"pk":                    "p.id",
	"id":                    "p.id",
	"start":                 "p.start",
	"end":                   `p."end"`,
	"runtime":               `(p."end" - p.start)`,
	"datemjd":               "e.dateobs",
	"exposure__dateobs":     "e.dateobs",
	"exposure__exposure_id": "e.exposure_id",
	"exposure__tile":        "e.tile",
	"exposure__program":     "e.program",
	"exposure__flavor":      "e.flavor",
	"exposure__night":       "e.night",
	"exposure__exptime":     "e.exptime",
	"exposure__airmass":     "e.airmass",
	"exposure__telra":       "e.telra",
	"exposure__teldec":      "e.teldec",
}

// ProcessRepository reads the processing history.
type ProcessRepository struct {
	db *sqlx.DB
}

// NewProcessRepository constructs a ProcessRepository.
func NewProcessRepository(db *sqlx.DB) *ProcessRepository {
	return &ProcessRepository{db: db}
}

// List returns one page of processes joined with their exposures.
func (r *ProcessRepository) List(ctx context.Context, q models.HistoryQuery) ([]models.ProcessHistoryRecord, int, error) {
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
	base := "FROM dashboard_process p JOIN dashboard_exposure e ON e.exposure_id = p.exposure_id WHERE " + strings.Join(conditions, " AND ")

	column, direction := resolveOrder(q.Order, processSorts, "e.dateobs")
	limit, offset := pageBounds(q.Limit, q.Offset)

	query := fmt.Sprintf(`SELECT p.id, p.pipeline_name, p.process_dir, p.version, p.start, p."end", p.status, p.exposure_id, p.qa_tests, p.configuration_id,
        e.exposure_id AS "exposure.exposure_id", e.telra AS "exposure.telra", e.teldec AS "exposure.teldec", e.tile AS "exposure.tile",
        e.dateobs AS "exposure.dateobs", e.flavor AS "exposure.flavor", e.night AS "exposure.night", e.airmass AS "exposure.airmass",
        e.program AS "exposure.program", e.exptime AS "exposure.exptime",
        CASE WHEN p.id = (SELECT lp.id FROM dashboard_process lp WHERE lp.exposure_id = p.exposure_id ORDER BY lp.start DESC NULLS LAST, lp.id DESC LIMIT 1) THEN p.id END AS last_exposure_process_id,
        CASE WHEN p.id = (SELECT lp.id FROM dashboard_process lp WHERE lp.exposure_id = p.exposure_id ORDER BY lp.start DESC NULLS LAST, lp.id DESC LIMIT 1) THEN p.qa_tests END AS last_exposure_process_qa_tests
        %s ORDER BY %s %s, p.id %s LIMIT %d OFFSET %d`, base, column, direction, direction, limit, offset)

	var records []models.ProcessHistoryRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list processes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count processes: %w", err)
	}
	return records, total, nil
}

// LatestID returns the most recently started process, nil when there is none.
func (r *ProcessRepository) LatestID(ctx context.Context) (*int64, error) {
	const query = `SELECT id FROM dashboard_process ORDER BY start DESC NULLS LAST, id DESC LIMIT 1`
	var id int64
	if err := r.db.GetContext(ctx, &id, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest process: %w", err)
	}
	return &id, nil
}

// Exists reports whether a process with the id exists.
func (r *ProcessRepository) Exists(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT 1 FROM dashboard_process WHERE id = $1 LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check process: %w", err)
	}
	return true, nil
}
