package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/qlf-monitor-api/internal/history"
	"github.com/noah-isme/qlf-monitor-api/internal/models"
	appErrors "github.com/noah-isme/qlf-monitor-api/pkg/errors"
	"github.com/noah-isme/qlf-monitor-api/pkg/export"
	"github.com/noah-isme/qlf-monitor-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportService renders grid views to CSV or PDF and hands out signed links
// to the stored files.
type ExportService struct {
	storage   fileStorage
	signer    *storage.SignedURLSigner
	csv       csvRenderer
	pdf       pdfRenderer
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = signer.TTL()
	}
	cfg.APIPrefix = normalizePrefix(cfg.APIPrefix)
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		storage:   store,
		signer:    signer,
		csv:       csv,
		pdf:       pdf,
		validator: validator.New(),
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Export renders the visible columns and rows of a grid view and stores the file.
func (s *ExportService) Export(_ context.Context, view *GridView, req models.ExportRequest) (*models.ExportResult, error) {
	if view == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "grid not found")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf")
	}
	if len(view.Columns) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no visible columns to export")
	}

	dataset := viewDataset(view.View)
	title := exportTitle(view.Mode)

	var (
		payload []byte
		err     error
	)
	switch req.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	id := uuid.NewString()
	filename := fmt.Sprintf("%s_%s_%s.%s", view.Mode, s.now().UTC().Format("20060102_150405"), id[:8], req.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(id, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}
	s.logger.Info("grid exported", zap.String("grid_id", view.ID), zap.String("export_id", id), zap.String("format", string(req.Format)), zap.Int("rows", len(dataset.Rows)))

	return &models.ExportResult{
		ID:        id,
		Format:    req.Format,
		URL:       fmt.Sprintf("%s/exports/%s", s.cfg.APIPrefix, token),
		ExpiresAt: expiresAt,
		Rows:      len(dataset.Rows),
	}, nil
}

// Open validates a download token and returns the stored export.
func (s *ExportService) Open(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", translateTokenError(err)
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	return file, path.Base(relPath), nil
}

// Cleanup removes exports older than ttl (the configured result TTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// RunCleanup purges expired exports every interval until ctx is done.
func (s *ExportService) RunCleanup(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := s.Cleanup(0)
			if err != nil {
				s.logger.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
			}
		}
	}
}

func exportTitle(mode history.GridMode) string {
	if mode == history.ModeProcess {
		return "Processing History"
	}
	return "Observation History"
}

func viewDataset(view history.View) export.Dataset {
	headers := make([]string, len(view.Columns))
	for i, col := range view.Columns {
		headers[i] = col.Name
	}
	rows := make([][]string, len(view.Rows))
	for i, row := range view.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cellText(cell)
		}
		rows[i] = cells
	}
	state := view.State
	caption := fmt.Sprintf("%s to %s, sorted by %s, page %d (%d of %d rows)",
		state.DateRange.Start.Format(history.DateLayout),
		state.DateRange.End.Format(history.DateLayout),
		state.Order(), state.PageIndex+1, len(view.Rows), state.TotalRows)
	if state.FilterText != "" {
		caption += fmt.Sprintf(", filter %q", state.FilterText)
	}
	return export.Dataset{Caption: caption, Headers: headers, Rows: rows}
}

func cellText(cell history.Cell) string {
	switch cell.Kind {
	case history.CellQAPass:
		return "PASS"
	case history.CellQAFail:
		return "FAIL"
	case history.CellPending:
		return "PENDING"
	case history.CellText:
		return cell.Text
	default:
		return ""
	}
}
