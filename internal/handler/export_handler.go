package handler

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qlf-monitor-api/internal/middleware"
	"github.com/noah-isme/qlf-monitor-api/internal/models"
	"github.com/noah-isme/qlf-monitor-api/internal/service"
	appErrors "github.com/noah-isme/qlf-monitor-api/pkg/errors"
	"github.com/noah-isme/qlf-monitor-api/pkg/response"
)

type gridViewer interface {
	View(ctx context.Context, claims *models.JWTClaims, id string) (*service.GridView, error)
}

type exportService interface {
	Export(ctx context.Context, view *service.GridView, req models.ExportRequest) (*models.ExportResult, error)
	Open(token string) (*os.File, string, error)
}

type previewService interface {
	Open(token string) (*os.File, string, error)
}

// FileHandler exports grid views and serves signed downloads.
type FileHandler struct {
	grids    gridViewer
	exports  exportService
	previews previewService
}

// NewFileHandler constructs a FileHandler. Nil services disable their routes.
func NewFileHandler(grids gridViewer, exports exportService, previews previewService) *FileHandler {
	return &FileHandler{grids: grids, exports: exports, previews: previews}
}

// Export godoc
// @Summary Export the current view of a grid
// @Tags Exports
// @Accept json
// @Produce json
// @Param id path string true "Grid ID"
// @Param payload body models.ExportRequest true "Format"
// @Success 201 {object} response.Envelope
// @Router /history/grids/{id}/exports [post]
func (h *FileHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "exports are disabled"))
		return
	}
	var req models.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	view, err := h.grids.View(c.Request.Context(), middleware.Claims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exports.Export(c.Request.Context(), view, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// DownloadExport godoc
// @Summary Download an export via signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /exports/{token} [get]
func (h *FileHandler) DownloadExport(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "exports are disabled"))
		return
	}
	serveSigned(c, h.exports.Open, true)
}

// DownloadPreview godoc
// @Summary Fetch a CCD preview image via signed token
// @Tags Previews
// @Produce png
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /previews/{token} [get]
func (h *FileHandler) DownloadPreview(c *gin.Context) {
	if h.previews == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "previews are not configured"))
		return
	}
	serveSigned(c, h.previews.Open, false)
}

func serveSigned(c *gin.Context, open func(string) (*os.File, string, error), attachment bool) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, name, err := open(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read file"))
		return
	}
	headers := map[string]string{"Cache-Control": "no-store"}
	if attachment {
		headers["Content-Disposition"] = fmt.Sprintf("attachment; filename=\"%s\"", name)
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentTypeFor(name), file, headers)
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	}
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}
