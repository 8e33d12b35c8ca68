package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qlf-monitor-api/internal/dto"
	"github.com/noah-isme/qlf-monitor-api/internal/history"
	"github.com/noah-isme/qlf-monitor-api/internal/middleware"
	"github.com/noah-isme/qlf-monitor-api/internal/models"
	"github.com/noah-isme/qlf-monitor-api/internal/service"
	appErrors "github.com/noah-isme/qlf-monitor-api/pkg/errors"
	"github.com/noah-isme/qlf-monitor-api/pkg/response"
)

type gridService interface {
	Mount(ctx context.Context, claims *models.JWTClaims, mode history.GridMode) (*service.GridView, error)
	View(ctx context.Context, claims *models.JWTClaims, id string) (*service.GridView, error)
	Unmount(ctx context.Context, claims *models.JWTClaims, id string) error
	Sort(ctx context.Context, claims *models.JWTClaims, id, field string) (*service.GridView, error)
	Filter(ctx context.Context, claims *models.JWTClaims, id, text string) (*service.GridView, error)
	Page(ctx context.Context, claims *models.JWTClaims, id string, index int) (*service.GridView, error)
	PageSize(ctx context.Context, claims *models.JWTClaims, id string, size int) (*service.GridView, error)
	DateRange(ctx context.Context, claims *models.JWTClaims, id, start, end string) (*service.GridView, error)
	Refresh(ctx context.Context, claims *models.JWTClaims, id string) (*service.GridView, error)
	ToggleColumn(ctx context.Context, claims *models.JWTClaims, id, name string) (*service.GridView, error)
	ShowAllColumns(ctx context.Context, claims *models.JWTClaims, id string) (*service.GridView, error)
	HideAllColumns(ctx context.Context, claims *models.JWTClaims, id string) (*service.GridView, error)
	Select(ctx context.Context, claims *models.JWTClaims, id string, indices []int) (*service.GridView, error)
	QALink(ctx context.Context, claims *models.JWTClaims, id string, index int) (string, error)
	PreviewLink(ctx context.Context, claims *models.JWTClaims, id string, index int) (string, error)
}

// GridHandler exposes the history grid endpoints.
type GridHandler struct {
	service gridService
}

// NewGridHandler constructs a GridHandler.
func NewGridHandler(service gridService) *GridHandler {
	return &GridHandler{service: service}
}

// Mount godoc
// @Summary Mount a history grid
// @Tags History
// @Accept json
// @Produce json
// @Param payload body dto.MountGridRequest true "Grid mode"
// @Success 201 {object} response.Envelope
// @Router /history/grids [post]
func (h *GridHandler) Mount(c *gin.Context) {
	var req dto.MountGridRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "mode must be observation or process"))
		return
	}
	view, err := h.service.Mount(c.Request.Context(), middleware.Claims(c), history.GridMode(req.Mode))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, view, viewPagination(view))
}

// Get godoc
// @Summary Get the current view of a grid
// @Tags History
// @Produce json
// @Param id path string true "Grid ID"
// @Success 200 {object} response.Envelope
// @Router /history/grids/{id} [get]
func (h *GridHandler) Get(c *gin.Context) {
	h.respond(c)(h.service.View(c.Request.Context(), middleware.Claims(c), c.Param("id")))
}

// Unmount godoc
// @Summary Unmount a grid
// @Tags History
// @Param id path string true "Grid ID"
// @Success 204
// @Router /history/grids/{id} [delete]
func (h *GridHandler) Unmount(c *gin.Context) {
	if err := h.service.Unmount(c.Request.Context(), middleware.Claims(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Sort godoc
// @Summary Sort a grid
// @Tags History
// @Accept json
// @Produce json
// @Param id path string true "Grid ID"
// @Param payload body dto.SortRequest true "Sort field"
// @Success 200 {object} response.Envelope
// @Router /history/grids/{id}/sort [put]
func (h *GridHandler) Sort(c *gin.Context) {
	var req dto.SortRequest
	if !bindJSON(c, &req, "field is required") {
		return
	}
	h.respond(c)(h.service.Sort(c.Request.Context(), middleware.Claims(c), c.Param("id"), req.Field))
}

// Filter godoc
// @Summary Filter a grid
// @Tags History
// @Accept json
// @Produce json
// @Param id path string true "Grid ID"
// @Param payload body dto.FilterRequest true "Filter text"
// @Success 200 {object} response.Envelope
// @Router /history/grids/{id}/filter [put]
func (h *GridHandler) Filter(c *gin.Context) {
	var req dto.FilterRequest
	if !bindJSON(c, &req, "invalid filter payload") {
		return
	}
	h.respond(c)(h.service.Filter(c.Request.Context(), middleware.Claims(c), c.Param("id"), req.Text))
}

// Page godoc
// @Summary Change the page of a grid
// @Tags History
// @Accept json
// @Produce json
// @Param id path string true "Grid ID"
// @Param payload body dto.PageRequest true "Zero-based page index"
// @Success 200 {object} response.Envelope
// @Router /history/grids/{id}/page [put]
func (h *GridHandler) Page(c *gin.Context) {
	var req dto.PageRequest
	if !bindJSON(c, &req, "index is required") {
		return
	}
	h.respond(c)(h.service.Page(c.Request.Context(), middleware.Claims(c), c.Param("id"), *req.Index))
}

// PageSize godoc
// @Summary Change the page size of a grid
// @Tags History
// @Accept json
// @Produce json
// @Param id path string true "Grid ID"
// @Param payload body dto.PageSizeRequest true "Page size"
// @Success 200 {object} response.Envelope
// @Router /history/grids/{id}/page-size [put]
func (h *GridHandler) PageSize(c *gin.Context) {
	var req dto.PageSizeRequest
	if !bindJSON(c, &req, "size must be positive") {
		return
	}
	h.respond(c)(h.service.PageSize(c.Request.Context(), middleware.Claims(c), c.Param("id"), req.Size))
}

// DateRange godoc
// @Summary Set the observation date range of a grid
// @Tags History
// @Accept json
// @Produce json
// @Param id path string true "Grid ID"
// @Param payload body dto.DateRangeRequest true "YYYY-MM-DD dates"
// @Success 200 {object} response.Envelope
// @Router /history/grids/{id}/date-range [put]
func (h *GridHandler) DateRange(c *gin.Context) {
	var req dto.DateRangeRequest
	if !bindJSON(c, &req, "start and end are required") {
		return
	}
	h.respond(c)(h.service.DateRange(c.Request.Context(), middleware.Claims(c), c.Param("id"), req.Start, req.End))
}

// Refresh godoc
// @Summary Re-issue the current query of a grid
// @Tags History
// @Produce json
// @Param id path string true "Grid ID"
// @Success 200 {object} response.Envelope
// @Router /history/grids/{id}/refresh [post]
func (h *GridHandler) Refresh(c *gin.Context) {
	h.respond(c)(h.service.Refresh(c.Request.Context(), middleware.Claims(c), c.Param("id")))
}

// ToggleColumn godoc
// @Summary Show or hide a column
// @Tags History
// @Produce json
// @Param id path string true "Grid ID"
// @Param name path string true "Column name"
// @Success 200 {object} response.Envelope
// @Router /history/grids/{id}/columns/{name}/toggle [post]
func (h *GridHandler) ToggleColumn(c *gin.Context) {
	h.respond(c)(h.service.ToggleColumn(c.Request.Context(), middleware.Claims(c), c.Param("id"), c.Param("name")))
}

// ShowAllColumns godoc
// @Summary Show every column
// @Tags History
// @Produce json
// @Param id path string true "Grid ID"
// @Success 200 {object} response.Envelope
// @Router /history/grids/{id}/columns/show-all [post]
func (h *GridHandler) ShowAllColumns(c *gin.Context) {
	h.respond(c)(h.service.ShowAllColumns(c.Request.Context(), middleware.Claims(c), c.Param("id")))
}

// HideAllColumns godoc
// @Summary Hide every column
// @Tags History
// @Produce json
// @Param id path string true "Grid ID"
// @Success 200 {object} response.Envelope
// @Router /history/grids/{id}/columns/hide-all [post]
func (h *GridHandler) HideAllColumns(c *gin.Context) {
	h.respond(c)(h.service.HideAllColumns(c.Request.Context(), middleware.Claims(c), c.Param("id")))
}

// Select godoc
// @Summary Select rows of the current page
// @Tags History
// @Accept json
// @Produce json
// @Param id path string true "Grid ID"
// @Param payload body dto.SelectionRequest true "Row indexes"
// @Success 200 {object} response.Envelope
// @Router /history/grids/{id}/selection [put]
func (h *GridHandler) Select(c *gin.Context) {
	var req dto.SelectionRequest
	if !bindJSON(c, &req, "indices are required") {
		return
	}
	h.respond(c)(h.service.Select(c.Request.Context(), middleware.Claims(c), c.Param("id"), req.Indices))
}

// QALink godoc
// @Summary Resolve the QA screen link of a row
// @Tags History
// @Produce json
// @Param id path string true "Grid ID"
// @Param index path int true "Row index"
// @Success 200 {object} response.Envelope
// @Router /history/grids/{id}/rows/{index}/qa [get]
func (h *GridHandler) QALink(c *gin.Context) {
	h.link(c, h.service.QALink)
}

// PreviewLink godoc
// @Summary Resolve the signed CCD preview link of a row
// @Tags History
// @Produce json
// @Param id path string true "Grid ID"
// @Param index path int true "Row index"
// @Success 200 {object} response.Envelope
// @Router /history/grids/{id}/rows/{index}/preview [get]
func (h *GridHandler) PreviewLink(c *gin.Context) {
	h.link(c, h.service.PreviewLink)
}

func (h *GridHandler) link(c *gin.Context, resolve func(context.Context, *models.JWTClaims, string, int) (string, error)) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "row index must be an integer"))
		return
	}
	url, err := resolve(c.Request.Context(), middleware.Claims(c), c.Param("id"), index)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.LinkResponse{URL: url}, nil)
}

func (h *GridHandler) respond(c *gin.Context) func(*service.GridView, error) {
	return func(view *service.GridView, err error) {
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, view, viewPagination(view))
	}
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func viewPagination(view *service.GridView) *models.Pagination {
	if view == nil {
		return nil
	}
	return &models.Pagination{
		Page:       view.State.PageIndex + 1,
		PageSize:   view.State.PageSize,
		TotalCount: view.State.TotalRows,
	}
}
