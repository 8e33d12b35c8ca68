package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qlf-monitor-api/internal/dto"
	"github.com/noah-isme/qlf-monitor-api/internal/middleware"
	"github.com/noah-isme/qlf-monitor-api/internal/models"
	"github.com/noah-isme/qlf-monitor-api/internal/service"
	appErrors "github.com/noah-isme/qlf-monitor-api/pkg/errors"
	"github.com/noah-isme/qlf-monitor-api/pkg/response"
)

type gridCommentService interface {
	OpenComments(ctx context.Context, claims *models.JWTClaims, id string, processID int64) (*service.CommentThread, error)
	CloseComments(ctx context.Context, claims *models.JWTClaims, id string) (*service.CommentThread, error)
	Comments(ctx context.Context, claims *models.JWTClaims, id string) (*service.CommentThread, error)
	AddComment(ctx context.Context, claims *models.JWTClaims, id string, req models.CreateCommentRequest) (*models.ProcessComment, error)
}

// CommentHandler exposes the comment dialog of a grid.
type CommentHandler struct {
	service gridCommentService
}

// NewCommentHandler constructs a CommentHandler.
func NewCommentHandler(service gridCommentService) *CommentHandler {
	return &CommentHandler{service: service}
}

// Open godoc
// @Summary Open the comment dialog on a process
// @Tags Comments
// @Accept json
// @Produce json
// @Param id path string true "Grid ID"
// @Param payload body dto.OpenCommentsRequest true "Process"
// @Success 200 {object} response.Envelope
// @Router /history/grids/{id}/comments/dialog [post]
func (h *CommentHandler) Open(c *gin.Context) {
	var req dto.OpenCommentsRequest
	if !bindJSON(c, &req, "process_id is required") {
		return
	}
	thread, err := h.service.OpenComments(c.Request.Context(), middleware.Claims(c), c.Param("id"), req.ProcessID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, thread, nil)
}

// Close godoc
// @Summary Close the comment dialog
// @Tags Comments
// @Produce json
// @Param id path string true "Grid ID"
// @Success 200 {object} response.Envelope
// @Router /history/grids/{id}/comments/dialog [delete]
func (h *CommentHandler) Close(c *gin.Context) {
	thread, err := h.service.CloseComments(c.Request.Context(), middleware.Claims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, thread, nil)
}

// List godoc
// @Summary Dialog state and comments of the targeted process
// @Tags Comments
// @Produce json
// @Param id path string true "Grid ID"
// @Success 200 {object} response.Envelope
// @Router /history/grids/{id}/comments [get]
func (h *CommentHandler) List(c *gin.Context) {
	thread, err := h.service.Comments(c.Request.Context(), middleware.Claims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, thread, nil)
}

// Create godoc
// @Summary Comment on the targeted process
// @Tags Comments
// @Accept json
// @Produce json
// @Param id path string true "Grid ID"
// @Param payload body models.CreateCommentRequest true "Comment"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /history/grids/{id}/comments [post]
func (h *CommentHandler) Create(c *gin.Context) {
	var req models.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid comment payload"))
		return
	}
	comment, err := h.service.AddComment(c.Request.Context(), middleware.Claims(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}
