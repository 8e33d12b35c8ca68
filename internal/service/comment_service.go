package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/qlf-monitor-api/internal/models"
	appErrors "github.com/noah-isme/qlf-monitor-api/pkg/errors"
	"github.com/noah-isme/qlf-monitor-api/pkg/middleware/requestid"
)

type commentRepository interface {
	ListByProcess(ctx context.Context, processID int64) ([]models.ProcessComment, error)
	Create(ctx context.Context, comment *models.ProcessComment) error
}

type processLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// CommentService reads and writes the operator comments of process runs.
type CommentService struct {
	repo      commentRepository
	processes processLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCommentService constructs a CommentService.
func NewCommentService(repo commentRepository, processes processLookup, validate *validator.Validate, logger *zap.Logger) *CommentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{repo: repo, processes: processes, validator: validate, logger: logger}
}

// List returns the comments of a process, oldest first.
func (s *CommentService) List(ctx context.Context, processID int64) ([]models.ProcessComment, error) {
	if processID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid process id")
	}
	comments, err := s.repo.ListByProcess(ctx, processID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}
	if comments == nil {
		comments = []models.ProcessComment{}
	}
	return comments, nil
}

// Create attaches a comment authored by the caller to a process.
func (s *CommentService) Create(ctx context.Context, processID int64, req models.CreateCommentRequest, claims *models.JWTClaims) (*models.ProcessComment, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !claims.CanComment() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not comment")
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment")
	}
	if s.processes != nil {
		ok, err := s.processes.Exists(ctx, processID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load process")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "process not found")
		}
	}

	comment := &models.ProcessComment{
		ProcessID: processID,
		UserID:    claims.UserID,
		Text:      req.Text,
	}
	if err := s.repo.Create(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save comment")
	}
	s.logger.Info("process comment added",
		zap.Int64("process_id", processID),
		zap.String("user_id", claims.UserID),
		zap.String("request_id", requestid.FromContext(ctx)))
	return comment, nil
}
