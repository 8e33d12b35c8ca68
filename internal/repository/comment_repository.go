package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/qlf-monitor-api/internal/models"
)

// CommentRepository persists process comments.
type CommentRepository struct {
	db *sqlx.DB
}

// NewCommentRepository constructs a CommentRepository.
func NewCommentRepository(db *sqlx.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// ListByProcess returns the comments of a process, oldest first.
func (r *CommentRepository) ListByProcess(ctx context.Context, processID int64) ([]models.ProcessComment, error) {
	const query = `SELECT id, process_id, user_id, text, date FROM dashboard_processcomment WHERE process_id = $1 ORDER BY date ASC, id ASC`
	var comments []models.ProcessComment
	if err := r.db.SelectContext(ctx, &comments, query, processID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// Create inserts a comment and fills in its id.
func (r *CommentRepository) Create(ctx context.Context, comment *models.ProcessComment) error {
	if comment.Date.IsZero() {
		comment.Date = time.Now().UTC()
	}
	const query = `INSERT INTO dashboard_processcomment (process_id, user_id, text, date) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, comment.ProcessID, comment.UserID, comment.Text, comment.Date).Scan(&comment.ID); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}
