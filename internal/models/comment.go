package models

import "time"

// ProcessComment is an operator note attached to a process run.
type ProcessComment struct {
	ID        int64     `db:"id" json:"id"`
	ProcessID int64     `db:"process_id" json:"process_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Text      string    `db:"text" json:"text"`
	Date      time.Time `db:"date" json:"date"`
}

// CreateCommentRequest is the payload of a new comment.
type CreateCommentRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}
