package models

import "time"

// ExportFormat is the file format of a grid export.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// Valid reports whether the format is supported.
func (f ExportFormat) Valid() bool {
	return f == ExportFormatCSV || f == ExportFormatPDF
}

// ExportRequest asks for the current view of a grid as a file.
type ExportRequest struct {
	Format ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportResult describes a stored export and its signed download link.
type ExportResult struct {
	ID        string       `json:"id"`
	Format    ExportFormat `json:"format"`
	URL       string       `json:"url"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Rows      int          `json:"rows"`
}
