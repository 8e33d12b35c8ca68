package models

import (
	"fmt"
	"time"
)

// Process is one pipeline run stored in dashboard_process.
type Process struct {
	ID              int64      `db:"id" json:"id"`
	PipelineName    *string    `db:"pipeline_name" json:"pipeline_name,omitempty"`
	ProcessDir      *string    `db:"process_dir" json:"process_dir,omitempty"`
	Version         *string    `db:"version" json:"version,omitempty"`
	Start           *time.Time `db:"start" json:"start,omitempty"`
	End             *time.Time `db:"end" json:"end,omitempty"`
	Status          *int       `db:"status" json:"status,omitempty"`
	ExposureID      int64      `db:"exposure_id" json:"exposure_id"`
	QATests         QATests    `db:"qa_tests" json:"qa_tests"`
	ConfigurationID *int64     `db:"configuration_id" json:"configuration_id,omitempty"`
}

// Runtime renders end - start as H:MM:SS.
func (p Process) Runtime() *string {
	return Runtime(p.Start, p.End)
}

// ProcessHistoryRecord is a process joined with its exposure. The last process
// fields are only set when the row is the most recent process of its exposure.
type ProcessHistoryRecord struct {
	Process
	Exposure                   Exposure `db:"exposure" json:"exposure"`
	LastExposureProcessID      *int64   `db:"last_exposure_process_id" json:"last_exposure_process_id,omitempty"`
	LastExposureProcessQATests QATests  `db:"last_exposure_process_qa_tests" json:"last_exposure_process_qa_tests"`
}

// Runtime formats the duration between start and end, nil while running.
func Runtime(start, end *time.Time) *string {
	if start == nil || end == nil || end.Before(*start) {
		return nil
	}
	d := end.Sub(*start).Round(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	out := fmt.Sprintf("%d:%02d:%02d", h, m, s)
	return &out
}
