package history

import "strings"

// exposurePathPrefix marks a process-mode key that addresses the nested exposure.
const exposurePathPrefix = "exposure__"

// Record is a flat field bag decoded from one row of the data source.
type Record map[string]any

// Lookup returns the value stored under key. A nil value counts as missing.
func (r Record) Lookup(key string) (any, bool) {
	if r == nil || key == "" {
		return nil, false
	}
	v, ok := r[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Row is one record of a history grid: either an ObservationRow or a
// ProcessRow. Rows are never mutated once delivered.
type Row interface {
	Mode() GridMode
	// ProcessID is the process a QA link or comment dialog targets for this row.
	ProcessID() (int64, bool)
	// Preview returns the night and exposure id of the CCD images for this row.
	Preview() (night string, exposureID int64, ok bool)
}

// ObservationRow is a flat exposure record, optionally decorated with the most
// recent process run over it.
type ObservationRow struct {
	Fields                     Record
	QATests                    QAResults
	LastExposureProcessID      *int64
	LastExposureProcessQATests QAResults
	LastExposureProcessRuntime *string
}

// Mode implements Row.
func (ObservationRow) Mode() GridMode { return ModeObservation }

// ProcessID implements Row.
func (r ObservationRow) ProcessID() (int64, bool) {
	if r.LastExposureProcessID == nil {
		return 0, false
	}
	return *r.LastExposureProcessID, true
}

// Preview implements Row.
func (r ObservationRow) Preview() (string, int64, bool) {
	return previewOf(r.Fields)
}

// ProcessRow is one pipeline run. Exposure holds the flat fields of the parent
// exposure, shaped like an ObservationRow's Fields.
type ProcessRow struct {
	PK                         int64
	Fields                     Record
	QATests                    QAResults
	Exposure                   Record
	LastExposureProcessID      *int64
	LastExposureProcessQATests QAResults
}

// Mode implements Row.
func (ProcessRow) Mode() GridMode { return ModeProcess }

// ProcessID implements Row.
func (r ProcessRow) ProcessID() (int64, bool) {
	return r.PK, true
}

// Preview implements Row.
func (r ProcessRow) Preview() (string, int64, bool) {
	return previewOf(r.Exposure)
}

// RuntimeKnown reports whether the process has finished and has a runtime.
func (r ProcessRow) RuntimeKnown() bool {
	v, ok := r.Fields.Lookup("runtime")
	if !ok {
		return false
	}
	s, isString := v.(string)
	return !isString || s != ""
}

func previewOf(fields Record) (string, int64, bool) {
	rawNight, ok := fields.Lookup("night")
	if !ok {
		return "", 0, false
	}
	night, ok := rawNight.(string)
	if !ok || night == "" {
		return "", 0, false
	}
	rawID, ok := fields.Lookup("exposure_id")
	if !ok {
		return "", 0, false
	}
	id, ok := toInt64(rawID)
	if !ok {
		return "", 0, false
	}
	return night, id, true
}

// exposureField strips the Django-style relation prefix from a process key so it
// can address the nested exposure record.
func exposureField(processKey string) string {
	return strings.TrimPrefix(processKey, exposurePathPrefix)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), n == float64(int64(n))
	default:
		return 0, false
	}
}
