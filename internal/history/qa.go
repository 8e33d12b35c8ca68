package history

import "strings"

// QA sentinel markers. A status value equal to one of these marks the whole
// collection as failed.
const (
	QAMarkerNone    = "None"
	QAMarkerFailure = "FAILURE"
)

// QAResults is a decoded qa_tests collection. A nil slice means the row carries
// no QA results at all; an empty non-nil slice means the collection exists but
// holds no entries.
type QAResults []any

// Passed reports whether the collection is non-empty and no status in it is a
// sentinel marker.
//
// Plain string entries are statuses. A map that has a "status" or "*_status"
// key is a result record and only those keys are judged; its other fields are
// free text. Any other map is a metric to status table: its string values are
// statuses and nested maps follow the same rules. null is never a status.
func (q QAResults) Passed() bool {
	if len(q) == 0 {
		return false
	}
	for _, entry := range q {
		if qaFailed(entry) {
			return false
		}
	}
	return true
}

func qaFailed(v any) bool {
	switch val := v.(type) {
	case string:
		return isQAMarker(val)
	case []any:
		for _, item := range val {
			if qaFailed(item) {
				return true
			}
		}
	case map[string]any:
		if hasStatusKey(val) {
			for k, item := range val {
				if isStatusKey(k) && qaFailed(item) {
					return true
				}
			}
			return false
		}
		for _, item := range val {
			if qaFailed(item) {
				return true
			}
		}
	}
	return false
}

func isQAMarker(s string) bool {
	return s == QAMarkerNone || s == QAMarkerFailure
}

func isStatusKey(k string) bool {
	return k == "status" || strings.HasSuffix(k, "_status")
}

func hasStatusKey(m map[string]any) bool {
	for k := range m {
		if isStatusKey(k) {
			return true
		}
	}
	return false
}

// qaCandidate picks the collection a QA cell is judged on.
func qaCandidate(own, lastProcess QAResults) (QAResults, bool) {
	if own != nil {
		return own, true
	}
	if lastProcess != nil {
		return lastProcess, true
	}
	return nil, false
}

func qaCell(passed bool, processID int64, linked bool) Cell {
	cell := Cell{Kind: CellQAFail, Text: GlyphFail}
	if passed {
		cell = Cell{Kind: CellQAPass, Text: GlyphPass}
	}
	if linked {
		id := processID
		cell.ProcessID = &id
	}
	return cell
}

// interpretQA derives the QA cell for a row. lastProcessed is the process the
// pipeline touched most recently, if known.
func interpretQA(row Row, lastProcessed *int64) Cell {
	switch r := row.(type) {
	case ProcessRow:
		if lastProcessed != nil && *lastProcessed == r.PK && !r.RuntimeKnown() {
			return pendingCell(r.PK)
		}
		tests, ok := qaCandidate(r.QATests, r.LastExposureProcessQATests)
		return qaCell(ok && tests.Passed(), r.PK, true)
	case ObservationRow:
		processID, linked := r.ProcessID()
		if !linked {
			return Cell{Kind: CellAbsent}
		}
		if lastProcessed != nil && *lastProcessed == processID {
			if r.LastExposureProcessRuntime == nil || *r.LastExposureProcessRuntime == "" {
				return pendingCell(processID)
			}
			return Cell{Kind: CellAbsent}
		}
		tests, ok := qaCandidate(r.QATests, r.LastExposureProcessQATests)
		return qaCell(ok && tests.Passed(), processID, true)
	default:
		return Cell{Kind: CellAbsent}
	}
}

func pendingCell(processID int64) Cell {
	id := processID
	return Cell{Kind: CellPending, ProcessID: &id}
}
