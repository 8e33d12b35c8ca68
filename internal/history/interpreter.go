package history

import (
	"fmt"
	"strconv"
	"time"
)

// CellKind tells the renderer what a cell holds.
type CellKind string

const (
	// CellAbsent renders nothing at all.
	CellAbsent CellKind = "absent"
	// CellEmpty renders an empty cell.
	CellEmpty   CellKind = "empty"
	CellText    CellKind = "text"
	CellQAPass  CellKind = "qa_pass"
	CellQAFail  CellKind = "qa_fail"
	CellPending CellKind = "pending"
)

// QA glyphs.
const (
	GlyphPass = "✓"
	GlyphFail = "✖"
)

// Cell is one interpreted grid cell. ProcessID is set on QA cells that link to
// the QA screen of a process.
type Cell struct {
	Kind      CellKind `json:"kind"`
	Text      string   `json:"text,omitempty"`
	ProcessID *int64   `json:"processId,omitempty"`
}

var emptyCell = Cell{Kind: CellEmpty}

type extractor func(col ColumnDescriptor, row Row) (any, bool)

type formatter func(in *Interpreter, v any) (Cell, bool)

type cellRule struct {
	observation extractor
	process     extractor
	format      formatter
}

// cellRules is the dispatch table for every supported column type. qa and
// default are handled outside the table's extract/format pair but are listed
// so the set of types stays closed.
var cellRules = map[ColumnType]cellRule{
	ColumnParent:      {observation: fromOwn, process: fromOwn, format: formatRaw},
	ColumnNormal:      {observation: fromOwn, process: fromExposure, format: formatRaw},
	ColumnDate:        {observation: fromOwn, process: fromExposure, format: formatDate},
	ColumnDateProcess: {observation: fromOwn, process: fromOwn, format: formatDate},
	ColumnTime:        {observation: fixedOwn("dateobs"), process: fixedExposure("dateobs"), format: formatTime},
	ColumnDateMJD:     {observation: fixedOwn("datemjd"), process: fixedOwn("datemjd"), format: formatMJD},
	ColumnRuntime:     {observation: none, process: fixedOwn("runtime"), format: formatRaw},
	ColumnQA:          {},
	ColumnDefault:     {},
}

// Interpreter turns (column, row) pairs into formatted cells.
type Interpreter struct {
	location      *time.Location
	lastProcessed *int64
}

// InterpreterOption tunes an Interpreter.
type InterpreterOption func(*Interpreter)

// WithLocation sets the time zone dates and times are rendered in. Defaults to UTC.
func WithLocation(loc *time.Location) InterpreterOption {
	return func(in *Interpreter) {
		if loc != nil {
			in.location = loc
		}
	}
}

// WithLastProcessed marks the process the pipeline touched most recently; rows
// of that process render a pending indicator until a runtime is known.
func WithLastProcessed(id *int64) InterpreterOption {
	return func(in *Interpreter) {
		in.lastProcessed = id
	}
}

// NewInterpreter constructs an Interpreter.
func NewInterpreter(opts ...InterpreterOption) *Interpreter {
	in := &Interpreter{location: time.UTC}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Cell resolves a single cell. Missing fields render as empty cells.
func (in *Interpreter) Cell(col ColumnDescriptor, row Row) Cell {
	if row == nil {
		return emptyCell
	}
	switch col.Type {
	case ColumnQA:
		return interpretQA(row, in.lastProcessed)
	case ColumnDefault:
		return emptyCell
	}
	rule, ok := cellRules[col.Type]
	if !ok {
		return emptyCell
	}
	extract := rule.observation
	if row.Mode() == ModeProcess {
		extract = rule.process
	}
	v, ok := extract(col, row)
	if !ok {
		return emptyCell
	}
	cell, ok := rule.format(in, v)
	if !ok {
		return emptyCell
	}
	return cell
}

// Row interprets every column of a row, in column order.
func (in *Interpreter) Row(columns []ColumnDescriptor, row Row) []Cell {
	cells := make([]Cell, len(columns))
	for i, col := range columns {
		cells[i] = in.Cell(col, row)
	}
	return cells
}

func ownFields(row Row) Record {
	switch r := row.(type) {
	case ObservationRow:
		return r.Fields
	case ProcessRow:
		return r.Fields
	}
	return nil
}

func exposureFields(row Row) Record {
	switch r := row.(type) {
	case ObservationRow:
		return r.Fields
	case ProcessRow:
		return r.Exposure
	}
	return nil
}

func fromOwn(col ColumnDescriptor, row Row) (any, bool) {
	return ownFields(row).Lookup(col.Key(row.Mode()))
}

func fromExposure(col ColumnDescriptor, row Row) (any, bool) {
	return exposureFields(row).Lookup(exposureField(col.Key(row.Mode())))
}

func fixedOwn(field string) extractor {
	return func(_ ColumnDescriptor, row Row) (any, bool) {
		return ownFields(row).Lookup(field)
	}
}

func fixedExposure(field string) extractor {
	return func(_ ColumnDescriptor, row Row) (any, bool) {
		return exposureFields(row).Lookup(field)
	}
}

func none(ColumnDescriptor, Row) (any, bool) {
	return nil, false
}

func formatRaw(_ *Interpreter, v any) (Cell, bool) {
	var text string
	switch val := v.(type) {
	case string:
		text = val
	case float64:
		text = strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		text = strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		text = val.Format(time.RFC3339)
	default:
		text = fmt.Sprint(val)
	}
	return Cell{Kind: CellText, Text: text}, true
}

func formatDate(in *Interpreter, v any) (Cell, bool) {
	t, ok := asTime(v)
	if !ok {
		return Cell{}, false
	}
	return Cell{Kind: CellText, Text: t.In(in.location).Format("01/02/2006")}, true
}

func formatTime(in *Interpreter, v any) (Cell, bool) {
	t, ok := asTime(v)
	if !ok {
		return Cell{}, false
	}
	return Cell{Kind: CellText, Text: t.In(in.location).Format("15:04:05")}, true
}

func formatMJD(_ *Interpreter, v any) (Cell, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return Cell{}, false
		}
		f = parsed
	default:
		return Cell{}, false
	}
	return Cell{Kind: CellText, Text: strconv.FormatFloat(f, 'f', 3, 64)}, true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func asTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, !val.IsZero()
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return *val, !val.IsZero()
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
