// Package history implements the exposure/process history explorer: the column
// schema, the per-row cell interpreter, column visibility, and the grid
// controller that turns user actions into paged fetches.
package history

import "strings"

// GridMode selects the row shape and the columns that apply to a grid.
type GridMode string

const (
	ModeObservation GridMode = "observation"
	ModeProcess     GridMode = "process"
)

// Valid reports whether the mode is one of the supported grid modes.
func (m GridMode) Valid() bool {
	return m == ModeObservation || m == ModeProcess
}

// DefaultSortField is the sort field a freshly mounted grid starts with.
func (m GridMode) DefaultSortField() string {
	if m == ModeProcess {
		return "exposure__dateobs"
	}
	return "dateobs"
}

// ColumnType drives how a cell is extracted and formatted.
type ColumnType string

const (
	ColumnParent      ColumnType = "parent"
	ColumnNormal      ColumnType = "normal"
	ColumnDate        ColumnType = "date"
	ColumnDateProcess ColumnType = "dateprocess"
	ColumnTime        ColumnType = "time"
	ColumnDateMJD     ColumnType = "datemjd"
	ColumnRuntime     ColumnType = "runtime"
	ColumnQA          ColumnType = "qa"
	ColumnDefault     ColumnType = "default"
)

// ParseColumnType maps a raw type name onto a ColumnType. Unknown names map to
// ColumnDefault, which renders an empty cell.
func ParseColumnType(raw string) ColumnType {
	t := ColumnType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := cellRules[t]; ok {
		return t
	}
	return ColumnDefault
}

// ColumnDescriptor describes one grid column. Name is both the display label
// and the identity key. A nil ExposureKey excludes the column from
// observation grids.
type ColumnDescriptor struct {
	Name        string     `json:"name"`
	Type        ColumnType `json:"type"`
	ProcessKey  *string    `json:"processKey"`
	ExposureKey *string    `json:"exposureKey"`
}

// AppliesTo reports whether the column is rendered at all in the given mode.
func (c ColumnDescriptor) AppliesTo(mode GridMode) bool {
	if mode == ModeObservation {
		return c.ExposureKey != nil
	}
	return true
}

// Key returns the field path used by the column in the given mode.
func (c ColumnDescriptor) Key(mode GridMode) string {
	var key *string
	if mode == ModeProcess {
		key = c.ProcessKey
	} else {
		key = c.ExposureKey
	}
	if key == nil {
		return ""
	}
	return *key
}

// Schema is an ordered, immutable list of column descriptors.
type Schema struct {
	columns []ColumnDescriptor
	index   map[string]int
}

// NewSchema builds a schema. Later duplicates of a name are dropped so names
// stay unique.
func NewSchema(columns ...ColumnDescriptor) Schema {
	s := Schema{
		columns: make([]ColumnDescriptor, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for _, col := range columns {
		if _, dup := s.index[col.Name]; dup {
			continue
		}
		if _, ok := cellRules[col.Type]; !ok {
			col.Type = ColumnDefault
		}
		s.index[col.Name] = len(s.columns)
		s.columns = append(s.columns, col)
	}
	return s
}

// Columns returns a copy of the declared columns in declaration order.
func (s Schema) Columns() []ColumnDescriptor {
	out := make([]ColumnDescriptor, len(s.columns))
	copy(out, s.columns)
	return out
}

// Lookup returns the descriptor with the given name.
func (s Schema) Lookup(name string) (ColumnDescriptor, bool) {
	i, ok := s.index[name]
	if !ok {
		return ColumnDescriptor{}, false
	}
	return s.columns[i], true
}

// Has reports whether a column with the given name is declared.
func (s Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Names returns every declared column name in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s.columns))
	for i, col := range s.columns {
		names[i] = col.Name
	}
	return names
}

// Len returns the number of declared columns.
func (s Schema) Len() int {
	return len(s.columns)
}

func key(k string) *string {
	return &k
}

// DefaultSchema is the column set of the exposure and processing history screens.
func DefaultSchema() Schema {
	return NewSchema(
		ColumnDescriptor{Name: "Process ID", Type: ColumnParent, ProcessKey: key("pk"), ExposureKey: nil},
		ColumnDescriptor{Name: "Exp ID", Type: ColumnNormal, ProcessKey: key("exposure__exposure_id"), ExposureKey: key("exposure_id")},
		ColumnDescriptor{Name: "Tile ID", Type: ColumnNormal, ProcessKey: key("exposure__tile"), ExposureKey: key("tile")},
		ColumnDescriptor{Name: "OBS Date", Type: ColumnDate, ProcessKey: key("exposure__dateobs"), ExposureKey: key("dateobs")},
		ColumnDescriptor{Name: "Time", Type: ColumnTime, ProcessKey: key("exposure__dateobs"), ExposureKey: key("dateobs")},
		ColumnDescriptor{Name: "MJD", Type: ColumnDateMJD, ProcessKey: key("datemjd"), ExposureKey: key("datemjd")},
		ColumnDescriptor{Name: "Night", Type: ColumnNormal, ProcessKey: key("exposure__night"), ExposureKey: key("night")},
		ColumnDescriptor{Name: "Program", Type: ColumnNormal, ProcessKey: key("exposure__program"), ExposureKey: key("program")},
		ColumnDescriptor{Name: "Flavor", Type: ColumnNormal, ProcessKey: key("exposure__flavor"), ExposureKey: key("flavor")},
		ColumnDescriptor{Name: "Exp Time(s)", Type: ColumnNormal, ProcessKey: key("exposure__exptime"), ExposureKey: key("exptime")},
		ColumnDescriptor{Name: "RA (deg)", Type: ColumnNormal, ProcessKey: key("exposure__telra"), ExposureKey: key("telra")},
		ColumnDescriptor{Name: "Dec (deg)", Type: ColumnNormal, ProcessKey: key("exposure__teldec"), ExposureKey: key("teldec")},
		ColumnDescriptor{Name: "Airmass", Type: ColumnNormal, ProcessKey: key("exposure__airmass"), ExposureKey: key("airmass")},
		ColumnDescriptor{Name: "Process Date", Type: ColumnDateProcess, ProcessKey: key("start"), ExposureKey: nil},
		ColumnDescriptor{Name: "Runtime", Type: ColumnRuntime, ProcessKey: key("runtime"), ExposureKey: nil},
		ColumnDescriptor{Name: "QA", Type: ColumnQA, ProcessKey: key("qa_tests"), ExposureKey: key("qa_tests")},
		ColumnDescriptor{Name: "Comments", Type: ColumnDefault, ProcessKey: key("pk"), ExposureKey: key("last_exposure_process_id")},
	)
}
