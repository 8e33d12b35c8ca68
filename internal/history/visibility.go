package history

// ColumnVisibility tracks which schema columns are hidden. The hidden set is
// always a subset of the schema's column names.
type ColumnVisibility struct {
	schema Schema
	hidden map[string]struct{}
}

// NewColumnVisibility returns a model with every column shown.
func NewColumnVisibility(schema Schema) *ColumnVisibility {
	return &ColumnVisibility{schema: schema, hidden: make(map[string]struct{})}
}

// Toggle hides a shown column or shows a hidden one. Unknown names are ignored.
func (v *ColumnVisibility) Toggle(name string) {
	if !v.schema.Has(name) {
		return
	}
	if _, ok := v.hidden[name]; ok {
		delete(v.hidden, name)
		return
	}
	v.hidden[name] = struct{}{}
}

// ShowAll empties the hidden set.
func (v *ColumnVisibility) ShowAll() {
	v.hidden = make(map[string]struct{})
}

// HideAll hides every column declared in the schema.
func (v *ColumnVisibility) HideAll() {
	hidden := make(map[string]struct{}, v.schema.Len())
	for _, name := range v.schema.Names() {
		hidden[name] = struct{}{}
	}
	v.hidden = hidden
}

// IsHidden reports whether the named column is hidden.
func (v *ColumnVisibility) IsHidden(name string) bool {
	_, ok := v.hidden[name]
	return ok
}

// Hidden returns the hidden column names in schema declaration order.
func (v *ColumnVisibility) Hidden() []string {
	out := make([]string, 0, len(v.hidden))
	for _, name := range v.schema.Names() {
		if v.IsHidden(name) {
			out = append(out, name)
		}
	}
	return out
}

// Available returns the columns that apply to mode, hidden or not, in
// declaration order. This is the column picker's checklist.
func (v *ColumnVisibility) Available(mode GridMode) []ColumnDescriptor {
	columns := v.schema.Columns()
	out := make([]ColumnDescriptor, 0, len(columns))
	for _, col := range columns {
		if col.AppliesTo(mode) {
			out = append(out, col)
		}
	}
	return out
}

// Visible returns the columns that apply to mode and are not hidden, in
// declaration order.
func (v *ColumnVisibility) Visible(mode GridMode) []ColumnDescriptor {
	available := v.Available(mode)
	out := available[:0]
	for _, col := range available {
		if !v.IsHidden(col.Name) {
			out = append(out, col)
		}
	}
	return out
}

// Clone returns an independent copy.
func (v *ColumnVisibility) Clone() *ColumnVisibility {
	hidden := make(map[string]struct{}, len(v.hidden))
	for name := range v.hidden {
		hidden[name] = struct{}{}
	}
	return &ColumnVisibility{schema: v.schema, hidden: hidden}
}
