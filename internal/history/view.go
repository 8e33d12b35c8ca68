package history

// ColumnOption is one entry of the column picker checklist.
type ColumnOption struct {
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
}

// RenderedRow is one interpreted row. Highlight marks the row of the process
// the pipeline touched most recently.
type RenderedRow struct {
	Index     int    `json:"index"`
	ProcessID *int64 `json:"processId,omitempty"`
	Highlight bool   `json:"highlight"`
	Cells     []Cell `json:"cells"`
}

// View is everything the container screen needs to draw a grid.
type View struct {
	Mode          GridMode           `json:"mode"`
	Columns       []ColumnDescriptor `json:"columns"`
	Picker        []ColumnOption     `json:"picker"`
	Rows          []RenderedRow      `json:"rows"`
	State         QueryState         `json:"state"`
	Comments      CommentDialogState `json:"comments"`
	Loaded        bool               `json:"loaded"`
	LastProcessed *int64             `json:"lastProcessedId,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// View renders the current row set against the visible columns.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	columns := c.visibility.Visible(c.mode)
	available := c.visibility.Available(c.mode)
	picker := make([]ColumnOption, len(available))
	for i, col := range available {
		picker[i] = ColumnOption{Name: col.Name, Visible: !c.visibility.IsHidden(col.Name)}
	}

	in := NewInterpreter(WithLocation(c.location), WithLastProcessed(c.lastProcessed))
	rows := make([]RenderedRow, len(c.rows))
	for i, row := range c.rows {
		rendered := RenderedRow{Index: i, Cells: in.Row(columns, row)}
		if id, ok := row.ProcessID(); ok {
			pid := id
			rendered.ProcessID = &pid
			rendered.Highlight = c.lastProcessed != nil && *c.lastProcessed == id
		}
		rows[i] = rendered
	}

	view := View{
		Mode:     c.mode,
		Columns:  columns,
		Picker:   picker,
		Rows:     rows,
		State:    c.state,
		Comments: c.comments.State(),
		Loaded:   c.loaded,
	}
	if c.lastProcessed != nil {
		id := *c.lastProcessed
		view.LastProcessed = &id
	}
	if c.lastErr != nil {
		view.Error = c.lastErr.Error()
	}
	return view
}
