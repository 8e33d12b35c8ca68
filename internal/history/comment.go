package history

// CommentDialog is the comment modal of a grid: closed, or open on one process.
// Comments are read-only unless the grid is a processing history.
type CommentDialog struct {
	mode      GridMode
	open      bool
	processID int64
}

// CommentDialogState is a snapshot of the dialog.
type CommentDialogState struct {
	Open      bool  `json:"open"`
	ProcessID int64 `json:"processId,omitempty"`
	ReadOnly  bool  `json:"readOnly"`
}

// NewCommentDialog returns a closed dialog for a grid of the given mode.
func NewCommentDialog(mode GridMode) *CommentDialog {
	return &CommentDialog{mode: mode}
}

// Open targets the dialog at a process.
func (d *CommentDialog) Open(processID int64) CommentDialogState {
	d.open = true
	d.processID = processID
	return d.State()
}

// Close returns the dialog to the closed state.
func (d *CommentDialog) Close() CommentDialogState {
	d.open = false
	d.processID = 0
	return d.State()
}

// State returns the current snapshot.
func (d *CommentDialog) State() CommentDialogState {
	if !d.open {
		return CommentDialogState{}
	}
	return CommentDialogState{
		Open:      true,
		ProcessID: d.processID,
		ReadOnly:  d.mode != ModeProcess,
	}
}

// Writable reports whether comments may be added to the targeted process.
func (d *CommentDialog) Writable() (int64, bool) {
	if !d.open || d.mode != ModeProcess {
		return 0, false
	}
	return d.processID, true
}
