package history

import (
	"errors"
	"fmt"
)

var (
	// ErrInputRejected marks malformed input. No state changes and no fetch is issued.
	ErrInputRejected = errors.New("history: input rejected")
	// ErrFetchFailed marks a transport or query failure of the data source.
	ErrFetchFailed = errors.New("history: fetch failed")
	// ErrStaleResponse marks a response superseded by a later request.
	ErrStaleResponse = errors.New("history: stale response")
	// ErrUnknownRow marks a row index outside the current row set.
	ErrUnknownRow = errors.New("history: unknown row")
	// ErrClosed is returned by operations on an unmounted grid.
	ErrClosed = errors.New("history: grid closed")
)

// FetchError wraps a data source failure with the request it belongs to.
type FetchError struct {
	Seq uint64
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("history: fetch %d failed: %v", e.Seq, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Err}
}
