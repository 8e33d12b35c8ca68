package history

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date layout accepted for date ranges.
const DateLayout = "2006-01-02"

// Page bounds. Their product keeps every query offset well inside int.
const (
	MaxPageIndex = 1_000_000
	MaxPageSize  = 10_000
)

// DateRange bounds a history query by observation date. Both ends are
// inclusive calendar days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether no range has been set.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// ParseDateRange validates a pair of YYYY-MM-DD dates as UTC days. Malformed
// input or an end before the start is rejected with ErrInputRejected.
func ParseDateRange(start, end string) (DateRange, error) {
	return ParseDateRangeIn(start, end, time.UTC)
}

// ParseDateRangeIn is ParseDateRange with both days starting at midnight in loc.
func ParseDateRangeIn(start, end string, loc *time.Location) (DateRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	s, err := time.ParseInLocation(DateLayout, strings.TrimSpace(start), loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: start date %q", ErrInputRejected, start)
	}
	e, err := time.ParseInLocation(DateLayout, strings.TrimSpace(end), loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: end date %q", ErrInputRejected, end)
	}
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("%w: end date before start date", ErrInputRejected)
	}
	return DateRange{Start: s, End: e}, nil
}

// QueryState is the immutable query description of a grid. It only changes
// through Reduce.
type QueryState struct {
	SortField     string    `json:"sortField"`
	SortAscending bool      `json:"sortAscending"`
	FilterText    string    `json:"filterText"`
	PageIndex     int       `json:"pageIndex"`
	PageSize      int       `json:"pageSize"`
	TotalRows     int       `json:"totalRows"`
	DateRange     DateRange `json:"dateRange"`
}

// NewQueryState returns the mount-time defaults for mode: the mode's default
// sort field, descending, no filter, first page.
func NewQueryState(mode GridMode, pageSize int, dates DateRange) QueryState {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return QueryState{
		SortField: mode.DefaultSortField(),
		PageSize:  pageSize,
		DateRange: dates,
	}
}

// DefaultPageSize is used when no page size preference is known.
const DefaultPageSize = 25

// Order renders the sort as "field" for ascending or "-field" for descending.
func (s QueryState) Order() string {
	if s.SortAscending {
		return s.SortField
	}
	return "-" + s.SortField
}

// Offset is the absolute row offset of the current page.
func (s QueryState) Offset() int {
	return s.PageIndex * s.PageSize
}

// Action is a user or collaborator event that changes QueryState.
type Action interface {
	apply(QueryState) QueryState
}

// SortBy flips the direction when the field is already the sort field,
// otherwise switches to the field sorted descending. The page is kept.
type SortBy struct{ Field string }

func (a SortBy) apply(s QueryState) QueryState {
	if a.Field == s.SortField {
		s.SortAscending = !s.SortAscending
		return s
	}
	s.SortField = a.Field
	s.SortAscending = false
	return s
}

// Filter replaces the filter text and returns to the first page.
type Filter struct{ Text string }

func (a Filter) apply(s QueryState) QueryState {
	s.FilterText = a.Text
	s.PageIndex = 0
	return s
}

// ChangePage moves to a zero-based page index.
type ChangePage struct{ Index int }

func (a ChangePage) apply(s QueryState) QueryState {
	s.PageIndex = a.Index
	return s
}

// ChangePageSize switches the page size, keeping the first row of the current
// page on the new page.
type ChangePageSize struct{ Size int }

func (a ChangePageSize) apply(s QueryState) QueryState {
	offset := s.Offset()
	s.PageSize = a.Size
	s.PageIndex = offset / a.Size
	return s
}

// SetDates replaces the date range; nothing else changes.
type SetDates struct{ Range DateRange }

func (a SetDates) apply(s QueryState) QueryState {
	s.DateRange = a.Range
	return s
}

// Loaded records the total row count reported by the data source.
type Loaded struct{ Total int }

func (a Loaded) apply(s QueryState) QueryState {
	s.TotalRows = a.Total
	return s
}

// Validate rejects actions that would put the state out of its domain.
func Validate(a Action) error {
	switch act := a.(type) {
	case SortBy:
		if strings.TrimSpace(act.Field) == "" {
			return fmt.Errorf("%w: empty sort field", ErrInputRejected)
		}
	case ChangePage:
		if act.Index < 0 {
			return fmt.Errorf("%w: negative page index %d", ErrInputRejected, act.Index)
		}
		if act.Index > MaxPageIndex {
			return fmt.Errorf("%w: page index %d above %d", ErrInputRejected, act.Index, MaxPageIndex)
		}
	case ChangePageSize:
		if act.Size <= 0 {
			return fmt.Errorf("%w: page size must be positive", ErrInputRejected)
		}
		if act.Size > MaxPageSize {
			return fmt.Errorf("%w: page size %d above %d", ErrInputRejected, act.Size, MaxPageSize)
		}
	case SetDates:
		if act.Range.End.Before(act.Range.Start) {
			return fmt.Errorf("%w: end date before start date", ErrInputRejected)
		}
	case Loaded:
		if act.Total < 0 {
			return fmt.Errorf("%w: negative total", ErrInputRejected)
		}
	case nil:
		return fmt.Errorf("%w: nil action", ErrInputRejected)
	}
	return nil
}

// Reduce applies an action to a state and returns the new state. Invalid
// actions leave the state unchanged.
func Reduce(s QueryState, a Action) QueryState {
	if Validate(a) != nil {
		return s
	}
	return a.apply(s)
}

// FetchRequest is the query handed to the data source.
type FetchRequest struct {
	Seq       uint64
	Mode      GridMode
	StartDate time.Time
	EndDate   time.Time
	Order     string
	Offset    int
	Limit     int
	Filter    string
}

// Request builds the fetch request for the state.
func (s QueryState) Request(seq uint64, mode GridMode) FetchRequest {
	return FetchRequest{
		Seq:       seq,
		Mode:      mode,
		StartDate: s.DateRange.Start,
		EndDate:   s.DateRange.End,
		Order:     s.Order(),
		Offset:    s.Offset(),
		Limit:     s.PageSize,
		Filter:    s.FilterText,
	}
}
