package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FetchResult is one page of rows and the total number of rows matching the query.
type FetchResult struct {
	Rows  []Row
	Total int
}

// Fetcher is the remote history data source.
type Fetcher interface {
	FetchHistory(ctx context.Context, req FetchRequest) (FetchResult, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req FetchRequest) (FetchResult, error)

// FetchHistory implements Fetcher.
func (f FetcherFunc) FetchHistory(ctx context.Context, req FetchRequest) (FetchResult, error) {
	return f(ctx, req)
}

// RowSelector receives row selections.
type RowSelector interface {
	RowsSelected(indices []int)
}

// PageSizeStore receives page size preference changes.
type PageSizeStore interface {
	PageSizeChanged(size int)
}

// Navigator resolves the links a row opens: the QA screen of a process and the
// CCD image preview of an exposure.
type Navigator interface {
	NavigateToQA(ctx context.Context, processID int64) (string, error)
	OpenImagePreview(ctx context.Context, night string, exposureID int64) (string, error)
}

// Dispatcher runs fetch tasks off the caller's goroutine.
type Dispatcher interface {
	Dispatch(task func(ctx context.Context)) error
}

// FetchOutcome classifies how a fetch settled.
type FetchOutcome string

const (
	FetchApplied   FetchOutcome = "applied"
	FetchStale     FetchOutcome = "stale"
	FetchFailed    FetchOutcome = "failed"
	FetchAbandoned FetchOutcome = "abandoned"
)

// FetchObserver is notified of every settled fetch.
type FetchObserver interface {
	ObserveFetch(mode GridMode, outcome FetchOutcome, duration time.Duration)
}

type goDispatcher struct{}

func (goDispatcher) Dispatch(task func(ctx context.Context)) error {
	go task(context.Background())
	return nil
}

// Config wires a Controller to its collaborators. Only Mode and Fetcher are required.
type Config struct {
	ID           string
	Mode         GridMode
	Schema       Schema
	PageSize     int
	DateRange    DateRange
	FetchTimeout time.Duration
	Location     *time.Location

	Fetcher    Fetcher
	Selector   RowSelector
	PageSizes  PageSizeStore
	Navigator  Navigator
	Dispatcher Dispatcher
	Observer   FetchObserver
	Logger     *zap.Logger
}

// Controller owns the query state and column visibility of one mounted grid.
// Every state-changing operation issues exactly one fetch; only the response
// to the most recently issued fetch is ever applied.
type Controller struct {
	id           string
	mode         GridMode
	schema       Schema
	location     *time.Location
	fetchTimeout time.Duration

	fetcher    Fetcher
	selector   RowSelector
	pageSizes  PageSizeStore
	navigator  Navigator
	dispatcher Dispatcher
	observer   FetchObserver
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         QueryState
	visibility    *ColumnVisibility
	comments      *CommentDialog
	rows          []Row
	loaded        bool
	lastErr       error
	lastProcessed *int64
	seq           uint64
	inflight      map[uint64]*Pending
	closed        bool
}

// NewController mounts a grid with the mode's default query state.
func NewController(ctx context.Context, cfg Config) (*Controller, error) {
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown grid mode %q", ErrInputRejected, cfg.Mode)
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("history: fetcher required")
	}
	if cfg.Schema.Len() == 0 {
		cfg.Schema = DefaultSchema()
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = goDispatcher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithCancel(ctx)

	return &Controller{
		id:           cfg.ID,
		mode:         cfg.Mode,
		schema:       cfg.Schema,
		location:     cfg.Location,
		fetchTimeout: cfg.FetchTimeout,
		fetcher:      cfg.Fetcher,
		selector:     cfg.Selector,
		pageSizes:    cfg.PageSizes,
		navigator:    cfg.Navigator,
		dispatcher:   cfg.Dispatcher,
		observer:     cfg.Observer,
		logger:       cfg.Logger.With(zap.String("grid_id", cfg.ID), zap.String("mode", string(cfg.Mode))),
		ctx:          cctx,
		cancel:       cancel,
		state:        NewQueryState(cfg.Mode, cfg.PageSize, cfg.DateRange),
		visibility:   NewColumnVisibility(cfg.Schema),
		comments:     NewCommentDialog(cfg.Mode),
		inflight:     make(map[uint64]*Pending),
	}, nil
}

// Mode returns the grid mode.
func (c *Controller) Mode() GridMode {
	return c.mode
}

// SetSort sorts by field, flipping the direction when field is already the sort field.
func (c *Controller) SetSort(field string) (*Pending, error) {
	return c.dispatch(SortBy{Field: field})
}

// SetFilter replaces the filter text and returns to the first page.
func (c *Controller) SetFilter(text string) (*Pending, error) {
	return c.dispatch(Filter{Text: text})
}

// ChangePage moves to a zero-based page.
func (c *Controller) ChangePage(index int) (*Pending, error) {
	return c.dispatch(ChangePage{Index: index})
}

// ChangePageSize switches the page size and forwards it to the preference store.
func (c *Controller) ChangePageSize(size int) (*Pending, error) {
	p, err := c.dispatch(ChangePageSize{Size: size})
	if err != nil {
		return nil, err
	}
	if c.pageSizes != nil {
		c.pageSizes.PageSizeChanged(size)
	}
	return p, nil
}

// SetDateRange parses and applies a YYYY-MM-DD date range from the date picker.
// The days are read in the grid's location.
func (c *Controller) SetDateRange(start, end string) (*Pending, error) {
	r, err := ParseDateRangeIn(start, end, c.location)
	if err != nil {
		return nil, err
	}
	return c.dispatch(SetDates{Range: r})
}

// SetDates applies an already parsed date range.
func (c *Controller) SetDates(r DateRange) (*Pending, error) {
	return c.dispatch(SetDates{Range: r})
}

// Refresh re-issues the current query.
func (c *Controller) Refresh() (*Pending, error) {
	return c.dispatch(nil)
}

// ToggleColumn shows or hides a column. No fetch is issued.
func (c *Controller) ToggleColumn(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visibility.Toggle(name)
}

// ShowAllColumns shows every column. No fetch is issued.
func (c *Controller) ShowAllColumns() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visibility.ShowAll()
}

// HideAllColumns hides every column. No fetch is issued.
func (c *Controller) HideAllColumns() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visibility.HideAll()
}

// VisibleColumns returns the rendered column sequence.
func (c *Controller) VisibleColumns() []ColumnDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visibility.Visible(c.mode)
}

// SelectRows forwards a row selection to the selector.
func (c *Controller) SelectRows(indices ...int) error {
	c.mu.Lock()
	for _, i := range indices {
		if i < 0 || i >= len(c.rows) {
			c.mu.Unlock()
			return fmt.Errorf("%w: %w: row %d", ErrInputRejected, ErrUnknownRow, i)
		}
	}
	c.mu.Unlock()
	if c.selector != nil {
		c.selector.RowsSelected(append([]int(nil), indices...))
	}
	return nil
}

// SetLastProcessed marks the process most recently touched by the pipeline.
func (c *Controller) SetLastProcessed(id *int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == nil {
		c.lastProcessed = nil
		return
	}
	v := *id
	c.lastProcessed = &v
}

// OpenComments opens the comment dialog on a process.
func (c *Controller) OpenComments(processID int64) CommentDialogState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.comments.Open(processID)
}

// CloseComments closes the comment dialog.
func (c *Controller) CloseComments() CommentDialogState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.comments.Close()
}

// Comments returns the comment dialog state.
func (c *Controller) Comments() CommentDialogState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.comments.State()
}

// CommentTarget returns the process new comments are attached to, if the
// dialog is open and writable.
func (c *Controller) CommentTarget() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.comments.Writable()
}

// Row returns the row at index of the current row set.
func (c *Controller) Row(index int) (Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.rows) {
		return nil, fmt.Errorf("%w: %w: row %d", ErrInputRejected, ErrUnknownRow, index)
	}
	return c.rows[index], nil
}

// NavigateToQA resolves the QA link of the process behind a row.
func (c *Controller) NavigateToQA(ctx context.Context, index int) (string, error) {
	row, err := c.Row(index)
	if err != nil {
		return "", err
	}
	processID, ok := row.ProcessID()
	if !ok {
		return "", fmt.Errorf("%w: row %d has no process", ErrInputRejected, index)
	}
	if c.navigator == nil {
		return "", errors.New("history: no navigator configured")
	}
	return c.navigator.NavigateToQA(ctx, processID)
}

// OpenImagePreview resolves the CCD preview link of the exposure behind a row.
func (c *Controller) OpenImagePreview(ctx context.Context, index int) (string, error) {
	row, err := c.Row(index)
	if err != nil {
		return "", err
	}
	night, exposureID, ok := row.Preview()
	if !ok {
		return "", fmt.Errorf("%w: row %d has no exposure night", ErrInputRejected, index)
	}
	if c.navigator == nil {
		return "", errors.New("history: no navigator configured")
	}
	return c.navigator.OpenImagePreview(ctx, night, exposureID)
}

// State returns a snapshot of the query state.
func (c *Controller) State() QueryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure of the latest fetch, if it failed.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close unmounts the grid. Outstanding fetches are abandoned.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.inflight
	c.inflight = nil
	c.mu.Unlock()

	c.cancel()
	for _, p := range pending {
		p.finish(ErrClosed, false)
	}
}

// dispatch reduces a (nil re-issues the current query) and issues the fetch
// for the resulting state. The dispatcher is called without holding the lock.
func (c *Controller) dispatch(a Action) (*Pending, error) {
	if a != nil {
		if err := Validate(a); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if a != nil {
		c.state = Reduce(c.state, a)
	}
	c.seq++
	req := c.state.Request(c.seq, c.mode)
	p := newPending(req.Seq)
	c.inflight[req.Seq] = p
	c.mu.Unlock()

	err := c.dispatcher.Dispatch(func(ctx context.Context) {
		c.run(ctx, req, p)
	})
	if err != nil {
		fetchErr := &FetchError{Seq: req.Seq, Err: err}
		c.mu.Lock()
		if c.inflight != nil {
			delete(c.inflight, req.Seq)
		}
		if req.Seq == c.seq {
			c.lastErr = fetchErr
		}
		c.mu.Unlock()
		c.logger.Warn("history fetch not dispatched", zap.Uint64("seq", req.Seq), zap.Error(err))
		p.finish(fetchErr, false)
	}
	return p, nil
}

func (c *Controller) run(ctx context.Context, req FetchRequest, p *Pending) {
	fctx, cancel := context.WithTimeout(c.ctx, c.fetchTimeout)
	defer cancel()
	if ctx != nil {
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
	}

	start := time.Now()
	res, err := c.fetcher.FetchHistory(fctx, req)
	c.settle(req, p, res, err, time.Since(start))
}

func (c *Controller) settle(req FetchRequest, p *Pending, res FetchResult, err error, took time.Duration) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.observe(FetchAbandoned, took)
		return
	}
	delete(c.inflight, req.Seq)

	if req.Seq != c.seq {
		c.mu.Unlock()
		c.logger.Debug("stale history response discarded", zap.Uint64("seq", req.Seq), zap.Duration("took", took))
		c.observe(FetchStale, took)
		p.finish(nil, true)
		return
	}

	if err != nil {
		fetchErr := &FetchError{Seq: req.Seq, Err: err}
		c.lastErr = fetchErr
		c.mu.Unlock()
		c.logger.Warn("history fetch failed", zap.Uint64("seq", req.Seq), zap.Duration("took", took), zap.Error(err))
		c.observe(FetchFailed, took)
		p.finish(fetchErr, false)
		return
	}

	c.rows = res.Rows
	c.state = Reduce(c.state, Loaded{Total: res.Total})
	c.loaded = true
	c.lastErr = nil
	c.mu.Unlock()
	c.observe(FetchApplied, took)
	p.finish(nil, false)
}

func (c *Controller) observe(outcome FetchOutcome, took time.Duration) {
	if c.observer != nil {
		c.observer.ObserveFetch(c.mode, outcome, took)
	}
}

// Pending tracks one issued fetch.
type Pending struct {
	seq   uint64
	done  chan struct{}
	once  sync.Once
	err   error
	stale bool
}

func newPending(seq uint64) *Pending {
	return &Pending{seq: seq, done: make(chan struct{})}
}

func (p *Pending) finish(err error, stale bool) {
	p.once.Do(func() {
		p.err = err
		p.stale = stale
		close(p.done)
	})
}

// Seq is the request sequence number.
func (p *Pending) Seq() uint64 {
	return p.seq
}

// Done is closed once the fetch has settled.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the fetch settles. It returns the fetch failure, if any.
// A superseded response is not an error.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return p.err
	}
}

// Stale reports whether the response was discarded as superseded. Only
// meaningful after Done is closed.
func (p *Pending) Stale() bool {
	select {
	case <-p.done:
		return p.stale
	default:
		return false
	}
}
