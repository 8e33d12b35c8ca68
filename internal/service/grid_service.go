package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/qlf-monitor-api/internal/history"
	"github.com/noah-isme/qlf-monitor-api/internal/models"
	appErrors "github.com/noah-isme/qlf-monitor-api/pkg/errors"
	"github.com/noah-isme/qlf-monitor-api/pkg/middleware/requestid"
)

type historySource interface {
	history.Fetcher
	LatestProcessID(ctx context.Context) (*int64, error)
	Invalidate(ctx context.Context, mode history.GridMode) error
}

type pageSizePreferences interface {
	PageSize(ctx context.Context, userID string, mode history.GridMode) (int, error)
	PageSizeStore(userID string, mode history.GridMode) history.PageSizeStore
}

type commentBook interface {
	List(ctx context.Context, processID int64) ([]models.ProcessComment, error)
	Create(ctx context.Context, processID int64, req models.CreateCommentRequest, claims *models.JWTClaims) (*models.ProcessComment, error)
}

// GridConfig tunes mounted grids.
type GridConfig struct {
	DefaultPageSize  int
	MaxPageSize      int
	DefaultRangeDays int
	SessionTTL       time.Duration
	FetchTimeout     time.Duration
	Location         *time.Location
	Schema           history.Schema
}

// GridView is the rendered state of a mounted grid.
type GridView struct {
	ID string `json:"id"`
	history.View
	Selection []int `json:"selection"`
}

// CommentThread is the comment dialog of a grid with the comments of its
// target process.
type CommentThread struct {
	Dialog   history.CommentDialogState `json:"dialog"`
	Comments []models.ProcessComment   `json:"comments"`
}

// GridDependencies are the collaborators shared by every mounted grid.
type GridDependencies struct {
	Source      historySource
	Preferences pageSizePreferences
	Navigator   history.Navigator
	Comments    commentBook
	Dispatcher  history.Dispatcher
	Metrics     *MetricsService
}

// GridService mounts history grids server-side. Each grid is a
// history.Controller owned by the user that mounted it.
type GridService struct {
	deps   GridDependencies
	cfg    GridConfig
	logger *zap.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*gridSession
}

type gridSession struct {
	id        string
	owner     string
	ctrl      *history.Controller
	selection *selectionStore
	lastUsed  time.Time
}

// NewGridService constructs a GridService.
func NewGridService(deps GridDependencies, cfg GridConfig, logger *zap.Logger) *GridService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = history.DefaultPageSize
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = 500
	}
	if cfg.DefaultRangeDays <= 0 {
		cfg.DefaultRangeDays = 7
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Schema.Len() == 0 {
		cfg.Schema = history.DefaultSchema()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GridService{
		deps:     deps,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*gridSession),
	}
}

// Mount creates a grid for the caller and loads its first page over the
// default date range. A failed first fetch still mounts the grid; the view
// carries the error and the client may refresh.
func (s *GridService) Mount(ctx context.Context, claims *models.JWTClaims, mode history.GridMode) (*GridView, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !mode.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "mode must be observation or process")
	}

	pageSize := s.cfg.DefaultPageSize
	if s.deps.Preferences != nil {
		stored, err := s.deps.Preferences.PageSize(ctx, claims.UserID, mode)
		if err != nil {
			s.logger.Warn("page size preference unavailable", zap.String("user_id", claims.UserID), zap.Error(err))
		} else if stored > 0 && stored <= s.cfg.MaxPageSize {
			pageSize = stored
		}
	}

	id := uuid.NewString()
	selection := &selectionStore{}
	cfg := history.Config{
		ID:           id,
		Mode:         mode,
		Schema:       s.cfg.Schema,
		PageSize:     pageSize,
		DateRange:    s.defaultRange(),
		FetchTimeout: s.cfg.FetchTimeout,
		Location:     s.cfg.Location,
		Fetcher:      s.deps.Source,
		Selector:     selection,
		Navigator:    s.deps.Navigator,
		Dispatcher:   s.deps.Dispatcher,
		Logger:       s.logger,
	}
	if s.deps.Preferences != nil {
		cfg.PageSizes = s.deps.Preferences.PageSizeStore(claims.UserID, mode)
	}
	if s.deps.Metrics != nil {
		cfg.Observer = s.deps.Metrics
	}
	ctrl, err := history.NewController(s.ctx, cfg)
	if err != nil {
		return nil, translateGridError(err)
	}

	session := &gridSession{id: id, owner: claims.UserID, ctrl: ctrl, selection: selection, lastUsed: s.now()}
	s.mu.Lock()
	s.sessions[id] = session
	active := len(s.sessions)
	s.mu.Unlock()
	s.deps.Metrics.SetActiveGrids(active)
	s.logger.Info("history grid mounted",
		zap.String("grid_id", id),
		zap.String("mode", string(mode)),
		zap.String("user_id", claims.UserID),
		zap.String("request_id", requestid.FromContext(ctx)))

	if err := s.fetch(ctx, session, func() (*history.Pending, error) { return ctrl.Refresh() }); err != nil {
		s.logger.Warn("initial history fetch failed", zap.String("grid_id", id), zap.Error(err))
	}
	return session.view(), nil
}

// View returns the current view of a grid.
func (s *GridService) View(_ context.Context, claims *models.JWTClaims, id string) (*GridView, error) {
	session, err := s.session(claims, id)
	if err != nil {
		return nil, err
	}
	return session.view(), nil
}

// Unmount closes a grid. Its outstanding fetches are abandoned.
func (s *GridService) Unmount(_ context.Context, claims *models.JWTClaims, id string) error {
	session, err := s.session(claims, id)
	if err != nil {
		return err
	}
	s.remove(session)
	return nil
}

// Sort sorts the grid by field, flipping the direction on a repeated field.
func (s *GridService) Sort(ctx context.Context, claims *models.JWTClaims, id, field string) (*GridView, error) {
	return s.apply(ctx, claims, id, func(c *history.Controller) (*history.Pending, error) { return c.SetSort(field) })
}

// Filter replaces the filter text.
func (s *GridService) Filter(ctx context.Context, claims *models.JWTClaims, id, text string) (*GridView, error) {
	return s.apply(ctx, claims, id, func(c *history.Controller) (*history.Pending, error) { return c.SetFilter(text) })
}

// Page moves the grid to a zero-based page.
func (s *GridService) Page(ctx context.Context, claims *models.JWTClaims, id string, index int) (*GridView, error) {
	return s.apply(ctx, claims, id, func(c *history.Controller) (*history.Pending, error) { return c.ChangePage(index) })
}

// PageSize changes the page size and stores it as the caller's preference.
func (s *GridService) PageSize(ctx context.Context, claims *models.JWTClaims, id string, size int) (*GridView, error) {
	if size > s.cfg.MaxPageSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, "page size exceeds maximum")
	}
	return s.apply(ctx, claims, id, func(c *history.Controller) (*history.Pending, error) { return c.ChangePageSize(size) })
}

// DateRange applies a YYYY-MM-DD date range.
func (s *GridService) DateRange(ctx context.Context, claims *models.JWTClaims, id, start, end string) (*GridView, error) {
	return s.apply(ctx, claims, id, func(c *history.Controller) (*history.Pending, error) { return c.SetDateRange(start, end) })
}

// Refresh re-issues the current query. Cached pages of the grid's mode are
// dropped first so the reload reaches the database.
func (s *GridService) Refresh(ctx context.Context, claims *models.JWTClaims, id string) (*GridView, error) {
	return s.apply(ctx, claims, id, func(c *history.Controller) (*history.Pending, error) {
		if err := s.deps.Source.Invalidate(ctx, c.Mode()); err != nil {
			s.logger.Warn("history cache not invalidated", zap.String("grid_id", id), zap.Error(err))
		}
		return c.Refresh()
	})
}

// ToggleColumn shows or hides one column.
func (s *GridService) ToggleColumn(_ context.Context, claims *models.JWTClaims, id, name string) (*GridView, error) {
	return s.columns(claims, id, func(c *history.Controller) { c.ToggleColumn(name) })
}

// ShowAllColumns shows every column.
func (s *GridService) ShowAllColumns(_ context.Context, claims *models.JWTClaims, id string) (*GridView, error) {
	return s.columns(claims, id, (*history.Controller).ShowAllColumns)
}

// HideAllColumns hides every column.
func (s *GridService) HideAllColumns(_ context.Context, claims *models.JWTClaims, id string) (*GridView, error) {
	return s.columns(claims, id, (*history.Controller).HideAllColumns)
}

// Select records a row selection on the grid.
func (s *GridService) Select(_ context.Context, claims *models.JWTClaims, id string, indices []int) (*GridView, error) {
	session, err := s.session(claims, id)
	if err != nil {
		return nil, err
	}
	if err := session.ctrl.SelectRows(indices...); err != nil {
		return nil, translateGridError(err)
	}
	return session.view(), nil
}

// QALink resolves the QA screen link of a row.
func (s *GridService) QALink(ctx context.Context, claims *models.JWTClaims, id string, index int) (string, error) {
	session, err := s.session(claims, id)
	if err != nil {
		return "", err
	}
	link, err := session.ctrl.NavigateToQA(ctx, index)
	if err != nil {
		return "", translateGridError(err)
	}
	return link, nil
}

// PreviewLink resolves the signed CCD preview link of a row.
func (s *GridService) PreviewLink(ctx context.Context, claims *models.JWTClaims, id string, index int) (string, error) {
	session, err := s.session(claims, id)
	if err != nil {
		return "", err
	}
	link, err := session.ctrl.OpenImagePreview(ctx, index)
	if err != nil {
		return "", translateGridError(err)
	}
	return link, nil
}

// OpenComments opens the comment dialog of a grid on a process.
func (s *GridService) OpenComments(ctx context.Context, claims *models.JWTClaims, id string, processID int64) (*CommentThread, error) {
	if processID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid process id")
	}
	session, err := s.session(claims, id)
	if err != nil {
		return nil, err
	}
	session.ctrl.OpenComments(processID)
	return s.thread(ctx, session)
}

// CloseComments closes the comment dialog of a grid.
func (s *GridService) CloseComments(_ context.Context, claims *models.JWTClaims, id string) (*CommentThread, error) {
	session, err := s.session(claims, id)
	if err != nil {
		return nil, err
	}
	return &CommentThread{Dialog: session.ctrl.CloseComments(), Comments: []models.ProcessComment{}}, nil
}

// Comments returns the comment dialog state and the comments of its process.
func (s *GridService) Comments(ctx context.Context, claims *models.JWTClaims, id string) (*CommentThread, error) {
	session, err := s.session(claims, id)
	if err != nil {
		return nil, err
	}
	return s.thread(ctx, session)
}

// AddComment adds a comment to the process the dialog is open on. Dialogs of
// observation grids are read-only.
func (s *GridService) AddComment(ctx context.Context, claims *models.JWTClaims, id string, req models.CreateCommentRequest) (*models.ProcessComment, error) {
	session, err := s.session(claims, id)
	if err != nil {
		return nil, err
	}
	processID, ok := session.ctrl.CommentTarget()
	if !ok {
		return nil, appErrors.ErrReadOnly
	}
	if s.deps.Comments == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "comments are not configured")
	}
	return s.deps.Comments.Create(ctx, processID, req, claims)
}

// ActiveGrids returns the number of mounted grids.
func (s *GridService) ActiveGrids() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// RunJanitor evicts grids idle for longer than the session TTL until ctx is done.
func (s *GridService) RunJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = s.cfg.SessionTTL / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.EvictIdle(); n > 0 {
				s.logger.Info("idle history grids evicted", zap.Int("count", n))
			}
		}
	}
}

// EvictIdle closes grids idle for longer than the session TTL and returns how
// many were closed.
func (s *GridService) EvictIdle() int {
	cutoff := s.now().Add(-s.cfg.SessionTTL)
	s.mu.Lock()
	var idle []*gridSession
	for id, session := range s.sessions {
		if session.lastUsed.Before(cutoff) {
			idle = append(idle, session)
			delete(s.sessions, id)
		}
	}
	active := len(s.sessions)
	s.mu.Unlock()

	for _, session := range idle {
		session.ctrl.Close()
	}
	s.deps.Metrics.SetActiveGrids(active)
	return len(idle)
}

// Shutdown closes every grid.
func (s *GridService) Shutdown() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*gridSession)
	s.mu.Unlock()

	for _, session := range sessions {
		session.ctrl.Close()
	}
	s.cancel()
	s.deps.Metrics.SetActiveGrids(0)
}

func (s *GridService) apply(ctx context.Context, claims *models.JWTClaims, id string, op func(*history.Controller) (*history.Pending, error)) (*GridView, error) {
	session, err := s.session(claims, id)
	if err != nil {
		return nil, err
	}
	if err := s.fetch(ctx, session, func() (*history.Pending, error) { return op(session.ctrl) }); err != nil {
		return nil, translateGridError(err)
	}
	return session.view(), nil
}

// fetch refreshes the last-processed marker, runs op and waits for the fetch it
// issued to settle. A superseded fetch is not an error; the view reflects
// whichever response was applied.
func (s *GridService) fetch(ctx context.Context, session *gridSession, op func() (*history.Pending, error)) error {
	s.refreshLastProcessed(ctx, session)
	pending, err := op()
	if err != nil {
		return err
	}
	session.selection.clear()
	return pending.Wait(ctx)
}

func (s *GridService) refreshLastProcessed(ctx context.Context, session *gridSession) {
	if s.deps.Source == nil {
		return
	}
	id, err := s.deps.Source.LatestProcessID(ctx)
	if err != nil {
		s.logger.Warn("last processed marker not refreshed", zap.String("grid_id", session.id), zap.Error(err))
		return
	}
	session.ctrl.SetLastProcessed(id)
}

func (s *GridService) columns(claims *models.JWTClaims, id string, op func(*history.Controller)) (*GridView, error) {
	session, err := s.session(claims, id)
	if err != nil {
		return nil, err
	}
	op(session.ctrl)
	return session.view(), nil
}

func (s *GridService) thread(ctx context.Context, session *gridSession) (*CommentThread, error) {
	dialog := session.ctrl.Comments()
	thread := &CommentThread{Dialog: dialog, Comments: []models.ProcessComment{}}
	if !dialog.Open || s.deps.Comments == nil {
		return thread, nil
	}
	comments, err := s.deps.Comments.List(ctx, dialog.ProcessID)
	if err != nil {
		return nil, err
	}
	thread.Comments = comments
	return thread, nil
}

func (s *GridService) session(claims *models.JWTClaims, id string) (*gridSession, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.owner != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "grid not found")
	}
	session.lastUsed = s.now()
	return session, nil
}

func (s *GridService) remove(session *gridSession) {
	s.mu.Lock()
	delete(s.sessions, session.id)
	active := len(s.sessions)
	s.mu.Unlock()
	session.ctrl.Close()
	s.deps.Metrics.SetActiveGrids(active)
	s.logger.Info("history grid unmounted", zap.String("grid_id", session.id))
}

func (s *GridService) defaultRange() history.DateRange {
	now := s.now().In(s.cfg.Location)
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location)
	return history.DateRange{Start: end.AddDate(0, 0, -s.cfg.DefaultRangeDays), End: end}
}

func (g *gridSession) view() *GridView {
	return &GridView{ID: g.id, View: g.ctrl.View(), Selection: g.selection.get()}
}

func translateGridError(err error) error {
	var appErr *appErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, history.ErrFetchFailed):
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, appErrors.ErrUpstream.Message)
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, history.ErrUnknownRow):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "row is not on the current page")
	case errors.Is(err, history.ErrInputRejected):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	case errors.Is(err, history.ErrClosed):
		return appErrors.Clone(appErrors.ErrNotFound, "grid not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "history fetch did not finish in time")
	default:
		return appErrors.FromError(err)
	}
}

// selectionStore keeps the rows selected on the current page. It implements
// history.RowSelector.
type selectionStore struct {
	mu      sync.Mutex
	indices []int
}

func (s *selectionStore) RowsSelected(indices []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indices = append([]int(nil), indices...)
}

func (s *selectionStore) get() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int{}, s.indices...)
}

func (s *selectionStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indices = nil
}
