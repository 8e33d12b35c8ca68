package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/qlf-monitor-api/pkg/errors"
	"github.com/noah-isme/qlf-monitor-api/pkg/storage"
)

type previewStorage interface {
	Open(filename string) (*os.File, error)
	Exists(filename string) bool
}

// PreviewLink is a signed, expiring link to a CCD preview image.
type PreviewLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PreviewService issues signed links to the CCD preview PNGs written by the
// pipeline under <night>/<exposure>.png and serves them back by token.
type PreviewService struct {
	storage   previewStorage
	signer    *storage.SignedURLSigner
	apiPrefix string
	logger    *zap.Logger
}

// NewPreviewService constructs a PreviewService.
func NewPreviewService(store previewStorage, signer *storage.SignedURLSigner, apiPrefix string, logger *zap.Logger) *PreviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreviewService{storage: store, signer: signer, apiPrefix: normalizePrefix(apiPrefix), logger: logger}
}

// Link signs the preview of an exposure observed on night.
func (s *PreviewService) Link(_ context.Context, night string, exposureID int64) (*PreviewLink, error) {
	night = strings.TrimSpace(night)
	if night == "" || strings.ContainsAny(night, `/\.`) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid night")
	}
	rel := path.Join(night, fmt.Sprintf("%d.png", exposureID))
	if !s.storage.Exists(rel) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "preview not available")
	}
	token, expiresAt, err := s.signer.Generate(strconv.FormatInt(exposureID, 10), rel)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign preview link")
	}
	return &PreviewLink{
		URL:       fmt.Sprintf("%s/previews/%s", s.apiPrefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// Open validates a preview token and returns the image it points to.
func (s *PreviewService) Open(token string) (*os.File, string, error) {
	_, rel, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", translateTokenError(err)
	}
	file, err := s.storage.Open(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "preview not available")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open preview")
	}
	return file, path.Base(rel), nil
}

// NavigationService resolves the links a grid row opens. It implements
// history.Navigator.
type NavigationService struct {
	qaBase   string
	previews *PreviewService
}

// NewNavigationService constructs a NavigationService. qaBase is the route of
// the QA screen; the process id is appended as a query parameter.
func NewNavigationService(qaBase string, previews *PreviewService) *NavigationService {
	if qaBase == "" {
		qaBase = "/monitor/qa"
	}
	return &NavigationService{qaBase: strings.TrimRight(qaBase, "/"), previews: previews}
}

// QALink returns the QA screen link of a process.
func (s *NavigationService) QALink(processID int64) string {
	return fmt.Sprintf("%s?process_id=%d", s.qaBase, processID)
}

// NavigateToQA implements history.Navigator.
func (s *NavigationService) NavigateToQA(_ context.Context, processID int64) (string, error) {
	if processID <= 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "invalid process id")
	}
	return s.QALink(processID), nil
}

// OpenImagePreview implements history.Navigator.
func (s *NavigationService) OpenImagePreview(ctx context.Context, night string, exposureID int64) (string, error) {
	if s.previews == nil {
		return "", appErrors.Clone(appErrors.ErrUnavailable, "previews are not configured")
	}
	link, err := s.previews.Link(ctx, night, exposureID)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

func translateTokenError(err error) error {
	if errors.Is(err, storage.ErrTokenExpired) {
		return appErrors.Wrap(err, appErrors.ErrExpired.Code, appErrors.ErrExpired.Status, appErrors.ErrExpired.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "link not found")
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return "/api/v1"
	}
	return prefix
}
