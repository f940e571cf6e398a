// Package attachments stores documents uploaded for an application.
package attachments

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/authz"
	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/internal/storage"
	"github.com/garnizeh/apptrack/pkg/repository"
)

// Upload is one file received from a client.
type Upload struct {
	Name         string
	DocumentType models.DocumentType
	Content      io.Reader
}

// Download describes where an attachment can be fetched.
type Download struct {
	*models.Attachment
	URL string `json:"url"`
}

type Service struct {
	repo      *repository.Repository
	store     storage.Store
	maxUpload int64
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo *repository.Repository, store storage.Store, maxUpload int64, logger *slog.Logger, now func() time.Time) *Service {
	if maxUpload <= 0 {
		maxUpload = storage.DefaultMaxUpload
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, store: store, maxUpload: maxUpload, logger: logger, now: now}
}

func (s *Service) application(ctx context.Context, actor authz.Actor, id string) (*models.Application, error) {
	app, err := s.repo.Applications.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(ctx, s.repo.Applications, actor, app); err != nil {
		return nil, err
	}
	return app, nil
}

// Upload validates the file, writes it to the store and records it on the
// application. The blob is removed again when the record cannot be written.
func (s *Service) Upload(ctx context.Context, actor authz.Actor, applicationID string, up Upload) (*models.Attachment, error) {
	app, err := s.application(ctx, actor, applicationID)
	if err != nil {
		return nil, err
	}
	if up.Content == nil {
		return nil, apperr.NewValidation("file", "No file was submitted.")
	}
	if up.DocumentType == "" {
		up.DocumentType = models.DocOther
	}
	if !up.DocumentType.Valid() {
		return nil, apperr.NewValidation("document_type", "Select a valid choice.")
	}
	name := filepath.Base(strings.ReplaceAll(up.Name, `\`, "/"))
	if name == "." || name == "/" {
		name = ""
	}

	// one byte past the limit is enough to tell it was exceeded
	content, err := io.ReadAll(io.LimitReader(up.Content, s.maxUpload+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if err := storage.ValidateUpload(name, int64(len(content)), s.maxUpload); err != nil {
		return nil, err
	}

	key := storage.NewKey(s.now(), name)
	size, err := s.store.Put(ctx, key, bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}

	uploader := actor.ID
	att := &models.Attachment{
		ApplicationID: app.ID,
		UploadedBy:    &uploader,
		StorageKey:    key,
		Name:          name,
		FileType:      storage.DetectContentType(content),
		FileSize:      size,
		DocumentType:  up.DocumentType,
	}
	if err := s.repo.Attachments.CreateAttachment(ctx, att); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Error("remove orphaned blob", "key", key, "err", delErr)
		}
		return nil, err
	}
	s.logger.Info("attachment uploaded", "attachment_id", att.ID, "application_id", app.ID, "size", size)
	return att, nil
}

func (s *Service) Get(ctx context.Context, actor authz.Actor, id string) (*models.Attachment, error) {
	att, err := s.repo.Attachments.GetAttachment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(ctx, s.repo.Applications, actor, att); err != nil {
		return nil, err
	}
	return att, nil
}

// List returns the attachments of an application, newest first.
func (s *Service) List(ctx context.Context, actor authz.Actor, applicationID string) ([]models.Attachment, error) {
	app, err := s.application(ctx, actor, applicationID)
	if err != nil {
		return nil, err
	}
	return s.repo.Attachments.ListAttachments(ctx, app.ID)
}

// Download returns the attachment with its public URL.
func (s *Service) Download(ctx context.Context, actor authz.Actor, id string) (*Download, error) {
	att, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return &Download{Attachment: att, URL: s.store.URL(att.StorageKey)}, nil
}

// Open streams the attachment content. The caller closes the reader.
func (s *Service) Open(ctx context.Context, actor authz.Actor, id string) (*models.Attachment, io.ReadCloser, error) {
	att, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Open(ctx, att.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return att, rc, nil
}

// Delete removes the record and then its blob. A blob that cannot be removed
// is logged and left behind.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, id string) error {
	att, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Attachments.DeleteAttachment(ctx, att.ID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, att.StorageKey); err != nil {
		s.logger.Warn("delete attachment blob", "key", att.StorageKey, "err", err)
	}
	return nil
}
