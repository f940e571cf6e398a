// Package applications manages job and scholarship applications and their
// status timeline.
package applications

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/authz"
	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/internal/storage"
	"github.com/garnizeh/apptrack/pkg/repository"
)

// MaxNoteLength bounds the note attached to a status change, in characters.
const MaxNoteLength = 2000

// Page size bounds for List.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// TxRunner runs fn in one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type Service struct {
	repo   *repository.Repository
	tx     TxRunner
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the service. store may be nil when attachment blobs are
// not cleaned up by this process.
func NewService(repo *repository.Repository, tx TxRunner, store storage.Store, logger *slog.Logger, now func() time.Time) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, tx: tx, store: store, logger: logger, now: now}
}

func (s *Service) today() models.Date {
	return models.DateOf(s.now())
}

func (s *Service) Create(ctx context.Context, actor authz.Actor, in CreateInput) (*models.Application, error) {
	if actor.ID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	ve := &apperr.ValidationError{}
	in.Title = strings.TrimSpace(in.Title)
	in.Organization = strings.TrimSpace(in.Organization)
	if !in.Kind.Valid() {
		ve.Add("kind", "Select a valid choice.")
	}
	if in.Title == "" {
		ve.Add("title", "This field may not be blank.")
	}
	if in.Organization == "" {
		ve.Add("organization", "This field may not be blank.")
	}
	if in.Status == "" {
		in.Status = models.StatusDraft
	}
	if !in.Status.Valid() {
		ve.Add("status", "Select a valid choice.")
	}
	if in.Priority < 0 || in.Priority > 5 {
		ve.Add("priority", "Priority must be between 0 and 5.")
	}
	today := s.today()
	if in.Deadline != nil && in.Deadline.Before(today.Time) {
		ve.Add("deadline", "Deadline cannot be in the past.")
	}
	if in.AppliedDate != nil && in.AppliedDate.After(today.Time) {
		ve.Add("applied_date", "Applied date cannot be in the future.")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	a := &models.Application{
		OwnerID:      actor.ID,
		Kind:         in.Kind,
		Title:        in.Title,
		Organization: in.Organization,
		Location:     in.Location,
		Country:      in.Country,
		SourceURL:    in.SourceURL,
		AppliedDate:  in.AppliedDate,
		Deadline:     in.Deadline,
		Status:       in.Status,
		Priority:     in.Priority,
		Notes:        in.Notes,
		Tags:         normalizeTags(in.Tags),
	}
	if err := s.repo.Applications.CreateApplication(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info("application created", "application_id", a.ID, "owner_id", actor.ID)
	return a, nil
}

// Get returns the application when actor owns it.
func (s *Service) Get(ctx context.Context, actor authz.Actor, id string) (*models.Application, error) {
	a, err := s.repo.Applications.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(ctx, s.repo.Applications, actor, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Update(ctx context.Context, actor authz.Actor, id string, in UpdateInput) (*models.Application, error) {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	ve := &apperr.ValidationError{}
	if in.Kind != nil {
		if !in.Kind.Valid() {
			ve.Add("kind", "Select a valid choice.")
		}
		a.Kind = *in.Kind
	}
	if in.Title != nil {
		a.Title = strings.TrimSpace(*in.Title)
		if a.Title == "" {
			ve.Add("title", "This field may not be blank.")
		}
	}
	if in.Organization != nil {
		a.Organization = strings.TrimSpace(*in.Organization)
		if a.Organization == "" {
			ve.Add("organization", "This field may not be blank.")
		}
	}
	if in.Location != nil {
		a.Location = *in.Location
	}
	if in.Country != nil {
		a.Country = *in.Country
	}
	if in.SourceURL != nil {
		a.SourceURL = *in.SourceURL
	}
	if in.Notes != nil {
		a.Notes = *in.Notes
	}
	if in.Tags != nil {
		a.Tags = normalizeTags(*in.Tags)
	}
	if in.Priority != nil {
		if *in.Priority < 0 || *in.Priority > 5 {
			ve.Add("priority", "Priority must be between 0 and 5.")
		}
		a.Priority = *in.Priority
	}

	today := s.today()
	if in.AppliedDate.Set {
		a.AppliedDate = in.AppliedDate.Value
		if a.AppliedDate != nil && a.AppliedDate.After(today.Time) {
			ve.Add("applied_date", "Applied date cannot be in the future.")
		}
	}
	if in.Deadline.Set {
		// a deadline that already passed may stay, it just cannot be moved
		// into the past
		changed := !sameDate(a.Deadline, in.Deadline.Value)
		a.Deadline = in.Deadline.Value
		if changed && a.Deadline != nil && a.Deadline.Before(today.Time) {
			ve.Add("deadline", "Deadline cannot be in the past.")
		}
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	if err := s.repo.Applications.UpdateApplication(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete soft deletes the application. It disappears from every read path
// and is purged after the retention period.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, id string) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.Applications.SoftDeleteApplication(ctx, id, s.now()); err != nil {
		return err
	}
	s.logger.Info("application deleted", "application_id", id, "owner_id", actor.ID)
	return nil
}

// List returns the actor's applications matching f and the total count
// before pagination.
func (s *Service) List(ctx context.Context, actor authz.Actor, f repository.ApplicationFilter) ([]models.Application, int64, error) {
	if actor.ID == "" {
		return nil, 0, apperr.ErrUnauthenticated
	}
	ve := &apperr.ValidationError{}
	if f.Status != "" && !f.Status.Valid() {
		ve.Add("status", "Select a valid choice.")
	}
	if f.Kind != "" && !f.Kind.Valid() {
		ve.Add("kind", "Select a valid choice.")
	}
	if f.Offset < 0 {
		ve.Add("offset", "Offset must not be negative.")
	}
	if err := ve.OrNil(); err != nil {
		return nil, 0, err
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultListLimit
	case f.Limit > MaxListLimit:
		f.Limit = MaxListLimit
	}
	return s.repo.Applications.ListApplications(ctx, actor.ID, f)
}

// UpdateStatus moves the application to status. The status write and its
// history entry commit together; asking for the current status records
// nothing. The returned entry is nil in that case.
func (s *Service) UpdateStatus(ctx context.Context, actor authz.Actor, id string, status models.Status, note string) (*models.Application, *models.StatusHistoryEntry, error) {
	ve := &apperr.ValidationError{}
	if !status.Valid() {
		ve.Add("status", fmt.Sprintf("%q is not a valid choice.", status))
	}
	if utf8.RuneCountInString(note) > MaxNoteLength {
		ve.Add("note", fmt.Sprintf("Ensure this field has no more than %d characters.", MaxNoteLength))
	}
	if err := ve.OrNil(); err != nil {
		return nil, nil, err
	}

	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, nil, err
	}

	var entry *models.StatusHistoryEntry
	err := s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		entry, err = s.repo.History.ChangeStatus(ctx, tx, id, status, actor.ID, note, s.now())
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if entry != nil {
		s.logger.Info("application status changed", "application_id", id, "from", entry.FromStatus, "to", entry.ToStatus)
	}

	a, err := s.repo.Applications.GetApplication(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return a, entry, nil
}

// Timeline returns the status history oldest first.
func (s *Service) Timeline(ctx context.Context, actor authz.Actor, id string) ([]models.StatusHistoryEntry, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repo.History.ListStatusHistory(ctx, id)
}

// Purge hard deletes applications soft deleted more than retention ago,
// together with their attachment files.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	before := s.now().Add(-retention)

	var keys []string
	if s.store != nil {
		var err error
		if keys, err = s.repo.Attachments.DeletedApplicationAttachmentKeys(ctx, before); err != nil {
			return 0, err
		}
	}
	n, err := s.repo.Applications.PurgeDeletedApplications(ctx, before)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := s.store.Delete(ctx, k); err != nil {
			s.logger.Warn("delete attachment file", "key", k, "err", err)
		}
	}
	if n > 0 {
		s.logger.Info("purged deleted applications", "count", n, "files", len(keys))
	}
	return n, nil
}

func sameDate(a, b *models.Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b.Time)
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
