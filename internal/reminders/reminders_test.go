package reminders_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/authz"
	"github.com/garnizeh/apptrack/internal/db"
	"github.com/garnizeh/apptrack/internal/jobs"
	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/internal/notify"
	"github.com/garnizeh/apptrack/internal/reminders"
	"github.com/garnizeh/apptrack/internal/repository/sqlite"
	"github.com/garnizeh/apptrack/internal/testutil"
	"github.com/garnizeh/apptrack/pkg/repository"
)

// outbox records sent messages and fails while err is set.
type outbox struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) fail(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

type fixture struct {
	repo       *sqlite.SQLiteRepo
	db         *db.DB
	clock      *testutil.Clock
	svc        *reminders.Service
	dispatcher *reminders.Dispatcher
	deliverer  *reminders.Deliverer
	pool       *jobs.WorkerPool
	mail       *outbox
	a, b       authz.Actor
	app        *models.Application
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, d := testutil.NewRepo(t)
	clock := testutil.NewClock(time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC))
	logger := testutil.Logger()

	ua := testutil.CreateUser(t, repo, "a@example.com")
	ub := testutil.CreateUser(t, repo, "b@example.com")
	deadline := models.NewDate(2025, time.June, 1)
	app := testutil.CreateApplication(t, repo, ua.ID, &deadline)

	client := jobs.NewClient(repo, clock.Now)
	renderer, err := notify.NewRenderer("AppTrack", "apptrack.example.com")
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	mail := &outbox{}
	router := notify.Router{models.ChannelEmail: mail, models.ChannelNotification: notify.NewInAppTransport(repo)}

	f := &fixture{
		repo:       repo,
		db:         d,
		clock:      clock,
		svc:        reminders.NewService(repo.Repository(), client, logger, clock.Now),
		dispatcher: reminders.NewDispatcher(repo, client, logger, clock.Now),
		deliverer:  reminders.NewDeliverer(repo.Repository(), client, router, renderer, logger, clock.Now),
		mail:       mail,
		a:          authz.Actor{ID: ua.ID, Email: ua.Email},
		b:          authz.Actor{ID: ub.ID, Email: ub.Email},
		app:        app,
	}
	f.pool = jobs.NewWorkerPool(repo, map[string]jobs.Handler{
		jobs.TypeReminderDeliver: f.deliverer.Handle,
	}, logger, jobs.Options{Now: clock.Now})
	return f
}

func (f *fixture) pendingJobs(t *testing.T, typ string) int {
	t.Helper()
	var n int
	err := f.db.QueryRow(context.Background(), `SELECT COUNT(*) FROM jobs WHERE type = ? AND status IN ('queued', 'retry')`, typ).Scan(&n)
	if err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	return n
}

func at(month time.Month, day int) time.Time {
	return time.Date(2025, month, day, 9, 0, 0, 0, time.UTC)
}

func fieldErr(t *testing.T, err error, field string) {
	t.Helper()
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error on %q, got %v", field, err)
	}
	if _, ok := ve.Fields[field]; !ok {
		t.Fatalf("expected error on %q, got %v", field, ve.Fields)
	}
}

func TestDeadlineReminderScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rm, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 30), Channel: models.ChannelEmail, Message: "Submit the essay"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 29), Channel: models.ChannelEmail})
	fieldErr(t, err, apperr.NonField)

	// nothing is due before the reminder time
	if processed, _ := f.pool.ProcessNext(ctx); processed {
		t.Fatalf("delivery ran before the reminder was due")
	}

	f.clock.Set(at(time.May, 30).Add(time.Minute))
	n, err := f.dispatcher.Dispatch(ctx)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if n != 1 {
		t.Fatalf("Dispatch queued %d, want 1", n)
	}
	if got := f.pendingJobs(t, jobs.TypeReminderDeliver); got != 1 {
		t.Fatalf("pending delivery jobs = %d, want 1", got)
	}

	if processed, err := f.pool.ProcessNext(ctx); err != nil || !processed {
		t.Fatalf("ProcessNext: processed=%v err=%v", processed, err)
	}
	got, err := f.repo.GetReminder(ctx, rm.ID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	if !got.IsSent || got.SentAt == nil {
		t.Fatalf("reminder not marked sent: %+v", got)
	}
	if f.mail.count() != 1 {
		t.Fatalf("sent %d messages, want 1", f.mail.count())
	}
	if want := "Reminder: Backend Engineer at Acme"; f.mail.sent[0].Subject != want {
		t.Fatalf("subject = %q, want %q", f.mail.sent[0].Subject, want)
	}

	// a second delivery of the same reminder is a no-op
	if err := f.deliverer.Deliver(ctx, rm.ID); err != nil {
		t.Fatalf("second Deliver: %v", err)
	}
	if f.mail.count() != 1 {
		t.Fatalf("second delivery sent again")
	}
	if n, _ := f.dispatcher.Dispatch(ctx); n != 0 {
		t.Fatalf("sent reminder dispatched again")
	}

	// the slot is free once the first reminder went out
	if _, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 31), Channel: models.ChannelEmail}); err != nil {
		t.Fatalf("Create after send: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name  string
		in    reminders.CreateInput
		field string
	}{
		{"missing time", reminders.CreateInput{}, "remind_at"},
		{"in the past", reminders.CreateInput{RemindAt: at(time.May, 1)}, "remind_at"},
		{"now", reminders.CreateInput{RemindAt: f.clock.Now()}, "remind_at"},
		{"after deadline", reminders.CreateInput{RemindAt: at(time.June, 2)}, "remind_at"},
		{"bad channel", reminders.CreateInput{RemindAt: at(time.May, 25), Channel: "sms"}, "channel"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.a, f.app.ID, tc.in)
			fieldErr(t, err, tc.field)
		})
	}

	// the deadline day itself is allowed
	rm, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("Create on deadline day: %v", err)
	}
	if rm.Channel != models.ChannelEmail {
		t.Fatalf("default channel = %q", rm.Channel)
	}

	// another channel is a different slot
	if _, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 25), Channel: models.ChannelNotification}); err != nil {
		t.Fatalf("Create on second channel: %v", err)
	}
}

func TestCreateWithoutDeadline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := testutil.CreateApplication(t, f.repo, f.a.ID, nil)

	if _, err := f.svc.Create(ctx, f.a, app.ID, reminders.CreateInput{RemindAt: at(time.December, 1)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestOtherActorIsDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rm, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 25)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.Create(ctx, f.b, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 26)}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Create on foreign application: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.b, rm.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Get: %v", err)
	}
	msg := "mine now"
	if _, err := f.svc.Update(ctx, f.b, rm.ID, reminders.UpdateInput{Message: &msg}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Update: %v", err)
	}
	if err := f.svc.Delete(ctx, f.b, rm.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.List(ctx, f.b, repository.ReminderFilter{ApplicationID: f.app.ID}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("List: %v", err)
	}
	list, err := f.svc.List(ctx, f.b, repository.ReminderFilter{})
	if err != nil || len(list) != 0 {
		t.Fatalf("List for b = %v, %v", list, err)
	}
	if _, err := f.svc.Get(ctx, authz.Actor{}, rm.ID); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("anonymous Get: %v", err)
	}
}

func TestUpdateReschedules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rm, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 25)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	later := at(time.May, 28)
	msg := "updated"
	got, err := f.svc.Update(ctx, f.a, rm.ID, reminders.UpdateInput{RemindAt: &later, Message: &msg})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !got.RemindAt.Equal(later) || got.Message != msg {
		t.Fatalf("update not applied: %+v", got)
	}

	late := at(time.June, 5)
	_, err = f.svc.Update(ctx, f.a, rm.ID, reminders.UpdateInput{RemindAt: &late})
	fieldErr(t, err, "remind_at")

	// the job queued for the old time finds the reminder not due and
	// requeues it for the new time
	f.clock.Set(at(time.May, 25).Add(time.Minute))
	if processed, err := f.pool.ProcessNext(ctx); err != nil || !processed {
		t.Fatalf("ProcessNext: processed=%v err=%v", processed, err)
	}
	if f.mail.count() != 0 {
		t.Fatalf("reminder delivered before its new time")
	}
	if got := f.pendingJobs(t, jobs.TypeReminderDeliver); got != 1 {
		t.Fatalf("pending delivery jobs = %d, want 1", got)
	}

	f.clock.Set(later.Add(time.Minute))
	if processed, err := f.pool.ProcessNext(ctx); err != nil || !processed {
		t.Fatalf("ProcessNext: processed=%v err=%v", processed, err)
	}
	if f.mail.count() != 1 {
		t.Fatalf("sent %d messages, want 1", f.mail.count())
	}
}

func TestResend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rm, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 25)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.Resend(ctx, f.a, rm.ID); !errors.Is(err, apperr.ErrBadRequest) {
		t.Fatalf("Resend unsent: %v", err)
	}

	f.clock.Set(at(time.May, 26))
	if err := f.deliverer.Deliver(ctx, rm.ID); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	msg := "too late"
	if _, err := f.svc.Update(ctx, f.a, rm.ID, reminders.UpdateInput{Message: &msg}); !errors.Is(err, apperr.ErrBadRequest) {
		t.Fatalf("Update sent: %v", err)
	}

	got, err := f.svc.Resend(ctx, f.a, rm.ID)
	if err != nil {
		t.Fatalf("Resend: %v", err)
	}
	if got.IsSent || got.SentAt != nil {
		t.Fatalf("resend did not reset: %+v", got)
	}

	// drain the queue; the original job and the resend job collapse or no-op
	for {
		processed, err := f.pool.ProcessNext(ctx)
		if err != nil {
			t.Fatalf("ProcessNext: %v", err)
		}
		if !processed {
			break
		}
	}
	if f.mail.count() != 2 {
		t.Fatalf("sent %d messages, want 2", f.mail.count())
	}
	got, _ = f.svc.Get(ctx, f.a, rm.ID)
	if !got.IsSent {
		t.Fatalf("resent reminder not marked sent")
	}
}

func TestResendRefusedWhileAnotherIsUnsent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 25)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.clock.Set(at(time.May, 26))
	if err := f.deliverer.Deliver(ctx, first.ID); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	second, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 28)})
	if err != nil {
		t.Fatalf("Create after delivery: %v", err)
	}

	_, err = f.svc.Resend(ctx, f.a, first.ID)
	fieldErr(t, err, apperr.NonField)

	unsent := false
	list, err := f.svc.List(ctx, f.a, repository.ReminderFilter{ApplicationID: f.app.ID, IsSent: &unsent})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != second.ID {
		t.Fatalf("unsent reminders = %+v, want only %d", list, second.ID)
	}
	got, _ := f.svc.Get(ctx, f.a, first.ID)
	if !got.IsSent {
		t.Fatalf("refused resend reset the reminder")
	}

	// once the newer one is gone the resend goes through
	if err := f.svc.Delete(ctx, f.a, second.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.Resend(ctx, f.a, first.ID); err != nil {
		t.Fatalf("Resend: %v", err)
	}
}

func TestDuplicateUnsentReminder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 25)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 27)})
	fieldErr(t, err, apperr.NonField)
}

func TestDeadlineUsesOwnerTimezone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := &models.User{Email: "sp@example.com", PasswordHash: "x", Timezone: "America/Sao_Paulo"}
	if err := f.repo.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	actor := authz.Actor{ID: u.ID, Email: u.Email}
	deadline := models.NewDate(2025, time.June, 1)
	app := testutil.CreateApplication(t, f.repo, u.ID, &deadline)

	// 23:30 on the deadline day in Sao Paulo is 02:30 UTC the next day
	late := time.Date(2025, 6, 2, 2, 30, 0, 0, time.UTC)
	if _, err := f.svc.Create(ctx, actor, app.ID, reminders.CreateInput{RemindAt: late}); err != nil {
		t.Fatalf("Create before local end of deadline day: %v", err)
	}
	tooLate := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)
	_, err := f.svc.Create(ctx, actor, app.ID, reminders.CreateInput{RemindAt: tooLate, Channel: models.ChannelNotification})
	fieldErr(t, err, "remind_at")
}

func TestDecodePayloads(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing time", `{"channel":"email"}`, "remind_at"},
		{"bad time", `{"remind_at":"tomorrow"}`, "remind_at"},
		{"bad channel", `{"remind_at":"2025-05-25T09:00:00Z","channel":"sms"}`, "channel"},
		{"long message", `{"remind_at":"2025-05-25T09:00:00Z","message":"` + strings.Repeat("x", 1001) + `"}`, "message"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reminders.DecodeCreate(ctx, []byte(tc.body))
			fieldErr(t, err, tc.field)
		})
	}

	in, err := reminders.DecodeCreate(ctx, []byte(`{"remind_at":"2025-05-25T09:00:00Z","channel":"notification","message":"hi"}`))
	if err != nil {
		t.Fatalf("DecodeCreate: %v", err)
	}
	if !in.RemindAt.Equal(at(time.May, 25)) || in.Channel != models.ChannelNotification || in.Message != "hi" {
		t.Fatalf("decoded %+v", in)
	}

	if _, err := reminders.DecodeCreate(ctx, []byte(`{not json`)); !errors.Is(err, apperr.ErrBadRequest) {
		t.Fatalf("expected bad request for invalid json, got %v", err)
	}
	_, err = reminders.DecodeUpdate(ctx, []byte(`{"channel":"notification"}`))
	fieldErr(t, err, "channel")

	up, err := reminders.DecodeUpdate(ctx, []byte(`{"message":"later"}`))
	if err != nil {
		t.Fatalf("DecodeUpdate: %v", err)
	}
	if up.RemindAt != nil || up.Message == nil || *up.Message != "later" {
		t.Fatalf("decoded update %+v", up)
	}
}

func TestTransientFailureRetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rm, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 25)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.mail.fail(errors.New("connection reset"))
	f.clock.Set(at(time.May, 25))

	for attempt := 1; attempt <= reminders.DeliveryMaxAttempts; attempt++ {
		if processed, err := f.pool.ProcessNext(ctx); err != nil || !processed {
			t.Fatalf("attempt %d: processed=%v err=%v", attempt, processed, err)
		}
		f.clock.Advance(time.Hour)
	}
	if processed, _ := f.pool.ProcessNext(ctx); processed {
		t.Fatalf("job ran after exhausting its attempts")
	}

	dead, err := f.repo.ListDeadLetters(ctx, 10, 0)
	if err != nil || len(dead) != 1 {
		t.Fatalf("dead letters = %v, %v", dead, err)
	}
	if dead[0].Type != jobs.TypeReminderDeliver || dead[0].Attempts != reminders.DeliveryMaxAttempts {
		t.Fatalf("unexpected dead letter: %+v", dead[0])
	}
	got, _ := f.repo.GetReminder(ctx, rm.ID)
	if got.IsSent {
		t.Fatalf("failed reminder marked sent")
	}

	// the sweep picks the reminder up again once the transport recovers
	f.mail.fail(nil)
	if n, err := f.dispatcher.Dispatch(ctx); err != nil || n != 1 {
		t.Fatalf("Dispatch = %d, %v", n, err)
	}
	if processed, err := f.pool.ProcessNext(ctx); err != nil || !processed {
		t.Fatalf("ProcessNext: processed=%v err=%v", processed, err)
	}
	if f.mail.count() != 1 {
		t.Fatalf("sent %d messages, want 1", f.mail.count())
	}
}

func TestPermanentFailureSkipsRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 25)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.mail.fail(errors.Join(notify.ErrPermanent, errors.New("550 no such user")))
	f.clock.Set(at(time.May, 25))

	if processed, err := f.pool.ProcessNext(ctx); err != nil || !processed {
		t.Fatalf("ProcessNext: processed=%v err=%v", processed, err)
	}
	dead, err := f.repo.ListDeadLetters(ctx, 10, 0)
	if err != nil || len(dead) != 1 || dead[0].Attempts != 1 {
		t.Fatalf("dead letters = %+v, %v", dead, err)
	}
}

func TestInAppChannel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rm, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 25), Channel: models.ChannelNotification, Message: "Call the recruiter"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.clock.Set(at(time.May, 25))
	if err := f.deliverer.Deliver(ctx, rm.ID); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	list, err := f.repo.ListNotifications(ctx, f.a.ID, true, 10, 0)
	if err != nil || len(list) != 1 {
		t.Fatalf("notifications = %v, %v", list, err)
	}
	if list[0].Title != "Reminder: Backend Engineer at Acme" {
		t.Fatalf("title = %q", list[0].Title)
	}
}

func TestDeliverSkipsGoneReminders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rm, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 25)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.clock.Set(at(time.May, 26))

	if err := f.deliverer.Deliver(ctx, 9999); err != nil {
		t.Fatalf("Deliver missing: %v", err)
	}
	if err := f.repo.SoftDeleteApplication(ctx, f.app.ID, f.clock.Now()); err != nil {
		t.Fatalf("SoftDeleteApplication: %v", err)
	}
	if n, _ := f.dispatcher.Dispatch(ctx); n != 0 {
		t.Fatalf("reminder of deleted application dispatched")
	}
	if err := f.deliverer.Deliver(ctx, rm.ID); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if f.mail.count() != 0 {
		t.Fatalf("reminder of deleted application delivered")
	}

	err = f.deliverer.Handle(ctx, &models.BackgroundJob{Payload: []byte(`{"reminder_id":"x"}`)})
	if !jobs.IsPermanent(err) {
		t.Fatalf("bad payload should be permanent, got %v", err)
	}
}

func TestDispatchPages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const total = 230
	for i := range total {
		app := testutil.CreateApplication(t, f.repo, f.a.ID, nil)
		rm := &models.Reminder{ApplicationID: app.ID, UserID: f.a.ID, RemindAt: at(time.May, 21).Add(time.Duration(i) * time.Second), Channel: models.ChannelEmail}
		if err := f.repo.CreateReminder(ctx, rm); err != nil {
			t.Fatalf("CreateReminder: %v", err)
		}
	}
	f.clock.Set(at(time.May, 22))

	n, err := f.dispatcher.Dispatch(ctx)
	if err != nil || n != total {
		t.Fatalf("Dispatch = %d, %v; want %d", n, err, total)
	}
	n, _ = f.dispatcher.Dispatch(ctx)
	if n != total {
		t.Fatalf("second Dispatch = %d", n)
	}
	if got := f.pendingJobs(t, jobs.TypeReminderDeliver); got != total {
		t.Fatalf("pending delivery jobs = %d, want %d", got, total)
	}
}

func TestUpcomingAndCleanup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 25)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Create(ctx, f.a, f.app.ID, reminders.CreateInput{RemindAt: at(time.May, 27), Channel: models.ChannelNotification}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	up, err := f.svc.Upcoming(ctx, f.a)
	if err != nil || len(up) != 2 || up[0].ID != first.ID {
		t.Fatalf("Upcoming = %v, %v", up, err)
	}

	f.clock.Set(at(time.May, 26))
	if err := f.deliverer.Deliver(ctx, first.ID); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if up, _ = f.svc.Upcoming(ctx, f.a); len(up) != 1 {
		t.Fatalf("Upcoming after send = %d", len(up))
	}

	if n, err := f.svc.Cleanup(ctx, 30*24*time.Hour); err != nil || n != 0 {
		t.Fatalf("early Cleanup = %d, %v", n, err)
	}
	f.clock.Advance(31 * 24 * time.Hour)
	if err := f.svc.CleanupHandler(30*24*time.Hour)(ctx, &models.BackgroundJob{}); err != nil {
		t.Fatalf("CleanupHandler: %v", err)
	}
	if _, err := f.repo.GetReminder(ctx, first.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("sent reminder not cleaned up: %v", err)
	}
}
