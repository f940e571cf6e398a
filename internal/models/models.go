package models

import (
	"encoding/json"
	"strings"
	"time"
)

type Kind string

const (
	KindJob         Kind = "job"
	KindScholarship Kind = "scholarship"
)

func (k Kind) Valid() bool {
	return k == KindJob || k == KindScholarship
}

type Status string

const (
	StatusDraft     Status = "draft"
	StatusApplied   Status = "applied"
	StatusInterview Status = "interview"
	StatusOffer     Status = "offer"
	StatusRejected  Status = "rejected"
	StatusWithdrawn Status = "withdrawn"
)

// Statuses lists every application status in display order.
var Statuses = []Status{StatusDraft, StatusApplied, StatusInterview, StatusOffer, StatusRejected, StatusWithdrawn}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Label is the human readable status name used in notifications.
func (s Status) Label() string {
	switch s {
	case StatusOffer:
		return "Offer Received"
	case "":
		return ""
	default:
		return strings.ToUpper(string(s[:1])) + string(s[1:])
	}
}

type Channel string

const (
	ChannelEmail        Channel = "email"
	ChannelNotification Channel = "notification"
)

func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelNotification
}

type DocumentType string

const (
	DocCV          DocumentType = "cv"
	DocCoverLetter DocumentType = "cover_letter"
	DocTranscript  DocumentType = "transcript"
	DocCertificate DocumentType = "certificate"
	DocOther       DocumentType = "other"
)

func (d DocumentType) Valid() bool {
	switch d {
	case DocCV, DocCoverLetter, DocTranscript, DocCertificate, DocOther:
		return true
	}
	return false
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Timezone     string    `json:"timezone"`
	IsStaff      bool      `json:"is_staff"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
}

// FullName returns "first last", or the local part of the email when both
// names are empty.
func (u *User) FullName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name != "" {
		return name
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

type Application struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Kind         Kind       `json:"kind"`
	Title        string     `json:"title"`
	Organization string     `json:"organization"`
	Location     string     `json:"location"`
	Country      string     `json:"country"`
	SourceURL    string     `json:"source_url"`
	AppliedDate  *Date      `json:"applied_date"`
	Deadline     *Date      `json:"deadline"`
	Status       Status     `json:"status"`
	Priority     int        `json:"priority"`
	Notes        string     `json:"notes"`
	Tags         []string   `json:"tags"`
	DeletedAt    *time.Time `json:"-"`
	Created      time.Time  `json:"created_at"`
	Updated      time.Time  `json:"updated_at"`
}

type StatusHistoryEntry struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	FromStatus    Status    `json:"from_status"`
	ToStatus      Status    `json:"to_status"`
	ChangedBy     *string   `json:"changed_by"`
	Notes         string    `json:"notes"`
	Created       time.Time `json:"created_at"`
}

type Reminder struct {
	ID            int64      `json:"id"`
	ApplicationID string     `json:"application_id"`
	UserID        string     `json:"user_id"`
	RemindAt      time.Time  `json:"remind_at"`
	Channel       Channel    `json:"channel"`
	Message       string     `json:"message"`
	IsSent        bool       `json:"is_sent"`
	SentAt        *time.Time `json:"sent_at"`
	Created       time.Time  `json:"created_at"`
	Updated       time.Time  `json:"updated_at"`
}

// IsDue reports whether the reminder is unsent and its time has come.
func (r *Reminder) IsDue(now time.Time) bool {
	return !r.IsSent && !r.RemindAt.After(now)
}

type Attachment struct {
	ID            string       `json:"id"`
	ApplicationID string       `json:"application_id"`
	UploadedBy    *string      `json:"uploaded_by"`
	StorageKey    string       `json:"-"`
	Name          string       `json:"name"`
	FileType      string       `json:"file_type"`
	FileSize      int64        `json:"file_size"`
	DocumentType  DocumentType `json:"document_type"`
	Created       time.Time    `json:"created_at"`
}

type Notification struct {
	ID      string    `json:"id"`
	UserID  string    `json:"user_id"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	IsRead  bool      `json:"is_read"`
	Created time.Time `json:"created_at"`
}

type BackgroundJob struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	DedupeKey   string          `json:"dedupe_key,omitempty"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	NextTryAt   *time.Time      `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     time.Time       `json:"created"`
	Updated     time.Time       `json:"updated"`
}

type DeadLetterJob struct {
	ID        int64           `json:"id"`
	JobID     int64           `json:"job_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error"`
	FailedAt  time.Time       `json:"failed_at"`
}
