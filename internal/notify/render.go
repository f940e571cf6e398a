package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"

	"github.com/garnizeh/apptrack/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// ReminderView is the data available to the reminder templates.
type ReminderView struct {
	SiteName     string
	UserName     string
	Title        string
	Organization string
	Deadline     string
	Status       string
	Message      string
	Link         string
}

// Renderer turns a reminder into a Message.
type Renderer struct {
	siteName string
	baseURL  string
	text     *template.Template
	html     *htmltemplate.Template
}

// NewRenderer parses the embedded templates. domain may carry a scheme;
// https is assumed otherwise.
func NewRenderer(siteName, domain string) (*Renderer, error) {
	txt, err := template.ParseFS(templateFS, "templates/reminder.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}
	html, err := htmltemplate.ParseFS(templateFS, "templates/reminder.html")
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	base := strings.TrimSuffix(domain, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return &Renderer{siteName: siteName, baseURL: base, text: txt, html: html}, nil
}

// Subject is the reminder mail subject.
func Subject(app *models.Application) string {
	return fmt.Sprintf("Reminder: %s at %s", app.Title, app.Organization)
}

// Reminder renders the message for r about app, addressed to u.
func (r *Renderer) Reminder(u *models.User, app *models.Application, rm *models.Reminder) (Message, error) {
	view := ReminderView{
		SiteName:     r.siteName,
		UserName:     u.FullName(),
		Title:        app.Title,
		Organization: app.Organization,
		Status:       app.Status.Label(),
		Message:      rm.Message,
		Link:         r.baseURL + "/applications/" + app.ID,
	}
	if app.Deadline != nil {
		view.Deadline = app.Deadline.String()
	}

	var text, html bytes.Buffer
	if err := r.text.Execute(&text, view); err != nil {
		return Message{}, fmt.Errorf("render text: %w", err)
	}
	if err := r.html.Execute(&html, view); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}

	return Message{
		UserID:  u.ID,
		To:      u.Email,
		Subject: Subject(app),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
