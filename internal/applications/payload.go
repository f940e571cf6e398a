package applications

import (
	"context"
	"embed"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/internal/payload"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var schemas = payload.NewSchemas(schemaFS, "schemas", "create", "update", "status")

// CreateInput is the payload of a new application.
type CreateInput struct {
	Kind         models.Kind   `json:"kind"`
	Title        string        `json:"title"`
	Organization string        `json:"organization"`
	Location     string        `json:"location"`
	Country      string        `json:"country"`
	SourceURL    string        `json:"source_url"`
	AppliedDate  *models.Date  `json:"applied_date"`
	Deadline     *models.Date  `json:"deadline"`
	Status       models.Status `json:"status"`
	Priority     int           `json:"priority"`
	Notes        string        `json:"notes"`
	Tags         []string      `json:"tags"`
}

func DecodeCreate(ctx context.Context, body []byte) (CreateInput, error) {
	var in CreateInput
	return in, schemas.Decode(ctx, "create", body, &in)
}

// OptionalDate tells an absent date apart from an explicit null.
type OptionalDate struct {
	Set   bool
	Value *models.Date
}

func (o *OptionalDate) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var d models.Date
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	o.Value = &d
	return nil
}

// UpdateInput is a partial update. Nil fields are left unchanged; status is
// not part of it.
type UpdateInput struct {
	Kind         *models.Kind `json:"kind"`
	Title        *string      `json:"title"`
	Organization *string      `json:"organization"`
	Location     *string      `json:"location"`
	Country      *string      `json:"country"`
	SourceURL    *string      `json:"source_url"`
	AppliedDate  OptionalDate `json:"applied_date"`
	Deadline     OptionalDate `json:"deadline"`
	Priority     *int         `json:"priority"`
	Notes        *string      `json:"notes"`
	Tags         *[]string    `json:"tags"`
}

func DecodeUpdate(ctx context.Context, body []byte) (UpdateInput, error) {
	var in UpdateInput
	if err := schemas.Decode(ctx, "update", body, &in); err != nil {
		return in, err
	}
	if payload.HasKey(body, "status") {
		return UpdateInput{}, apperr.NewValidation("status", "status is changed through the status endpoint")
	}
	return in, nil
}

// StatusInput is the payload of a status change.
type StatusInput struct {
	Status models.Status `json:"status"`
	Note   string        `json:"note"`
}

func DecodeStatus(ctx context.Context, body []byte) (StatusInput, error) {
	var in StatusInput
	return in, schemas.Decode(ctx, "status", body, &in)
}
