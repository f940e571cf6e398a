package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/apptrack/api"
	"github.com/garnizeh/apptrack/internal/authz"
	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/pkg/repository/mock"
)

func TestAuthHandlers(t *testing.T) {
	secret := "testsecret"
	tokenDur := 1 * time.Hour

	storeUser := func(email, pw string) func(m *mock.Mocks) {
		return func(m *mock.Mocks) {
			hash, _ := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
			m.Users.Stored = &models.User{ID: "u-2", Email: email, PasswordHash: string(hash)}
		}
	}

	tests := []struct {
		name       string
		path       string
		body       any
		prepare    func(m *mock.Mocks)
		wantStatus int
		wantToken  bool
	}{
		{name: "Signup_InvalidRequest", path: "/signup", body: "not a json", wantStatus: http.StatusBadRequest},
		{name: "Signup_MissingEmail", path: "/signup", body: map[string]string{"password": "s3cretpass"}, wantStatus: http.StatusBadRequest},
		{name: "Signup_BadEmail", path: "/signup", body: map[string]string{"email": "alice", "password": "s3cretpass"}, wantStatus: http.StatusBadRequest},
		{name: "Signup_ShortPassword", path: "/signup", body: map[string]string{"email": "alice@example.com", "password": "short"}, wantStatus: http.StatusBadRequest},
		{name: "Signup_BadTimezone", path: "/signup", body: map[string]string{"email": "alice@example.com", "password": "s3cretpass", "timezone": "Mars/Base"}, wantStatus: http.StatusBadRequest},
		{name: "Signup_Success", path: "/signup", body: map[string]string{"email": "alice@example.com", "password": "s3cretpass", "first_name": "Alice"}, wantStatus: http.StatusCreated, wantToken: true},
		{
			name:       "Signup_DuplicateEmail",
			path:       "/signup",
			body:       map[string]string{"email": "dup@example.com", "password": "s3cretpass"},
			prepare:    storeUser("dup@example.com", "whatever1"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signup_StoreFailure",
			path:       "/signup",
			body:       map[string]string{"email": "x@example.com", "password": "s3cretpass"},
			prepare:    func(m *mock.Mocks) { m.Users.CreateErr = errors.New("disk full") },
			wantStatus: http.StatusInternalServerError,
		},
		{name: "Signin_InvalidRequest", path: "/signin", body: "not a json", wantStatus: http.StatusBadRequest},
		{name: "Signin_MissingPassword", path: "/signin", body: map[string]string{"email": "missing@example.com"}, wantStatus: http.StatusBadRequest},
		{name: "Signin_MissingUser", path: "/signin", body: map[string]string{"email": "missing@example.com", "password": "nop"}, wantStatus: http.StatusUnauthorized},
		{name: "Signin_Success", path: "/signin", body: map[string]string{"email": "Bob@Example.com", "password": "hunter22"}, prepare: storeUser("bob@example.com", "hunter22"), wantStatus: http.StatusOK, wantToken: true},
		{name: "Signin_WrongPassword", path: "/signin", body: map[string]string{"email": "c@example.com", "password": "wrongpw"}, prepare: storeUser("c@example.com", "rightpw"), wantStatus: http.StatusUnauthorized},
		{name: "Signout_OK", path: "/signout", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mocks := mock.NewMocks()
			if tt.prepare != nil {
				tt.prepare(mocks)
			}
			handler := api.NewAuthHandler(mocks.Users, secret, tokenDur)

			var bodyReader io.Reader = http.NoBody
			if tt.body != nil {
				b, _ := json.Marshal(tt.body)
				if s, ok := tt.body.(string); ok {
					b = []byte(s)
				}
				bodyReader = bytes.NewReader(b)
			}
			req := httptest.NewRequest(http.MethodPost, tt.path, bodyReader)
			w := httptest.NewRecorder()

			switch tt.path {
			case "/signup":
				handler.Signup(w, req)
			case "/signin":
				handler.Signin(w, req)
			case "/signout":
				handler.Signout(w, req)
			default:
				t.Fatalf("unknown path %s", tt.path)
			}

			res := w.Result()
			defer res.Body.Close()
			data, _ := io.ReadAll(res.Body)
			if res.StatusCode != tt.wantStatus {
				t.Fatalf("%s: expected status %d got %d body=%s", tt.name, tt.wantStatus, res.StatusCode, string(data))
			}
			if !tt.wantToken {
				return
			}

			var ar struct {
				Token string       `json:"token"`
				User  *models.User `json:"user"`
			}
			if err := json.Unmarshal(data, &ar); err != nil || ar.Token == "" {
				t.Fatalf("no token in %s", data)
			}
			claims := &api.Claims{}
			if _, err := jwt.ParseWithClaims(ar.Token, claims, func(*jwt.Token) (any, error) { return []byte(secret), nil }); err != nil {
				t.Fatalf("parse token: %v", err)
			}
			if claims.UserID == "" || claims.UserID != ar.User.ID || claims.Email != ar.User.Email {
				t.Fatalf("claims %+v do not match user %+v", claims, ar.User)
			}
			if claims.ExpiresAt == nil || claims.ExpiresAt.Before(time.Now()) {
				t.Fatalf("invalid exp claim")
			}
		})
	}
}

func TestMe(t *testing.T) {
	mocks := mock.NewMocks()
	mocks.Users.Stored = &models.User{ID: "u-1", Email: "me@example.com", FirstName: "Me"}
	handler := api.NewAuthHandler(mocks.Users, "s", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	w := httptest.NewRecorder()
	handler.Me(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401 got %d", w.Code)
	}

	ctx := authz.WithActor(context.Background(), authz.Actor{ID: "u-1"})
	w = httptest.NewRecorder()
	handler.Me(w, req.WithContext(ctx))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	var u models.User
	if err := json.Unmarshal(w.Body.Bytes(), &u); err != nil || u.Email != "me@example.com" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Fatalf("password hash leaked: %s", w.Body.String())
	}
}

func TestUpdateMe(t *testing.T) {
	tests := []struct {
		name       string
		actor      string
		body       string
		prepare    func(m *mock.Mocks)
		wantStatus int
		wantUser   models.User
	}{
		{name: "Anonymous", body: `{"first_name":"X"}`, wantStatus: http.StatusUnauthorized},
		{name: "InvalidJSON", actor: "u-1", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "BadTimezone", actor: "u-1", body: `{"timezone":"Mars/Base"}`, wantStatus: http.StatusBadRequest},
		{name: "EmptyTimezone", actor: "u-1", body: `{"timezone":""}`, wantStatus: http.StatusBadRequest},
		{name: "LongName", actor: "u-1", body: `{"last_name":"` + strings.Repeat("x", 151) + `"}`, wantStatus: http.StatusBadRequest},
		{name: "UnknownUser", actor: "u-9", body: `{"first_name":"X"}`, wantStatus: http.StatusNotFound},
		{
			name:       "StoreFailure",
			actor:      "u-1",
			body:       `{"first_name":"X"}`,
			prepare:    func(m *mock.Mocks) { m.Users.UpdateErr = errors.New("disk full") },
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "Partial",
			actor:      "u-1",
			body:       `{"first_name":"  Ana ","timezone":"America/Sao_Paulo"}`,
			wantStatus: http.StatusOK,
			wantUser:   models.User{ID: "u-1", Email: "me@example.com", FirstName: "Ana", LastName: "Silva", Timezone: "America/Sao_Paulo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mocks := mock.NewMocks()
			mocks.Users.Stored = &models.User{ID: "u-1", Email: "me@example.com", FirstName: "Me", LastName: "Silva", Timezone: "UTC"}
			if tt.prepare != nil {
				tt.prepare(mocks)
			}
			handler := api.NewAuthHandler(mocks.Users, "s", time.Hour)

			req := httptest.NewRequest(http.MethodPatch, "/me", strings.NewReader(tt.body))
			if tt.actor != "" {
				req = req.WithContext(authz.WithActor(req.Context(), authz.Actor{ID: tt.actor}))
			}
			w := httptest.NewRecorder()
			handler.UpdateMe(w, req)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d got %d body=%s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var got models.User
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			got.Created, got.Updated = time.Time{}, time.Time{}
			if got != tt.wantUser {
				t.Fatalf("user = %+v, want %+v", got, tt.wantUser)
			}
			if mocks.Users.Stored.Timezone != tt.wantUser.Timezone {
				t.Fatalf("stored timezone = %q", mocks.Users.Stored.Timezone)
			}
		})
	}
}
