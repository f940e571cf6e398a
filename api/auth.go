package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/pkg/repository"
)

const (
	minPasswordLength = 8
	maxNameLength     = 150
)

type AuthHandler struct {
	users         repository.UserRepo
	jwtSecret     string
	tokenDuration time.Duration
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
func NewAuthHandler(users repository.UserRepo, jwtSecret string, tokenDuration time.Duration) *AuthHandler {
	return &AuthHandler{users: users, jwtSecret: jwtSecret, tokenDuration: tokenDuration}
}

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Timezone  string `json:"timezone"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	ve := &apperr.ValidationError{}
	if req.Email == "" {
		ve.Add("email", "This field is required.")
	} else if _, err := mail.ParseAddress(req.Email); err != nil {
		ve.Add("email", "Enter a valid email address.")
	}
	if len(req.Password) < minPasswordLength {
		ve.Add("password", "Ensure this field has at least 8 characters.")
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			ve.Add("timezone", "Unknown time zone.")
		}
	}
	if err := ve.OrNil(); err != nil {
		writeError(w, r, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, err)
		return
	}

	u := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Timezone:     req.Timezone,
	}
	if err := h.users.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			err = apperr.NewValidation("email", "A user with that email already exists.")
		}
		writeError(w, r, err)
		return
	}

	h.respondWithToken(w, r, u, http.StatusCreated)
}

func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, apperr.BadRequest("email and password are required"))
		return
	}

	u, err := h.users.GetUserByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		writeError(w, r, err)
		return
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		writeJSON(w, errorResponse{Detail: "Credentials not found"}, http.StatusUnauthorized)
		return
	}

	h.respondWithToken(w, r, u, http.StatusOK)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, u *models.User, status int) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:  u.ID,
		Email:   u.Email,
		IsStaff: u.IsStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenDuration)),
		},
	})
	tokenStr, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, authResponse{Token: tokenStr, User: u}, status)
}

// Signout is a no-op for stateless tokens; the client drops the token.
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"message": "signed out"}, http.StatusOK)
}

// profileRequest is a partial profile update. Nil fields are left unchanged.
type profileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Timezone  *string `json:"timezone"`
}

// UpdateMe serves PATCH /v1/auth/me. Email and password are not editable
// here.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.ID == "" {
		writeError(w, r, apperr.ErrUnauthenticated)
		return
	}
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.GetUserByID(r.Context(), actor.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ve := &apperr.ValidationError{}
	if req.FirstName != nil {
		u.FirstName = strings.TrimSpace(*req.FirstName)
		if len([]rune(u.FirstName)) > maxNameLength {
			ve.Add("first_name", "Ensure this field has no more than 150 characters.")
		}
	}
	if req.LastName != nil {
		u.LastName = strings.TrimSpace(*req.LastName)
		if len([]rune(u.LastName)) > maxNameLength {
			ve.Add("last_name", "Ensure this field has no more than 150 characters.")
		}
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil || *req.Timezone == "" {
			ve.Add("timezone", "Unknown time zone.")
		}
		u.Timezone = *req.Timezone
	}
	if err := ve.OrNil(); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.users.UpdateUser(r.Context(), u); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, u, http.StatusOK)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.ID == "" {
		writeError(w, r, apperr.ErrUnauthenticated)
		return
	}
	u, err := h.users.GetUserByID(r.Context(), actor.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, u, http.StatusOK)
}
