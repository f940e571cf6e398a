package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/apptrack/internal/applications"
	"github.com/garnizeh/apptrack/internal/attachments"
	"github.com/garnizeh/apptrack/internal/config"
	"github.com/garnizeh/apptrack/internal/notifications"
	"github.com/garnizeh/apptrack/internal/reminders"
	"github.com/garnizeh/apptrack/pkg/repository"
)

// Deps are the services behind the HTTP API.
type Deps struct {
	DB            Pinger
	Users         repository.UserRepo
	Jobs          repository.JobQueue
	Applications  *applications.Service
	Reminders     *reminders.Service
	Attachments   *attachments.Service
	Notifications *notifications.Service
	// Limiter enables rate limiting when set.
	Limiter Limiter
}

func SetupRoutes(cfg *config.Config, version, buildTime string, deps Deps) *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, errorResponse{Detail: "Not found."}, http.StatusNotFound)
	})

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORS(cfg.CORSOrigins))
	r.Use(RecoveryMiddleware)
	r.Use(TimeoutMiddleware(cfg.APITimeout))

	limit := RateLimit(deps.Limiter, cfg.RateLimit.Requests, cfg.RateLimit.Window)

	// Create handlers
	systemHandler := &SystemHandler{DB: deps.DB}
	authHandler := NewAuthHandler(deps.Users, cfg.JWTSecret, cfg.TokenDuration)
	appsHandler := NewApplicationsHandler(deps.Applications)
	remindersHandler := NewRemindersHandler(deps.Reminders)
	attachmentsHandler := NewAttachmentsHandler(deps.Attachments)
	notificationsHandler := NewNotificationsHandler(deps.Notifications)
	adminHandler := NewAdminHandler(deps.Jobs)

	// Preflight requests are answered by the CORS middleware.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.Handle("/v1/auth/signup", limit(http.HandlerFunc(authHandler.Signup))).Methods("POST")
	r.Handle("/v1/auth/signin", limit(http.HandlerFunc(authHandler.Signin))).Methods("POST")

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))
	apiV1.Use(limit)

	// Auth endpoints
	apiV1.HandleFunc("/auth/signout", authHandler.Signout).Methods("POST")
	apiV1.HandleFunc("/auth/me", authHandler.Me).Methods("GET")
	apiV1.HandleFunc("/auth/me", authHandler.UpdateMe).Methods("PATCH")

	// Applications
	apiV1.HandleFunc("/applications", appsHandler.List).Methods("GET")
	apiV1.HandleFunc("/applications", appsHandler.Create).Methods("POST")
	apiV1.HandleFunc("/applications/{id}", appsHandler.Get).Methods("GET")
	apiV1.HandleFunc("/applications/{id}", appsHandler.Update).Methods("PATCH")
	apiV1.HandleFunc("/applications/{id}", appsHandler.Delete).Methods("DELETE")
	apiV1.HandleFunc("/applications/{id}/status", appsHandler.UpdateStatus).Methods("PATCH")
	apiV1.HandleFunc("/applications/{id}/timeline", appsHandler.Timeline).Methods("GET")
	apiV1.HandleFunc("/applications/{id}/reminders", remindersHandler.ListForApplication).Methods("GET")
	apiV1.HandleFunc("/applications/{id}/reminders", remindersHandler.Create).Methods("POST")
	apiV1.HandleFunc("/applications/{id}/attachments", attachmentsHandler.List).Methods("GET")
	apiV1.HandleFunc("/applications/{id}/attachments", attachmentsHandler.Upload).Methods("POST")

	// Reminders
	apiV1.HandleFunc("/reminders", remindersHandler.List).Methods("GET")
	apiV1.HandleFunc("/reminders/upcoming", remindersHandler.Upcoming).Methods("GET")
	apiV1.HandleFunc("/reminders/{id:[0-9]+}", remindersHandler.Get).Methods("GET")
	apiV1.HandleFunc("/reminders/{id:[0-9]+}", remindersHandler.Update).Methods("PATCH")
	apiV1.HandleFunc("/reminders/{id:[0-9]+}", remindersHandler.Delete).Methods("DELETE")
	apiV1.HandleFunc("/reminders/{id:[0-9]+}/resend", remindersHandler.Resend).Methods("POST")

	// Attachments
	apiV1.HandleFunc("/attachments/{id}", attachmentsHandler.Get).Methods("GET")
	apiV1.HandleFunc("/attachments/{id}", attachmentsHandler.Delete).Methods("DELETE")
	apiV1.HandleFunc("/attachments/{id}/download", attachmentsHandler.Download).Methods("GET")
	apiV1.HandleFunc("/attachments/{id}/content", attachmentsHandler.Content).Methods("GET")

	// Notifications
	apiV1.HandleFunc("/notifications", notificationsHandler.List).Methods("GET")
	apiV1.HandleFunc("/notifications/unread", notificationsHandler.Unread).Methods("GET")
	apiV1.HandleFunc("/notifications/{id}/read", notificationsHandler.MarkRead).Methods("PUT")

	// Staff
	apiV1.HandleFunc("/admin/jobs/dead", adminHandler.DeadLetters).Methods("GET")

	return r
}
