package api

import (
	"context"
	"net/http"
	"time"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/auth"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/db"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/location"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/models"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/session"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/types"
	"github.com/gorilla/mux"
)

type Collector interface {
	GetStats() types.CollectionStats
}

// Repository is the storage used by the handlers; *db.Repository implements it.
type Repository interface {
	Schema() models.Schema
	Insert(ctx context.Context, rec models.Record) (int64, error)
	List(ctx context.Context, filter db.ListFilter) ([]models.Record, error)
	Delete(ctx context.Context, ids []int64) (int64, error)

	CreateAPIKey(ctx context.Context, key, description string) (models.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]models.APIKey, error)
	DeleteAPIKey(ctx context.Context, id int64) error
	ValidateAPIKey(ctx context.Context, key string) bool
}

// Server holds the dependencies shared by every handler.
type Server struct {
	Repo      Repository
	Sessions  *session.Manager
	Verifier  auth.Verifier
	Bridge    *location.Bridge
	Collector Collector
	MasterKey string

	LoginLimiter *RateLimiter
	APILimiter   *RateLimiter

	now func() time.Time
}

func (s *Server) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// NewRouter creates and configures a new router with the page and API endpoints
func NewRouter(s *Server) *mux.Router {
	if s.LoginLimiter == nil {
		s.LoginLimiter = NewRateLimiter(20, 5*time.Minute)
	}
	if s.APILimiter == nil {
		s.APILimiter = NewRateLimiter(100, 5*time.Minute)
	}

	r := mux.NewRouter()
	r.Use(logRequests, securityHeaders)

	r.HandleFunc("/healthz", s.Health).Methods("GET")

	// API key management, guarded by the master key
	r.HandleFunc("/api/keys", s.CreateAPIKey).Methods("POST")
	r.HandleFunc("/api/keys", s.ListAPIKeys).Methods("GET")
	r.HandleFunc("/api/keys", s.DeleteAPIKey).Methods("DELETE")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.identifyAPIKey, s.APILimiter.Middleware, requireAPIKey)
	api.HandleFunc("/records", s.ListRecordsJSON).Methods("GET")
	api.HandleFunc("/records", s.DeleteRecordsJSON).Methods("DELETE")
	api.HandleFunc("/stats", s.GetCollectorStats).Methods("GET")

	pages := r.PathPrefix("/").Subrouter()
	pages.Use(s.loadSession)

	pages.HandleFunc("/", s.Index).Methods("GET")
	pages.HandleFunc("/login", s.LoginPage).Methods("GET")
	pages.Handle("/login", s.LoginLimiter.Middleware(http.HandlerFunc(s.Login))).Methods("POST")
	pages.HandleFunc("/logout", s.Logout).Methods("POST")

	// User view
	pages.HandleFunc("/form", s.FormPage).Methods("GET")
	pages.HandleFunc("/form", s.SubmitForm).Methods("POST")
	pages.HandleFunc("/location/request", s.RequestLocation).Methods("POST")
	pages.HandleFunc("/location/relay", s.RelayLocation).Methods("POST")
	pages.HandleFunc("/location/status", s.LocationStatus).Methods("GET")

	// Administrator view
	pages.HandleFunc("/admin", s.AdminPage).Methods("GET")
	pages.HandleFunc("/admin/delete", s.AdminDelete).Methods("POST")
	pages.HandleFunc("/admin/export.xlsx", s.AdminExport).Methods("GET")

	return r
}
