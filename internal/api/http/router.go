package http

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"

	"github.com/vadimbarashkov/keyurl/internal/models"
)

// URLService defines the interface for the core URL-shortening business logic.
type URLService interface {
	// ShortenURL creates a record for the original URL guarded by ownerKey.
	// It returns the generated slug along with the record details.
	ShortenURL(ctx context.Context, originalURL, ownerKey string) (*models.URL, error)

	// ResolveSlug retrieves the original URL for a slug and counts the access.
	// It returns models.ErrURLNotFound if the slug is unknown.
	ResolveSlug(ctx context.Context, slug string) (*models.URL, error)

	// GetURLStats retrieves the access statistics of a record. It returns
	// models.ErrOwnerKeyMismatch if ownerKey doesn't match the record.
	GetURLStats(ctx context.Context, slug, ownerKey string) (*models.URL, error)

	// RotateOwnerKey replaces the record's owner key with newKey.
	RotateOwnerKey(ctx context.Context, slug, ownerKey, newKey string) error

	// DeleteURL removes the record entirely, including its stats.
	DeleteURL(ctx context.Context, slug, ownerKey string) error
}

// getValidate initializes a new validator instance for validating incoming request payloads.
// It customizes tag name extraction from struct fields to match JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// NewRouter initializes and returns a new HTTP router with all routes and middleware configured.
// slugLength is the exact length a path slug must have to reach the service layer.
func NewRouter(logger *httplog.Logger, urlSvc URLService, slugLength int) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	validate := getValidate()
	slugPattern := regexp.MustCompile(fmt.Sprintf(`^[A-Za-z0-9_-]{%d}$`, slugLength))

	r.Get("/ping", handlePing)
	r.Get("/metrics", handleMetrics)

	r.Post("/", handleShortenURL(urlSvc, validate))

	r.Route("/{slug}", func(r chi.Router) {
		r.Get("/", handleRedirect(urlSvc, slugPattern))
		r.Get("/stats", handleGetURLStats(urlSvc, slugPattern))
		r.Patch("/", handleRotateOwnerKey(urlSvc, validate, slugPattern))
		r.Delete("/", handleDeleteURL(urlSvc, slugPattern))
	})

	return r
}
