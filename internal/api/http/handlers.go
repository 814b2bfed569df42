package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/vadimbarashkov/keyurl/internal/models"
	"github.com/vadimbarashkov/keyurl/pkg/response"
)

// maxOwnerKeyLen bounds the owner key everywhere it is accepted: create
// bodies, rotate bodies and the key query parameter.
const maxOwnerKeyLen = 64

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// handleMetrics exposes process metrics in Prometheus text format.
func handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics.WritePrometheus(w, true)
}

// shortenRequest represents the request payload for creating a shortened URL.
type shortenRequest struct {
	Key string `json:"key" validate:"required,max=64"`
	URL string `json:"url" validate:"required,url"`
}

// rotateKeyRequest represents the request payload for rotating a record's owner key.
type rotateKeyRequest struct {
	Key string `json:"key" validate:"required,max=64"`
}

// statsResponse represents the response payload for a stats query.
type statsResponse struct {
	TotalAccesses uint64 `json:"total_accesses"`
}

// slugFromRequest extracts and validates the slug path parameter. It writes a
// 400 response and returns false when the slug doesn't match the expected
// format, so a malformed slug never reaches the service layer.
func slugFromRequest(w http.ResponseWriter, r *http.Request, slugPattern *regexp.Regexp) (string, bool) {
	slug := chi.URLParam(r, "slug")

	if !slugPattern.MatchString(slug) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.BadRequestResponse)
		return "", false
	}

	return slug, true
}

// ownerKeyFromQuery extracts and validates the key query parameter used as the
// bearer credential on stats, rotate and delete requests.
func ownerKeyFromQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.URL.Query().Get("key")

	if key == "" || len(key) > maxOwnerKeyLen {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.BadRequestResponse)
		return "", false
	}

	return key, true
}

// handleRedirect handles GET requests to resolve a slug into a redirect to
// the original URL.
//
// A successful lookup answers with a permanent redirect; counting the access
// happens in the background and never delays the response.
func handleRedirect(svc URLService, slugPattern *regexp.Regexp) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		slug, ok := slugFromRequest(w, r, slugPattern)
		if !ok {
			return
		}

		url, err := svc.ResolveSlug(r.Context(), slug)
		if err != nil {
			if errors.Is(err, models.ErrURLNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		http.Redirect(w, r, url.OriginalURL, http.StatusMovedPermanently)
	}
}

// handleGetURLStats handles GET requests to retrieve the access count of a
// shortened URL. The caller must present the record's owner key via the key
// query parameter.
func handleGetURLStats(svc URLService, slugPattern *regexp.Regexp) http.HandlerFunc {
	const op = "api.http.handleGetURLStats"

	return func(w http.ResponseWriter, r *http.Request) {
		slug, ok := slugFromRequest(w, r, slugPattern)
		if !ok {
			return
		}

		ownerKey, ok := ownerKeyFromQuery(w, r)
		if !ok {
			return
		}

		url, err := svc.GetURLStats(r.Context(), slug, ownerKey)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrURLNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
			case errors.Is(err, models.ErrOwnerKeyMismatch):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.UnauthorizedResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, statsResponse{TotalAccesses: url.AccessCount})
	}
}

// handleShortenURL handles POST requests to shorten a URL.
//
// The request must contain a valid absolute URL and an owner key. On success
// the generated slug is returned as plain text with a 201 status.
func handleShortenURL(svc URLService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleShortenURL"

	return func(w http.ResponseWriter, r *http.Request) {
		var req shortenRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		url, err := svc.ShortenURL(r.Context(), req.URL, req.Key)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusCreated)
		render.PlainText(w, r, url.Slug)
	}
}

// handleRotateOwnerKey handles PATCH requests to rotate a record's owner key.
//
// The current key arrives via the key query parameter, the replacement in the
// request body. Only the owner key changes; the target URL and the access
// counter are untouched.
func handleRotateOwnerKey(svc URLService, validate *validator.Validate, slugPattern *regexp.Regexp) http.HandlerFunc {
	const op = "api.http.handleRotateOwnerKey"
	const successMsg = "The owner key was successfully rotated."

	return func(w http.ResponseWriter, r *http.Request) {
		slug, ok := slugFromRequest(w, r, slugPattern)
		if !ok {
			return
		}

		ownerKey, ok := ownerKeyFromQuery(w, r)
		if !ok {
			return
		}

		var req rotateKeyRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		err := svc.RotateOwnerKey(r.Context(), slug, ownerKey, req.Key)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrURLNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
			case errors.Is(err, models.ErrOwnerKeyMismatch):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.UnauthorizedResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}

// handleDeleteURL handles DELETE requests to remove a shortened URL.
//
// Deletion removes the whole record, stats included; a second delete of the
// same slug reports 404.
func handleDeleteURL(svc URLService, slugPattern *regexp.Regexp) http.HandlerFunc {
	const op = "api.http.handleDeleteURL"
	const successMsg = "The URL was successfully deleted."

	return func(w http.ResponseWriter, r *http.Request) {
		slug, ok := slugFromRequest(w, r, slugPattern)
		if !ok {
			return
		}

		ownerKey, ok := ownerKeyFromQuery(w, r)
		if !ok {
			return
		}

		err := svc.DeleteURL(r.Context(), slug, ownerKey)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrURLNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
			case errors.Is(err, models.ErrOwnerKeyMismatch):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.UnauthorizedResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}
