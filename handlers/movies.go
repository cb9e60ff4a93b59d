package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"cineview/internal/auth"
	"cineview/models"
	"cineview/services/movies"
	"cineview/services/sources"
)

type movieService interface {
	GetMovie(ctx context.Context, id int, lang string) (*models.MovieView, error)
}

type sourcesService interface {
	GetSources(ctx context.Context, externalID int, region string) ([]models.StreamingSource, error)
}

var (
	_ movieService   = (*movies.Service)(nil)
	_ sourcesService = (*sources.Service)(nil)
)

type MovieHandler struct {
	Movies  movieService
	Sources sourcesService
}

func NewMovieHandler(m movieService, s sourcesService) *MovieHandler {
	return &MovieHandler{Movies: m, Sources: s}
}

// SourcesResponse wraps the offer list.
type SourcesResponse struct {
	Sources []models.StreamingSource `json:"sources"`
}

// GetMovie serves GET /api/movies/{id}. The language comes from the request
// context (token claim or Accept-Language, resolved by middleware).
func (h *MovieHandler) GetMovie(w http.ResponseWriter, r *http.Request) {
	id, ok := parseMovieID(w, r)
	if !ok {
		return
	}

	view, err := h.Movies.GetMovie(r.Context(), id, auth.PreferredLanguage(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// GetSources serves GET /api/movies/{id}/sources?region=US. An empty offer
// list is a 404, matching the movie-not-streamable semantics clients expect.
func (h *MovieHandler) GetSources(w http.ResponseWriter, r *http.Request) {
	id, ok := parseMovieID(w, r)
	if !ok {
		return
	}

	srcs, err := h.Sources.GetSources(r.Context(), id, r.URL.Query().Get("region"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if len(srcs) == 0 {
		writeError(w, r, http.StatusNotFound, "no streaming sources found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SourcesResponse{Sources: srcs})
}

func parseMovieID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "movie id must be a positive integer")
		return 0, false
	}
	return id, true
}

// writeServiceError maps the error taxonomy onto status codes. Anything
// outside the taxonomy is a 500 with only the trace id exposed.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "movie not found")
	case errors.Is(err, models.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "upstream rejected credentials")
	default:
		log.Printf("[handlers] %s %s traceId=%s: %v", r.Method, r.URL.Path, auth.TraceID(r), err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   msg,
		"traceId": auth.TraceID(r),
	})
}
