package models

import (
	"time"

	"github.com/google/uuid"
)

// Movie is the canonical, language-independent record for an imported title.
// It is created once by the import worker together with its localizations and
// never mutated afterwards.
type Movie struct {
	ID            uuid.UUID      `json:"id"`
	ExternalID    int            `json:"externalId"`
	Year          int            `json:"year"`
	PosterPath    string         `json:"posterPath"`
	BackdropPath  *string        `json:"backdropPath,omitempty"`
	TrailerURL    *string        `json:"trailerUrl,omitempty"`
	Localizations []Localization `json:"localizations,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Localization is a language-specific projection of a movie. A movie holds at
// most one localization per language code.
type Localization struct {
	ID           uuid.UUID `json:"id"`
	MovieID      uuid.UUID `json:"movieId"`
	LanguageCode string    `json:"languageCode"`
	Title        string    `json:"title"`
	Description  *string   `json:"description,omitempty"`
}

// NewMovieID returns a time-ordered unique id. Falls back to a random id when
// the v7 source fails, which only happens if the system clock is unreadable.
func NewMovieID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// MovieView is the localized response shape served to clients. ID carries the
// external catalog id, not the internal row id.
type MovieView struct {
	ID           int               `json:"id"`
	Year         int               `json:"year"`
	PosterPath   string            `json:"posterPath"`
	BackdropPath *string           `json:"backdropPath,omitempty"`
	TrailerURL   *string           `json:"trailerUrl,omitempty"`
	Localization *LocalizationView `json:"localization,omitempty"`
}

// LocalizationView is the localized slice of a MovieView.
type LocalizationView struct {
	LanguageCode string  `json:"languageCode"`
	Title        string  `json:"title"`
	Overview     *string `json:"overview,omitempty"`
}

// ExternalMovie is the upstream catalog's answer for one (id, language) pair.
// It is never persisted directly; the import worker maps it into Movie and
// Localization rows.
type ExternalMovie struct {
	ExternalID   int
	Title        string
	Overview     string
	PosterPath   string
	BackdropPath string
	ReleaseDate  time.Time
	TrailerURL   *string
}

// StreamingSource is one offer from the streaming availability provider.
// Source lists live only in the cache and are fully replaced on refresh.
type StreamingSource struct {
	Name    string   `json:"providerName"`
	Type    string   `json:"type"`
	URL     string   `json:"url"`
	Quality string   `json:"quality"`
	Price   *float64 `json:"price,omitempty"`
}
