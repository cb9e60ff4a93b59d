// Package movies orchestrates the read path for localized movie details:
// cache, then local store, then the upstream provider, with a background
// import kicked off for every newly discovered title.
package movies

import (
	"context"
	"fmt"
	"strings"

	"cineview/models"
	"cineview/services/cache"
)

// MovieProvider fetches catalog metadata for one (id, language) pair.
type MovieProvider interface {
	FetchDetails(ctx context.Context, id int, lang string) (*models.ExternalMovie, error)
}

// Store is the local movie repository surface the service needs.
type Store interface {
	FindLocalizedMovie(ctx context.Context, externalID int, lang, defaultLang string) (*models.MovieView, error)
	InsertMovie(ctx context.Context, movie *models.Movie) error
}

// ImportQueue accepts fire-and-forget import jobs. Enqueue reports whether the
// job was accepted; a dropped job is re-derivable on the next cache miss.
type ImportQueue interface {
	Enqueue(externalID int) bool
}

type Service struct {
	cache       *cache.Cache
	store       Store
	provider    MovieProvider
	importer    ImportQueue
	defaultLang string
}

func NewService(c *cache.Cache, store Store, provider MovieProvider, importer ImportQueue, defaultLang string) *Service {
	return &Service{
		cache:       c,
		store:       store,
		provider:    provider,
		importer:    importer,
		defaultLang: defaultLang,
	}
}

// movieKey keeps one cache entry per (id, language) pair so a translation
// miss for one language never serves another language's data.
func movieKey(id int, lang string) string {
	return fmt.Sprintf("movie:%d:%s", id, lang)
}

// GetMovie returns the localized view for an external id. Concurrent callers
// on a cold key share one fetch; a filled local store short-circuits the
// upstream call entirely. Failures are never left behind in the cache.
func (s *Service) GetMovie(ctx context.Context, id int, lang string) (*models.MovieView, error) {
	key := movieKey(id, lang)

	view, err := cache.GetOrSet(ctx, s.cache, key, func(ctx context.Context) (*models.MovieView, error) {
		existing, err := s.store.FindLocalizedMovie(ctx, id, lang, s.defaultLang)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}

		ext, err := s.provider.FetchDetails(ctx, id, lang)
		if err != nil {
			return nil, err
		}
		if ext.ExternalID == 0 {
			ext.ExternalID = id
		}

		// Fire and forget: the in-flight request does not wait for the import.
		s.importer.Enqueue(ext.ExternalID)

		return viewFromExternal(ext, lang), nil
	})
	if err != nil {
		// The cache never stores failures, but evict anyway so no stale copy
		// can mask a definitive upstream answer.
		s.cache.Remove(key)
		return nil, err
	}
	if view == nil {
		s.cache.Remove(key)
		return nil, models.ErrNotFound
	}
	return view, nil
}

func viewFromExternal(ext *models.ExternalMovie, lang string) *models.MovieView {
	view := &models.MovieView{
		ID:         ext.ExternalID,
		PosterPath: ext.PosterPath,
		TrailerURL: ext.TrailerURL,
	}
	if !ext.ReleaseDate.IsZero() {
		view.Year = ext.ReleaseDate.Year()
	}
	if ext.BackdropPath != "" {
		backdrop := ext.BackdropPath
		view.BackdropPath = &backdrop
	}
	loc := &models.LocalizationView{
		LanguageCode: lang,
		Title:        ext.Title,
	}
	if strings.TrimSpace(ext.Overview) != "" {
		overview := ext.Overview
		loc.Overview = &overview
	}
	view.Localization = loc
	return view
}
