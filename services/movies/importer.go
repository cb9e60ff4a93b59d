package movies

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"cineview/models"
)

const (
	importQueueSize  = 64
	importJobTimeout = 2 * time.Minute
)

// Importer materializes a complete multi-language movie record once a title
// is known to exist upstream. Jobs are delivered at most once, best effort: a
// full queue drops the job and the next cache miss for the movie re-derives
// it. Job execution is detached from the triggering request's lifetime.
type Importer struct {
	provider    MovieProvider
	store       Store
	languages   []string
	defaultLang string

	jobs chan int
	wg   sync.WaitGroup
	once sync.Once
}

func NewImporter(provider MovieProvider, store Store, languages []string, defaultLang string) *Importer {
	return &Importer{
		provider:    provider,
		store:       store,
		languages:   languages,
		defaultLang: defaultLang,
		jobs:        make(chan int, importQueueSize),
	}
}

// Start launches the worker goroutine.
func (i *Importer) Start() {
	i.wg.Add(1)
	go i.run()
}

// Stop drains the queue and waits for the worker to finish.
func (i *Importer) Stop() {
	i.once.Do(func() { close(i.jobs) })
	i.wg.Wait()
}

// Enqueue schedules an import without blocking the caller. Returns false when
// the queue is full and the job was dropped.
func (i *Importer) Enqueue(externalID int) bool {
	select {
	case i.jobs <- externalID:
		return true
	default:
		log.Printf("[import] queue full, dropping job for movie %d", externalID)
		return false
	}
}

func (i *Importer) run() {
	defer i.wg.Done()
	for externalID := range i.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), importJobTimeout)
		if err := i.Import(ctx, externalID); err != nil {
			log.Printf("[import] movie %d failed: %v", externalID, err)
		}
		cancel()
	}
}

// Import fetches every supported language concurrently, selects the canonical
// result, deduplicates localizations against it and persists the aggregate.
// A uniqueness conflict on the external id means a concurrent import already
// committed; that is success, not an error.
func (i *Importer) Import(ctx context.Context, externalID int) error {
	results := i.fetchAllLanguages(ctx, externalID)
	if len(results) == 0 {
		return fmt.Errorf("movie %d: no language fetch succeeded: %w", externalID, models.ErrUpstream)
	}

	canonicalLang, canonical := i.pickCanonical(results)
	movie := buildMovie(externalID, canonical)

	movie.Localizations = append(movie.Localizations, newLocalization(movie, canonicalLang, canonical))
	for _, lang := range i.languages {
		ext, ok := results[lang]
		if !ok || lang == canonicalLang {
			continue
		}
		// Identical text in another language is almost always the catalog
		// echoing its fallback; storing it twice buys nothing.
		if ext.Title == canonical.Title && ext.Overview == canonical.Overview {
			log.Printf("[import] skipping %s for movie %d: matches canonical content", lang, externalID)
			continue
		}
		movie.Localizations = append(movie.Localizations, newLocalization(movie, lang, ext))
	}

	if err := i.store.InsertMovie(ctx, movie); err != nil {
		if errors.Is(err, models.ErrConflict) {
			log.Printf("[import] movie %d already exists", externalID)
			return nil
		}
		return err
	}

	log.Printf("[import] movie %d materialized with %d localizations", externalID, len(movie.Localizations))
	return nil
}

// fetchAllLanguages issues one fetch per supported language concurrently.
// Partial failures are tolerated; a failed language is simply absent from the
// result set.
func (i *Importer) fetchAllLanguages(ctx context.Context, externalID int) map[string]*models.ExternalMovie {
	var mu sync.Mutex
	results := make(map[string]*models.ExternalMovie, len(i.languages))

	p := pool.New().WithMaxGoroutines(len(i.languages))
	for _, lang := range i.languages {
		p.Go(func() {
			ext, err := i.provider.FetchDetails(ctx, externalID, lang)
			if err != nil {
				log.Printf("[import] fetch %s for movie %d failed: %v", lang, externalID, err)
				return
			}
			mu.Lock()
			results[lang] = ext
			mu.Unlock()
		})
	}
	p.Wait()
	return results
}

// pickCanonical prefers the default language; when its fetch failed the first
// successful result in configured language order stands in. The configured
// order makes the tie-break deterministic despite concurrent completion.
func (i *Importer) pickCanonical(results map[string]*models.ExternalMovie) (string, *models.ExternalMovie) {
	if ext, ok := results[i.defaultLang]; ok {
		return i.defaultLang, ext
	}
	for _, lang := range i.languages {
		if ext, ok := results[lang]; ok {
			return lang, ext
		}
	}
	return "", nil
}

func buildMovie(externalID int, canonical *models.ExternalMovie) *models.Movie {
	movie := &models.Movie{
		ID:         models.NewMovieID(),
		ExternalID: externalID,
		PosterPath: canonical.PosterPath,
		TrailerURL: canonical.TrailerURL,
	}
	if !canonical.ReleaseDate.IsZero() {
		movie.Year = canonical.ReleaseDate.Year()
	}
	if canonical.BackdropPath != "" {
		backdrop := canonical.BackdropPath
		movie.BackdropPath = &backdrop
	}
	return movie
}

func newLocalization(movie *models.Movie, lang string, ext *models.ExternalMovie) models.Localization {
	loc := models.Localization{
		ID:           models.NewMovieID(),
		MovieID:      movie.ID,
		LanguageCode: lang,
		Title:        ext.Title,
	}
	if strings.TrimSpace(ext.Overview) != "" {
		overview := ext.Overview
		loc.Description = &overview
	}
	return loc
}
