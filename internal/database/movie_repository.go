package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"cineview/models"
)

// MovieRepository persists imported movies and their localizations. Movies are
// written once; the only mutation is the append-only AddLocalization.
type MovieRepository struct {
	conn *sql.DB
}

func NewMovieRepository(conn *sql.DB) *MovieRepository {
	return &MovieRepository{conn: conn}
}

// FindLocalizedMovie returns the localized view for an external id, preferring
// the requested language and falling back to defaultLang. Returns nil without
// error when the movie is not stored locally.
func (r *MovieRepository) FindLocalizedMovie(ctx context.Context, externalID int, lang, defaultLang string) (*models.MovieView, error) {
	row := r.conn.QueryRowContext(ctx, `
		SELECT m.external_id, m.year, m.poster_path, m.backdrop_path, m.trailer_url,
		       l.language_code, l.title, l.description
		FROM movies m
		LEFT JOIN movie_localizations l
		  ON l.movie_id = m.id AND l.language_code IN (?, ?)
		WHERE m.external_id = ?
		ORDER BY (l.language_code = ?) DESC
		LIMIT 1`,
		lang, defaultLang, externalID, lang)

	var (
		view     models.MovieView
		langCode sql.NullString
		title    sql.NullString
		desc     sql.NullString
	)
	err := row.Scan(&view.ID, &view.Year, &view.PosterPath, &view.BackdropPath, &view.TrailerURL,
		&langCode, &title, &desc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find movie %d: %v", models.ErrPersistence, externalID, err)
	}

	if langCode.Valid {
		loc := &models.LocalizationView{
			LanguageCode: langCode.String,
			Title:        title.String,
		}
		if desc.Valid {
			loc.Overview = &desc.String
		}
		view.Localization = loc
	}
	return &view, nil
}

// InsertMovie writes the movie and its localizations atomically. A unique
// violation on the external id maps to models.ErrConflict so a racing import
// can treat it as success.
func (r *MovieRepository) InsertMovie(ctx context.Context, movie *models.Movie) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin insert: %v", models.ErrPersistence, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO movies (id, external_id, year, poster_path, backdrop_path, trailer_url)
		VALUES (?, ?, ?, ?, ?, ?)`,
		movie.ID.String(), movie.ExternalID, movie.Year, movie.PosterPath, movie.BackdropPath, movie.TrailerURL)
	if err != nil {
		return classifyInsertErr("insert movie", err)
	}

	for _, loc := range movie.Localizations {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO movie_localizations (id, movie_id, language_code, title, description)
			VALUES (?, ?, ?, ?, ?)`,
			loc.ID.String(), movie.ID.String(), loc.LanguageCode, loc.Title, loc.Description)
		if err != nil {
			return classifyInsertErr("insert localization", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classifyInsertErr("commit insert", err)
	}
	return nil
}

// AddLocalization appends one localization to an existing movie. Duplicate
// (movie, language) pairs map to models.ErrConflict.
func (r *MovieRepository) AddLocalization(ctx context.Context, movieID uuid.UUID, loc models.Localization) error {
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO movie_localizations (id, movie_id, language_code, title, description)
		VALUES (?, ?, ?, ?, ?)`,
		loc.ID.String(), movieID.String(), loc.LanguageCode, loc.Title, loc.Description)
	if err != nil {
		return classifyInsertErr("add localization", err)
	}
	return nil
}

// GetByExternalID loads a movie with all its localizations. Returns
// models.ErrNotFound when no row exists.
func (r *MovieRepository) GetByExternalID(ctx context.Context, externalID int) (*models.Movie, error) {
	var (
		movie models.Movie
		rawID string
	)
	row := r.conn.QueryRowContext(ctx, `
		SELECT id, external_id, year, poster_path, backdrop_path, trailer_url, created_at
		FROM movies WHERE external_id = ?`, externalID)
	err := row.Scan(&rawID, &movie.ExternalID, &movie.Year, &movie.PosterPath,
		&movie.BackdropPath, &movie.TrailerURL, &movie.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get movie %d: %v", models.ErrPersistence, externalID, err)
	}
	if movie.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("%w: parse movie id %q: %v", models.ErrPersistence, rawID, err)
	}

	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, movie_id, language_code, title, description
		FROM movie_localizations WHERE movie_id = ?
		ORDER BY language_code`, movie.ID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: load localizations for %d: %v", models.ErrPersistence, externalID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			loc          models.Localization
			locID, movID string
		)
		if err := rows.Scan(&locID, &movID, &loc.LanguageCode, &loc.Title, &loc.Description); err != nil {
			return nil, fmt.Errorf("%w: scan localization: %v", models.ErrPersistence, err)
		}
		loc.ID, _ = uuid.Parse(locID)
		loc.MovieID, _ = uuid.Parse(movID)
		movie.Localizations = append(movie.Localizations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate localizations: %v", models.ErrPersistence, err)
	}
	return &movie, nil
}

func classifyInsertErr(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%s: %w", op, models.ErrConflict)
		}
	}
	return fmt.Errorf("%w: %s: %v", models.ErrPersistence, op, err)
}
