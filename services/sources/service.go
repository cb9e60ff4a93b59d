// Package sources aggregates streaming availability: a cached offer list per
// (movie, region) in front of a separately cached provider-id resolution.
// The id mapping rarely changes, so it lives in the longer-lived cache; the
// offer list is fully replaced on every refresh, never merged.
package sources

import (
	"context"
	"fmt"
	"log"

	"cineview/models"
	"cineview/services/cache"
)

// SourceProvider is the streaming availability client surface.
type SourceProvider interface {
	ResolveID(ctx context.Context, externalID int) (int64, error)
	Sources(ctx context.Context, titleID int64, region string) ([]models.StreamingSource, error)
}

// DefaultRegion is used when the caller does not name one.
const DefaultRegion = "US"

type Service struct {
	cache    *cache.Cache
	idCache  *cache.Cache
	provider SourceProvider
}

// NewService wires the offer-list cache and the stable-id cache. idCache is
// expected to carry longer TTLs than cache.
func NewService(c, idCache *cache.Cache, provider SourceProvider) *Service {
	return &Service{cache: c, idCache: idCache, provider: provider}
}

func sourcesKey(id int, region string) string {
	return fmt.Sprintf("sources:%d:%s", id, region)
}

func idKey(id int) string {
	return fmt.Sprintf("watchmode_id:%d", id)
}

// GetSources returns the streaming offers for an external movie id in a
// region. A no-match id resolution yields an empty list and caches nothing:
// the only way to tell "not on any service yet" from "will match tomorrow" is
// to keep asking.
func (s *Service) GetSources(ctx context.Context, externalID int, region string) ([]models.StreamingSource, error) {
	if region == "" {
		region = DefaultRegion
	}
	key := sourcesKey(externalID, region)

	var cached []models.StreamingSource
	if s.cache.Lookup(key, &cached) {
		return cached, nil
	}

	titleID, err := s.resolveID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if titleID == 0 {
		return []models.StreamingSource{}, nil
	}

	srcs, err := s.provider.Sources(ctx, titleID, region)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(key, srcs); err != nil {
		log.Printf("[sources] failed to cache offers for movie %d: %v", externalID, err)
	}
	return srcs, nil
}

// resolveID maps the external id to the provider's title id through the
// stable-id cache. Zero (no match) is evicted immediately so every later call
// retries resolution until a match appears.
func (s *Service) resolveID(ctx context.Context, externalID int) (int64, error) {
	key := idKey(externalID)

	titleID, err := cache.GetOrSet(ctx, s.idCache, key, func(ctx context.Context) (int64, error) {
		return s.provider.ResolveID(ctx, externalID)
	})
	if err != nil {
		s.idCache.Remove(key)
		return 0, err
	}
	if titleID == 0 {
		s.idCache.Remove(key)
	}
	return titleID, nil
}
