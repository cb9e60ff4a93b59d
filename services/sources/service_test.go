package sources

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"cineview/models"
	"cineview/services/cache"
)

type fakeProvider struct {
	mu           sync.Mutex
	resolveCalls int
	sourceCalls  int
	resolve      func(externalID int) (int64, error)
	sources      func(titleID int64, region string) ([]models.StreamingSource, error)
}

func (p *fakeProvider) ResolveID(_ context.Context, externalID int) (int64, error) {
	p.mu.Lock()
	p.resolveCalls++
	p.mu.Unlock()
	return p.resolve(externalID)
}

func (p *fakeProvider) Sources(_ context.Context, titleID int64, region string) ([]models.StreamingSource, error) {
	p.mu.Lock()
	p.sourceCalls++
	p.mu.Unlock()
	return p.sources(titleID, region)
}

func (p *fakeProvider) counts() (resolve, sources int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolveCalls, p.sourceCalls
}

func newTestService(provider *fakeProvider) *Service {
	fs := afero.NewMemMapFs()
	opts := cache.Options{MemorySize: 16, MemoryTTL: time.Minute, SoftTTL: time.Hour, HardTTL: 24 * time.Hour}
	return NewService(
		cache.New("sources", fs, "sources", opts),
		cache.New("watchmode_ids", fs, "ids", opts),
		provider,
	)
}

func netflixOffer() []models.StreamingSource {
	return []models.StreamingSource{{Name: "Netflix", Type: "sub", URL: "https://netflix.com/watch/1", Quality: "4K"}}
}

func TestGetSourcesResolvesAndCaches(t *testing.T) {
	provider := &fakeProvider{
		resolve: func(int) (int64, error) { return 1295258, nil },
		sources: func(titleID int64, region string) ([]models.StreamingSource, error) {
			if titleID != 1295258 || region != "US" {
				t.Errorf("sources called with (%d, %s)", titleID, region)
			}
			return netflixOffer(), nil
		},
	}
	svc := newTestService(provider)

	for i := 0; i < 3; i++ {
		got, err := svc.GetSources(context.Background(), 550, "US")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if len(got) != 1 || got[0].Name != "Netflix" {
			t.Fatalf("call %d: got %+v", i, got)
		}
	}

	resolves, fetches := provider.counts()
	if resolves != 1 || fetches != 1 {
		t.Fatalf("resolve=%d sources=%d, want one each", resolves, fetches)
	}
}

func TestGetSourcesDefaultsRegion(t *testing.T) {
	provider := &fakeProvider{
		resolve: func(int) (int64, error) { return 7, nil },
		sources: func(_ int64, region string) ([]models.StreamingSource, error) {
			if region != DefaultRegion {
				t.Errorf("region = %q, want default", region)
			}
			return netflixOffer(), nil
		},
	}
	if _, err := newTestService(provider).GetSources(context.Background(), 550, ""); err != nil {
		t.Fatal(err)
	}
}

func TestGetSourcesNoMatchCachesNothing(t *testing.T) {
	provider := &fakeProvider{
		resolve: func(int) (int64, error) { return 0, nil },
		sources: func(int64, string) ([]models.StreamingSource, error) {
			t.Error("sources must not be fetched without a resolved id")
			return nil, nil
		},
	}
	svc := newTestService(provider)

	for i := 0; i < 2; i++ {
		got, err := svc.GetSources(context.Background(), 123, "US")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if len(got) != 0 {
			t.Fatalf("call %d: got %+v, want empty", i, got)
		}
	}

	// The unresolved id is asked again every time until a match appears.
	if resolves, _ := provider.counts(); resolves != 2 {
		t.Fatalf("resolve called %d times, no-match must not be cached", resolves)
	}
}

func TestGetSourcesIDCacheOutlivesOfferCache(t *testing.T) {
	provider := &fakeProvider{
		resolve: func(int) (int64, error) { return 1295258, nil },
		sources: func(int64, string) ([]models.StreamingSource, error) { return netflixOffer(), nil },
	}
	svc := newTestService(provider)

	if _, err := svc.GetSources(context.Background(), 550, "US"); err != nil {
		t.Fatal(err)
	}
	svc.cache.Clear()
	if _, err := svc.GetSources(context.Background(), 550, "US"); err != nil {
		t.Fatal(err)
	}

	resolves, fetches := provider.counts()
	if resolves != 1 {
		t.Fatalf("resolve called %d times, the id mapping survives offer refreshes", resolves)
	}
	if fetches != 2 {
		t.Fatalf("sources fetched %d times, want a refetch after the offer cache cleared", fetches)
	}
}

func TestGetSourcesRegionsAreIsolated(t *testing.T) {
	provider := &fakeProvider{
		resolve: func(int) (int64, error) { return 7, nil },
		sources: func(_ int64, region string) ([]models.StreamingSource, error) {
			return []models.StreamingSource{{Name: "store-" + region}}, nil
		},
	}
	svc := newTestService(provider)

	us, err := svc.GetSources(context.Background(), 550, "US")
	if err != nil {
		t.Fatal(err)
	}
	gb, err := svc.GetSources(context.Background(), 550, "GB")
	if err != nil {
		t.Fatal(err)
	}
	if us[0].Name == gb[0].Name {
		t.Fatal("regions must not share a cache entry")
	}
}

func TestGetSourcesResolveErrorSurfaces(t *testing.T) {
	provider := &fakeProvider{
		resolve: func(int) (int64, error) { return 0, models.ErrUpstream },
		sources: func(int64, string) ([]models.StreamingSource, error) { return nil, nil },
	}
	svc := newTestService(provider)

	if _, err := svc.GetSources(context.Background(), 550, "US"); !errors.Is(err, models.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	// The failed resolution is retried on the next call.
	if _, err := svc.GetSources(context.Background(), 550, "US"); !errors.Is(err, models.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if resolves, _ := provider.counts(); resolves != 2 {
		t.Fatalf("resolve called %d times, failures must not be cached", resolves)
	}
}
