package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
)

type payload struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
}

func newTestCache(fs afero.Fs, opts Options) *Cache {
	if opts.MemorySize == 0 {
		opts.MemorySize = 16
	}
	if opts.MemoryTTL == 0 {
		opts.MemoryTTL = time.Minute
	}
	if opts.SoftTTL == 0 {
		opts.SoftTTL = time.Hour
	}
	if opts.HardTTL == 0 {
		opts.HardTTL = 24 * time.Hour
	}
	return New("test", fs, "cache", opts)
}

// ageEntry back-dates the file tier entry and drops it from the memory tier,
// simulating a process that finds an old entry on disk.
func ageEntry(t *testing.T, fs afero.Fs, c *Cache, key string, age time.Duration) {
	t.Helper()
	c.mem.Remove(key)
	old := time.Now().Add(-age)
	if err := fs.Chtimes(c.file.path(key), old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestGetOrSetPopulatesOnce(t *testing.T) {
	c := newTestCache(afero.NewMemMapFs(), Options{})
	var calls atomic.Int32

	factory := func(context.Context) (payload, error) {
		calls.Add(1)
		return payload{Title: "Fight Club", Year: 1999}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := GetOrSet(context.Background(), c, "movie:550:en-US", factory)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got.Title != "Fight Club" || got.Year != 1999 {
			t.Fatalf("call %d: got %+v", i, got)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("factory called %d times, want 1", n)
	}
}

func TestGetOrSetSurvivesMemoryEviction(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newTestCache(fs, Options{})
	var calls atomic.Int32

	factory := func(context.Context) (payload, error) {
		calls.Add(1)
		return payload{Title: "Heat"}, nil
	}

	if _, err := GetOrSet(context.Background(), c, "movie:949:en-US", factory); err != nil {
		t.Fatal(err)
	}
	c.mem.Purge()

	got, err := GetOrSet(context.Background(), c, "movie:949:en-US", factory)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Heat" {
		t.Fatalf("got %+v", got)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("factory called %d times after file tier hit, want 1", n)
	}
}

func TestGetOrSetCollapsesConcurrentCallers(t *testing.T) {
	c := newTestCache(afero.NewMemMapFs(), Options{})
	var calls atomic.Int32
	release := make(chan struct{})

	factory := func(context.Context) (payload, error) {
		calls.Add(1)
		<-release
		return payload{Title: "Alien"}, nil
	}

	const callers = 20
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = GetOrSet(context.Background(), c, "movie:348:en-US", factory)
		}(i)
	}

	// Let the callers pile onto the inflight fetch before it completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("factory called %d times for %d concurrent callers, want 1", n, callers)
	}
}

func TestGetOrSetDoesNotCacheErrors(t *testing.T) {
	c := newTestCache(afero.NewMemMapFs(), Options{})
	var calls atomic.Int32
	boom := errors.New("upstream down")

	factory := func(context.Context) (payload, error) {
		calls.Add(1)
		return payload{}, boom
	}

	for i := 0; i < 2; i++ {
		if _, err := GetOrSet(context.Background(), c, "movie:1:en-US", factory); !errors.Is(err, boom) {
			t.Fatalf("call %d: err = %v, want %v", i, err, boom)
		}
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("factory called %d times, want 2 (failures must not be cached)", n)
	}
}

func TestGetOrSetServesStaleOnFactoryError(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newTestCache(fs, Options{SoftTTL: time.Hour, HardTTL: 24 * time.Hour})

	seed := func(context.Context) (payload, error) {
		return payload{Title: "Blade Runner", Year: 1982}, nil
	}
	if _, err := GetOrSet(context.Background(), c, "movie:78:en-US", seed); err != nil {
		t.Fatal(err)
	}
	ageEntry(t, fs, c, "movie:78:en-US", 3*time.Hour)

	got, err := GetOrSet(context.Background(), c, "movie:78:en-US", func(context.Context) (payload, error) {
		return payload{}, errors.New("upstream down")
	})
	if err != nil {
		t.Fatalf("expected stale value, got error %v", err)
	}
	if got.Title != "Blade Runner" {
		t.Fatalf("got %+v, want stale Blade Runner", got)
	}
}

func TestGetOrSetSoftTimeoutServesStale(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newTestCache(fs, Options{SoftTTL: time.Hour, HardTTL: 24 * time.Hour, SoftTimeout: 30 * time.Millisecond})

	seed := func(context.Context) (payload, error) {
		return payload{Year: 1}, nil
	}
	if _, err := GetOrSet(context.Background(), c, "movie:9:en-US", seed); err != nil {
		t.Fatal(err)
	}
	ageEntry(t, fs, c, "movie:9:en-US", 3*time.Hour)

	done := make(chan struct{})
	start := time.Now()
	got, err := GetOrSet(context.Background(), c, "movie:9:en-US", func(context.Context) (payload, error) {
		defer close(done)
		time.Sleep(300 * time.Millisecond)
		return payload{Year: 2}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Year != 1 {
		t.Fatalf("got %+v, want the stale value", got)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("caller waited %v, should have been released at the soft timeout", elapsed)
	}

	// The refresh keeps running detached and replaces the entry.
	<-done
	time.Sleep(20 * time.Millisecond)
	var v payload
	if !c.Lookup("movie:9:en-US", &v) || v.Year != 2 {
		t.Fatalf("refreshed entry not stored: %+v", v)
	}
}

func TestGetOrSetColdKeyWaitsPastSoftTimeout(t *testing.T) {
	c := newTestCache(afero.NewMemMapFs(), Options{SoftTimeout: 10 * time.Millisecond})

	got, err := GetOrSet(context.Background(), c, "movie:2:en-US", func(context.Context) (payload, error) {
		time.Sleep(80 * time.Millisecond)
		return payload{Title: "Seven"}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Seven" {
		t.Fatalf("got %+v, cold miss must wait for the factory", got)
	}
}

func TestLookupSetRemove(t *testing.T) {
	c := newTestCache(afero.NewMemMapFs(), Options{})

	var v payload
	if c.Lookup("sources:550:US", &v) {
		t.Fatal("lookup hit on empty cache")
	}
	if err := c.Set("sources:550:US", payload{Title: "x"}); err != nil {
		t.Fatal(err)
	}
	if !c.Lookup("sources:550:US", &v) || v.Title != "x" {
		t.Fatalf("lookup after set: %+v", v)
	}

	c.Remove("sources:550:US")
	if c.Lookup("sources:550:US", &v) {
		t.Fatal("lookup hit after remove")
	}
}

func TestClearDropsBothTiers(t *testing.T) {
	c := newTestCache(afero.NewMemMapFs(), Options{})
	if err := c.Set("a", payload{Title: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Set("b", payload{Title: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	var v payload
	if c.Lookup("a", &v) || c.Lookup("b", &v) {
		t.Fatal("entries survived clear")
	}
}

func TestFileTierHardTTLExpiry(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newTestCache(fs, Options{SoftTTL: time.Hour, HardTTL: 2 * time.Hour})
	if err := c.Set("movie:3:en-US", payload{Title: "gone"}); err != nil {
		t.Fatal(err)
	}
	ageEntry(t, fs, c, "movie:3:en-US", 3*time.Hour)

	if _, ok := c.lookupStale("movie:3:en-US"); ok {
		t.Fatal("entry past the hard TTL must not be servable")
	}
	if _, err := fs.Stat(c.file.path("movie:3:en-US")); err == nil {
		t.Fatal("expired entry should be removed on sight")
	}
}

func TestJitteredTTLDeterministicAndBounded(t *testing.T) {
	tier := newFileTier(afero.NewMemMapFs(), "cache", 4*time.Hour, 24*time.Hour)

	first := tier.jitteredTTL("movie:550:en-US")
	if again := tier.jitteredTTL("movie:550:en-US"); again != first {
		t.Fatalf("jitter not stable per key: %v vs %v", first, again)
	}
	if first < 4*time.Hour || first > 5*time.Hour {
		t.Fatalf("jittered TTL %v outside [base, base+25%%]", first)
	}
}
