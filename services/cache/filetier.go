package cache

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// fileTier is the shared cache tier. Entries live as JSON files whose age is
// tracked through the file mtime: younger than the jittered soft TTL they are
// fresh, younger than the hard TTL they are stale but still servable under
// fail-safe, older they are removed on sight.
type fileTier struct {
	fs      afero.Fs
	dir     string
	softTTL time.Duration
	hardTTL time.Duration
}

func newFileTier(fs afero.Fs, dir string, softTTL, hardTTL time.Duration) *fileTier {
	if hardTTL < softTTL {
		hardTTL = softTTL
	}
	return &fileTier{fs: fs, dir: dir, softTTL: softTTL, hardTTL: hardTTL}
}

// jitteredTTL staggers the soft TTL per key between the base value and base +
// 25%. The jitter is derived from the key hash so the same key always gets the
// same TTL, preventing synchronized refresh churn.
func (t *fileTier) jitteredTTL(key string) time.Duration {
	if t.softTTL <= 0 {
		return 0
	}
	h := sha256.Sum256([]byte(key))
	n := binary.BigEndian.Uint64(h[:8])
	jitter := time.Duration(n % uint64(t.softTTL/4+1))
	return t.softTTL + jitter
}

// path hashes the semantic key into a filename. Keys stay meaningful at the
// call sites ("movie:550:en-US") without leaking separators into the fs.
func (t *fileTier) path(key string) string {
	h := sha1.Sum([]byte(key))
	return filepath.Join(t.dir, hex.EncodeToString(h[:])+".json")
}

// get returns the payload and whether it is fresh. ok is false when the entry
// is missing or past the hard TTL; stale-but-servable entries come back with
// ok true and fresh false.
func (t *fileTier) get(key string) (payload []byte, fresh, ok bool) {
	if key == "" {
		return nil, false, false
	}
	path := t.path(key)
	fi, err := t.fs.Stat(path)
	if err != nil {
		return nil, false, false
	}
	age := time.Since(fi.ModTime())
	if age > t.hardTTL {
		_ = t.fs.Remove(path)
		return nil, false, false
	}
	b, err := afero.ReadFile(t.fs, path)
	if err != nil || !json.Valid(b) {
		return nil, false, false
	}
	return b, age <= t.jitteredTTL(key), true
}

func (t *fileTier) set(key string, payload []byte) error {
	if key == "" {
		return errors.New("empty key")
	}
	if err := t.fs.MkdirAll(t.dir, 0o755); err != nil {
		return err
	}
	path := t.path(key)
	tmp := path + ".tmp"
	if err := afero.WriteFile(t.fs, tmp, payload, 0o644); err != nil {
		_ = t.fs.Remove(tmp)
		return err
	}
	return t.fs.Rename(tmp, path)
}

func (t *fileTier) remove(key string) {
	if key == "" {
		return
	}
	_ = t.fs.Remove(t.path(key))
}

// clear removes every cached entry. Used when provider credentials change so
// fresh data is fetched with the new keys.
func (t *fileTier) clear() error {
	entries, err := afero.ReadDir(t.fs, t.dir)
	if err != nil {
		if errors.Is(err, afero.ErrFileNotFound) {
			return nil
		}
		if _, statErr := t.fs.Stat(t.dir); statErr != nil {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) == ".json" {
			// Best effort, skip files we can't remove
			_ = t.fs.Remove(filepath.Join(t.dir, entry.Name()))
		}
	}
	return nil
}
