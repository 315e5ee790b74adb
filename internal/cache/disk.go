package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"calculator-service/internal/metrics"
)

// DiskStore persists one JSON file per fingerprint under a directory it
// exclusively owns (the mounted cache volume). Commit is write-temp, fsync,
// rename, fsync(dir): a Put that returned nil is recoverable after an
// unclean shutdown, and concurrent writers for one fingerprint are
// last-writer-wins because rename is atomic.
type DiskStore struct {
	dir        string
	maxEntries int

	// trimMu serializes capacity trims; individual puts do not contend.
	trimMu sync.Mutex

	stopJanitor     chan struct{}
	janitorOnce     sync.Once
	janitorInterval time.Duration
}

// NewDiskStore creates the directory if needed and starts the expiry
// janitor. janitorInterval <= 0 uses 5 minutes. maxEntries of zero means
// unbounded.
func NewDiskStore(dir string, maxEntries int, janitorInterval time.Duration) (*DiskStore, error) {
	if janitorInterval <= 0 {
		janitorInterval = 5 * time.Minute
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storageErr("init", err)
	}

	s := &DiskStore{
		dir:             dir,
		maxEntries:      maxEntries,
		stopJanitor:     make(chan struct{}),
		janitorInterval: janitorInterval,
	}
	go s.sweepExpired()
	return s, nil
}

func (s *DiskStore) Get(ctx context.Context, fingerprint string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, storageErr("get", err)
	}

	raw, err := os.ReadFile(s.path(fingerprint))
	if os.IsNotExist(err) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, storageErr("get", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A committed file is always whole (rename atomicity), so this is
		// foreign garbage in the owned directory. Drop it and miss.
		_ = os.Remove(s.path(fingerprint))
		return Entry{}, false, nil
	}

	if entry.IsExpired(time.Now()) {
		if os.Remove(s.path(fingerprint)) == nil {
			metrics.CacheEvictionsTotal.Inc()
		}
		return Entry{}, false, nil
	}

	return entry, true, nil
}

func (s *DiskStore) Put(ctx context.Context, fingerprint string, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return storageErr("put", err)
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return storageErr("put", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return storageErr("put", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return storageErr("put", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return storageErr("put", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return storageErr("put", err)
	}

	if err := os.Rename(tmpName, s.path(fingerprint)); err != nil {
		os.Remove(tmpName)
		return storageErr("put", err)
	}

	if err := s.syncDir(); err != nil {
		return storageErr("put", err)
	}

	if s.maxEntries > 0 {
		s.trimToCapacity()
	}
	return nil
}

func (s *DiskStore) Delete(ctx context.Context, fingerprint string) error {
	if err := ctx.Err(); err != nil {
		return storageErr("delete", err)
	}
	if err := os.Remove(s.path(fingerprint)); err != nil && !os.IsNotExist(err) {
		return storageErr("delete", err)
	}
	return nil
}

// Close stops the janitor goroutine. Call this on shutdown or in tests.
func (s *DiskStore) Close() error {
	s.janitorOnce.Do(func() {
		close(s.stopJanitor)
	})
	return nil
}

// path maps a fingerprint to its file. Fingerprints are either sha256 hex or
// namespaced keys like "spot:hours:2026-01-02"; separator runes are
// percent-escaped ('%' included, so the mapping is injective and distinct
// keys can never share a file) and every entry stays directly under the
// owned directory.
func (s *DiskStore) path(fingerprint string) string {
	var b strings.Builder
	b.Grow(len(fingerprint))
	for _, r := range fingerprint {
		switch r {
		case ':', '/', '\\', '%':
			fmt.Fprintf(&b, "%%%02X", r)
		default:
			b.WriteRune(r)
		}
	}
	return filepath.Join(s.dir, b.String()+".json")
}

func (s *DiskStore) syncDir() error {
	d, err := os.Open(s.dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// trimToCapacity drops oldest files (by mtime, which tracks commit time)
// until the entry count is back under maxEntries. Eviction policy is
// TTL-first; this is only the capacity backstop.
func (s *DiskStore) trimToCapacity() {
	s.trimMu.Lock()
	defer s.trimMu.Unlock()

	files, err := s.entryFiles()
	if err != nil || len(files) <= s.maxEntries {
		return
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].mtime.Before(files[j].mtime)
	})

	for _, f := range files[:len(files)-s.maxEntries] {
		if os.Remove(f.path) == nil {
			metrics.CacheEvictionsTotal.Inc()
		}
	}
}

type diskFile struct {
	path  string
	mtime time.Time
}

func (s *DiskStore) entryFiles() ([]diskFile, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	files := make([]diskFile, 0, len(dirents))
	for _, de := range dirents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		files = append(files, diskFile{
			path:  filepath.Join(s.dir, de.Name()),
			mtime: info.ModTime(),
		})
	}
	return files, nil
}

// sweepExpired runs periodically to remove expired entries.
func (s *DiskStore) sweepExpired() {
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			files, err := s.entryFiles()
			if err != nil {
				continue
			}
			now := time.Now()
			for _, f := range files {
				raw, err := os.ReadFile(f.path)
				if err != nil {
					continue
				}
				var entry Entry
				if err := json.Unmarshal(raw, &entry); err != nil {
					continue
				}
				if entry.IsExpired(now) && os.Remove(f.path) == nil {
					metrics.CacheEvictionsTotal.Inc()
				}
			}
		case <-s.stopJanitor:
			return
		}
	}
}
