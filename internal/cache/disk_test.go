package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDiskStore(t *testing.T) (*DiskStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewDiskStore(dir, 0, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func TestDiskStoreRoundTrip(t *testing.T) {
	s, _ := newDiskStore(t)
	ctx := context.Background()

	entry := Entry{
		Fingerprint: "abc123",
		Result:      42.5,
		CreatedAt:   time.Now().UTC(),
		TTL:         time.Hour,
	}
	require.NoError(t, s.Put(ctx, "abc123", entry))

	got, hit, err := s.Get(ctx, "abc123")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 42.5, got.Result)
	assert.Equal(t, "abc123", got.Fingerprint)
}

// Crash-consistency: a committed Put must be readable from a fresh store
// over the same directory, which is what a process restart looks like.
func TestDiskStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewDiskStore(dir, 0, time.Minute)
	require.NoError(t, err)
	entry := Entry{Fingerprint: "fp", Result: 5, CreatedAt: time.Now().UTC(), TTL: time.Hour}
	require.NoError(t, s1.Put(ctx, "fp", entry))
	require.NoError(t, s1.Close())

	s2, err := NewDiskStore(dir, 0, time.Minute)
	require.NoError(t, err)
	defer s2.Close()

	got, hit, err := s2.Get(ctx, "fp")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 5.0, got.Result)
}

func TestDiskStoreExpiredReadsAsMissAndEvicts(t *testing.T) {
	s, dir := newDiskStore(t)
	ctx := context.Background()

	entry := Entry{
		Fingerprint: "old",
		Result:      1,
		CreatedAt:   time.Now().Add(-time.Hour),
		TTL:         time.Minute,
	}
	require.NoError(t, s.Put(ctx, "old", entry))

	_, hit, err := s.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, hit)

	// The expired file is gone after the read.
	_, statErr := os.Stat(filepath.Join(dir, "old.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDiskStoreLastWriterWins(t *testing.T) {
	s, _ := newDiskStore(t)
	ctx := context.Background()

	first := Entry{Fingerprint: "fp", Result: 5, CreatedAt: time.Now().Add(-time.Second), TTL: time.Hour}
	second := Entry{Fingerprint: "fp", Result: 5, CreatedAt: time.Now(), TTL: time.Hour}
	require.NoError(t, s.Put(ctx, "fp", first))
	require.NoError(t, s.Put(ctx, "fp", second))

	got, hit, err := s.Get(ctx, "fp")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, second.CreatedAt.Unix(), got.CreatedAt.Unix())
}

func TestDiskStoreDropsForeignGarbage(t *testing.T) {
	s, dir := newDiskStore(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.json"), []byte("{not json"), 0o644))

	_, hit, err := s.Get(ctx, "junk")
	require.NoError(t, err)
	assert.False(t, hit)

	_, statErr := os.Stat(filepath.Join(dir, "junk.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDiskStoreCapacityTrim(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir, 2, time.Minute)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for _, fp := range []string{"a", "b", "c"} {
		entry := Entry{Fingerprint: fp, Result: 1, CreatedAt: time.Now(), TTL: time.Hour}
		require.NoError(t, s.Put(ctx, fp, entry))
		time.Sleep(5 * time.Millisecond) // distinct mtimes
	}

	files, err := s.entryFiles()
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, hit, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, hit, "oldest entry should have been trimmed")
}

func TestDiskStoreNamespacedKeys(t *testing.T) {
	s, dir := newDiskStore(t)
	ctx := context.Background()

	entry := Entry{Fingerprint: "spot:hours:2026-01-02", Payload: []byte(`{"0:00":1.5}`), CreatedAt: time.Now()}
	require.NoError(t, s.Put(ctx, "spot:hours:2026-01-02", entry))

	_, hit, err := s.Get(ctx, "spot:hours:2026-01-02")
	require.NoError(t, err)
	require.True(t, hit)

	// Everything lives directly under the owned directory.
	dirents, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, de := range dirents {
		assert.False(t, de.IsDir())
		assert.False(t, strings.ContainsAny(de.Name(), ":/"))
	}
}

// Distinct keys must map to distinct files, even when one key looks like the
// escaped form of another.
func TestDiskStoreKeyMappingInjective(t *testing.T) {
	s, _ := newDiskStore(t)
	ctx := context.Background()

	keys := []string{"spot:hours:2026-01-02", "spot-hours-2026-01-02", "spot%3Ahours%3A2026-01-02"}
	for i, key := range keys {
		entry := Entry{Fingerprint: key, Result: float64(i + 1), CreatedAt: time.Now()}
		require.NoError(t, s.Put(ctx, key, entry))
	}

	for i, key := range keys {
		entry, hit, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, hit, "key %q", key)
		assert.Equal(t, key, entry.Fingerprint)
		assert.Equal(t, float64(i+1), entry.Result)
	}
}
