package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreTTL(t *testing.T) {
	s := NewMemoryStore(0, 10*time.Millisecond)
	defer s.Close()

	ctx := context.Background()
	fp := "test-fingerprint"

	entry := Entry{
		Fingerprint: fp,
		Result:      5,
		CreatedAt:   time.Now(),
		TTL:         20 * time.Millisecond,
	}
	if err := s.Put(ctx, fp, entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, hit, err := s.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !hit {
		t.Fatalf("expected hit immediately after Put")
	}
	if got.Result != 5 {
		t.Fatalf("expected result 5, got %v", got.Result)
	}

	// Wait for TTL to expire
	time.Sleep(30 * time.Millisecond)

	_, hit, err = s.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get after TTL failed: %v", err)
	}
	if hit {
		t.Fatalf("expected miss after TTL expiry")
	}
}

func TestMemoryStoreNoTTLNeverExpires(t *testing.T) {
	s := NewMemoryStore(0, 5*time.Millisecond)
	defer s.Close()

	ctx := context.Background()
	entry := Entry{Fingerprint: "k", Result: 1, CreatedAt: time.Now().Add(-time.Hour)}
	if err := s.Put(ctx, "k", entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	time.Sleep(15 * time.Millisecond) // let the janitor run

	if _, hit, _ := s.Get(ctx, "k"); !hit {
		t.Fatalf("entry without TTL must never expire")
	}
}

func TestMemoryStoreCapacityTrim(t *testing.T) {
	s := NewMemoryStore(2, time.Minute)
	defer s.Close()

	ctx := context.Background()
	base := time.Now()
	for i, fp := range []string{"a", "b", "c"} {
		entry := Entry{Fingerprint: fp, Result: float64(i), CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := s.Put(ctx, fp, entry); err != nil {
			t.Fatalf("Put %s failed: %v", fp, err)
		}
	}

	if s.Len() != 2 {
		t.Fatalf("expected 2 entries after trim, got %d", s.Len())
	}
	// Oldest-created goes first.
	if _, hit, _ := s.Get(ctx, "a"); hit {
		t.Fatalf("expected oldest entry to be trimmed")
	}
	if _, hit, _ := s.Get(ctx, "c"); !hit {
		t.Fatalf("expected newest entry to survive")
	}
}
