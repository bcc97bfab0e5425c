package storage

import (
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func TestBoltStoreRecordsAndExpiresOutcomes(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		OutcomeTTL:      time.Minute,
		CleanupInterval: time.Minute,
	}

	storeRaw, err := openBolt(dir+"/history.db", opts)
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	store := storeRaw.(*boltStore)
	defer store.Close()

	clock := time.Now()
	store.now = func() time.Time { return clock }

	got, err := store.Recent(10)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty history, got %v err=%v", got, err)
	}

	if err := store.Record(Outcome{ID: "first", Succeeded: true, Users: 10}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	clock = clock.Add(time.Second)
	if err := store.Record(Outcome{ID: "second", Error: "Network Error"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err = store.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "second" || got[1].ID != "first" {
		t.Fatalf("expected newest first, got %#v", got)
	}
	if got[1].Users != 10 || !got[1].Succeeded {
		t.Fatalf("fields not persisted: %#v", got[1])
	}

	got, _ = store.Recent(1)
	if len(got) != 1 || got[0].ID != "second" {
		t.Fatalf("limit not applied: %#v", got)
	}

	// Past the TTL every entry is hidden and the cleanup pass deletes it.
	clock = clock.Add(2 * time.Minute)
	got, err = store.Recent(0)
	if err != nil {
		t.Fatalf("Recent after expiry: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected entries to expire, got %#v", got)
	}
	if n := countEntries(t, store); n != 0 {
		t.Fatalf("expected cleanup to delete expired entries, %d left", n)
	}
}

func TestBoltStoreKeysAreUniqueForSameInstant(t *testing.T) {
	storeRaw, err := openBolt(t.TempDir()+"/history.db", normalizeOptions(Options{}))
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	store := storeRaw.(*boltStore)
	defer store.Close()

	at := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Record(Outcome{ID: id, SettledAt: at}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	got, _ := store.Recent(0)
	if len(got) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(got))
	}
}

func TestNewStoreSupportsNoop(t *testing.T) {
	store, err := NewStore("none", "", Options{})
	if err != nil {
		t.Fatalf("NewStore none: %v", err)
	}
	if err := store.Record(Outcome{ID: "x"}); err != nil {
		t.Fatalf("noop store Record: %v", err)
	}
	if got, _ := store.Recent(5); got != nil {
		t.Fatalf("noop store returned %v", got)
	}
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore("bbolt", " ", Options{}); err == nil {
		t.Fatalf("expected error for missing path")
	}
	if _, err := NewStore("redis", "x", Options{}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}

func countEntries(t *testing.T, store *boltStore) int {
	t.Helper()
	n := 0
	if err := store.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(outcomeBucket)).ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	}); err != nil {
		t.Fatalf("count entries: %v", err)
	}
	return n
}
