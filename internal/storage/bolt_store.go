package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	outcomeBucket = "outcomes"
	keyBytes      = 16
)

// storedOutcome is the persisted form of an Outcome.
type storedOutcome struct {
	Outcome
	ExpiresAt int64 `json:"expires_at"`
}

// boltStore implements a Store backed by BoltDB.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	seq             atomic.Uint64
	outcomeTTL      time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(outcomeBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	store := &boltStore{
		db:              db,
		outcomeTTL:      opts.OutcomeTTL,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
	}
	store.lastCleanup.Store(store.now().Unix())
	return store, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Record stores o keyed by its settle time so iteration order is chronological.
func (b *boltStore) Record(o Outcome) error {
	if b == nil || b.db == nil {
		return nil
	}

	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return err
	}
	if o.SettledAt.IsZero() {
		o.SettledAt = now
	}

	raw, err := json.Marshal(storedOutcome{Outcome: o, ExpiresAt: now.Add(b.outcomeTTL).Unix()})
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(outcomeBucket))
		if bucket == nil {
			return fmt.Errorf("outcome bucket missing")
		}
		return bucket.Put(b.key(o.SettledAt), raw)
	})
}

// Recent returns up to limit unexpired outcomes, newest first. A non-positive limit returns all.
func (b *boltStore) Recent(limit int) ([]Outcome, error) {
	if b == nil || b.db == nil {
		return nil, nil
	}

	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return nil, err
	}

	var out []Outcome
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(outcomeBucket))
		if bucket == nil {
			return fmt.Errorf("outcome bucket missing")
		}

		cursor := bucket.Cursor()
		for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
			stored, ok := decodeOutcome(v)
			if !ok || stored.ExpiresAt <= now.Unix() {
				continue
			}
			out = append(out, stored.Outcome)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// key orders entries by settle time, with a process-local counter breaking ties.
func (b *boltStore) key(at time.Time) []byte {
	buf := make([]byte, keyBytes)
	binary.BigEndian.PutUint64(buf[:8], uint64(at.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:], b.seq.Add(1))
	return buf
}

// maybeCleanupExpired removes expired outcomes on a fixed cadence to avoid unbounded growth.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	if b == nil || b.db == nil {
		return nil
	}

	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(outcomeBucket))
		if bucket == nil {
			return fmt.Errorf("outcome bucket missing")
		}

		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			stored, ok := decodeOutcome(v)
			if !ok || stored.ExpiresAt <= now.Unix() {
				if err := cursor.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}

// decodeOutcome decodes a stored outcome; malformed entries report false.
func decodeOutcome(value []byte) (storedOutcome, bool) {
	var stored storedOutcome
	if err := json.Unmarshal(value, &stored); err != nil {
		return storedOutcome{}, false
	}
	if stored.ExpiresAt <= 0 {
		return storedOutcome{}, false
	}
	return stored, true
}
