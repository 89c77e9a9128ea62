package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const reportBucket = "reports"

// ledgerEntry is the value stored per report id.
type ledgerEntry struct {
	ProcessedAt time.Time `json:"processed_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// boltStore implements a Store backed by BoltDB.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	reportTTL       time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

// openBolt opens (creating if needed) the ledger database at path.
func openBolt(path string, opts Options) (*boltStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(reportBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	store := &boltStore{
		db:              db,
		reportTTL:       opts.ReportTTL,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
	}
	store.lastCleanup.Store(store.now().Unix())
	return store, nil
}

func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// SeenReport reports whether id was marked and has not expired yet.
func (b *boltStore) SeenReport(id string) (bool, error) {
	now := b.now()
	if err := b.maybeCleanup(now); err != nil {
		return false, err
	}

	var seen bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(reportBucket))
		if bucket == nil {
			return fmt.Errorf("report bucket missing")
		}
		entry, ok := decodeEntry(bucket.Get([]byte(id)))
		seen = ok && entry.ExpiresAt.After(now)
		return nil
	})
	return seen, err
}

// MarkReport records id as processed now.
func (b *boltStore) MarkReport(id string) error {
	now := b.now()
	if err := b.maybeCleanup(now); err != nil {
		return err
	}

	value, err := json.Marshal(ledgerEntry{
		ProcessedAt: now.UTC(),
		ExpiresAt:   now.Add(b.reportTTL).UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(reportBucket))
		if bucket == nil {
			return fmt.Errorf("report bucket missing")
		}
		return bucket.Put([]byte(id), value)
	})
}

// maybeCleanup drops expired or unreadable entries at most once per cleanup interval.
func (b *boltStore) maybeCleanup(now time.Time) error {
	if now.Sub(time.Unix(b.lastCleanup.Load(), 0)) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()
	if now.Sub(time.Unix(b.lastCleanup.Load(), 0)) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(reportBucket))
		if bucket == nil {
			return fmt.Errorf("report bucket missing")
		}
		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			if entry, ok := decodeEntry(v); !ok || !entry.ExpiresAt.After(now) {
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

func decodeEntry(value []byte) (ledgerEntry, bool) {
	if len(value) == 0 {
		return ledgerEntry{}, false
	}
	var entry ledgerEntry
	if err := json.Unmarshal(value, &entry); err != nil || entry.ExpiresAt.IsZero() {
		return ledgerEntry{}, false
	}
	return entry, true
}

// count returns the number of stored entries, expired ones included.
func (b *boltStore) count() int {
	n := 0
	_ = b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(reportBucket)).Stats().KeyN
		return nil
	})
	return n
}
