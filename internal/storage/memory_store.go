package storage

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// memoryStore keeps the ledger in process memory; it is lost on restart.
type memoryStore struct {
	entries *cache.Cache
}

func newMemoryStore(opts Options) *memoryStore {
	return &memoryStore{entries: cache.New(opts.ReportTTL, opts.CleanupInterval)}
}

func (m *memoryStore) Close() error {
	m.entries.Flush()
	return nil
}

func (m *memoryStore) SeenReport(id string) (bool, error) {
	_, ok := m.entries.Get(id)
	return ok, nil
}

func (m *memoryStore) MarkReport(id string) error {
	m.entries.SetDefault(id, time.Now().UTC())
	return nil
}
