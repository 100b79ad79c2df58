package storage

import (
	"fmt"
	"sync"

	"github.com/olehkaliuzhnyi/flow-wallet/pkg/models"
)

// MemorySendStore is an in-memory SendStore. Records are copied on the way in
// and out so callers cannot mutate stored state.
type MemorySendStore struct {
	mu      sync.RWMutex
	records map[string]models.SendRecord
}

func NewMemorySendStore() *MemorySendStore {
	return &MemorySendStore{records: make(map[string]models.SendRecord)}
}

func (s *MemorySendStore) Get(idempotencyKey string) (*models.SendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[idempotencyKey]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (s *MemorySendStore) Put(rec *models.SendRecord) error {
	if rec == nil || rec.IdempotencyKey == "" {
		return fmt.Errorf("send store put: idempotency key required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.IdempotencyKey] = *cloneRecord(*rec)
	return nil
}

func cloneRecord(rec models.SendRecord) *models.SendRecord {
	rec.Envelope = append([]byte(nil), rec.Envelope...)
	return &rec
}

type watermarkKey struct {
	network models.Network
	address string
}

// seenSet is a FIFO-bounded set of event keys.
type seenSet struct {
	keys  map[string]struct{}
	order []string
}

func (s *seenSet) add(key string) {
	if _, ok := s.keys[key]; ok {
		return
	}
	if len(s.order) == SeenLimit {
		delete(s.keys, s.order[0])
		s.order = s.order[1:]
	}
	s.keys[key] = struct{}{}
	s.order = append(s.order, key)
}

// MemoryWatermarkStore is an in-memory WatermarkStore.
type MemoryWatermarkStore struct {
	mu    sync.RWMutex
	marks map[watermarkKey]uint64
	seen  map[watermarkKey]*seenSet
}

func NewMemoryWatermarkStore() *MemoryWatermarkStore {
	return &MemoryWatermarkStore{
		marks: make(map[watermarkKey]uint64),
		seen:  make(map[watermarkKey]*seenSet),
	}
}

func (s *MemoryWatermarkStore) Watermark(network models.Network, address string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marks[watermarkKey{network, address}], nil
}

func (s *MemoryWatermarkStore) SetWatermark(network models.Network, address string, ts uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := watermarkKey{network, address}
	if ts > s.marks[k] {
		s.marks[k] = ts
	}
	return nil
}

func (s *MemoryWatermarkStore) Seen(network models.Network, address, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.seen[watermarkKey{network, address}]
	if !ok {
		return false, nil
	}
	_, found := set.keys[key]
	return found, nil
}

func (s *MemoryWatermarkStore) MarkSeen(network models.Network, address, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := watermarkKey{network, address}
	set, ok := s.seen[k]
	if !ok {
		set = &seenSet{keys: make(map[string]struct{})}
		s.seen[k] = set
	}
	set.add(key)
	return nil
}
