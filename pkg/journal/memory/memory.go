package memory

import (
	"sort"
	"sync"

	"github.com/Layr-Labs/eigenx-remote-signer/pkg/journal"
)

// MemoryJournal keeps records in process memory. When capacity is positive
// the oldest records are evicted once it is exceeded.
type MemoryJournal struct {
	mu       sync.RWMutex
	records  map[string]*journal.SigningRecord
	order    []string
	capacity int
	closed   bool
}

func NewMemoryJournal(capacity int) *MemoryJournal {
	return &MemoryJournal{
		records:  make(map[string]*journal.SigningRecord),
		capacity: capacity,
	}
}

func (m *MemoryJournal) Append(record *journal.SigningRecord) error {
	if err := journal.ValidateRecord(record); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return journal.ErrClosed
	}

	if _, exists := m.records[record.RecordID]; !exists {
		m.order = append(m.order, record.RecordID)
	}
	copied := *record
	m.records[record.RecordID] = &copied

	for m.capacity > 0 && len(m.order) > m.capacity {
		delete(m.records, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

func (m *MemoryJournal) Get(recordID string) (*journal.SigningRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, journal.ErrClosed
	}

	record, ok := m.records[recordID]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (m *MemoryJournal) List(limit int) ([]*journal.SigningRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, journal.ErrClosed
	}

	// newest insertion first, so equal timestamps keep a stable order
	records := make([]*journal.SigningRecord, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		r, ok := m.records[m.order[i]]
		if !ok {
			continue
		}
		copied := *r
		records = append(records, &copied)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (m *MemoryJournal) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryJournal) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return journal.ErrClosed
	}
	return nil
}

var _ journal.IJournal = (*MemoryJournal)(nil)
