package dlqx

import (
	"context"
	"sync"
)

// MemorySink keeps the newest entries of each queue in process memory.
type MemorySink struct {
	retention int

	mu      sync.Mutex
	entries map[string][]Entry
}

// NewMemorySink keeps at most retention entries per queue; zero means unbounded.
func NewMemorySink(retention int) *MemorySink {
	return &MemorySink{retention: retention, entries: make(map[string][]Entry)}
}

// MemoryFactory returns a factory handing out sink.
func MemoryFactory(sink *MemorySink) SinkFactory {
	return func(context.Context) (Sink, error) { return sink, nil }
}

func (m *MemorySink) Write(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append([]Entry{entry}, m.entries[entry.SourceQueue]...)
	if m.retention > 0 && len(list) > m.retention {
		list = list[:m.retention]
	}
	m.entries[entry.SourceQueue] = list
	return nil
}

func (m *MemorySink) List(_ context.Context, queue string, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.entries[queue]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]Entry, len(list))
	copy(out, list)
	return out, nil
}

func (m *MemorySink) Close() error { return nil }
