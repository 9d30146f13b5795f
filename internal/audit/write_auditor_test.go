package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	batches [][]Entry
	fail    bool
}

func (s *memoryStore) SaveBatch(_ context.Context, batch []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("banco indisponível")
	}
	s.batches = append(s.batches, append([]Entry(nil), batch...))
	return nil
}

func (s *memoryStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestFlushOnBatchSize(t *testing.T) {
	store := &memoryStore{}
	wa := NewWriteAuditor(context.Background(), store, WithBatchSize(3), WithFlushTimeout(time.Hour))
	defer wa.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, wa.LogEntry(Entry{Protocol: "modbus", Operation: "write", Status: StatusAccepted}))
	}

	assert.Eventually(t, func() bool { return store.total() == 3 }, time.Second, 10*time.Millisecond)
}

func TestFlushOnTimeout(t *testing.T) {
	store := &memoryStore{}
	wa := NewWriteAuditor(context.Background(), store, WithFlushTimeout(20*time.Millisecond))
	defer wa.Close()

	require.NoError(t, wa.LogEntry(Entry{Protocol: "s7comm", Operation: "read", Status: StatusDenied}))
	assert.Eventually(t, func() bool { return store.total() == 1 }, time.Second, 10*time.Millisecond)
}

func TestCloseFlushesPending(t *testing.T) {
	store := &memoryStore{}
	wa := NewWriteAuditor(context.Background(), store, WithFlushTimeout(time.Hour))

	for i := 0; i < 5; i++ {
		require.NoError(t, wa.LogEntry(Entry{Operation: "write"}))
	}
	require.NoError(t, wa.Close())
	assert.Equal(t, 5, store.total())
	assert.False(t, store.batches[0][0].Timestamp.IsZero())
}

func TestLogEntryValidation(t *testing.T) {
	wa := NewWriteAuditor(context.Background(), &memoryStore{})
	defer wa.Close()
	assert.Error(t, wa.LogEntry(Entry{}))
}

func TestQueueFullDrops(t *testing.T) {
	store := &memoryStore{fail: true}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wa := &WriteAuditor{store: store, queue: make(chan Entry, 1), ctx: ctx}
	require.NoError(t, wa.LogEntry(Entry{Operation: "write"}))
	assert.True(t, errors.Is(wa.LogEntry(Entry{Operation: "write"}), ErrQueueFull))
}
