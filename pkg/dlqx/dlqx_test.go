package dlqx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct {
	closes int
}

func (f *failingSink) Write(context.Context, Entry) error { return errors.New("disk full") }
func (f *failingSink) List(context.Context, string, int) ([]Entry, error) {
	return nil, nil
}
func (f *failingSink) Close() error {
	f.closes++
	return nil
}

func TestRecord_LazilyCreatesSink(t *testing.T) {
	calls := 0
	sink := NewMemorySink(0)
	d := New(func(context.Context) (Sink, error) {
		calls++
		return sink, nil
	})

	assert.False(t, d.Initialized())
	d.Record(context.Background(), Entry{OriginalJobID: "j1", SourceQueue: "render:generate", AttemptsMade: 3})
	d.Record(context.Background(), Entry{OriginalJobID: "j2", SourceQueue: "render:generate", AttemptsMade: 3})

	assert.Equal(t, 1, calls)
	entries, err := d.List(context.Background(), "render:generate", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "j2", entries[0].OriginalJobID)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].FailedAt.IsZero())
}

func TestRecord_NeverFails(t *testing.T) {
	d := New(func(context.Context) (Sink, error) { return nil, errors.New("connection refused") })
	assert.NotPanics(t, func() {
		d.Record(context.Background(), Entry{OriginalJobID: "j1", SourceQueue: "q"})
	})
	assert.False(t, d.Initialized())

	d = New(MemoryFactory(NewMemorySink(0)))
	d.factory = func(context.Context) (Sink, error) { return &failingSink{}, nil }
	assert.NotPanics(t, func() {
		d.Record(context.Background(), Entry{OriginalJobID: "j1", SourceQueue: "q"})
	})

	var nilService *DeadLetters
	assert.NotPanics(t, func() {
		nilService.Record(context.Background(), Entry{OriginalJobID: "j1"})
	})
}

func TestClose_Idempotent(t *testing.T) {
	never := New(MemoryFactory(NewMemorySink(0)))
	require.NoError(t, never.Close())
	require.NoError(t, never.Close())

	sink := &failingSink{}
	d := New(func(context.Context) (Sink, error) { return sink, nil })
	d.Record(context.Background(), Entry{SourceQueue: "q"})
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, 1, sink.closes)

	_, err := d.List(context.Background(), "q", 1)
	assert.Error(t, err)
}

func TestReset_RestoresUninitialisedState(t *testing.T) {
	sink := &failingSink{}
	d := New(func(context.Context) (Sink, error) { return sink, nil })
	d.Record(context.Background(), Entry{SourceQueue: "q"})
	require.NoError(t, d.Close())

	d.Reset()
	assert.False(t, d.Initialized())

	d.Record(context.Background(), Entry{SourceQueue: "q"})
	assert.True(t, d.Initialized())
}

func TestMemorySink_Retention(t *testing.T) {
	m := NewMemorySink(2)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.Write(context.Background(), Entry{OriginalJobID: id, SourceQueue: "q"}))
	}
	entries, err := m.List(context.Background(), "q", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].OriginalJobID)
	assert.Equal(t, "b", entries[1].OriginalJobID)
}
