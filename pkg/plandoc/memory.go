package plandoc

import (
	"context"
	"sync"
)

// MemoryReader is an in-memory Reader.
type MemoryReader struct {
	mu      sync.RWMutex
	rooms   map[string]Room
	renders map[string][]RenderRef
}

// NewMemoryReader creates an empty reader.
func NewMemoryReader() *MemoryReader {
	return &MemoryReader{
		rooms:   make(map[string]Room),
		renders: make(map[string][]RenderRef),
	}
}

func roomKey(sessionID, roomID string) string { return sessionID + "/" + roomID }

// PutRoom stores r.
func (m *MemoryReader) PutRoom(r Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[roomKey(r.SessionID, r.ID)] = r
}

// AddRender appends a ready rendering to a room.
func (m *MemoryReader) AddRender(sessionID, roomID string, ref RenderRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := roomKey(sessionID, roomID)
	m.renders[k] = append(m.renders[k], ref)
}

func (m *MemoryReader) GetRoom(_ context.Context, sessionID, roomID string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomKey(sessionID, roomID)]
	if !ok {
		return nil, RoomNotFound(sessionID, roomID)
	}
	return &r, nil
}

func (m *MemoryReader) ListRenders(_ context.Context, sessionID, roomID string) ([]RenderRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RenderRef(nil), m.renders[roomKey(sessionID, roomID)]...), nil
}
