package render

import (
	"context"
	"sync"
	"time"
)

// MemoryAssetRepository is an AssetRepository held in memory.
type MemoryAssetRepository struct {
	mu     sync.Mutex
	assets map[string]Asset
	now    func() time.Time
}

// NewMemoryAssetRepository creates an empty repository.
func NewMemoryAssetRepository() *MemoryAssetRepository {
	return &MemoryAssetRepository{
		assets: make(map[string]Asset),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Put inserts or replaces an asset.
func (r *MemoryAssetRepository) Put(a Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.Status == "" {
		a.Status = AssetPending
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now()
	}
	a.UpdatedAt = a.CreatedAt
	r.assets[a.ID] = a
}

func (r *MemoryAssetRepository) Get(_ context.Context, id string) (*Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[id]
	if !ok {
		return nil, NotFound(id)
	}
	return &a, nil
}

func (r *MemoryAssetRepository) MarkProcessing(_ context.Context, id string) error {
	return r.transition(id, AssetProcessing, func(a *Asset) {})
}

func (r *MemoryAssetRepository) MarkReady(_ context.Context, id string, rd Rendition) error {
	return r.transition(id, AssetReady, func(a *Asset) {
		a.StoragePath = rd.Path
		a.URL = rd.URL
		a.ContentType = rd.ContentType
		a.SizeBytes = rd.SizeBytes
		a.Model = rd.Model
		a.Provider = rd.Provider
		a.Error = ""
	})
}

func (r *MemoryAssetRepository) MarkFailed(_ context.Context, id string, message string) error {
	return r.transition(id, AssetFailed, func(a *Asset) {
		a.Error = message
	})
}

func (r *MemoryAssetRepository) SetOptimized(_ context.Context, id string, path, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[id]
	if !ok {
		return NotFound(id)
	}
	if a.Status != AssetReady {
		return InvalidTransition(id, a.Status, AssetReady)
	}
	a.OptimizedPath = path
	a.OptimizedURL = url
	a.UpdatedAt = r.now()
	r.assets[id] = a
	return nil
}

func (r *MemoryAssetRepository) transition(id string, to AssetStatus, apply func(*Asset)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[id]
	if !ok {
		return NotFound(id)
	}
	if a.Status.Settled() {
		return InvalidTransition(id, a.Status, to)
	}
	a.Status = to
	apply(&a)
	a.UpdatedAt = r.now()
	r.assets[id] = a
	return nil
}
