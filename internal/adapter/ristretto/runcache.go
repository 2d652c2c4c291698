package ristretto

import (
	"context"
	"time"

	"github.com/halverson/ticketpilot/internal/domain/checkpoint"
	"github.com/halverson/ticketpilot/internal/domain/run"
	"github.com/halverson/ticketpilot/internal/port/runstore"
)

// CachingStore decorates a runstore.Store with a short-TTL read cache for
// GetRun. Every write for a run invalidates its cache entry, so readers see
// at most ttl of staleness and never a version older than one they wrote.
type CachingStore struct {
	runstore.Store
	cache *Cache
	ttl   time.Duration
}

// NewCachingStore wraps next with a ristretto read cache.
func NewCachingStore(next runstore.Store, cache *Cache, ttl time.Duration) *CachingStore {
	return &CachingStore{Store: next, cache: cache, ttl: ttl}
}

func (s *CachingStore) GetRun(ctx context.Context, id string) (*run.Run, error) {
	if r, ok := s.cache.GetRun(id); ok {
		return &r, nil
	}

	r, err := s.Store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetRun(r, s.ttl)
	return r, nil
}

func (s *CachingStore) UpdateRunState(ctx context.Context, id string, version int, upd runstore.StateUpdate) (*run.Run, error) {
	r, err := s.Store.UpdateRunState(ctx, id, version, upd)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(id)
	return r, nil
}

func (s *CachingStore) SetPauseRequested(ctx context.Context, id string, requested bool) error {
	if err := s.Store.SetPauseRequested(ctx, id, requested); err != nil {
		return err
	}
	s.cache.Invalidate(id)
	return nil
}

func (s *CachingStore) DecideCheckpoint(ctx context.Context, id string, status checkpoint.Status, feedback string) (*checkpoint.Request, error) {
	req, err := s.Store.DecideCheckpoint(ctx, id, status, feedback)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(req.RunID)
	return req, nil
}
