package repository

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/okian/appraisal/internal/domain/model"
	"github.com/okian/appraisal/pkg/metrics"
)

const (
	defaultMetricsUpdateInterval = 5 * time.Second
	defaultStaleAfter            = 15 * time.Minute
)

// MemoryStore is an in-process Store. It is the default backend and the one
// tests run against.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]*model.Report

	clock                 clock.Clock
	staleAfter            time.Duration
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs a memory store and starts its metrics updater,
// which runs until ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		reports:               make(map[string]*model.Report),
		clock:                 clock.New(),
		staleAfter:            defaultStaleAfter,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Create implements Store.Create.
func (s *MemoryStore) Create(_ context.Context, r *model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[r.ID]; ok {
		return ErrExists
	}
	s.reports[r.ID] = r.Clone()
	return nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// Save implements Store.Save.
func (s *MemoryStore) Save(_ context.Context, r *model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reports[r.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != r.Version {
		return ErrConflict
	}
	next := r.Clone()
	next.Version++
	s.reports[r.ID] = next
	r.Version = next.Version
	return nil
}

// MarkFailed implements Store.MarkFailed.
func (s *MemoryStore) MarkFailed(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reports[id]
	if !ok {
		return ErrNotFound
	}
	next := cur.Clone()
	next.Status = model.StatusFailed
	next.LastError = reason
	next.UpdatedAt = s.clock.Now()
	next.Version++
	s.reports[id] = next
	return nil
}

// CountInProgress implements Store.CountInProgress.
func (s *MemoryStore) CountInProgress(_ context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countInProgress(since), nil
}

func (s *MemoryStore) countInProgress(since time.Time) int {
	n := 0
	for _, r := range s.reports {
		if r.InProgress() && !r.UpdatedAt.Before(since) {
			n++
		}
	}
	return n
}

// DeleteExpired implements Store.DeleteExpired.
func (s *MemoryStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.reports {
		if r.CreatedAt.Before(before) {
			delete(s.reports, id)
			n++
		}
	}
	return n, nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports), nil
}

// Close stops the metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := s.clock.Ticker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *MemoryStore) updateMetrics() {
	s.mu.RLock()
	n := s.countInProgress(s.clock.Now().Add(-s.staleAfter))
	s.mu.RUnlock()
	metrics.UpdateReportsInProgress(n)
}
