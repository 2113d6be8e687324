// Package queue holds the jobs of one page while the worker pool drains it.
//
// A queue is filled once, closed, and then consumed. Jobs still queued when
// the workers stop are recovered with Drain so none is lost.
package queue

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/appraisal/internal/domain/model"
	"github.com/okian/appraisal/pkg/metrics"
)

const defaultQueueCapacity = 1000

// Job is one asset to value. Index is its position in the page.
type Job struct {
	Index int
	Asset model.Asset
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. It fails with ErrFull or ErrClosed.
	Enqueue(ctx context.Context, j Job) error

	// Dequeue returns the channel workers receive jobs from. It is closed
	// once the queue is closed and empty.
	Dequeue() <-chan Job

	// Len returns the current number of queued jobs.
	Len() int

	// Close stops further enqueues.
	Close() error

	// Drain returns the jobs nobody consumed, in page order. Call it after
	// Close and after every consumer has stopped.
	Drain() []Job
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int
	mu       sync.RWMutex
	closed   bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// FromPage builds a closed queue holding one job per asset.
func FromPage(ctx context.Context, assets []model.Asset) (*InMemoryQueue, error) {
	q := NewInMemoryQueue(WithCapacity(len(assets)))
	for i, a := range assets {
		if err := q.Enqueue(ctx, Job{Index: i, Asset: a}); err != nil {
			return nil, err
		}
	}
	return q, q.Close()
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.jobs))
		return nil
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return ctx.Err()
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue) Dequeue() <-chan Job {
	return q.jobs
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len() int {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Drain implements Queue.Drain. On an open queue it only takes what is
// currently buffered.
func (q *InMemoryQueue) Drain() []Job {
	var out []Job
	for {
		select {
		case j, ok := <-q.jobs:
			if !ok {
				sortJobs(out)
				metrics.UpdateQueueSize(0)
				return out
			}
			out = append(out, j)
		default:
			sortJobs(out)
			metrics.UpdateQueueSize(0)
			return out
		}
	}
}

func sortJobs(jobs []Job) {
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Index < jobs[k].Index })
}
