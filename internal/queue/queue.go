package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrQueueClosed = errors.New("queue is closed")

// Task is one pending scrape of a product URL.
type Task struct {
	ID         uuid.UUID
	URL        string
	Domain     string
	Priority   int
	EnqueuedAt time.Time

	seq int
}

func NewTask(url, domain string, priority int) *Task {
	return &Task{
		ID:         uuid.New(),
		URL:        url,
		Domain:     domain,
		Priority:   priority,
		EnqueuedAt: time.Now(),
	}
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Size() int
	Close() error
}

// InMemoryQueue orders tasks by priority, FIFO within a priority band,
// and deduplicates on URL so the same product is never queued twice.
type InMemoryQueue struct {
	mu      sync.Mutex
	tasks   []*Task
	queued  map[string]struct{}
	nextSeq int
	closed  bool

	// wake is closed and replaced whenever a waiter might have something
	// new to see. Waiters snapshot it under the lock, release the lock,
	// and block on the snapshot, so a cancelled waiter never touches the
	// mutex again on its way out.
	wake chan struct{}
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		queued: make(map[string]struct{}),
		wake:   make(chan struct{}),
	}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if _, dup := q.queued[task.URL]; dup {
		return nil
	}

	task.seq = q.nextSeq
	q.nextSeq++
	q.queued[task.URL] = struct{}{}
	q.tasks = append(q.tasks, task)
	sort.Slice(q.tasks, func(i, j int) bool {
		if q.tasks[i].Priority != q.tasks[j].Priority {
			return q.tasks[i].Priority > q.tasks[j].Priority
		}
		return q.tasks[i].seq < q.tasks[j].seq
	})
	q.broadcast()

	return nil
}

// Pop blocks until a task is available, the queue is drained and closed,
// or the context is cancelled.
func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()

		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks = q.tasks[1:]
			delete(q.queued, task.URL)
			q.mu.Unlock()
			return task, nil
		}

		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}

		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.broadcast()

	return nil
}

// broadcast wakes every blocked Pop. Callers hold the lock.
func (q *InMemoryQueue) broadcast() {
	close(q.wake)
	q.wake = make(chan struct{})
}
