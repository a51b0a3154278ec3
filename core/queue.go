package core

import "sync"

// writeQueue runs persistence jobs on a single goroutine in submission order.
type writeQueue struct {
	mu     sync.Mutex
	jobs   chan func()
	done   chan struct{}
	closed bool
}

func newWriteQueue(depth int) *writeQueue {
	if depth <= 0 {
		depth = 64
	}
	q := &writeQueue{
		jobs: make(chan func(), depth),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *writeQueue) run() {
	defer close(q.done)
	for job := range q.jobs {
		job()
	}
}

// enqueue submits job. Jobs submitted after close run inline.
func (q *writeQueue) enqueue(job func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		job()
		return
	}
	q.jobs <- job
	q.mu.Unlock()
}

// flush blocks until every job submitted before it has run.
func (q *writeQueue) flush() {
	done := make(chan struct{})
	q.enqueue(func() { close(done) })
	<-done
}

func (q *writeQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	<-q.done
}
