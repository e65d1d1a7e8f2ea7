package flowbridge

import "sync"

// Dispatcher runs functions one at a time, in submission order. The page
// host is not safe for concurrent use, so every script evaluation and state
// change of a Bridge goes through one.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to Dispatcher. Hosts with their own UI
// loop pass its post function here.
type DispatcherFunc func(fn func())

func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

// SerialQueue is a Dispatcher backed by a single goroutine. It is the
// default when Options.Dispatcher is nil.
type SerialQueue struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

// NewSerialQueue starts the worker goroutine. Close stops it.
func NewSerialQueue() *SerialQueue {
	q := &SerialQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Dispatch queues fn. Functions queued after Close are dropped.
func (q *SerialQueue) Dispatch(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.queue = append(q.queue, fn)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.mu.Unlock()
}

// Close discards queued functions and stops the worker once the running
// function, if any, returns. Use Done to wait for that.
func (q *SerialQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.queue = nil
	close(q.wake)
}

// Done is closed once the worker goroutine has exited.
func (q *SerialQueue) Done() <-chan struct{} { return q.done }

func (q *SerialQueue) run() {
	defer close(q.done)
	for range q.wake {
		for {
			q.mu.Lock()
			if len(q.queue) == 0 {
				q.mu.Unlock()
				break
			}
			fn := q.queue[0]
			q.queue[0] = nil
			q.queue = q.queue[1:]
			q.mu.Unlock()
			fn()
		}
	}
}
