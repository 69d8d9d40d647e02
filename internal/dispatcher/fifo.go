package dispatcher

import (
	"sync"

	"image-hunter/internal/logging"
)

// fifo is an unbounded queue with a blocking pop. After close, pop drains
// what is left and then reports false.
type fifo[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
	closed bool
}

func newFIFO[T any]() *fifo[T] {
	return &fifo[T]{notify: make(chan struct{}, 1)}
}

// push appends v unless the queue is closed.
func (q *fifo[T]) push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *fifo[T]) pop() (T, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return v, true
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, false
		}
		q.mu.Unlock()
		<-q.notify
	}
}

func (q *fifo[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *fifo[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Executor runs delivery functions on the caller's execution context.
type Executor interface {
	Post(fn func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func())

// Post implements Executor.
func (f ExecutorFunc) Post(fn func()) { f(fn) }

// deliveryLoop is the default Executor: one goroutine running posted
// functions in order.
type deliveryLoop struct {
	queue *fifo[func()]
	done  chan struct{}
}

func newDeliveryLoop() *deliveryLoop {
	l := &deliveryLoop{queue: newFIFO[func()](), done: make(chan struct{})}
	go l.run()
	return l
}

func (l *deliveryLoop) Post(fn func()) {
	if !l.queue.push(fn) {
		logging.Debug("Dispatcher: delivery loop closed, dropping callback")
	}
}

func (l *deliveryLoop) run() {
	defer close(l.done)
	for {
		fn, ok := l.queue.pop()
		if !ok {
			return
		}
		l.invoke(fn)
	}
}

func (l *deliveryLoop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Dispatcher: callback panicked: %v", r)
		}
	}()
	fn()
}

// stop runs what was already posted, then ends the goroutine.
func (l *deliveryLoop) stop() {
	l.queue.close()
	<-l.done
}
