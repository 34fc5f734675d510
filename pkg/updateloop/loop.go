package updateloop

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/latticesearch/latticed/pkg/filestore"
	"github.com/latticesearch/latticed/pkg/metrics"
	"github.com/latticesearch/latticed/pkg/updatestore"
)

// inboxDepth is the bounded inbox size; senders block once it fills.
const inboxDepth = 100

// fanOut is the maximum number of messages dispatched concurrently.
const fanOut = 10

// ErrClosed is returned by every public method once the Loop has been
// closed; producers that attempt to send afterward observe it immediately
// rather than blocking forever on a channel nobody drains.
var ErrClosed = errors.New("updateloop: closed")

// msg is implemented by every message variant the Loop accepts. handle runs
// on its own goroutine, bounded by the fan-out semaphore.
type msg interface {
	handle(l *Loop)
}

// Loop is the Update Loop actor.
type Loop struct {
	store *updatestore.Store
	files *filestore.Store

	inbox chan msg
	sem   chan struct{}

	doneCh chan struct{}
	closed atomic.Bool

	handlers sync.WaitGroup
}

// New constructs a Loop over store and files. Call Run to start dispatching.
func New(store *updatestore.Store, files *filestore.Store) *Loop {
	return &Loop{
		store:  store,
		files:  files,
		inbox:  make(chan msg, inboxDepth),
		sem:    make(chan struct{}, fanOut),
		doneCh: make(chan struct{}),
	}
}

// Run starts the dispatch loop in its own goroutine.
func (l *Loop) Run() {
	go l.run()
}

func (l *Loop) run() {
	for {
		select {
		case m, ok := <-l.inbox:
			if !ok {
				l.handlers.Wait()
				return
			}
			l.dispatch(m)
		case <-l.doneCh:
			l.drain()
			l.handlers.Wait()
			return
		}
	}
}

// drain dispatches whatever is left in the inbox after Close, without
// accepting anything new, so in-flight producers waiting on a reply still
// get one.
func (l *Loop) drain() {
	for {
		select {
		case m, ok := <-l.inbox:
			if !ok {
				return
			}
			l.dispatch(m)
		default:
			return
		}
	}
}

func (l *Loop) dispatch(m msg) {
	metrics.InboxDepth.Set(float64(len(l.inbox)))
	l.sem <- struct{}{}
	metrics.HandlersInFlight.Set(float64(len(l.sem)))

	l.handlers.Add(1)
	go func() {
		defer l.handlers.Done()
		defer func() {
			<-l.sem
			metrics.HandlersInFlight.Set(float64(len(l.sem)))
		}()
		m.handle(l)
	}()
}

// Close stops the Loop from accepting new messages, drains what is already
// queued, waits for in-flight handlers, and returns. It is safe to call
// more than once.
func (l *Loop) Close() {
	if l.closed.CompareAndSwap(false, true) {
		close(l.doneCh)
	}
	l.handlers.Wait()
}

// enqueue sends m to the inbox, blocking while it is full (backpressure), or
// returns ErrClosed if the Loop has been closed in the meantime.
func (l *Loop) enqueue(m msg) error {
	if l.closed.Load() {
		return ErrClosed
	}
	select {
	case l.inbox <- m:
		return nil
	case <-l.doneCh:
		return ErrClosed
	}
}
