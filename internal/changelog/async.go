package changelog

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	DefaultQueueSize    = 1024
	DefaultDrainTimeout = 15 * time.Second
)

var (
	ErrQueueFull   = errors.New("changelog queue full")
	ErrClosed      = errors.New("changelog writer closed")
	ErrDrainTimeout = errors.New("changelog queue not drained before timeout")
)

// AsyncWriter hands entries to one background goroutine so a slow sink
// never holds up the caller. Entries reach the wrapped writer in Append
// order. Append fails fast with ErrQueueFull once the backlog is full.
type AsyncWriter struct {
	w   Writer
	log *zap.Logger

	// Failed counts entries the wrapped writer rejected. Optional; set it
	// before the first Append.
	Failed prometheus.Counter
	// DrainTimeout bounds how long Close waits for the backlog.
	DrainTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Entry
	done   chan struct{}
}

func NewAsyncWriter(w Writer, size int, log *zap.Logger) *AsyncWriter {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	a := &AsyncWriter{
		w:            w,
		log:          log,
		DrainTimeout: DefaultDrainTimeout,
		queue:        make(chan Entry, size),
		done:         make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncWriter) Append(e Entry) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending is the number of queued entries not yet handed to the sink.
func (a *AsyncWriter) Pending() int { return len(a.queue) }

func (a *AsyncWriter) run() {
	defer close(a.done)
	for e := range a.queue {
		if err := a.w.Append(e); err != nil {
			if a.Failed != nil {
				a.Failed.Inc()
			}
			a.log.Error("changelog append failed", zap.String("kind", e.Kind), zap.Int64("seq", e.Seq), zap.Error(err))
		}
	}
}

// Close stops intake and waits up to DrainTimeout for the backlog, then
// closes the wrapped writer. On timeout the wrapped writer is left open
// for the goroutine still using it.
func (a *AsyncWriter) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	timeout := a.DrainTimeout
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-a.done:
	case <-t.C:
		a.log.Warn("changelog queue not drained", zap.Int("pending", len(a.queue)))
		return ErrDrainTimeout
	}
	if c, ok := a.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
