package changelog

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"orderfeed/internal/model"
	"orderfeed/internal/ordersync"
)

// Recorder journals applied client events to a Writer. Journal failures are
// logged and counted; they never reach the client.
type Recorder struct {
	w   Writer
	log *zap.Logger

	// Optional counters.
	Appended prometheus.Counter
	Failed   prometheus.Counter

	mu  sync.Mutex
	seq int64
	now func() time.Time
}

func NewRecorder(w Writer, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{w: w, log: log, now: time.Now}
}

// Seq is the sequence of the last entry handed to the writer.
func (r *Recorder) Seq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Record stamps e with the next sequence and appends it. Sequences are
// wall-clock nanoseconds bumped to stay strictly increasing, so journals
// from successive runs keep ordering without reading old state.
func (r *Recorder) Record(e Entry) error {
	r.mu.Lock()
	now := r.now()
	next := now.UnixNano()
	if next <= r.seq {
		next = r.seq + 1
	}
	r.seq = next
	e.Seq = next
	e.TS = now.Unix()
	r.mu.Unlock()

	if err := r.w.Append(e); err != nil {
		if r.Failed != nil {
			r.Failed.Inc()
		}
		r.log.Error("changelog append failed", zap.String("kind", e.Kind), zap.Int64("seq", e.Seq), zap.Error(err))
		return err
	}
	if r.Appended != nil {
		r.Appended.Inc()
	}
	return nil
}

// Subscriber journals snapshots, creates and status changes.
func (r *Recorder) Subscriber() ordersync.Subscriber {
	return ordersync.Subscriber{
		OnSnapshot: func(orders []model.Order) {
			_ = r.Record(Entry{Kind: KindSnapshot, Orders: orders})
		},
		OnCreated: func(o model.Order) {
			_ = r.Record(Entry{Kind: KindCreated, OrderID: o.OrderID, Status: o.Status, Order: &o})
		},
		OnStatusChanged: func(ch ordersync.StatusChange) {
			_ = r.Record(Entry{Kind: KindStatusChanged, OrderID: ch.OrderID, Status: ch.Status})
		},
	}
}
