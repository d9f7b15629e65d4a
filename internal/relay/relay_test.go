package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"orderfeed/internal/model"
	"orderfeed/internal/ordersync"
)

// fakeProducer reports every message back on the delivery channel.
type fakeProducer struct {
	mu       sync.Mutex
	msgs     []*ck.Message
	failKeys map[string]bool
	reject   bool
	closed   bool
}

func (f *fakeProducer) Produce(msg *ck.Message, deliveryChan chan ck.Event) error {
	if f.reject {
		return errors.New("queue full")
	}
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
	report := *msg
	if f.failKeys[string(msg.Key)] {
		report.TopicPartition.Error = errors.New("broker down")
	}
	deliveryChan <- &report
	return nil
}

func (f *fakeProducer) Flush(int) int { return 0 }

func (f *fakeProducer) Close() { f.closed = true }

func newCounters() (prometheus.Counter, prometheus.Counter) {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: "produced"}),
		prometheus.NewCounter(prometheus.CounterOpts{Name: "failed"})
}

func TestSubscriber_RelaysCreatedAndStatus(t *testing.T) {
	fp := &fakeProducer{failKeys: map[string]bool{"BAD": true}}
	r := New(fp, "orders.events", nil)
	r.Produced, r.Failed = newCounters()
	sub := r.Subscriber()

	sub.OnCreated(model.Order{OrderID: "A", Status: model.StatusPending})
	sub.OnStatusChanged(ordersync.StatusChange{OrderID: "A", Previous: model.StatusPending, Status: model.StatusDelivered})
	sub.OnCreated(model.Order{OrderID: "BAD", Status: model.StatusPending})
	r.Close()

	if !fp.closed {
		t.Fatalf("producer not closed")
	}
	if len(fp.msgs) != 3 {
		t.Fatalf("want 3 produced, got %d", len(fp.msgs))
	}
	first := fp.msgs[0]
	if *first.TopicPartition.Topic != "orders.events" || string(first.Key) != "A" {
		t.Fatalf("bad first message: topic=%s key=%s", *first.TopicPartition.Topic, first.Key)
	}
	var m Message
	if err := json.Unmarshal(fp.msgs[1].Value, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Type != TypeStatusChanged || m.Previous != model.StatusPending || m.Status != model.StatusDelivered || m.TS == 0 {
		t.Fatalf("bad status message: %+v", m)
	}
	if got := testutil.ToFloat64(r.Produced); got != 2 {
		t.Fatalf("produced=%v", got)
	}
	if got := testutil.ToFloat64(r.Failed); got != 1 {
		t.Fatalf("failed=%v", got)
	}
}

func TestPublish_ProduceErrorCounts(t *testing.T) {
	r := New(&fakeProducer{reject: true}, "t", nil)
	r.Produced, r.Failed = newCounters()
	if err := r.Publish(Message{Type: TypeCreated, OrderID: "A"}); err == nil {
		t.Fatalf("expected error")
	}
	r.Close()
	r.Close()
	if got := testutil.ToFloat64(r.Failed); got != 1 {
		t.Fatalf("failed=%v", got)
	}
}
