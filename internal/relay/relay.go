// Package relay republishes applied order events to a Kafka topic so
// downstream consumers see the same deduplicated stream as the dashboard.
package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"orderfeed/internal/model"
	"orderfeed/internal/ordersync"
)

const (
	TypeCreated       = "order.created"
	TypeStatusChanged = "order.status_changed"

	flushTimeoutMs = 5000
)

// Producer is the subset of *ck.Producer the relay uses.
type Producer interface {
	Produce(msg *ck.Message, deliveryChan chan ck.Event) error
	Flush(timeoutMs int) int
	Close()
}

// Message is the value written for every relayed event, keyed by order id.
type Message struct {
	Type     string       `json:"type"`
	OrderID  string       `json:"orderId"`
	Status   string       `json:"status"`
	Previous string       `json:"previous,omitempty"`
	Order    *model.Order `json:"order,omitempty"`
	TS       int64        `json:"ts"`
}

// NewProducer builds an idempotent producer that waits for all replicas.
func NewProducer(bootstrap string) (*ck.Producer, error) {
	p, err := ck.NewProducer(&ck.ConfigMap{
		"bootstrap.servers":  bootstrap,
		"enable.idempotence": true,
		"acks":               "all",
	})
	if err != nil {
		return nil, fmt.Errorf("producer: %w", err)
	}
	return p, nil
}

type Relay struct {
	p     Producer
	topic string
	log   *zap.Logger

	// Optional counters, driven by delivery reports.
	Produced prometheus.Counter
	Failed   prometheus.Counter

	deliveries chan ck.Event
	drained    sync.WaitGroup
	closeOnce  sync.Once
	now        func() time.Time
}

// New starts draining delivery reports. Set the counters before the first
// Publish.
func New(p Producer, topic string, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Relay{
		p:          p,
		topic:      topic,
		log:        log,
		deliveries: make(chan ck.Event, 256),
		now:        time.Now,
	}
	r.drained.Add(1)
	go r.drain()
	return r
}

func (r *Relay) drain() {
	defer r.drained.Done()
	for ev := range r.deliveries {
		switch e := ev.(type) {
		case *ck.Message:
			if err := e.TopicPartition.Error; err != nil {
				if r.Failed != nil {
					r.Failed.Inc()
				}
				r.log.Warn("relay delivery failed", zap.ByteString("key", e.Key), zap.Error(err))
				continue
			}
			if r.Produced != nil {
				r.Produced.Inc()
			}
		case ck.Error:
			r.log.Error("relay producer error", zap.Error(e))
		}
	}
}

// Publish enqueues m. Delivery is reported asynchronously.
func (r *Relay) Publish(m Message) error {
	if m.TS == 0 {
		m.TS = r.now().Unix()
	}
	val, err := json.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	topic := r.topic
	err = r.p.Produce(&ck.Message{
		TopicPartition: ck.TopicPartition{Topic: &topic, Partition: ck.PartitionAny},
		Key:            []byte(m.OrderID),
		Value:          val,
	}, r.deliveries)
	if err != nil {
		if r.Failed != nil {
			r.Failed.Inc()
		}
		return fmt.Errorf("produce %s: %w", m.OrderID, err)
	}
	return nil
}

// Subscriber relays creates and status changes. Snapshots are not relayed;
// consumers rebuild from the created stream.
func (r *Relay) Subscriber() ordersync.Subscriber {
	return ordersync.Subscriber{
		OnCreated: func(o model.Order) {
			if err := r.Publish(Message{Type: TypeCreated, OrderID: o.OrderID, Status: o.Status, Order: &o}); err != nil {
				r.log.Warn("relay publish failed", zap.Error(err))
			}
		},
		OnStatusChanged: func(ch ordersync.StatusChange) {
			if err := r.Publish(Message{Type: TypeStatusChanged, OrderID: ch.OrderID, Status: ch.Status, Previous: ch.Previous}); err != nil {
				r.log.Warn("relay publish failed", zap.Error(err))
			}
		},
	}
}

// Close flushes outstanding messages, closes the producer and waits for
// the remaining delivery reports. Publish must not be called afterwards.
func (r *Relay) Close() {
	r.closeOnce.Do(func() {
		if left := r.p.Flush(flushTimeoutMs); left > 0 {
			r.log.Warn("relay closed with undelivered messages", zap.Int("pending", left))
		}
		r.p.Close()
		close(r.deliveries)
		r.drained.Wait()
	})
}
