package changelog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"orderfeed/internal/model"
)

// Entry kinds mirror the three push events.
const (
	KindSnapshot      = "snapshot"
	KindCreated       = "created"
	KindStatusChanged = "status_changed"
)

// Entry is one applied event. Seq grows strictly within a journal.
type Entry struct {
	Seq     int64         `json:"seq"`
	Kind    string        `json:"kind"`
	OrderID string        `json:"orderId,omitempty"`
	Status  string        `json:"status,omitempty"`
	Order   *model.Order  `json:"order,omitempty"`
	Orders  []model.Order `json:"orders,omitempty"`
	TS      int64         `json:"ts"`
}

// Key is the partition key: the order id, or the kind for snapshots.
func (e Entry) Key() string {
	if e.OrderID != "" {
		return e.OrderID
	}
	return e.Kind
}

type Writer interface {
	Append(e Entry) error
}

// MultiWriter fans out writes to multiple underlying writers.
type MultiWriter struct {
	writers []Writer
}

func NewMultiWriter(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

func (m *MultiWriter) Append(e Entry) error {
	for _, w := range m.writers {
		if err := w.Append(e); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every writer that holds resources and returns the first error.
func (m *MultiWriter) Close() error {
	var first error
	for _, w := range m.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// FileWriter appends entries as JSON lines.
type FileWriter struct {
	path string
}

func NewFileWriter(dir string, filename string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &FileWriter{path: filepath.Join(dir, filename)}, nil
}

func (w *FileWriter) Path() string { return w.path }

func (w *FileWriter) Append(e Entry) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	if err := enc.Encode(&e); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// DefaultKafkaTimeout bounds one Append when no Timeout is set.
const DefaultKafkaTimeout = 10 * time.Second

// KafkaWriter publishes entries to a Kafka topic keyed by order id.
// Append blocks until the broker acknowledges or Timeout passes; wrap it in
// an AsyncWriter when the caller must not wait on the broker.
type KafkaWriter struct {
	writer kafkaMessageWriter

	Timeout time.Duration
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// SplitBrokers parses a comma-separated host:port list.
func SplitBrokers(bootstrap string) []string {
	var brokers []string
	for _, a := range strings.Split(bootstrap, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			brokers = append(brokers, a)
		}
	}
	return brokers
}

// NewKafkaWriter creates a Kafka writer.
// bootstrap can be a comma-separated list of host:port.
func NewKafkaWriter(bootstrap string, topic string) *KafkaWriter {
	return &KafkaWriter{writer: &kafka.Writer{
		Addr:         kafka.TCP(SplitBrokers(bootstrap)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		MaxAttempts:  3,
	}, Timeout: DefaultKafkaTimeout}
}

func (k *KafkaWriter) Append(e Entry) error {
	b, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	timeout := k.Timeout
	if timeout <= 0 {
		timeout = DefaultKafkaTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.Key()), Value: b})
}

func (k *KafkaWriter) Close() error {
	if c, ok := k.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NewKafkaWriterWith is only for tests to inject a fake writer.
func NewKafkaWriterWith(w kafkaMessageWriter) *KafkaWriter {
	return &KafkaWriter{writer: w}
}
