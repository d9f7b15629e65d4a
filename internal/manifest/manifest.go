package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultKey is the record key of the latest manifest on a compacted topic.
const DefaultKey = "orderfeed-manifest-latest"

// Manifest points at the newest order dump and the journal position it covers.
type Manifest struct {
	SnapshotID           string `json:"snapshotId"`
	LastSeq              int64  `json:"lastSeq"`
	Orders               int    `json:"orders"`
	CreatedAtEpochSecond int64  `json:"createdAt"`
}

// ErrNoManifest is returned when no manifest has been published yet.
var ErrNoManifest = errors.New("manifest: none published")

var nowUnix = func() int64 { return time.Now().UTC().Unix() }

// New stamps a manifest with the current time.
func New(snapshotID string, lastSeq int64, orders int) Manifest {
	return Manifest{SnapshotID: snapshotID, LastSeq: lastSeq, Orders: orders, CreatedAtEpochSecond: nowUnix()}
}

type Publisher interface {
	PublishLatest(m Manifest) error
}

// MultiPublisher writes to multiple publishers sequentially.
type MultiPublisherImpl struct {
	pubs []Publisher
}

func MultiPublisher(pubs ...Publisher) Publisher {
	return &MultiPublisherImpl{pubs: pubs}
}

func (m *MultiPublisherImpl) PublishLatest(man Manifest) error {
	for _, p := range m.pubs {
		if err := p.PublishLatest(man); err != nil {
			return err
		}
	}
	return nil
}

type Reader interface {
	ReadLatest() (Manifest, error)
}

type FilesystemManifest struct {
	baseDir string
}

func NewFilesystemManifest(baseDir string) *FilesystemManifest {
	return &FilesystemManifest{baseDir: baseDir}
}

func (f *FilesystemManifest) PublishLatest(m Manifest) error {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	// write then rename so readers never see a half-written manifest
	file := filepath.Join(f.baseDir, "manifest.latest.json")
	tmp := file + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&m); err != nil {
		out.Close()
		return fmt.Errorf("encode: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp, file); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (f *FilesystemManifest) ReadLatest() (Manifest, error) {
	file := filepath.Join(f.baseDir, "manifest.latest.json")
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Manifest{}, ErrNoManifest
		}
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return m, nil
}

// KafkaManifest publishes manifest.latest as a compacted Kafka record.
type KafkaManifest struct {
	writer kafkaMessageWriter
	key    []byte
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaManifest creates a Kafka manifest publisher.
// brokers come from changelog.SplitBrokers; key is typically DefaultKey.
func NewKafkaManifest(brokers []string, topic string, key string) *KafkaManifest {
	return &KafkaManifest{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}, key: []byte(key)}
}

func (k *KafkaManifest) PublishLatest(m Manifest) error {
	b, err := json.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return k.writer.WriteMessages(context.Background(), kafka.Message{Key: k.key, Value: b})
}

// NewKafkaManifestWith is only for tests to inject a fake writer.
func NewKafkaManifestWith(w kafkaMessageWriter, key string) *KafkaManifest {
	return &KafkaManifest{writer: w, key: []byte(key)}
}

// kafkaMessageReader abstracts kafka.Reader for testability.
type kafkaMessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaReader reads the latest manifest record from a compacted topic by
// scanning partition 0 until the read window closes.
type KafkaReader struct {
	newReader func() kafkaMessageReader
	key       []byte
	Window    time.Duration
}

func NewKafkaReader(brokers []string, topic string, key string) *KafkaReader {
	return &KafkaReader{
		newReader: func() kafkaMessageReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:   brokers,
				Topic:     topic,
				Partition: 0,
				MinBytes:  1,
				MaxBytes:  10e6,
			})
		},
		key:    []byte(key),
		Window: 10 * time.Second,
	}
}

func (k *KafkaReader) ReadLatest() (Manifest, error) {
	r := k.newReader()
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), k.Window)
	defer cancel()

	var last Manifest
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return Manifest{}, fmt.Errorf("read kafka: %w", err)
		}
		if string(m.Key) != string(k.key) {
			continue
		}
		var man Manifest
		if err := json.Unmarshal(m.Value, &man); err != nil {
			return Manifest{}, fmt.Errorf("unmarshal kafka manifest: %w", err)
		}
		last = man
	}
	if last.SnapshotID == "" {
		return Manifest{}, ErrNoManifest
	}
	return last, nil
}
