// Package restore rebuilds an order list offline from the latest manifest,
// its order dump, and the journal entries recorded after it.
package restore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"orderfeed/internal/changelog"
	"orderfeed/internal/manifest"
	"orderfeed/internal/snapshot"
	"orderfeed/internal/state"
)

type Restorer struct {
	stateStore     state.Store
	snapshots      snapshot.Loader
	manifestReader manifest.Reader
	log            *zap.Logger

	// KafkaWindow bounds ReplayChangelogKafka.
	KafkaWindow    time.Duration
	newKafkaReader func(brokers []string, topic string) kafkaMessageReader
}

// kafkaMessageReader abstracts kafka.Reader for testability.
type kafkaMessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func NewRestorer(st state.Store, snaps snapshot.Loader, mr manifest.Reader, log *zap.Logger) *Restorer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Restorer{
		stateStore:     st,
		snapshots:      snaps,
		manifestReader: mr,
		log:            log,
		KafkaWindow:    20 * time.Second,
		newKafkaReader: func(brokers []string, topic string) kafkaMessageReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:   brokers,
				Topic:     topic,
				Partition: 0,
				MinBytes:  1,
				MaxBytes:  10e6,
			})
		},
	}
}

// RestoreResult counts replayed entries. Entries at or before the manifest
// sequence are not counted at all.
type RestoreResult struct {
	Applied int
	// Skipped are creates for orders already present.
	Skipped int
	// Stale are status changes for orders not present.
	Stale   int
	LastSeq int64
	Error   error
}

func (r *Restorer) RestoreFromSnapshot(snapshotID string) error {
	if snapshotID == "" || r.snapshots == nil {
		return nil
	}
	orders, err := r.snapshots.ReadSnapshot(snapshotID)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			r.log.Warn("snapshot not found, starting empty", zap.String("snapshot_id", snapshotID))
			return nil
		}
		return err
	}
	dropped := r.stateStore.Replace(orders)
	r.log.Info("restored snapshot",
		zap.String("snapshot_id", snapshotID),
		zap.Int("orders", len(orders)-dropped),
		zap.Int("dropped", dropped))
	return nil
}

// apply replays one entry onto the store.
func (r *Restorer) apply(e changelog.Entry, res *RestoreResult) error {
	switch e.Kind {
	case changelog.KindSnapshot:
		r.stateStore.Replace(e.Orders)
		res.Applied++
	case changelog.KindCreated:
		if e.Order == nil {
			return fmt.Errorf("seq %d: created entry without order", e.Seq)
		}
		if r.stateStore.Insert(*e.Order) {
			res.Applied++
		} else {
			res.Skipped++
		}
	case changelog.KindStatusChanged:
		if _, ok := r.stateStore.SetStatus(e.OrderID, e.Status); ok {
			res.Applied++
		} else {
			res.Stale++
		}
	default:
		return fmt.Errorf("seq %d: unknown entry kind %q", e.Seq, e.Kind)
	}
	if e.Seq > res.LastSeq {
		res.LastSeq = e.Seq
	}
	return nil
}

func (r *Restorer) ReplayChangelog(changelogPath string, afterSeq int64) RestoreResult {
	file, err := os.Open(changelogPath)
	if err != nil {
		return RestoreResult{Error: fmt.Errorf("open changelog: %w", err)}
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	res := RestoreResult{LastSeq: afterSeq}
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e changelog.Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			res.Error = fmt.Errorf("unmarshal line %d: %w", lineNum, err)
			return res
		}
		if e.Seq <= afterSeq {
			continue
		}
		if err := r.apply(e, &res); err != nil {
			res.Error = fmt.Errorf("apply line %d: %w", lineNum, err)
			return res
		}
	}

	if err := scanner.Err(); err != nil {
		res.Error = fmt.Errorf("scan changelog: %w", err)
	}
	return res
}

// ReplayPebble replays entries from a Pebble journal after afterSeq.
func (r *Restorer) ReplayPebble(log *changelog.PebbleLog, afterSeq int64) RestoreResult {
	res := RestoreResult{LastSeq: afterSeq}
	if err := log.Scan(afterSeq, func(e changelog.Entry) error {
		return r.apply(e, &res)
	}); err != nil {
		res.Error = fmt.Errorf("replay pebble: %w", err)
	}
	return res
}

// ReplayChangelogKafka consumes entries from partition 0 of topic until the
// read window closes.
func (r *Restorer) ReplayChangelogKafka(brokers []string, topic string, afterSeq int64) RestoreResult {
	rd := r.newKafkaReader(brokers, topic)
	defer rd.Close()

	ctx, cancel := context.WithTimeout(context.Background(), r.KafkaWindow)
	defer cancel()

	res := RestoreResult{LastSeq: afterSeq}
	for {
		m, err := rd.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			res.Error = fmt.Errorf("read kafka: %w", err)
			return res
		}
		var e changelog.Entry
		if err := json.Unmarshal(m.Value, &e); err != nil {
			res.Error = fmt.Errorf("unmarshal entry at offset %d: %w", m.Offset, err)
			return res
		}
		if e.Seq <= afterSeq {
			continue
		}
		if err := r.apply(e, &res); err != nil {
			res.Error = fmt.Errorf("apply offset %d: %w", m.Offset, err)
			return res
		}
	}
	return res
}

// RestoreAndReplay loads the manifest's order dump and replays the file
// journal at changelogPath on top of it. Without a manifest the whole journal
// is replayed onto an empty store.
func (r *Restorer) RestoreAndReplay(changelogPath string) (RestoreResult, error) {
	var afterSeq int64
	m, err := r.manifestReader.ReadLatest()
	switch {
	case errors.Is(err, manifest.ErrNoManifest):
		r.log.Warn("no manifest published, replaying full changelog")
	case err != nil:
		return RestoreResult{}, fmt.Errorf("read manifest: %w", err)
	default:
		if err := r.RestoreFromSnapshot(m.SnapshotID); err != nil {
			return RestoreResult{}, fmt.Errorf("restore snapshot: %w", err)
		}
		afterSeq = m.LastSeq
	}

	result := r.ReplayChangelog(changelogPath, afterSeq)
	if result.Error == nil {
		r.log.Info("replay complete",
			zap.Int("applied", result.Applied),
			zap.Int("skipped", result.Skipped),
			zap.Int("stale", result.Stale),
			zap.Int64("last_seq", result.LastSeq))
	}
	return result, result.Error
}
