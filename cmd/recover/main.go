package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"orderfeed/internal/changelog"
	"orderfeed/internal/config"
	"orderfeed/internal/logger"
	"orderfeed/internal/manifest"
	"orderfeed/internal/metrics"
	"orderfeed/internal/restore"
	"orderfeed/internal/snapshot"
	"orderfeed/internal/state"
	"orderfeed/internal/view"
)

type Config struct {
	Bootstrap       string
	ManifestSource  string // file|kafka
	ChangelogSource string // file|kafka|pebble
	TopicManifest   string
	TopicChangelog  string
	SnapshotDir     string
	ChangelogPath   string
	PebbleDir       string
	HTTPAddr        string
	Poll            time.Duration
	LogLevel        string
}

func main() {
	cfg, err := readFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "recover: %v\n", err)
		os.Exit(2)
	}
	lg, err := logger.New(cfg.LogLevel, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recover: %v\n", err)
		os.Exit(2)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, lg); err != nil {
		lg.Sugar().Fatalf("recover failed: %v", err)
	}
}

func readFlags() (Config, error) {
	env, err := config.Load()
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	flag.StringVar(&cfg.Bootstrap, "bootstrap", env.KafkaBootstrap, "kafka bootstrap")
	flag.StringVar(&cfg.ManifestSource, "manifest-source", "file", "file|kafka")
	flag.StringVar(&cfg.ChangelogSource, "changelog-source", "file", "file|kafka|pebble")
	flag.StringVar(&cfg.TopicManifest, "topic-manifest", env.TopicManifest, "manifest topic")
	flag.StringVar(&cfg.TopicChangelog, "topic-changelog", env.TopicChangelog, "changelog topic")
	flag.StringVar(&cfg.SnapshotDir, "snapshot-dir", env.SnapshotDir, "order dump and manifest directory")
	flag.StringVar(&cfg.ChangelogPath, "changelog", filepath.Join(env.ChangelogDir, "orders.jsonl"), "jsonl journal for file mode")
	flag.StringVar(&cfg.PebbleDir, "pebble-dir", env.PebbleDir, "pebble journal for pebble mode")
	flag.StringVar(&cfg.HTTPAddr, "http", "", "listen address for /metrics; empty disables")
	flag.DurationVar(&cfg.Poll, "poll", 0, "repeat every interval; 0 runs once")
	flag.StringVar(&cfg.LogLevel, "log-level", env.LogLevel, "debug|info|warn|error")
	flag.Parse()
	return cfg, nil
}

func run(ctx context.Context, cfg Config, lg *zap.Logger) error {
	mreg := metrics.NewRegistry()
	if cfg.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", mreg.Handler())
		srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	var mReader manifest.Reader
	switch cfg.ManifestSource {
	case "file":
		mReader = manifest.NewFilesystemManifest(cfg.SnapshotDir)
	case "kafka":
		mReader = manifest.NewKafkaReader(changelog.SplitBrokers(cfg.Bootstrap), cfg.TopicManifest, manifest.DefaultKey)
	default:
		return fmt.Errorf("unknown manifest source %q", cfg.ManifestSource)
	}

	var pl *changelog.PebbleLog
	if cfg.ChangelogSource == "pebble" {
		var err error
		if pl, err = changelog.OpenPebbleLog(cfg.PebbleDir); err != nil {
			return err
		}
		defer pl.Close()
	}

	for {
		if err := cycle(cfg, lg, mreg, mReader, pl); err != nil {
			if cfg.Poll <= 0 {
				return err
			}
			lg.Warn("recovery cycle failed", zap.Error(err))
		}
		if cfg.Poll <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.Poll):
		}
	}
}

// cycle rebuilds a fresh list from the latest manifest and the journal.
func cycle(cfg Config, lg *zap.Logger, mreg *metrics.Registry, mReader manifest.Reader, pl *changelog.PebbleLog) error {
	t1 := time.Now()
	st := state.NewInMemoryStore()
	r := restore.NewRestorer(st, snapshot.NewFilesystemSnapshotter(cfg.SnapshotDir), mReader, lg.Named("restore"))

	var afterSeq int64
	m, err := mReader.ReadLatest()
	switch {
	case errors.Is(err, manifest.ErrNoManifest):
		lg.Warn("no manifest yet, replaying the whole journal")
	case err != nil:
		return fmt.Errorf("read manifest: %w", err)
	default:
		if err := r.RestoreFromSnapshot(m.SnapshotID); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		afterSeq = m.LastSeq
		mreg.LastManifestAgeSec.Set(time.Since(time.Unix(m.CreatedAtEpochSecond, 0)).Seconds())
	}

	var res restore.RestoreResult
	switch cfg.ChangelogSource {
	case "file":
		res = r.ReplayChangelog(cfg.ChangelogPath, afterSeq)
	case "kafka":
		brokers := changelog.SplitBrokers(cfg.Bootstrap)
		res = r.ReplayChangelogKafka(brokers, cfg.TopicChangelog, afterSeq)
		if head := headOffset(cfg.TopicChangelog, brokers); head >= 0 {
			lg.Debug("changelog head", zap.Int64("offset", head))
		}
	case "pebble":
		res = r.ReplayPebble(pl, afterSeq)
	default:
		return fmt.Errorf("unknown changelog source %q", cfg.ChangelogSource)
	}
	if res.Error != nil {
		return fmt.Errorf("replay: %w", res.Error)
	}

	mreg.Applied.Add(float64(res.Applied))
	mreg.Skipped.Add(float64(res.Skipped))
	mreg.Stale.Add(float64(res.Stale))
	mreg.TTRSec.Set(time.Since(t1).Seconds())

	counts := view.CountByStatus(st.List())
	fields := []zap.Field{
		zap.Int("applied", res.Applied),
		zap.Int("skipped", res.Skipped),
		zap.Int("stale", res.Stale),
		zap.Int64("last_seq", res.LastSeq),
		zap.Int("orders", counts.Total),
		zap.Duration("ttr", time.Since(t1)),
	}
	for status, n := range counts.ByStatus {
		fields = append(fields, zap.Int("status_"+status, n))
	}
	lg.Info("recovery cycle", fields...)
	return nil
}

// headOffset returns the last (high-watermark - 1) offset of partition 0 for a topic
func headOffset(topic string, brokers []string) int64 {
	if len(brokers) == 0 {
		return -1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := kafka.DialLeader(ctx, "tcp", brokers[0], topic, 0)
	if err != nil {
		return -1
	}
	defer conn.Close()
	off, err := conn.ReadLastOffset()
	if err != nil {
		return -1
	}
	return off - 1
}
