package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"orderfeed/internal/config"
	"orderfeed/internal/httpapi"
	"orderfeed/internal/logger"
	"orderfeed/internal/metrics"
	"orderfeed/internal/ordersync"
	"orderfeed/internal/relay"
	"orderfeed/internal/state"
)

// Config holds CLI flags for the live client. Defaults come from the
// environment (see internal/config).
type Config struct {
	APIURL         string
	Namespace      string
	Token          string
	HTTPAddr       string
	ConnectTimeout time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	LogLevel       string
	Development    bool

	EventSnapshot string
	EventCreated  string
	EventStatus   string

	// Journal sinks
	ChangelogSink  string // none|file|kafka|pebble|both
	ChangelogDir   string
	PebbleDir      string
	KafkaBootstrap string
	TopicChangelog string

	// Order dumps and manifest
	SnapshotDir      string
	SnapshotInterval time.Duration
	ManifestSink     string // file|kafka|both
	TopicManifest    string

	RelayTopic string
}

func main() {
	cfg, err := readFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "orderfeed: %v\n", err)
		os.Exit(2)
	}
	lg, err := logger.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orderfeed: %v\n", err)
		os.Exit(2)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, lg); err != nil {
		lg.Sugar().Fatalf("orderfeed failed: %v", err)
	}
}

func readFlags() (Config, error) {
	env, err := config.Load()
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	flag.StringVar(&cfg.APIURL, "api-url", env.APIURL, "backend base url (http(s) or ws(s))")
	flag.StringVar(&cfg.Namespace, "namespace", "/", "socket.io namespace")
	flag.StringVar(&cfg.Token, "token", env.Token, "bearer token; empty connects unauthenticated")
	flag.StringVar(&cfg.HTTPAddr, "http", env.HTTPAddr, "listen address for the read api and /metrics; empty disables")
	flag.DurationVar(&cfg.ConnectTimeout, "connect-timeout", env.ConnectTimeout, "per-attempt connect timeout")
	flag.DurationVar(&cfg.BackoffBase, "backoff-base", env.BackoffBase, "first reconnect delay")
	flag.DurationVar(&cfg.BackoffMax, "backoff-max", env.BackoffMax, "reconnect delay cap")
	flag.StringVar(&cfg.LogLevel, "log-level", env.LogLevel, "debug|info|warn|error")
	flag.BoolVar(&cfg.Development, "dev", env.Development, "human readable logs")
	flag.StringVar(&cfg.EventSnapshot, "event-snapshot", ordersync.DefaultEventNames.Snapshot, "snapshot event name")
	flag.StringVar(&cfg.EventCreated, "event-created", ordersync.DefaultEventNames.Created, "order created event name")
	flag.StringVar(&cfg.EventStatus, "event-status", ordersync.DefaultEventNames.StatusChanged, "status changed event name")
	flag.StringVar(&cfg.ChangelogSink, "changelog-sink", env.ChangelogSink, "journal sink: none|file|kafka|pebble|both")
	flag.StringVar(&cfg.ChangelogDir, "changelog-dir", env.ChangelogDir, "directory of the jsonl journal")
	flag.StringVar(&cfg.PebbleDir, "pebble-dir", env.PebbleDir, "pebble journal directory")
	flag.StringVar(&cfg.KafkaBootstrap, "kafka-bootstrap", env.KafkaBootstrap, "kafka bootstrap servers, e.g. localhost:9092")
	flag.StringVar(&cfg.TopicChangelog, "topic-changelog", env.TopicChangelog, "kafka topic for the journal")
	flag.StringVar(&cfg.SnapshotDir, "snapshot-dir", env.SnapshotDir, "order dump directory")
	flag.DurationVar(&cfg.SnapshotInterval, "snapshot-interval", time.Minute, "order dump interval; 0 disables")
	flag.StringVar(&cfg.ManifestSink, "manifest-sink", "file", "manifest sink: file|kafka|both")
	flag.StringVar(&cfg.TopicManifest, "topic-manifest", env.TopicManifest, "kafka topic for the manifest (compacted)")
	flag.StringVar(&cfg.RelayTopic, "relay-topic", env.RelayTopic, "kafka topic to relay applied events to; empty disables")
	flag.Parse()
	return cfg, nil
}

var errUnauthorized = errors.New("token rejected by backend")

func run(ctx context.Context, cfg Config, lg *zap.Logger) error {
	lg.Info("starting orderfeed",
		zap.String("api_url", cfg.APIURL),
		zap.String("namespace", cfg.Namespace),
		zap.String("changelog_sink", cfg.ChangelogSink),
		zap.Duration("snapshot_interval", cfg.SnapshotInterval))

	store := state.NewInMemoryStore()
	client := ordersync.New(
		ordersync.SocketDialer{URL: cfg.APIURL, Namespace: cfg.Namespace, Logger: lg.Named("socketio")},
		ordersync.WithLogger(lg.Named("ordersync")),
		ordersync.WithStore(store),
		ordersync.WithConnectTimeout(cfg.ConnectTimeout),
		ordersync.WithBackoff(cfg.BackoffBase, cfg.BackoffMax),
		ordersync.WithEventNames(ordersync.EventNames{
			Snapshot:      cfg.EventSnapshot,
			Created:       cfg.EventCreated,
			StatusChanged: cfg.EventStatus,
		}),
	)
	defer client.Stop()

	mreg := metrics.NewRegistry()
	client.Subscribe(mreg.Subscriber(store.Len))

	j, err := openJournal(cfg, mreg, lg)
	if err != nil {
		return err
	}
	defer j.Close()
	if j.rec != nil {
		client.Subscribe(j.rec.Subscriber())
	}

	if cfg.RelayTopic != "" {
		p, err := relay.NewProducer(cfg.KafkaBootstrap)
		if err != nil {
			return fmt.Errorf("init relay: %w", err)
		}
		rl := relay.New(p, cfg.RelayTopic, lg.Named("relay"))
		rl.Produced, rl.Failed = mreg.RelayProduced, mreg.RelayFailed
		defer rl.Close()
		client.Subscribe(rl.Subscriber())
	}

	conn := httpapi.NewConnection()
	client.Subscribe(conn.Subscriber())

	unauthorized := make(chan error, 1)
	client.Subscribe(ordersync.Subscriber{
		OnStateChange: func(ch ordersync.StateChange) {
			if ch.To != ordersync.Unauthorized {
				return
			}
			select {
			case unauthorized <- ch.Err:
			default:
			}
		},
	})

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		srv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpapi.NewRouter(client, conn, mreg.Handler(), lg.Named("http")),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("http server failed", zap.Error(err))
			}
		}()
		lg.Info("http listening", zap.String("addr", cfg.HTTPAddr))
	}

	if cfg.SnapshotInterval > 0 {
		dumper, err := newDumper(cfg, store, j, lg.Named("snapshot"))
		if err != nil {
			return err
		}
		dctx, dcancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			dumper.loop(dctx, cfg.SnapshotInterval)
		}()
		defer func() {
			dcancel()
			<-done
		}()
	}

	if err := client.Start(cfg.Token); err != nil {
		return fmt.Errorf("start client: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		lg.Info("shutdown requested")
	case err := <-unauthorized:
		runErr = fmt.Errorf("%w: %v", errUnauthorized, err)
	}

	client.Stop()
	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}
	return runErr
}
