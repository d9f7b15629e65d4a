package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIURL         string
	Token          string
	HTTPAddr       string
	ConnectTimeout time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	LogLevel       string
	Development    bool

	ChangelogSink  string // none|file|kafka|pebble|both
	ChangelogDir   string
	PebbleDir      string
	SnapshotDir    string
	KafkaBootstrap string
	TopicChangelog string
	TopicManifest  string
	RelayTopic     string
}

// Load reads .env files (if any) and then the process environment.
// Variables already set in the environment win over .env entries.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var errs []error
	dur := func(key string, fallback time.Duration) time.Duration {
		d, err := getDuration(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}
	cfg := &Config{
		APIURL:         getEnv("ORDERFEED_API_URL", "https://api.marasimpex.com"),
		Token:          getEnv("ORDERFEED_TOKEN", ""),
		HTTPAddr:       getEnv("ORDERFEED_HTTP_ADDR", ":8080"),
		ConnectTimeout: dur("ORDERFEED_CONNECT_TIMEOUT", 10*time.Second),
		BackoffBase:    dur("ORDERFEED_BACKOFF_BASE", 500*time.Millisecond),
		BackoffMax:     dur("ORDERFEED_BACKOFF_MAX", 30*time.Second),
		LogLevel:       getEnv("ORDERFEED_LOG_LEVEL", "info"),
		Development:    getBool("ORDERFEED_DEV", false),
		ChangelogSink:  getEnv("ORDERFEED_CHANGELOG_SINK", "file"),
		ChangelogDir:   getEnv("ORDERFEED_CHANGELOG_DIR", "./changelog"),
		PebbleDir:      getEnv("ORDERFEED_PEBBLE_DIR", "./data/changelog.pebble"),
		SnapshotDir:    getEnv("ORDERFEED_SNAPSHOT_DIR", "./snapshots"),
		KafkaBootstrap: getEnv("ORDERFEED_KAFKA_BOOTSTRAP", "localhost:19092"),
		TopicChangelog: getEnv("ORDERFEED_TOPIC_CHANGELOG", "orderfeed.changelog"),
		TopicManifest:  getEnv("ORDERFEED_TOPIC_MANIFEST", "orderfeed.manifest"),
		RelayTopic:     getEnv("ORDERFEED_RELAY_TOPIC", ""),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.Token == "" {
		if path := getEnv("ORDERFEED_TOKEN_FILE", ""); path != "" {
			b, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read token file: %w", err)
			}
			cfg.Token = strings.TrimSpace(string(b))
		}
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
