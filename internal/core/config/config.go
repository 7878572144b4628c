package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type ProviderCfg struct {
	Driver    string
	URL       string
	Token     string
	UserAgent string
	Fixture   string
	Limit     int
	Timeout   time.Duration
}

type SnapshotCfg struct {
	Enabled   bool
	RedisAddr string
	Namespace string
	OpTimeout time.Duration
}

type EventsCfg struct {
	Enabled   bool
	Brokers   []string
	Topic     string
	QueueSize int
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr        string
	LogLevel    string
	LogConsole  bool
	LogSampleN  int
	Version     string
	CORSOrigins []string

	Provider  ProviderCfg
	CacheTTL  time.Duration
	MarginDeg float64
	H3Res     int

	Snapshot SnapshotCfg
	Events   EventsCfg
	Metrics  MetricsCfg
}

func FromEnv() Config {
	res := getint("H3_RES", 8)
	if res < 0 || res > 15 {
		res = 8
	}

	margin := getfloat("VIEWPORT_MARGIN_DEG", 0.01)
	if margin < 0 {
		margin = 0.01
	}

	limit := getint("PROVIDER_LIMIT", 5000)
	if limit <= 0 {
		limit = 5000
	}

	ttl := getduration("CACHE_TTL", 5*time.Minute)
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return Config{
		Addr:        getenv("ADDR", ":8090"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogConsole:  getbool("LOG_CONSOLE", false),
		LogSampleN:  getint("LOG_SAMPLE_N", 0),
		Version:     getenv("APP_VERSION", "dev"),
		CORSOrigins: split(getenv("CORS_ORIGINS", "*")),

		Provider: ProviderCfg{
			Driver:    getenv("PROVIDER_DRIVER", "http"),
			URL:       getenv("PROVIDER_URL", "http://localhost:8080/api/ads"),
			Token:     getenv("PROVIDER_TOKEN", ""),
			UserAgent: getenv("PROVIDER_USER_AGENT", "listings-viewport-cache"),
			Fixture:   getenv("PROVIDER_FIXTURE", ""),
			Limit:     limit,
			Timeout:   getduration("PROVIDER_TIMEOUT", 10*time.Second),
		},
		CacheTTL:  ttl,
		MarginDeg: margin,
		H3Res:     res,

		Snapshot: SnapshotCfg{
			Enabled:   getbool("SNAPSHOT_ENABLED", false),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			Namespace: getenv("SNAPSHOT_NAMESPACE", "listings"),
			OpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		},
		Events: EventsCfg{
			Enabled:   getbool("VIEWPORT_EVENTS_ENABLED", false),
			Brokers:   split(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:     getenv("VIEWPORT_EVENTS_TOPIC", "viewport-events"),
			QueueSize: getint("VIEWPORT_EVENTS_QUEUE", 1024),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", true),
			Addr:    getenv("METRICS_ADDR", ""),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func split(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
