package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Source configures the NocoDB record API.
type Source struct {
	BaseURL       string
	APIToken      string
	ProjectID     string
	Tables        map[string]string
	PageSize      int
	MaxPages      int
	RatePerSecond float64
	Timeout       time.Duration
}

// Cache configures the aggregate cache and the asset directory.
type Cache struct {
	Dir      string
	TTL      time.Duration
	Disabled bool
}

// Assets configures asset download and conversion.
type Assets struct {
	FetchTimeout   time.Duration
	ConvertTimeout time.Duration
	Concurrency    int
	PdftoppmPath   string
	CwebpPath      string
	Width          int
	Height         int
}

// Publish lists where a finished event set is written.
type Publish struct {
	Targets          []string
	OutputDir        string
	S3Bucket         string
	S3Prefix         string
	S3Region         string
	S3Endpoint       string
	KafkaBrokers     []string
	KafkaNoticeTopic string
	NATSURL          string
	NATSSubject      string
}

// Build holds everything needed to run the ingestion pipeline once.
type Build struct {
	Common
	Source      Source
	Cache       Cache
	Assets      Assets
	Publish     Publish
	AuditDBPath string
	EditionFile string
	Edition     Edition
}

// Worker holds configuration for the Kafka-triggered build worker.
type Worker struct {
	Build
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaConsumer  string
	DedupeCapacity int
	DebounceWindow time.Duration
	BatchSize      int
	FetchMaxWait   time.Duration
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr    string
	DefaultPage int
	MaxPage     int
	OutputDir   string
	CORSOrigins []string
	RatePerMin  int
	EditionFile string
	Edition     Edition
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval   time.Duration
	MaxAge     time.Duration
	BatchSize  int
	CacheDir   string
	WipeAssets bool
}

// Tools configures the festctl maintenance commands, which run without
// source credentials.
type Tools struct {
	CacheDir    string
	OutputDir   string
	AuditDBPath string
	CwebpPath   string
	Width       int
	Height      int
	EditionFile string
	Edition     Edition
}

// LoadBuild builds a Build config from environment variables and the
// edition file.
func LoadBuild() (*Build, error) {
	c := &Build{
		Common: loadCommon(),
		Source: Source{
			BaseURL:   strings.TrimRight(getEnv("NOCODB_BASE_URL", "https://app.nocodb.com"), "/"),
			APIToken:  getEnv("NOCODB_API_TOKEN", ""),
			ProjectID: getEnv("NOCODB_PROJECT_ID", ""),
			Tables: map[string]string{
				"stands":      getEnv("NOCODB_TABLE_STANDS", ""),
				"ateliers":    getEnv("NOCODB_TABLE_WORKSHOPS", ""),
				"conferences": getEnv("NOCODB_TABLE_CONFERENCES", ""),
			},
			PageSize:      getInt("NOCODB_PAGE_SIZE", 50),
			MaxPages:      getInt("NOCODB_MAX_PAGES", 100),
			RatePerSecond: getFloat("NOCODB_RATE_PER_SECOND", 5),
			Timeout:       getDuration("NOCODB_TIMEOUT", "30s"),
		},
		Cache: Cache{
			Dir:      getEnv("CACHE_DIR", ".cache"),
			TTL:      getDuration("CACHE_TTL", "1h"),
			Disabled: getBool("CACHE_DISABLED", false) || getEnv("APP_ENV", "production") == "development",
		},
		Assets: Assets{
			FetchTimeout:   getDuration("ASSET_FETCH_TIMEOUT", "20s"),
			ConvertTimeout: getDuration("ASSET_CONVERT_TIMEOUT", "30s"),
			Concurrency:    getInt("ASSET_CONCURRENCY", 4),
			PdftoppmPath:   getEnv("PDFTOPPM_PATH", "pdftoppm"),
			CwebpPath:      getEnv("CWEBP_PATH", "cwebp"),
			Width:          getInt("ASSET_WIDTH", 400),
			Height:         getInt("ASSET_HEIGHT", 400),
		},
		Publish: Publish{
			Targets:          splitAndTrim(getEnv("PUBLISH_TARGETS", "file")),
			OutputDir:        getEnv("OUTPUT_DIR", "data"),
			S3Bucket:         getEnv("S3_BUCKET", ""),
			S3Prefix:         getEnv("S3_PREFIX", "festival"),
			S3Region:         getEnv("S3_REGION", "eu-west-3"),
			S3Endpoint:       getEnv("S3_ENDPOINT", ""),
			KafkaBrokers:     splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
			KafkaNoticeTopic: getEnv("KAFKA_NOTICE_TOPIC", "festival_events_published"),
			NATSURL:          getEnv("NATS_URL", "nats://nats:4222"),
			NATSSubject:      getEnv("NATS_SUBJECT", "festival.events.published"),
		},
		AuditDBPath: getEnv("AUDIT_DB_PATH", ""),
		EditionFile: getEnv("EDITION_FILE", ""),
	}

	if c.Source.ProjectID == "" {
		return nil, fmt.Errorf("NOCODB_PROJECT_ID is required")
	}
	for name, id := range c.Source.Tables {
		if id == "" {
			return nil, fmt.Errorf("table id for %s is required", name)
		}
	}
	if c.Source.PageSize <= 0 || c.Source.PageSize > 1000 {
		return nil, fmt.Errorf("NOCODB_PAGE_SIZE must be between 1 and 1000")
	}
	if c.Source.MaxPages <= 0 {
		return nil, fmt.Errorf("NOCODB_MAX_PAGES must be positive")
	}
	if c.Source.RatePerSecond <= 0 {
		return nil, fmt.Errorf("NOCODB_RATE_PER_SECOND must be positive")
	}
	if c.Cache.TTL <= 0 {
		return nil, fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.Assets.Concurrency <= 0 {
		return nil, fmt.Errorf("ASSET_CONCURRENCY must be positive")
	}
	if c.Assets.ConvertTimeout <= 0 || c.Assets.FetchTimeout <= 0 {
		return nil, fmt.Errorf("asset timeouts must be positive")
	}
	for _, target := range c.Publish.Targets {
		switch target {
		case "file", "elasticsearch", "kafka", "nats":
		case "s3":
			if c.Publish.S3Bucket == "" {
				return nil, fmt.Errorf("S3_BUCKET is required when publishing to s3")
			}
		default:
			return nil, fmt.Errorf("unknown publish target %q", target)
		}
	}
	if c.AuditDBPath == "" {
		c.AuditDBPath = c.Cache.Dir + "/audit.db"
	}

	edition, err := LoadEdition(c.EditionFile)
	if err != nil {
		return nil, err
	}
	c.Edition = edition

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	build, err := LoadBuild()
	if err != nil {
		return nil, err
	}
	c := &Worker{
		Build:          *build,
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "festival_rebuild"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "festival-worker"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 1000),
		DebounceWindow: getDuration("WORKER_DEBOUNCE_WINDOW", "1m"),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 10),
		FetchMaxWait:   getDuration("WORKER_FETCH_MAX_WAIT", "2s"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}

	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.DebounceWindow < 0 {
		return nil, fmt.Errorf("WORKER_DEBOUNCE_WINDOW cannot be negative")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common:      loadCommon(),
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage: getInt("API_PAGE_SIZE", 10),
		MaxPage:     getInt("API_MAX_PAGE_SIZE", 100),
		OutputDir:   getEnv("OUTPUT_DIR", "data"),
		CORSOrigins: splitAndTrim(getEnv("API_CORS_ORIGINS", "*")),
		RatePerMin:  getInt("API_RATE_PER_MINUTE", 120),
		EditionFile: getEnv("EDITION_FILE", ""),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}
	if c.RatePerMin <= 0 {
		return nil, fmt.Errorf("API_RATE_PER_MINUTE must be positive")
	}

	edition, err := LoadEdition(c.EditionFile)
	if err != nil {
		return nil, err
	}
	c.Edition = edition

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:     loadCommon(),
		Interval:   getDuration("RETENTION_CRON", "24h"),
		MaxAge:     getDuration("RETENTION_MAX_AGE", "168h"),
		BatchSize:  getInt("RETENTION_BATCH_SIZE", 500),
		CacheDir:   getEnv("CACHE_DIR", ".cache"),
		WipeAssets: getBool("RETENTION_WIPE_ASSETS", false),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}

	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

// LoadTools builds a Tools config from environment variables.
func LoadTools() (*Tools, error) {
	c := &Tools{
		CacheDir:    getEnv("CACHE_DIR", ".cache"),
		OutputDir:   getEnv("OUTPUT_DIR", "data"),
		AuditDBPath: getEnv("AUDIT_DB_PATH", ""),
		CwebpPath:   getEnv("CWEBP_PATH", "cwebp"),
		Width:       getInt("ASSET_WIDTH", 400),
		Height:      getInt("ASSET_HEIGHT", 400),
		EditionFile: getEnv("EDITION_FILE", ""),
	}
	if c.AuditDBPath == "" {
		c.AuditDBPath = c.CacheDir + "/audit.db"
	}
	if c.Width <= 0 || c.Height <= 0 {
		return nil, fmt.Errorf("ASSET_WIDTH and ASSET_HEIGHT must be positive")
	}

	edition, err := LoadEdition(c.EditionFile)
	if err != nil {
		return nil, err
	}
	c.Edition = edition

	return c, nil
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "festival-events"),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := parseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseDuration(raw string) (time.Duration, error) {
	return time.ParseDuration(raw)
}
