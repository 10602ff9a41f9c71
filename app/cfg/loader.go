package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"curio" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" default:"curio" description:"Database password"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"curio" description:"Database name"`
	DBSSLMode  string `long:"db-sslmode" env:"DB_SSLMODE" default:"disable" description:"Postgres sslmode"`

	// Application configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://curio.example.com)"`
	APIAccessKey string `long:"cron-secret" env:"CRON_SECRET" description:"Shared bearer secret for ingest and crawl endpoints"`
	WorkerCount  int    `long:"worker-count" env:"WORKER_COUNT" default:"4" description:"Number of background task workers"`
	DispatchMode string `long:"dispatch-mode" env:"DISPATCH_MODE" default:"queue" choice:"queue" choice:"http" description:"How crawl continuations are dispatched"`

	// Enrichment
	GeminiAPIKey        string `long:"gemini-api-key" env:"GEMINI_API_KEY" description:"Gemini API key (vision, embeddings, grounded search)"`
	GeminiBaseURL       string `long:"gemini-base-url" env:"GEMINI_BASE_URL" description:"Gemini API base URL override (SDK default when empty)"`
	VisionModel         string `long:"gemini-vision-model" env:"GEMINI_VISION_MODEL" default:"gemini-2.0-flash" description:"Model used for image analysis"`
	EmbeddingModel      string `long:"gemini-embedding-model" env:"GEMINI_EMBEDDING_MODEL" default:"gemini-embedding-001" description:"Model used for text embeddings"`
	SearchModel         string `long:"gemini-search-model" env:"GEMINI_SEARCH_MODEL" default:"gemini-3-flash-preview" description:"Model used for grounded web search"`
	EmbeddingDimensions int    `long:"embedding-dimensions" env:"EMBEDDING_DIMENSIONS" default:"768" description:"Embedding vector size, must match the items.embedding column"`

	// Marketplaces and web search
	GoogleCSEKey   string        `long:"google-cse-key" env:"GOOGLE_CUSTOM_SEARCH_KEY" description:"Google Custom Search API key for thumbnails"`
	GoogleCSECX    string        `long:"google-cse-cx" env:"GOOGLE_CUSTOM_SEARCH_CX" description:"Google Custom Search engine id"`
	EtsyAPIKey     string        `long:"etsy-api-key" env:"ETSY_API_KEY" description:"Etsy Open API key"`
	WebCacheTTL    time.Duration `long:"web-cache-ttl" env:"WEB_CACHE_TTL" default:"1h" description:"Web search cache TTL"`
	WebCacheSize   int           `long:"web-cache-size" env:"WEB_CACHE_SIZE" default:"500" description:"Web search in-memory cache capacity"`
	RedisAddr      string        `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the shared web search cache (optional)"`
	RateLimitRetry time.Duration `long:"web-search-backoff" env:"WEB_SEARCH_BACKOFF" default:"2s" description:"Backoff before retrying a rate-limited web search"`

	// Crawling
	CrawlerUserID string `long:"crawler-user-id" env:"CRAWLER_SYSTEM_USER_ID" default:"00000000-0000-0000-0000-000000000000" description:"Seller id attributed to aggregated items"`
	CrawlSchedule string `long:"crawl-schedule" env:"CRAWL_SCHEDULE" default:"0 */6 * * *" description:"Cron expression for triggering all active crawl sources"`
	SourcesDir    string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing crawl source definitions"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Curio/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	// A missing .env file is the normal case in containers.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := fromRaw(raw)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func fromRaw(raw rawCfg) *Cfg {
	return &Cfg{
		DBHost:              raw.DBHost,
		DBPort:              raw.DBPort,
		DBUser:              raw.DBUser,
		DBPassword:          raw.DBPassword,
		DBName:              raw.DBName,
		DBSSLMode:           raw.DBSSLMode,
		Port:                raw.Port,
		BaseUrl:             raw.BaseUrl,
		APIAccessKey:        raw.APIAccessKey,
		WorkerCount:         raw.WorkerCount,
		DispatchMode:        raw.DispatchMode,
		GeminiAPIKey:        raw.GeminiAPIKey,
		GeminiBaseURL:       raw.GeminiBaseURL,
		VisionModel:         raw.VisionModel,
		EmbeddingModel:      raw.EmbeddingModel,
		SearchModel:         raw.SearchModel,
		EmbeddingDimensions: raw.EmbeddingDimensions,
		GoogleCSEKey:        raw.GoogleCSEKey,
		GoogleCSECX:         raw.GoogleCSECX,
		EtsyAPIKey:          raw.EtsyAPIKey,
		WebCacheTTL:         raw.WebCacheTTL,
		WebCacheSize:        raw.WebCacheSize,
		RedisAddr:           raw.RedisAddr,
		RateLimitRetry:      raw.RateLimitRetry,
		CrawlerUserID:       raw.CrawlerUserID,
		CrawlSchedule:       raw.CrawlSchedule,
		SourcesDir:          raw.SourcesDir,
		UserAgent:           raw.UserAgent,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}
}

// Validate checks cross-field constraints that go-flags cannot express.
func (c *Cfg) Validate() error {
	switch c.DispatchMode {
	case DispatchQueue:
	case DispatchHTTP:
		if c.APIAccessKey == "" {
			return fmt.Errorf("dispatch mode %q requires CRON_SECRET", c.DispatchMode)
		}
		if c.BaseUrl == "" {
			return fmt.Errorf("dispatch mode %q requires BASE_URL", c.DispatchMode)
		}
	default:
		return fmt.Errorf("unknown dispatch mode %q", c.DispatchMode)
	}

	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.WorkerCount)
	}
	if c.EmbeddingDimensions < 1 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.EmbeddingDimensions)
	}
	if c.WebCacheSize < 1 {
		return fmt.Errorf("web cache size must be positive, got %d", c.WebCacheSize)
	}

	return nil
}

// DSN builds the lib/pq connection string.
func (c *Cfg) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
