package cfg

import "time"

type Cfg struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Application configuration
	Port         string
	BaseUrl      string
	APIAccessKey string
	WorkerCount  int
	DispatchMode string

	// Enrichment
	GeminiAPIKey        string
	GeminiBaseURL       string
	VisionModel         string
	EmbeddingModel      string
	SearchModel         string
	EmbeddingDimensions int

	// Marketplaces and web search
	GoogleCSEKey   string
	GoogleCSECX    string
	EtsyAPIKey     string
	WebCacheTTL    time.Duration
	WebCacheSize   int
	RedisAddr      string
	RateLimitRetry time.Duration

	// Crawling
	CrawlerUserID string
	CrawlSchedule string
	SourcesDir    string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

const (
	DispatchQueue = "queue"
	DispatchHTTP  = "http"
)
