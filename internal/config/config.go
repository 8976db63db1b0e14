package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Backend   BackendConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Generator GeneratorConfig
	Store     StoreConfig
	Chat      ChatConfig
	Tracing   TracingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	JWTSecret          string
	NatsURL            string
	RedisURL           string
	InboundSubject     string
}

// BackendConfig describes the analysis service reached over HTTP.
type BackendConfig struct {
	APIBaseURL        string
	RequestTimeout    time.Duration // per HTTP call
	PollInterval      time.Duration // analysis status polling
	AnalysisTimeout   time.Duration // whole analysis wait
	QueryPollInterval time.Duration
	QueryTimeout      time.Duration // whole query wait
	MaxPollAttempts   int           // 0 derives the cap from timeout/interval
	GenerationMode    string        // "service" | "plugin"
}

type EmbeddingConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
}

// GeneratorConfig selects the local text-generation capability used when the
// backend answers in plugin mode. An empty provider disables it.
type GeneratorConfig struct {
	Provider string // "ollama" | "huggingface" | ""
	BaseURL  string
	Model    string
	APIKey   string
}

type StoreConfig struct {
	Driver     string // "memory" | "sqlite" | "postgres"
	SQLitePath string
	DSN        string
}

type ChatConfig struct {
	MaxMessageLength int
	SessionIdleTTL   time.Duration
	MailboxSize      int
	ExitKeywords     []string
	SwitchCommands   []string
}

// TracingConfig controls the OTLP exporter. Tracing is off by default.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/repoinsight.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			InboundSubject:     getEnv("CHAT_INBOUND_SUBJECT", "events.chat.inbound"),
		},
		Backend: BackendConfig{
			APIBaseURL:        strings.TrimRight(getEnv("API_BASE_URL", "http://api:8000"), "/"),
			RequestTimeout:    getEnvAsDuration("API_TIMEOUT", 30*time.Second),
			PollInterval:      getEnvAsDuration("POLL_INTERVAL", 5*time.Second),
			AnalysisTimeout:   getEnvAsDuration("ANALYSIS_TIMEOUT", 30*time.Minute),
			QueryPollInterval: getEnvAsDuration("QUERY_POLL_INTERVAL", 2*time.Second),
			QueryTimeout:      getEnvAsDuration("QUERY_TIMEOUT", 5*time.Minute),
			MaxPollAttempts:   getEnvAsInt("MAX_POLL_ATTEMPTS", 0),
			GenerationMode:    getEnv("GENERATION_MODE", "service"),
		},
		Embedding: EmbeddingConfig{
			Provider: getEnv("EMBEDDING_PROVIDER", "qwen"),
			Model:    getEnv("EMBEDDING_MODEL", "text-embedding-v4"),
			APIKey:   getEnv("EMBEDDING_API_KEY", ""),
			BaseURL:  getEnv("EMBEDDING_BASE_URL", ""),
		},
		LLM: LLMConfig{
			Provider:    getEnv("LLM_PROVIDER", "qwen"),
			Model:       getEnv("LLM_MODEL", "qwen-plus"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Temperature: getEnvAsFloat("LLM_TEMPERATURE", 0.7),
			MaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 9000),
		},
		Generator: GeneratorConfig{
			Provider: getEnv("GENERATOR_PROVIDER", ""),
			BaseURL:  getEnv("GENERATOR_BASE_URL", ""),
			Model:    getEnv("GENERATOR_MODEL", "llama3"),
			APIKey:   getEnv("GENERATOR_API_KEY", ""),
		},
		Store: StoreConfig{
			Driver:     getEnv("STORE_DRIVER", "sqlite"),
			SQLitePath: getEnv("SQLITE_PATH", "data/repoinsight_tasks.db"),
			DSN:        getEnv("DB_CONNECTION_STRING", ""),
		},
		Chat: ChatConfig{
			MaxMessageLength: getEnvAsInt("MAX_MESSAGE_LENGTH", 1800),
			SessionIdleTTL:   getEnvAsDuration("SESSION_IDLE_TTL", 10*time.Minute),
			MailboxSize:      getEnvAsInt("SESSION_MAILBOX_SIZE", 32),
			ExitKeywords:     getEnvAsList("EXIT_KEYWORDS", []string{"exit", "quit", "退出", "取消"}),
			SwitchCommands:   getEnvAsList("SWITCH_COMMANDS", []string{"switch", "/switch", "切换仓库", "换仓库"}),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "repoinsight"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if seconds, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(strValue, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
