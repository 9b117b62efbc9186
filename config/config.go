package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Research  ResearchConfig  `mapstructure:"research"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// StorageConfig groups database settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a postgres connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", errors.New("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

// LLMConfig contains LLM provider configuration
type LLMConfig struct {
	Provider string              `mapstructure:"provider"`
	APIKey   string              `mapstructure:"api_key"`
	BaseURL  string              `mapstructure:"base_url"`
	Models   map[string]LLMModel `mapstructure:"models"`
	Routing  LLMRoutingConfig    `mapstructure:"routing"`
	Timeout  time.Duration       `mapstructure:"timeout"`
	Retries  int                 `mapstructure:"retries"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model backs each pipeline role
type LLMRoutingConfig struct {
	Planning  string `mapstructure:"planning"`
	Research  string `mapstructure:"research"`
	Synthesis string `mapstructure:"synthesis"`
	Analysis  string `mapstructure:"analysis"`
	Fallback  string `mapstructure:"fallback"`
}

// Model resolves a routing role to a model name, falling back when unset.
func (r LLMRoutingConfig) Model(role string) string {
	var m string
	switch role {
	case "planning":
		m = r.Planning
	case "research":
		m = r.Research
	case "synthesis":
		m = r.Synthesis
	case "analysis":
		m = r.Analysis
	}
	if m == "" {
		m = r.Fallback
	}
	return m
}

// ToolsConfig configures researcher capabilities and publishing targets
type ToolsConfig struct {
	BraveAPIKey    string        `mapstructure:"brave_api_key"`
	SerperAPIKey   string        `mapstructure:"serper_api_key"`
	NewsAPIKey     string        `mapstructure:"news_api_key"`
	SocialAPIKey   string        `mapstructure:"social_api_key"`
	SocialBaseURL  string        `mapstructure:"social_base_url"`
	SearchTimeout  time.Duration `mapstructure:"search_timeout"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	FetchMaxURLs   int           `mapstructure:"fetch_max_urls"`
	FetchMaxChars  int           `mapstructure:"fetch_max_chars"`
	KBEndpoint     string        `mapstructure:"kb_endpoint"`
	KBAPIKey       string        `mapstructure:"kb_api_key"`
	PublishBaseURL string        `mapstructure:"publish_base_url"`
}

// ResearchConfig holds every pipeline tuning knob
type ResearchConfig struct {
	MaxConcurrent        int           `mapstructure:"max_concurrent"`
	MaxConcurrentStudies int           `mapstructure:"max_concurrent_studies"`
	StudyMaxRounds       int           `mapstructure:"study_max_rounds"`
	MaxGapsPerRound      int           `mapstructure:"max_gaps_per_round"`
	StageRetries         int           `mapstructure:"stage_retries"`
	StageBackoff         time.Duration `mapstructure:"stage_backoff"`
	ToolRetries          int           `mapstructure:"tool_retries"`
	ToolBackoff          time.Duration `mapstructure:"tool_backoff"`
	RefinementRounds     int           `mapstructure:"refinement_rounds"`
	RefinementThreshold  float64       `mapstructure:"refinement_threshold"`
	VerifyThreshold      float64       `mapstructure:"verify_threshold"`
	MaxGapQuestions      int           `mapstructure:"max_gap_questions"`
	MaxQAClusters        int           `mapstructure:"max_qa_clusters"`
	StandardQuestions    int           `mapstructure:"standard_questions"`
	StandardFollowUps    int           `mapstructure:"standard_follow_ups"`
	SynthesisTimeout     time.Duration `mapstructure:"synthesis_timeout"`
}

func (r ResearchConfig) Normalize() ResearchConfig {
	if r.MaxConcurrent <= 0 {
		r.MaxConcurrent = 3
	}
	if r.MaxConcurrentStudies <= 0 {
		r.MaxConcurrentStudies = 3
	}
	if r.StudyMaxRounds <= 0 {
		r.StudyMaxRounds = 3
	}
	if r.MaxGapsPerRound <= 0 {
		r.MaxGapsPerRound = 3
	}
	if r.StageRetries < 0 {
		r.StageRetries = 2
	}
	if r.StageBackoff <= 0 {
		r.StageBackoff = 5 * time.Second
	}
	if r.ToolRetries <= 0 {
		r.ToolRetries = 3
	}
	if r.ToolBackoff <= 0 {
		r.ToolBackoff = 2 * time.Second
	}
	if r.RefinementRounds <= 0 {
		r.RefinementRounds = 2
	}
	if r.RefinementThreshold <= 0 {
		r.RefinementThreshold = 8.0
	}
	if r.VerifyThreshold <= 0 {
		r.VerifyThreshold = 7.5
	}
	if r.MaxGapQuestions <= 0 {
		r.MaxGapQuestions = 6
	}
	if r.MaxQAClusters <= 0 {
		r.MaxQAClusters = 5
	}
	if r.StandardQuestions <= 0 {
		r.StandardQuestions = 5
	}
	if r.StandardFollowUps <= 0 {
		r.StandardFollowUps = 3
	}
	if r.SynthesisTimeout <= 0 {
		r.SynthesisTimeout = 180 * time.Second
	}
	return r
}

// WatchConfig controls the scheduled re-research loop
type WatchConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

func (w WatchConfig) Normalize() WatchConfig {
	if w.CheckInterval <= 0 {
		w.CheckInterval = time.Minute
	}
	return w
}

// TelemetryConfig contains monitoring settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return errors.New("llm.api_key is required (BRIEFER_LLM_API_KEY)")
	}
	if c.LLM.Routing.Fallback == "" {
		return errors.New("llm.routing.fallback is required")
	}
	return nil
}

// LoadConfig reads configuration from file (optional) and BRIEFER_* env vars.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":10002")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.redis.host", "localhost")
	viper.SetDefault("storage.redis.port", "6379")
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.timeout", "120s")
	viper.SetDefault("llm.retries", 2)
	viper.SetDefault("llm.routing.fallback", "gpt-4o-mini")
	viper.SetDefault("tools.search_timeout", "20s")
	viper.SetDefault("tools.fetch_timeout", "30s")
	viper.SetDefault("tools.fetch_max_urls", 5)
	viper.SetDefault("tools.fetch_max_chars", 5000)
	viper.SetDefault("research.max_concurrent", 3)
	viper.SetDefault("research.max_concurrent_studies", 3)
	viper.SetDefault("research.study_max_rounds", 3)
	viper.SetDefault("research.refinement_rounds", 2)
	viper.SetDefault("research.refinement_threshold", 8.0)
	viper.SetDefault("research.verify_threshold", 7.5)
	viper.SetDefault("research.max_gap_questions", 6)
	viper.SetDefault("research.max_qa_clusters", 5)
	viper.SetDefault("watch.check_interval", "1m")
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("BRIEFER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Research = config.Research.Normalize()
	config.Watch = config.Watch.Normalize()

	if err := config.Validate(); err != nil {
		panic(err)
	}
	return &config
}
