package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Kakao     KakaoConfig     `yaml:"kakao" mapstructure:"kakao"`
	Naver     NaverConfig     `yaml:"naver" mapstructure:"naver"`
	SGIS      SGISConfig      `yaml:"sgis" mapstructure:"sgis"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Boundary  BoundaryConfig  `yaml:"boundary" mapstructure:"boundary"`
	Refdata   RefdataConfig   `yaml:"refdata" mapstructure:"refdata"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	Path          string `yaml:"path" mapstructure:"path"`
	DatabaseURL   string `yaml:"database_url" mapstructure:"database_url"`
	CacheTTLHours int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// KakaoConfig holds Kakao Local API settings.
type KakaoConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// NaverConfig holds Naver Local search API settings.
type NaverConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	Display      int    `yaml:"display" mapstructure:"display"`
}

// SGISConfig holds Statistics Korea SGIS OpenAPI settings.
type SGISConfig struct {
	ConsumerKey    string `yaml:"consumer_key" mapstructure:"consumer_key"`
	ConsumerSecret string `yaml:"consumer_secret" mapstructure:"consumer_secret"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
}

// ProvidersConfig holds shared settings for the public-data indicator
// providers. Per-provider retry budgets and timeouts are fixed in code.
type ProvidersConfig struct {
	ServiceKey   string  `yaml:"service_key" mapstructure:"service_key"`
	SeoulKey     string  `yaml:"seoul_key" mapstructure:"seoul_key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	SeoulBaseURL string  `yaml:"seoul_base_url" mapstructure:"seoul_base_url"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	SonnetModel string  `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	HaikuModel  string  `yaml:"haiku_model" mapstructure:"haiku_model"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// PipelineConfig configures report generation behavior.
type PipelineConfig struct {
	DeadlineSecs         int `yaml:"deadline_secs" mapstructure:"deadline_secs"`
	Workers              int `yaml:"workers" mapstructure:"workers"`
	EnrichBatch          int `yaml:"enrich_batch" mapstructure:"enrich_batch"`
	SynthesisTimeoutSecs int `yaml:"synthesis_timeout_secs" mapstructure:"synthesis_timeout_secs"`
	EnrichTimeoutSecs    int `yaml:"enrich_timeout_secs" mapstructure:"enrich_timeout_secs"`
	NeighborLimit        int `yaml:"neighbor_limit" mapstructure:"neighbor_limit"`
}

// BoundaryConfig configures the administrative boundary index.
type BoundaryConfig struct {
	Shapefile string `yaml:"shapefile" mapstructure:"shapefile"`
}

// RefdataConfig configures the administrative division table.
type RefdataConfig struct {
	Snapshot    string `yaml:"snapshot" mapstructure:"snapshot"`
	SyncURL     string `yaml:"sync_url" mapstructure:"sync_url"`
	FTPHost     string `yaml:"ftp_host" mapstructure:"ftp_host"`
	FTPUser     string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword string `yaml:"ftp_password" mapstructure:"ftp_password"`
	FTPPath     string `yaml:"ftp_path" mapstructure:"ftp_path"`
}

// NotionConfig holds Notion export credentials.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReportDB string `yaml:"report_db" mapstructure:"report_db"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DISTRICT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "district.db")
	v.SetDefault("store.cache_ttl_hours", 168)
	v.SetDefault("kakao.base_url", "https://dapi.kakao.com")
	v.SetDefault("kakao.rate_per_sec", 10.0)
	v.SetDefault("naver.base_url", "https://openapi.naver.com")
	v.SetDefault("naver.display", 5)
	v.SetDefault("sgis.base_url", "https://sgisapi.kostat.go.kr/OpenAPI3")
	v.SetDefault("providers.base_url", "https://apis.data.go.kr")
	v.SetDefault("providers.seoul_base_url", "http://openapi.seoul.go.kr:8088")
	v.SetDefault("providers.rate_per_sec", 5.0)
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.temperature", 0.3)
	v.SetDefault("pipeline.deadline_secs", 120)
	v.SetDefault("pipeline.workers", 6)
	v.SetDefault("pipeline.enrich_batch", 3)
	v.SetDefault("pipeline.synthesis_timeout_secs", 60)
	v.SetDefault("pipeline.enrich_timeout_secs", 30)
	v.SetDefault("pipeline.neighbor_limit", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is complete for the given mode.
// Modes: report, serve, export, sync, runs.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.Path == "" {
				problems = append(problems, "store.path is required for sqlite")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for postgres")
			}
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	}

	checkPipeline := func() {
		if c.Kakao.Key == "" {
			problems = append(problems, "kakao.key is required")
		}
		if c.Naver.ClientID == "" || c.Naver.ClientSecret == "" {
			problems = append(problems, "naver.client_id and naver.client_secret are required")
		}
		if c.SGIS.ConsumerKey == "" || c.SGIS.ConsumerSecret == "" {
			problems = append(problems, "sgis.consumer_key and sgis.consumer_secret are required")
		}
		if c.Providers.ServiceKey == "" {
			problems = append(problems, "providers.service_key is required")
		}
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Pipeline.Workers < 1 || c.Pipeline.Workers > 32 {
			problems = append(problems, "pipeline.workers must be between 1 and 32")
		}
		if c.Pipeline.EnrichBatch < 1 || c.Pipeline.EnrichBatch > 10 {
			problems = append(problems, "pipeline.enrich_batch must be between 1 and 10")
		}
		if c.Pipeline.DeadlineSecs < 10 {
			problems = append(problems, "pipeline.deadline_secs must be >= 10")
		}
	}

	switch mode {
	case "report":
		checkStore()
		checkPipeline()
	case "serve":
		checkStore()
		checkPipeline()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "export":
		checkStore()
	case "sync":
		if c.Refdata.SyncURL == "" && c.Refdata.FTPHost == "" {
			problems = append(problems, "refdata.sync_url or refdata.ftp_host is required")
		}
	case "runs":
		checkStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
