package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"SessionScope/pkg/util"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// SessionEntry is one configured trading session. Open/Close are local
// wall-clock times ("09:00" or "09:30:00") in the exchange timezone.
type SessionEntry struct {
	Name        string `yaml:"name"`
	Timezone    string `yaml:"timezone"`
	Open        string `yaml:"open"`
	Close       string `yaml:"close"`
	Description string `yaml:"description"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Logger struct {
		Level      string `yaml:"level" default:"info"`
		Format     string `yaml:"format" default:"console"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format"`
	} `yaml:"logger"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Market struct {
		Provider   string        `yaml:"provider" default:"yahoo"`
		BaseURL    string        `yaml:"base_url" default:"https://query1.finance.yahoo.com"`
		UserAgent  string        `yaml:"user_agent" default:"Mozilla/5.0 (compatible; sessionscope/1.0)"`
		Timeout    time.Duration `yaml:"timeout" default:"15s"`
		MaxRetries int           `yaml:"max_retries" default:"2"`
		Symbols    []string      `yaml:"symbols"`
	} `yaml:"market"`
	Cache struct {
		SeriesTTL  time.Duration `yaml:"series_ttl" default:"24h"`
		StaleTTL   time.Duration `yaml:"stale_ttl" default:"15m"`
		ResultTTL  time.Duration `yaml:"result_ttl" default:"30s"`
		MaxEntries int           `yaml:"max_entries" default:"512"`
	} `yaml:"cache"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"sessionscope"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		ReportTopic  string   `yaml:"report_topic" default:"session.reports"`
		CandlesTopic string   `yaml:"candles_topic" default:"market.candles"`
		LogsTopic    string   `yaml:"logs_topic" default:"service.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID         string        `yaml:"group_id" default:"sessionscope-candles"`
			AutoOffsetReset string        `yaml:"auto_offset_reset" default:"earliest"`
			Workers         int           `yaml:"workers" default:"2"`
			BufferSize      int           `yaml:"buffer_size" default:"256"`
			RetryMax        int           `yaml:"retry_max" default:"3"`
			BackoffMin      time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax      time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic        string        `yaml:"dlq_topic"`
			MinBytes        int           `yaml:"min_bytes" default:"1"`
			MaxBytes        int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Ingest struct {
		BatchSize    int           `yaml:"batch_size" default:"500"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"2s"`
		Interval     string        `yaml:"interval" default:"1m"` // assumed when messages omit it
	} `yaml:"ingest"`
	Sessions []SessionEntry `yaml:"sessions"`
	Report   struct {
		Cron         string   `yaml:"cron"`
		Symbols      []string `yaml:"symbols"`
		SessionNames []string `yaml:"session_names"`
		// Intraday resolution; daily bars cannot fall inside a session window.
		Interval string `yaml:"interval" default:"30m"`
		Jobs     struct {
			Workers    int           `yaml:"workers" default:"2"`
			QueueSize  int           `yaml:"queue_size" default:"64"`
			RetryLimit int           `yaml:"retry_limit" default:"2"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
		} `yaml:"jobs"`
	} `yaml:"report"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Fill zero-valued fields from struct tags
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Market.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("MARKET_BASE_URL"); v != "" {
		c.Market.BaseURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_REPORT_TOPIC"); v != "" {
		c.Kafka.ReportTopic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	c.Server.Port = util.ParseIntDefault(os.Getenv("SERVER_PORT"), c.Server.Port)
	c.Redis.DB = util.ParseIntDefault(os.Getenv("REDIS_DB"), c.Redis.DB)
	c.Kafka.Enabled = util.ParseBoolDefault(os.Getenv("KAFKA_ENABLED"), c.Kafka.Enabled)

	return c, nil
}

// Validate checks if the configuration is valid. Session open/close parsing
// and timezone resolution are deferred to registry construction, which
// fails fast on the first bad definition.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Market.Provider != "yahoo" {
		return fmt.Errorf("market.provider must be 'yahoo', got '%s'", c.Market.Provider)
	}
	seen := make(map[string]struct{}, len(c.Sessions))
	for _, s := range c.Sessions {
		if s.Name == "" {
			return fmt.Errorf("sessions[]: name is required")
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("sessions[]: duplicate name '%s'", s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.Timezone == "" {
			return fmt.Errorf("session '%s': timezone is required", s.Name)
		}
		if s.Open == "" || s.Close == "" {
			return fmt.Errorf("session '%s': open and close are required", s.Name)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Report.Cron != "" && len(c.Report.Symbols) == 0 {
		return fmt.Errorf("report.symbols cannot be empty when report.cron is set")
	}
	return nil
}
