package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Features struct {
		Detection   bool `yaml:"detection"`
		Router      bool `yaml:"router"`
		Registry    bool `yaml:"registry"`
		Calibration bool `yaml:"calibration"`
		Weighting   bool `yaml:"weighting"`
		Flagger     bool `yaml:"flagger"`
	} `yaml:"features"`
	Cycle struct {
		RunAt       string `yaml:"run_at"` // local HH:MM
		Concurrency int    `yaml:"concurrency"`
	} `yaml:"cycle"`
	Detection struct {
		SpreadStep           float64  `yaml:"spread_step"`
		ProbabilityStep      float64  `yaml:"probability_step"`
		RequiredFields       []string `yaml:"required_fields"`
		StructuralFields     []string `yaml:"structural_fields"`
		EscalateNumericCount int      `yaml:"escalate_numeric_count"`
	} `yaml:"detection"`
	Executor struct {
		URL            string        `yaml:"url"`
		Timeout        time.Duration `yaml:"timeout"`
		RPS            float64       `yaml:"rps"`
		MinPredictions int           `yaml:"min_predictions"`
		MaxPredictions int           `yaml:"max_predictions"`
		TierCosts      struct {
			Cheap float64 `yaml:"cheap"`
			Mid   float64 `yaml:"mid"`
			High  float64 `yaml:"high"`
		} `yaml:"tier_costs"`
	} `yaml:"executor"`
	Calibration struct {
		OverconfidenceMargin float64       `yaml:"overconfidence_margin"`
		MinBucketSamples     int           `yaml:"min_bucket_samples"`
		CorrectionWindow     time.Duration `yaml:"correction_window"`
	} `yaml:"calibration"`
	Weighting struct {
		ActivationSamples int     `yaml:"activation_samples"`
		BrierFloor        float64 `yaml:"brier_floor"`
	} `yaml:"weighting"`
	Flagger struct {
		DisagreementWeight    int           `yaml:"disagreement_weight"`
		GradeChangeWeight     int           `yaml:"grade_change_weight"`
		PoorBrierWeight       int           `yaml:"poor_brier_weight"`
		MilestoneWeight       int           `yaml:"milestone_weight"`
		DegradedWeight        int           `yaml:"degraded_weight"`
		ScoreCeiling          int           `yaml:"score_ceiling"`
		DisagreementThreshold float64       `yaml:"disagreement_threshold"`
		BrierThreshold        float64       `yaml:"brier_threshold"`
		BrierLookback         int           `yaml:"brier_lookback"`
		EventWindow           time.Duration `yaml:"event_window"`
	} `yaml:"flagger"`
	Postgres struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		Database        string        `yaml:"database"`
		User            string        `yaml:"user"`
		Password        string        `yaml:"password"`
		SSLMode         string        `yaml:"ssl_mode"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	} `yaml:"postgres"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Feed struct {
		Backend string `yaml:"backend"` // "kafka" or "websocket"
		Kafka   struct {
			Brokers    []string      `yaml:"brokers"`
			Topic      string        `yaml:"topic"`
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"kafka"`
		WebSocket struct {
			APIKey         string        `yaml:"api_key"`
			URL            string        `yaml:"url"`
			Channels       []string      `yaml:"channels"`
			ReconnectDelay time.Duration `yaml:"reconnect_delay"`
			PingInterval   time.Duration `yaml:"ping_interval"`
		} `yaml:"websocket"`
	} `yaml:"feed"`
	Events struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic"`
		RequiredAcks int           `yaml:"required_acks"`
		Compression  string        `yaml:"compression"`
		MaxAttempts  int           `yaml:"max_attempts"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"events"`
	Redis struct {
		Enabled        bool          `yaml:"enabled"`
		Addr           string        `yaml:"addr"`
		Password       string        `yaml:"password"`
		DB             int           `yaml:"db"`
		FingerprintTTL time.Duration `yaml:"fingerprint_ttl"`
	} `yaml:"redis"`
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

	if v := os.Getenv("EXECUTOR_URL"); v != "" {
		c.Executor.URL = v
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		c.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Postgres.Password = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("FEED_BACKEND"); v != "" {
		c.Feed.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Feed.Kafka.Brokers = strings.Split(v, ",")
		c.Events.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FEED_WS_API_KEY"); v != "" {
		c.Feed.WebSocket.APIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Executor.URL == "" && c.Features.Router {
		return fmt.Errorf("executor.url is required when the router is enabled")
	}
	if c.Postgres.Host == "" {
		return fmt.Errorf("postgres.host is required")
	}
	switch c.Feed.Backend {
	case "", "kafka", "websocket":
	default:
		return fmt.Errorf("feed.backend must be 'kafka' or 'websocket', got '%s'", c.Feed.Backend)
	}
	if c.Feed.Backend == "kafka" && len(c.Feed.Kafka.Brokers) == 0 {
		return fmt.Errorf("feed.kafka.brokers cannot be empty")
	}
	if c.Feed.Backend == "websocket" && c.Feed.WebSocket.URL == "" {
		return fmt.Errorf("feed.websocket.url is required")
	}
	if c.Cycle.RunAt != "" {
		if _, err := time.Parse("15:04", c.Cycle.RunAt); err != nil {
			return fmt.Errorf("cycle.run_at must be HH:MM: %w", err)
		}
	}
	return nil
}
