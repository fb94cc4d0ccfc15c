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
	Backend struct {
		Type         string        `yaml:"type"`
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
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
	Stream struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Symbols        []string      `yaml:"symbols"`
		Exchange       string        `yaml:"exchange"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"stream"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Forecast ForecastConfig `yaml:"forecast"`
}

// ForecastConfig holds tunables for feature engineering, training and
// multi-horizon prediction. Zero values are replaced by defaults on load.
type ForecastConfig struct {
	ModelDir        string         `yaml:"model_dir"`
	Seed            int64          `yaml:"seed"`
	SequenceLength  int            `yaml:"sequence_length"`
	LookbackCandles int            `yaml:"lookback_candles"`
	MinRows         int            `yaml:"min_rows"`
	MCSamples       int            `yaml:"mc_samples"`
	NoiseStd        float64        `yaml:"noise_std"`
	CacheTTL        time.Duration  `yaml:"cache_ttl"`
	TrainLockTTL    time.Duration  `yaml:"train_lock_ttl"`
	Training        TrainingConfig `yaml:"training"`
	Horizons        HorizonConfig  `yaml:"horizons"`
	Fallback        FallbackConfig `yaml:"fallback"`
}

type TrainingConfig struct {
	Epochs        int     `yaml:"epochs"`
	BatchSize     int     `yaml:"batch_size"`
	LearningRate  float64 `yaml:"learning_rate"`
	ValSplit      float64 `yaml:"val_split"`
	EarlyPatience int     `yaml:"early_patience"`
	LRPatience    int     `yaml:"lr_patience"`
	LRFactor      float64 `yaml:"lr_factor"`
	MinLR         float64 `yaml:"min_lr"`
}

// HorizonConfig tunes per-horizon projection and confidence shaping.
type HorizonConfig struct {
	Weekly   HorizonParams `yaml:"weekly"`
	Monthly  HorizonParams `yaml:"monthly"`
	LongTerm HorizonParams `yaml:"longterm"`
}

type HorizonParams struct {
	MomentumScale float64 `yaml:"momentum_scale"`
	Floor         int     `yaml:"floor"`
	Decrement     int     `yaml:"decrement"`
}

// FallbackConfig tunes the momentum heuristic used when no trained model can
// answer.
type FallbackConfig struct {
	MomentumClamp float64 `yaml:"momentum_clamp"`
	Multipliers   struct {
		Intraday float64 `yaml:"intraday"`
		Weekly   float64 `yaml:"weekly"`
		Monthly  float64 `yaml:"monthly"`
		LongTerm float64 `yaml:"longterm"`
	} `yaml:"multipliers"`
	Confidences struct {
		Intraday int `yaml:"intraday"`
		Weekly   int `yaml:"weekly"`
		Monthly  int `yaml:"monthly"`
		LongTerm int `yaml:"longterm"`
	} `yaml:"confidences"`
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

	c.Forecast.ApplyDefaults()

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
	if v := os.Getenv("STREAM_API_KEY"); v != "" {
		c.Stream.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Stream.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("MODEL_DIR"); v != "" {
		c.Forecast.ModelDir = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type == "" {
		return fmt.Errorf("backend.type is required")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if len(c.Stream.Symbols) == 0 {
		return fmt.Errorf("stream.symbols cannot be empty")
	}
	if c.Forecast.ModelDir == "" {
		return fmt.Errorf("forecast.model_dir is required")
	}
	if c.Forecast.SequenceLength <= 0 {
		return fmt.Errorf("forecast.sequence_length must be positive")
	}
	return nil
}

// ApplyDefaults fills unset forecast tunables with the reference values.
func (f *ForecastConfig) ApplyDefaults() {
	if f.SequenceLength == 0 {
		f.SequenceLength = 60
	}
	if f.LookbackCandles == 0 {
		f.LookbackCandles = 500
	}
	if f.MinRows == 0 {
		f.MinRows = 100
	}
	if f.MCSamples == 0 {
		f.MCSamples = 50
	}
	if f.NoiseStd == 0 {
		f.NoiseStd = 0.01
	}
	if f.CacheTTL == 0 {
		f.CacheTTL = 5 * time.Minute
	}
	if f.TrainLockTTL == 0 {
		f.TrainLockTTL = 30 * time.Minute
	}
	if f.Seed == 0 {
		f.Seed = 42
	}
	t := &f.Training
	if t.Epochs == 0 {
		t.Epochs = 100
	}
	if t.BatchSize == 0 {
		t.BatchSize = 32
	}
	if t.LearningRate == 0 {
		t.LearningRate = 0.001
	}
	if t.ValSplit == 0 {
		t.ValSplit = 0.2
	}
	if t.EarlyPatience == 0 {
		t.EarlyPatience = 15
	}
	if t.LRPatience == 0 {
		t.LRPatience = 7
	}
	if t.LRFactor == 0 {
		t.LRFactor = 0.5
	}
	if t.MinLR == 0 {
		t.MinLR = 1e-7
	}
	h := &f.Horizons
	if h.Weekly == (HorizonParams{}) {
		h.Weekly = HorizonParams{MomentumScale: 5, Floor: 65, Decrement: 5}
	}
	if h.Monthly == (HorizonParams{}) {
		h.Monthly = HorizonParams{MomentumScale: 20, Floor: 60, Decrement: 10}
	}
	if h.LongTerm == (HorizonParams{}) {
		h.LongTerm = HorizonParams{MomentumScale: 6, Floor: 55, Decrement: 20}
	}
	fb := &f.Fallback
	if fb.MomentumClamp == 0 {
		fb.MomentumClamp = 0.10
	}
	if fb.Multipliers.Intraday == 0 {
		fb.Multipliers.Intraday = 0.5
	}
	if fb.Multipliers.Weekly == 0 {
		fb.Multipliers.Weekly = 2.5
	}
	if fb.Multipliers.Monthly == 0 {
		fb.Multipliers.Monthly = 10
	}
	if fb.Multipliers.LongTerm == 0 {
		fb.Multipliers.LongTerm = 25
	}
	if fb.Confidences.Intraday == 0 {
		fb.Confidences.Intraday = 65
	}
	if fb.Confidences.Weekly == 0 {
		fb.Confidences.Weekly = 60
	}
	if fb.Confidences.Monthly == 0 {
		fb.Confidences.Monthly = 55
	}
	if fb.Confidences.LongTerm == 0 {
		fb.Confidences.LongTerm = 50
	}
}

// ForecastDefaults returns a ForecastConfig with every tunable at its
// reference value.
func ForecastDefaults() ForecastConfig {
	var f ForecastConfig
	f.ModelDir = "models"
	f.ApplyDefaults()
	return f
}
