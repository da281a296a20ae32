package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Logging     struct {
		Level      string `yaml:"level" default:"info"`
		Format     string `yaml:"format" default:"json"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format"`
	} `yaml:"logging"`
	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
		// CORSOrigins lists dashboard origins allowed to read the API. Empty disables CORS.
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Engine struct {
		Pairs            []string      `yaml:"pairs"`
		Timeframe        string        `yaml:"timeframe" default:"15m"`
		Bars             int           `yaml:"bars" default:"100"`
		Interval         time.Duration `yaml:"interval" default:"1m"`
		CallTimeout      time.Duration `yaml:"call_timeout" default:"10s"`
		RetryAttempts    int           `yaml:"retry_attempts" default:"3"`
		RetryBackoff     time.Duration `yaml:"retry_backoff" default:"1s"`
		MaxOpenTrades    int           `yaml:"max_open_trades" default:"5"`
		StopLossBuffer   float64       `yaml:"stop_loss_buffer" default:"0.15"`
		ShadowMode       bool          `yaml:"shadow_mode"`
		ThrottleInterval time.Duration `yaml:"throttle_interval" default:"12s"`
		CacheTTL         time.Duration `yaml:"cache_ttl" default:"60s"`
		LKGTTL           time.Duration `yaml:"lkg_ttl" default:"1h"`
		DayCheckInterval time.Duration `yaml:"day_check_interval" default:"1m"`
		Schedule         struct {
			OpenHour        int `yaml:"open_hour" default:"7"`
			CloseHour       int `yaml:"close_hour" default:"21"`
			FridayCloseHour int `yaml:"friday_close_hour" default:"18"`
		} `yaml:"schedule"`
		Checklist struct {
			MinPasses     int           `yaml:"min_checklist_passes" default:"2"`
			MaxDrawdown   float64       `yaml:"max_drawdown" default:"0.05"`
			MaxSpreadPips float64       `yaml:"max_spread_pips" default:"3"`
			NewsWindow    time.Duration `yaml:"news_window" default:"30m"`
		} `yaml:"checklist"`
	} `yaml:"engine"`

	Risk struct {
		RiskPercent         float64            `yaml:"risk_percent" default:"5"`
		MaxDailyTrades      int                `yaml:"max_daily_trades" default:"10"`
		MinBalance          float64            `yaml:"min_balance" default:"20"`
		MinPositionSize     float64            `yaml:"min_position_size" default:"0.01"`
		PairLossLimitPct    float64            `yaml:"pair_loss_limit_pct" default:"2"`
		DefaultStopLossPips float64            `yaml:"default_stop_loss_pips" default:"50"`
		StopLossPips        map[string]float64 `yaml:"stop_loss_pips" default:"{\"GBPJPY\":80,\"NZDUSD\":60,\"AUDCAD\":60,\"XAUUSD\":200}"`
		Timezone            string             `yaml:"timezone" default:"UTC"`
	} `yaml:"risk"`

	Strategies struct {
		Structure struct {
			Disabled bool `yaml:"disabled"`
		} `yaml:"structure"`
		BOSFib struct {
			Disabled bool `yaml:"disabled"`
		} `yaml:"bosfib"`
		Momentum struct {
			Disabled    bool `yaml:"disabled"`
			RequireMACD bool `yaml:"require_macd"`
		} `yaml:"momentum"`
	} `yaml:"strategies"`

	MarketData struct {
		Source          string        `yaml:"source" default:"bridge"`
		BaseURL         string        `yaml:"base_url"`
		APIKey          string        `yaml:"api_key"`
		AccountCurrency string        `yaml:"account_currency" default:"USD"`
		Timeout         time.Duration `yaml:"timeout" default:"10s"`
		RateTTL         time.Duration `yaml:"rate_ttl" default:"1h"`
	} `yaml:"market_data"`
	Broker struct {
		BaseURL string        `yaml:"base_url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"broker"`

	State struct {
		Backend string `yaml:"backend" default:"file"`
		Path    string `yaml:"path" default:"data/risk_state.json"`
		DSN     string `yaml:"dsn"`
		Account string `yaml:"account"`
	} `yaml:"state"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"fxengine"`
	} `yaml:"redis"`

	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Topics       struct {
			TradeEvents string `yaml:"trade_events" default:"fxengine.trade-events"`
			News        string `yaml:"news" default:"fxengine.news"`
			Logs        string `yaml:"logs" default:"fxengine.logs"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"fxengine"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"fxengine"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`

	Quotes struct {
		Enabled        bool          `yaml:"enabled"`
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		MaxAge         time.Duration `yaml:"max_age" default:"30s"`
		Workers        int           `yaml:"workers" default:"2"`
		MaxRPS         int           `yaml:"max_rps"`
	} `yaml:"quotes"`

	News struct {
		Enabled   bool          `yaml:"enabled"`
		Retention time.Duration `yaml:"retention" default:"24h"`
	} `yaml:"news"`

	Notify struct {
		Timeout  time.Duration `yaml:"timeout" default:"10s"`
		Queued   bool          `yaml:"queued"`
		Telegram struct {
			Token  string `yaml:"token"`
			ChatID string `yaml:"chat_id"`
		} `yaml:"telegram"`
		Discord struct {
			WebhookURL string `yaml:"webhook_url"`
			Title      string `yaml:"title" default:"FXEngine"`
		} `yaml:"discord"`
	} `yaml:"notify"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, fills unset fields with defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file next to the process is read first when present.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("FX_PAIRS"); v != "" {
		pairs := splitList(v)
		for i := range pairs {
			pairs[i] = strings.ToUpper(pairs[i])
		}
		c.Engine.Pairs = pairs
	}
	if v := os.Getenv("FX_STATE_BACKEND"); v != "" {
		c.State.Backend = v
	}
	if v := os.Getenv("FX_SHADOW_MODE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FX_SHADOW_MODE: %w", err)
		}
		c.Engine.ShadowMode = b
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Notify.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Notify.Telegram.ChatID = v
	}
	if v := os.Getenv("BROKER_API_KEY"); v != "" {
		c.Broker.APIKey = v
	}
	if v := os.Getenv("MARKET_DATA_API_KEY"); v != "" {
		c.MarketData.APIKey = v
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Engine.Pairs) == 0 {
		return fmt.Errorf("engine.pairs cannot be empty")
	}
	for _, p := range c.Engine.Pairs {
		if len(p) != 6 {
			return fmt.Errorf("engine.pairs: invalid pair %q", p)
		}
	}
	switch c.Engine.Timeframe {
	case "1m", "3m", "5m", "15m", "60m", "1d":
	default:
		return fmt.Errorf("engine.timeframe must be one of 1m,3m,5m,15m,60m,1d, got '%s'", c.Engine.Timeframe)
	}
	if c.Engine.Interval <= 0 {
		return fmt.Errorf("engine.interval must be positive")
	}
	if c.Engine.Schedule.OpenHour < 0 || c.Engine.Schedule.CloseHour > 24 || c.Engine.Schedule.OpenHour >= c.Engine.Schedule.CloseHour {
		return fmt.Errorf("engine.schedule: invalid trading hours %d-%d", c.Engine.Schedule.OpenHour, c.Engine.Schedule.CloseHour)
	}
	if c.Risk.RiskPercent <= 0 || c.Risk.RiskPercent > 100 {
		return fmt.Errorf("risk.risk_percent must be in (0, 100]")
	}
	if _, err := time.LoadLocation(c.Risk.Timezone); err != nil {
		return fmt.Errorf("risk.timezone: %w", err)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'console', got '%s'", c.Logging.Format)
	}

	switch c.MarketData.Source {
	case "bridge":
		if c.MarketData.BaseURL == "" {
			return fmt.Errorf("market_data.base_url is required")
		}
	case "clickhouse":
		if !c.ClickHouse.Enabled {
			return fmt.Errorf("market_data.source 'clickhouse' requires clickhouse.enabled")
		}
	default:
		return fmt.Errorf("market_data.source must be 'bridge' or 'clickhouse', got '%s'", c.MarketData.Source)
	}
	if c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required")
	}

	switch c.State.Backend {
	case "file":
		if c.State.Path == "" {
			return fmt.Errorf("state.path is required for the file backend")
		}
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("state.backend 'redis' requires redis.enabled")
		}
	case "sqlite", "postgres":
		if c.State.DSN == "" {
			return fmt.Errorf("state.dsn is required for the %s backend", c.State.Backend)
		}
	default:
		return fmt.Errorf("state.backend must be one of file,redis,sqlite,postgres, got '%s'", c.State.Backend)
	}

	if (c.Kafka.Enabled || c.News.Enabled) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	if c.News.Enabled && !c.Kafka.Enabled {
		return fmt.Errorf("news.enabled requires kafka.enabled")
	}
	if c.Quotes.Enabled && c.Quotes.WebSocketURL == "" {
		return fmt.Errorf("quotes.websocket_url is required")
	}
	if c.Notify.Queued && !c.Redis.Enabled {
		return fmt.Errorf("notify.queued requires redis.enabled")
	}
	if (c.Notify.Telegram.Token == "") != (c.Notify.Telegram.ChatID == "") {
		return fmt.Errorf("notify.telegram needs both token and chat_id")
	}
	return nil
}

// Location returns the trading-day timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Risk.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
