package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/backtester/market"
)

// DateLayout is the layout of start_date and end_date.
const DateLayout = "2006-01-02"

// Config is everything one backtest run needs. A run works on its own copy;
// the server edits a draft and snapshots it when a run starts.
type Config struct {
	Pair                string `json:"pair" yaml:"pair" toml:"pair"`
	PromptFile          string `json:"prompt_file" yaml:"prompt_file" toml:"prompt_file"`
	PromptsDir          string `json:"prompts_dir" yaml:"prompts_dir" toml:"prompts_dir"`
	ExtractorPromptFile string `json:"extractor_prompt_file,omitempty" yaml:"extractor_prompt_file,omitempty" toml:"extractor_prompt_file,omitempty"`
	StartDate           string `json:"start_date" yaml:"start_date" toml:"start_date"`
	EndDate             string `json:"end_date" yaml:"end_date" toml:"end_date"`
	Timezone            string `json:"timezone" yaml:"timezone" toml:"timezone"`

	Trade   TradeConfig   `json:"trade" yaml:"trade" toml:"trade"`
	Window  WindowConfig  `json:"window" yaml:"window" toml:"window"`
	Data    DataConfig    `json:"data" yaml:"data" toml:"data"`
	Signal  SignalConfig  `json:"signal" yaml:"signal" toml:"signal"`
	Chart   ChartConfig   `json:"chart" yaml:"chart" toml:"chart"`
	Notify  NotifyConfig  `json:"notify" yaml:"notify" toml:"notify"`
	Reports ReportsConfig `json:"reports" yaml:"reports" toml:"reports"`
	S3      S3Config      `json:"s3" yaml:"s3" toml:"s3"`
	Journal JournalConfig `json:"journal" yaml:"journal" toml:"journal"`
	Server  ServerConfig  `json:"server" yaml:"server" toml:"server"`
	Log     LogConfig     `json:"log" yaml:"log" toml:"log"`
}

// TradeConfig holds the account and settlement rules.
type TradeConfig struct {
	InitialBalance     float64 `json:"initial_balance" yaml:"initial_balance" toml:"initial_balance"`
	LotSize            float64 `json:"lot_size" yaml:"lot_size" toml:"lot_size"`
	ContractSize       float64 `json:"contract_size" yaml:"contract_size" toml:"contract_size"`
	SpreadPoints       float64 `json:"spread_points" yaml:"spread_points" toml:"spread_points"` // tenths of a pip
	OrderExpiryMinutes int     `json:"order_expiry_minutes" yaml:"order_expiry_minutes" toml:"order_expiry_minutes"`
	TimeLimitMinutes   int     `json:"time_limit_minutes" yaml:"time_limit_minutes" toml:"time_limit_minutes"`
	CloseAtEnd         bool    `json:"close_at_end" yaml:"close_at_end" toml:"close_at_end"`
	DecideWhileArmed   bool    `json:"decide_while_armed" yaml:"decide_while_armed" toml:"decide_while_armed"`
}

// WindowConfig sizes the decision and chart windows.
type WindowConfig struct {
	FineTF       string `json:"fine_tf" yaml:"fine_tf" toml:"fine_tf"`
	CoarseTF     string `json:"coarse_tf" yaml:"coarse_tf" toml:"coarse_tf"`
	FineWindow   int    `json:"fine_window" yaml:"fine_window" toml:"fine_window"`
	CoarseWindow int    `json:"coarse_window" yaml:"coarse_window" toml:"coarse_window"`
	FineChart    int    `json:"fine_chart" yaml:"fine_chart" toml:"fine_chart"`
	CoarseChart  int    `json:"coarse_chart" yaml:"coarse_chart" toml:"coarse_chart"`
	SkipCandles  int    `json:"skip_candles" yaml:"skip_candles" toml:"skip_candles"`
}

// DataConfig selects the candle feed and its cache.
type DataConfig struct {
	Source     string      `json:"source" yaml:"source" toml:"source"` // api, csv or oanda
	APIURL     string      `json:"api_url,omitempty" yaml:"api_url,omitempty" toml:"api_url,omitempty"`
	CSVDir     string      `json:"csv_dir,omitempty" yaml:"csv_dir,omitempty" toml:"csv_dir,omitempty"`
	OANDAEnv   string      `json:"oanda_env,omitempty" yaml:"oanda_env,omitempty" toml:"oanda_env,omitempty"`
	OANDAToken string      `json:"oanda_token,omitempty" yaml:"oanda_token,omitempty" toml:"oanda_token,omitempty"`
	BufferDays int         `json:"buffer_days" yaml:"buffer_days" toml:"buffer_days"`
	TimeoutSec int         `json:"timeout_sec" yaml:"timeout_sec" toml:"timeout_sec"`
	CacheDir   string      `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty" toml:"cache_dir,omitempty"`
	Redis      RedisConfig `json:"redis" yaml:"redis" toml:"redis"`
}

// RedisConfig enables the shared candle cache when Addr is set.
type RedisConfig struct {
	Addr       string `json:"addr,omitempty" yaml:"addr,omitempty" toml:"addr,omitempty"`
	Password   string `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`
	DB         int    `json:"db" yaml:"db" toml:"db"`
	TLSEnabled bool   `json:"tls_enabled" yaml:"tls_enabled" toml:"tls_enabled"`
	Prefix     string `json:"prefix,omitempty" yaml:"prefix,omitempty" toml:"prefix,omitempty"`
	TTLHours   int    `json:"ttl_hours" yaml:"ttl_hours" toml:"ttl_hours"`
}

// SignalConfig selects the decision source.
type SignalConfig struct {
	Source         string    `json:"source" yaml:"source" toml:"source"`     // llm, ema-cross or replay
	Provider       string    `json:"provider" yaml:"provider" toml:"provider"` // gemini or ollama
	GeminiURL      string    `json:"gemini_url,omitempty" yaml:"gemini_url,omitempty" toml:"gemini_url,omitempty"`
	GeminiKey      string    `json:"gemini_key,omitempty" yaml:"gemini_key,omitempty" toml:"gemini_key,omitempty"`
	OllamaURL      string    `json:"ollama_url,omitempty" yaml:"ollama_url,omitempty" toml:"ollama_url,omitempty"`
	AnalystModel   string    `json:"analyst_model" yaml:"analyst_model" toml:"analyst_model"`
	ExtractorModel string    `json:"extractor_model" yaml:"extractor_model" toml:"extractor_model"`
	TimeoutSec     int       `json:"timeout_sec" yaml:"timeout_sec" toml:"timeout_sec"`
	EMA            EMAConfig `json:"ema" yaml:"ema" toml:"ema"`
	ReplayLog      string    `json:"replay_log,omitempty" yaml:"replay_log,omitempty" toml:"replay_log,omitempty"`
}

type EMAConfig struct {
	Fast         int     `json:"fast" yaml:"fast" toml:"fast"`
	Slow         int     `json:"slow" yaml:"slow" toml:"slow"`
	StopPips     float64 `json:"stop_pips" yaml:"stop_pips" toml:"stop_pips"`
	RR           float64 `json:"rr" yaml:"rr" toml:"rr"`
	PullbackPips float64 `json:"pullback_pips" yaml:"pullback_pips" toml:"pullback_pips"`
	MinADX       float64 `json:"min_adx" yaml:"min_adx" toml:"min_adx"`
	ATRMult      float64 `json:"atr_mult" yaml:"atr_mult" toml:"atr_mult"`
	TrendMA      int     `json:"trend_ma" yaml:"trend_ma" toml:"trend_ma"`
}

// ChartConfig controls chart-img.com rendering. Keys come from the
// environment (CHART_IMG_KEY_*), never from the file.
type ChartConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	URL       string   `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty"`
	Dir       string   `json:"dir" yaml:"dir" toml:"dir"`
	StateFile string   `json:"state_file" yaml:"state_file" toml:"state_file"`
	Keys      []string `json:"-" yaml:"-" toml:"-"`
}

type NotifyConfig struct {
	Level          int    `json:"level" yaml:"level" toml:"level"`
	Lang           string `json:"lang" yaml:"lang" toml:"lang"`
	Log            bool   `json:"log" yaml:"log" toml:"log"`
	TelegramToken  string `json:"telegram_token,omitempty" yaml:"telegram_token,omitempty" toml:"telegram_token,omitempty"`
	TelegramChatID string `json:"telegram_chat_id,omitempty" yaml:"telegram_chat_id,omitempty" toml:"telegram_chat_id,omitempty"`
	DiscordWebhook string `json:"discord_webhook,omitempty" yaml:"discord_webhook,omitempty" toml:"discord_webhook,omitempty"`
}

type ReportsConfig struct {
	ReportsDir string `json:"reports_dir" yaml:"reports_dir" toml:"reports_dir"`
	LogsDir    string `json:"logs_dir" yaml:"logs_dir" toml:"logs_dir"`
	Org        bool   `json:"org" yaml:"org" toml:"org"`
}

// S3Config copies written reports to a bucket when Enabled.
type S3Config struct {
	Enabled        bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Endpoint       string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" toml:"endpoint,omitempty"`
	Region         string `json:"region,omitempty" yaml:"region,omitempty" toml:"region,omitempty"`
	Bucket         string `json:"bucket,omitempty" yaml:"bucket,omitempty" toml:"bucket,omitempty"`
	Prefix         string `json:"prefix,omitempty" yaml:"prefix,omitempty" toml:"prefix,omitempty"`
	AccessKey      string `json:"access_key,omitempty" yaml:"access_key,omitempty" toml:"access_key,omitempty"`
	SecretKey      string `json:"secret_key,omitempty" yaml:"secret_key,omitempty" toml:"secret_key,omitempty"`
	ForcePathStyle bool   `json:"force_path_style" yaml:"force_path_style" toml:"force_path_style"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type        string `json:"type" yaml:"type" toml:"type"` // sqlite, csv, postgres or none
	DBPath      string `json:"db_path,omitempty" yaml:"db_path,omitempty" toml:"db_path,omitempty"`
	RunsFile    string `json:"runs_file,omitempty" yaml:"runs_file,omitempty" toml:"runs_file,omitempty"`
	TradesFile  string `json:"trades_file,omitempty" yaml:"trades_file,omitempty" toml:"trades_file,omitempty"`
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty" toml:"postgres_dsn,omitempty"`
	MaxConns    int    `json:"max_conns" yaml:"max_conns" toml:"max_conns"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty" toml:"pretty"`
}

// Default returns a configuration with sensible defaults
func Default() Config {
	return Config{
		Pair:       "EUR_USD",
		PromptFile: "default_prompt.txt",
		PromptsDir: "prompts",
		StartDate:  "2025-07-01",
		EndDate:    "2025-07-07",
		Timezone:   "Asia/Jakarta",
		Trade: TradeConfig{
			InitialBalance:     10_000,
			LotSize:            0.1,
			ContractSize:       100_000,
			SpreadPoints:       0,
			OrderExpiryMinutes: 45,
			TimeLimitMinutes:   240,
		},
		Window: WindowConfig{
			FineTF:       "M1",
			CoarseTF:     "M15",
			FineWindow:   120,
			CoarseWindow: 96,
			FineChart:    60,
			CoarseChart:  48,
			SkipCandles:  90,
		},
		Data: DataConfig{
			Source:     "api",
			APIURL:     "http://localhost:8000/candles",
			CSVDir:     "data",
			OANDAEnv:   "practice",
			BufferDays: 3,
			TimeoutSec: 60,
			CacheDir:   "cache",
			Redis:      RedisConfig{Prefix: "candles:", TTLHours: 24 * 7},
		},
		Signal: SignalConfig{
			Source:         "llm",
			Provider:       "gemini",
			AnalystModel:   "gemini-2.5-pro",
			ExtractorModel: "gemini-2.5-flash",
			TimeoutSec:     300,
			EMA:            EMAConfig{Fast: 9, Slow: 21, StopPips: 10, RR: 2, MinADX: 0},
		},
		Chart: ChartConfig{
			Enabled:   true,
			Dir:       "charts",
			StateFile: "state/chart_keys.json",
		},
		Notify: NotifyConfig{Level: 1, Lang: "en", Log: true},
		Reports: ReportsConfig{
			ReportsDir: "reports",
			LogsDir:    "logs",
		},
		S3: S3Config{Region: "us-east-1"},
		Journal: JournalConfig{
			Type:       "sqlite",
			DBPath:     "backtester.db",
			RunsFile:   "runs.csv",
			TradesFile: "trades.csv",
			MaxConns:   4,
		},
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info"},
	}
}

// Decode merges data in the named format ("yaml", "json" or "toml") over c.
func (c *Config) Decode(format string, data []byte) error {
	var err error
	switch format {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, c)
	case "json":
		err = json.Unmarshal(data, c)
	case "toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config format %q", format)
	}
	if err != nil {
		return fmt.Errorf("parse %s config: %w", format, err)
	}
	return nil
}

// Encode renders c in the named format.
func (c Config) Encode(format string) ([]byte, error) {
	switch format {
	case "yaml", "yml":
		return yaml.Marshal(c)
	case "json":
		return json.MarshalIndent(c, "", "  ")
	case "toml":
		var b strings.Builder
		if err := toml.NewEncoder(&b).Encode(c); err != nil {
			return nil, err
		}
		return []byte(b.String()), nil
	}
	return nil, fmt.Errorf("unsupported config format %q", format)
}

// FormatOf maps a file extension to a format name, defaulting to yaml.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	}
	return "yaml"
}

// SaveToFile saves configuration to a file (JSON, YAML or TOML based on extension)
func (c Config) SaveToFile(path string) error {
	data, err := c.Encode(FormatOf(path))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if strings.TrimSpace(c.Pair) == "" {
		return fmt.Errorf("pair is required")
	}
	if _, ok := market.LookupInstrument(c.Pair); !ok {
		return fmt.Errorf("pair: unknown instrument %q", c.Pair)
	}
	if c.Signal.Source == "llm" && strings.TrimSpace(c.PromptFile) == "" {
		return fmt.Errorf("prompt_file is required for the llm signal source")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	start, end, err := c.Dates()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("end_date (%s) must not be before start_date (%s)", c.EndDate, c.StartDate)
	}

	t := c.Trade
	if t.InitialBalance <= 0 {
		return fmt.Errorf("trade.initial_balance must be positive")
	}
	if t.LotSize <= 0 {
		return fmt.Errorf("trade.lot_size must be positive")
	}
	if t.ContractSize <= 0 {
		return fmt.Errorf("trade.contract_size must be positive")
	}
	if t.SpreadPoints < 0 {
		return fmt.Errorf("trade.spread_points must be >= 0")
	}
	if t.OrderExpiryMinutes <= 0 {
		return fmt.Errorf("trade.order_expiry_minutes must be positive")
	}
	if t.TimeLimitMinutes <= 0 {
		return fmt.Errorf("trade.time_limit_minutes must be positive")
	}

	w := c.Window
	fine, err := market.ParseTimeframe(w.FineTF)
	if err != nil {
		return fmt.Errorf("window.fine_tf: %w", err)
	}
	coarse, err := market.ParseTimeframe(w.CoarseTF)
	if err != nil {
		return fmt.Errorf("window.coarse_tf: %w", err)
	}
	if coarse < fine {
		return fmt.Errorf("window.coarse_tf (%s) must not be finer than window.fine_tf (%s)", w.CoarseTF, w.FineTF)
	}
	if w.FineWindow <= 0 || w.CoarseWindow <= 0 {
		return fmt.Errorf("window.fine_window and window.coarse_window must be positive")
	}
	if w.FineChart < 0 || w.CoarseChart < 0 {
		return fmt.Errorf("window.fine_chart and window.coarse_chart must be >= 0")
	}
	if w.SkipCandles <= 0 {
		return fmt.Errorf("window.skip_candles must be positive")
	}

	switch c.Data.Source {
	case "api":
		if c.Data.APIURL == "" {
			return fmt.Errorf("data.api_url is required for the api source")
		}
	case "csv":
		if c.Data.CSVDir == "" {
			return fmt.Errorf("data.csv_dir is required for the csv source")
		}
	case "oanda":
		if c.Data.OANDAToken == "" {
			return fmt.Errorf("data.oanda_token is required for the oanda source")
		}
	default:
		return fmt.Errorf("data.source must be 'api', 'csv' or 'oanda'")
	}
	if c.Data.BufferDays < 0 {
		return fmt.Errorf("data.buffer_days must be >= 0")
	}

	switch c.Signal.Source {
	case "llm":
		switch c.Signal.Provider {
		case "gemini":
			if c.Signal.GeminiKey == "" {
				return fmt.Errorf("signal.gemini_key is required for the gemini provider")
			}
		case "ollama":
		default:
			return fmt.Errorf("signal.provider must be 'gemini' or 'ollama'")
		}
		if c.Signal.AnalystModel == "" {
			return fmt.Errorf("signal.analyst_model is required")
		}
	case "ema-cross":
		e := c.Signal.EMA
		if e.Fast <= 0 || e.Slow <= e.Fast {
			return fmt.Errorf("signal.ema: need 0 < fast < slow")
		}
		if e.StopPips <= 0 {
			return fmt.Errorf("signal.ema.stop_pips must be positive")
		}
		if e.ATRMult < 0 || e.TrendMA < 0 {
			return fmt.Errorf("signal.ema: atr_mult and trend_ma must not be negative")
		}
	case "replay":
		if c.Signal.ReplayLog == "" {
			return fmt.Errorf("signal.replay_log is required for the replay source")
		}
	default:
		return fmt.Errorf("signal.source must be 'llm', 'ema-cross' or 'replay'")
	}

	if c.Chart.Enabled && c.Chart.Dir == "" {
		return fmt.Errorf("chart.dir is required when charts are enabled")
	}
	if c.Notify.Level < 0 || c.Notify.Level > 3 {
		return fmt.Errorf("notify.level must be between 0 and 3")
	}
	if c.Reports.ReportsDir == "" || c.Reports.LogsDir == "" {
		return fmt.Errorf("reports.reports_dir and reports.logs_dir are required")
	}
	if c.S3.Enabled && (c.S3.Bucket == "" || c.S3.Region == "") {
		return fmt.Errorf("s3.bucket and s3.region are required when s3 is enabled")
	}

	switch c.Journal.Type {
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "csv":
		if c.Journal.RunsFile == "" || c.Journal.TradesFile == "" {
			return fmt.Errorf("journal runs_file and trades_file required for CSV type")
		}
	case "postgres":
		if c.Journal.PostgresDSN == "" {
			return fmt.Errorf("journal postgres_dsn required for Postgres type")
		}
	case "none", "":
	default:
		return fmt.Errorf("journal.type must be 'sqlite', 'csv', 'postgres' or 'none'")
	}
	return nil
}

// Location loads the run timezone, UTC when unset.
func (c Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Dates parses start_date and end_date as calendar days in the run timezone.
func (c Config) Dates() (start, end time.Time, err error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("timezone: %w", err)
	}
	start, err = time.ParseInLocation(DateLayout, strings.TrimSpace(c.StartDate), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date: want YYYY-MM-DD, got %q", c.StartDate)
	}
	end, err = time.ParseInLocation(DateLayout, strings.TrimSpace(c.EndDate), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date: want YYYY-MM-DD, got %q", c.EndDate)
	}
	return start, end, nil
}

// PromptPath resolves prompt_file against prompts_dir.
func (c Config) PromptPath() string {
	if filepath.IsAbs(c.PromptFile) || c.PromptsDir == "" {
		return c.PromptFile
	}
	return filepath.Join(c.PromptsDir, c.PromptFile)
}

// ExtractorPromptPath is extractor_prompt_file, or extractor_prompt.txt in
// prompts_dir when that file exists.
func (c Config) ExtractorPromptPath() string {
	if c.ExtractorPromptFile != "" {
		if filepath.IsAbs(c.ExtractorPromptFile) || c.PromptsDir == "" {
			return c.ExtractorPromptFile
		}
		return filepath.Join(c.PromptsDir, c.ExtractorPromptFile)
	}
	p := filepath.Join(c.PromptsDir, "extractor_prompt.txt")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}
