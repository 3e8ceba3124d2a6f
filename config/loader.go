package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/rustyeddy/backtester/chart"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BACKTESTER_"

// Load reads the file at path (format chosen by extension) over Default,
// loads a .env file if one exists and applies BACKTESTER_* overrides. An
// empty path skips the file. The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.Decode(FormatOf(path), data); err != nil {
			return Config{}, err
		}
	}

	_ = godotenv.Load()

	ApplyEnv(&cfg, os.Getenv)
	cfg.Chart.Keys = chart.KeysFromEnv(os.Environ())
	return cfg, nil
}

// ApplyEnv overwrites fields whose variable is set. Secrets are expected to
// arrive this way rather than through the file.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	e := envReader{getenv: getenv}

	e.str(&cfg.Pair, "PAIR")
	e.str(&cfg.PromptFile, "PROMPT_FILE")
	e.str(&cfg.PromptsDir, "PROMPTS_DIR")
	e.str(&cfg.StartDate, "START_DATE")
	e.str(&cfg.EndDate, "END_DATE")
	e.str(&cfg.Timezone, "TIMEZONE")

	e.str(&cfg.Data.Source, "DATA_SOURCE")
	e.str(&cfg.Data.APIURL, "DATA_API_URL")
	e.str(&cfg.Data.OANDAToken, "OANDA_TOKEN")
	e.str(&cfg.Data.OANDAEnv, "OANDA_ENV")
	e.str(&cfg.Data.Redis.Addr, "REDIS_ADDR")
	e.str(&cfg.Data.Redis.Password, "REDIS_PASSWORD")
	e.int(&cfg.Data.Redis.DB, "REDIS_DB")
	e.bool(&cfg.Data.Redis.TLSEnabled, "REDIS_TLS_ENABLED")

	e.str(&cfg.Signal.Source, "SIGNAL_SOURCE")
	e.str(&cfg.Signal.Provider, "SIGNAL_PROVIDER")
	e.str(&cfg.Signal.GeminiKey, "GEMINI_API_KEY")
	e.str(&cfg.Signal.OllamaURL, "OLLAMA_URL")

	e.str(&cfg.Notify.TelegramToken, "TELEGRAM_TOKEN")
	e.str(&cfg.Notify.TelegramChatID, "TELEGRAM_CHAT_ID")
	e.str(&cfg.Notify.DiscordWebhook, "DISCORD_WEBHOOK")
	e.int(&cfg.Notify.Level, "NOTIFY_LEVEL")

	e.bool(&cfg.S3.Enabled, "S3_ENABLED")
	e.str(&cfg.S3.Endpoint, "S3_ENDPOINT")
	e.str(&cfg.S3.Region, "S3_REGION")
	e.str(&cfg.S3.Bucket, "S3_BUCKET")
	e.str(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	e.str(&cfg.S3.SecretKey, "S3_SECRET_KEY")

	e.str(&cfg.Journal.Type, "JOURNAL_TYPE")
	e.str(&cfg.Journal.PostgresDSN, "POSTGRES_DSN")

	e.str(&cfg.Server.Addr, "SERVER_ADDR")
	e.str(&cfg.Log.Level, "LOG_LEVEL")
}

type envReader struct {
	getenv func(string) string
}

func (e envReader) get(name string) (string, bool) {
	v := strings.TrimSpace(e.getenv(EnvPrefix + name))
	return v, v != ""
}

func (e envReader) str(dst *string, name string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e envReader) int(dst *int, name string) {
	if v, ok := e.get(name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (e envReader) bool(dst *bool, name string) {
	if v, ok := e.get(name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// Redacted returns a copy of c safe to print or serve.
func (c Config) Redacted() Config {
	out := c
	redact(&out.Data.OANDAToken)
	redact(&out.Data.Redis.Password)
	redact(&out.Signal.GeminiKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhook)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Journal.PostgresDSN)
	out.Chart.Keys = nil
	return out
}

// MergeSecrets copies secrets from c into draft wherever draft still holds
// the redaction placeholder, so a redacted config can be edited and sent back.
func (c Config) MergeSecrets(draft Config) Config {
	keep := func(dst *string, src string) {
		if *dst == redacted {
			*dst = src
		}
	}
	keep(&draft.Data.OANDAToken, c.Data.OANDAToken)
	keep(&draft.Data.Redis.Password, c.Data.Redis.Password)
	keep(&draft.Signal.GeminiKey, c.Signal.GeminiKey)
	keep(&draft.Notify.TelegramToken, c.Notify.TelegramToken)
	keep(&draft.Notify.DiscordWebhook, c.Notify.DiscordWebhook)
	keep(&draft.S3.AccessKey, c.S3.AccessKey)
	keep(&draft.S3.SecretKey, c.S3.SecretKey)
	keep(&draft.Journal.PostgresDSN, c.Journal.PostgresDSN)
	draft.Chart.Keys = c.Chart.Keys
	return draft
}
