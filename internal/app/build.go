package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/chart"
	"github.com/rustyeddy/backtester/config"
	"github.com/rustyeddy/backtester/feed"
	"github.com/rustyeddy/backtester/journal"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/notify"
	"github.com/rustyeddy/backtester/report"
	"github.com/rustyeddy/backtester/signal"
	"github.com/rustyeddy/backtester/sim"
)

// Options converts the run section of cfg into driver options.
func Options(cfg config.Config) (backtest.Options, error) {
	start, end, err := cfg.Dates()
	if err != nil {
		return backtest.Options{}, err
	}
	fine, err := market.ParseTimeframe(cfg.Window.FineTF)
	if err != nil {
		return backtest.Options{}, fmt.Errorf("window.fine_tf: %w", err)
	}
	coarse, err := market.ParseTimeframe(cfg.Window.CoarseTF)
	if err != nil {
		return backtest.Options{}, fmt.Errorf("window.coarse_tf: %w", err)
	}

	pair := market.NormalizePair(cfg.Pair)
	opts := backtest.DefaultOptions()
	opts.Symbol = pair
	opts.Start = start
	// The end date is inclusive.
	opts.End = end.AddDate(0, 0, 1).Add(-time.Second)
	opts.HistoryBuffer = time.Duration(cfg.Data.BufferDays) * 24 * time.Hour
	opts.FineTF = fine
	opts.CoarseTF = coarse
	opts.FineWindow = cfg.Window.FineWindow
	opts.CoarseWindow = cfg.Window.CoarseWindow
	opts.FineChart = cfg.Window.FineChart
	opts.CoarseChart = cfg.Window.CoarseChart
	opts.SkipCandles = cfg.Window.SkipCandles
	opts.DecideWhileArmed = cfg.Trade.DecideWhileArmed
	opts.CloseAtEnd = cfg.Trade.CloseAtEnd
	opts.InitialBalance = cfg.Trade.InitialBalance
	opts.LotSize = cfg.Trade.LotSize
	opts.Spread = market.SpreadPrice(pair, cfg.Trade.SpreadPoints)
	opts.Rules = sim.Rules{
		OrderExpiry:  time.Duration(cfg.Trade.OrderExpiryMinutes) * time.Minute,
		TimeLimit:    time.Duration(cfg.Trade.TimeLimitMinutes) * time.Minute,
		ContractSize: cfg.Trade.ContractSize,
	}
	return opts, nil
}

// closers collects resources opened while building collaborators.
type closers []func() error

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		_ = c[i]()
	}
}

// NewFeed builds the configured candle feed, wrapped in a cache when one is
// configured. Redis wins over the file cache.
func NewFeed(ctx context.Context, cfg config.Config, log zerolog.Logger) (backtest.CandleFeed, func() error, error) {
	d := cfg.Data
	timeout := time.Duration(d.TimeoutSec) * time.Second
	noop := func() error { return nil }

	var src backtest.CandleFeed
	switch d.Source {
	case "api":
		src = feed.NewAPI(d.APIURL, timeout)
	case "csv":
		// Local files need no cache.
		return feed.CSV{Dir: d.CSVDir}, noop, nil
	case "oanda":
		base, err := feed.OANDABaseURL(d.OANDAEnv)
		if err != nil {
			return nil, noop, err
		}
		src = &feed.OANDA{BaseURL: base, Token: d.OANDAToken}
	default:
		return nil, noop, fmt.Errorf("unknown data source %q", d.Source)
	}

	if d.Redis.Addr != "" {
		rc, err := feed.NewRedisCache(ctx, feed.RedisConfig{
			Addr:       d.Redis.Addr,
			Password:   d.Redis.Password,
			DB:         d.Redis.DB,
			TLSEnabled: d.Redis.TLSEnabled,
			Prefix:     d.Redis.Prefix,
			TTL:        time.Duration(d.Redis.TTLHours) * time.Hour,
		})
		if err != nil {
			return nil, noop, err
		}
		return feed.NewCached(src, rc, log), rc.Close, nil
	}
	if d.CacheDir != "" {
		return feed.NewCached(src, feed.FileCache{Dir: d.CacheDir}, log), noop, nil
	}
	return src, noop, nil
}

// NewSignals builds the configured decision source.
func NewSignals(cfg config.Config, log zerolog.Logger) (backtest.SignalSource, error) {
	s := cfg.Signal
	switch s.Source {
	case "llm":
		prompt, err := os.ReadFile(cfg.PromptPath())
		if err != nil {
			return nil, fmt.Errorf("read prompt: %w", err)
		}
		var extractorPrompt string
		if p := cfg.ExtractorPromptPath(); p != "" {
			b, err := os.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("read extractor prompt: %w", err)
			}
			extractorPrompt = string(b)
		}
		timeout := time.Duration(s.TimeoutSec) * time.Second

		var analyst, extractor signal.Model
		switch s.Provider {
		case "gemini":
			analyst = signal.NewGeminiClient(s.GeminiURL, s.AnalystModel, s.GeminiKey, timeout)
			if s.ExtractorModel != "" {
				extractor = signal.NewGeminiClient(s.GeminiURL, s.ExtractorModel, s.GeminiKey, timeout)
			}
		case "ollama":
			analyst = signal.NewOllamaClient(s.OllamaURL, s.AnalystModel, timeout)
			if s.ExtractorModel != "" {
				extractor = signal.NewOllamaClient(s.OllamaURL, s.ExtractorModel, timeout)
			}
		default:
			return nil, fmt.Errorf("unknown signal provider %q", s.Provider)
		}
		return signal.NewLLMSource(analyst, extractor, string(prompt), extractorPrompt, log), nil

	case "ema-cross":
		e := signal.NewEMACross(s.EMA.Fast, s.EMA.Slow, s.EMA.StopPips, s.EMA.RR)
		e.PullbackPips = s.EMA.PullbackPips
		e.MinADX = s.EMA.MinADX
		e.ATRMult = s.EMA.ATRMult
		e.TrendMA = s.EMA.TrendMA
		return e, nil

	case "replay":
		return signal.LoadReplay(s.ReplayLog)
	}
	return nil, fmt.Errorf("unknown signal source %q", s.Source)
}

// NewCharts builds the chart renderer. Charts only feed the language model,
// so other sources and a disabled chart section get none.
func NewCharts(cfg config.Config, log zerolog.Logger) (backtest.ChartRenderer, error) {
	if !cfg.Chart.Enabled || cfg.Signal.Source != "llm" {
		return nil, nil
	}
	keys, err := chart.NewKeyRing(cfg.Chart.Keys, cfg.Chart.StateFile)
	if err != nil {
		return nil, err
	}
	r := chart.NewRenderer(cfg.Chart.Dir, keys, log)
	if cfg.Chart.URL != "" {
		r.URL = cfg.Chart.URL
	}
	return r, nil
}

// NewJournal opens the configured run journal; "none" yields nil.
func NewJournal(ctx context.Context, cfg config.JournalConfig) (journal.Journal, error) {
	var (
		j   journal.Journal
		err error
	)
	switch cfg.Type {
	case "sqlite":
		j, err = journal.NewSQLite(cfg.DBPath)
	case "csv":
		j, err = journal.NewCSV(cfg.RunsFile, cfg.TradesFile)
	case "postgres":
		j, err = journal.NewPostgres(ctx, cfg.PostgresDSN, cfg.MaxConns)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

// NewSenders returns the transports configured in cfg.
func NewSenders(cfg config.NotifyConfig, log zerolog.Logger) []notify.Sender {
	var out []notify.Sender
	if cfg.Log {
		out = append(out, notify.NewLog(log))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		out = append(out, notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhook != "" {
		out = append(out, notify.NewDiscord(cfg.DiscordWebhook))
	}
	return out
}

// NewNotifier builds a notifier at the configured level with every
// configured transport plus extra.
func NewNotifier(cfg config.NotifyConfig, log zerolog.Logger, extra ...notify.Sender) *notify.Notifier {
	senders := append(NewSenders(cfg, log), extra...)
	return notify.NewNotifier(senders, sim.Level(cfg.Level), notify.NewFormatter(cfg.Lang), log)
}

// NewUploader returns the S3 uploader when enabled.
func NewUploader(ctx context.Context, cfg config.S3Config) (Uploader, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	u, err := report.NewS3Uploader(ctx, report.S3Config{
		Endpoint:       cfg.Endpoint,
		Region:         cfg.Region,
		Bucket:         cfg.Bucket,
		Prefix:         cfg.Prefix,
		AccessKey:      cfg.AccessKey,
		SecretKey:      cfg.SecretKey,
		ForcePathStyle: cfg.ForcePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func sourceName(cfg config.Config) string {
	if cfg.Signal.Source == "llm" {
		return "llm:" + strings.ToLower(cfg.Signal.Provider)
	}
	return cfg.Signal.Source
}
