package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/market"
)

// LLMSource asks an analyst model for a narrative decision on the window
// and a second, cheaper model to compress it into a parseable line.
type LLMSource struct {
	Analyst   Model
	Extractor Model

	Prompt          string
	ExtractorPrompt string

	Log zerolog.Logger
}

func NewLLMSource(analyst, extractor Model, prompt, extractorPrompt string, log zerolog.Logger) *LLMSource {
	if extractor == nil {
		extractor = analyst
	}
	if strings.TrimSpace(extractorPrompt) == "" {
		extractorPrompt = DefaultExtractorPrompt()
	}
	return &LLMSource{
		Analyst:         analyst,
		Extractor:       extractor,
		Prompt:          prompt,
		ExtractorPrompt: extractorPrompt,
		Log:             log.With().Str("component", "llm").Logger(),
	}
}

func (s *LLMSource) PromptPreview() string { return preview(s.Prompt, PreviewLimit) }

// Decide runs both stages. A failed or empty analysis is an error; a failed
// or unparseable extraction is a no-trade with the narrative kept as Raw.
func (s *LLMSource) Decide(ctx context.Context, w backtest.Window) (backtest.Decision, error) {
	if s.Analyst == nil {
		return backtest.Decision{}, errors.New("llm: analyst model is required")
	}

	p, err := s.analysisPrompt(w)
	if err != nil {
		return backtest.Decision{}, err
	}

	narrative, err := s.Analyst.Generate(ctx, p)
	if err != nil {
		return backtest.Decision{}, fmt.Errorf("llm analysis: %w", err)
	}
	narrative = strings.TrimSpace(narrative)
	if narrative == "" {
		return backtest.Decision{}, errors.New("llm analysis: empty response")
	}

	noTrade := backtest.Decision{Kind: backtest.NoTrade, Raw: narrative}

	extracted, err := s.Extractor.Generate(ctx, Prompt{Text: s.ExtractorPrompt + "\n\n" + narrative})
	if err != nil {
		if ctx.Err() != nil {
			return backtest.Decision{}, ctx.Err()
		}
		s.Log.Warn().Err(err).Msg("extraction failed, treating as no trade")
		return noTrade, nil
	}

	d, ok := ParseExtraction(extracted)
	if !ok {
		s.Log.Warn().Str("text", preview(extracted, 200)).Msg("extraction not understood, treating as no trade")
		return noTrade, nil
	}
	d.Raw = narrative
	return d, nil
}

type ohlc struct {
	Time  string  `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

func toOHLC(cs []market.Candle) []ohlc {
	out := make([]ohlc, len(cs))
	for i, c := range cs {
		out[i] = ohlc{
			Time:  c.Time.UTC().Format("2006-01-02T15:04:05Z"),
			Open:  c.Open,
			High:  c.High,
			Low:   c.Low,
			Close: c.Close,
		}
	}
	return out
}

// analysisPrompt is the strategy prompt followed by both windows as JSON,
// keyed by timeframe ("m1", "m15"), plus the chart images.
func (s *LLMSource) analysisPrompt(w backtest.Window) (Prompt, error) {
	data := map[string][]ohlc{
		strings.ToLower(w.FineTF.String()):   toOHLC(w.Fine),
		strings.ToLower(w.CoarseTF.String()): toOHLC(w.Coarse),
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return Prompt{}, fmt.Errorf("llm: encode ohlc: %w", err)
	}

	p := Prompt{Text: s.Prompt + "\nOHLC data:\n" + string(b)}
	for _, path := range w.Charts {
		img, err := os.ReadFile(path)
		if err != nil {
			return Prompt{}, fmt.Errorf("llm: read chart: %w", err)
		}
		p.Images = append(p.Images, img)
	}
	return p, nil
}
