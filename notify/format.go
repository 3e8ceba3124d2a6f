package notify

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/report"
	"github.com/rustyeddy/backtester/sim"
)

// PromptPreviewLimit bounds the prompt text shown in debug messages.
const PromptPreviewLimit = 500

type Message struct {
	Title string
	Body  string
}

// Formatter renders events. Money is grouped per the configured language.
type Formatter struct {
	p *message.Printer
}

// NewFormatter takes a BCP 47 tag ("en", "id"); unknown or empty tags
// fall back to English.
func NewFormatter(lang string) *Formatter {
	tag, err := language.Parse(lang)
	if err != nil || lang == "" {
		tag = language.English
	}
	return &Formatter{p: message.NewPrinter(tag)}
}

// Money renders a signed dollar amount with two decimals, e.g. "$+1,250.00".
func (f *Formatter) Money(v float64) string {
	if v > 0 {
		return f.p.Sprintf("$+%.2f", v)
	}
	return f.p.Sprintf("$%.2f", v)
}

func (f *Formatter) Event(ev sim.Event) Message {
	switch ev.Kind {
	case sim.EventOrderCreated:
		return Message{
			Title: fmt.Sprintf("🔔 ORDER DIBUAT (#%d)", ev.OrderID),
			Body:  fmt.Sprintf("- Tipe: %s\n- Harga: %s", ev.OrderKind, price(ev.Price)),
		}
	case sim.EventOrderCancelled:
		return Message{
			Title: fmt.Sprintf("⌛ ORDER DIBATALKAN (#%d)", ev.OrderID),
			Body:  fmt.Sprintf("- Tipe: %s\n- Harga: %s\n- Alasan: %s", ev.OrderKind, price(ev.Price), ev.Reason),
		}
	case sim.EventPositionOpened:
		return Message{
			Title: fmt.Sprintf("✅ POSISI DIBUKA (#%d)", ev.TradeID),
			Body:  fmt.Sprintf("- Arah: %s\n- Harga Masuk: %s", ev.Direction, price(ev.Price)),
		}
	case sim.EventPositionClosed:
		return Message{
			Title: fmt.Sprintf("🛑 POSISI DITUTUP (#%d)", ev.TradeID),
			Body:  fmt.Sprintf("- P/L: %s\n- Alasan: %s", f.Money(ev.ProfitLoss), ev.Reason),
		}
	case sim.EventRunFailed:
		return Message{
			Title: "❌ Backtest Gagal!",
			Body:  "- Alasan: " + ev.Text,
		}
	case sim.EventRunCompleted:
		return Message{Title: "🎉 Backtest Selesai!", Body: f.summary(ev)}
	case sim.EventDecisionRequested:
		return Message{Title: "[DEBUG MODE] 🐞", Body: f.decisionRequested(ev)}
	case sim.EventDecisionReceived:
		return Message{
			Title: "[DEBUG MODE] 💡",
			Body:  fmt.Sprintf("Respons Mentah (Tahap 1):\n\n```%s```\n\nKeputusan: %s", ev.Text, ev.Reason),
		}
	}
	return Message{Title: string(ev.Kind), Body: ev.Text}
}

func (f *Formatter) summary(ev sim.Event) string {
	s, ok := ev.Payload.(report.Summary)
	if !ok {
		return ev.Text
	}
	var b strings.Builder
	b.WriteString("Berikut ringkasan performa:\n\n")
	b.WriteString(f.p.Sprintf("Total Trade: %d\n", s.TotalTrades))
	b.WriteString(f.p.Sprintf("Win Rate: %.2f%%\n", s.WinRatePercent))
	b.WriteString("Profit/Loss Bersih: " + f.Money(s.NetProfitLoss) + "\n")
	b.WriteString("Profit Factor: " + s.ProfitFactor.String() + "\n")
	b.WriteString(f.p.Sprintf("Saldo Akhir: $%.2f\n", s.EndBalance))
	b.WriteString(f.p.Sprintf("Kegagalan Analisis AI: %d", s.AIAnalysisFailures))
	if ev.Text != "" {
		b.WriteString("\n\n" + ev.Text)
	}
	return b.String()
}

func (f *Formatter) decisionRequested(ev sim.Event) string {
	var b strings.Builder
	b.WriteString("Pesan ini dikirim SEBELUM memanggil AI.\n\n")
	if ev.Text != "" {
		b.WriteString("PROMPT:\n" + truncate(ev.Text, PromptPreviewLimit) + "...\n")
	}
	if c, ok := ev.Payload.(backtest.DecisionContext); ok {
		const layout = "2006-01-02 15:04"
		b.WriteString(fmt.Sprintf("\nJendela %s: %s s/d %s", c.FineTimeframe, c.FineStart.UTC().Format(layout), c.FineEnd.UTC().Format(layout)))
		for _, p := range c.Charts {
			b.WriteString("\nChart: " + p)
		}
	}
	return b.String()
}

func price(v float64) string { return fmt.Sprintf("%.5f", v) }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
