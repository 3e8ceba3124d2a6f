package signal

import "strings"

// DefaultExtractorPrompt is used when no extractor prompt file is configured.
func DefaultExtractorPrompt() string {
	return strings.TrimSpace(`
You are a strict data extractor. Read the trading analysis below and output ONE line only.
If the analysis recommends a pending limit order, output exactly:
Arah: <BUY_LIMIT|SELL_LIMIT>, Harga Masuk: <price>, Stop Loss: <price>, Take Profit: <price>
Otherwise output exactly: NO_TRADE
Do not add explanations, Markdown or any other text.
`)
}

// PreviewLimit is how much of a prompt is shown in debug notifications.
const PreviewLimit = 500

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
