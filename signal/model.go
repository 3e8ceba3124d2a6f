// Package signal holds the decision sources the driver can consult: a
// two-stage language-model analyst, a deterministic EMA cross and a replay
// of a previous run's decision log.
package signal

import "context"

// Prompt is one text generation request with optional PNG attachments.
type Prompt struct {
	Text   string
	Images [][]byte
}

// Model is a text generation backend.
type Model interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}
