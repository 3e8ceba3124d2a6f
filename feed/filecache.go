package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rustyeddy/backtester/market"
)

// FileCache keeps each series as an indented JSON candle array in Dir.
type FileCache struct {
	Dir string
}

func (c FileCache) path(key string) string { return filepath.Join(c.Dir, key+".json") }

func (c FileCache) Get(ctx context.Context, key string) (market.Series, bool, error) {
	b, err := os.ReadFile(c.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return market.Series{}, false, nil
	}
	if err != nil {
		return market.Series{}, false, err
	}
	var cs []market.Candle
	if err := json.Unmarshal(b, &cs); err != nil {
		return market.Series{}, false, fmt.Errorf("cache %s: %w", c.path(key), err)
	}
	return market.Series{Candles: cs}, true, nil
}

func (c FileCache) Put(ctx context.Context, key string, s market.Series) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s.Candles, "", "  ")
	if err != nil {
		return err
	}
	tmp := c.path(key) + ".part"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path(key))
}
