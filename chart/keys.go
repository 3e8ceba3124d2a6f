package chart

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// KeyEnvPrefix marks environment variables holding chart-img API keys.
const KeyEnvPrefix = "CHART_IMG_KEY_"

// KeysFromEnv collects the values of all CHART_IMG_KEY_* entries of environ
// (os.Environ() layout), sorted so rotation order is stable.
func KeysFromEnv(environ []string) []string {
	var keys []string
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, KeyEnvPrefix) || strings.TrimSpace(v) == "" {
			continue
		}
		keys = append(keys, strings.TrimSpace(v))
	}
	sort.Strings(keys)
	return keys
}

type keyState struct {
	NextKeyIndex int `json:"nextKeyIndex"`
}

// KeyRing hands out API keys round-robin. When StatePath is set the next
// index survives restarts; an unreadable state file restarts at zero.
type KeyRing struct {
	keys      []string
	statePath string

	mu   sync.Mutex
	next int
}

func NewKeyRing(keys []string, statePath string) (*KeyRing, error) {
	if len(keys) == 0 {
		return nil, errors.New("chart: no api keys configured")
	}
	r := &KeyRing{keys: keys, statePath: statePath}
	r.next = r.load()
	return r, nil
}

func (r *KeyRing) Len() int { return len(r.keys) }

func (r *KeyRing) load() int {
	if r.statePath == "" {
		return 0
	}
	b, err := os.ReadFile(r.statePath)
	if err != nil {
		return 0
	}
	var st keyState
	if json.Unmarshal(b, &st) != nil || st.NextKeyIndex < 0 {
		return 0
	}
	return st.NextKeyIndex % len(r.keys)
}

// Next returns the current key and its index, then advances and persists
// the pointer.
func (r *KeyRing) Next() (string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.next
	r.next = (i + 1) % len(r.keys)
	if err := r.save(); err != nil {
		return r.keys[i], i, err
	}
	return r.keys[i], i, nil
}

func (r *KeyRing) save() error {
	if r.statePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.statePath), 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("chart: key state: %w", err)
	}
	b, err := json.MarshalIndent(keyState{NextKeyIndex: r.next}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(r.statePath, b, 0o644); err != nil {
		return fmt.Errorf("chart: key state: %w", err)
	}
	return nil
}
