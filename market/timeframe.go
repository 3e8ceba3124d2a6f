package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a candle granularity in seconds.
type Timeframe int32

const (
	M1  Timeframe = 60
	M5  Timeframe = 300
	M15 Timeframe = 900
	M30 Timeframe = 1800
	H1  Timeframe = 3600
	H4  Timeframe = 14400
	D1  Timeframe = 86400
)

// Duration returns the bar length.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf) * time.Second
}

func (tf Timeframe) String() string {
	s, err := SecondsToTFString(int32(tf))
	if err != nil {
		return fmt.Sprintf("%ds", int32(tf))
	}
	return s
}

// ChartInterval returns the interval notation used by charting services ("1m", "15m", "1h").
func (tf Timeframe) ChartInterval() string {
	sec := int32(tf)
	switch {
	case sec < 3600:
		return fmt.Sprintf("%dm", sec/60)
	case sec < 86400:
		return fmt.Sprintf("%dh", sec/3600)
	default:
		return fmt.Sprintf("%dD", sec/86400)
	}
}

// ParseTimeframe accepts the usual "M1", "M15", "H1" notation (case-insensitive).
func ParseTimeframe(s string) (Timeframe, error) {
	sec, err := TFStringToSeconds(strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return 0, err
	}
	return Timeframe(sec), nil
}

func (tf Timeframe) MarshalText() ([]byte, error) {
	if tf == 0 {
		return []byte{}, nil
	}
	return []byte(tf.String()), nil
}

func (tf *Timeframe) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*tf = 0
		return nil
	}
	v, err := ParseTimeframe(string(b))
	if err != nil {
		return err
	}
	*tf = v
	return nil
}

func SecondsToTFString(sec int32) (string, error) {
	if sec <= 0 {
		return "", fmt.Errorf("invalid timeframe seconds: %d", sec)
	}

	// Minutes
	if sec < 3600 && sec%60 == 0 {
		return fmt.Sprintf("M%d", sec/60), nil
	}

	// Hours
	if sec < 86400 && sec%3600 == 0 {
		return fmt.Sprintf("H%d", sec/3600), nil
	}

	// Days
	if sec%86400 == 0 {
		days := sec / 86400
		if days == 7 {
			return "W1", nil
		}
		return fmt.Sprintf("D%d", days), nil
	}

	return "", fmt.Errorf("cannot map timeframe: %d seconds", sec)
}

func TFStringToSeconds(tf string) (int32, error) {
	switch tf {
	case "M1":
		return 60, nil
	case "M5":
		return 300, nil
	case "M15":
		return 900, nil
	case "M30":
		return 1800, nil
	case "H1":
		return 3600, nil
	case "H4":
		return 14400, nil
	case "D1", "D":
		return 86400, nil
	case "W1":
		return 604800, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe string: %s", tf)
	}
}
