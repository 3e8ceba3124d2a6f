package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, New("DEBUG", false).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New("invalid", false).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New("", false).GetLevel())
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	l := Component(NewWithWriter(&buf, "info", false), "driver")
	l.Info().Msg("hello")

	assert.Contains(t, buf.String(), `"component":"driver"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}
