package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"Warning", zapcore.WarnLevel},
		{" error ", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, got, tt.input)
	}

	_, err := ParseLevel("loud")
	assert.ErrorIs(t, err, ErrUnknownLevel)
	assert.Contains(t, err.Error(), `"loud"`)
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger("warn", false)
	require.NoError(t, err)
	assert.False(t, log.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Desugar().Core().Enabled(zapcore.WarnLevel))

	log, err = NewLogger("debug", true)
	require.NoError(t, err)
	assert.True(t, log.Desugar().Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger("loud", true)
	assert.ErrorIs(t, err, ErrUnknownLevel)
}

func TestErrorsUnwrap(t *testing.T) {
	ie := &InitError{Component: "vfs", Err: ErrClosed}
	assert.Equal(t, "init vfs: compatibility layer closed", ie.Error())
	assert.ErrorIs(t, ie, ErrClosed)

	ce := &ComponentError{Component: "fetch", Op: "install", Err: ErrSafeMode}
	assert.Equal(t, "fetch: install: safe mode enabled", ce.Error())
	assert.ErrorIs(t, ce, ErrSafeMode)
	assert.Equal(t, "fetch: safe mode enabled", (&ComponentError{Component: "fetch", Err: ErrSafeMode}).Error())
}
