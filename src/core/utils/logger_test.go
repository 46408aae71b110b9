package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_Messages(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := newCoreLogger(core)

	logger.Info("upload complete")
	logger.Warn("token request rejected (status %d): %s", 400, "bad key")
	logger.WithTag("watsonx").Error("retry %d of %d", 1, 1)
	logger.Debug("rate is 5%% of %v", map[string]int{"a": 1})

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)

	assert.Equal(t, "upload complete", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)

	assert.Equal(t, "token request rejected (status 400): bad key", entries[1].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)

	assert.Equal(t, "retry 1 of 1", entries[2].Message)
	assert.Equal(t, "watsonx", entries[2].LoggerName)

	assert.Equal(t, "rate is 5% of map[a:1]", entries[3].Message)
	assert.Empty(t, entries[3].Context)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}
