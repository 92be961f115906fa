package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestResolveLevel(t *testing.T) {
	tests := []struct {
		env, level string
		want       zapcore.Level
	}{
		{env: "development", want: zapcore.DebugLevel},
		{env: "local", want: zapcore.DebugLevel},
		{env: "production", want: zapcore.InfoLevel},
		{env: "production", level: "warn", want: zapcore.WarnLevel},
		{env: "development", level: "error", want: zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		lvl, err := resolveLevel(tt.env, tt.level)
		require.NoError(t, err)
		assert.Equal(t, tt.want, lvl.Level(), "%s/%s", tt.env, tt.level)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New("production", "loud")
	assert.Error(t, err)
}

func TestNewBuildsLogger(t *testing.T) {
	logger, err := New("production", "")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
