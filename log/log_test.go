package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, tc := range []struct {
		level string
		json  bool
		want  zapcore.Level
	}{
		{"debug", false, zapcore.DebugLevel},
		{"warn", true, zapcore.WarnLevel},
		{"", false, zapcore.InfoLevel},
	} {
		logger, err := New(tc.level, tc.json)
		require.NoError(t, err, tc.level)
		assert.True(t, logger.Core().Enabled(tc.want), tc.level)
		assert.False(t, logger.Core().Enabled(tc.want-1), tc.level)
	}

	_, err := New("verbose", false)
	assert.Error(t, err)
}
