package logging_test

import (
	"path/filepath"
	"testing"

	"github.com/example/bookshop/pkg/config"
	"github.com/example/bookshop/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "order.log")
	logger, err := logging.New(config.LogConfig{Level: "debug", Encoding: "console", OutputPaths: []string{out}})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = logging.New(config.LogConfig{})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := logging.New(config.LogConfig{Level: "chatty"})
	assert.Error(t, err)
}
