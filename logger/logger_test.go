package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShahFaisal5714/agro-crm-nexus/logger"
)

func TestSetup_JSONToFile(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	path := filepath.Join(t.TempDir(), "ledger.log")
	closeLog, err := logger.Setup(logger.LogConfig{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	cashLog := logger.WithComponent("cash")
	cashLog.Info().Msg("dropped")
	cashLog.Warn().Msg("kept")
	require.NoError(t, closeLog())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"component":"cash"`)
	assert.Contains(t, string(b), "kept")
	assert.NotContains(t, string(b), "dropped")
}

func TestSetup_RejectsUnknownLevel(t *testing.T) {
	_, err := logger.Setup(logger.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
