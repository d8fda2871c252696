package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-session-client/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestConfigure_JSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var buf bytes.Buffer
	logging.Configure(&buf, "warn", "PROD")

	log.Info().Msg("dropped")
	log.Warn().Str("key", "access_token").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "kept", entry["message"])
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "access_token", entry["key"])
}

func TestConfigure_InvalidLevelFallsBackToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var buf bytes.Buffer
	logging.Configure(&buf, "loud", "PROD")

	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
