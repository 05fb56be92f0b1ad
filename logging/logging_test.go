package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		level   string
		debug   bool
		warning bool
	}{
		{level: "debug", debug: true, warning: true},
		{level: "warn", debug: false, warning: true},
		{level: "bogus", debug: false, warning: true},
		{level: "", debug: false, warning: true},
	}
	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tc.level, false)

			logger.Debug().Msg("d")
			assert.Equal(t, tc.debug, buf.Len() > 0)

			buf.Reset()
			logger.Warn().Str("request_id", "7").Msg("w")
			assert.Equal(t, tc.warning, buf.Len() > 0)
		})
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", false)
	logger.Info().Uint("actor_id", 3).Msg("approved")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "approved", line["message"])
	assert.Equal(t, float64(3), line["actor_id"])
	assert.Contains(t, line, "time")
}
