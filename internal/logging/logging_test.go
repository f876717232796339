package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestNewJSONRedactsKeyMaterial(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "info", "json")
	require.NoError(t, err)

	log.With("private_key", "deadbeef").Info("generated",
		"fingerprint", "ak1abc",
		"mnemonic", "abandon abandon",
		slog.Group("key", "seed", "00ff", "scheme", "ed25519"),
	)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "[REDACTED]", line["private_key"])
	assert.Equal(t, "[REDACTED]", line["mnemonic"])
	assert.Equal(t, "ak1abc", line["fingerprint"])
	group := line["key"].(map[string]any)
	assert.Equal(t, "[REDACTED]", group["seed"])
	assert.Equal(t, "ed25519", group["scheme"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "warn", "text")
	require.NoError(t, err)
	log.Info("quiet")
	assert.Empty(t, buf.String())
	log.Warn("loud")
	assert.Contains(t, buf.String(), "loud")
}

func TestUnknownFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "info", "xml")
	require.Error(t, err)
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing")
}
