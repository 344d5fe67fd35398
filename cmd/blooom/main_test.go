package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/realsaraf/blooom/internal/capture"
	"github.com/realsaraf/blooom/internal/config"
)

var testTargets = []capture.Target{
	{ID: "screen:0:0", DisplayName: "Screen 1", Kind: capture.KindScreen, Bounds: capture.Rect{Width: 1920, Height: 1080}},
	{ID: "screen:1:0", DisplayName: "Screen 2", Kind: capture.KindScreen, Bounds: capture.Rect{X: 1920, Width: 2560, Height: 1440}, Primary: true},
}

func TestPickTarget(t *testing.T) {
	got, err := pickTarget(testTargets, "", -1)
	require.NoError(t, err)
	assert.Equal(t, "screen:1:0", got.ID, "defaults to the primary screen")

	got, err = pickTarget(testTargets, "screen:0:0", -1)
	require.NoError(t, err)
	assert.Equal(t, "Screen 1", got.DisplayName)

	got, err = pickTarget(testTargets, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "screen:0:0", got.ID)

	_, err = pickTarget(testTargets, "screen:9:0", -1)
	assert.True(t, errors.Is(err, capture.ErrTargetNotFound))

	_, err = pickTarget(testTargets, "", 5)
	assert.True(t, errors.Is(err, capture.ErrTargetNotFound))

	_, err = pickTarget(nil, "", -1)
	assert.True(t, errors.Is(err, capture.ErrCaptureUnavailable))
}

func TestPickTargetWithoutPrimary(t *testing.T) {
	got, err := pickTarget(testTargets[:1], "", -1)
	require.NoError(t, err)
	assert.Equal(t, "screen:0:0", got.ID)
}

func TestWriteSourcesFormats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSources(&buf, testTargets, "table"))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "INDEX")
	assert.Contains(t, lines[2], "2560x1440+1920+0")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[2]), "*"))

	buf.Reset()
	require.NoError(t, writeSources(&buf, testTargets, "json"))
	var rows []sourceRow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[1].Index)

	buf.Reset()
	require.NoError(t, writeSources(&buf, testTargets, "yaml"))
	rows = nil
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "screen:0:0", rows[0].ID)

	assert.Error(t, writeSources(&buf, testTargets, "xml"))
}

func TestParseSetting(t *testing.T) {
	p, err := parseSetting("mute-microphone", "true")
	require.NoError(t, err)
	require.NotNil(t, p.MuteMicrophone)
	assert.True(t, *p.MuteMicrophone)

	p, err = parseSetting("default_quality", "medium")
	require.NoError(t, err)
	assert.Equal(t, "medium", *p.DefaultQuality)

	_, err = parseSetting("mute_system_audio", "loud")
	assert.Error(t, err)

	_, err = parseSetting("server_url", "x")
	assert.Error(t, err)
}

func TestWriteConfigRedactsSecrets(t *testing.T) {
	cfg := *config.Default()
	cfg.Archive.Provider = "s3"
	cfg.Archive.Bucket = "recordings"
	cfg.Archive.SecretAccessKey = "hunter2"

	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, cfg))
	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "recordings")
	assert.Contains(t, out, "output_directory:")
	assert.Equal(t, "hunter2", cfg.Archive.SecretAccessKey, "caller's copy is untouched")
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00:00", formatElapsed(0))
	assert.Equal(t, "00:01:05", formatElapsed(65))
	assert.Equal(t, "01:00:01", formatElapsed(3601))
}
