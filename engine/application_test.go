package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-content/engine/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anima.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadApplicationConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
name = "Demo"
log_level = "warn"
tick_rate = 30

[content]
manifest_path = "build/manifest.json"
streaming_assets = ["ui_abc.bundle"]
offline_mode = false
verify_mode = "hash"
immediate_timeout = "2s"

[download]
url = "https://cdn.example/content"
retry_delay = "250ms"
max_retry_delay = "5s"

[systems]
workers = 2
defer_scene_activation = true
`)
	config, err := LoadApplicationConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "Demo", config.Name)
	assert.Equal(t, 30, config.TickRate)
	assert.Equal(t, "build/manifest.json", config.Content.ManifestPath)
	assert.Equal(t, []string{"ui_abc.bundle"}, config.Content.StreamingAssets)
	assert.False(t, config.Content.OfflineMode)
	assert.Equal(t, "hash", config.Content.VerifyMode)
	assert.Equal(t, 2*time.Second, config.Content.ImmediateTimeout.Duration)
	assert.Equal(t, "https://cdn.example/content", config.Download.URL)
	assert.Equal(t, 250*time.Millisecond, config.Download.RetryDelay.Duration)
	assert.Equal(t, 5*time.Second, config.Download.MaxRetryDelay.Duration)
	assert.Equal(t, 2, config.Systems.Workers)
	assert.True(t, config.Systems.DeferSceneActivation)

	// Untouched keys keep their defaults.
	defaults := DefaultApplicationConfig()
	assert.Equal(t, defaults.Content.PlayerDataPath, config.Content.PlayerDataPath)
	assert.Equal(t, defaults.Content.MaxUpdateTimeSlice, config.Content.MaxUpdateTimeSlice)
	assert.Equal(t, defaults.Systems.QueueSize, config.Systems.QueueSize)
	assert.Equal(t, defaults.Download.Timeout, config.Download.Timeout)
}

func TestLoadApplicationConfigErrors(t *testing.T) {
	_, err := LoadApplicationConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadApplicationConfig(writeConfig(t, "tick_rate = 0\n"))
	assert.Error(t, err)

	_, err = LoadApplicationConfig(writeConfig(t, "[content]\nmanifest_path = \"\"\n"))
	assert.ErrorIs(t, err, core.ErrEmptyPath)

	_, err = LoadApplicationConfig(writeConfig(t, "log_level = \"loud\"\n"))
	assert.Error(t, err)

	_, err = LoadApplicationConfig(writeConfig(t, "[content]\nimmediate_timeout = \"soon\"\n"))
	assert.Error(t, err)

	_, err = LoadApplicationConfig(writeConfig(t, "tick_rate = [\n"))
	assert.Error(t, err)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
}
