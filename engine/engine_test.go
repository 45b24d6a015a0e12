package engine

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-content/engine/assets"
	"github.com/spaghettifunk/anima-content/engine/core"
	"github.com/spaghettifunk/anima-content/engine/manifest"
	"github.com/spaghettifunk/anima-content/engine/resources"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

// testConfig packs a one-bundle content set and points a config at it.
func testConfig(t *testing.T) *ApplicationConfig {
	t.Helper()
	dir := t.TempDir()
	b := manifest.NewBuilder(dir, 1)
	_, err := b.AddBundle("ui", map[string][]byte{"Assets/UI/title.txt": []byte("Anima")})
	require.NoError(t, err)
	manifestPath := filepath.Join(dir, "manifest.json")
	_, err = b.WriteFile(manifestPath)
	require.NoError(t, err)

	config := DefaultApplicationConfig()
	config.LogLevel = "error"
	config.TickRate = 500
	config.Content.ManifestPath = manifestPath
	config.Content.PlayerDataPath = dir
	config.Content.VerifyOnStart = true
	config.Download.DataPath = t.TempDir()
	config.Systems.Workers = 2
	return config
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, core.ErrNotInitialized)
	_, err = New(&Game{}, nil)
	assert.ErrorIs(t, err, core.ErrNotInitialized)
}

func TestRunBeforeInitialize(t *testing.T) {
	e, err := New(&Game{ApplicationConfig: testConfig(t)}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, e.Run(context.Background()), core.ErrNotInitialized)
}

func TestEngineLifecycle(t *testing.T) {
	var (
		booted, initialized, shutdown bool
		title                         *assets.Asset
		updates                       int
	)
	g := &Game{ApplicationConfig: testConfig(t)}
	var e *Engine
	g.FnBoot = func() error {
		booted = true
		return nil
	}
	g.FnInitialize = func() error {
		initialized = true
		require.NotNil(t, g.AssetManager)
		require.NotNil(t, g.SystemManager)
		require.NotNil(t, g.Events)
		var err error
		title, err = g.AssetManager.LoadAsync("Assets/UI/title.txt", resources.ResourceTypeText, nil)
		return err
	}
	g.FnUpdate = func(deltaTime float64) error {
		updates++
		if title.IsDone() {
			e.Quit()
		}
		return nil
	}
	g.FnShutdown = func() error {
		shutdown = true
		return nil
	}

	var err error
	e, err = New(g, nil)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.True(t, booted)
	assert.True(t, initialized)
	assert.Same(t, g.AssetManager, e.AssetManager())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	require.NoError(t, ctx.Err(), "the game never quit")

	assert.Equal(t, assets.StatusSuccessToLoad, title.Status(), title.Error())
	text, _ := assets.As[string](title)
	assert.Equal(t, "Anima", text)
	assert.Greater(t, updates, 0)

	require.NoError(t, e.Shutdown())
	assert.True(t, shutdown)
}

func TestRunStopsWithContext(t *testing.T) {
	e, err := New(&Game{ApplicationConfig: testConfig(t)}, nil)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, e.Run(ctx))
}

func TestInitializeFailsWithoutManifest(t *testing.T) {
	config := testConfig(t)
	config.Content.ManifestPath = filepath.Join(t.TempDir(), "none.json")
	e, err := New(&Game{ApplicationConfig: config}, nil)
	require.NoError(t, err)
	assert.Error(t, e.Initialize())
	assert.NoError(t, e.Shutdown())
}
