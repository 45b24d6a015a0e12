package versions

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-content/engine/core"
	"github.com/spaghettifunk/anima-content/engine/download"
	"github.com/spaghettifunk/anima-content/engine/manifest"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

type fixture struct {
	player     string
	downloads  string
	manifest   *manifest.Manifest
	downloader *download.Downloader
}

// newFixture packs a small content set into the player directory.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		player:    t.TempDir(),
		downloads: t.TempDir(),
	}
	b := manifest.NewBuilder(f.player, 1)
	_, err := b.AddBundle("ui", map[string][]byte{"Assets/UI/logo.png": []byte("logo")}, manifest.WithVariant("sd"))
	require.NoError(t, err)
	_, err = b.AddBundle("ui", map[string][]byte{"Assets/UI/HD/logo.png": []byte("logo-hd")}, manifest.WithVariant("hd"))
	require.NoError(t, err)
	_, err = b.AddBundle("prefabs", map[string][]byte{"Assets/Prefabs/a.prefab": []byte("a")}, manifest.WithDeps("ui.sd"))
	require.NoError(t, err)
	_, err = b.AddRaw("Assets/Data/settings.json", []byte("{}"))
	require.NoError(t, err)
	f.manifest, err = b.Build()
	require.NoError(t, err)

	f.downloader = download.New(download.Config{
		DownloadDataPath: f.downloads,
		URL:              "http://cdn.example/content",
	}, nil)
	return f
}

func (f *fixture) versions(config Config) *Versions {
	if config.PlayerDataPath == "" {
		config.PlayerDataPath = f.player
	}
	return New(config, f.manifest, f.downloader)
}

// install copies a bundle from the player directory into the download directory.
func (f *fixture) install(t *testing.T, b *manifest.Bundle) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.player, b.NameWithHash))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(f.downloads, b.NameWithHash), data, 0o644))
}

func TestParseVerifyMode(t *testing.T) {
	mode, err := ParseVerifyMode("HASH")
	require.NoError(t, err)
	assert.Equal(t, VerifyHash, mode)

	mode, err = ParseVerifyMode("")
	require.NoError(t, err)
	assert.Equal(t, VerifySize, mode)

	_, err = ParseVerifyMode("crc")
	assert.Error(t, err)
}

func TestLookups(t *testing.T) {
	f := newFixture(t)
	v := f.versions(Config{CurrentVariant: "hd"})

	assert.True(t, v.Contains("Assets/Prefabs/a.prefab"))
	assert.Equal(t, "prefabs", v.GetBundle("Assets/Prefabs/a.prefab").Name)
	assert.Equal(t, "ui.hd", v.GetBundle("ui.hd").Name)
	assert.Nil(t, v.GetBundle("nope"))

	main, deps, ok := v.GetDependencies("Assets/Prefabs/a.prefab")
	require.True(t, ok)
	assert.Equal(t, "prefabs", main.Name)
	require.Len(t, deps, 1)
	assert.Equal(t, "ui.hd", deps[0].Name)

	v.SetCurrentVariant("sd")
	_, deps, _ = v.GetDependencies("Assets/Prefabs/a.prefab")
	assert.Equal(t, "ui.sd", deps[0].Name)

	_, _, ok = v.GetDependencies("nope")
	assert.False(t, ok)
}

func TestGetBundlePathOrURL(t *testing.T) {
	f := newFixture(t)
	prefabs := f.manifest.GetBundleByName("prefabs")
	ui := f.manifest.GetBundleByName("ui.sd")

	offline := f.versions(Config{OfflineMode: true})
	assert.Equal(t, filepath.Join(f.player, prefabs.NameWithHash), offline.GetBundlePathOrURL(prefabs))
	assert.True(t, offline.IsDownloaded(prefabs))

	online := f.versions(Config{StreamingAssets: []string{ui.NameWithHash}})
	assert.Equal(t, filepath.Join(f.player, ui.NameWithHash), online.GetBundlePathOrURL(ui))
	assert.Equal(t, "http://cdn.example/content/"+prefabs.NameWithHash, online.GetBundlePathOrURL(prefabs))
	assert.False(t, online.IsDownloaded(prefabs))

	f.install(t, prefabs)
	assert.True(t, online.IsDownloaded(prefabs))
	assert.Equal(t, filepath.Join(f.downloads, prefabs.NameWithHash), online.GetBundlePathOrURL(prefabs))
}

func TestIsDownloadedHashMode(t *testing.T) {
	f := newFixture(t)
	prefabs := f.manifest.GetBundleByName("prefabs")
	v := f.versions(Config{VerifyMode: VerifyHash})

	// Same size, other content.
	corrupt := make([]byte, prefabs.Size)
	require.NoError(t, os.WriteFile(filepath.Join(f.downloads, prefabs.NameWithHash), corrupt, 0o644))
	assert.False(t, v.IsDownloaded(prefabs))
	assert.True(t, f.versions(Config{VerifyMode: VerifySize}).IsDownloaded(prefabs))

	f.install(t, prefabs)
	assert.True(t, v.IsDownloaded(prefabs))
}

func TestGetDownloadInfo(t *testing.T) {
	f := newFixture(t)
	prefabs := f.manifest.GetBundleByName("prefabs")

	info := f.versions(Config{}).GetDownloadInfo(prefabs)
	assert.Equal(t, "http://cdn.example/content/"+prefabs.NameWithHash, info.URL)
	assert.Equal(t, filepath.Join(f.downloads, prefabs.NameWithHash), info.SavePath)
	assert.Equal(t, prefabs.Size, info.Size)
	assert.Empty(t, info.Hash)

	info = f.versions(Config{VerifyMode: VerifyHash}).GetDownloadInfo(prefabs)
	assert.Equal(t, prefabs.Hash, info.Hash)
}

func TestVerifyAndDownloadSize(t *testing.T) {
	f := newFixture(t)
	v := f.versions(Config{CurrentVariant: "sd", VerifyWorkers: 2})
	prefabs := f.manifest.GetBundleByName("prefabs")
	ui := f.manifest.GetBundleByName("ui.sd")
	settings := f.manifest.GetBundle("Assets/Data/settings.json")
	f.install(t, ui)

	bundles := append([]*manifest.Bundle{prefabs}, f.manifest.Bundles...)
	infos, err := v.Verify(context.Background(), bundles)
	require.NoError(t, err)

	var names []string
	for _, info := range infos {
		names = append(names, filepath.Base(info.SavePath))
	}
	// ui.hd is another variant, ui.sd is installed and prefabs is listed once.
	assert.ElementsMatch(t, []string{prefabs.NameWithHash, settings.NameWithHash}, names)

	size, err := v.DownloadSize(context.Background(), bundles)
	require.NoError(t, err)
	assert.Equal(t, prefabs.Size+settings.Size, size)

	infos, err = f.versions(Config{OfflineMode: true}).Verify(context.Background(), bundles)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestVerifyHonoursContext(t *testing.T) {
	f := newFixture(t)
	v := f.versions(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Verify(ctx, f.manifest.Bundles)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeHash(t *testing.T) {
	f := newFixture(t)
	prefabs := f.manifest.GetBundleByName("prefabs")

	sum, err := ComputeHash(filepath.Join(f.player, prefabs.NameWithHash))
	require.NoError(t, err)
	assert.Equal(t, prefabs.Hash, sum)

	_, err = ComputeHash(filepath.Join(f.player, "missing"))
	assert.Error(t, err)
}

func TestSetManifest(t *testing.T) {
	f := newFixture(t)
	v := f.versions(Config{})
	m, err := manifest.Parse([]byte(`{"version": 9}`))
	require.NoError(t, err)

	v.SetManifest(m)
	assert.Equal(t, 9, v.Manifest().Version)
	assert.False(t, v.Contains("Assets/Prefabs/a.prefab"))
}
