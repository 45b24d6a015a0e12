package testbed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/anima-content/engine"
	"github.com/spaghettifunk/anima-content/engine/assets"
	"github.com/spaghettifunk/anima-content/engine/core"
	"github.com/spaghettifunk/anima-content/engine/manifest"
	"github.com/spaghettifunk/anima-content/engine/resources"
	"github.com/spaghettifunk/anima-content/engine/resources/loaders"
	"github.com/spaghettifunk/anima-content/engine/systems"
)

const (
	logoPath     = "Assets/UI/logo.png"
	titlePath    = "Assets/UI/title.txt"
	settingsPath = "Assets/Data/settings.json"
	levelPath    = "Assets/Scenes/level.scene"
	palettePath  = "Assets/UI/palette.hex"

	paletteType = "palette"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	elapsed float64

	ui       *assets.Group
	palette  *assets.Asset
	settings *assets.RawAsset
	level    *assets.Scene

	uiLoaded    bool
	levelLoaded bool
	released    bool
}

func NewTestGame(config *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State:             &gameState{},
		},
	}

	tg.FnBoot = tg.Boot
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnShutdown = tg.Shutdown

	return tg
}

// Boot writes the sample content when the manifest does not exist yet.
func (g *TestGame) Boot() error {
	core.LogInfo("booting testbed...")

	config := g.ApplicationConfig.Content
	if _, err := os.Stat(config.ManifestPath); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	core.LogInfo("generating sample content in '%s'", config.PlayerDataPath)
	return GenerateContent(config.PlayerDataPath, config.ManifestPath, config.EncryptKey, config.Encryption)
}

// GenerateContent packs the testbed assets into outDir and writes the manifest.
func GenerateContent(outDir, manifestPath, key string, encrypted bool) error {
	logo, err := checkerboard(16, 16)
	if err != nil {
		return err
	}

	b := manifest.NewBuilder(outDir, 1)
	if encrypted {
		b.Encrypt(key)
	}
	if _, err := b.AddBundle("ui", map[string][]byte{
		logoPath:  logo,
		titlePath:   []byte("Anima Content"),
		palettePath: []byte("ff0000\n00ff00\n0000ff\n"),
	}); err != nil {
		return err
	}
	if _, err := b.AddBundle("scenes", map[string][]byte{
		levelPath: []byte("level"),
	}, manifest.WithDeps("ui")); err != nil {
		return err
	}
	if _, err := b.AddRaw(settingsPath, []byte(`{"difficulty":"normal"}`)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(manifestPath), 0o755); err != nil {
		return err
	}
	_, err = b.WriteFile(manifestPath)
	return err
}

func checkerboard(w, h int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 255, G: 255, B: 255, A: 255}
			if (x/4+y/4)%2 == 0 {
				c = color.RGBA{R: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing testbed...")
	state := g.State.(*gameState)

	if err := g.SystemManager.SceneSystem().RegisterScene("menu", systems.SceneHandler{
		OnActivate: func(ctx context.Context, task *systems.Task) error {
			task.SetProgress(1)
			core.LogInfo("menu scene activated")
			return nil
		},
	}); err != nil {
		return err
	}
	if _, err := g.AssetManager.LoadScene(context.Background(), "menu", false); err != nil {
		return err
	}

	if !g.SystemManager.ResourceSystem().RegisterLoader(loaders.ResourceLoader{
		ResourceType:            resources.ResourceTypeCustom,
		CustomType:              paletteType,
		ResourceLoaderInterface: &paletteLoader{},
	}) {
		return fmt.Errorf("failed to register the %s loader", paletteType)
	}
	palette, err := g.AssetManager.LoadAsyncCustom(palettePath, paletteType, nil, func(a *assets.Asset) {
		if colors, ok := assets.As[[]color.RGBA](a); ok {
			core.LogInfo("palette loaded: %d colors", len(colors))
		}
	})
	if err != nil {
		return err
	}
	state.palette = palette

	state.ui = g.AssetManager.NewGroup()
	state.ui.
		Add(logoPath, resources.ResourceTypeImage, func(a *assets.Asset) {
			if img, ok := assets.As[*resources.ImageResourceData](a); ok {
				core.LogInfo("logo loaded: %dx%d", img.Width, img.Height)
			}
		}).
		Add(titlePath, resources.ResourceTypeText, func(a *assets.Asset) {
			if text, ok := assets.As[string](a); ok {
				core.LogInfo("title loaded: %s", text)
			}
		})
	state.ui.Load(context.Background(), func() {
		state.uiLoaded = true
		core.LogInfo("ui group loaded")
	})

	settings, err := g.AssetManager.LoadRawAsync(settingsPath, func(r *assets.RawAsset) {
		if r.Error() == "" {
			core.LogInfo("settings: %s", r.Text())
		}
	})
	if err != nil {
		return err
	}
	state.settings = settings

	level, err := g.AssetManager.LoadSceneAsync(levelPath, func(s *assets.Scene) {
		state.levelLoaded = true
		core.LogInfo("scene '%s' finished with status %s", s.Name(), s.Status())
	}, true)
	if err != nil {
		return err
	}
	level.SetOnUpdate(func(progress float64) {
		core.LogDebug("level %.0f%%", progress*100)
	})
	state.level = level
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	state.elapsed += deltaTime

	if state.uiLoaded && state.levelLoaded && !state.released {
		state.released = true
		core.LogInfo("everything loaded after %.2fs, releasing", state.elapsed)
		state.level.SetUnloaded(func() {
			core.LogInfo("level unloaded")
		})
		state.level.Release()
		state.settings.Release()
		state.palette.Release()
		state.ui.Close()
		g.AssetManager.RequestGCSweep()
	}
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed...")
	return nil
}

// paletteLoader decodes one "rrggbb" color per line.
type paletteLoader struct{}

func (l *paletteLoader) Load(name string, data []byte, params interface{}) (*resources.Resource, error) {
	var colors []color.RGBA
	for _, line := range strings.Fields(string(data)) {
		var r, g, b uint8
		if _, err := fmt.Sscanf(line, "%02x%02x%02x", &r, &g, &b); err != nil {
			return nil, fmt.Errorf("%s: bad color '%s': %w", name, line, err)
		}
		colors = append(colors, color.RGBA{R: r, G: g, B: b, A: 255})
	}
	return &resources.Resource{
		Name:     name,
		Data:     colors,
		DataSize: uint64(len(data)),
	}, nil
}

func (l *paletteLoader) Unload(resource *resources.Resource) error {
	resource.Data = nil
	resource.DataSize = 0
	return nil
}
