package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spaghettifunk/anima-content/engine/assets"
	"github.com/spaghettifunk/anima-content/engine/core"
	"github.com/spaghettifunk/anima-content/engine/download"
	"github.com/spaghettifunk/anima-content/engine/manifest"
	"github.com/spaghettifunk/anima-content/engine/systems"
	"github.com/spaghettifunk/anima-content/engine/versions"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	isRunning     atomic.Bool
	source        core.TimeSource
	clock         *core.Clock
	frameMetrics  *core.FrameMetrics
	events        *core.EventSystem
	systemManager *systems.SystemManager
	assetManager  *assets.AssetManager
	watcher       *manifest.Watcher
	registry      *prometheus.Registry
	metricsServer *http.Server
	lastTime      float64
}

// New creates the engine for g. A nil source uses the wall clock.
func New(g *Game, source core.TimeSource) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		err := fmt.Errorf("engine.New - game and application config are required: %w", core.ErrNotInitialized)
		core.LogError("%s", err.Error())
		return nil, err
	}
	if source == nil {
		source = core.NewTimeSource()
	}
	level, err := core.ParseLogLevel(g.ApplicationConfig.LogLevel)
	if err != nil {
		return nil, err
	}
	core.SetLogLevel(level)

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		source:       source,
		clock:        core.NewClock(source),
		frameMetrics: core.NewFrameMetrics(),
		events:       core.NewEventSystem(),
		registry:     prometheus.NewRegistry(),
	}, nil
}

// Initialize boots the game, then builds every engine system from the
// application config.
func (e *Engine) Initialize() error {
	config := e.gameInstance.ApplicationConfig

	e.currentStage = EngineStageBooting
	if e.gameInstance.FnBoot != nil {
		if err := e.gameInstance.FnBoot(); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageBootComplete

	e.currentStage = EngineStageInitializing
	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)

	sm, err := systems.NewSystemManager(systems.SystemManagerConfig{
		Workers:              config.Systems.Workers,
		QueueSize:            config.Systems.QueueSize,
		MaxLoaderCount:       config.Systems.MaxLoaderCount,
		MaxSceneCount:        config.Systems.MaxSceneCount,
		DeferSceneActivation: config.Systems.DeferSceneActivation,
	})
	if err != nil {
		return err
	}
	e.systemManager = sm

	m, err := manifest.LoadFile(config.Content.ManifestPath)
	if err != nil {
		core.LogError("failed to load manifest '%s': %s", config.Content.ManifestPath, err.Error())
		return err
	}

	downloader := download.New(download.Config{
		DownloadDataPath: config.Download.DataPath,
		URL:              config.Download.URL,
		Retries:          config.Download.Retries,
		RetryDelay:       config.Download.RetryDelay.Duration,
		MaxRetryDelay:    config.Download.MaxRetryDelay.Duration,
		MaxBandwidth:     config.Download.MaxBandwidth,
		Timeout:          config.Download.Timeout.Duration,
	}, nil)

	mode, err := versions.ParseVerifyMode(config.Content.VerifyMode)
	if err != nil {
		return err
	}
	v := versions.New(versions.Config{
		EncryptionEnabled: config.Content.Encryption,
		OfflineMode:       config.Content.OfflineMode,
		CurrentVariant:    config.Content.Variant,
		StreamingAssets:   config.Content.StreamingAssets,
		PlayerDataPath:    config.Content.PlayerDataPath,
		VerifyMode:        mode,
		VerifyWorkers:     config.Content.VerifyWorkers,
	}, m, downloader)

	var updates <-chan *manifest.Manifest
	if config.Content.WatchManifest {
		w, err := manifest.NewWatcher(config.Content.ManifestPath)
		if err != nil {
			return err
		}
		e.watcher = w
		updates = w.Updates()
	}

	am, err := assets.NewAssetManager(assets.Options{
		Config: assets.Config{
			MaxUpdateTimeSlice: config.Content.MaxUpdateTimeSlice.Duration,
			ImmediateTimeout:   config.Content.ImmediateTimeout.Duration,
			EncryptKey:         config.Content.EncryptKey,
		},
		Versions:        v,
		Downloader:      downloader,
		Jobs:            sm.JobSystem(),
		Resources:       sm.ResourceSystem(),
		Scenes:          assets.NewSceneDirector(sm.SceneSystem()),
		Clock:           e.source,
		Metrics:         core.NewLoaderMetrics(e.registry),
		Events:          e.events,
		ManifestUpdates: updates,
		GCSweep:         debug.FreeOSMemory,
	})
	if err != nil {
		return err
	}
	e.assetManager = am

	if config.Content.VerifyOnStart {
		size, err := v.DownloadSize(context.Background(), m.Bundles)
		if err != nil {
			core.LogWarn("failed to verify bundles: %s", err.Error())
		} else {
			core.LogInfo("%d bytes of content left to download", size)
		}
	}

	if config.MetricsAddress != "" {
		e.serveMetrics(config.MetricsAddress)
	}

	e.gameInstance.SystemManager = sm
	e.gameInstance.AssetManager = am
	e.gameInstance.Events = e.events
	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	e.metricsServer = &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := e.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			core.LogError("metrics server stopped: %s", err.Error())
		}
	}()
	core.LogInfo("serving metrics on %s", addr)
}

// Run ticks the engine at the configured rate until ctx ends or a quit event
// is fired.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine.Run - %w", core.ErrNotInitialized)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	ticker := e.source.Ticker(time.Second / time.Duration(e.gameInstance.ApplicationConfig.TickRate))
	defer ticker.Stop()

	for e.isRunning.Load() {
		select {
		case <-ctx.Done():
			e.isRunning.Store(false)
			return nil
		case <-ticker.C:
		}
		if err := e.tick(); err != nil {
			core.LogError("Game update failed, shutting down.")
			e.isRunning.Store(false)
			return err
		}
	}
	return nil
}

func (e *Engine) tick() error {
	// Update clock and get delta time.
	e.clock.Update()
	currentTime := e.clock.Elapsed()
	delta := currentTime - e.lastTime
	frameStart := e.source.Now()

	e.assetManager.UpdateAll()
	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta); err != nil {
			return err
		}
	}

	e.frameMetrics.Update(e.source.Since(frameStart).Seconds())
	e.lastTime = currentTime
	return nil
}

// Quit asks the running loop to stop after the current tick.
func (e *Engine) Quit() {
	e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, nil)
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError("%s", err.Error())
		}
	}
	if e.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.metricsServer.Shutdown(ctx); err != nil {
			core.LogWarn("metrics server shutdown: %s", err.Error())
		}
	}
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			return err
		}
	}
	if e.assetManager != nil {
		if err := e.assetManager.Shutdown(); err != nil {
			return err
		}
	}
	if e.systemManager != nil {
		if err := e.systemManager.Shutdown(); err != nil {
			return err
		}
	}
	return e.events.Shutdown()
}

func (e *Engine) AssetManager() *assets.AssetManager {
	return e.assetManager
}

func (e *Engine) FrameMetrics() *core.FrameMetrics {
	return e.frameMetrics
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listenerInst interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT recieved, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}
