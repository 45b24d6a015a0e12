package assets

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/spaghettifunk/anima-content/engine/containers"
	"github.com/spaghettifunk/anima-content/engine/core"
	"github.com/spaghettifunk/anima-content/engine/download"
	"github.com/spaghettifunk/anima-content/engine/encrypt"
	"github.com/spaghettifunk/anima-content/engine/manifest"
	"github.com/spaghettifunk/anima-content/engine/systems"
	"github.com/spaghettifunk/anima-content/engine/versions"
)

// Config tunes the driver.
type Config struct {
	// MaxUpdateTimeSlice bounds the time UpdateAll spends per tick. Work left
	// over continues on the next tick. Zero is unbounded.
	MaxUpdateTimeSlice time.Duration
	// ImmediateTimeout bounds every synchronous load. Zero only honours the
	// caller's context.
	ImmediateTimeout time.Duration
	// EncryptKey decrypts bundles and raw files when encryption is enabled.
	EncryptKey string
}

// Options carries the collaborators of an AssetManager. Versions, Downloader,
// Jobs and Resources are required.
type Options struct {
	Config     Config
	Versions   *versions.Versions
	Downloader *download.Downloader
	Jobs       *systems.JobSystem
	Resources  *systems.ResourceSystem
	// Scenes may be nil when no scene is ever loaded.
	Scenes SceneDirector
	// Clock defaults to the wall clock.
	Clock   core.TimeSource
	Metrics *core.LoaderMetrics
	Events  *core.EventSystem
	// ManifestUpdates delivers replacement manifests, usually from a manifest.Watcher.
	ManifestUpdates <-chan *manifest.Manifest
	// GCSweep runs once after a tick that left nothing to reclaim, when a
	// sweep was requested with RequestGCSweep.
	GCSweep func()
	// CustomBundleLoader may return an opener for a bundle to take over how
	// it is materialized. Returning nil falls back to the local or download
	// bundle.
	CustomBundleLoader func(url string, info *manifest.Bundle) BundleOpener
}

// AssetManager is the loader context: it owns the caches, the loading and
// unused lists and the in-flight scene operations, and drives them from
// UpdateAll. It is not safe for concurrent use; every call must come from the
// goroutine that runs UpdateAll.
type AssetManager struct {
	config             Config
	versions           *versions.Versions
	downloader         *download.Downloader
	jobs               *systems.JobSystem
	resources          *systems.ResourceSystem
	scenes             SceneDirector
	clock              core.TimeSource
	metrics            *core.LoaderMetrics
	events             *core.EventSystem
	manifestUpdates    <-chan *manifest.Manifest
	gcSweep            func()
	customBundleLoader func(url string, info *manifest.Bundle) BundleOpener

	ctx    context.Context
	cancel context.CancelFunc

	assets       map[string]*Asset
	bundles      map[string]bundleLoadable
	dependencies map[string]*Dependencies
	rawAssets    map[string]*RawAsset

	loading     *containers.List[hooks]
	unused      *containers.List[hooks]
	progressing []SceneOperation
	mainScene   *Scene

	loadTimes   map[string]int
	unloadTimes map[string]int

	updateUnloadUnusedAssets bool

	groups     []*Group
	freeGroups []*Group
}

func NewAssetManager(opts Options) (*AssetManager, error) {
	if opts.Versions == nil || opts.Downloader == nil || opts.Jobs == nil || opts.Resources == nil {
		err := fmt.Errorf("NewAssetManager - versions, downloader, jobs and resources are required: %w", core.ErrNotInitialized)
		core.LogError("%s", err.Error())
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = core.NewTimeSource()
	}
	if opts.Config.EncryptKey == "" {
		opts.Config.EncryptKey = encrypt.DefaultKey
	}

	ctx, cancel := context.WithCancel(context.Background())
	am := &AssetManager{
		config:             opts.Config,
		versions:           opts.Versions,
		downloader:         opts.Downloader,
		jobs:               opts.Jobs,
		resources:          opts.Resources,
		scenes:             opts.Scenes,
		clock:              opts.Clock,
		metrics:            opts.Metrics,
		events:             opts.Events,
		manifestUpdates:    opts.ManifestUpdates,
		gcSweep:            opts.GCSweep,
		customBundleLoader: opts.CustomBundleLoader,
		ctx:                ctx,
		cancel:             cancel,
		assets:             make(map[string]*Asset),
		bundles:            make(map[string]bundleLoadable),
		dependencies:       make(map[string]*Dependencies),
		rawAssets:          make(map[string]*RawAsset),
		loading:            containers.NewList[hooks](),
		unused:             containers.NewList[hooks](),
		loadTimes:          make(map[string]int),
		unloadTimes:        make(map[string]int),
	}
	return am, nil
}

// Shutdown cancels outstanding transfers and drops every cached object.
func (am *AssetManager) Shutdown() error {
	am.ClearAll()
	am.cancel()
	return nil
}

func (am *AssetManager) Versions() *versions.Versions {
	return am.versions
}

// UpdateAll is the per-tick driver. It advances every loading entry, then,
// unless a scene operation is in flight, reclaims every unused entry, then
// runs a requested GC sweep once nothing is left to reclaim.
func (am *AssetManager) UpdateAll() {
	am.applyManifestUpdates()
	defer am.updateGauges()

	start := am.clock.Now()
	busy := func() bool {
		return am.config.MaxUpdateTimeSlice > 0 && am.clock.Since(start) >= am.config.MaxUpdateTimeSlice
	}

	for index := 0; index < am.loading.Len(); index++ {
		if busy() {
			return
		}
		item := am.loading.At(index)
		item.onUpdate()
		if !item.IsDone() {
			continue
		}
		am.loading.RemoveAt(index)
		index--
		item.base().complete()
	}

	if am.IsLoadingOrUnloading() {
		return
	}

	for index := 0; index < am.unused.Len(); index++ {
		if busy() {
			break
		}
		item := am.unused.At(index)
		b := item.base()
		if !item.IsDone() && b.status != StatusUnloading {
			continue
		}
		if !b.reference.Unused() {
			am.unused.RemoveAt(index)
			index--
			continue
		}
		if su, ok := item.(sceneUnloader); ok {
			su.updateUnload()
			if b.status == StatusUnloaded {
				am.unused.RemoveAt(index)
				index--
			}
			continue
		}
		am.unused.RemoveAt(index)
		index--
		b.unload()
	}

	if am.unused.Len() > 0 {
		return
	}
	if am.updateUnloadUnusedAssets {
		am.updateUnloadUnusedAssets = false
		if am.gcSweep != nil {
			am.gcSweep()
		}
	}
}

// RequestGCSweep asks for the GC sweep hook to run after the next tick that
// leaves nothing to reclaim.
func (am *AssetManager) RequestGCSweep() {
	am.updateUnloadUnusedAssets = true
}

// IsLoadingOrUnloading reports whether a scene operation is in flight.
// Finished operations are dropped.
func (am *AssetManager) IsLoadingOrUnloading() bool {
	for i := 0; i < len(am.progressing); i++ {
		op := am.progressing[i]
		if op != nil && !op.IsDone() {
			return true
		}
		am.progressing = append(am.progressing[:i], am.progressing[i+1:]...)
		i--
	}
	return false
}

// ClearAll force unloads every cached bundle and forgets every cache, list
// and group. Loadables handed out before stay valid objects but are detached.
func (am *AssetManager) ClearAll() {
	for _, g := range am.freeGroups {
		g.dispose()
	}
	am.freeGroups = nil
	for _, g := range append([]*Group(nil), am.groups...) {
		g.dispose()
	}
	am.groups = nil

	for _, b := range am.bundles {
		b.base().unload()
	}
	clear(am.bundles)
	clear(am.assets)
	clear(am.dependencies)
	clear(am.rawAssets)
	am.loading.Clear()
	am.unused.Clear()
	am.progressing = nil
	am.mainScene = nil
}

// LoadingCount is the number of entries on the loading list.
func (am *AssetManager) LoadingCount() int {
	return am.loading.Len()
}

// UnusedCount is the number of entries waiting for reclamation.
func (am *AssetManager) UnusedCount() int {
	return am.unused.Len()
}

func (am *AssetManager) applyManifestUpdates() {
	if am.manifestUpdates == nil {
		return
	}
	for {
		select {
		case m, ok := <-am.manifestUpdates:
			if !ok {
				am.manifestUpdates = nil
				return
			}
			am.versions.SetManifest(m)
			core.LogInfo("manifest '%s' version %d is now active", m.Name(), m.Version)
			if am.events != nil {
				am.events.Fire(core.EVENT_CODE_MANIFEST_RELOADED, am, m)
			}
		default:
			return
		}
	}
}

func (am *AssetManager) countLoad(l *loadable) {
	if l.kind == kindDependencies {
		return
	}
	am.loadTimes[l.timesKey()]++
	if am.metrics != nil {
		am.metrics.Loads.WithLabelValues(string(l.kind)).Inc()
	}
}

func (am *AssetManager) countUnload(l *loadable) {
	if l.kind == kindDependencies {
		return
	}
	am.unloadTimes[l.timesKey()]++
	if am.metrics != nil {
		am.metrics.Unloads.WithLabelValues(string(l.kind)).Inc()
	}
}

func (am *AssetManager) reportFailure(l *loadable) {
	if am.metrics != nil {
		am.metrics.Failures.WithLabelValues(string(l.kind)).Inc()
	}
	if am.events != nil {
		am.events.Fire(core.EVENT_CODE_LOAD_FAILED, am, l.self)
	}
}

func (am *AssetManager) updateGauges() {
	if am.metrics == nil {
		return
	}
	am.metrics.Loading.Set(float64(am.loading.Len()))
	am.metrics.Unused.Set(float64(am.unused.Len()))
}

// immediateContext applies ImmediateTimeout to ctx.
func (am *AssetManager) immediateContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if am.config.ImmediateTimeout > 0 {
		return am.clock.WithTimeout(ctx, am.config.ImmediateTimeout)
	}
	return context.WithCancel(ctx)
}

// immediateError turns a wait failure into the message a loadable finishes with.
func immediateError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return core.ErrLoadTimeout.Error()
	}
	return err.Error()
}

// NormalizePath turns a caller supplied asset path into its cache key.
func NormalizePath(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return "", core.ErrEmptyPath
	}
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	if p == "." || p == "/" {
		return "", core.ErrEmptyPath
	}
	return p, nil
}
