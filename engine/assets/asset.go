package assets

import (
	"context"
	"fmt"
	"path"

	"github.com/spaghettifunk/anima-content/engine/core"
	"github.com/spaghettifunk/anima-content/engine/math"
	"github.com/spaghettifunk/anima-content/engine/resources"
	"github.com/spaghettifunk/anima-content/engine/systems"
)

// Asset is a decoded payload extracted from a bundle.
type Asset struct {
	loadable
	resourceType  resources.ResourceType
	customType    string
	params        interface{}
	withSubAssets bool

	payload   *resources.Resource
	subAssets []*resources.Resource

	deps      *Dependencies
	task      *systems.Task
	completed callbackSlot[*Asset]
}

// assetRequest is how a load asks for the asset to be decoded.
type assetRequest struct {
	resourceType  resources.ResourceType
	customType    string
	params        interface{}
	withSubAssets bool
}

type extraction struct {
	payload   *resources.Resource
	subAssets []*resources.Resource
}

// LoadAsync starts loading the asset at path decoded as resourceType. onDone
// runs on a later UpdateAll, also when the load fails.
func (am *AssetManager) LoadAsync(path string, resourceType resources.ResourceType, onDone func(*Asset)) (*Asset, error) {
	return am.loadAsset(path, assetRequest{resourceType: resourceType}, onDone)
}

// LoadAsyncWithParams is LoadAsync with decoder parameters, such as
// *resources.ImageResourceParams. Params only apply to the first load of path.
func (am *AssetManager) LoadAsyncWithParams(path string, resourceType resources.ResourceType, params interface{}, onDone func(*Asset)) (*Asset, error) {
	return am.loadAsset(path, assetRequest{resourceType: resourceType, params: params}, onDone)
}

// LoadAsyncCustom loads the asset at path through the loader registered for
// customType with the resource system.
func (am *AssetManager) LoadAsyncCustom(path, customType string, params interface{}, onDone func(*Asset)) (*Asset, error) {
	if customType == "" {
		return nil, fmt.Errorf("custom type for '%s' is empty", path)
	}
	return am.loadAsset(path, assetRequest{
		resourceType: resources.ResourceTypeCustom,
		customType:   customType,
		params:       params,
	}, onDone)
}

// LoadCustom is LoadAsyncCustom that blocks like Load.
func (am *AssetManager) LoadCustom(ctx context.Context, path, customType string, params interface{}) (*Asset, error) {
	a, err := am.LoadAsyncCustom(path, customType, params, nil)
	if err != nil {
		return nil, err
	}
	a.LoadImmediate(ctx)
	return a, nil
}

// Load loads the asset and blocks until it is decoded, ctx ends or the
// immediate timeout passes. A failed load is reported through Error.
func (am *AssetManager) Load(ctx context.Context, path string, resourceType resources.ResourceType) (*Asset, error) {
	a, err := am.loadAsset(path, assetRequest{resourceType: resourceType}, nil)
	if err != nil {
		return nil, err
	}
	a.LoadImmediate(ctx)
	return a, nil
}

// LoadWithSubAssets is Load that also decodes the entries stored below the asset.
func (am *AssetManager) LoadWithSubAssets(ctx context.Context, path string, resourceType resources.ResourceType) (*Asset, error) {
	a, err := am.loadAsset(path, assetRequest{resourceType: resourceType, withSubAssets: true}, nil)
	if err != nil {
		return nil, err
	}
	a.LoadImmediate(ctx)
	return a, nil
}

func (am *AssetManager) LoadWithSubAssetsAsync(path string, resourceType resources.ResourceType, onDone func(*Asset)) (*Asset, error) {
	return am.loadAsset(path, assetRequest{resourceType: resourceType, withSubAssets: true}, onDone)
}

func (am *AssetManager) loadAsset(p string, req assetRequest, onDone func(*Asset)) (*Asset, error) {
	key, err := NormalizePath(p)
	if err != nil {
		core.LogError("%s", err.Error())
		return nil, err
	}

	item, ok := am.assets[key]
	if !ok {
		item = &Asset{
			resourceType: req.resourceType,
			customType:   req.customType,
			params:       req.params,
		}
		item.init(am, item, kindAsset, key)
		am.assets[key] = item
	}
	if req.withSubAssets {
		item.withSubAssets = true
	}

	item.completed.add(onDone)
	item.load()
	return item, nil
}

// Get returns the decoded payload, nil until the asset loaded.
func (a *Asset) Get() *resources.Resource {
	return a.payload
}

// As returns the payload data of a as T.
func As[T any](a *Asset) (T, bool) {
	var zero T
	if a == nil || a.payload == nil {
		return zero, false
	}
	v, ok := a.payload.Data.(T)
	return v, ok
}

func (a *Asset) ResourceType() resources.ResourceType {
	return a.resourceType
}

// CustomType is the custom loader type the asset decodes with, if any.
func (a *Asset) CustomType() string {
	return a.customType
}

func (a *Asset) SubAssets() []*resources.Resource {
	return a.subAssets
}

// SubAsset finds a sub-asset by its entry name or base name.
func (a *Asset) SubAsset(name string) *resources.Resource {
	for _, s := range a.subAssets {
		if s.Name == name || path.Base(s.Name) == name {
			return s
		}
	}
	core.LogWarn("Not found sub asset object : %s", name)
	return nil
}

// OnLoaded finishes the asset with payload. A nil payload fails the load.
func (a *Asset) OnLoaded(payload *resources.Resource) {
	a.payload = payload
	if payload == nil {
		a.finish("asset == nil")
		return
	}
	a.finish("")
}

// LoadImmediate blocks until the asset is done, ctx ends or the immediate
// timeout passes. On timeout the asset fails with core.ErrLoadTimeout.
func (a *Asset) LoadImmediate(ctx context.Context) {
	if a.IsDone() {
		return
	}
	ctx, cancel := a.am.immediateContext(ctx)
	defer cancel()

	if a.status == StatusDependentLoading {
		if err := a.deps.loadImmediate(ctx); err != nil {
			a.finish(immediateError(err))
			return
		}
		a.updateDependencies()
	}
	if a.status == StatusLoading && a.task != nil {
		if err := a.task.Wait(ctx); err != nil && ctx.Err() != nil {
			a.finish(immediateError(err))
			return
		}
		a.updateLoading()
	}
}

func (a *Asset) onLoad() {
	a.deps = a.am.loadDependencies(a.path)
	a.status = StatusDependentLoading
}

func (a *Asset) onUpdate() {
	switch a.status {
	case StatusDependentLoading:
		a.updateDependencies()
	case StatusLoading:
		a.updateLoading()
	}
}

func (a *Asset) updateDependencies() {
	if a.deps == nil {
		a.finish("dependencies == nil")
		return
	}
	a.progress = a.deps.Progress()
	if a.deps.Error() != "" {
		a.finish(a.deps.Error())
		return
	}
	if !a.deps.IsDone() {
		return
	}

	a.task = a.am.submitExtraction(a)
	a.status = StatusLoading
	a.progress = 0.5
}

func (a *Asset) updateLoading() {
	if a.task == nil {
		a.finish("request == nil")
		return
	}
	a.progress = math.Lerp(0.5, 1, math.Saturate(a.task.Progress()))
	if !a.task.IsDone() {
		return
	}
	if err := a.task.Err(); err != nil {
		a.finishErr(err)
		return
	}
	res, _ := a.task.Result().(*extraction)
	if res == nil {
		a.OnLoaded(nil)
		return
	}
	a.subAssets = res.subAssets
	a.OnLoaded(res.payload)
}

// submitExtraction decodes the asset payload out of the main bundle on a job.
func (am *AssetManager) submitExtraction(a *Asset) *systems.Task {
	arc := a.deps.Archive()
	name := path.Base(a.path)
	resourceType := a.resourceType
	customType := a.customType
	params := a.params
	withSubAssets := a.withSubAssets
	rs := am.resources

	return am.jobs.Submit(systems.JobTask{
		Name:     "extract " + a.path,
		JobType:  systems.JOB_TYPE_RESOURCE_LOAD,
		Priority: systems.JOB_PRIORITY_NORMAL,
		OnStart: func(ctx context.Context, task *systems.Task) (interface{}, error) {
			if arc == nil {
				return nil, fmt.Errorf("archive == nil")
			}
			data, err := arc.ReadAll(name)
			if err != nil {
				return nil, err
			}
			task.SetProgress(0.5)
			var payload *resources.Resource
			if customType != "" {
				payload, err = rs.DecodeCustom(name, customType, data, params)
			} else {
				payload, err = rs.Decode(name, resourceType, data, params)
			}
			if err != nil {
				return nil, err
			}
			out := &extraction{payload: payload}
			if withSubAssets {
				for _, entry := range arc.SubEntries(name) {
					raw, err := arc.ReadAll(entry)
					if err != nil {
						return nil, err
					}
					sub, err := rs.Decode(entry, resources.ResourceTypeNone, raw, nil)
					if err != nil {
						return nil, err
					}
					out.subAssets = append(out.subAssets, sub)
				}
			}
			return out, nil
		},
	})
}

func (a *Asset) onComplete() {
	a.completed.invoke(a)
}

func (a *Asset) onUnused() {
	a.completed.clear()
}

func (a *Asset) onUnload() {
	if a.deps != nil {
		if a.deps.Error() == "" {
			a.deps.Release()
		}
		a.deps = nil
	}
	a.unloadPayloads()
	if a.task != nil {
		// A payload decoded after a timed out wait was never adopted.
		if a.err == core.ErrLoadTimeout.Error() {
			rs := a.am.resources
			discardTask(a.task, func(result interface{}) {
				if res, ok := result.(*extraction); ok && res != nil {
					rs.Unload(res.payload)
					for _, s := range res.subAssets {
						rs.Unload(s)
					}
				}
			})
		}
		a.task = nil
	}
	delete(a.am.assets, a.path)
}

func (a *Asset) unloadPayloads() {
	if a.payload != nil {
		if err := a.am.resources.Unload(a.payload); err != nil {
			core.LogWarn("unloading %s: %s", a.path, err.Error())
		}
		a.payload = nil
	}
	for _, s := range a.subAssets {
		a.am.resources.Unload(s)
	}
	a.subAssets = nil
}
