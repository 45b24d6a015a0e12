package assets

import (
	"context"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-content/engine/core"
	"github.com/spaghettifunk/anima-content/engine/resources"
)

type groupRequest struct {
	path         string
	resourceType resources.ResourceType
	immediate    bool
}

// Group batches asset requests and holds one reference on every asset it
// loaded until the asset is released from the group or the group is closed.
// Groups come from AssetManager.NewGroup and are recycled by Close.
type Group struct {
	am *AssetManager
	id uuid.UUID

	waiting   []groupRequest
	callbacks map[string][]func(*Asset)
	held      map[string]*Asset
	onAllDone func()
}

// NewGroup returns a recycled group or a new one.
func (am *AssetManager) NewGroup() *Group {
	var g *Group
	if n := len(am.freeGroups); n > 0 {
		g = am.freeGroups[n-1]
		am.freeGroups = am.freeGroups[:n-1]
	} else {
		g = &Group{am: am}
	}
	g.id = uuid.New()
	g.callbacks = make(map[string][]func(*Asset))
	g.held = make(map[string]*Asset)
	am.groups = append(am.groups, g)
	return g
}

func (g *Group) ID() uuid.UUID {
	return g.id
}

// Add queues an async load of path. A path already queued or held is
// ignored, including its callback.
func (g *Group) Add(path string, resourceType resources.ResourceType, onDone func(*Asset)) *Group {
	return g.add(path, resourceType, false, onDone)
}

// AddImmediate queues a load of path that Load performs synchronously.
func (g *Group) AddImmediate(path string, resourceType resources.ResourceType, onDone func(*Asset)) *Group {
	return g.add(path, resourceType, true, onDone)
}

func (g *Group) add(p string, resourceType resources.ResourceType, immediate bool, onDone func(*Asset)) *Group {
	key, err := NormalizePath(p)
	if err != nil {
		core.LogError("%s", err.Error())
		return g
	}
	if _, ok := g.held[key]; ok {
		return g
	}
	for _, req := range g.waiting {
		if req.path == key {
			return g
		}
	}
	g.waiting = append(g.waiting, groupRequest{path: key, resourceType: resourceType, immediate: immediate})
	if onDone != nil {
		g.callbacks[key] = append(g.callbacks[key], onDone)
	}
	return g
}

// Load starts every queued request. onAllDone runs once every asset of the
// group is done, immediately when the group holds nothing.
func (g *Group) Load(ctx context.Context, onAllDone func()) {
	g.onAllDone = onAllDone
	waiting := g.waiting
	g.waiting = nil
	id := g.id
	onLoaded := func(a *Asset) {
		// The group may have been recycled before the asset completed.
		if g.id == id {
			g.loaded(a)
		}
	}

	for _, req := range waiting {
		// Get may have taken the path into the group since it was queued.
		if a, ok := g.held[req.path]; ok {
			if a.IsDone() {
				g.loaded(a)
			}
			continue
		}
		if req.immediate {
			a, err := g.am.Load(ctx, req.path, req.resourceType)
			if err != nil {
				continue
			}
			g.held[req.path] = a
			g.loaded(a)
			continue
		}
		a, err := g.am.LoadAsync(req.path, req.resourceType, onLoaded)
		if err != nil {
			continue
		}
		g.held[req.path] = a
	}
	g.checkAllDone()
}

func (g *Group) loaded(a *Asset) {
	if g.held == nil {
		return
	}
	fns := g.callbacks[a.Path()]
	delete(g.callbacks, a.Path())
	for _, fn := range fns {
		fn(a)
	}
	g.checkAllDone()
}

func (g *Group) checkAllDone() {
	if g.onAllDone == nil {
		return
	}
	for _, a := range g.held {
		if !a.IsDone() {
			return
		}
	}
	fn := g.onAllDone
	g.onAllDone = nil
	fn()
}

// Get returns the asset held for path, loading it synchronously into the
// group when it is not held yet.
func (g *Group) Get(ctx context.Context, path string, resourceType resources.ResourceType) (*Asset, error) {
	key, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	if a, ok := g.held[key]; ok {
		return a, nil
	}
	a, err := g.am.Load(ctx, key, resourceType)
	if err != nil {
		return nil, err
	}
	g.held[key] = a
	return a, nil
}

// Release drops the group's reference on path, or forgets the queued request.
func (g *Group) Release(path string) {
	key, err := NormalizePath(path)
	if err != nil {
		return
	}
	if a, ok := g.held[key]; ok {
		delete(g.held, key)
		delete(g.callbacks, key)
		a.Release()
		return
	}
	for i, req := range g.waiting {
		if req.path == key {
			g.waiting = append(g.waiting[:i], g.waiting[i+1:]...)
			delete(g.callbacks, key)
			return
		}
	}
}

// Len is the number of assets the group holds.
func (g *Group) Len() int {
	return len(g.held)
}

// Close releases every held asset and returns the group to the free list.
// The group must not be used afterwards.
func (g *Group) Close() {
	g.dispose()
	for i, other := range g.am.groups {
		if other == g {
			g.am.groups = append(g.am.groups[:i], g.am.groups[i+1:]...)
			break
		}
	}
	g.am.freeGroups = append(g.am.freeGroups, g)
}

func (g *Group) dispose() {
	for _, a := range g.held {
		a.Release()
	}
	g.held = nil
	g.waiting = nil
	g.callbacks = nil
	g.onAllDone = nil
}
