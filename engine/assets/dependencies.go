package assets

import (
	"context"

	"github.com/spaghettifunk/anima-content/engine/archive"
)

// Dependencies resolves an asset path to its bundle and every bundle that
// bundle depends on, and reports them as one load. The first bundle is the
// main bundle.
type Dependencies struct {
	loadable
	mainBundle bundleLoadable
	bundles    []bundleLoadable
}

func (am *AssetManager) loadDependencies(path string) *Dependencies {
	item, ok := am.dependencies[path]
	if !ok {
		item = &Dependencies{}
		item.init(am, item, kindDependencies, path)
		am.dependencies[path] = item
	}
	item.load()
	return item
}

// Archive is the container of the main bundle.
func (d *Dependencies) Archive() *archive.Archive {
	if d.mainBundle == nil {
		return nil
	}
	return d.mainBundle.Archive()
}

// Bundles lists the main bundle followed by its dependencies.
func (d *Dependencies) Bundles() []Bundle {
	out := make([]Bundle, len(d.bundles))
	for i, b := range d.bundles {
		out[i] = b
	}
	return out
}

func (d *Dependencies) onLoad() {
	info, infos, ok := d.am.versions.GetDependencies(d.path)
	if !ok {
		d.finish("Dependencies not found")
		return
	}
	if info == nil {
		d.finish("info == nil")
		return
	}

	d.mainBundle = d.am.loadBundle(info)
	d.bundles = append(d.bundles, d.mainBundle)
	for _, item := range infos {
		d.bundles = append(d.bundles, d.am.loadBundle(item))
	}
}

func (d *Dependencies) onUpdate() {
	if d.status != StatusLoading {
		return
	}

	total := 0.0
	allDone := true
	for _, child := range d.bundles {
		total += child.Progress()
		if child.Error() != "" {
			d.status = StatusFailedToLoad
			d.err = child.Error()
			d.progress = 1
			return
		}
		if !child.IsDone() {
			allDone = false
		}
	}

	d.progress = total / float64(len(d.bundles)) * 0.5
	if !allDone {
		return
	}

	if d.Archive() == nil {
		d.finish("archive == nil")
		return
	}
	d.finish("")
}

// loadImmediate drives every bundle to completion and settles the aggregate.
func (d *Dependencies) loadImmediate(ctx context.Context) error {
	if d.IsDone() {
		return nil
	}
	for _, b := range d.bundles {
		if err := b.loadImmediate(ctx); err != nil {
			d.onUpdate()
			return err
		}
	}
	d.onUpdate()
	return nil
}

func (d *Dependencies) onUnload() {
	for _, item := range d.bundles {
		if item.Error() == "" {
			item.Release()
		}
	}
	d.bundles = nil
	d.mainBundle = nil
	delete(d.am.dependencies, d.path)
}
