package assets

import (
	"context"

	"github.com/spaghettifunk/anima-content/engine/manifest"
)

// LocalBundle opens a container from local storage.
type LocalBundle struct {
	bundle
}

func newLocalBundle(am *AssetManager, path string, info *manifest.Bundle) *LocalBundle {
	b := &LocalBundle{}
	b.info = info
	b.init(am, b, kindBundle, path)
	return b
}

func (b *LocalBundle) onLoad() {
	b.submitOpen(b.path)
}

func (b *LocalBundle) onUpdate() {
	if b.status != StatusLoading {
		return
	}
	b.progress = b.openTask.Progress()
	if b.openTask.IsDone() {
		b.settleOpen()
	}
}

func (b *LocalBundle) loadImmediate(ctx context.Context) error {
	if b.IsDone() {
		return nil
	}
	return b.waitOpen(ctx)
}
