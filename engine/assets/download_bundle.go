package assets

import (
	"context"

	"github.com/spaghettifunk/anima-content/engine/download"
	"github.com/spaghettifunk/anima-content/engine/manifest"
	"github.com/spaghettifunk/anima-content/engine/math"
)

// DownloadBundle fetches a container into the download directory and then
// opens it like a local bundle. The first half of its progress is the
// transfer, the second half the open.
type DownloadBundle struct {
	bundle
	request  *download.Request
	savePath string
}

func newDownloadBundle(am *AssetManager, url string, info *manifest.Bundle) *DownloadBundle {
	b := &DownloadBundle{}
	b.info = info
	b.init(am, b, kindBundle, url)
	return b
}

func (b *DownloadBundle) onLoad() {
	dl := b.am.versions.GetDownloadInfo(b.info)
	dl.URL = b.path
	b.savePath = dl.SavePath
	b.request = b.am.downloader.Download(b.am.ctx, dl)
}

func (b *DownloadBundle) onUpdate() {
	if b.status != StatusLoading {
		return
	}
	if b.openTask == nil {
		b.progress = math.Lerp(0, 0.5, math.Saturate(b.request.Progress()))
		if !b.request.IsDone() {
			return
		}
		if err := b.request.Err(); err != nil {
			b.finishErr(err)
			return
		}
		b.submitOpen(b.savePath)
	}
	b.progress = math.Lerp(0.5, 1, math.Saturate(b.openTask.Progress()))
	if b.openTask.IsDone() {
		b.settleOpen()
	}
}

func (b *DownloadBundle) loadImmediate(ctx context.Context) error {
	if b.IsDone() {
		return nil
	}
	if b.openTask == nil {
		if err := b.request.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				b.finish(immediateError(err))
				return err
			}
			b.finishErr(err)
			return nil
		}
		b.submitOpen(b.savePath)
	}
	return b.waitOpen(ctx)
}

func (b *DownloadBundle) onUnload() {
	if b.request != nil {
		b.request.Cancel()
		b.request = nil
	}
	b.bundle.onUnload()
}
