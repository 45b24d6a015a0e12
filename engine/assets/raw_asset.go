package assets

import (
	"context"
	"os"

	"github.com/spaghettifunk/anima-content/engine/core"
	"github.com/spaghettifunk/anima-content/engine/download"
	"github.com/spaghettifunk/anima-content/engine/encrypt"
	"github.com/spaghettifunk/anima-content/engine/manifest"
)

// RawAsset is a file shipped as its own raw bundle and handed out as bytes.
// Raw files have no dependencies.
type RawAsset struct {
	loadable
	info      *manifest.Bundle
	request   *download.Request
	bytes     []byte
	completed callbackSlot[*RawAsset]
}

// LoadRawAsync starts loading the raw file at path. onDone runs on a later
// UpdateAll, also when the load fails.
func (am *AssetManager) LoadRawAsync(path string, onDone func(*RawAsset)) (*RawAsset, error) {
	return am.loadRaw(path, onDone)
}

// LoadRaw loads the raw file and blocks until its bytes are available, ctx
// ends or the immediate timeout passes.
func (am *AssetManager) LoadRaw(ctx context.Context, path string) (*RawAsset, error) {
	r, err := am.loadRaw(path, nil)
	if err != nil {
		return nil, err
	}
	r.LoadImmediate(ctx)
	return r, nil
}

func (am *AssetManager) loadRaw(p string, onDone func(*RawAsset)) (*RawAsset, error) {
	key, err := NormalizePath(p)
	if err != nil {
		core.LogError("%s", err.Error())
		return nil, err
	}
	item, ok := am.rawAssets[key]
	if !ok {
		item = &RawAsset{}
		item.init(am, item, kindRawAsset, key)
		am.rawAssets[key] = item
	}
	item.completed.add(onDone)
	item.load()
	return item, nil
}

func (r *RawAsset) Bytes() []byte {
	return r.bytes
}

// Text returns the bytes as a string, empty when there are none.
func (r *RawAsset) Text() string {
	if len(r.bytes) == 0 {
		return ""
	}
	return string(r.bytes)
}

func (r *RawAsset) Info() *manifest.Bundle {
	return r.info
}

// LoadImmediate waits for an outstanding download.
func (r *RawAsset) LoadImmediate(ctx context.Context) {
	if r.IsDone() {
		return
	}
	if r.request == nil {
		r.finish("request == nil")
		return
	}
	ctx, cancel := r.am.immediateContext(ctx)
	defer cancel()
	if err := r.request.Wait(ctx); err != nil && ctx.Err() != nil {
		r.finish(immediateError(err))
		return
	}
	r.loadFinish(r.request.Err())
}

func (r *RawAsset) onLoad() {
	r.info = r.am.versions.GetBundle(r.path)
	if r.info == nil {
		r.finish("File not found.")
		return
	}
	if !r.info.IsRaw {
		r.finish("Cannot load asset bundle file using RawAsset")
		return
	}
	if r.am.versions.IsDownloaded(r.info) {
		r.loadFinish(nil)
		return
	}

	dl := r.am.versions.GetDownloadInfo(r.info)
	dl.URL = r.am.versions.GetBundlePathOrURL(r.info)
	r.request = r.am.downloader.Download(r.am.ctx, dl)
	r.status = StatusLoading
}

func (r *RawAsset) onUpdate() {
	if r.status != StatusLoading {
		return
	}
	if r.request == nil {
		r.finish("request == nil")
		return
	}
	r.progress = r.request.Progress()
	if !r.request.IsDone() {
		return
	}
	r.loadFinish(r.request.Err())
}

func (r *RawAsset) loadFinish(err error) {
	if err != nil {
		r.finishErr(err)
		return
	}
	data, err := os.ReadFile(r.am.versions.GetBundlePathOrURL(r.info))
	if err != nil {
		r.finishErr(err)
		return
	}
	if r.am.versions.EncryptionEnabled() {
		encrypt.XORKeyStream(data, []byte(r.am.config.EncryptKey))
	}
	r.bytes = data
	r.finish("")
}

func (r *RawAsset) onComplete() {
	r.completed.invoke(r)
}

func (r *RawAsset) onUnused() {
	r.completed.clear()
}

func (r *RawAsset) onUnload() {
	if r.request != nil {
		r.request.Cancel()
		r.request = nil
	}
	r.bytes = nil
	delete(r.am.rawAssets, r.path)
}
