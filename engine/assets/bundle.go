package assets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spaghettifunk/anima-content/engine/archive"
	"github.com/spaghettifunk/anima-content/engine/core"
	"github.com/spaghettifunk/anima-content/engine/encrypt"
	"github.com/spaghettifunk/anima-content/engine/manifest"
	"github.com/spaghettifunk/anima-content/engine/systems"
)

// Bundle is a materialized container.
type Bundle interface {
	Loadable
	Info() *manifest.Bundle
	// Archive is nil until the bundle loaded successfully.
	Archive() *archive.Archive
}

// BundleOpener materializes a bundle by other means than the built-in local
// and download bundles. It runs on a job worker.
type BundleOpener func(ctx context.Context, url string, info *manifest.Bundle) (*archive.Archive, error)

type bundleLoadable interface {
	Bundle
	hooks
	loadImmediate(ctx context.Context) error
}

// bundle holds what every bundle kind shares.
type bundle struct {
	loadable
	info    *manifest.Bundle
	archive *archive.Archive
	// openTask opens the container. Its result is an *archive.Archive.
	openTask *systems.Task
}

func (b *bundle) Info() *manifest.Bundle {
	return b.info
}

func (b *bundle) Archive() *archive.Archive {
	return b.archive
}

func (b *bundle) onLoaded(a *archive.Archive, err error) {
	if err != nil {
		b.finishErr(err)
		return
	}
	b.archive = a
	if a == nil {
		b.finish("archive == nil")
		return
	}
	b.finish("")
}

// settleOpen finishes the bundle from a done open task.
func (b *bundle) settleOpen() {
	a, _ := b.openTask.Result().(*archive.Archive)
	b.onLoaded(a, b.openTask.Err())
}

// waitOpen blocks on the open task and settles the bundle.
func (b *bundle) waitOpen(ctx context.Context) error {
	if err := b.openTask.Wait(ctx); err != nil && ctx.Err() != nil {
		b.finish(immediateError(err))
		return err
	}
	b.settleOpen()
	return nil
}

func (b *bundle) submitOpen(filename string) {
	info := b.info
	am := b.am
	b.openTask = am.jobs.Submit(systems.JobTask{
		Name:     "open bundle " + info.NameWithHash,
		JobType:  systems.JOB_TYPE_RESOURCE_LOAD,
		Priority: systems.JOB_PRIORITY_NORMAL,
		OnStart: func(ctx context.Context, task *systems.Task) (interface{}, error) {
			return am.openArchive(filename, info, task)
		},
	})
}

func (b *bundle) onUnload() {
	delete(b.am.bundles, b.info.NameWithHash)
	adopted := b.archive != nil
	if b.archive != nil {
		if err := b.archive.Close(); err != nil {
			core.LogWarn("closing bundle %s: %s", b.info.NameWithHash, err.Error())
		}
		b.archive = nil
	}
	if b.openTask != nil && !adopted {
		// A container opened after a timed out wait was never adopted.
		discardTask(b.openTask, func(result interface{}) {
			if a, ok := result.(*archive.Archive); ok && a != nil {
				a.Close()
			}
		})
		b.openTask = nil
	}
}

// openArchive opens the container stored at filename, through the decrypting
// stream when encryption is enabled. It runs on a job worker.
func (am *AssetManager) openArchive(filename string, info *manifest.Bundle, task *systems.Task) (*archive.Archive, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	task.SetProgress(0.25)

	var a *archive.Archive
	if am.versions.EncryptionEnabled() {
		r, rerr := encrypt.NewReader(f, st.Size(), []byte(am.config.EncryptKey), []byte(info.Name))
		if rerr != nil {
			f.Close()
			return nil, rerr
		}
		a, err = archive.Open(info.NameWithHash, r, r.Size())
	} else {
		a, err = archive.Open(info.NameWithHash, f, st.Size())
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	a.Own(f)
	return a, nil
}

// discardTask releases the result of a task nobody will collect. A running
// task is waited for in the background.
func discardTask(task *systems.Task, release func(result interface{})) {
	if task.IsDone() {
		release(task.Result())
		return
	}
	go func() {
		<-task.Done()
		release(task.Result())
	}()
}

// loadBundle returns the retained bundle for info, creating it on first use.
func (am *AssetManager) loadBundle(info *manifest.Bundle) bundleLoadable {
	item, ok := am.bundles[info.NameWithHash]
	if !ok {
		url := am.versions.GetBundlePathOrURL(info)
		if am.customBundleLoader != nil {
			if opener := am.customBundleLoader(url, info); opener != nil {
				item = newCustomBundle(am, url, info, opener)
			}
		}
		if item == nil {
			if isRemote(url) {
				item = newDownloadBundle(am, url, info)
			} else {
				item = newLocalBundle(am, url, info)
			}
		}
		am.bundles[info.NameWithHash] = item
	}
	item.base().load()
	return item
}

// GetBundle returns the cached bundle for a bundle name with hash, if any.
func (am *AssetManager) GetBundle(nameWithHash string) (Bundle, bool) {
	b, ok := am.bundles[nameWithHash]
	return b, ok
}

func isRemote(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "ftp://")
}

// customBundle runs a caller supplied opener on a job.
type customBundle struct {
	bundle
	opener BundleOpener
}

func newCustomBundle(am *AssetManager, url string, info *manifest.Bundle, opener BundleOpener) *customBundle {
	b := &customBundle{opener: opener}
	b.info = info
	b.init(am, b, kindBundle, url)
	return b
}

func (b *customBundle) onLoad() {
	url, info, opener := b.path, b.info, b.opener
	b.openTask = b.am.jobs.Submit(systems.JobTask{
		Name:     "open custom bundle " + info.NameWithHash,
		JobType:  systems.JOB_TYPE_RESOURCE_LOAD,
		Priority: systems.JOB_PRIORITY_NORMAL,
		OnStart: func(ctx context.Context, task *systems.Task) (interface{}, error) {
			a, err := opener(ctx, url, info)
			if err != nil {
				return nil, fmt.Errorf("custom bundle %s: %w", info.NameWithHash, err)
			}
			return a, nil
		},
	})
}

func (b *customBundle) onUpdate() {
	if b.status != StatusLoading {
		return
	}
	b.progress = b.openTask.Progress()
	if b.openTask.IsDone() {
		b.settleOpen()
	}
}

func (b *customBundle) loadImmediate(ctx context.Context) error {
	if b.IsDone() {
		return nil
	}
	return b.waitOpen(ctx)
}
