package manifest

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/anima-content/engine/core"
)

// Watcher reloads a manifest file whenever it changes on disk and publishes
// the new manifest on Updates. The parent directory is watched rather than
// the file so that editors replacing the file by rename are picked up.
type Watcher struct {
	path     string
	fsnotify *fsnotify.Watcher
	updates  chan *Manifest
	done     chan struct{}
	wg       sync.WaitGroup

	mutex    sync.Mutex
	isClosed bool
}

func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		fsWatch.Close()
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		fsnotify: fsWatch,
		// Only the newest manifest matters; a stale one is replaced.
		updates: make(chan *Manifest, 1),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.start()
	return w, nil
}

// Updates delivers freshly parsed manifests. The channel is closed by Close.
func (w *Watcher) Updates() <-chan *Manifest {
	return w.updates
}

func (w *Watcher) Close() error {
	w.mutex.Lock()
	if w.isClosed {
		w.mutex.Unlock()
		return errors.New("manifest watcher already closed")
	}
	w.isClosed = true
	w.mutex.Unlock()

	close(w.done)
	w.wg.Wait()
	return nil
}

func (w *Watcher) start() {
	defer w.wg.Done()
	defer close(w.updates)
	defer w.fsnotify.Close()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.reload()
			}

		case e, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("%s", e.Error())

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	m, err := LoadFile(w.path)
	if err != nil {
		// Writers may still be mid-write; the next event retries.
		core.LogWarn("manifest reload failed: %s", err.Error())
		return
	}
	for {
		select {
		case w.updates <- m:
			core.LogInfo("manifest '%s' reloaded (version %d)", m.Name(), m.Version)
			return
		default:
		}
		select {
		case <-w.updates:
		default:
		}
	}
}
