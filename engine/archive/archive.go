package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"

	"github.com/spaghettifunk/anima-content/engine/core"
)

// ErrClosed is returned by reads on a closed archive.
var ErrClosed = errors.New("archive closed")

// Archive is an opened bundle container. Entries are addressed either by their
// full name inside the container or by their base file name, which is how
// assets are looked up. Entries below "<name>/" are the sub-assets of name.
// Reads may run on job workers while the owning bundle closes the archive;
// Close waits for reads in progress.
type Archive struct {
	mu      sync.RWMutex
	closed  bool
	name    string
	reader  *zip.Reader
	byName  map[string]*zip.File
	byBase  map[string]*zip.File
	closers []io.Closer
}

// Open reads the container directory from r. The archive does not own r;
// use Own to hand it closers that Close should release.
func Open(name string, r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle '%s': %w", name, err)
	}

	a := &Archive{
		name:   name,
		reader: zr,
		byName: make(map[string]*zip.File, len(zr.File)),
		byBase: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		a.byName[f.Name] = f
		base := path.Base(f.Name)
		if _, ok := a.byBase[base]; !ok {
			a.byBase[base] = f
		}
	}
	return a, nil
}

// OpenFile opens the container stored at filename. The file is closed with the archive.
func OpenFile(filename string) (*Archive, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	a, err := Open(path.Base(filename), f, st.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	a.Own(f)
	return a, nil
}

func (a *Archive) Name() string {
	return a.name
}

// Own registers closers released by Close, in reverse order.
func (a *Archive) Own(closers ...io.Closer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, closers...)
}

// Names lists every entry name, sorted.
func (a *Archive) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.byName))
	for n := range a.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (a *Archive) Contains(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lookup(name) != nil
}

// ReadAll returns the decompressed bytes of the entry.
func (a *Archive) ReadAll(name string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, fmt.Errorf("reading '%s' from bundle '%s': %w", name, a.name, ErrClosed)
	}
	f := a.lookup(name)
	if f == nil {
		return nil, fmt.Errorf("'%s' in bundle '%s': %w", name, a.name, core.ErrNotFound)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// SubEntries lists the entries stored below name, sorted.
func (a *Archive) SubEntries(name string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	f := a.lookup(name)
	prefix := name
	if f != nil {
		prefix = f.Name
	}
	prefix += "/"

	var out []string
	for n := range a.byName {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	a.byName = nil
	a.byBase = nil
	return first
}

// lookup expects a.mu held.
func (a *Archive) lookup(name string) *zip.File {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if f, ok := a.byName[name]; ok {
		return f
	}
	return a.byBase[path.Base(name)]
}
