package manifest

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spaghettifunk/anima-content/engine/archive"
	"github.com/spaghettifunk/anima-content/engine/encrypt"
)

// Builder packs files into bundles inside a directory and records them in a
// manifest. The content tooling and the tests produce loadable content with it.
type Builder struct {
	outDir string
	key    []byte
	m      *Manifest
	dirs   map[string]int
}

type bundleOptions struct {
	deps    []string
	variant string
	tag     string
	entries map[string][]byte
}

type BundleOption func(*bundleOptions)

// WithDeps names the bundles the new bundle depends on. They must be added first.
func WithDeps(names ...string) BundleOption {
	return func(o *bundleOptions) {
		o.deps = append(o.deps, names...)
	}
}

func WithVariant(variant string) BundleOption {
	return func(o *bundleOptions) {
		o.variant = variant
	}
}

func WithTag(tag string) BundleOption {
	return func(o *bundleOptions) {
		o.tag = tag
	}
}

// WithEntries stores extra container entries that are not assets, such as
// the sub entries of an asset ("atlas.png/frame0.png").
func WithEntries(entries map[string][]byte) BundleOption {
	return func(o *bundleOptions) {
		o.entries = entries
	}
}

func NewBuilder(outDir string, version int) *Builder {
	return &Builder{
		outDir: outDir,
		m:      &Manifest{Version: version},
		dirs:   make(map[string]int),
	}
}

// Encrypt seals every bundle and raw file written afterwards with key.
func (b *Builder) Encrypt(key string) *Builder {
	b.key = []byte(key)
	return b
}

// AddBundle packs files, keyed by asset path, into a new bundle. Entries are
// stored under the base name of their asset path.
func (b *Builder) AddBundle(name string, files map[string][]byte, opts ...BundleOption) (*Bundle, error) {
	o := &bundleOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.variant != "" {
		name = name + "." + o.variant
	}
	if b.bundleIndex(name) >= 0 {
		return nil, fmt.Errorf("bundle '%s' added twice", name)
	}

	entries := make(map[string][]byte, len(files)+len(o.entries))
	for p, data := range files {
		entries[path.Base(p)] = data
	}
	for n, data := range o.entries {
		entries[n] = data
	}
	var buf bytes.Buffer
	if err := archive.Write(&buf, entries); err != nil {
		return nil, err
	}

	bundle := &Bundle{
		ID:      len(b.m.Bundles),
		Name:    name,
		Tag:     o.tag,
		Variant: o.variant,
	}
	// Dependencies are added first, so their Deps already hold their closure.
	seen := make(map[int]bool)
	for _, dep := range o.deps {
		idx := b.bundleIndex(dep)
		if idx < 0 {
			return nil, fmt.Errorf("bundle '%s' depends on unknown bundle '%s'", name, dep)
		}
		for _, id := range append([]int{idx}, b.m.Bundles[idx].Deps...) {
			if !seen[id] {
				seen[id] = true
				bundle.Deps = append(bundle.Deps, id)
			}
		}
	}

	data := buf.Bytes()
	if b.key != nil {
		sealed, err := encrypt.Seal(data, b.key, []byte(name))
		if err != nil {
			return nil, err
		}
		data = sealed
	}
	if err := b.store(bundle, name+".bundle", data); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		b.addAsset(p, bundle.ID)
	}
	return bundle, nil
}

// AddRaw stores data as a raw file loadable at assetPath.
func (b *Builder) AddRaw(assetPath string, data []byte) (*Bundle, error) {
	name := assetPath
	if b.bundleIndex(name) >= 0 {
		return nil, fmt.Errorf("raw file '%s' added twice", name)
	}
	bundle := &Bundle{
		ID:    len(b.m.Bundles),
		Name:  name,
		IsRaw: true,
	}
	stored := append([]byte(nil), data...)
	if b.key != nil {
		encrypt.XORKeyStream(stored, b.key)
	}
	if err := b.store(bundle, path.Base(assetPath), stored); err != nil {
		return nil, err
	}
	b.addAsset(assetPath, bundle.ID)
	return bundle, nil
}

func (b *Builder) store(bundle *Bundle, file string, data []byte) error {
	sum := md5.Sum(data)
	bundle.Hash = hex.EncodeToString(sum[:])
	bundle.Size = int64(len(data))
	ext := path.Ext(file)
	bundle.NameWithHash = strings.TrimSuffix(file, ext) + "_" + bundle.Hash + ext

	if err := os.MkdirAll(b.outDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(b.outDir, bundle.NameWithHash), data, 0o644); err != nil {
		return err
	}
	b.m.Bundles = append(b.m.Bundles, bundle)
	return nil
}

func (b *Builder) addAsset(assetPath string, bundleID int) {
	dir := path.Dir(assetPath)
	idx, ok := b.dirs[dir]
	if !ok {
		idx = len(b.m.Dirs)
		b.dirs[dir] = idx
		b.m.Dirs = append(b.m.Dirs, dir)
	}
	b.m.Assets = append(b.m.Assets, &Asset{
		ID:     len(b.m.Assets),
		Dir:    idx,
		Name:   path.Base(assetPath),
		Bundle: bundleID,
	})
}

func (b *Builder) bundleIndex(name string) int {
	for i, bundle := range b.m.Bundles {
		if bundle.Name == name {
			return i
		}
	}
	return -1
}

// Build indexes the manifest built so far.
func (b *Builder) Build() (*Manifest, error) {
	if err := b.m.index(); err != nil {
		return nil, err
	}
	return b.m, nil
}

// WriteFile builds the manifest and saves it at filename.
func (b *Builder) WriteFile(filename string) (*Manifest, error) {
	m, err := b.Build()
	if err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := m.Save(f); err != nil {
		return nil, err
	}
	base := filepath.Base(filename)
	m.name = strings.TrimSuffix(base, filepath.Ext(base))
	return m, nil
}
