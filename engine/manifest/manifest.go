package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spaghettifunk/anima-content/engine/core"
)

// Asset is one loadable path. Dir indexes Manifest.Dirs, Bundle indexes
// Manifest.Bundles and Deps index Manifest.Assets.
type Asset struct {
	ID     int    `json:"id"`
	Dir    int    `json:"dir"`
	Name   string `json:"name"`
	Deps   []int  `json:"deps"`
	Bundle int    `json:"bundle"`

	path string
}

// Path is the full asset path, "<dir>/<name>".
func (a *Asset) Path() string {
	return a.path
}

// Bundle describes one packaged container.
type Bundle struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Hash string `json:"hash"`
	// Deps index Manifest.Bundles.
	Deps          []int  `json:"deps"`
	IsRaw         bool   `json:"isRaw"`
	CopyToPackage bool   `json:"copyToPackage"`
	NameWithHash  string `json:"nameWithAppendHash"`
	Tag           string `json:"tag"`
	Variant       string `json:"variant"`
}

func (b *Bundle) HasTag() bool {
	return b.Tag != ""
}

func (b *Bundle) IsVariant() bool {
	return b.Variant != ""
}

// Manifest maps asset paths to bundles and bundles to their dependencies.
// It is immutable once parsed.
type Manifest struct {
	Version int       `json:"version"`
	Dirs    []string  `json:"dirs"`
	Assets  []*Asset  `json:"assets"`
	Bundles []*Bundle `json:"bundles"`

	name           string
	nameWithAssets map[string]*Asset
	nameWithBundle map[string]*Bundle
	dirWithAssets  map[string][]int
}

// Parse decodes a manifest and builds its lookup tables.
func Parse(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.index(); err != nil {
		return nil, err
	}
	return m, nil
}

func Read(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadFile reads the manifest stored at path. The manifest takes the file
// name without extension as its name.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	base := filepath.Base(path)
	m.name = strings.TrimSuffix(base, filepath.Ext(base))
	return m, nil
}

// Save writes the manifest as JSON.
func (m *Manifest) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func (m *Manifest) Name() string {
	return m.name
}

func (m *Manifest) index() error {
	m.nameWithAssets = make(map[string]*Asset, len(m.Assets))
	m.nameWithBundle = make(map[string]*Bundle, len(m.Bundles))
	m.dirWithAssets = make(map[string][]int)

	for i, b := range m.Bundles {
		if b == nil {
			return fmt.Errorf("manifest bundle %d is null", i)
		}
		for _, d := range b.Deps {
			if d < 0 || d >= len(m.Bundles) {
				return fmt.Errorf("bundle '%s' has dependency %d out of range", b.Name, d)
			}
		}
		m.nameWithBundle[b.Name] = b
	}

	for _, dir := range m.Dirs {
		m.addDir(dir)
	}

	for i, a := range m.Assets {
		if a == nil {
			return fmt.Errorf("manifest asset %d is null", i)
		}
		if a.Dir < 0 || a.Dir >= len(m.Dirs) {
			return fmt.Errorf("asset '%s' has directory %d out of range", a.Name, a.Dir)
		}
		if a.Bundle < 0 || a.Bundle >= len(m.Bundles) {
			return fmt.Errorf("asset '%s' has bundle %d out of range", a.Name, a.Bundle)
		}
		dir := m.Dirs[a.Dir]
		a.path = dir + "/" + a.Name
		m.nameWithAssets[a.path] = a
		m.dirWithAssets[dir] = append(m.dirWithAssets[dir], i)
	}
	return nil
}

// addDir registers dir and every parent of it.
func (m *Manifest) addDir(dir string) {
	for {
		if _, ok := m.dirWithAssets[dir]; !ok {
			m.dirWithAssets[dir] = nil
		}
		pos := strings.LastIndexByte(dir, '/')
		if pos == -1 {
			return
		}
		dir = dir[:pos]
	}
}

func (m *Manifest) Contains(path string) bool {
	_, ok := m.nameWithAssets[path]
	return ok
}

func (m *Manifest) GetAsset(path string) (*Asset, bool) {
	a, ok := m.nameWithAssets[path]
	return a, ok
}

// GetBundle returns the bundle that stores the asset at path, or nil.
func (m *Manifest) GetBundle(path string) *Bundle {
	a, ok := m.nameWithAssets[path]
	if !ok {
		return nil
	}
	return m.Bundles[a.Bundle]
}

func (m *Manifest) GetBundleByID(id int) *Bundle {
	if id < 0 || id >= len(m.Bundles) {
		return nil
	}
	return m.Bundles[id]
}

func (m *Manifest) GetBundleByName(name string) *Bundle {
	return m.nameWithBundle[name]
}

// GetDependencies returns every bundle bundle depends on, directly or through
// other dependencies, each once and in depth-first order. A dependency built
// for a variant other than currentVariant is swapped for the bundle of the
// same name built for currentVariant, when there is one.
func (m *Manifest) GetDependencies(bundle *Bundle, currentVariant string) []*Bundle {
	if bundle == nil {
		return []*Bundle{}
	}
	out := make([]*Bundle, 0, len(bundle.Deps))
	seen := map[*Bundle]bool{bundle: true}
	var walk func(b *Bundle)
	walk = func(b *Bundle) {
		for _, id := range b.Deps {
			dep := m.variantOf(m.Bundles[id], currentVariant)
			if seen[dep] {
				continue
			}
			seen[dep] = true
			out = append(out, dep)
			walk(dep)
		}
	}
	walk(bundle)
	return out
}

func (m *Manifest) variantOf(dep *Bundle, currentVariant string) *Bundle {
	if !dep.IsVariant() || dep.Variant == currentVariant {
		return dep
	}
	name := strings.Replace(dep.Name, "."+dep.Variant, "."+currentVariant, 1)
	if swapped := m.GetBundleByName(name); swapped != nil {
		return swapped
	}
	core.LogError("Variant Bundle Not Exist: %s, Variant: %s", name, currentVariant)
	return dep
}

// GetAssetDependencies returns the asset paths the asset at path depends on.
func (m *Manifest) GetAssetDependencies(path string) []string {
	a, ok := m.nameWithAssets[path]
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(a.Deps))
	for _, id := range a.Deps {
		if id >= 0 && id < len(m.Assets) {
			out = append(out, m.Assets[id].path)
		}
	}
	return out
}

func (m *Manifest) IsDirectory(path string) bool {
	_, ok := m.dirWithAssets[path]
	return ok
}

// GetAssetsWithDirectory lists the assets stored directly in dir, or in dir
// and all of its sub directories when recursive is set.
func (m *Manifest) GetAssetsWithDirectory(dir string, recursive bool) []string {
	if !recursive {
		ids := m.dirWithAssets[dir]
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			out = append(out, m.Assets[id].path)
		}
		return out
	}

	var out []string
	for item := range m.dirWithAssets {
		if item == dir || strings.HasPrefix(item, dir+"/") {
			out = append(out, m.GetAssetsWithDirectory(item, false)...)
		}
	}
	if out == nil {
		return []string{}
	}
	sort.Strings(out)
	return out
}
