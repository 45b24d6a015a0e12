package versions

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/anima-content/engine/core"
	"github.com/spaghettifunk/anima-content/engine/download"
	"github.com/spaghettifunk/anima-content/engine/manifest"
)

// VerifyMode selects how a downloaded bundle is checked.
type VerifyMode int

const (
	// VerifySize accepts a file whose size matches. Bundle names carry their
	// hash, so this is usually enough.
	VerifySize VerifyMode = iota
	// VerifyHash compares the MD5 of the file with the manifest hash.
	VerifyHash
)

func ParseVerifyMode(s string) (VerifyMode, error) {
	switch strings.ToLower(s) {
	case "", "size":
		return VerifySize, nil
	case "hash":
		return VerifyHash, nil
	default:
		return VerifySize, fmt.Errorf("unknown verify mode '%s'", s)
	}
}

// Config holds the player build settings.
type Config struct {
	EncryptionEnabled bool
	OfflineMode       bool
	CurrentVariant    string
	// StreamingAssets names the bundles shipped in the read-only player package.
	StreamingAssets []string
	// PlayerDataPath is the read-only directory holding the packaged bundles.
	PlayerDataPath string
	VerifyMode     VerifyMode
	// VerifyWorkers bounds the files hashed in parallel by Verify.
	VerifyWorkers int
}

// Paths is the part of the downloader the registry resolves locations with.
type Paths interface {
	GetDownloadDataPath(file string) string
	GetDownloadURL(file string) string
}

// Versions is the registry of what the running build has: the manifest, the
// bundles in the player package, and the global flags. It is read from job
// workers and written from the driver goroutine, so it is guarded.
type Versions struct {
	mu              sync.RWMutex
	config          Config
	manifest        *manifest.Manifest
	streamingAssets map[string]struct{}
	paths           Paths
}

func New(config Config, m *manifest.Manifest, paths Paths) *Versions {
	if config.VerifyWorkers <= 0 {
		config.VerifyWorkers = 4
	}
	v := &Versions{
		config:          config,
		manifest:        m,
		streamingAssets: make(map[string]struct{}, len(config.StreamingAssets)),
		paths:           paths,
	}
	for _, name := range config.StreamingAssets {
		v.streamingAssets[name] = struct{}{}
	}
	return v
}

func (v *Versions) Manifest() *manifest.Manifest {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.manifest
}

// SetManifest swaps the manifest. Loads already in flight keep the records
// they resolved.
func (v *Versions) SetManifest(m *manifest.Manifest) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.manifest = m
}

func (v *Versions) EncryptionEnabled() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.config.EncryptionEnabled
}

func (v *Versions) OfflineMode() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.config.OfflineMode
}

func (v *Versions) CurrentVariant() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.config.CurrentVariant
}

func (v *Versions) SetCurrentVariant(variant string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.config.CurrentVariant = variant
}

func (v *Versions) IsStreamingAsset(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.streamingAssets[name]
	return ok
}

func (v *Versions) Contains(path string) bool {
	m := v.Manifest()
	return m != nil && m.Contains(path)
}

// GetBundle returns the bundle storing the asset at path, falling back to a
// bundle named path.
func (v *Versions) GetBundle(path string) *manifest.Bundle {
	m := v.Manifest()
	if m == nil {
		return nil
	}
	if b := m.GetBundle(path); b != nil {
		return b
	}
	return m.GetBundleByName(path)
}

// GetDependencies resolves the bundle of the asset at path and every bundle it
// depends on, directly or not, for the current variant.
func (v *Versions) GetDependencies(path string) (*manifest.Bundle, []*manifest.Bundle, bool) {
	m := v.Manifest()
	if m == nil || !m.Contains(path) {
		return nil, nil, false
	}
	main := m.GetBundle(path)
	return main, m.GetDependencies(main, v.CurrentVariant()), true
}

// GetPlayerDataPath returns where a packaged bundle lives.
func (v *Versions) GetPlayerDataPath(file string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return filepath.Join(v.config.PlayerDataPath, filepath.FromSlash(file))
}

// GetBundlePathOrURL returns where bundle is read from: the player package for
// packaged bundles and in offline mode, the download directory once it is
// there, else its remote URL.
func (v *Versions) GetBundlePathOrURL(bundle *manifest.Bundle) string {
	name := bundle.NameWithHash
	if v.IsStreamingAsset(name) || v.OfflineMode() {
		return v.GetPlayerDataPath(name)
	}
	if v.IsDownloaded(bundle) {
		return v.paths.GetDownloadDataPath(name)
	}
	return v.paths.GetDownloadURL(name)
}

// IsDownloaded reports whether bundle can be read without a transfer.
func (v *Versions) IsDownloaded(bundle *manifest.Bundle) bool {
	if bundle == nil {
		return false
	}
	if v.OfflineMode() || v.IsStreamingAsset(bundle.NameWithHash) {
		return true
	}
	return v.verifyFile(v.paths.GetDownloadDataPath(bundle.NameWithHash), bundle)
}

func (v *Versions) verifyFile(path string, bundle *manifest.Bundle) bool {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return false
	}
	v.mu.RLock()
	mode := v.config.VerifyMode
	v.mu.RUnlock()

	if st.Size() == bundle.Size && mode == VerifySize {
		return true
	}
	if st.Size() < bundle.Size {
		return false
	}
	sum, err := ComputeHash(path)
	if err != nil {
		core.LogWarn("failed to hash '%s': %s", path, err.Error())
		return false
	}
	return strings.EqualFold(sum, bundle.Hash)
}

// GetDownloadInfo describes the transfer of file. The hash is only checked in
// VerifyHash mode.
func (v *Versions) GetDownloadInfo(bundle *manifest.Bundle) download.Info {
	v.mu.RLock()
	mode := v.config.VerifyMode
	v.mu.RUnlock()

	info := download.Info{
		URL:      v.paths.GetDownloadURL(bundle.NameWithHash),
		SavePath: v.paths.GetDownloadDataPath(bundle.NameWithHash),
		Size:     bundle.Size,
	}
	if mode == VerifyHash {
		info.Hash = bundle.Hash
	}
	return info
}

// Verify checks bundles in parallel and returns the download infos of those
// that are missing or stale. Bundles built for another variant are skipped.
func (v *Versions) Verify(ctx context.Context, bundles []*manifest.Bundle) ([]download.Info, error) {
	if v.OfflineMode() || len(bundles) == 0 {
		return nil, nil
	}
	variant := v.CurrentVariant()

	v.mu.RLock()
	workers := v.config.VerifyWorkers
	v.mu.RUnlock()

	missing := make([]bool, len(bundles))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, b := range bundles {
		if b == nil || (b.IsVariant() && b.Variant != variant) {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			missing[i] = !v.IsDownloaded(b)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []download.Info
	for i, b := range bundles {
		if !missing[i] {
			continue
		}
		if _, ok := seen[b.NameWithHash]; ok {
			continue
		}
		seen[b.NameWithHash] = struct{}{}
		out = append(out, v.GetDownloadInfo(b))
	}
	return out, nil
}

// DownloadSize returns the bytes left to fetch for bundles.
func (v *Versions) DownloadSize(ctx context.Context, bundles []*manifest.Bundle) (int64, error) {
	infos, err := v.Verify(ctx, bundles)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, info := range infos {
		total += info.Size
	}
	return total, nil
}

// ComputeHash returns the hex MD5 of the file at path.
func ComputeHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
