package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-content/engine/core"
)

func writeArchive(t *testing.T, files map[string][]byte) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, files))
	return bytes.NewReader(buf.Bytes())
}

func TestArchiveLookup(t *testing.T) {
	r := writeArchive(t, map[string][]byte{
		"Assets/UI/logo.png":   []byte("logo"),
		"atlas.png":            []byte("atlas"),
		"atlas.png/frame1.png": []byte("f1"),
		"atlas.png/frame0.png": []byte("f0"),
		"atlasXpng/unrelated":  []byte("x"),
	})
	a, err := Open("ui.bundle", r, r.Size())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "ui.bundle", a.Name())
	assert.Len(t, a.Names(), 5)

	data, err := a.ReadAll("Assets/UI/logo.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("logo"), data)

	// Base names resolve too.
	data, err = a.ReadAll("logo.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("logo"), data)

	assert.Equal(t, []string{"atlas.png/frame0.png", "atlas.png/frame1.png"}, a.SubEntries("atlas.png"))
	assert.Empty(t, a.SubEntries("logo.png"))

	_, err = a.ReadAll("missing.png")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.False(t, a.Contains("missing.png"))
}

func TestOpenFileOwnsTheFile(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "data.bundle")

	f, err := os.Create(filename)
	require.NoError(t, err)
	require.NoError(t, Write(f, map[string][]byte{"a.txt": []byte("a")}))
	require.NoError(t, f.Close())

	a, err := OpenFile(filename)
	require.NoError(t, err)
	assert.True(t, a.Contains("a.txt"))
	require.NoError(t, a.Close())
}

func TestOpenRejectsGarbage(t *testing.T) {
	r := bytes.NewReader([]byte("not a container"))
	_, err := Open("bad", r, r.Size())
	assert.Error(t, err)
}

func TestCloseWhileReading(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "data.bundle")
	f, err := os.Create(filename)
	require.NoError(t, err)
	require.NoError(t, Write(f, map[string][]byte{
		"a.txt":       bytes.Repeat([]byte("a"), 1<<16),
		"a.txt/b.txt": []byte("b"),
	}))
	require.NoError(t, f.Close())

	a, err := OpenFile(filename)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				data, err := a.ReadAll("a.txt")
				if err != nil {
					assert.ErrorIs(t, err, ErrClosed)
					return
				}
				assert.Len(t, data, 1<<16)
				a.SubEntries("a.txt")
			}
		}()
	}
	require.NoError(t, a.Close())
	wg.Wait()

	_, err = a.ReadAll("a.txt")
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, a.Contains("a.txt"))
	assert.Empty(t, a.Names())
	assert.NoError(t, a.Close())
}
