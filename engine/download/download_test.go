package download

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/clock/testclock"

	"github.com/spaghettifunk/anima-content/engine/core"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func newTestDownloader(t *testing.T, handler http.Handler) (*Downloader, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	dir := t.TempDir()
	d := New(Config{
		DownloadDataPath: dir,
		URL:              srv.URL + "/content/",
		Retries:          2,
		RetryDelay:       time.Millisecond,
	}, srv.Client())
	return d, dir
}

func TestPaths(t *testing.T) {
	d := New(Config{DownloadDataPath: "/data", URL: "http://cdn/content/"}, nil)
	assert.Equal(t, "http://cdn/content/ui_abc.bundle", d.GetDownloadURL("ui_abc.bundle"))
	assert.Equal(t, filepath.Join("/data", "ui_abc.bundle"), d.GetDownloadDataPath("ui_abc.bundle"))
}

func TestDownloadSavesVerifiedFile(t *testing.T) {
	payload := []byte("bundle payload")
	d, dir := newTestDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/content/ui.bundle", r.URL.Path)
		w.Write(payload)
	}))

	info := Info{
		URL:      d.GetDownloadURL("ui.bundle"),
		SavePath: d.GetDownloadDataPath("ui.bundle"),
		Hash:     md5Hex(payload),
		Size:     int64(len(payload)),
	}
	req := d.Download(context.Background(), info)
	require.NoError(t, req.Wait(context.Background()))
	assert.True(t, req.IsDone())
	assert.Equal(t, 1.0, req.Progress())
	assert.Equal(t, int64(len(payload)), req.DownloadedBytes())

	data, err := os.ReadFile(filepath.Join(dir, "ui.bundle"))
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	// Only the final file is left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDownloadRetries(t *testing.T) {
	var calls atomic.Int32
	d, _ := newTestDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))

	req := d.Download(context.Background(), Info{
		URL:      d.GetDownloadURL("a.txt"),
		SavePath: d.GetDownloadDataPath("a.txt"),
	})
	require.NoError(t, req.Wait(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloadFailsAfterRetries(t *testing.T) {
	var calls atomic.Int32
	d, dir := newTestDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "broken", http.StatusInternalServerError)
	}))

	req := d.Download(context.Background(), Info{
		URL:      d.GetDownloadURL("a.bundle"),
		SavePath: d.GetDownloadDataPath("a.bundle"),
	})
	err := req.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, err, req.Err())
	assert.False(t, IsCancelled(err))
	assert.Equal(t, int32(3), calls.Load())

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestDownloadDoesNotRetryMissingFiles(t *testing.T) {
	var calls atomic.Int32
	d, _ := newTestDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))

	req := d.Download(context.Background(), Info{
		URL:      d.GetDownloadURL("missing.bundle"),
		SavePath: d.GetDownloadDataPath("missing.bundle"),
	})
	err := req.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryDelaysDoubleOnTheConfiguredClock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tc := testclock.New(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	var mu sync.Mutex
	var delays []time.Duration
	tc.SetTimerCallback(func(d time.Duration, _ clock.Timer) {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		tc.Add(d)
	})

	d := New(Config{
		DownloadDataPath: t.TempDir(),
		URL:              srv.URL,
		Retries:          3,
		RetryDelay:       time.Hour,
		MaxRetryDelay:    3 * time.Hour,
		Clock:            tc,
	}, srv.Client())
	req := d.Download(context.Background(), Info{
		URL:      d.GetDownloadURL("a.bundle"),
		SavePath: d.GetDownloadDataPath("a.bundle"),
	})
	require.Error(t, req.Wait(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{time.Hour, 2 * time.Hour, 3 * time.Hour}, delays)
}

func TestDownloadRejectsHashMismatch(t *testing.T) {
	d, _ := newTestDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tampered"))
	}))

	req := d.Download(context.Background(), Info{
		URL:      d.GetDownloadURL("a.bundle"),
		SavePath: d.GetDownloadDataPath("a.bundle"),
		Hash:     md5Hex([]byte("original")),
	})
	err := req.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
	_, statErr := os.Stat(d.GetDownloadDataPath("a.bundle"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadRejectsSizeMismatch(t *testing.T) {
	d, _ := newTestDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("short"))
	}))

	req := d.Download(context.Background(), Info{
		URL:      d.GetDownloadURL("a.bundle"),
		SavePath: d.GetDownloadDataPath("a.bundle"),
		Size:     100,
	})
	err := req.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size mismatch")
}

func TestDownloadCancel(t *testing.T) {
	release := make(chan struct{})
	d, _ := newTestDownloader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer close(release)

	req := d.Download(context.Background(), Info{
		URL:      d.GetDownloadURL("slow.bundle"),
		SavePath: d.GetDownloadDataPath("slow.bundle"),
	})
	req.Cancel()
	err := req.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestBandwidthLimitStillCompletes(t *testing.T) {
	payload := make([]byte, 64*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	d := New(Config{
		DownloadDataPath: t.TempDir(),
		URL:              srv.URL,
		MaxBandwidth:     1 << 20,
	}, srv.Client())
	req := d.Download(context.Background(), Info{
		URL:      d.GetDownloadURL("big.bin"),
		SavePath: d.GetDownloadDataPath("big.bin"),
		Size:     int64(len(payload)),
	})
	require.NoError(t, req.Wait(context.Background()))
}
