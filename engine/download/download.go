package download

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/retry"
	"go.chromium.org/luci/common/retry/transient"
	"golang.org/x/time/rate"

	"github.com/spaghettifunk/anima-content/engine/core"
)

const chunkSize = 32 * 1024

var ErrCancelled = fmt.Errorf("download: %w", core.ErrCancelled)

// Config holds the downloader settings.
type Config struct {
	// DownloadDataPath is the writable directory files are saved into.
	DownloadDataPath string
	// URL is the prefix remote files are fetched from.
	URL string
	// Retries is the number of extra attempts after a transient failure.
	// Network errors, truncated bodies and 408, 429 or 5xx responses are
	// transient; anything else fails the request at once.
	Retries int
	// RetryDelay is the pause before the first retry. It doubles every retry.
	RetryDelay time.Duration
	// MaxRetryDelay caps the pause between retries.
	MaxRetryDelay time.Duration
	// Clock times the pauses between retries. Nil uses the system clock.
	Clock clock.Clock
	// MaxBandwidth caps the transfer rate of all downloads in bytes per second. Zero is unlimited.
	MaxBandwidth int
	// Timeout bounds a single attempt. Zero is unbounded.
	Timeout time.Duration
}

// Info describes one file to fetch.
type Info struct {
	URL      string
	SavePath string
	// Hash is the expected MD5 of the file in hex. Empty skips the check.
	Hash string
	// Size is the expected size in bytes. Zero means unknown.
	Size int64
}

// Downloader fetches remote files over HTTP.
type Downloader struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
}

func New(config Config, client *http.Client) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 500 * time.Millisecond
	}
	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = 30 * time.Second
	}
	d := &Downloader{
		config: config,
		client: client,
	}
	if config.MaxBandwidth > 0 {
		burst := config.MaxBandwidth
		if burst < chunkSize {
			burst = chunkSize
		}
		d.limiter = rate.NewLimiter(rate.Limit(config.MaxBandwidth), burst)
	}
	return d
}

// GetDownloadDataPath returns where file is saved locally.
func (d *Downloader) GetDownloadDataPath(file string) string {
	return filepath.Join(d.config.DownloadDataPath, filepath.FromSlash(file))
}

// GetDownloadURL returns where file is fetched from.
func (d *Downloader) GetDownloadURL(file string) string {
	return strings.TrimRight(d.config.URL, "/") + "/" + strings.TrimLeft(file, "/")
}

// Download starts fetching info in the background.
func (d *Downloader) Download(ctx context.Context, info Info) *Request {
	ctx, cancel := context.WithCancel(ctx)
	r := &Request{
		Info:   info,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		err := d.run(ctx, r)
		if err != nil && ctx.Err() != nil {
			err = ErrCancelled
		}
		r.finish(err)
	}()
	return r
}

func (d *Downloader) run(ctx context.Context, r *Request) error {
	if d.config.Clock != nil {
		ctx = clock.Set(ctx, d.config.Clock)
	}
	err := retry.Retry(ctx, transient.Only(d.backoff), func() error {
		err := d.attempt(ctx, r)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}, func(err error, delay time.Duration) {
		core.LogWarn("retrying download of '%s' in %s: %s", r.URL, delay, err.Error())
	})
	if err != nil && ctx.Err() == nil {
		core.LogError("download of '%s' failed: %s", r.URL, err.Error())
	}
	return err
}

func (d *Downloader) backoff() retry.Iterator {
	return &retry.ExponentialBackoff{
		Limited: retry.Limited{
			Delay:   d.config.RetryDelay,
			Retries: d.config.Retries,
		},
		Multiplier: 2,
		MaxDelay:   d.config.MaxRetryDelay,
	}
}

func (d *Downloader) attempt(ctx context.Context, r *Request) error {
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return transient.Tag.Apply(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("GET %s: unexpected status %s", r.URL, resp.Status)
		if isTransientStatus(resp.StatusCode) {
			return transient.Tag.Apply(err)
		}
		return err
	}

	total := r.Size
	if total <= 0 {
		total = resp.ContentLength
	}
	r.written.Store(0)

	dir := filepath.Dir(r.SavePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tmp)
		}
	}()

	hash := md5.New()
	w := io.MultiWriter(f, hash)
	buf := make([]byte, chunkSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if d.limiter != nil {
				if err := d.limiter.WaitN(ctx, n); err != nil {
					return err
				}
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
			written := r.written.Add(int64(n))
			if total > 0 {
				r.setProgress(float64(written) / float64(total))
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return transient.Tag.Apply(rerr)
		}
	}

	written := r.written.Load()
	if r.Size > 0 && written != r.Size {
		return transient.Tag.Apply(fmt.Errorf("GET %s: size mismatch, got %d bytes, want %d", r.URL, written, r.Size))
	}
	if r.Hash != "" {
		if sum := hex.EncodeToString(hash.Sum(nil)); !strings.EqualFold(sum, r.Hash) {
			return fmt.Errorf("GET %s: hash mismatch, got %s, want %s", r.URL, sum, r.Hash)
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, r.SavePath); err != nil {
		os.Remove(tmp)
		return err
	}
	committed = true
	return nil
}

func isTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

// Request is the handle of a transfer. Its methods are safe for concurrent use.
type Request struct {
	Info

	written  atomic.Int64
	progress atomic.Uint64
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
	err      error
}

func (r *Request) setProgress(p float64) {
	if p > 1 {
		p = 1
	}
	r.progress.Store(math.Float64bits(p))
}

func (r *Request) Progress() float64 {
	return math.Float64frombits(r.progress.Load())
}

// DownloadedBytes returns the bytes received by the current attempt.
func (r *Request) DownloadedBytes() int64 {
	return r.written.Load()
}

func (r *Request) IsDone() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Request) Err() error {
	if !r.IsDone() {
		return nil
	}
	return r.err
}

func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel aborts the transfer. A finished request is left untouched.
func (r *Request) Cancel() {
	r.cancel()
}

func (r *Request) finish(err error) {
	r.once.Do(func() {
		r.err = err
		if err == nil {
			r.setProgress(1)
		}
		r.cancel()
		close(r.done)
	})
}

// IsCancelled reports whether err comes from a cancelled request.
func IsCancelled(err error) bool {
	return errors.Is(err, core.ErrCancelled)
}
