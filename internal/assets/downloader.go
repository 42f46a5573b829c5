package assets

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "golang.org/x/image/webp"
)

// Download is a fetched image.
type Download struct {
	Data     []byte
	MimeType string
	Width    *int
	Height   *int
}

type DownloaderConfig struct {
	Timeout       time.Duration
	MaxSize       int64
	MaxRetries    int
	RetryInterval time.Duration
	UserAgent     string
}

// Downloader fetches remote images, retrying network errors, 429 and 5xx responses.
type Downloader struct {
	client        *http.Client
	maxSize       int64
	maxRetries    int
	retryInterval time.Duration
	userAgent     string
}

func NewDownloader(cfg DownloaderConfig) *Downloader {
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Downloader{
		client:        &http.Client{Timeout: cfg.Timeout},
		maxSize:       cfg.MaxSize,
		maxRetries:    cfg.MaxRetries,
		retryInterval: interval,
		userAgent:     cfg.UserAgent,
	}
}

// Fetch downloads url. The MIME type comes from the response Content-Type, or from the
// url suffix when the server does not declare an image type.
func (d *Downloader) Fetch(ctx context.Context, url string) (*Download, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.retryInterval
	var b backoff.BackOff = backoff.WithMaxRetries(eb, uint64(max(d.maxRetries, 0)))
	b = backoff.WithContext(b, ctx)

	dl, err := backoff.RetryWithData(func() (*Download, error) {
		return d.fetchOnce(ctx, url)
	}, b)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	return dl, nil
}

func (d *Downloader) fetchOnce(ctx context.Context, url string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status: %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	var body io.Reader = resp.Body
	if d.maxSize > 0 {
		body = io.LimitReader(resp.Body, d.maxSize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if d.maxSize > 0 && int64(len(data)) > d.maxSize {
		return nil, backoff.Permanent(fmt.Errorf("image exceeds %d bytes", d.maxSize))
	}

	dl := &Download{
		Data:     data,
		MimeType: mimeType(resp.Header.Get("Content-Type"), url),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		dl.Width, dl.Height = &cfg.Width, &cfg.Height
	}
	return dl, nil
}

func mimeType(contentType, url string) string {
	if contentType == "" {
		return MimeFromURL(url)
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || mt == "application/octet-stream" || mt == "binary/octet-stream" {
		return MimeFromURL(url)
	}
	return mt
}
