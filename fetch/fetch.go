// Package fetch downloads remote assets into local files.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

// Transport timeouts for outbound downloads. The overall deadline comes from the
// request context.
const (
	DefaultDialTimeout         = 10 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultResponseHeader      = 30 * time.Second
)

// ErrTooLarge is wrapped by a DownloadError when the body exceeds the size cap.
var ErrTooLarge = errors.New("asset exceeds size limit")

// DownloadError reports a failed download. StatusCode is 0 when the endpoint
// could not be reached.
type DownloadError struct {
	URL        string
	StatusCode int
	Status     string
	Err        error
}

func (e *DownloadError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("download failed %s: %s", e.Status, e.URL)
	case e.Err != nil:
		return fmt.Sprintf("download failed: %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("download failed: %s", e.URL)
	}
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Fetcher writes remote resources to local files.
type Fetcher struct {
	client  *http.Client
	maxSize int64
	logger  *slog.Logger
}

// New creates a Fetcher. maxSize <= 0 disables the size cap.
func New(maxSize int64, logger *slog.Logger) *Fetcher {
	return NewWithClient(NewClient(), maxSize, logger)
}

// NewWithClient creates a Fetcher around an existing client.
func NewWithClient(client *http.Client, maxSize int64, logger *slog.Logger) *Fetcher {
	return &Fetcher{client: client, maxSize: maxSize, logger: logger}
}

// NewClient returns an http.Client with explicit dial, TLS and header timeouts.
func NewClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DefaultDialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeader,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// Fetch downloads url into dest. dest exists only if the whole body was written.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) (err error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &DownloadError{URL: url, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return &DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DownloadError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", dest, cerr)
		}
		if err != nil {
			os.Remove(dest)
		}
	}()

	var body io.Reader = resp.Body
	if f.maxSize > 0 {
		body = &io.LimitedReader{R: resp.Body, N: f.maxSize + 1}
	}
	written, err := io.Copy(out, body)
	if err != nil {
		return &DownloadError{URL: url, Err: err}
	}
	if f.maxSize > 0 && written > f.maxSize {
		return &DownloadError{URL: url, Err: fmt.Errorf("%w of %d bytes", ErrTooLarge, f.maxSize)}
	}

	if f.logger != nil {
		f.logger.Debug("asset downloaded",
			"url", url,
			"bytes", written,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return nil
}
