package kcidb

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kernelci/logspec/internal/logging"
)

// ErrNoLog is returned when a log URL does not serve a log.
var ErrNoLog = errors.New("log not available")

// maxLogSize bounds the size of a downloaded log, compressed or not.
const maxLogSize = 256 << 20

// LogFetcher downloads logs.
type LogFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher downloads logs over HTTP, decompressing gzipped ones.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher whose requests time out after timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch returns the log at url. A non-200 response or an empty body yields
// ErrNoLog.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", ErrNoLog
	}
	logging.Debug("fetching log", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s: %s", ErrNoLog, url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLogSize))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", url, err)
	}
	text, err := decodeLog(body)
	if err != nil {
		return "", fmt.Errorf("failed to decompress %s: %w", url, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: %s: empty", ErrNoLog, url)
	}
	return text, nil
}

// decodeLog returns body as text, gunzipping it first if it is gzipped.
func decodeLog(body []byte) (string, error) {
	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		defer zr.Close()
		raw, err := io.ReadAll(io.LimitReader(zr, maxLogSize))
		if err != nil {
			return "", err
		}
		body = raw
	}
	return strings.ToValidUTF8(string(body), "�"), nil
}
