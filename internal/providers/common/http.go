package common

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DefaultUserAgent = "metasearch/1.0 (+https://github.com/metasearch/searchservice)"
	defaultMaxBytes  = 4 * 1024 * 1024
)

type Request struct {
	URL       string
	UserAgent string
	Accept    string
	Headers   map[string]string
	MaxBytes  int64
}

// Fetch performs a GET and returns the body of a 200 response, read up to
// MaxBytes. Any other status becomes an "upstream HTTP <code>" error.
func Fetch(ctx context.Context, client *http.Client, r Request) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, err
	}
	userAgent := strings.TrimSpace(r.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	if r.Accept != "" {
		req.Header.Set("Accept", r.Accept)
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("upstream HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	limit := r.MaxBytes
	if limit <= 0 {
		limit = defaultMaxBytes
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}
