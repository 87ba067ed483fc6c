// Package opengraph resolves page images by fetching the page itself and
// reading its og:image, falling back to twitter:image and link rel icons.
package opengraph

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"

	"metasearch/searchservice/internal/providers/common"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; metasearch-preview/1.0)"
	maxPageBytes     = 1024 * 1024
)

type Config struct {
	UserAgent string
	Client    *http.Client
	// AllowPrivate disables the public-address check.
	AllowPrivate bool
}

type Provider struct {
	client       *http.Client
	userAgent    string
	allowPrivate bool
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Provider{client: client, userAgent: userAgent, allowPrivate: cfg.AllowPrivate}
}

func (p *Provider) FetchImage(ctx context.Context, pageURL string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page url: %w", err)
	}
	if !p.allowPrivate {
		if err := common.ValidatePublicURL(ctx, base); err != nil {
			return "", err
		}
	}

	body, err := common.Fetch(ctx, p.client, common.Request{
		URL:       pageURL,
		UserAgent: p.userAgent,
		Accept:    "text/html,application/xhtml+xml",
		MaxBytes:  maxPageBytes,
	})
	if err != nil {
		return "", err
	}
	return extractImage(base, body)
}

func extractImage(base *url.URL, body []byte) (string, error) {
	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(bytes.NewReader(body)); err != nil {
		return "", fmt.Errorf("parse opengraph: %w", err)
	}
	for _, image := range og.Images {
		if image == nil {
			continue
		}
		candidate := image.SecureURL
		if candidate == "" {
			candidate = image.URL
		}
		if resolved := resolve(base, candidate); resolved != "" {
			return resolved, nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", nil
	}
	selectors := []struct {
		query string
		attr  string
	}{
		{"meta[name='twitter:image']", "content"},
		{"meta[name='twitter:image:src']", "content"},
		{"link[rel='image_src']", "href"},
		{"link[rel='apple-touch-icon']", "href"},
	}
	for _, sel := range selectors {
		if value, ok := doc.Find(sel.query).First().Attr(sel.attr); ok {
			if resolved := resolve(base, value); resolved != "" {
				return resolved, nil
			}
		}
	}
	return "", nil
}

func resolve(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
