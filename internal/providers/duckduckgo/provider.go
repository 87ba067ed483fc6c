package duckduckgo

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"metasearch/searchservice/internal/domain"
	"metasearch/searchservice/internal/providers/common"
)

const (
	defaultEndpoint  = "https://html.duckduckgo.com/html/"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

// regionByLanguage maps language tags onto DuckDuckGo's kl parameter.
var regionByLanguage = map[string]string{
	"zh-tw": "tw-tzh",
	"zh-cn": "cn-zh",
	"en-us": "us-en",
	"en-gb": "uk-en",
	"ja":    "jp-jp",
	"ko":    "kr-kr",
	"fr":    "fr-fr",
	"de":    "de-de",
	"es":    "es-es",
	"ru":    "ru-ru",
}

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

type Provider struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Provider{client: client, endpoint: endpoint, userAgent: userAgent}
}

func (p *Provider) Name() string {
	return "duckduckgo"
}

func (p *Provider) Info() domain.EngineInfo {
	return domain.EngineInfo{
		Name:    p.Name(),
		Label:   "DuckDuckGo",
		Kind:    "html",
		Enabled: true,
	}
}

func (p *Provider) Search(ctx context.Context, query domain.EngineQuery) ([]domain.RawResult, error) {
	uri, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	values := uri.Query()
	values.Set("q", strings.TrimSpace(query.Keyword))
	if region, ok := regionByLanguage[strings.ToLower(strings.TrimSpace(query.Language))]; ok {
		values.Set("kl", region)
	}
	uri.RawQuery = values.Encode()

	body, err := common.Fetch(ctx, p.client, common.Request{
		URL:       uri.String(),
		UserAgent: p.userAgent,
		Accept:    "text/html",
	})
	if err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 10
	}
	return parseResults(body, limit)
}

func parseResults(body []byte, limit int) ([]domain.RawResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo html: %w", err)
	}
	if doc.Find("form#challenge-form, .anomaly-modal").Length() > 0 {
		return nil, fmt.Errorf("duckduckgo challenge page")
	}

	results := make([]domain.RawResult, 0, limit)
	doc.Find("div.result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}
		anchor := s.Find("a.result__a").First()
		href, ok := anchor.Attr("href")
		if !ok {
			return true
		}
		link := resolveRedirect(href)
		if link == "" {
			return true
		}
		results = append(results, domain.RawResult{
			Title:   common.CleanHTMLText(anchor.Text()),
			URL:     link,
			Snippet: common.CleanHTMLText(s.Find(".result__snippet").First().Text()),
		})
		return len(results) < limit
	})
	return results, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg=<target> redirect links.
func resolveRedirect(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(parsed.Hostname(), "duckduckgo.com") && strings.HasPrefix(parsed.Path, "/l/") {
		return strings.TrimSpace(parsed.Query().Get("uddg"))
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return href
}
