package googlesuggest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSuggest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("client") != "firefox" || q.Get("q") != "weather" || q.Get("hl") != "zh-TW" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/javascript; charset=UTF-8")
		_, _ = w.Write([]byte(`["weather",["weather today","weather tomorrow","weather radar"],[],{"google:suggesttype":[]}]`))
	}))
	defer srv.Close()

	p := NewProvider(Config{Endpoint: srv.URL, Language: "zh-TW", Client: srv.Client()})
	items, err := p.Suggest(context.Background(), "weather")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(items) != 3 || items[0] != "weather today" {
		t.Fatalf("unexpected suggestions %v", items)
	}
}

func TestParseSuggestionsMalformed(t *testing.T) {
	for _, body := range []string{`{}`, `["only query"]`, `["q", "not a list"]`, `garbage`} {
		if _, err := parseSuggestions([]byte(body)); err == nil {
			t.Errorf("expected error for %s", body)
		}
	}
}

func TestSuggestHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewProvider(Config{Endpoint: srv.URL, Client: srv.Client()})
	if _, err := p.Suggest(context.Background(), "weather"); err == nil {
		t.Fatalf("expected HTTP error")
	}
}
