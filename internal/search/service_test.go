package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"metasearch/searchservice/internal/domain"
)

// ---------------------------------------------------------------------------
// End-to-end aggregation
// ---------------------------------------------------------------------------

func TestHandleSearchMergesRanksAndTruncates(t *testing.T) {
	a := &fakeEngine{name: "a", results: urls("x.com/1", "x.com/2")}
	b := &fakeEngine{name: "b", results: urls("x.com/1", "x.com/3")}
	svc := NewService([]Engine{a, b}, time.Second, noRetry())

	resp, err := svc.HandleSearch(context.Background(), domain.SearchRequest{
		Keyword: "weather",
		Engines: []string{"a", "b"},
		Limit:   2,
	})
	if err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success")
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].CanonicalURL != "http://x.com/1" || resp.Results[1].CanonicalURL != "http://x.com/2" {
		t.Fatalf("unexpected order: %s, %s", resp.Results[0].CanonicalURL, resp.Results[1].CanonicalURL)
	}
	if got := resp.Results[0].ContributingEngines; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected x.com/1 from a and b, got %v", got)
	}
	if resp.TotalResults != 3 || resp.TotalRawResults != 4 {
		t.Fatalf("expected 3 unique of 4 raw, got %d of %d", resp.TotalResults, resp.TotalRawResults)
	}
	if resp.Page != 1 || resp.PerPage != 2 || resp.TotalPages != 2 {
		t.Fatalf("unexpected paging: page=%d perPage=%d totalPages=%d", resp.Page, resp.PerPage, resp.TotalPages)
	}
	if resp.CacheHit {
		t.Fatalf("first call must not be a cache hit")
	}
	if resp.Results[0].SourceLabel != "x" || resp.Results[0].CountryTag != "tw" {
		t.Fatalf("expected enrichment with default language, got %+v", resp.Results[0])
	}
	if resp.Results[0].Timestamp.IsZero() {
		t.Fatalf("expected a timestamp on every result")
	}
}

func TestHandleSearchSecondCallIsCacheHit(t *testing.T) {
	a := &fakeEngine{name: "a", results: urls("x.com/1")}
	b := &fakeEngine{name: "b", results: urls("x.com/2")}
	svc := NewService([]Engine{a, b}, time.Second, noRetry())
	req := domain.SearchRequest{Keyword: "weather", Engines: []string{"a", "b"}, Limit: 5}

	first, err := svc.HandleSearch(context.Background(), req)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	// Engine order in the request must not matter.
	req.Engines = []string{"b", "a", "a"}
	second, err := svc.HandleSearch(context.Background(), req)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if !second.CacheHit {
		t.Fatalf("expected second call to hit the cache")
	}
	if a.calls.Load() != 1 || b.calls.Load() != 1 {
		t.Fatalf("expected no extra engine calls, got a=%d b=%d", a.calls.Load(), b.calls.Load())
	}
	firstJSON, err := json.Marshal(first.Results)
	if err != nil {
		t.Fatalf("marshal first results: %v", err)
	}
	secondJSON, err := json.Marshal(second.Results)
	if err != nil {
		t.Fatalf("marshal second results: %v", err)
	}
	if !bytes.Equal(firstJSON, secondJSON) {
		t.Fatalf("expected byte-identical results from cache\nfirst:  %s\nsecond: %s", firstJSON, secondJSON)
	}
	stats := svc.CacheStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got %+v", stats.CacheSummary)
	}
}

func TestHandleSearchCacheKeyCannotBeShiftedByInput(t *testing.T) {
	a := &fakeEngine{name: "a", results: urls("x.com/1")}
	svc := NewService([]Engine{a}, time.Second, noRetry())

	if _, err := svc.HandleSearch(context.Background(), domain.SearchRequest{
		Keyword: "k", Engines: []string{"a"}, Language: "en",
	}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := svc.HandleSearch(context.Background(), domain.SearchRequest{
		Keyword: "k:en", Engines: []string{"a"}, Language: "en",
	})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second.CacheHit || second.Keyword != "k:en" {
		t.Fatalf("expected a fresh search for %q, got hit=%v keyword=%q", "k:en", second.CacheHit, second.Keyword)
	}
	if a.calls.Load() != 2 {
		t.Fatalf("expected two engine calls, got %d", a.calls.Load())
	}
}

func TestHandleSearchCanonicalizesLanguage(t *testing.T) {
	a := &fakeEngine{name: "a", results: urls("x.com/1")}
	svc := NewService([]Engine{a}, time.Second, noRetry())

	first, err := svc.HandleSearch(context.Background(), domain.SearchRequest{Keyword: "go", Engines: []string{"a"}, Language: "en_us"})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.Language != "en-US" {
		t.Fatalf("expected canonical language en-US, got %q", first.Language)
	}
	second, err := svc.HandleSearch(context.Background(), domain.SearchRequest{Keyword: "go", Engines: []string{"a"}, Language: "EN-us"})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !second.CacheHit || a.calls.Load() != 1 {
		t.Fatalf("expected spellings of one tag to share a cache entry, hit=%v calls=%d", second.CacheHit, a.calls.Load())
	}
}

func TestHandleSearchCacheHitEchoesRequestedKeyword(t *testing.T) {
	a := &fakeEngine{name: "a", results: urls("x.com/1")}
	svc := NewService([]Engine{a}, time.Second, noRetry())

	if _, err := svc.HandleSearch(context.Background(), domain.SearchRequest{Keyword: "weather", Engines: []string{"a"}}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	resp, err := svc.HandleSearch(context.Background(), domain.SearchRequest{Keyword: "  Weather ", Engines: []string{"a"}})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !resp.CacheHit {
		t.Fatalf("expected case-folded keyword to hit the cache")
	}
	if resp.Keyword != "Weather" {
		t.Fatalf("expected keyword %q, got %q", "Weather", resp.Keyword)
	}
}

func TestHandleSearchSuggestionsOnMissAndHit(t *testing.T) {
	a := &fakeEngine{name: "a", results: urls("x.com/1")}
	provider := &fakeSuggestionProvider{items: []string{"weather today", "weather tomorrow"}}
	svc := NewService([]Engine{a}, time.Second, noRetry(),
		WithSuggester(NewSuggester(SuggesterConfig{Provider: provider})),
	)
	req := domain.SearchRequest{Keyword: "weather", Engines: []string{"a"}}

	for i := 0; i < 2; i++ {
		resp, err := svc.HandleSearch(context.Background(), req)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if len(resp.Suggestions) != 2 {
			t.Fatalf("call %d: expected 2 suggestions, got %v", i, resp.Suggestions)
		}
	}
	if provider.calls.Load() != 1 {
		t.Fatalf("expected suggestion provider to be called once, got %d", provider.calls.Load())
	}
}

// ---------------------------------------------------------------------------
// Input validation
// ---------------------------------------------------------------------------

func TestHandleSearchRejectsBlankKeywordWithoutIO(t *testing.T) {
	a := &fakeEngine{name: "a", results: urls("x.com/1")}
	svc := NewService([]Engine{a}, time.Second)

	for _, keyword := range []string{"", "   ", "\t\n"} {
		_, err := svc.HandleSearch(context.Background(), domain.SearchRequest{Keyword: keyword, Engines: []string{"a"}})
		if !errors.Is(err, ErrInvalidKeyword) {
			t.Fatalf("keyword %q: expected ErrInvalidKeyword, got %v", keyword, err)
		}
	}
	if a.calls.Load() != 0 {
		t.Fatalf("expected no engine calls, got %d", a.calls.Load())
	}
	stats := svc.CacheStats()
	if stats.Hits != 0 || stats.Misses != 0 || stats.Size != 0 {
		t.Fatalf("expected untouched cache, got %+v", stats.CacheSummary)
	}
}

func TestHandleSearchValidation(t *testing.T) {
	svc := NewService([]Engine{&fakeEngine{name: "a"}, &fakeEngine{name: "duckduckgo"}}, time.Second)
	long := make([]byte, maxKeywordLength+1)
	for i := range long {
		long[i] = 'k'
	}

	cases := []struct {
		name string
		req  domain.SearchRequest
		want error
	}{
		{"no engines", domain.SearchRequest{Keyword: "go"}, ErrNoEngines},
		{"blank engines", domain.SearchRequest{Keyword: "go", Engines: []string{" ", ""}}, ErrNoEngines},
		{"unknown engine", domain.SearchRequest{Keyword: "go", Engines: []string{"a", "nope"}}, ErrUnknownEngine},
		{"negative limit", domain.SearchRequest{Keyword: "go", Engines: []string{"a"}, Limit: -1}, ErrInvalidLimit},
		{"keyword too long", domain.SearchRequest{Keyword: string(long), Engines: []string{"a"}}, ErrInvalidKeyword},
		{"malformed language", domain.SearchRequest{Keyword: "go", Engines: []string{"a"}, Language: "en:10"}, ErrInvalidLanguage},
		{"garbage language", domain.SearchRequest{Keyword: "go", Engines: []string{"a"}, Language: "not a tag"}, ErrInvalidLanguage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.HandleSearch(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestHandleSearchLimitDefaultsAndCap(t *testing.T) {
	svc := NewService([]Engine{&fakeEngine{name: "a", results: urls("x.com/1")}}, time.Second, noRetry())

	resp, err := svc.HandleSearch(context.Background(), domain.SearchRequest{Keyword: "go", Engines: []string{"a"}})
	if err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}
	if resp.PerPage != defaultLimit {
		t.Fatalf("expected default limit %d, got %d", defaultLimit, resp.PerPage)
	}

	resp, err = svc.HandleSearch(context.Background(), domain.SearchRequest{Keyword: "go", Engines: []string{"a"}, Limit: 1000})
	if err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}
	if resp.PerPage != maxLimit {
		t.Fatalf("expected capped limit %d, got %d", maxLimit, resp.PerPage)
	}
}

func TestHandleSearchResolvesAliases(t *testing.T) {
	ddg := &fakeEngine{name: "duckduckgo", results: urls("x.com/1")}
	svc := NewService([]Engine{ddg}, time.Second, noRetry())

	resp, err := svc.HandleSearch(context.Background(), domain.SearchRequest{Keyword: "go", Engines: []string{"DDG"}})
	if err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}
	if len(resp.EnginesUsed) != 1 || resp.EnginesUsed[0] != "duckduckgo" {
		t.Fatalf("expected alias to resolve to duckduckgo, got %v", resp.EnginesUsed)
	}
}

// ---------------------------------------------------------------------------
// Partial and total failure
// ---------------------------------------------------------------------------

func TestHandleSearchPartialFailure(t *testing.T) {
	a := &fakeEngine{name: "a", results: urls("x.com/1")}
	b := &fakeEngine{name: "b", err: errors.New("engine HTTP 502")}
	svc := NewService([]Engine{a, b}, time.Second, noRetry())

	resp, err := svc.HandleSearch(context.Background(), domain.SearchRequest{Keyword: "go", Engines: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected results from a, got %d", len(resp.Results))
	}
	if len(resp.EnginesUsed) != 1 || resp.EnginesUsed[0] != "a" {
		t.Fatalf("unexpected enginesUsed %v", resp.EnginesUsed)
	}
	if len(resp.EnginesFailed) != 1 || resp.EnginesFailed[0] != "b" {
		t.Fatalf("unexpected enginesFailed %v", resp.EnginesFailed)
	}
	if resp.Engines[1].OK || resp.Engines[1].Error != "engine HTTP 502" {
		t.Fatalf("expected failed status for b, got %+v", resp.Engines[1])
	}
	if svc.CacheStats().Size != 1 {
		t.Fatalf("expected partial response to be cached")
	}
}

func TestHandleSearchTimeoutDoesNotBlockOthers(t *testing.T) {
	fast := &fakeEngine{name: "fast", results: urls("x.com/1")}
	slow := &fakeEngine{name: "slow", results: urls("x.com/2"), delay: 5 * time.Second}
	svc := NewService([]Engine{fast, slow}, 50*time.Millisecond, noRetry())

	started := time.Now()
	resp, err := svc.HandleSearch(context.Background(), domain.SearchRequest{Keyword: "go", Engines: []string{"fast", "slow"}})
	if err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("expected the per-engine deadline to bound the request, took %s", elapsed)
	}
	var slowStatus domain.EngineStatus
	for _, status := range resp.Engines {
		if status.Name == "slow" {
			slowStatus = status
		}
	}
	if slowStatus.OK || !slowStatus.TimedOut {
		t.Fatalf("expected slow engine to time out, got %+v", slowStatus)
	}
	if len(resp.Results) != 1 || resp.Results[0].CanonicalURL != "http://x.com/1" {
		t.Fatalf("expected fast engine results, got %+v", resp.Results)
	}
}

func TestHandleSearchTotalFailureIsNotCached(t *testing.T) {
	a := &fakeEngine{name: "a", err: errors.New("down")}
	b := &fakeEngine{name: "b", err: errors.New("down")}
	svc := NewService([]Engine{a, b}, time.Second, noRetry())
	req := domain.SearchRequest{Keyword: "go", Engines: []string{"a", "b"}}

	for i := 0; i < 2; i++ {
		resp, err := svc.HandleSearch(context.Background(), req)
		if err != nil {
			t.Fatalf("total failure must not be an error: %v", err)
		}
		if !resp.Success || resp.Message != messageAllFailed {
			t.Fatalf("expected success with explanatory message, got success=%v message=%q", resp.Success, resp.Message)
		}
		if resp.Results == nil || len(resp.Results) != 0 {
			t.Fatalf("expected empty non-nil results")
		}
		if resp.CacheHit {
			t.Fatalf("total failure must never be served from cache")
		}
	}
	if a.calls.Load() != 2 {
		t.Fatalf("expected engines to be retried on the next request, got %d calls", a.calls.Load())
	}
}

func TestHandleSearchEmptySuccessIsDistinctFromFailure(t *testing.T) {
	a := &fakeEngine{name: "a", results: nil}
	svc := NewService([]Engine{a}, time.Second, noRetry())

	resp, err := svc.HandleSearch(context.Background(), domain.SearchRequest{Keyword: "go", Engines: []string{"a"}})
	if err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}
	if !resp.Engines[0].OK || resp.Engines[0].Count != 0 {
		t.Fatalf("expected ok status with zero results, got %+v", resp.Engines[0])
	}
	if resp.Message != messageNoResults {
		t.Fatalf("expected %q, got %q", messageNoResults, resp.Message)
	}
	if len(resp.EnginesFailed) != 0 {
		t.Fatalf("expected no failed engines, got %v", resp.EnginesFailed)
	}
}

func TestHandleSearchPanickingEngineDegrades(t *testing.T) {
	a := &fakeEngine{name: "a", results: urls("x.com/1")}
	b := &fakeEngine{name: "b", panics: true}
	svc := NewService([]Engine{a, b}, time.Second, noRetry())

	resp, err := svc.HandleSearch(context.Background(), domain.SearchRequest{Keyword: "go", Engines: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}
	if len(resp.EnginesFailed) != 1 || resp.EnginesFailed[0] != "b" {
		t.Fatalf("expected b to fail, got %v", resp.EnginesFailed)
	}
}

func TestHandleSearchDisabledEngineIsNotCalled(t *testing.T) {
	a := &fakeEngine{name: "a", results: urls("x.com/1")}
	b := &fakeEngine{name: "b", results: urls("x.com/2")}
	svc := NewService([]Engine{a, b}, time.Second, noRetry(),
		WithEngineSwitch(fakeSwitch{disabled: map[string]bool{"b": true}}),
	)

	resp, err := svc.HandleSearch(context.Background(), domain.SearchRequest{Keyword: "go", Engines: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}
	if b.calls.Load() != 0 {
		t.Fatalf("expected disabled engine not to be called")
	}
	if resp.Engines[1].Error != "engine disabled" {
		t.Fatalf("expected disabled status, got %+v", resp.Engines[1])
	}
}

func TestHandleSearchPreferredEngineRanksFirst(t *testing.T) {
	a := &fakeEngine{name: "a", results: urls("x.com/1", "x.com/2")}
	b := &fakeEngine{name: "b", results: urls("x.com/1")}
	google := &fakeEngine{name: "google", results: urls("x.com/9")}
	svc := NewService([]Engine{a, b, google}, time.Second, noRetry(), WithPreferredEngine("google"))

	resp, err := svc.HandleSearch(context.Background(), domain.SearchRequest{Keyword: "go", Engines: []string{"a", "b", "google"}})
	if err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}
	got := make([]string, 0, len(resp.Results))
	for _, result := range resp.Results {
		got = append(got, result.CanonicalURL)
	}
	want := []string{"http://x.com/9", "http://x.com/1", "http://x.com/2"}
	if len(got) != len(want) {
		t.Fatalf("unexpected results %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank %d: want %s, got %s (all: %v)", i, want[i], got[i], got)
		}
	}
}

// ---------------------------------------------------------------------------
// Cache management
// ---------------------------------------------------------------------------

func TestClearCacheScopesByEngine(t *testing.T) {
	a := &fakeEngine{name: "a", results: urls("x.com/1")}
	b := &fakeEngine{name: "b", results: urls("x.com/2")}
	svc := NewService([]Engine{a, b}, time.Second, noRetry())
	ctx := context.Background()

	for _, engines := range [][]string{{"a"}, {"b"}, {"a", "b"}} {
		if _, err := svc.HandleSearch(ctx, domain.SearchRequest{Keyword: "go", Engines: engines}); err != nil {
			t.Fatalf("HandleSearch(%v): %v", engines, err)
		}
	}

	before := svc.CacheStats()
	if before.Size != 3 {
		t.Fatalf("expected 3 entries, got %d", before.Size)
	}
	if before.PerEngineBreakdown["a"] != 2 || before.PerEngineBreakdown["b"] != 2 {
		t.Fatalf("unexpected breakdown %v", before.PerEngineBreakdown)
	}

	removed, err := svc.ClearCache("a")
	if err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 entries removed, got %d", removed)
	}

	after := svc.CacheStats()
	if after.Size != 1 || after.PerEngineBreakdown["a"] != 0 || after.PerEngineBreakdown["b"] != 1 {
		t.Fatalf("unexpected stats after clear: size=%d breakdown=%v", after.Size, after.PerEngineBreakdown)
	}

	if _, err := svc.ClearCache("unknown"); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}

	removed, err = svc.ClearCache("all")
	if err != nil || removed != 1 {
		t.Fatalf("expected full flush of 1 entry, got %d (%v)", removed, err)
	}
}

func TestSuggestionsValidation(t *testing.T) {
	provider := &fakeSuggestionProvider{items: []string{"golang"}}
	svc := NewService([]Engine{&fakeEngine{name: "google"}}, time.Second,
		WithSuggester(NewSuggester(SuggesterConfig{Provider: provider})),
	)

	if _, err := svc.Suggestions(context.Background(), "g", ""); !errors.Is(err, ErrKeywordTooShort) {
		t.Fatalf("expected ErrKeywordTooShort, got %v", err)
	}
	if _, err := svc.Suggestions(context.Background(), "go", "nope"); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}
	items, err := svc.Suggestions(context.Background(), "go", "")
	if err != nil || len(items) != 1 {
		t.Fatalf("expected one suggestion, got %v (%v)", items, err)
	}
	if provider.calls.Load() != 1 {
		t.Fatalf("expected a single provider call, got %d", provider.calls.Load())
	}
}

func TestStatsTracksSearches(t *testing.T) {
	svc := NewService([]Engine{&fakeEngine{name: "a", results: urls("x.com/1")}}, time.Second, noRetry(), WithVersion("test"))
	svc.TrackRequest()
	if _, err := svc.HandleSearch(context.Background(), domain.SearchRequest{Keyword: "go", Engines: []string{"a"}}); err != nil {
		t.Fatalf("HandleSearch: %v", err)
	}
	stats := svc.Stats()
	if stats.Version != "test" || stats.RequestsServed != 1 || stats.SearchesPerformed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.Cache.Size != 1 {
		t.Fatalf("expected one cached entry, got %d", stats.Cache.Size)
	}
}

func TestStatsFirstSampleSeedsAverageUnderConcurrency(t *testing.T) {
	tracker := newStatsTracker(time.Now())
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.observeSearch(50 * time.Millisecond)
		}()
	}
	wg.Wait()

	if got := tracker.searches.Load(); got != 8 {
		t.Fatalf("expected 8 searches, got %d", got)
	}
	// Identical samples keep the average at the sample value only when the
	// first one seeded it.
	if got := tracker.averageMS(); got < 49.99 || got > 50.01 {
		t.Fatalf("expected average 50ms, got %v", got)
	}
}

func TestStatsMovingAverage(t *testing.T) {
	tracker := newStatsTracker(time.Now())
	tracker.observeSearch(100 * time.Millisecond)
	tracker.observeSearch(200 * time.Millisecond)

	if got := tracker.averageMS(); got < 109.99 || got > 110.01 {
		t.Fatalf("expected 100*0.9 + 200*0.1 = 110, got %v", got)
	}
}
