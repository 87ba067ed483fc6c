package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"metasearch/searchservice/internal/domain"
)

type fakeEngine struct {
	name    string
	results []domain.RawResult
	err     error
	delay   time.Duration
	panics  bool
	calls   atomic.Int32
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Info() domain.EngineInfo {
	return domain.EngineInfo{Name: f.name, Label: "Fake " + f.name, Kind: "fake"}
}

func (f *fakeEngine) Search(ctx context.Context, _ domain.EngineQuery) ([]domain.RawResult, error) {
	f.calls.Add(1)
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		timer := time.NewTimer(f.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.results, f.err
}

func urls(values ...string) []domain.RawResult {
	out := make([]domain.RawResult, 0, len(values))
	for _, value := range values {
		out = append(out, domain.RawResult{Title: "title " + value, URL: value, Snippet: "snippet " + value})
	}
	return out
}

type fakeSuggestionProvider struct {
	items []string
	err   error
	calls atomic.Int32
}

func (f *fakeSuggestionProvider) Suggest(_ context.Context, _ string) ([]string, error) {
	f.calls.Add(1)
	return f.items, f.err
}

type fakeImageProvider struct {
	mu       sync.Mutex
	images   map[string]string
	fail     map[string]bool
	delay    time.Duration
	calls    map[string]int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func newFakeImageProvider() *fakeImageProvider {
	return &fakeImageProvider{
		images: make(map[string]string),
		fail:   make(map[string]bool),
		calls:  make(map[string]int),
	}
}

func (f *fakeImageProvider) FetchImage(ctx context.Context, pageURL string) (string, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if current <= seen || f.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}

	f.mu.Lock()
	f.calls[pageURL]++
	image := f.images[pageURL]
	fail := f.fail[pageURL]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fail {
		return "", errors.New("image backend unavailable")
	}
	return image, nil
}

func (f *fakeImageProvider) callsFor(pageURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[pageURL]
}

type fakeSwitch struct {
	disabled map[string]bool
}

func (f fakeSwitch) Enabled(name string) bool { return !f.disabled[name] }

func noRetry() ServiceOption {
	return WithRetryConfig(RetryConfig{MaxAttempts: 1})
}
