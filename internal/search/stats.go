package search

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"metasearch/searchservice/internal/domain"
)

// responseTimeWeight is the share of the newest sample in the moving average.
const responseTimeWeight = 0.1

type statsTracker struct {
	version   string
	startedAt time.Time
	requests  atomic.Int64
	searches  atomic.Int64

	mu    sync.Mutex
	avgMS float64
}

func newStatsTracker(now time.Time) *statsTracker {
	return &statsTracker{startedAt: now}
}

// observeSearch counts a search and folds its latency into the average. The
// counter moves under mu so the first sample always seeds the average.
func (t *statsTracker) observeSearch(elapsed time.Duration) {
	ms := float64(elapsed.Microseconds()) / 1000

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.searches.Add(1) == 1 {
		t.avgMS = ms
		return
	}
	t.avgMS = t.avgMS*(1-responseTimeWeight) + ms*responseTimeWeight
}

func (t *statsTracker) averageMS() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.avgMS
}

// TrackRequest counts one served HTTP request.
func (s *Service) TrackRequest() {
	s.stats.requests.Add(1)
}

func (s *Service) Stats() domain.ServiceStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	now := time.Now()
	stats := domain.ServiceStats{
		Version:           s.stats.version,
		StartedAt:         s.stats.startedAt.UTC(),
		UptimeSeconds:     int64(now.Sub(s.stats.startedAt).Seconds()),
		RequestsServed:    s.stats.requests.Load(),
		SearchesPerformed: s.stats.searches.Load(),
		AvgResponseTimeMS: s.stats.averageMS(),
		Goroutines:        runtime.NumGoroutine(),
		Memory: domain.MemoryStats{
			HeapAllocBytes: mem.HeapAlloc,
			HeapSysBytes:   mem.HeapSys,
			SysBytes:       mem.Sys,
			NumGC:          mem.NumGC,
		},
		Cache:       s.results.Stats(),
		ImagesCache: s.enricher.cache.Stats(),
	}
	if s.suggester != nil {
		stats.SuggestionsCache = s.suggester.cache.Stats()
	}
	return stats
}

func (s *Service) runResourceReport(ctx context.Context) {
	ticker := time.NewTicker(s.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.Stats()
			s.logger.Info("resource report",
				slog.Int64("uptime_seconds", stats.UptimeSeconds),
				slog.Int64("requests", stats.RequestsServed),
				slog.Int64("searches", stats.SearchesPerformed),
				slog.Float64("avg_response_ms", stats.AvgResponseTimeMS),
				slog.Int("goroutines", stats.Goroutines),
				slog.Uint64("heap_alloc_bytes", stats.Memory.HeapAllocBytes),
				slog.Int("result_cache_size", stats.Cache.Size),
				slog.Float64("result_cache_hit_ratio", stats.Cache.HitRatio),
			)
		}
	}
}
