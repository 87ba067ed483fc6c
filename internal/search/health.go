package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"metasearch/searchservice/internal/domain"
	"metasearch/searchservice/internal/metrics"
)

// An engine that fails engineFailureThreshold times in a row is skipped for
// engineBlockBase, doubling per further failure up to engineBlockMax. One
// success clears the block.
const (
	engineFailureThreshold = 3
	engineBlockBase        = 2 * time.Minute
	engineBlockMax         = 15 * time.Minute
)

type engineHealth struct {
	streak       int
	blockedUntil time.Time
	lastError    string
	lastSuccess  time.Time
	lastFailure  time.Time
	lastLatency  time.Duration
	lastTimeout  bool
	lastKeyword  string
	requests     int64
	failures     int64
	timeouts     int64
}

func (h *engineHealth) blockedAt(now time.Time) bool {
	return !h.blockedUntil.IsZero() && !now.After(h.blockedUntil)
}

// observe folds one call into the state and returns the outcome label used
// for metrics: ok, empty, error or timeout.
func (h *engineHealth) observe(keyword string, err error, count int, latency time.Duration, now time.Time) string {
	h.requests++
	h.lastKeyword = strings.TrimSpace(keyword)
	if latency > 0 {
		h.lastLatency = latency
	}
	h.lastTimeout = isTimeoutLikeError(err)
	if h.lastTimeout {
		h.timeouts++
	}

	if err == nil {
		h.streak = 0
		h.blockedUntil = time.Time{}
		h.lastError = ""
		h.lastSuccess = now
		if count == 0 {
			return "empty"
		}
		return "ok"
	}

	h.streak++
	h.failures++
	h.lastFailure = now
	h.lastError = err.Error()
	if h.streak >= engineFailureThreshold {
		h.blockedUntil = now.Add(exponentialBlockDuration(h.streak))
	}
	if h.lastTimeout {
		return "timeout"
	}
	return "error"
}

func (h *engineHealth) fill(item *domain.EngineDiagnostics) {
	item.ConsecutiveFailures = h.streak
	item.BlockedUntil = timePtr(h.blockedUntil)
	item.LastError = h.lastError
	item.LastSuccessAt = timePtr(h.lastSuccess)
	item.LastFailureAt = timePtr(h.lastFailure)
	item.LastLatencyMS = h.lastLatency.Milliseconds()
	item.LastTimeout = h.lastTimeout
	item.LastKeyword = h.lastKeyword
	item.TotalRequests = h.requests
	item.TotalFailures = h.failures
	item.TimeoutCount = h.timeouts
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Service) isEngineBlocked(name string, now time.Time) (bool, time.Time, string) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	state := s.health[name]
	if state == nil || !state.blockedAt(now) {
		return false, time.Time{}, ""
	}
	return true, state.blockedUntil, state.lastError
}

func (s *Service) recordEngineResult(name, keyword string, err error, count int, latency time.Duration, now time.Time) {
	s.healthMu.Lock()
	state := s.health[name]
	if state == nil {
		state = &engineHealth{}
		s.health[name] = state
	}
	status := state.observe(keyword, err, count, latency, now)
	blocked := state.blockedAt(now)
	s.healthMu.Unlock()

	if latency > 0 {
		metrics.EngineRequestDuration.WithLabelValues(name).Observe(latency.Seconds())
	}
	metrics.EngineRequestsTotal.WithLabelValues(name, status).Inc()
	available := 1.0
	if blocked {
		available = 0
	}
	metrics.EngineAvailable.WithLabelValues(name).Set(available)
}

func exponentialBlockDuration(consecutiveFailures int) time.Duration {
	d := engineBlockBase
	for i := engineFailureThreshold; i < consecutiveFailures; i++ {
		d *= 2
		if d >= engineBlockMax {
			return engineBlockMax
		}
	}
	return d
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}

// EngineDiagnostics reports breaker and latency state for every registered
// engine, sorted by id. Engines never called carry only their identity.
func (s *Service) EngineDiagnostics() []domain.EngineDiagnostics {
	infos := s.Engines()

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	items := make([]domain.EngineDiagnostics, 0, len(infos))
	for _, info := range infos {
		item := domain.EngineDiagnostics{
			Name:    info.Name,
			Label:   info.Label,
			Kind:    info.Kind,
			Enabled: info.Enabled,
		}
		if state := s.health[info.Name]; state != nil {
			state.fill(&item)
		}
		items = append(items, item)
	}
	return items
}
