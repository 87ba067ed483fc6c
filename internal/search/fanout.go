package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"metasearch/searchservice/internal/domain"
	"metasearch/searchservice/internal/metrics"
)

// aggregate queries every engine concurrently and returns one outcome per
// engine, in the order of names. It returns once every engine has settled;
// an engine that fails or overruns its deadline yields a failed outcome
// instead of an error.
func (s *Service) aggregate(ctx context.Context, query domain.EngineQuery, names []string) []domain.EngineOutcome {
	outcomes := make([]domain.EngineOutcome, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(index int, name string) {
			defer wg.Done()
			outcomes[index] = s.queryEngine(ctx, name, query)
		}(i, name)
	}
	wg.Wait()
	return outcomes
}

func (s *Service) queryEngine(ctx context.Context, name string, query domain.EngineQuery) (outcome domain.EngineOutcome) {
	outcome = domain.EngineOutcome{Engine: name}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("engine panicked",
				slog.String("engine", name),
				slog.Any("panic", r),
			)
			outcome = domain.EngineOutcome{Engine: name, Error: "internal engine error"}
		}
	}()

	engine, ok := s.engines[name]
	if !ok {
		outcome.Error = "unknown engine"
		return outcome
	}
	if !s.engineEnabled(name) {
		outcome.Error = "engine disabled"
		metrics.EngineRequestsTotal.WithLabelValues(name, "disabled").Inc()
		return outcome
	}
	if blocked, until, lastErr := s.isEngineBlocked(name, time.Now()); blocked {
		outcome.Error = fmt.Sprintf("engine temporarily unhealthy until %s: %s", until.UTC().Format(time.RFC3339), lastErr)
		metrics.EngineRequestsTotal.WithLabelValues(name, "blocked").Inc()
		return outcome
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startedAt := time.Now()
	var items []domain.RawResult
	err := RetryWithBackoff(runCtx, s.retry, func() error {
		var searchErr error
		items, searchErr = engine.Search(runCtx, query)
		return searchErr
	})
	outcome.Elapsed = time.Since(startedAt)

	// A caller that went away says nothing about the engine's health.
	if ctx.Err() == nil {
		s.recordEngineResult(name, query.Keyword, err, len(items), outcome.Elapsed, time.Now())
	}

	if err != nil {
		outcome.TimedOut = errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded)
		if outcome.TimedOut {
			outcome.Error = fmt.Sprintf("timed out after %s", s.timeout)
		} else {
			outcome.Error = err.Error()
		}
		s.logger.Warn("engine search failed",
			slog.String("engine", name),
			slog.String("keyword", query.Keyword),
			slog.Bool("timeout", outcome.TimedOut),
			slog.Duration("elapsed", outcome.Elapsed),
			slog.String("error", err.Error()),
		)
		return outcome
	}

	if items == nil {
		items = []domain.RawResult{}
	}
	outcome.Success = true
	outcome.Results = items
	return outcome
}

func engineStatuses(outcomes []domain.EngineOutcome) (statuses []domain.EngineStatus, used, failed []string) {
	statuses = make([]domain.EngineStatus, 0, len(outcomes))
	used = make([]string, 0, len(outcomes))
	failed = make([]string, 0)
	for _, outcome := range outcomes {
		statuses = append(statuses, domain.EngineStatus{
			Name:      outcome.Engine,
			OK:        outcome.Success,
			Count:     len(outcome.Results),
			Error:     outcome.Error,
			TimedOut:  outcome.TimedOut,
			ElapsedMS: outcome.Elapsed.Milliseconds(),
		})
		if outcome.Success {
			used = append(used, outcome.Engine)
		} else {
			failed = append(failed, outcome.Engine)
		}
	}
	return statuses, used, failed
}
