package search

import (
	"sort"
	"strings"

	"metasearch/searchservice/internal/domain"
)

type MergeResult struct {
	Results     []domain.AggregatedResult
	UniqueCount int
	RawCount    int
	Dropped     int
}

type mergeGroup struct {
	result    domain.AggregatedResult
	engines   map[string]struct{}
	order     int
	preferred bool
	count     int
}

// Merge flattens successful outcomes in order, collapses results sharing a
// canonical URL and ranks them: preferred engine first, then by number of
// contributing engines, then by first appearance. Truncation to limit happens
// after ranking the full set; a non-positive limit keeps everything.
func Merge(outcomes []domain.EngineOutcome, preferred string, limit int) MergeResult {
	groups := make(map[string]*mergeGroup)
	ordered := make([]*mergeGroup, 0)
	out := MergeResult{}

	for _, outcome := range outcomes {
		if !outcome.Success {
			continue
		}
		for _, raw := range outcome.Results {
			out.RawCount++
			canonical, ok := CanonicalURL(raw.URL)
			if !ok {
				out.Dropped++
				continue
			}
			group, exists := groups[canonical]
			if !exists {
				title := strings.TrimSpace(raw.Title)
				if title == "" {
					title = domain.UntitledTitle
				}
				group = &mergeGroup{
					result: domain.AggregatedResult{
						Title:        title,
						CanonicalURL: canonical,
						Snippet:      strings.TrimSpace(raw.Snippet),
						SourceEngine: outcome.Engine,
					},
					engines: make(map[string]struct{}, 1),
					order:   len(ordered),
				}
				groups[canonical] = group
				ordered = append(ordered, group)
			} else if group.result.Snippet == "" {
				group.result.Snippet = strings.TrimSpace(raw.Snippet)
			}
			group.engines[outcome.Engine] = struct{}{}
		}
	}

	for _, group := range ordered {
		group.count = len(group.engines)
		_, group.preferred = group.engines[preferred]
		group.result.ContributingEngines = make([]string, 0, group.count)
		for name := range group.engines {
			group.result.ContributingEngines = append(group.result.ContributingEngines, name)
		}
		sort.Strings(group.result.ContributingEngines)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return rankBefore(ordered[i], ordered[j])
	})

	out.UniqueCount = len(ordered)
	n := len(ordered)
	if limit > 0 && n > limit {
		n = limit
	}
	out.Results = make([]domain.AggregatedResult, 0, n)
	for _, group := range ordered[:n] {
		out.Results = append(out.Results, group.result)
	}
	return out
}

func rankBefore(a, b *mergeGroup) bool {
	if a.preferred != b.preferred {
		return a.preferred
	}
	if a.count != b.count {
		return a.count > b.count
	}
	return a.order < b.order
}
