package search

import (
	"context"
	"errors"

	"metasearch/searchservice/internal/domain"
)

var (
	ErrInvalidKeyword  = errors.New("keyword is required")
	ErrKeywordTooShort = errors.New("keyword is too short")
	ErrNoEngines       = errors.New("no search engines selected")
	ErrUnknownEngine   = errors.New("unknown engine")
	ErrInvalidLimit    = errors.New("limit must be >= 1")
	ErrInvalidLanguage = errors.New("invalid language tag")
)

// Engine queries one search backend. Implementations must honour ctx
// cancellation; the caller applies the per-engine deadline.
type Engine interface {
	Name() string
	Info() domain.EngineInfo
	Search(ctx context.Context, query domain.EngineQuery) ([]domain.RawResult, error)
}

// ImageProvider resolves a representative image for a page. An empty URL
// with a nil error means the page has none.
type ImageProvider interface {
	FetchImage(ctx context.Context, pageURL string) (string, error)
}

type SuggestionProvider interface {
	Suggest(ctx context.Context, keyword string) ([]string, error)
}

// EngineSwitch reports whether an operator left an engine enabled.
type EngineSwitch interface {
	Enabled(name string) bool
}
