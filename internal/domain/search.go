package domain

import "time"

const (
	DefaultLanguage = "zh-TW"
	UntitledTitle   = "untitled"
	UnknownSource   = "unknown"
	GlobalCountry   = "global"
)

type SearchRequest struct {
	Keyword  string   `json:"keyword"`
	Engines  []string `json:"engines"`
	Language string   `json:"lang"`
	Limit    int      `json:"limit"`
}

// EngineQuery is what a single engine receives for one aggregation call.
type EngineQuery struct {
	Keyword  string
	Language string
	Limit    int
}

type RawResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type EngineOutcome struct {
	Engine   string
	Success  bool
	Results  []RawResult
	Error    string
	TimedOut bool
	Elapsed  time.Duration
}

type AggregatedResult struct {
	Title               string    `json:"title"`
	CanonicalURL        string    `json:"link"`
	Snippet             string    `json:"snippet"`
	SourceLabel         string    `json:"source"`
	SourceEngine        string    `json:"sourceEngine"`
	Language            string    `json:"language"`
	CountryTag          string    `json:"country"`
	ImageURL            string    `json:"imageUrl,omitempty"`
	ContributingEngines []string  `json:"engines"`
	Timestamp           time.Time `json:"timestamp"`
}

type EngineStatus struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Count     int    `json:"count"`
	Error     string `json:"error,omitempty"`
	TimedOut  bool   `json:"timedOut,omitempty"`
	ElapsedMS int64  `json:"elapsedMs"`
}

type SearchResponse struct {
	Success         bool               `json:"success"`
	Keyword         string             `json:"keyword"`
	Language        string             `json:"lang"`
	Engines         []EngineStatus     `json:"engines"`
	EnginesUsed     []string           `json:"enginesUsed"`
	EnginesFailed   []string           `json:"enginesFailed"`
	Results         []AggregatedResult `json:"results"`
	TotalResults    int                `json:"totalResults"`
	TotalRawResults int                `json:"totalRawResults"`
	Suggestions     []string           `json:"suggestions"`
	Page            int                `json:"page"`
	PerPage         int                `json:"perPage"`
	TotalPages      int                `json:"totalPages"`
	CacheHit        bool               `json:"cacheHit"`
	ResponseTimeMS  int64              `json:"responseTimeMs"`
	Message         string             `json:"message,omitempty"`
}

type EngineInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

type EngineDiagnostics struct {
	Name                string     `json:"name"`
	Label               string     `json:"label"`
	Kind                string     `json:"kind"`
	Enabled             bool       `json:"enabled"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastKeyword         string     `json:"lastKeyword,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}

type EngineRuntimeConfig struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint,omitempty"`
}

type EngineRuntimePatch struct {
	Name     string
	Enabled  *bool
	Endpoint *string
}
