package domain

import "time"

type CacheSummary struct {
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	Evicted  uint64  `json:"evicted"`
	HitRatio float64 `json:"hitRatio"`
}

type CacheStats struct {
	CacheSummary
	PerEngineBreakdown map[string]int `json:"perEngineBreakdown"`
	Suggestions        CacheSummary   `json:"suggestions"`
	Images             CacheSummary   `json:"images"`
}

type MemoryStats struct {
	HeapAllocBytes uint64 `json:"heapAllocBytes"`
	HeapSysBytes   uint64 `json:"heapSysBytes"`
	SysBytes       uint64 `json:"sysBytes"`
	NumGC          uint32 `json:"numGC"`
}

type ServiceStats struct {
	Version           string       `json:"version"`
	StartedAt         time.Time    `json:"startedAt"`
	UptimeSeconds     int64        `json:"uptimeSeconds"`
	RequestsServed    int64        `json:"requestsServed"`
	SearchesPerformed int64        `json:"searchesPerformed"`
	AvgResponseTimeMS float64      `json:"avgResponseTimeMs"`
	Goroutines        int          `json:"goroutines"`
	Memory            MemoryStats  `json:"memory"`
	Cache             CacheSummary `json:"cache"`
	SuggestionsCache  CacheSummary `json:"suggestionsCache"`
	ImagesCache       CacheSummary `json:"imagesCache"`
}
