package models

// PoolStatus is a point-in-time snapshot of the worker pool, reported by the
// health endpoint.
type PoolStatus struct {
	Size        int   `json:"size"`
	Idle        int   `json:"idle"`
	Active      int   `json:"active"`
	MaxSize     int   `json:"max_size"`
	MemoryBytes int64 `json:"memory_bytes"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	// Status is "healthy" or "degraded".
	Status string `json:"status"`

	Uptime  string `json:"uptime"`
	Version string `json:"version"`

	Pool PoolStatus `json:"pool"`

	// Breaker is the circuit breaker state ("closed", "open", "half_open").
	Breaker string `json:"breaker"`

	// CacheEntries is the number of cached documents, -1 when the backend
	// cannot count cheaply.
	CacheEntries int `json:"cache_entries"`
}
