package models

// ExtractRequest is the payload for POST /v1/extract.
type ExtractRequest struct {
	// URL is the target page. Required.
	URL string `json:"url" binding:"required,url"`

	// Mode controls the extraction strategy.
	// "article" (default): main readable content only.
	// "full": whole body text plus links and media.
	// "metadata": title/description/metadata only.
	Mode string `json:"mode,omitempty" binding:"omitempty,oneof=article full metadata"`

	// MaxAgeMs accepts a cached document no older than this.
	// 0 disables the cache lookup for this request.
	MaxAgeMs int64 `json:"max_age_ms,omitempty" binding:"omitempty,min=0"`

	// ForceHeadless skips the gate and renders in a browser unconditionally.
	ForceHeadless bool `json:"force_headless,omitempty"`

	// Timeout is the maximum duration in seconds for the entire
	// operation (fetch + gate + extraction, rendering included).
	// Default: 30. Max: 120.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`
}

// Defaults applies default values to unset fields.
func (r *ExtractRequest) Defaults() {
	if r.Mode == "" {
		r.Mode = string(ModeArticle)
	}
	if r.Timeout == 0 {
		r.Timeout = 30
	}
}

// ExtractResponse is the response for POST /v1/extract.
type ExtractResponse struct {
	// Success indicates whether the extraction completed without errors.
	Success bool `json:"success"`

	// Document is the extraction result.
	Document *Document `json:"document,omitempty"`

	// Decision is the gate decision that was executed
	// ("raw", "probes_first", "headless", "cached").
	Decision string `json:"decision,omitempty"`

	// CacheHit reports whether the document came from the cache.
	CacheHit bool `json:"cache_hit"`

	// Attempts is the number of primary extraction attempts made.
	Attempts int `json:"attempts,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo provides duration breakdowns for an extract operation.
type TimingInfo struct {
	TotalMs      int64 `json:"total_ms"`
	FetchMs      int64 `json:"fetch_ms"`
	GateMs       int64 `json:"gate_ms"`
	RenderMs     int64 `json:"render_ms,omitempty"`
	ExtractionMs int64 `json:"extraction_ms"`
}
