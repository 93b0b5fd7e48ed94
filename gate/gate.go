// Package gate scores fetched pages and decides the extraction strategy.
package gate

// Decision is the strategy chosen for a page. The set is closed: callers
// switch over it and new strategies are a code change, not a plug-in.
type Decision int

const (
	// Raw extracts from the fetched HTML directly.
	Raw Decision = iota
	// ProbesFirst tries Raw, then escalates to Headless when the result
	// quality is too low.
	ProbesFirst
	// Headless renders in a browser before extracting.
	Headless
	// Cached serves the stored document without fetching.
	Cached
)

func (d Decision) String() string {
	switch d {
	case Raw:
		return "raw"
	case ProbesFirst:
		return "probes_first"
	case Headless:
		return "headless"
	case Cached:
		return "cached"
	default:
		return "unknown"
	}
}

// Decide maps a quality score onto a strategy. Pure: same inputs, same
// decision. A cache hit wins unconditionally; a high score means the static
// HTML is good enough to extract as-is; a low score means the page almost
// certainly needs rendering; the band in between probes before paying for a
// browser. Requires hi > lo.
func Decide(score, hi, lo float64, cacheHit bool) Decision {
	switch {
	case cacheHit:
		return Cached
	case score >= hi:
		return Raw
	case score <= lo:
		return Headless
	default:
		return ProbesFirst
	}
}
