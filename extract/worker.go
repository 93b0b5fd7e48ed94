package extract

import (
	"context"
	"fmt"

	"github.com/use-agent/skimmer/models"
	"github.com/use-agent/skimmer/pool"
)

// workerBaselineBytes approximates the fixed footprint of a worker runtime
// before any document is loaded.
const workerBaselineBytes = 4 << 20

// inputExpansionFactor approximates how much working memory an extraction
// needs per input byte (parsed DOM, readability scratch, markdown output).
const inputExpansionFactor = 4

// sandboxedWorker adapts an Extractor into a pool.Worker that asks its
// instance's ResourceTracker for memory before every extraction. A refusal
// fails the extraction and counts as a grow failure on the instance, which
// the pool's health sweep acts on.
type sandboxedWorker struct {
	inner   Extractor
	tracker *pool.ResourceTracker
}

// NewWorkerFactory returns a pool.WorkerFactory wrapping inner. The inner
// extractor must be safe for concurrent use since workers share it.
func NewWorkerFactory(inner Extractor) pool.WorkerFactory {
	return func(tracker *pool.ResourceTracker) (pool.Worker, error) {
		if tracker == nil {
			return nil, fmt.Errorf("extract: worker requires a resource tracker")
		}
		return &sandboxedWorker{inner: inner, tracker: tracker}, nil
	}
}

func (w *sandboxedWorker) Extract(ctx context.Context, rawHTML, pageURL string, mode models.ExtractMode) (*models.Document, error) {
	desired := int64(workerBaselineBytes) + int64(len(rawHTML))*inputExpansionFactor
	if !w.tracker.MemoryGrowing(w.tracker.CurrentBytes(), desired) {
		return nil, fmt.Errorf("%w: need %d bytes, limit %d",
			ErrMemoryLimit, desired, w.tracker.LimitBytes())
	}
	return w.inner.Extract(ctx, rawHTML, pageURL, mode)
}

func (w *sandboxedWorker) Close() error { return nil }
