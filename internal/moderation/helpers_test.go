package moderation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tullo/guardian/internal/models"
)

// fakeClassifier is a scripted text classifier.
type fakeClassifier struct {
	name      string
	sig       Signal
	err       error
	delay     time.Duration
	ignoreCtx bool
	panics    bool
	calls     atomic.Int32
}

func (f *fakeClassifier) Name() string { return f.name }

func (f *fakeClassifier) Classify(ctx context.Context, text string) (Signal, error) {
	f.calls.Add(1)
	if f.panics {
		panic("classifier exploded")
	}
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return Signal{}, ctx.Err()
			}
		}
	}
	return f.sig, f.err
}

// fakeImages is a scripted image classifier.
type fakeImages struct {
	ann   ImageAnnotation
	err   error
	calls atomic.Int32
}

func (f *fakeImages) Annotate(ctx context.Context, url string) (ImageAnnotation, error) {
	f.calls.Add(1)
	return f.ann, f.err
}

// fakeTextAnalyzer returns a fixed aggregate for OCR text.
type fakeTextAnalyzer struct {
	agg  Aggregate
	seen []string
}

func (f *fakeTextAnalyzer) analyzeText(ctx context.Context, text string) Aggregate {
	f.seen = append(f.seen, text)
	return f.agg
}

// recordingRecorder captures every verdict handed to the recorder.
type recordingRecorder struct {
	mu      sync.Mutex
	results []*models.ModerationResult
	authors []string
}

func (r *recordingRecorder) Record(ctx context.Context, req models.ModerationRequest, result *models.ModerationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	r.authors = append(r.authors, req.AuthorID)
}

func (r *recordingRecorder) authorIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.authors...)
}

func (r *recordingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

// mapCache is a minimal ResultCache.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]*models.ModerationResult
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]*models.ModerationResult{}}
}

func (c *mapCache) Get(ctx context.Context, key string) (*models.ModerationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	return r.Clone(), ok
}

func (c *mapCache) Put(ctx context.Context, key string, result *models.ModerationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = result.Clone()
}

func (c *mapCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func textRequest(content string) models.ModerationRequest {
	return models.ModerationRequest{Content: content, ContentType: models.ContentTypePost, AuthorID: "author-1"}
}
