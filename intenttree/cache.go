package intenttree

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Classifier resolves the label of a single user utterance.
type Classifier interface {
	Classify(ctx context.Context, text string) (Label, error)
}

// CacheStats is a snapshot of cache activity.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// Cache memoizes classifier results by raw utterance text for the lifetime of one batch run.
//
// At most one classifier call is in flight per text; concurrent callers for the same text wait
// for that call and share its outcome. Failures are handed to the waiters of the failing call
// but are not stored, so a later Resolve for the same text calls the classifier again.
type Cache struct {
	classifier Classifier

	mu      sync.RWMutex
	entries map[string]Label

	inflight singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache returns an empty cache in front of classifier.
func NewCache(classifier Classifier) *Cache {
	return &Cache{
		classifier: classifier,
		entries:    make(map[string]Label),
	}
}

// Resolve returns the label for text, calling the classifier only when no result is cached
// and no call for the same text is already running.
//
// The shared call is detached from the cancellation of whichever caller started it: each
// caller stops waiting when its own ctx is done, while the call keeps running for the others
// and is bounded by the classifier's own timeout.
func (c *Cache) Resolve(ctx context.Context, text string) (Label, error) {
	if c == nil || c.classifier == nil {
		return Label{}, errors.New("Cache.Resolve: classifier is nil")
	}
	if label, ok := c.lookup(text); ok {
		c.hits.Add(1)
		return label, nil
	}

	callCtx := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(text, func() (any, error) {
		// A call that finished between lookup and DoChan has already stored its result.
		if label, ok := c.lookup(text); ok {
			c.hits.Add(1)
			return label, nil
		}
		c.misses.Add(1)
		label, err := c.classifier.Classify(callCtx, text)
		if err != nil {
			return Label{}, err
		}
		c.mu.Lock()
		c.entries[text] = label
		c.mu.Unlock()
		return label, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Label{}, res.Err
		}
		return res.Val.(Label), nil
	case <-ctx.Done():
		return Label{}, ctx.Err()
	}
}

// Stats reports hit and miss counters. Misses equal the number of classifier calls made.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: n,
	}
}

func (c *Cache) lookup(text string) (Label, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	label, ok := c.entries[text]
	return label, ok
}
