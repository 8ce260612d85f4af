package intenttree

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// fakeClassifier maps texts to labels and counts calls per text.
// When gate is non-nil every call blocks until it is closed.
type fakeClassifier struct {
	labels map[string]Label
	fail   map[string]error
	gate   chan struct{}

	mu    sync.Mutex
	calls map[string]int
	total atomic.Int64
}

func newFakeClassifier(labels map[string]string) *fakeClassifier {
	f := &fakeClassifier{
		labels: make(map[string]Label, len(labels)),
		fail:   make(map[string]error),
		calls:  make(map[string]int),
	}
	for text, name := range labels {
		f.labels[text] = IntentLabel(name)
	}
	return f
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (Label, error) {
	f.mu.Lock()
	f.calls[text]++
	f.mu.Unlock()
	f.total.Add(1)

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return Label{}, ctx.Err()
		}
	}
	if err, ok := f.fail[text]; ok {
		return Label{}, err
	}
	if label, ok := f.labels[text]; ok {
		return label, nil
	}
	return NoIntent, nil
}

func (f *fakeClassifier) callsFor(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

var errRemote = errors.New("remote unavailable")
