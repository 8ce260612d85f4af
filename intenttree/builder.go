package intenttree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Builder merges dialogs into one shared Tree. AddDialog is safe for concurrent use.
//
// A dialog that fails part way keeps the nodes and phrases it already merged; BuildTree
// discards the whole tree on any failure, so partial merges never reach its callers.
type Builder struct {
	tree   *Tree
	cache  *Cache
	logger *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger for progress events. Defaults to slog.Default().
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder returns a builder with an empty tree that resolves user turns through cache.
func NewBuilder(cache *Cache, opts ...BuilderOption) *Builder {
	b := &Builder{
		tree:   NewTree(),
		cache:  cache,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) Tree() *Tree { return b.tree }

// AddDialog walks one dialog from the root, descending one level per turn. It stops at the
// first classification failure.
func (b *Builder) AddDialog(ctx context.Context, dialog Dialog) error {
	if ctx == nil {
		return errors.New("AddDialog: ctx is nil")
	}
	if b.cache == nil {
		return errors.New("AddDialog: cache is nil")
	}

	node := b.tree.Root()
	for i, u := range dialog {
		if err := ctx.Err(); err != nil {
			return err
		}

		label := BotLabel
		if !u.IsBot {
			var err error
			label, err = b.cache.Resolve(ctx, u.Text)
			if err != nil {
				return fmt.Errorf("AddDialog: turn %d: %w", i, err)
			}
		}
		node = b.tree.Descend(node, label, u.Text)
	}
	return nil
}

// BuildTree merges all dialogs into one tree and exports it. Every dialog is traversed in its own
// goroutine against a shared tree and a shared cache scoped to this call. If any traversal fails,
// the remaining ones are cancelled and the first error is returned with no tree.
func BuildTree(ctx context.Context, classifier Classifier, dialogs []Dialog, opts ...BuilderOption) ([]Record, error) {
	if ctx == nil {
		return nil, errors.New("BuildTree: ctx is nil")
	}
	if classifier == nil {
		return nil, errors.New("BuildTree: classifier is nil")
	}

	start := time.Now()
	cache := NewCache(classifier)
	b := NewBuilder(cache, opts...)

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range dialogs {
		g.Go(func() error {
			if err := b.AddDialog(gctx, d); err != nil {
				return fmt.Errorf("dialog %d: %w", i, err)
			}
			b.logger.Debug("dialog merged", "dialog", i, "turns", len(d))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("BuildTree: %w", err)
	}

	tree := b.tree.Export()
	stats := cache.Stats()
	b.logger.Info("intent tree built",
		"dialogs", len(dialogs),
		"unique_texts", stats.Entries,
		"classifier_calls", stats.Misses,
		"cache_hits", stats.Hits,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return tree, nil
}
