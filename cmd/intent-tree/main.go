package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/theimaginaryfoundation/intent-tree/intenttree"
	"github.com/theimaginaryfoundation/intent-tree/intenttree/fileutils"
	"github.com/theimaginaryfoundation/intent-tree/intenttree/provider"
	"github.com/theimaginaryfoundation/intent-tree/internal/logging"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if cfg.Backend == backendOpenAI && cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		if cfg.APIKey == "" {
			fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
			os.Exit(2)
		}
	}

	logger := logging.Init(os.Stderr, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout, logger); err != nil {
		logger.Error("intent tree failed", "err", err)
		var invalid *intenttree.InvalidInputError
		if errors.As(err, &invalid) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// run loads every dialog, builds the tree and writes it to cfg.OutputPath or stdout.
// Input is fully validated before any classification request is made.
func run(ctx context.Context, cfg Config, stdout io.Writer, logger *slog.Logger) error {
	files, err := fileutils.CollectJSONFiles(cfg.Inputs...)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no input .json files found")
	}
	if cfg.OutputPath != "" && !cfg.Overwrite && fileutils.FileExists(cfg.OutputPath) {
		return fmt.Errorf("output file already exists: %s (pass -overwrite)", cfg.OutputPath)
	}

	dialogs, err := intenttree.ReadDialogFiles(files)
	if err != nil {
		return err
	}
	logger.Info("dialogs loaded", "files", len(files))

	classifier, err := newClassifier(cfg, logger)
	if err != nil {
		return err
	}

	tree, err := intenttree.BuildTree(ctx, classifier, dialogs, intenttree.WithLogger(logger))
	if err != nil {
		return err
	}

	if cfg.OutputPath == "" {
		return fileutils.EncodeJSON(stdout, tree, cfg.Pretty)
	}
	if err := fileutils.WriteJSONFileAtomic(cfg.OutputPath, tree, cfg.Pretty); err != nil {
		return fmt.Errorf("write %s: %w", cfg.OutputPath, err)
	}
	logger.Info("intent tree written", "path", cfg.OutputPath, "top_level", len(tree))
	return nil
}

func newClassifier(cfg Config, logger *slog.Logger) (intenttree.Classifier, error) {
	switch cfg.Backend {
	case backendOpenAI:
		client := openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithRequestTimeout(cfg.Timeout),
			option.WithMaxRetries(0),
		)
		return provider.NewOpenAIClassifier(&client, cfg.Model, cfg.Intents, logger)
	default:
		return provider.NewHTTPClassifier(cfg.URL, cfg.Timeout,
			provider.WithQueryParam(cfg.QueryParam),
			provider.WithHTTPLogger(logger),
		), nil
	}
}
