package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/theimaginaryfoundation/intent-tree/intenttree/provider"
	"gopkg.in/yaml.v3"
)

const (
	backendHTTP   = "http"
	backendOpenAI = "openai"
)

type Config struct {
	ConfigPath string
	Inputs     []string
	OutputPath string
	Pretty     bool
	Overwrite  bool
	Backend    string
	URL        string
	QueryParam string
	Timeout    time.Duration
	Model      string
	Intents    []string
	APIKey     string
	LogLevel   string
	LogFormat  string
}

func (c Config) Validate() error {
	if len(c.Inputs) == 0 {
		return errors.New("missing input: pass -in or dialog files as arguments")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown -log-format %q (want text or json)", c.LogFormat)
	}
	switch c.Backend {
	case backendHTTP:
		if c.URL == "" {
			return errors.New("missing -url")
		}
	case backendOpenAI:
		if c.Model == "" {
			return errors.New("missing -model")
		}
		if len(c.Intents) == 0 {
			return errors.New("missing -intents (required for the openai backend)")
		}
	default:
		return fmt.Errorf("unknown -backend %q (want %s or %s)", c.Backend, backendHTTP, backendOpenAI)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Pretty:     true,
		Backend:    backendHTTP,
		URL:        provider.DefaultParseURL,
		QueryParam: "q",
		Timeout:    10 * time.Second,
		Model:      "gpt-5-mini",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// fileConfig mirrors Config for -config files. Nil fields leave the current value alone.
type fileConfig struct {
	Inputs     []string `yaml:"inputs"`
	Out        *string  `yaml:"out"`
	Pretty     *bool    `yaml:"pretty"`
	Overwrite  *bool    `yaml:"overwrite"`
	Backend    *string  `yaml:"backend"`
	URL        *string  `yaml:"url"`
	QueryParam *string  `yaml:"query_param"`
	Timeout    *string  `yaml:"timeout"`
	Model      *string  `yaml:"model"`
	Intents    []string `yaml:"intents"`
	LogLevel   *string  `yaml:"log_level"`
	LogFormat  *string  `yaml:"log_format"`
}

func loadFileConfig(path string) (fileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var fc fileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return fileConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

// apply copies file values into cfg, skipping every flag named in explicit.
func (fc fileConfig) apply(cfg *Config, explicit map[string]bool) error {
	setString := func(flagName string, src *string, dst *string) {
		if src != nil && !explicit[flagName] {
			*dst = strings.TrimSpace(*src)
		}
	}
	setBool := func(flagName string, src *bool, dst *bool) {
		if src != nil && !explicit[flagName] {
			*dst = *src
		}
	}

	if len(fc.Inputs) > 0 && !explicit["in"] {
		cfg.Inputs = append(cfg.Inputs, fc.Inputs...)
	}
	setString("out", fc.Out, &cfg.OutputPath)
	setBool("pretty", fc.Pretty, &cfg.Pretty)
	setBool("overwrite", fc.Overwrite, &cfg.Overwrite)
	setString("backend", fc.Backend, &cfg.Backend)
	setString("url", fc.URL, &cfg.URL)
	setString("query-param", fc.QueryParam, &cfg.QueryParam)
	setString("model", fc.Model, &cfg.Model)
	setString("log-level", fc.LogLevel, &cfg.LogLevel)
	setString("log-format", fc.LogFormat, &cfg.LogFormat)
	if len(fc.Intents) > 0 && !explicit["intents"] {
		cfg.Intents = splitList(strings.Join(fc.Intents, ","))
	}
	if fc.Timeout != nil && !explicit["timeout"] {
		d, err := time.ParseDuration(strings.TrimSpace(*fc.Timeout))
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		cfg.Timeout = d
	}
	return nil
}

// stringList is a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	var inputs stringList
	var intents string
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional YAML config file; explicit flags override its values")
	fs.Var(&inputs, "in", "Dialog JSON file or directory of dialog JSON files (repeatable)")
	fs.StringVar(&cfg.OutputPath, "out", cfg.OutputPath, "Write the intent tree to this file instead of stdout")
	fs.BoolVar(&cfg.Pretty, "pretty", cfg.Pretty, "Indent the output JSON")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Overwrite an existing -out file")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Classifier backend: http (NLU parse endpoint) or openai")
	fs.StringVar(&cfg.URL, "url", cfg.URL, "NLU parse endpoint for the http backend")
	fs.StringVar(&cfg.QueryParam, "query-param", cfg.QueryParam, "Query parameter carrying the utterance text")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Timeout for each classification request")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model for the openai backend")
	fs.StringVar(&intents, "intents", "", "Comma-separated intent catalog for the openai backend")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags] [dialog.json ...]\n\nFlags:\n", fs.Name())
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExample:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/intent-tree -in dialogs/ -out tree.json")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Inputs = append(cfg.Inputs, inputs...)
	cfg.Inputs = append(cfg.Inputs, fs.Args()...)
	cfg.Intents = splitList(intents)

	if cfg.ConfigPath != "" {
		explicit := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

		fc, err := loadFileConfig(cfg.ConfigPath)
		if err != nil {
			return Config{}, err
		}
		if err := fc.apply(&cfg, explicit); err != nil {
			return Config{}, err
		}
	}

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
