package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/theimaginaryfoundation/intent-tree/intenttree"
)

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("intent-tree", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-in", "dialogs",
		"-out", "tree.json",
		"-pretty=false",
		"-overwrite",
		"-backend", "OpenAI",
		"-timeout", "3s",
		"-model", "gpt-5-mini",
		"-intents", "GREETING, PRICE,,",
		"-api-key", "k",
		"-log-level", "debug",
		"-log-format", "JSON",
		"extra.json",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if len(cfg.Inputs) != 2 || cfg.Inputs[0] != "dialogs" || cfg.Inputs[1] != "extra.json" {
		t.Fatalf("Inputs=%v", cfg.Inputs)
	}
	if cfg.OutputPath != "tree.json" || cfg.Pretty || !cfg.Overwrite {
		t.Fatalf("OutputPath=%q Pretty=%v Overwrite=%v", cfg.OutputPath, cfg.Pretty, cfg.Overwrite)
	}
	if cfg.Backend != backendOpenAI || cfg.Timeout != 3*time.Second {
		t.Fatalf("Backend=%q Timeout=%v", cfg.Backend, cfg.Timeout)
	}
	if len(cfg.Intents) != 2 || cfg.Intents[0] != "GREETING" || cfg.Intents[1] != "PRICE" {
		t.Fatalf("Intents=%v", cfg.Intents)
	}
	if cfg.APIKey != "k" || cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Fatalf("APIKey=%q LogLevel=%q LogFormat=%q", cfg.APIKey, cfg.LogLevel, cfg.LogFormat)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseFlags_ConfigFileYieldsToExplicitFlags(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "intent-tree.yaml")
	yml := `inputs: [a.json, b.json]
out: from-file.json
url: http://nlu.local/parse
query_param: text
timeout: 2s
log_level: warn
`
	if err := os.WriteFile(cfgPath, []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fs := flag.NewFlagSet("intent-tree", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{"-config", cfgPath, "-out", "from-flag.json"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.OutputPath != "from-flag.json" {
		t.Fatalf("OutputPath=%q, want explicit flag value", cfg.OutputPath)
	}
	if len(cfg.Inputs) != 2 || cfg.URL != "http://nlu.local/parse" || cfg.QueryParam != "text" {
		t.Fatalf("Inputs=%v URL=%q QueryParam=%q", cfg.Inputs, cfg.URL, cfg.QueryParam)
	}
	if cfg.Timeout != 2*time.Second || cfg.LogLevel != "warn" {
		t.Fatalf("Timeout=%v LogLevel=%q", cfg.Timeout, cfg.LogLevel)
	}
	if !cfg.Pretty || cfg.Backend != backendHTTP {
		t.Fatalf("defaults lost: Pretty=%v Backend=%q", cfg.Pretty, cfg.Backend)
	}
}

func TestParseFlags_ConfigFileRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte("urll: x\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	fs := flag.NewFlagSet("intent-tree", flag.ContinueOnError)
	if _, err := parseFlags(fs, []string{"-config", cfgPath}); err == nil {
		t.Fatalf("expected error for unknown config key")
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected error")
	}

	cfg := defaultConfig()
	cfg.Inputs = []string{"d.json"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	bad := cfg
	bad.Backend = "grpc"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}

	openaiCfg := cfg
	openaiCfg.Backend = backendOpenAI
	if err := openaiCfg.Validate(); err == nil {
		t.Fatalf("expected error for openai backend without intents")
	}
	openaiCfg.Intents = []string{"GREETING"}
	if err := openaiCfg.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func writeDialog(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func nluServer(t *testing.T, intents map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, ok := intents[r.URL.Query().Get("q")]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `{"intent":{"name":"`+name+`"}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_WritesMergedTree(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeDialog(t, dir, "a.json", `[{"text":"hi","is_bot":false},{"text":"hello back","is_bot":true}]`)
	writeDialog(t, dir, "b.json", `[{"text":"hi","is_bot":false,"intent":"ignored"},{"text":"different bot line","is_bot":true}]`)
	srv := nluServer(t, map[string]string{"hi": "GREETING"})

	cfg := defaultConfig()
	cfg.Inputs = []string{dir}
	cfg.URL = srv.URL
	cfg.Pretty = false

	var stdout bytes.Buffer
	if err := run(context.Background(), cfg, &stdout, quietLogger()); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := `[{"intent":"GREETING","is_bot":false,"phrases":["hi"],"replies":[{"is_bot":true,"phrases":["different bot line","hello back"],"replies":[]}]}]` + "\n"
	if stdout.String() != want {
		t.Fatalf("stdout=%s\nwant   %s", stdout.String(), want)
	}
}

func TestRun_OutputFileAndOverwrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeDialog(t, dir, "a.json", `[{"text":"hi","is_bot":false}]`)
	srv := nluServer(t, map[string]string{"hi": "GREETING"})
	out := filepath.Join(t.TempDir(), "tree.json")

	cfg := defaultConfig()
	cfg.Inputs = []string{filepath.Join(dir, "a.json")}
	cfg.URL = srv.URL
	cfg.OutputPath = out

	if err := run(context.Background(), cfg, io.Discard, quietLogger()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("stat %s: %v", out, err)
	}
	if err := run(context.Background(), cfg, io.Discard, quietLogger()); err == nil {
		t.Fatalf("expected error when output exists without -overwrite")
	}
	cfg.Overwrite = true
	if err := run(context.Background(), cfg, io.Discard, quietLogger()); err != nil {
		t.Fatalf("run with overwrite: %v", err)
	}
}

func TestRun_ClassificationFailureProducesNoOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeDialog(t, dir, "a.json", `[{"text":"hi","is_bot":false}]`)
	writeDialog(t, dir, "b.json", `[{"text":"unknown","is_bot":false}]`)
	srv := nluServer(t, map[string]string{"hi": "GREETING"})

	cfg := defaultConfig()
	cfg.Inputs = []string{dir}
	cfg.URL = srv.URL

	var stdout bytes.Buffer
	err := run(context.Background(), cfg, &stdout, quietLogger())
	var ce *intenttree.ClassificationError
	if !errors.As(err, &ce) || ce.StatusCode != http.StatusInternalServerError {
		t.Fatalf("err=%v, want ClassificationError with status 500", err)
	}
	if stdout.Len() != 0 {
		t.Fatalf("stdout=%q, want nothing", stdout.String())
	}
}

func TestRun_InvalidInputBeforeAnyRequest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeDialog(t, dir, "a.json", `[{"text":"hi"}]`)

	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	cfg := defaultConfig()
	cfg.Inputs = []string{dir}
	cfg.URL = srv.URL

	err := run(context.Background(), cfg, io.Discard, quietLogger())
	var invalid *intenttree.InvalidInputError
	if !errors.As(err, &invalid) || invalid.Field != "is_bot" {
		t.Fatalf("err=%v, want InvalidInputError for is_bot", err)
	}
	if n := requests.Load(); n != 0 {
		t.Fatalf("requests=%d, want 0", n)
	}
}
