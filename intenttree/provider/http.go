package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/theimaginaryfoundation/intent-tree/intenttree"
	"github.com/theimaginaryfoundation/intent-tree/intenttree/fileutils"
	"github.com/tidwall/gjson"
)

// DefaultParseURL is the NLU parse endpoint used when no URL is configured.
const DefaultParseURL = "https://sandbox.twin24.ai/parse"

const maxErrorBody = 512

// HTTPClassifier classifies an utterance with one GET request to an NLU parse endpoint,
// sending the text as a query parameter and reading intent.name from the JSON reply.
type HTTPClassifier struct {
	baseURL    string
	queryParam string
	http       *http.Client
	logger     *slog.Logger
}

// HTTPOption configures an HTTPClassifier.
type HTTPOption func(*HTTPClassifier)

// WithHTTPClient replaces the underlying client. Its timeout is left as is.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClassifier) {
		if c != nil {
			h.http = c
		}
	}
}

// WithQueryParam sets the query parameter carrying the text (default "q").
func WithQueryParam(name string) HTTPOption {
	return func(h *HTTPClassifier) {
		if name = strings.TrimSpace(name); name != "" {
			h.queryParam = name
		}
	}
}

// WithHTTPLogger sets the logger for classification events.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(h *HTTPClassifier) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHTTPClassifier returns a classifier for baseURL. A non-positive timeout falls back to 10s.
func NewHTTPClassifier(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultParseURL
	}
	h := &HTTPClassifier{
		baseURL:    baseURL,
		queryParam: "q",
		http:       &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Classify implements intenttree.Classifier. Any non-200 status, transport error or
// non-JSON body yields an *intenttree.ClassificationError. A missing or null intent.name
// resolves to intenttree.NoIntent.
func (h *HTTPClassifier) Classify(ctx context.Context, text string) (intenttree.Label, error) {
	reqURL, err := h.requestURL(text)
	if err != nil {
		return intenttree.Label{}, &intenttree.ClassificationError{Text: text, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return intenttree.Label{}, &intenttree.ClassificationError{Text: text, URL: reqURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.http.Do(req)
	if err != nil {
		return intenttree.Label{}, &intenttree.ClassificationError{Text: text, URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return intenttree.Label{}, &intenttree.ClassificationError{Text: text, URL: reqURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return intenttree.Label{}, &intenttree.ClassificationError{
			StatusCode: resp.StatusCode,
			Text:       text,
			URL:        reqURL,
			Err:        fmt.Errorf("body=%s", fileutils.Truncate(string(body), maxErrorBody)),
		}
	}

	label, err := labelFromParseResponse(body)
	if err != nil {
		return intenttree.Label{}, &intenttree.ClassificationError{Text: text, URL: reqURL, Err: err}
	}
	h.logger.Info("classified", "text", fileutils.Truncate(text, 120), "intent", label.String())
	return label, nil
}

func (h *HTTPClassifier) requestURL(text string) (string, error) {
	u, err := url.Parse(h.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set(h.queryParam, text)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// labelFromParseResponse accepts a JSON object whose "intent" is missing, null or an object.
// Any other shape is a malformed response, not a missing intent.
func labelFromParseResponse(body []byte) (intenttree.Label, error) {
	if !gjson.ValidBytes(body) {
		return intenttree.Label{}, errors.New("response is not valid JSON")
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return intenttree.Label{}, fmt.Errorf("response is not a JSON object: %s", fileutils.Truncate(doc.Raw, maxErrorBody))
	}
	intent := doc.Get("intent")
	switch {
	case !intent.Exists(), intent.Type == gjson.Null:
		return intenttree.NoIntent, nil
	case !intent.IsObject():
		return intenttree.Label{}, fmt.Errorf("intent is not an object: %s", fileutils.Truncate(intent.Raw, maxErrorBody))
	}

	name := intent.Get("name")
	switch {
	case !name.Exists(), name.Type == gjson.Null:
		return intenttree.NoIntent, nil
	case name.Type != gjson.String:
		return intenttree.Label{}, fmt.Errorf("intent.name is not a string: %s", name.Raw)
	}
	return intenttree.IntentLabel(name.Str), nil
}
