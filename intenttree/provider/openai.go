package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
	"github.com/theimaginaryfoundation/intent-tree/intenttree"
	"github.com/theimaginaryfoundation/intent-tree/intenttree/fileutils"
)

const classifyIntentPrompt = `You label single user utterances from customer dialogs with an intent.

You will receive JSON with "text" (the utterance) and "intents" (the allowed intent names).
Return JSON {"intent": "<name>"} using exactly one of the allowed names.
Return {"intent": ""} when none of the intents fits the utterance.`

type intentChoice struct {
	Intent string `json:"intent" jsonschema:"description=One of the allowed intent names or empty when none fits"`
}

type classifyRequest struct {
	Text    string   `json:"text"`
	Intents []string `json:"intents"`
}

var intentChoiceSchema = GenerateSchema[intentChoice]()

// OpenAIClassifier asks an OpenAI model to pick an intent for an utterance from a fixed catalog.
// It makes exactly one Responses API call per Classify; there are no retries.
type OpenAIClassifier struct {
	client  *openai.Client
	model   string
	catalog []string
	allowed map[string]struct{}
	schema  map[string]interface{}
	logger  *slog.Logger
}

// NewOpenAIClassifier validates the catalog and returns a classifier. logger may be nil.
func NewOpenAIClassifier(client *openai.Client, model string, catalog []string, logger *slog.Logger) (*OpenAIClassifier, error) {
	if client == nil {
		return nil, errors.New("NewOpenAIClassifier: client is nil")
	}
	if model == "" {
		return nil, errors.New("NewOpenAIClassifier: model is empty")
	}

	allowed := make(map[string]struct{}, len(catalog))
	cleaned := make([]string, 0, len(catalog))
	for _, name := range catalog {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := allowed[name]; dup {
			continue
		}
		allowed[name] = struct{}{}
		cleaned = append(cleaned, name)
	}
	if len(cleaned) == 0 {
		return nil, errors.New("NewOpenAIClassifier: intent catalog is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIClassifier{
		client:  client,
		model:   model,
		catalog: cleaned,
		allowed: allowed,
		schema:  withEnum(intentChoiceSchema, "intent", append([]string{""}, cleaned...)),
		logger:  logger,
	}, nil
}

// Classify implements intenttree.Classifier.
func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (intenttree.Label, error) {
	payload, err := json.Marshal(classifyRequest{Text: text, Intents: c.catalog})
	if err != nil {
		return intenttree.Label{}, &intenttree.ClassificationError{Text: text, Err: err}
	}

	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "IntentChoice",
			Schema:      c.schema,
			Strict:      openai.Bool(true),
			Description: openai.String("Intent chosen for the utterance"),
			Type:        "json_schema",
		},
	}
	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(200),
		Instructions:    openai.String(classifyIntentPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(string(payload), responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return intenttree.Label{}, &intenttree.ClassificationError{Text: text, Err: err}
	}

	label, err := c.parseChoice(resp.OutputText())
	if err != nil {
		return intenttree.Label{}, &intenttree.ClassificationError{Text: text, Err: err}
	}
	c.logger.Info("classified", "text", fileutils.Truncate(text, 120), "intent", label.String())
	return label, nil
}

func (c *OpenAIClassifier) parseChoice(outputText string) (intenttree.Label, error) {
	var out intentChoice
	if err := fileutils.DecodeModelJSON(outputText, &out); err != nil {
		return intenttree.Label{}, fmt.Errorf("decode model output: %w", err)
	}
	name := strings.TrimSpace(out.Intent)
	if name == "" {
		return intenttree.NoIntent, nil
	}
	if _, ok := c.allowed[name]; !ok {
		return intenttree.Label{}, fmt.Errorf("model returned unknown intent %q", name)
	}
	return intenttree.IntentLabel(name), nil
}
