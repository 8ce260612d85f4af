package intenttree

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Utterance is one turn of a dialog.
type Utterance struct {
	Text  string `json:"text"`
	IsBot bool   `json:"is_bot"`
	// Intent is an optional precomputed label. It is accepted on input and never consumed.
	Intent string `json:"intent,omitempty"`
}

// Dialog is one conversation: an ordered list of turns.
type Dialog []Utterance

type rawUtterance struct {
	Text   *string `json:"text"`
	IsBot  *bool   `json:"is_bot"`
	Intent *string `json:"intent"`
}

var errMissingField = errors.New("required field is missing")

// DecodeDialog reads a JSON array of {text, is_bot, intent?} records.
// Both text and is_bot are required; a missing field yields an *InvalidInputError.
func DecodeDialog(source string, r io.Reader) (Dialog, error) {
	var raw []rawUtterance
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, &InvalidInputError{Source: source, Index: -1, Err: err}
	}

	dialog := make(Dialog, 0, len(raw))
	for i, rec := range raw {
		if rec.Text == nil {
			return nil, &InvalidInputError{Source: source, Index: i, Field: "text", Err: errMissingField}
		}
		if rec.IsBot == nil {
			return nil, &InvalidInputError{Source: source, Index: i, Field: "is_bot", Err: errMissingField}
		}
		u := Utterance{Text: *rec.Text, IsBot: *rec.IsBot}
		if rec.Intent != nil {
			u.Intent = *rec.Intent
		}
		dialog = append(dialog, u)
	}
	return dialog, nil
}

// ReadDialogFile reads and validates a single dialog file.
func ReadDialogFile(path string) (Dialog, error) {
	if path == "" {
		return nil, errors.New("ReadDialogFile: path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadDialogFile: open: %w", err)
	}
	defer f.Close()
	return DecodeDialog(path, f)
}

// ReadDialogFiles reads every file in order. It fails on the first invalid file, before any
// dialog is handed to a builder.
func ReadDialogFiles(paths []string) ([]Dialog, error) {
	dialogs := make([]Dialog, 0, len(paths))
	for _, p := range paths {
		d, err := ReadDialogFile(p)
		if err != nil {
			return nil, err
		}
		dialogs = append(dialogs, d)
	}
	return dialogs, nil
}
