package intenttree

import (
	"fmt"
	"strings"
)

// ClassificationError reports a failed classification call: a non-success status from the
// remote service, a transport error, or a response that could not be parsed.
type ClassificationError struct {
	// StatusCode is the HTTP status of a non-success response, or 0.
	StatusCode int
	// Text is the utterance being classified.
	Text string
	// URL is the request URL, when known.
	URL string
	// Err is the underlying transport or parse error, if any.
	Err error
}

func (e *ClassificationError) Error() string {
	var b strings.Builder
	b.WriteString("classify")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " GET %s", e.URL)
	}
	fmt.Fprintf(&b, " (text=%q)", e.Text)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// InvalidInputError reports a malformed dialog record.
type InvalidInputError struct {
	// Source names the dialog input, usually a file path.
	Source string
	// Index is the position of the offending record, or -1 when the whole input is malformed.
	Index int
	// Field is the missing or invalid field name, if known.
	Field string
	Err   error
}

func (e *InvalidInputError) Error() string {
	var b strings.Builder
	b.WriteString("invalid dialog")
	if e.Source != "" {
		fmt.Fprintf(&b, " %s", e.Source)
	}
	if e.Index >= 0 {
		fmt.Fprintf(&b, ": record %d", e.Index)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %q", e.Field)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *InvalidInputError) Unwrap() error { return e.Err }
