// Package repair turns the JavaScript object-literal event array embedded in
// the portal's agenda page into JSON.
//
// The input is not JSON: keys are bare, strings are single-quoted, values span
// lines, timestamps carry stray spaces and the array may end with a trailing
// comma. Rather than parsing that grammar, Repair applies a fixed, ordered list
// of textual rewrites and hands the result to encoding/json. Every step is
// idempotent and individually exported so it can be tested on its own.
//
// Known limitation: NormalizeQuotes rewrites every single quote, so a comment
// containing an apostrophe produces invalid JSON and surfaces as a ParseError.
package repair

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// KnownKeys are the bare object keys that QuoteKeys wraps in double quotes.
// Any other bare key is left alone and makes Parse fail.
var KnownKeys = []string{
	"id",
	"start",
	"end",
	"title",
	"className",
	"backgroundColor",
	"extendedProps",
	"commentaire",
}

var (
	trailingCommaRe = regexp.MustCompile(`(?m),\s*\]$`)
	timestampRe     = regexp.MustCompile(`T(\d+):\s*(\d+):\s*(\d+)`)
	keyRe           = regexp.MustCompile(`\b(` + strings.Join(KnownKeys, "|") + `)\b\s*:`)
	stringRe        = regexp.MustCompile(`(?s)"(.*?)"`)
)

// Step is a single named rewrite.
type Step struct {
	Name  string
	Apply func(string) string
}

var steps = []Step{
	{"strip-trailing-comma", StripTrailingComma},
	{"normalize-end-key", NormalizeEndKey},
	{"compact-timestamps", CompactTimestamps},
	{"quote-keys", QuoteKeys},
	{"normalize-quotes", NormalizeQuotes},
	{"collapse-strings", CollapseStrings},
}

// Steps returns the rewrites in the order Repair applies them.
func Steps() []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

// StripTrailingComma removes a comma (and any whitespace) directly before a
// closing bracket at the end of a line.
func StripTrailingComma(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "]")
}

// NormalizeEndKey rewrites "end :" to "end:". The portal spaces only this key.
func NormalizeEndKey(s string) string {
	return strings.ReplaceAll(s, "end :", "end:")
}

// CompactTimestamps turns "T08: 00: 00" into "T08:00:00".
func CompactTimestamps(s string) string {
	return timestampRe.ReplaceAllString(s, "T${1}:${2}:${3}")
}

// QuoteKeys wraps every bare KnownKeys key followed by a colon in double
// quotes. Already quoted keys are not matched again because the closing quote
// sits between the key and the colon.
func QuoteKeys(s string) string {
	return keyRe.ReplaceAllString(s, `"${1}":`)
}

// NormalizeQuotes replaces every single quote with a double quote.
func NormalizeQuotes(s string) string {
	return strings.ReplaceAll(s, "'", `"`)
}

// CollapseStrings squeezes whitespace runs inside each double-quoted span to a
// single space and trims the ends, flattening values the portal pretty-prints
// over several lines. Unicode spaces (no-break space, line separator) count
// as whitespace too.
func CollapseStrings(s string) string {
	return stringRe.ReplaceAllStringFunc(s, func(m string) string {
		inner := m[1 : len(m)-1]
		return `"` + strings.Join(strings.Fields(inner), " ") + `"`
	})
}

// Repair applies every step in order.
func Repair(raw string) string {
	out := raw
	for _, st := range steps {
		out = st.Apply(out)
	}
	return out
}

// Record is one decoded event object.
type Record = map[string]any

// ParseError reports repaired text that encoding/json still rejects.
type ParseError struct {
	// Offset is the byte offset reported by the decoder, 0 if unknown.
	Offset int64
	// Line and Column are 1-based positions derived from Offset.
	Line   int
	Column int
	// Context is a short excerpt of the repaired text around Offset.
	Context string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("repair: invalid JSON at line %d column %d (offset %d) near %q: %v",
			e.Line, e.Column, e.Offset, e.Context, e.Err)
	}
	return fmt.Sprintf("repair: invalid JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse repairs raw and decodes it as a JSON array of objects.
func Parse(raw string) ([]Record, error) {
	fixed := Repair(raw)

	var records []Record
	if err := json.Unmarshal([]byte(fixed), &records); err != nil {
		return nil, newParseError(fixed, err)
	}
	return records, nil
}

const contextRadius = 30

func newParseError(text string, err error) *ParseError {
	pe := &ParseError{Err: err}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		pe.Offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		pe.Offset = typeErr.Offset
	}
	if pe.Offset <= 0 {
		return pe
	}

	off := int(pe.Offset)
	if off > len(text) {
		off = len(text)
	}
	pe.Line = strings.Count(text[:off], "\n") + 1
	pe.Column = off - strings.LastIndex(text[:off], "\n")

	lo := max(off-contextRadius, 0)
	hi := min(off+contextRadius, len(text))
	pe.Context = text[lo:hi]
	return pe
}
