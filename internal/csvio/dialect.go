// Package csvio reads and writes delimited text for the in-memory table engine.
//
// The package knows nothing about column types beyond a per-column "quotable"
// flag. Readers hand back rows of raw string fields and writers accept rows of
// already-stringified fields, so the core can stay independent of the text
// format details:
//
//   - Dialect: separator, quote and escape characters, skip lines, charset
//   - Reader: splits a stream into records honoring quotes and escapes
//   - Writer: escapes and conditionally quotes fields on the way out
//   - Open/Create: charset, BOM and UTF-8 handling around an afero.Fs
package csvio

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// NoChar disables quoting or escaping when used as Dialect.Quote or Dialect.Escape.
const NoChar rune = 0

// Defaults mirror the conventional comma-separated format.
const (
	DefaultSeparator = ','
	DefaultQuote     = '"'
	DefaultEscape    = '"'
	DefaultLineEnd   = "\n"
)

// Dialect describes the shape of a delimited file.
type Dialect struct {
	Separator rune   `json:"separator"`
	Quote     rune   `json:"quote"`
	Escape    rune   `json:"escape"`
	SkipLines int    `json:"skipLines"`
	Charset   string `json:"charset,omitempty"`
	LineEnd   string `json:"lineEnd,omitempty"`
}

// DefaultDialect returns a comma separated, double-quoted UTF-8 dialect.
func DefaultDialect() Dialect {
	return Dialect{
		Separator: DefaultSeparator,
		Quote:     DefaultQuote,
		Escape:    DefaultEscape,
		LineEnd:   DefaultLineEnd,
	}
}

// Validate reports dialect settings that would make the file ambiguous.
func (d Dialect) Validate() error {
	if d.Separator == NoChar {
		return fmt.Errorf("separator must be set")
	}
	if d.Separator == '\n' || d.Separator == '\r' {
		return fmt.Errorf("separator cannot be a line break")
	}
	if d.Quote != NoChar && d.Quote == d.Separator {
		return fmt.Errorf("quote character %q equals separator", d.Quote)
	}
	if d.Escape != NoChar && d.Escape == d.Separator {
		return fmt.Errorf("escape character %q equals separator", d.Escape)
	}
	if d.SkipLines < 0 {
		return fmt.Errorf("skip lines (%d) must be non-negative", d.SkipLines)
	}
	return nil
}

func (d Dialect) lineEnd() string {
	if d.LineEnd == "" {
		return DefaultLineEnd
	}
	return d.LineEnd
}

// ParseChar converts a configuration value into a dialect character.
// "none" (any case) and the empty string map to NoChar. Escape sequences
// such as "\t" are understood so tab-separated files can be configured.
func ParseChar(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return NoChar, nil
	case `\t`, "tab":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return NoChar, fmt.Errorf("expected a single character, got %q", s)
	}
	return r, nil
}

// ParseLineEnd accepts "lf", "crlf" or "cr" (any case) as well as the
// literal terminators. Empty means the default.
func ParseLineEnd(s string) (string, error) {
	switch strings.ToLower(s) {
	case "":
		return DefaultLineEnd, nil
	case "lf", "\n":
		return "\n", nil
	case "crlf", "\r\n":
		return "\r\n", nil
	case "cr", "\r":
		return "\r", nil
	}
	return "", fmt.Errorf("unknown line ending %q: expected lf, crlf or cr", s)
}

// FormatChar is the inverse of ParseChar.
func FormatChar(r rune) string {
	switch r {
	case NoChar:
		return "none"
	case '\t':
		return `\t`
	}
	return string(r)
}
