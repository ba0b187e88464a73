package csvio

import (
	"bufio"
	"io"
	"strings"
)

// Writer serializes rows of string fields.
//
// Each field has every quote and escape character prefixed with the escape
// character. The escaped text is then wrapped in quotes only when quoting is
// enabled, the column is quotable, and the text contains the separator. A
// field that merely contains the quote character is escaped but not wrapped.
type Writer struct {
	bw       *bufio.Writer
	dialect  Dialect
	quotable []bool
}

// NewWriter returns a Writer over w. quotable[i] controls whether column i may
// be wrapped in quotes; a nil slice makes every column quotable.
func NewWriter(w io.Writer, d Dialect, quotable []bool) *Writer {
	return &Writer{
		bw:       bufio.NewWriter(w),
		dialect:  d,
		quotable: quotable,
	}
}

// WriteHeader writes the column names joined by the separator, unescaped.
func (w *Writer) WriteHeader(names []string) error {
	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteRune(w.dialect.Separator)
		}
		sb.WriteString(name)
	}
	sb.WriteString(w.dialect.lineEnd())
	_, err := w.bw.WriteString(sb.String())
	return err
}

// Write writes one record.
func (w *Writer) Write(fields []string) error {
	_, err := w.bw.WriteString(w.FormatRecord(fields))
	return err
}

// FormatRecord renders a record, including the line terminator, without writing it.
func (w *Writer) FormatRecord(fields []string) string {
	var sb strings.Builder
	for i, field := range fields {
		if i > 0 {
			sb.WriteRune(w.dialect.Separator)
		}
		escaped := w.escape(field)
		if w.dialect.Quote != NoChar && w.isQuotable(i) && strings.ContainsRune(escaped, w.dialect.Separator) {
			sb.WriteRune(w.dialect.Quote)
			sb.WriteString(escaped)
			sb.WriteRune(w.dialect.Quote)
			continue
		}
		sb.WriteString(escaped)
	}
	sb.WriteString(w.dialect.lineEnd())
	return sb.String()
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

func (w *Writer) isQuotable(i int) bool {
	if w.quotable == nil || i >= len(w.quotable) {
		return true
	}
	return w.quotable[i]
}

func (w *Writer) escape(field string) string {
	esc := w.dialect.Escape
	if esc == NoChar {
		return field
	}
	quote := w.dialect.Quote
	if !strings.ContainsRune(field, esc) && (quote == NoChar || !strings.ContainsRune(field, quote)) {
		return field
	}

	var sb strings.Builder
	sb.Grow(len(field) + 4)
	for _, c := range field {
		if c == esc || (quote != NoChar && c == quote) {
			sb.WriteRune(esc)
		}
		sb.WriteRune(c)
	}
	return sb.String()
}
