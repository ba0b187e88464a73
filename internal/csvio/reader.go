package csvio

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

// Reader splits delimited text into records of raw string fields.
//
// It reads back what Writer produces. The escape character protects a
// following quote or escape character both inside and outside quotes. A quote
// opens a quoted field only at the start of a field; anywhere else in an
// unquoted field it is literal text. Quoted fields may span lines. A blank
// line yields a single empty field.
//
// When the escape and quote characters are the same, a run of quotes at the
// start of a field is read by its length: an odd run opens a quoted field, an
// even run is that many escaped quotes. A lone pair followed by the end of
// the field is an empty field.
type Reader struct {
	br      *bufio.Reader
	dialect Dialect

	skipped bool
	line    int // physical lines consumed so far
	records int
}

// NewReader returns a Reader over r. SkipLines physical lines are discarded
// before the first record is returned.
func NewReader(r io.Reader, d Dialect) *Reader {
	return &Reader{
		br:      bufio.NewReader(r),
		dialect: d,
	}
}

// Line returns the number of physical lines consumed, including skipped ones.
func (r *Reader) Line() int {
	return r.line
}

// Records returns the number of records returned so far.
func (r *Reader) Records() int {
	return r.records
}

// Read returns the next record, or io.EOF once the input is exhausted.
func (r *Reader) Read() ([]string, error) {
	if !r.skipped {
		r.skipped = true
		for i := 0; i < r.dialect.SkipLines; i++ {
			if err := r.skipLine(); err != nil {
				return nil, err
			}
		}
	}

	var (
		fields     []string
		field      strings.Builder
		inQuotes   bool
		started    bool
		fieldStart = true
	)
	quote, esc := r.dialect.Quote, r.dialect.Escape

	for {
		c, _, err := r.br.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) && started {
				r.records++
				return append(fields, field.String()), nil
			}
			return nil, err
		}
		started = true
		atStart := fieldStart
		fieldStart = false

		switch {
		case (c == '\n' || c == '\r') && !inQuotes:
			if c == '\r' && r.peekIs('\n') {
				r.br.ReadRune()
			}
			r.line++
			r.records++
			return append(fields, field.String()), nil

		case c == '\n':
			r.line++
			field.WriteRune(c)

		case atStart && quote != NoChar && c == quote && esc == quote:
			r.openDoubled(&field, &inQuotes)

		case esc != NoChar && c == esc && r.peekIs(quote, esc):
			next, _, _ := r.br.ReadRune()
			field.WriteRune(next)

		case quote != NoChar && c == quote && (inQuotes || atStart):
			inQuotes = !inQuotes

		case c == r.dialect.Separator && !inQuotes:
			fields = append(fields, field.String())
			field.Reset()
			fieldStart = true

		default:
			field.WriteRune(c)
		}
	}
}

// openDoubled handles a quote at the start of a field when quotes are escaped
// by doubling. The first quote has already been consumed.
func (r *Reader) openDoubled(field *strings.Builder, inQuotes *bool) {
	run, next, ok := r.quoteRun()
	for i := 0; i < run; i++ {
		r.br.ReadRune()
	}

	total := run + 1
	if total == 2 && (!ok || r.endsField(next)) {
		return
	}
	if total%2 == 1 {
		*inQuotes = true
	}
	for i := 0; i < total/2; i++ {
		field.WriteRune(r.dialect.Quote)
	}
}

// quoteRun counts the quote characters immediately ahead without consuming
// them, and returns the rune that follows the run. ok is false when the input
// ends inside the run.
func (r *Reader) quoteRun() (n int, next rune, ok bool) {
	for size := 64; ; size *= 2 {
		size = min(size, r.br.Size())
		buf, err := r.br.Peek(size)
		n = 0
		for len(buf) > 0 && (err != nil || utf8.FullRune(buf)) {
			c, w := utf8.DecodeRune(buf)
			if c != r.dialect.Quote {
				return n, c, true
			}
			n++
			buf = buf[w:]
		}
		if err != nil || size == r.br.Size() {
			return n, 0, false
		}
	}
}

func (r *Reader) endsField(c rune) bool {
	return c == r.dialect.Separator || c == '\n' || c == '\r'
}

// ReadAll reads every remaining record.
func (r *Reader) ReadAll() ([][]string, error) {
	var out [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// skipLine discards one physical line.
func (r *Reader) skipLine() error {
	s, err := r.br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && s != "" {
			r.line++
			return nil
		}
		return err
	}
	r.line++
	return nil
}

// peekIs reports whether the next rune is one of candidates (ignoring NoChar).
func (r *Reader) peekIs(candidates ...rune) bool {
	buf, _ := r.br.Peek(utf8.UTFMax)
	if len(buf) == 0 {
		return false
	}
	next, _ := utf8.DecodeRune(buf)
	for _, c := range candidates {
		if c != NoChar && next == c {
			return true
		}
	}
	return false
}
