package csvio

// streaming.go wraps raw file readers so the tokenizer always sees clean UTF-8:
//
//   - bomSkippingReader drops a leading UTF-8 BOM (0xEF 0xBB 0xBF)
//   - utf8Sanitizer replaces invalid byte sequences with '?'
//   - CountingReader tracks bytes consumed for load logging
//
// All three work in O(buffer) memory, so multi-gigabyte files are never held
// twice while they are being tokenized.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomSkippingReader removes a UTF-8 byte order mark from the start of a stream.
type bomSkippingReader struct {
	br      *bufio.Reader
	checked bool
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{br: bufio.NewReader(r)}
}

func (r *bomSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		if head, err := r.br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			r.br.Discard(len(utf8BOM))
		}
	}
	return r.br.Read(p)
}

// utf8Sanitizer replaces invalid UTF-8 with '?' on the fly. A multi-byte
// sequence split across two reads is carried over instead of being mangled.
type utf8Sanitizer struct {
	reader  io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{reader: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.reader.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	atEOF := err == io.EOF
	write := 0
	for read := 0; read < n; {
		if p[read] < utf8.RuneSelf {
			p[write] = p[read]
			write++
			read++
			continue
		}
		r, size := utf8.DecodeRune(p[read:n])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(p[read:n]) {
				s.pending = append(s.pending, p[read:n]...)
				break
			}
			p[write] = '?'
			write++
			read++
			continue
		}
		copy(p[write:], p[read:read+size])
		write += size
		read += size
	}

	if write == 0 && len(s.pending) > 0 && err == nil {
		// Only a partial rune arrived; ask the caller to read again.
		return 0, nil
	}
	return write, err
}

// CountingReader tracks how many bytes have passed through it.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// Sanitize applies BOM stripping and UTF-8 repair, in that order.
func Sanitize(r io.Reader) io.Reader {
	return newUTF8Sanitizer(newBOMSkippingReader(r))
}
