package csvio

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("a,b")...),
			expected: "a,b",
		},
		{
			name:     "file without BOM",
			input:    []byte("a,b"),
			expected: "a,b",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newBOMSkippingReader(bytes.NewReader(tt.input)))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestUTF8Sanitizer(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"valid ASCII", []byte("hello"), "hello"},
		{"valid multibyte", []byte("größe"), "größe"},
		{"invalid byte", []byte{'h', 0x80, 'i'}, "h?i"},
		{"truncated at EOF", []byte{'a', 0xC3}, "a?"},
		{"empty", []byte{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newUTF8Sanitizer(bytes.NewReader(tt.input)))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

// oneByteReader hands out a single byte per Read so multi-byte runes are
// always split across calls.
type oneByteReader struct {
	data []byte
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestUTF8Sanitizer_SplitRune(t *testing.T) {
	got, err := io.ReadAll(newUTF8Sanitizer(&oneByteReader{data: []byte("x€y")}))
	require.NoError(t, err)
	assert.Equal(t, "x€y", string(got))
}

func TestCountingReader(t *testing.T) {
	cr := NewCountingReader(strings.NewReader("12345"))
	_, err := io.ReadAll(cr)
	require.NoError(t, err)
	assert.Equal(t, int64(5), cr.BytesRead)
}
