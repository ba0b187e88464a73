package csvio

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// lookupCharset resolves a charset label such as "euc-kr" or "windows-1252".
// A nil encoding means the stream is already UTF-8.
func lookupCharset(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", name, err)
	}
	return enc, nil
}

// ValidateCharset reports whether name is a charset this package can decode.
func ValidateCharset(name string) error {
	_, err := lookupCharset(name)
	return err
}

// decode converts r from the named charset to UTF-8.
func decode(r io.Reader, charset string) (io.Reader, error) {
	enc, err := lookupCharset(charset)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return r, nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// encode returns a writer that converts UTF-8 text to the named charset.
func encode(w io.Writer, charset string) (io.Writer, error) {
	enc, err := lookupCharset(charset)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return w, nil
	}
	return transform.NewWriter(w, enc.NewEncoder()), nil
}
