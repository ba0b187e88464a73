package csvio

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// Source is an open delimited file ready to be tokenized.
type Source struct {
	*Reader
	file    afero.File
	counter *CountingReader
}

// Open opens path on fs and prepares a Reader that decodes the dialect's
// charset, strips a BOM and repairs invalid UTF-8 before tokenizing.
func Open(fs afero.Fs, path string, d Dialect) (*Source, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}

	counter := NewCountingReader(f)
	decoded, err := decode(counter, d.Charset)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Source{
		Reader:  NewReader(Sanitize(decoded), d),
		file:    f,
		counter: counter,
	}, nil
}

// BytesRead returns the number of raw bytes consumed from the file.
func (s *Source) BytesRead() int64 {
	return s.counter.BytesRead
}

// Close closes the underlying file.
func (s *Source) Close() error {
	return s.file.Close()
}

// Sink is a delimited file opened for writing. Close flushes the record
// buffer and the charset encoder before closing the file, and must be called
// on every path once Create succeeds.
type Sink struct {
	*Writer
	file    afero.File
	encoder io.Writer
}

// Create truncates or creates path on fs for writing records in dialect d.
func Create(fs afero.Fs, path string, d Dialect, quotable []bool) (*Sink, error) {
	f, err := fs.Create(path)
	if err != nil {
		return nil, err
	}

	enc, err := encode(f, d.Charset)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Sink{
		Writer:  NewWriter(enc, d, quotable),
		file:    f,
		encoder: enc,
	}, nil
}

// Close flushes buffered output and closes the file. The first error wins.
func (s *Sink) Close() error {
	flushErr := s.Writer.Flush()

	var encErr error
	if c, ok := s.encoder.(io.Closer); ok && s.encoder != io.Writer(s.file) {
		encErr = c.Close()
	}

	closeErr := s.file.Close()

	switch {
	case flushErr != nil:
		return fmt.Errorf("flush: %w", flushErr)
	case encErr != nil:
		return fmt.Errorf("encode: %w", encErr)
	case closeErr != nil:
		return fmt.Errorf("close: %w", closeErr)
	}
	return nil
}
