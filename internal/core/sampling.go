package core

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

// SampleOptions controls how a preview is taken.
type SampleOptions struct {
	// HeaderRow means the first record names the columns. Otherwise columns
	// are named "1".."n" and the first record is data.
	HeaderRow bool
	// Count caps the number of data rows; a negative count reads everything.
	Count int
	// Names, when set, replace the derived column names.
	Names []string
}

// Sample reads src without a fixed schema. Every column starts GENERAL and
// widens as values are seen. Each cell keeps the type inferred for it alone,
// so an early row is not rewritten when a later row widens its column.
func Sample(src RowSource, opts SampleOptions) (Sampling, error) {
	first, err := src.Read()
	if errors.Is(err, io.EOF) {
		return Sampling{Headers: namedHeaders(opts.Names), Rows: []Row{}}, nil
	}
	if err != nil {
		return Sampling{}, newError("sample", fmt.Errorf("%w: %w", ErrFileUnreadable, err), "first record")
	}

	var headers []Header
	var pending []string
	if opts.HeaderRow {
		headers = namedHeaders(first)
	} else {
		headers = make([]Header, len(first))
		for i := range first {
			headers[i] = Header{Name: strconv.Itoa(i + 1), Type: TypeGeneral}
		}
		pending = first
	}

	if opts.Names != nil {
		if len(opts.Names) != len(headers) {
			return Sampling{}, newError("sample", ErrLengthMismatch,
				"%d names declared for %d columns", len(opts.Names), len(headers))
		}
		for i, name := range opts.Names {
			headers[i].Name = name
		}
	}

	rows := []Row{}
	line := 1
	for opts.Count < 0 || len(rows) < opts.Count {
		rec := pending
		pending = nil
		if rec == nil {
			line++
			rec, err = src.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return Sampling{}, newError("sample", fmt.Errorf("%w: %w", ErrFileUnreadable, err), "record %d", line)
			}
		}
		if len(rec) != len(headers) {
			return Sampling{}, newError("sample", ErrLengthMismatch,
				"record %d: expected %d fields, got %d", line, len(headers), len(rec))
		}

		row := make(Row, len(rec))
		for i, raw := range rec {
			headers[i].Type = Widen(headers[i].Type, raw)
			// Infer only reports a type raw parses as.
			v, _ := ParseCell(raw, Infer(raw))
			row[i] = v
		}
		rows = append(rows, row)
	}

	return Sampling{Headers: headers, Rows: rows}, nil
}

func namedHeaders(names []string) []Header {
	headers := make([]Header, len(names))
	for i, name := range names {
		headers[i] = Header{Name: name, Type: TypeGeneral}
	}
	return headers
}
