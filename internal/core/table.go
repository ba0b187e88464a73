package core

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/JonMunkholm/memcsv/internal/csvio"
)

// RowSource yields raw records until it returns io.EOF. *csvio.Reader
// satisfies it, as does SliceSource.
type RowSource interface {
	Read() ([]string, error)
}

// lineReporter is implemented by sources that know the physical line of the
// record they just returned, so load errors can point at the right line.
type lineReporter interface {
	Line() int
}

// SliceSource serves records from memory.
type SliceSource struct {
	records [][]string
	next    int
}

// NewSliceSource returns a RowSource over records.
func NewSliceSource(records [][]string) *SliceSource {
	return &SliceSource{records: records}
}

func (s *SliceSource) Read() ([]string, error) {
	if s.next >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.next]
	s.next++
	return rec, nil
}

func (s *SliceSource) Line() int {
	return s.next
}

// TableOptions describes a table before any rows are loaded.
type TableOptions struct {
	ID        string
	Headers   []Header
	HasHeader bool
	Path      string
	Dialect   csvio.Dialect
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Table is one loaded file held in memory.
//
// mu guards rows for the full duration of every row operation, including the
// whole sort and filter pass of a search. Timestamps live under their own
// lock so the registry sweep can read them without waiting on a long search.
type Table struct {
	id        string
	headers   []Header
	hasHeader bool
	path      string
	dialect   csvio.Dialect
	now       func() time.Time

	mu   sync.Mutex
	rows []Row

	tsMu         sync.Mutex
	created      time.Time
	lastAccessed time.Time
	lastModified time.Time
}

// NewTable returns an empty table. Header names must be unique and non-empty.
func NewTable(opts TableOptions) (*Table, error) {
	if len(opts.Headers) == 0 {
		return nil, newError("new table", ErrInvalidHeaders, "at least one column is required")
	}
	seen := make(map[string]bool, len(opts.Headers))
	for i, h := range opts.Headers {
		if h.Name == "" {
			return nil, newError("new table", ErrInvalidHeaders, "column %d has no name", i)
		}
		if seen[h.Name] {
			return nil, newError("new table", ErrInvalidHeaders, "duplicate column name %q", h.Name)
		}
		seen[h.Name] = true
		if h.Type < TypeGeneral || h.Type > TypeStr {
			return nil, newError("new table", ErrInvalidHeaders, "column %q has unknown type %d", h.Name, int(h.Type))
		}
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	now := clock()

	return &Table{
		id:           opts.ID,
		headers:      slices.Clone(opts.Headers),
		hasHeader:    opts.HasHeader,
		path:         opts.Path,
		dialect:      opts.Dialect,
		now:          clock,
		created:      now,
		lastAccessed: now,
		lastModified: now,
	}, nil
}

func (t *Table) ID() string { return t.id }
func (t *Table) Path() string { return t.path }
func (t *Table) HasHeader() bool { return t.hasHeader }
func (t *Table) Dialect() csvio.Dialect { return t.dialect }
func (t *Table) Headers() []Header { return slices.Clone(t.headers) }
func (t *Table) ColumnCount() int { return len(t.headers) }

// Size returns the current number of rows.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Timestamps returns the created, last accessed and last modified times.
func (t *Table) Timestamps() (created, accessed, modified time.Time) {
	t.tsMu.Lock()
	defer t.tsMu.Unlock()
	return t.created, t.lastAccessed, t.lastModified
}

// LastAccessed returns the time of the most recent operation on the table.
func (t *Table) LastAccessed() time.Time {
	t.tsMu.Lock()
	defer t.tsMu.Unlock()
	return t.lastAccessed
}

func (t *Table) touch(modified bool) {
	now := t.now()
	t.tsMu.Lock()
	t.lastAccessed = now
	if modified {
		t.lastModified = now
	}
	t.tsMu.Unlock()
}

// Info snapshots the table for listings. ttl is used to compute ReleaseAt.
func (t *Table) Info(ttl time.Duration) TableInfo {
	created, accessed, modified := t.Timestamps()
	return TableInfo{
		ID:           t.id,
		Path:         t.path,
		Size:         t.Size(),
		HasHeader:    t.hasHeader,
		Headers:      t.Headers(),
		Created:      created,
		LastAccessed: accessed,
		LastModified: modified,
		ReleaseAt:    accessed.Add(ttl),
	}
}

// Load appends every record from src, parsing each cell strictly as its
// column's type. Nothing is appended unless the whole source parses.
func (t *Table) Load(src RowSource) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.parseAll("load", src)
	if err != nil {
		return 0, err
	}
	t.rows = append(t.rows, rows...)
	t.touch(true)
	return len(rows), nil
}

// Replace swaps the table's rows for the records in src. On error the
// existing rows are kept.
func (t *Table) Replace(src RowSource) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.parseAll("reload", src)
	if err != nil {
		return 0, err
	}
	t.rows = rows
	t.touch(true)
	return len(rows), nil
}

func (t *Table) parseAll(op string, src RowSource) ([]Row, error) {
	lines, _ := src.(lineReporter)
	var rows []Row
	for n := 1; ; n++ {
		rec, err := src.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		line := n
		if lines != nil {
			line = lines.Line()
		}
		if err != nil {
			return nil, newError(op, fmt.Errorf("%w: %w", ErrFileUnreadable, err), "file %s line %d", t.path, line)
		}

		if len(rec) != len(t.headers) {
			return nil, newError(op, ErrLengthMismatch,
				"file %s line %d: expected %d fields, got %d", t.path, line, len(t.headers), len(rec))
		}

		row := make(Row, len(rec))
		for col, raw := range rec {
			v, err := ParseCell(raw, t.headers[col].Type)
			if err != nil {
				return nil, newError(op, ErrTypeMismatch,
					"file %s line %d column %d: cannot parse %q as %s", t.path, line, col, raw, t.headers[col].Type)
			}
			row[col] = v
		}
		rows = append(rows, row)
	}
}

// Insert validates values and splices them in relative to line. BEFORE puts
// the new row at line, pushing the old one down; AFTER puts it directly
// below line, appending when line is the last row.
func (t *Table) Insert(line int, pos Position, values []any) error {
	if pos != Before && pos != After {
		return newError("insert", ErrUnsupportedPosition, "position %d", int(pos))
	}
	row, err := coerceRow(t.headers, values)
	if err != nil {
		return newError("insert", err, "line %d", line)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := checkLine(line, len(t.rows)); err != nil {
		return newError("insert", err, "line %d of %d", line, len(t.rows))
	}

	idx := line - 1
	if pos == After {
		idx = line
	}
	t.rows = slices.Insert(t.rows, idx, row)
	t.touch(true)
	return nil
}

// Update replaces the row at line.
func (t *Table) Update(line int, values []any) error {
	row, err := coerceRow(t.headers, values)
	if err != nil {
		return newError("update", err, "line %d", line)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := checkLine(line, len(t.rows)); err != nil {
		return newError("update", err, "line %d of %d", line, len(t.rows))
	}
	t.rows[line-1] = row
	t.touch(true)
	return nil
}

// Delete removes the row at line.
func (t *Table) Delete(line int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := checkLine(line, len(t.rows)); err != nil {
		return newError("delete", err, "line %d of %d", line, len(t.rows))
	}
	t.rows = slices.Delete(t.rows, line-1, line)
	t.touch(true)
	return nil
}

func checkLine(line, size int) error {
	if line < 1 || line > size {
		return ErrLineOutOfRange
	}
	return nil
}

// Read returns up to count rows starting at the 1-based start line, in
// current storage order. Starting one past the last row yields an empty page.
func (t *Table) Read(start, count int) (Page, error) {
	if start < 1 {
		return Page{}, newError("read", ErrLineOutOfRange, "start %d", start)
	}
	if count < 1 {
		return Page{}, newError("read", ErrInvalidPage, "count %d must be at least 1", count)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	size := len(t.rows)
	begin := start - 1
	if begin > size {
		return Page{}, newError("read", ErrStartBeyondData, "start %d, size %d", start, size)
	}
	end := min(begin+count, size)

	lines := make([]Line, 0, end-begin)
	for i := begin; i < end; i++ {
		lines = append(lines, Line{LineNumber: i + 1, Values: t.rows[i].Clone()})
	}
	t.touch(false)

	return Page{
		Headers:      t.Headers(),
		Lines:        lines,
		TotalMatches: size,
		TotalSize:    size,
	}, nil
}

// Write serializes the table to path on fs using the table's dialect,
// overwriting any existing file. A header line is written only when the
// table was loaded with one. A failure part way through leaves a partial file.
func (t *Table) Write(fs afero.Fs, path string) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	quotable := make([]bool, len(t.headers))
	names := make([]string, len(t.headers))
	for i, h := range t.headers {
		quotable[i] = h.Type.Quotable()
		names[i] = h.Name
	}

	sink, err := csvio.Create(fs, path, t.dialect, quotable)
	if err != nil {
		return 0, newError("write", fmt.Errorf("%w: %w", ErrWriteFailed, err), "file %s", path)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = newError("write", fmt.Errorf("%w: %w", ErrWriteFailed, cerr), "file %s", path)
		}
	}()

	if t.hasHeader {
		if err := sink.WriteHeader(names); err != nil {
			return 0, newError("write", fmt.Errorf("%w: %w", ErrWriteFailed, err), "file %s header", path)
		}
	}

	fields := make([]string, len(t.headers))
	for i, row := range t.rows {
		for col, v := range row {
			fields[col] = v.Text()
		}
		if err := sink.Write(fields); err != nil {
			return i, newError("write", fmt.Errorf("%w: %w", ErrWriteFailed, err), "file %s line %d", path, i+1)
		}
	}

	t.touch(false)
	return len(t.rows), nil
}
