package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/JonMunkholm/memcsv/internal/csvio"
)

// DefaultTTL is how long an untouched table stays registered.
const DefaultTTL = time.Hour

// Options configures a Service. Zero values fall back to sensible defaults.
type Options struct {
	// Fs is where files are read from and written to. Defaults to the OS filesystem.
	Fs afero.Fs
	// DataDir confines every file path. Relative paths are resolved against
	// it and absolute paths must lie inside it. Empty means no confinement,
	// with relative paths resolved against the working directory.
	DataDir string
	// Dialect is used when a request does not carry its own.
	Dialect csvio.Dialect
	TTL     time.Duration

	MaxConcurrentLoads int
	MaxLoadWait        time.Duration

	Recorder AuditRecorder
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Service is the entry point for every table operation. It owns the registry
// and is safe for concurrent use.
type Service struct {
	fs       afero.Fs
	dataDir  string
	dialect  csvio.Dialect
	registry *Registry
	limiter  *LoadLimiter
	recorder AuditRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service from opts.
func NewService(opts Options) *Service {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.DataDir != "" {
		if abs, err := filepath.Abs(opts.DataDir); err == nil {
			opts.DataDir = abs
		}
		opts.Fs = afero.NewBasePathFs(opts.Fs, opts.DataDir)
	}
	if opts.Dialect.Separator == csvio.NoChar {
		opts.Dialect = csvio.DefaultDialect()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = LogAuditRecorder{Logger: opts.Logger}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Service{
		fs:       opts.Fs,
		dataDir:  opts.DataDir,
		dialect:  opts.Dialect,
		registry: NewRegistry(opts.TTL, opts.Clock),
		limiter:  NewLoadLimiter(opts.MaxConcurrentLoads, opts.MaxLoadWait),
		recorder: opts.Recorder,
		logger:   opts.Logger,
		now:      opts.Clock,
	}
}

// TTL returns the idle time after which tables are evicted.
func (s *Service) TTL() time.Duration {
	return s.registry.TTL()
}

// DefaultDialect returns the dialect used when a request does not carry one.
func (s *Service) DefaultDialect() csvio.Dialect {
	return s.dialect
}

// LoadRequest describes a table to bring into memory. Exactly one of Path
// and Rows supplies the records.
type LoadRequest struct {
	// ID registers the table under a caller-chosen uuid; empty generates one.
	ID string `json:"id,omitempty"`
	// Headers fixes the schema. When empty, HasHeader must be set and the
	// header line supplies the names, every column typed STR.
	Headers   []Header `json:"headers,omitempty"`
	HasHeader bool     `json:"hasHeader"`

	Path string     `json:"path,omitempty"`
	Rows [][]string `json:"rows,omitempty"`

	// Reload allows replacing a table already registered under ID.
	Reload bool `json:"reload,omitempty"`
	// Dialect overrides the service default for this file.
	Dialect *csvio.Dialect `json:"-"`
}

// LoadResult reports a completed load.
type LoadResult struct {
	ID        string    `json:"id"`
	Path      string    `json:"path,omitempty"`
	RowCount  int       `json:"rowCount"`
	Headers   []Header  `json:"headers"`
	ReleaseAt time.Time `json:"releaseAt"`
}

// Load reads a whole file (or in-memory rows) into a new table and registers
// it. Nothing is registered if any record fails to parse.
func (s *Service) Load(ctx context.Context, req LoadRequest) (LoadResult, error) {
	id, err := s.resolveID(req.ID)
	if err != nil {
		return LoadResult{}, err
	}
	if (req.Path == "") == (req.Rows == nil) {
		return LoadResult{}, newError("load", ErrFileUnreadable, "exactly one of path or rows is required")
	}
	if !req.Reload {
		if _, err := s.registry.Lookup(id); err == nil {
			return LoadResult{}, newError("load", ErrDuplicateID, "id %s", id)
		}
	}

	dialect := s.dialect
	if req.Dialect != nil {
		dialect = *req.Dialect
	}
	if err := dialect.Validate(); err != nil {
		return LoadResult{}, newError("load", ErrFileUnreadable, "dialect: %v", err)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return LoadResult{}, wrapLimiterErr("load", err)
	}
	defer s.limiter.Release()

	start := s.now()
	path := ""
	if req.Path != "" {
		if path, err = s.resolvePath(req.Path); err != nil {
			return LoadResult{}, err
		}
	}

	var (
		src       RowSource
		bytesRead func() int64
	)
	if path != "" {
		f, err := csvio.Open(s.fs, s.fsPath(path), dialect)
		if err != nil {
			return LoadResult{}, newError("load", fmt.Errorf("%w: %w", ErrFileUnreadable, err), "file %s", path)
		}
		defer f.Close()
		src, bytesRead = f, f.BytesRead
	} else {
		src = NewSliceSource(req.Rows[min(dialect.SkipLines, len(req.Rows)):])
	}

	headers, err := s.headersFor(req, src, path)
	if err != nil {
		return LoadResult{}, err
	}

	table, err := NewTable(TableOptions{
		ID:        id,
		Headers:   headers,
		HasHeader: req.HasHeader,
		Path:      path,
		Dialect:   dialect,
		Clock:     s.now,
	})
	if err != nil {
		return LoadResult{}, err
	}

	n, err := table.Load(src)
	if err != nil {
		s.logFailure(ctx, "load failed", err, "id", id, "path", path)
		return LoadResult{}, err
	}
	if err := s.registry.Register(id, table, req.Reload); err != nil {
		return LoadResult{}, err
	}

	attrs := []any{
		"id", id,
		"path", path,
		"rows", n,
		"columns", len(headers),
		"duration_ms", s.now().Sub(start).Milliseconds(),
	}
	if bytesRead != nil {
		attrs = append(attrs, "bytes", bytesRead())
	}
	s.logger.InfoContext(ctx, "table loaded", attrs...)
	s.audit(ctx, AuditEntry{Action: ActionLoad, TableID: id, Path: path, RowsAffected: n})

	return LoadResult{
		ID:        id,
		Path:      path,
		RowCount:  n,
		Headers:   table.Headers(),
		ReleaseAt: s.registry.ReleaseAt(table),
	}, nil
}

// headersFor consumes the header record when there is one and settles the
// schema for a load.
func (s *Service) headersFor(req LoadRequest, src RowSource, path string) ([]Header, error) {
	if !req.HasHeader {
		if len(req.Headers) == 0 {
			return nil, newError("load", ErrInvalidHeaders, "headers are required when the file has no header line")
		}
		return req.Headers, nil
	}

	names, err := src.Read()
	if errors.Is(err, io.EOF) {
		if len(req.Headers) == 0 {
			return nil, newError("load", ErrInvalidHeaders, "file %s has no header line", path)
		}
		return req.Headers, nil
	}
	if err != nil {
		return nil, newError("load", fmt.Errorf("%w: %w", ErrFileUnreadable, err), "file %s header line", path)
	}

	if len(req.Headers) == 0 {
		headers := make([]Header, len(names))
		for i, name := range names {
			headers[i] = Header{Name: name, Type: TypeStr}
		}
		return headers, nil
	}
	if len(names) != len(req.Headers) {
		return nil, newError("load", ErrLengthMismatch,
			"file %s header line: expected %d fields, got %d", path, len(req.Headers), len(names))
	}
	return req.Headers, nil
}

// Reload re-reads a registered table from its own file, keeping its schema
// and dialect. path, when given, must name that same file.
func (s *Service) Reload(ctx context.Context, id, path string) (LoadResult, error) {
	table, err := s.registry.Lookup(id)
	if err != nil {
		return LoadResult{}, err
	}
	if table.Path() == "" {
		return LoadResult{}, newError("reload", ErrPathMismatch, "table %s was not loaded from a file", id)
	}
	if path != "" {
		resolved, err := s.resolvePath(path)
		if err != nil {
			return LoadResult{}, err
		}
		if resolved != table.Path() {
			return LoadResult{}, newError("reload", ErrPathMismatch, "got %s, table was loaded from %s", path, table.Path())
		}
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return LoadResult{}, wrapLimiterErr("reload", err)
	}
	defer s.limiter.Release()

	f, err := csvio.Open(s.fs, s.fsPath(table.Path()), table.Dialect())
	if err != nil {
		return LoadResult{}, newError("reload", fmt.Errorf("%w: %w", ErrFileUnreadable, err), "file %s", table.Path())
	}
	defer f.Close()

	if table.HasHeader() {
		if _, err := f.Read(); err != nil && !errors.Is(err, io.EOF) {
			return LoadResult{}, newError("reload", fmt.Errorf("%w: %w", ErrFileUnreadable, err), "file %s header line", table.Path())
		}
	}

	n, err := table.Replace(f)
	if err != nil {
		s.logFailure(ctx, "reload failed", err, "id", id, "path", table.Path())
		return LoadResult{}, err
	}

	s.logger.InfoContext(ctx, "table reloaded", "id", id, "path", table.Path(), "rows", n, "bytes", f.BytesRead())
	s.audit(ctx, AuditEntry{Action: ActionReload, TableID: id, Path: table.Path(), RowsAffected: n})

	return LoadResult{
		ID:        id,
		Path:      table.Path(),
		RowCount:  n,
		Headers:   table.Headers(),
		ReleaseAt: s.registry.ReleaseAt(table),
	}, nil
}

// SampleRequest previews a file without registering it.
type SampleRequest struct {
	Path string     `json:"path,omitempty"`
	Rows [][]string `json:"rows,omitempty"`
	// Skip below 1 means there is no header line and columns are named
	// "1".."n". Otherwise Skip-1 lines are discarded and the next line
	// holds the column names.
	Skip int `json:"skip"`
	// Count caps the number of data rows; negative reads everything.
	Count   int            `json:"count"`
	Headers []string       `json:"headers,omitempty"`
	Dialect *csvio.Dialect `json:"-"`
}

// Sample infers a schema from the first rows of a file.
func (s *Service) Sample(ctx context.Context, req SampleRequest) (Sampling, error) {
	if (req.Path == "") == (req.Rows == nil) {
		return Sampling{}, newError("sample", ErrFileUnreadable, "exactly one of path or rows is required")
	}

	dialect := s.dialect
	if req.Dialect != nil {
		dialect = *req.Dialect
	}
	dialect.SkipLines = max(req.Skip-1, 0)
	if err := dialect.Validate(); err != nil {
		return Sampling{}, newError("sample", ErrFileUnreadable, "dialect: %v", err)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return Sampling{}, wrapLimiterErr("sample", err)
	}
	defer s.limiter.Release()

	var src RowSource
	if req.Path != "" {
		path, err := s.resolvePath(req.Path)
		if err != nil {
			return Sampling{}, err
		}
		f, err := csvio.Open(s.fs, s.fsPath(path), dialect)
		if err != nil {
			return Sampling{}, newError("sample", fmt.Errorf("%w: %w", ErrFileUnreadable, err), "file %s", path)
		}
		defer f.Close()
		src = f
	} else {
		src = NewSliceSource(req.Rows[min(dialect.SkipLines, len(req.Rows)):])
	}

	sampling, err := Sample(src, SampleOptions{
		HeaderRow: req.Skip >= 1,
		Count:     req.Count,
		Names:     req.Headers,
	})
	if err != nil {
		s.logFailure(ctx, "sample failed", err, "path", req.Path)
		return Sampling{}, err
	}
	return sampling, nil
}

// Read returns count rows starting at the 1-based start line.
func (s *Service) Read(ctx context.Context, id string, start, count int) (Page, error) {
	table, err := s.registry.Lookup(id)
	if err != nil {
		return Page{}, err
	}
	page, err := table.Read(start, count)
	if err != nil {
		return Page{}, err
	}
	page.ReleaseAt = s.registry.ReleaseAt(table)
	return page, nil
}

// Search sorts, filters and pages a table. A sort permanently reorders it.
func (s *Service) Search(ctx context.Context, id string, req SearchRequest) (Page, error) {
	table, err := s.registry.Lookup(id)
	if err != nil {
		return Page{}, err
	}
	start := s.now()
	page, err := table.Search(req)
	if err != nil {
		return Page{}, err
	}
	page.ReleaseAt = s.registry.ReleaseAt(table)

	s.logger.DebugContext(ctx, "search",
		"id", id,
		"conditions", len(req.Conditions),
		"sorted", req.Sort != nil,
		"matches", page.TotalMatches,
		"duration_ms", s.now().Sub(start).Milliseconds(),
	)
	return page, nil
}

// Insert adds a row before or after line.
func (s *Service) Insert(ctx context.Context, id string, line int, pos Position, values []any) error {
	table, err := s.registry.Lookup(id)
	if err != nil {
		return err
	}
	if err := table.Insert(line, pos, values); err != nil {
		return err
	}
	s.audit(ctx, AuditEntry{Action: ActionInsert, TableID: id, LineNumber: line, RowsAffected: 1, Detail: pos.String()})
	return nil
}

// Update replaces the row at line.
func (s *Service) Update(ctx context.Context, id string, line int, values []any) error {
	table, err := s.registry.Lookup(id)
	if err != nil {
		return err
	}
	if err := table.Update(line, values); err != nil {
		return err
	}
	s.audit(ctx, AuditEntry{Action: ActionUpdate, TableID: id, LineNumber: line, RowsAffected: 1})
	return nil
}

// Delete removes the row at line.
func (s *Service) Delete(ctx context.Context, id string, line int) error {
	table, err := s.registry.Lookup(id)
	if err != nil {
		return err
	}
	if err := table.Delete(line); err != nil {
		return err
	}
	s.audit(ctx, AuditEntry{Action: ActionDelete, TableID: id, LineNumber: line, RowsAffected: 1})
	return nil
}

// WriteResult reports where a table was written.
type WriteResult struct {
	Path string `json:"path"`
	Rows int    `json:"rows"`
}

// Write serializes a table to path, or to the file it was loaded from when
// path is empty. Existing files are overwritten.
func (s *Service) Write(ctx context.Context, id, path string) (WriteResult, error) {
	table, err := s.registry.Lookup(id)
	if err != nil {
		return WriteResult{}, err
	}

	target := table.Path()
	if path != "" {
		if target, err = s.resolvePath(path); err != nil {
			return WriteResult{}, err
		}
	}
	if target == "" {
		return WriteResult{}, newError("write", ErrPathMismatch, "table %s has no file; a path is required", id)
	}

	n, err := table.Write(s.fs, s.fsPath(target))
	if err != nil {
		s.logFailure(ctx, "write failed", err, "id", id, "path", target, "rows_written", n)
		return WriteResult{}, err
	}

	s.logger.InfoContext(ctx, "table written", "id", id, "path", target, "rows", n)
	s.audit(ctx, AuditEntry{Action: ActionWrite, TableID: id, Path: target, RowsAffected: n})
	return WriteResult{Path: target, Rows: n}, nil
}

// Release drops a table from memory. Releasing an unknown id is not an error;
// the result reports whether anything was removed.
func (s *Service) Release(ctx context.Context, id string) bool {
	removed := s.registry.Unregister(id)
	if removed {
		s.logger.InfoContext(ctx, "table released", "id", id)
		s.audit(ctx, AuditEntry{Action: ActionRelease, TableID: id})
	}
	return removed
}

// ListManagedIDs returns the ids of every registered table, sorted.
func (s *Service) ListManagedIDs() []string {
	return s.registry.IDs()
}

// Tables describes every registered table, sorted by id.
func (s *Service) Tables() []TableInfo {
	tables := s.registry.Tables()
	infos := make([]TableInfo, len(tables))
	for i, t := range tables {
		infos[i] = t.Info(s.registry.TTL())
	}
	return infos
}

// Sweep evicts tables idle for longer than the TTL and returns their ids.
func (s *Service) Sweep(ctx context.Context) []string {
	evicted := s.registry.Sweep()
	if len(evicted) == 0 {
		return nil
	}

	now := s.now()
	ids := make([]string, len(evicted))
	for i, t := range evicted {
		ids[i] = t.ID()
		s.logger.InfoContext(ctx, "table evicted",
			"id", t.ID(),
			"path", t.Path(),
			"idle", now.Sub(t.LastAccessed()).Round(time.Second).String(),
		)
		s.audit(ctx, AuditEntry{Action: ActionEvict, TableID: t.ID(), Path: t.Path()})
	}
	return ids
}

// AuditTrail returns the most recent audit entries for a table, newest
// first. It is empty when the recorder cannot be queried.
func (s *Service) AuditTrail(ctx context.Context, id string, limit int) ([]AuditEntry, error) {
	reader, ok := s.recorder.(AuditReader)
	if !ok {
		return []AuditEntry{}, nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, newError("audit", ErrInvalidID, "%q", id)
	}
	if limit <= 0 {
		limit = 50
	}
	return reader.List(ctx, id, limit)
}

// LoadStatus reports load slot usage.
func (s *Service) LoadStatus() LoadLimiterStatus {
	return s.limiter.Status()
}

// WaitForLoads blocks until in-flight loads finish or ctx is done.
func (s *Service) WaitForLoads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) resolveID(id string) (string, error) {
	if id == "" {
		return uuid.NewString(), nil
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", newError("load", ErrInvalidID, "%q is not a uuid", id)
	}
	return parsed.String(), nil
}

// resolvePath returns the absolute path tables record and report. With a
// data directory set, paths that leave it are rejected.
func (s *Service) resolvePath(p string) (string, error) {
	if s.dataDir == "" {
		return filepath.Clean(p), nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.dataDir, p)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(s.dataDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", newError("path", ErrPathOutsideDataDir, "%s is not under %s", p, s.dataDir)
	}
	return p, nil
}

// fsPath maps a resolved path onto s.fs, which is rooted at the data
// directory when one is set.
func (s *Service) fsPath(p string) string {
	if s.dataDir == "" {
		return p
	}
	rel, err := filepath.Rel(s.dataDir, p)
	if err != nil {
		return p
	}
	return string(filepath.Separator) + rel
}

// logFailure logs client errors at Warn and everything else at Error.
func (s *Service) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err)
	if IsClientError(err) {
		s.logger.WarnContext(ctx, msg, attrs...)
		return
	}
	s.logger.ErrorContext(ctx, msg, attrs...)
}

func wrapLimiterErr(op string, err error) error {
	if errors.Is(err, ErrTooManyLoads) {
		return newError(op, ErrTooManyLoads, "")
	}
	return err
}
