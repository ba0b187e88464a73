package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/memcsv/internal/core"
	"github.com/JonMunkholm/memcsv/internal/csvio"
)

const (
	defaultReadCount  = 50
	defaultAuditLimit = 50
)

// DialectRequest overrides parts of the server's default dialect. Characters
// are given as strings so "none" and "\t" can be expressed.
type DialectRequest struct {
	Separator *string `json:"separator,omitempty"`
	Quote     *string `json:"quote,omitempty"`
	Escape    *string `json:"escape,omitempty"`
	SkipLines *int    `json:"skipLines,omitempty"`
	Charset   *string `json:"charset,omitempty"`
	LineEnd   *string `json:"lineEnd,omitempty"`
}

// apply returns base with every field set in d replaced.
func (d *DialectRequest) apply(base csvio.Dialect) (csvio.Dialect, error) {
	if d == nil {
		return base, nil
	}
	chars := []struct {
		in  *string
		out *rune
	}{
		{d.Separator, &base.Separator},
		{d.Quote, &base.Quote},
		{d.Escape, &base.Escape},
	}
	for _, c := range chars {
		if c.in == nil {
			continue
		}
		r, err := csvio.ParseChar(*c.in)
		if err != nil {
			return base, malformed("dialect: %v", err)
		}
		*c.out = r
	}
	if d.SkipLines != nil {
		base.SkipLines = *d.SkipLines
	}
	if d.Charset != nil {
		base.Charset = *d.Charset
	}
	if d.LineEnd != nil {
		le, err := csvio.ParseLineEnd(*d.LineEnd)
		if err != nil {
			return base, malformed("dialect: %v", err)
		}
		base.LineEnd = le
	}
	return base, nil
}

// decodeJSON reads a JSON body into v. Numbers stay json.Number so integer
// cells survive without a float round trip. An empty body is allowed when
// optional is set.
func decodeJSON(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return malformed("invalid request body: %v", err)
	}
	return nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) (int, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, malformed("query parameter %s=%q is not an integer", name, val)
	}
	return i, nil
}

func lineParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "line")
	line, err := strconv.Atoi(raw)
	if err != nil {
		return 0, malformed("line %q is not an integer", raw)
	}
	return line, nil
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tables": len(s.service.ListManagedIDs()),
	})
}

// handleStatus reports load slot usage and the registry size.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tables": len(s.service.ListManagedIDs()),
		"ttl":    s.service.TTL().String(),
		"loads":  s.service.LoadStatus(),
	})
}

// handleListTables lists every registered table.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tables": s.service.Tables(),
	})
}

type loadBody struct {
	core.LoadRequest
	Dialect *DialectRequest `json:"dialect,omitempty"`
}

// handleLoad loads a file or inline rows into a new table.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var body loadBody
	if err := decodeJSON(r, &body, false); err != nil {
		s.respondError(w, r, err)
		return
	}
	if body.Dialect != nil {
		d, err := body.Dialect.apply(s.service.DefaultDialect())
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		body.LoadRequest.Dialect = &d
	}

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.Load(ctx, body.LoadRequest)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type sampleBody struct {
	core.SampleRequest
	Dialect *DialectRequest `json:"dialect,omitempty"`
}

// handleSample previews a file without registering it.
func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	var body sampleBody
	if err := decodeJSON(r, &body, false); err != nil {
		s.respondError(w, r, err)
		return
	}
	if body.Dialect != nil {
		d, err := body.Dialect.apply(s.service.DefaultDialect())
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		body.SampleRequest.Dialect = &d
	}

	sampling, err := s.service.Sample(r.Context(), body.SampleRequest)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sampling)
}

type pathBody struct {
	Path string `json:"path"`
}

// handleReload re-reads a table from its file.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	var body pathBody
	if err := decodeJSON(r, &body, true); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.Reload(ctx, chi.URLParam(r, "id"), body.Path)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRelease drops a table. Releasing an unknown id succeeds with
// released=false.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	released := s.service.Release(ctx, chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]bool{"released": released})
}

// handleRead returns a window of rows: ?start=1&count=50.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	start, err := parseIntParam(r, "start", 1)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	count, err := parseIntParam(r, "count", defaultReadCount)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	page, err := s.service.Read(r.Context(), chi.URLParam(r, "id"), start, count)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleSearch sorts, filters and pages a table.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req core.SearchRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.respondError(w, r, err)
		return
	}

	page, err := s.service.Search(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type insertBody struct {
	Line     int           `json:"line"`
	Position core.Position `json:"position"`
	Values   []any         `json:"values"`
}

// handleInsert adds a row relative to an existing line.
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	body := insertBody{Position: core.Before}
	if err := decodeJSON(r, &body, false); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.service.Insert(ctx, chi.URLParam(r, "id"), body.Line, body.Position, body.Values); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "inserted", "line": body.Line})
}

type updateBody struct {
	Values []any `json:"values"`
}

// handleUpdate replaces the row at {line}.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	line, err := lineParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var body updateBody
	if err := decodeJSON(r, &body, false); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.service.Update(ctx, chi.URLParam(r, "id"), line, body.Values); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated", "line": line})
}

// handleDelete removes the row at {line}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	line, err := lineParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.service.Delete(ctx, chi.URLParam(r, "id"), line); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "line": line})
}

// handleWrite persists a table, to its own file unless a path is given.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var body pathBody
	if err := decodeJSON(r, &body, true); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.Write(ctx, chi.URLParam(r, "id"), body.Path)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAuditTrail lists recent audit entries for a table: ?limit=50.
func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", defaultAuditLimit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	entries, err := s.service.AuditTrail(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
