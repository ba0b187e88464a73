package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/memcsv/internal/core"
)

// statusPage renders the registered tables as a plain HTML page.
func statusPage(tables []core.TableInfo, loads core.LoadLimiterStatus, ttl time.Duration) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html><head><meta charset="utf-8"><title>memcsv</title>`+
			`<style>body{font-family:sans-serif;margin:2rem}table{border-collapse:collapse}`+
			`td,th{border:1px solid #ccc;padding:.3rem .6rem;text-align:left}</style></head><body>`); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, `<h1>Loaded tables</h1><p>%d tables, idle ttl %s, loads %d/%d in use</p>`,
			len(tables), templ.EscapeString(ttl.String()), loads.Active, loads.MaxConcurrent); err != nil {
			return err
		}
		if len(tables) == 0 {
			_, err := io.WriteString(w, `<p>No tables are loaded.</p></body></html>`)
			return err
		}

		if _, err := io.WriteString(w, `<table><thead><tr><th>ID</th><th>Path</th><th>Rows</th>`+
			`<th>Columns</th><th>Last accessed</th><th>Release at</th></tr></thead><tbody>`); err != nil {
			return err
		}
		for _, t := range tables {
			if _, err := fmt.Fprintf(w, `<tr><td>%s</td><td>%s</td><td>%d</td><td>%d</td><td>%s</td><td>%s</td></tr>`,
				templ.EscapeString(t.ID),
				templ.EscapeString(t.Path),
				t.Size,
				len(t.Headers),
				t.LastAccessed.Format(time.RFC3339),
				t.ReleaseAt.Format(time.RFC3339),
			); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table></body></html>`)
		return err
	})
}

// handleStatusPage renders the status page.
func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := statusPage(s.service.Tables(), s.service.LoadStatus(), s.service.TTL())
	if err := page.Render(r.Context(), w); err != nil {
		s.respondError(w, r, err)
	}
}
