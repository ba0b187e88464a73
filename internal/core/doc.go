// Package core holds delimited files in memory as typed tables and serves
// reads, searches and row edits against them.
//
// The package has no transport dependencies; the web layer and tests drive
// it through [Service].
//
// # Architecture
//
//   - Column types: every column sits on the lattice GENERAL < INT < NUM < STR.
//     Loads parse strictly against a declared type; [Sample] infers types by
//     widening as values are seen.
//   - [Table]: one loaded file. A row mutex is held for the whole of every
//     row operation; timestamps sit behind a second mutex.
//   - [Registry]: id to table map with TTL eviction via [Registry.Sweep].
//   - [Service]: resolves paths against an afero.Fs, gates loads with a
//     [LoadLimiter], and records an audit trail.
//
// # Search
//
// A search sorts the whole table in place, filters the reordered rows with
// the AND of its conditions, then slices one page:
//
//	page, err := svc.Search(ctx, id, core.SearchRequest{
//	    Sort:       &core.SortSpec{Column: 2, Direction: core.Asc},
//	    Conditions: []core.Condition{{Column: 2, Op: core.OpEQ, Operand: "9.5"}},
//	    Page:       1,
//	    PageSize:   10,
//	})
//
// The sort is permanent: later reads see rows in the sorted order. Requesting
// a page past the last match returns the last non-empty page and reports the
// adjusted page number.
//
// # Error Handling
//
// Every error wraps a sentinel such as [ErrTableNotFound]. [KindOf] tells
// client mistakes from internal failures, and [MapError] turns any error into
// a message with a support code (TBL, ROW, QRY, FILE, LOAD).
package core
