package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (r *captureRecorder) Record(_ context.Context, e AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *captureRecorder) actions() []AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuditAction, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Action
	}
	return out
}

type serviceFixture struct {
	svc      *Service
	fs       afero.Fs
	clock    *fakeClock
	recorder *captureRecorder
}

const scoreCSV = "id,name,score\n1,a,9.5\n2,b,3\n3,c,9.5\n"

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/scores.csv", []byte(scoreCSV), 0o644))

	clock := newFakeClock()
	recorder := &captureRecorder{}
	svc := NewService(Options{
		Fs:       fs,
		DataDir:  "/data",
		TTL:      10 * time.Minute,
		Recorder: recorder,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:    clock.Now,
	})
	return &serviceFixture{svc: svc, fs: fs, clock: clock, recorder: recorder}
}

func (f *serviceFixture) loadScores(t *testing.T) LoadResult {
	t.Helper()
	res, err := f.svc.Load(context.Background(), LoadRequest{
		Path:      "scores.csv",
		HasHeader: true,
		Headers:   scoreHeaders,
	})
	require.NoError(t, err)
	return res
}

func TestService_LoadFromPath(t *testing.T) {
	f := newServiceFixture(t)
	res := f.loadScores(t)

	_, err := uuid.Parse(res.ID)
	assert.NoError(t, err, "an id is generated when none is given")
	assert.Equal(t, "/data/scores.csv", res.Path)
	assert.Equal(t, 3, res.RowCount)
	assert.Equal(t, scoreHeaders, res.Headers)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), res.ReleaseAt)
	assert.Equal(t, []string{res.ID}, f.svc.ListManagedIDs())
	assert.Equal(t, []AuditAction{ActionLoad}, f.recorder.actions())
}

func TestService_LoadDerivesHeaders(t *testing.T) {
	f := newServiceFixture(t)
	res, err := f.svc.Load(context.Background(), LoadRequest{Path: "/data/scores.csv", HasHeader: true})
	require.NoError(t, err)

	assert.Equal(t, []Header{
		{Name: "id", Type: TypeStr},
		{Name: "name", Type: TypeStr},
		{Name: "score", Type: TypeStr},
	}, res.Headers)
}

func TestService_LoadFromRows(t *testing.T) {
	f := newServiceFixture(t)
	id := "AAAAAAAA-0000-0000-0000-000000000001"

	res, err := f.svc.Load(context.Background(), LoadRequest{
		ID:      id,
		Headers: scoreHeaders,
		Rows:    [][]string{{"1", "a", "1"}, {"2", "b", "2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaa-0000-0000-0000-000000000001", res.ID, "ids are normalized")
	assert.Equal(t, 2, res.RowCount)
	assert.Empty(t, res.Path)
}

func TestService_LoadErrors(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  LoadRequest
		want error
	}{
		{"bad id", LoadRequest{ID: "table-1", Path: "scores.csv", HasHeader: true}, ErrInvalidID},
		{"no source", LoadRequest{Headers: scoreHeaders}, ErrFileUnreadable},
		{"two sources", LoadRequest{Headers: scoreHeaders, Path: "scores.csv", Rows: [][]string{}}, ErrFileUnreadable},
		{"missing file", LoadRequest{Path: "nope.csv", Headers: scoreHeaders}, ErrFileUnreadable},
		{"no schema", LoadRequest{Path: "scores.csv"}, ErrInvalidHeaders},
		{"header width", LoadRequest{Path: "scores.csv", HasHeader: true, Headers: scoreHeaders[:2]}, ErrLengthMismatch},
		{"header line parsed as data", LoadRequest{Path: "scores.csv", Headers: scoreHeaders}, ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Load(ctx, tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsClientError(err))
		})
	}
	assert.Empty(t, f.svc.ListManagedIDs(), "failed loads register nothing")
}

func TestService_LoadDuplicateID(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	res := f.loadScores(t)

	req := LoadRequest{ID: res.ID, Headers: scoreHeaders, Rows: [][]string{{"7", "z", "1"}}}
	_, err := f.svc.Load(ctx, req)
	require.ErrorIs(t, err, ErrDuplicateID)

	req.Reload = true
	replaced, err := f.svc.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, replaced.RowCount)

	page, err := f.svc.Read(ctx, res.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalSize)
}

func TestService_ReadSearchWrite(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	res := f.loadScores(t)

	f.clock.Advance(time.Minute)
	page, err := f.svc.Search(ctx, res.ID, SearchRequest{
		Sort:       &SortSpec{Column: 0, Direction: Desc},
		Conditions: []Condition{{Column: 2, Op: OpGT, Operand: "5"}},
		Page:       1,
		PageSize:   10,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, lineIDs(page))
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), page.ReleaseAt)

	wr, err := f.svc.Write(ctx, res.ID, "")
	require.NoError(t, err)
	assert.Equal(t, WriteResult{Path: "/data/scores.csv", Rows: 3}, wr)

	raw, err := afero.ReadFile(f.fs, "/data/scores.csv")
	require.NoError(t, err)
	assert.Equal(t, "id,name,score\n3,c,9.5\n2,b,3\n1,a,9.5\n", string(raw), "the sort is persisted")

	wr, err = f.svc.Write(ctx, res.ID, "out/copy.csv")
	require.NoError(t, err)
	assert.Equal(t, "/data/out/copy.csv", wr.Path)
}

func TestService_PathsStayInDataDir(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	require.NoError(t, afero.WriteFile(f.fs, "/secret.csv", []byte("a\n1\n"), 0o644))

	for _, p := range []string{"../secret.csv", "/secret.csv", "/data/../secret.csv", "/database/x.csv"} {
		_, err := f.svc.Load(ctx, LoadRequest{Path: p, HasHeader: true})
		assert.ErrorIs(t, err, ErrPathOutsideDataDir, p)
		assert.True(t, IsClientError(err))

		_, err = f.svc.Sample(ctx, SampleRequest{Path: p, Skip: 1, Count: -1})
		assert.ErrorIs(t, err, ErrPathOutsideDataDir, p)
	}

	res := f.loadScores(t)
	_, err := f.svc.Write(ctx, res.ID, "../stolen.csv")
	assert.ErrorIs(t, err, ErrPathOutsideDataDir)
	exists, err := afero.Exists(f.fs, "/stolen.csv")
	require.NoError(t, err)
	assert.False(t, exists)

	res2, err := f.svc.Load(ctx, LoadRequest{Path: "/data/./scores.csv", HasHeader: true, Headers: scoreHeaders})
	require.NoError(t, err)
	assert.Equal(t, "/data/scores.csv", res2.Path, "absolute paths inside the data dir are accepted")
}

func TestService_WriteWithoutPath(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	res, err := f.svc.Load(ctx, LoadRequest{Headers: scoreHeaders, Rows: [][]string{{"1", "a", "1"}}})
	require.NoError(t, err)

	_, err = f.svc.Write(ctx, res.ID, "")
	assert.ErrorIs(t, err, ErrPathMismatch)
}

func TestService_Mutations(t *testing.T) {
	f := newServiceFixture(t)
	ctx := ContextWithRequestMeta(context.Background(), "10.0.0.7", "tests/1.0")
	res := f.loadScores(t)

	require.NoError(t, f.svc.Insert(ctx, res.ID, 1, Before, []any{0, "zero", nil}))
	require.NoError(t, f.svc.Update(ctx, res.ID, 2, []any{1, "one", 1.5}))
	require.NoError(t, f.svc.Delete(ctx, res.ID, 4))

	page, err := f.svc.Read(ctx, res.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2}, lineIDs(page))

	assert.Equal(t, []AuditAction{ActionLoad, ActionInsert, ActionUpdate, ActionDelete}, f.recorder.actions())
	last := f.recorder.entries[len(f.recorder.entries)-1]
	assert.Equal(t, "10.0.0.7", last.IPAddress)
	assert.Equal(t, "tests/1.0", last.UserAgent)
	assert.Equal(t, 4, last.LineNumber)
	assert.Equal(t, SeverityHigh, last.Severity)

	err = f.svc.Delete(ctx, res.ID, 99)
	assert.ErrorIs(t, err, ErrLineOutOfRange)
	assert.Len(t, f.recorder.actions(), 4, "failed mutations are not audited")

	_, err = f.svc.Read(ctx, uuid.NewString(), 1, 1)
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestService_Reload(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	res := f.loadScores(t)

	require.NoError(t, afero.WriteFile(f.fs, "/data/scores.csv", []byte("id,name,score\n9,z,1\n"), 0o644))

	_, err := f.svc.Reload(ctx, res.ID, "other.csv")
	require.ErrorIs(t, err, ErrPathMismatch)

	reloaded, err := f.svc.Reload(ctx, res.ID, "scores.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.RowCount)

	page, err := f.svc.Read(ctx, res.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, lineIDs(page))

	require.NoError(t, afero.WriteFile(f.fs, "/data/scores.csv", []byte("id,name,score\nbad,z,1\n"), 0o644))
	_, err = f.svc.Reload(ctx, res.ID, "")
	require.ErrorIs(t, err, ErrTypeMismatch)
	page, err = f.svc.Read(ctx, res.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, lineIDs(page), "a failed reload keeps the old rows")
}

func TestService_Sample(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	require.NoError(t, afero.WriteFile(f.fs, "/data/stock.csv", []byte("exported today\nitem,qty\nbolt,1\nnut,2.5\n"), 0o644))

	s, err := f.svc.Sample(ctx, SampleRequest{Path: "stock.csv", Skip: 2, Count: -1})
	require.NoError(t, err)
	assert.Equal(t, []Header{{Name: "item", Type: TypeStr}, {Name: "qty", Type: TypeNum}}, s.Headers)
	assert.Equal(t, Row{StrValue("bolt"), IntValue(1)}, s.Rows[0])
	assert.Equal(t, Row{StrValue("nut"), NumValue(2.5)}, s.Rows[1])

	s, err = f.svc.Sample(ctx, SampleRequest{Rows: [][]string{{"1", "x"}, {"2", "y"}}, Skip: 0, Count: 1})
	require.NoError(t, err)
	assert.Equal(t, []Header{{Name: "1", Type: TypeInt}, {Name: "2", Type: TypeStr}}, s.Headers)
	assert.Len(t, s.Rows, 1)

	assert.Empty(t, f.svc.ListManagedIDs(), "sampling registers nothing")
}

func TestService_ReleaseAndSweep(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	idle := f.loadScores(t)
	busy := f.loadScores(t)

	f.clock.Advance(9 * time.Minute)
	_, err := f.svc.Read(ctx, busy.ID, 1, 1)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, []string{idle.ID}, f.svc.Sweep(ctx))
	assert.Equal(t, []string{busy.ID}, f.svc.ListManagedIDs())
	assert.Nil(t, f.svc.Sweep(ctx))

	assert.True(t, f.svc.Release(ctx, busy.ID))
	assert.False(t, f.svc.Release(ctx, busy.ID))
	assert.Empty(t, f.svc.Tables())

	assert.Equal(t, []AuditAction{ActionLoad, ActionLoad, ActionEvict, ActionRelease}, f.recorder.actions())
}

func TestService_Tables(t *testing.T) {
	f := newServiceFixture(t)
	res := f.loadScores(t)

	infos := f.svc.Tables()
	require.Len(t, infos, 1)
	assert.Equal(t, res.ID, infos[0].ID)
	assert.Equal(t, 3, infos[0].Size)
	assert.True(t, infos[0].HasHeader)
	assert.Equal(t, res.ReleaseAt, infos[0].ReleaseAt)
}

func TestService_AuditTrailWithoutReader(t *testing.T) {
	f := newServiceFixture(t)
	entries, err := f.svc.AuditTrail(context.Background(), uuid.NewString(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
