package core

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/memcsv/internal/csvio"
)

// fakeClock is a settable clock for timestamp and TTL tests.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var scoreHeaders = []Header{
	{Name: "id", Type: TypeInt},
	{Name: "name", Type: TypeStr},
	{Name: "score", Type: TypeNum},
}

func newTestTable(t *testing.T, headers []Header, records [][]string) *Table {
	t.Helper()
	table, err := NewTable(TableOptions{
		ID:        "11111111-1111-1111-1111-111111111111",
		Headers:   headers,
		HasHeader: true,
		Path:      "/data/test.csv",
		Dialect:   csvio.DefaultDialect(),
	})
	require.NoError(t, err)
	_, err = table.Load(NewSliceSource(records))
	require.NoError(t, err)
	return table
}

func scoreTable(t *testing.T) *Table {
	return newTestTable(t, scoreHeaders, [][]string{
		{"1", "a", "9.5"},
		{"2", "b", "3.0"},
		{"3", "c", "9.5"},
	})
}

func ids(t *testing.T, table *Table) []int64 {
	t.Helper()
	page, err := table.Read(1, table.Size()+1)
	require.NoError(t, err)
	out := make([]int64, len(page.Lines))
	for i, l := range page.Lines {
		out[i] = l.Values[0].Int
	}
	return out
}

func TestNewTable_RejectsBadHeaders(t *testing.T) {
	_, err := NewTable(TableOptions{})
	assert.ErrorIs(t, err, ErrInvalidHeaders)

	_, err = NewTable(TableOptions{Headers: []Header{{Name: "a"}, {Name: "a"}}})
	assert.ErrorIs(t, err, ErrInvalidHeaders)

	_, err = NewTable(TableOptions{Headers: []Header{{Name: ""}}})
	assert.ErrorIs(t, err, ErrInvalidHeaders)
}

func TestTable_Load(t *testing.T) {
	table := scoreTable(t)
	assert.Equal(t, 3, table.Size())

	page, err := table.Read(1, 1)
	require.NoError(t, err)
	assert.Equal(t, Row{IntValue(1), StrValue("a"), NumValue(9.5)}, page.Lines[0].Values)
}

func TestTable_Load_LengthMismatchAborts(t *testing.T) {
	table, err := NewTable(TableOptions{Headers: scoreHeaders, Path: "x.csv"})
	require.NoError(t, err)

	_, err = table.Load(NewSliceSource([][]string{
		{"1", "a", "1"},
		{"2", "b"},
	}))
	require.ErrorIs(t, err, ErrLengthMismatch)
	assert.Contains(t, err.Error(), "line 2")
	assert.Equal(t, 0, table.Size(), "a failed load must not append anything")
}

func TestTable_Load_StrictParseError(t *testing.T) {
	table, err := NewTable(TableOptions{Headers: scoreHeaders, Path: "x.csv"})
	require.NoError(t, err)

	_, err = table.Load(NewSliceSource([][]string{{"one", "a", "1"}}))
	require.ErrorIs(t, err, ErrTypeMismatch)
	assert.Equal(t, KindClient, KindOf(err))
	assert.Contains(t, err.Error(), `file x.csv line 1 column 0: cannot parse "one" as int`)
}

func TestTable_Load_EmptyCellsAreNull(t *testing.T) {
	table := newTestTable(t, scoreHeaders, [][]string{{"", "", ""}})
	page, err := table.Read(1, 1)
	require.NoError(t, err)
	for _, v := range page.Lines[0].Values {
		assert.False(t, v.Valid)
	}
}

func TestTable_Insert(t *testing.T) {
	tests := []struct {
		name string
		line int
		pos  Position
		want []int64
	}{
		{"before line 2", 2, Before, []int64{1, 9, 2, 3}},
		{"before line 1", 1, Before, []int64{9, 1, 2, 3}},
		{"after line 1", 1, After, []int64{1, 9, 2, 3}},
		{"after last line appends", 3, After, []int64{1, 2, 3, 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := scoreTable(t)
			require.NoError(t, table.Insert(tt.line, tt.pos, []any{9, "z", 1.5}))
			assert.Equal(t, tt.want, ids(t, table))
		})
	}
}

func TestTable_Insert_Validation(t *testing.T) {
	table := scoreTable(t)

	assert.ErrorIs(t, table.Insert(0, Before, []any{9, "z", 1.5}), ErrLineOutOfRange)
	assert.ErrorIs(t, table.Insert(4, After, []any{9, "z", 1.5}), ErrLineOutOfRange)
	assert.ErrorIs(t, table.Insert(1, Before, []any{9, "z"}), ErrLengthMismatch)
	assert.ErrorIs(t, table.Insert(1, Before, []any{9, 5, 1.5}), ErrTypeMismatch)
	assert.ErrorIs(t, table.Insert(1, Position(7), []any{9, "z", 1.5}), ErrUnsupportedPosition)

	assert.Equal(t, []int64{1, 2, 3}, ids(t, table), "failed inserts must not mutate")
}

func TestTable_Update(t *testing.T) {
	table := scoreTable(t)
	require.NoError(t, table.Update(2, []any{20, "bee", nil}))

	page, err := table.Read(2, 1)
	require.NoError(t, err)
	assert.Equal(t, Row{IntValue(20), StrValue("bee"), NullValue(TypeNum)}, page.Lines[0].Values)

	assert.ErrorIs(t, table.Update(4, []any{1, "a", 1}), ErrLineOutOfRange)
	assert.ErrorIs(t, table.Update(1, []any{"x", "a", 1}), ErrTypeMismatch)
}

func TestTable_Delete(t *testing.T) {
	table := scoreTable(t)

	err := table.Delete(5)
	require.ErrorIs(t, err, ErrLineOutOfRange)
	assert.Equal(t, KindClient, KindOf(err))
	assert.Equal(t, 3, table.Size())

	require.NoError(t, table.Delete(2))
	assert.Equal(t, []int64{1, 3}, ids(t, table))
}

func TestTable_Read(t *testing.T) {
	table := scoreTable(t)

	page, err := table.Read(2, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalSize)
	require.Len(t, page.Lines, 2)
	assert.Equal(t, 2, page.Lines[0].LineNumber)
	assert.Equal(t, 3, page.Lines[1].LineNumber)

	page, err = table.Read(4, 1)
	require.NoError(t, err, "start one past the end is an empty window")
	assert.Empty(t, page.Lines)

	_, err = table.Read(5, 1)
	assert.ErrorIs(t, err, ErrStartBeyondData)

	_, err = table.Read(0, 1)
	assert.ErrorIs(t, err, ErrLineOutOfRange)

	_, err = table.Read(1, 0)
	assert.ErrorIs(t, err, ErrInvalidPage)
}

func TestTable_Read_ReturnsCopies(t *testing.T) {
	table := scoreTable(t)
	page, err := table.Read(1, 1)
	require.NoError(t, err)
	page.Lines[0].Values[1] = StrValue("mutated")

	again, err := table.Read(1, 1)
	require.NoError(t, err)
	assert.Equal(t, StrValue("a"), again.Lines[0].Values[1])
}

func TestTable_Timestamps(t *testing.T) {
	clock := newFakeClock()
	table, err := NewTable(TableOptions{Headers: scoreHeaders, Clock: clock.Now})
	require.NoError(t, err)
	created, _, _ := table.Timestamps()

	clock.Advance(time.Minute)
	_, err = table.Load(NewSliceSource([][]string{{"1", "a", "1"}}))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = table.Read(1, 1)
	require.NoError(t, err)

	c, accessed, modified := table.Timestamps()
	assert.Equal(t, created, c)
	assert.Equal(t, created.Add(2*time.Minute), accessed)
	assert.Equal(t, created.Add(time.Minute), modified, "reads do not change the modify time")

	clock.Advance(time.Minute)
	require.NoError(t, table.Delete(1))
	_, accessed, modified = table.Timestamps()
	assert.Equal(t, created.Add(3*time.Minute), accessed)
	assert.Equal(t, created.Add(3*time.Minute), modified)
}

func TestTable_WriteRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	headers := []Header{
		{Name: "id", Type: TypeInt},
		{Name: "note", Type: TypeStr},
		{Name: "amount", Type: TypeNum},
	}
	table := newTestTable(t, headers, [][]string{
		{"1", `says "hi", twice`, "1.25"},
		{"2", "", ""},
		{"3", "plain", "-4"},
	})

	n, err := table.Write(fs, "/out/copy.csv")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	raw, err := afero.ReadFile(fs, "/out/copy.csv")
	require.NoError(t, err)
	assert.Equal(t, "id,note,amount\n1,\"says \"\"hi\"\", twice\",1.25\n2,,\n3,plain,-4\n", string(raw))

	src, err := csvio.Open(fs, "/out/copy.csv", csvio.DefaultDialect())
	require.NoError(t, err)
	defer src.Close()
	_, err = src.Read() // header
	require.NoError(t, err)

	reloaded, err := NewTable(TableOptions{Headers: headers})
	require.NoError(t, err)
	_, err = reloaded.Load(src)
	require.NoError(t, err)

	before, err := table.Read(1, 10)
	require.NoError(t, err)
	after, err := reloaded.Read(1, 10)
	require.NoError(t, err)
	require.Len(t, after.Lines, len(before.Lines))
	for i := range before.Lines {
		for col := range before.Lines[i].Values {
			assert.True(t, before.Lines[i].Values[col].Equal(after.Lines[i].Values[col]),
				"line %d column %d: %v != %v", i+1, col, before.Lines[i].Values[col], after.Lines[i].Values[col])
		}
	}
}

func TestTable_WriteReload_EscapedCells(t *testing.T) {
	headers := []Header{
		{Name: "id", Type: TypeInt},
		{Name: "note", Type: TypeStr},
	}
	notes := []string{`a"b`, `say "hi"`, `"quoted"`, `C:\tmp\`, `back\"slash`, `x,"y"`}

	tests := []struct {
		name    string
		dialect func(d *csvio.Dialect)
	}{
		{name: "doubled quotes"},
		{name: "backslash escape", dialect: func(d *csvio.Dialect) { d.Escape = '\\' }},
		{name: "no quoting", dialect: func(d *csvio.Dialect) {
			d.Quote = csvio.NoChar
			d.Escape = '\\'
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := csvio.DefaultDialect()
			if tt.dialect != nil {
				tt.dialect(&d)
			}
			records := make([][]string, 0, len(notes))
			for i, n := range notes {
				if d.Quote == csvio.NoChar && strings.ContainsRune(n, d.Separator) {
					continue
				}
				records = append(records, []string{strconv.Itoa(i + 1), n})
			}

			table, err := NewTable(TableOptions{Headers: headers, Dialect: d})
			require.NoError(t, err)
			_, err = table.Load(NewSliceSource(records))
			require.NoError(t, err)

			fs := afero.NewMemMapFs()
			_, err = table.Write(fs, "/out/notes.csv")
			require.NoError(t, err)

			src, err := csvio.Open(fs, "/out/notes.csv", d)
			require.NoError(t, err)
			defer src.Close()
			reloaded, err := NewTable(TableOptions{Headers: headers, Dialect: d})
			require.NoError(t, err)
			_, err = reloaded.Load(src)
			require.NoError(t, err)

			page, err := reloaded.Read(1, len(records))
			require.NoError(t, err)
			require.Len(t, page.Lines, len(records))
			for i, line := range page.Lines {
				assert.Equal(t, records[i][1], line.Values[1].Str)
			}
		})
	}
}

func TestTable_Write_NumericColumnsNeverQuoted(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := csvio.DefaultDialect()
	d.Separator = '.'
	table, err := NewTable(TableOptions{
		Headers: []Header{{Name: "n", Type: TypeNum}, {Name: "s", Type: TypeStr}},
		Dialect: d,
	})
	require.NoError(t, err)
	_, err = table.Load(NewSliceSource([][]string{{"1.5", "a.b"}}))
	require.NoError(t, err)

	_, err = table.Write(fs, "/dot.csv")
	require.NoError(t, err)

	raw, err := afero.ReadFile(fs, "/dot.csv")
	require.NoError(t, err)
	assert.Equal(t, "1.5.\"a.b\"\n", string(raw), "no header line without HasHeader")
}

func TestTable_Write_Failure(t *testing.T) {
	table := scoreTable(t)
	_, err := table.Write(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/nope.csv")
	require.ErrorIs(t, err, ErrWriteFailed)
	assert.Equal(t, KindInternal, KindOf(err))
}
