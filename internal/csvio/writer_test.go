package csvio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_FormatRecord(t *testing.T) {
	tests := []struct {
		name     string
		fields   []string
		quotable []bool
		dialect  func(d *Dialect)
		want     string
	}{
		{
			name:   "plain",
			fields: []string{"a", "1"},
			want:   "a,1\n",
		},
		{
			name:   "separator triggers quoting",
			fields: []string{"x,y", "z"},
			want:   "\"x,y\",z\n",
		},
		{
			name:   "quote is escaped but not wrapped",
			fields: []string{`say "hi"`},
			want:   `say ""hi""` + "\n",
		},
		{
			name:     "non-quotable column is never wrapped",
			fields:   []string{"1,5", "a,b"},
			quotable: []bool{false, true},
			want:     "1,5,\"a,b\"\n",
		},
		{
			name:   "quoting disabled",
			fields: []string{"x,y"},
			dialect: func(d *Dialect) {
				d.Quote = NoChar
			},
			want: "x,y\n",
		},
		{
			name:   "escape disabled",
			fields: []string{`a"b`},
			dialect: func(d *Dialect) {
				d.Escape = NoChar
			},
			want: `a"b` + "\n",
		},
		{
			name:   "distinct escape char escapes itself",
			fields: []string{`a\b"c`},
			dialect: func(d *Dialect) {
				d.Escape = '\\'
			},
			want: `a\\b\"c` + "\n",
		},
		{
			name:   "crlf line end",
			fields: []string{"a"},
			dialect: func(d *Dialect) {
				d.LineEnd = "\r\n"
			},
			want: "a\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DefaultDialect()
			if tt.dialect != nil {
				tt.dialect(&d)
			}
			w := NewWriter(&bytes.Buffer{}, d, tt.quotable)
			assert.Equal(t, tt.want, w.FormatRecord(tt.fields))
		})
	}
}

func TestWriter_HeaderIsNotEscaped(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, DefaultDialect(), nil)

	require.NoError(t, w.WriteHeader([]string{`na"me`, "a,b"}))
	require.NoError(t, w.Write([]string{"1", "2"}))
	require.NoError(t, w.Flush())

	assert.Equal(t, "na\"me,a,b\n1,2\n", buf.String())
}

func TestCreateOpen_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := DefaultDialect()

	sink, err := Create(fs, "/data/out.csv", d, nil)
	require.NoError(t, err)
	require.NoError(t, sink.WriteHeader([]string{"name", "note"}))
	require.NoError(t, sink.Write([]string{"alice", `says "hi", twice`}))
	require.NoError(t, sink.Close())

	src, err := Open(fs, "/data/out.csv", d)
	require.NoError(t, err)
	defer src.Close()

	got, err := src.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"name", "note"}, {"alice", `says "hi", twice`}}, got)
	assert.Positive(t, src.BytesRead())
}

func TestWriterReader_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		dialect func(d *Dialect)
		rows    [][]string
	}{
		{
			name: "quote without separator",
			rows: [][]string{
				{`a"b`, `say "hi"`},
				{`"lead`, `trail"`},
				{`""`, "plain"},
				{`x,"y"`, `"q",`},
			},
		},
		{
			name: "backslash escape",
			dialect: func(d *Dialect) {
				d.Escape = '\\'
			},
			rows: [][]string{
				{`C:\tmp`, `a"b`},
				{`\"`, `"start`},
				{`x,\y`, `end\`},
			},
		},
		{
			name: "quoting disabled with backslash escape",
			dialect: func(d *Dialect) {
				d.Quote = NoChar
				d.Escape = '\\'
			},
			rows: [][]string{
				{`C:\tmp`, `a"b`},
				{`"x"`, `\\`},
			},
		},
		{
			name: "quoting and escaping disabled",
			dialect: func(d *Dialect) {
				d.Quote = NoChar
				d.Escape = NoChar
			},
			rows: [][]string{
				{`a"b`, `"x"`},
			},
		},
		{
			name: "semicolon separator",
			dialect: func(d *Dialect) {
				d.Separator = ';'
			},
			rows: [][]string{
				{"1,5", `he said "no"`},
				{"a;b", `"`+"x"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DefaultDialect()
			if tt.dialect != nil {
				tt.dialect(&d)
			}

			var buf bytes.Buffer
			w := NewWriter(&buf, d, nil)
			for _, row := range tt.rows {
				require.NoError(t, w.Write(row))
			}
			require.NoError(t, w.Flush())

			got, err := NewReader(strings.NewReader(buf.String()), d).ReadAll()
			require.NoError(t, err)
			assert.Equal(t, tt.rows, got, "written as %q", buf.String())
		})
	}
}

func TestCreateOpen_Charset(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := DefaultDialect()
	d.Charset = "windows-1252"

	sink, err := Create(fs, "/latin.csv", d, nil)
	require.NoError(t, err)
	require.NoError(t, sink.Write([]string{"café", "naïve"}))
	require.NoError(t, sink.Close())

	raw, err := afero.ReadFile(fs, "/latin.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("caf\xe9,na\xefve\n"), raw)

	src, err := Open(fs, "/latin.csv", d)
	require.NoError(t, err)
	defer src.Close()

	rec, err := src.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"café", "naïve"}, rec)
}

func TestOpen_UnknownCharset(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a.csv", []byte("a\n"), 0o644))

	d := DefaultDialect()
	d.Charset = "klingon-8"
	_, err := Open(fs, "/a.csv", d)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported charset"))
}

func TestParseChar(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{"", NoChar, false},
		{"none", NoChar, false},
		{"NONE", NoChar, false},
		{`\t`, '\t', false},
		{";", ';', false},
		{"|", '|', false},
		{"ab", NoChar, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChar(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.want != NoChar {
				back, err := ParseChar(FormatChar(got))
				require.NoError(t, err)
				assert.Equal(t, got, back)
			}
		})
	}
}

func TestDialect_Validate(t *testing.T) {
	assert.NoError(t, DefaultDialect().Validate())

	d := DefaultDialect()
	d.Quote = ','
	assert.Error(t, d.Validate())

	d = DefaultDialect()
	d.Separator = NoChar
	assert.Error(t, d.Validate())

	d = DefaultDialect()
	d.SkipLines = -1
	assert.Error(t, d.Validate())
}
