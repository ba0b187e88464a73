package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ColumnType is a point in the column type lattice GENERAL < INT < NUM < STR.
// A column only ever moves up the lattice.
type ColumnType int

const (
	TypeGeneral ColumnType = iota
	TypeInt
	TypeNum
	TypeStr
)

var columnTypeNames = [...]string{
	TypeGeneral: "general",
	TypeInt:     "int",
	TypeNum:     "num",
	TypeStr:     "str",
}

func (t ColumnType) String() string {
	if t < TypeGeneral || t > TypeStr {
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
	return columnTypeNames[t]
}

// ParseColumnType accepts the lattice names in any case. "string", "integer",
// "number" and "double" are accepted as aliases.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "general", "":
		return TypeGeneral, nil
	case "int", "integer":
		return TypeInt, nil
	case "num", "number", "double", "float":
		return TypeNum, nil
	case "str", "string":
		return TypeStr, nil
	}
	return TypeGeneral, fmt.Errorf("unknown column type %q", s)
}

// Wider reports whether t sits strictly above other in the lattice.
func (t ColumnType) Wider(other ColumnType) bool {
	return t > other
}

// Numeric reports whether values of t compare numerically.
func (t ColumnType) Numeric() bool {
	return t == TypeInt || t == TypeNum
}

// Quotable reports whether a serialized field of this type may be wrapped in
// quote characters.
func (t ColumnType) Quotable() bool {
	return t == TypeStr || t == TypeGeneral
}

func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ColumnType) UnmarshalText(b []byte) error {
	parsed, err := ParseColumnType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Header names a column and records its type. Names never change after load.
type Header struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Value is a single typed cell. Valid=false means the cell is null, in which
// case only Type is meaningful.
type Value struct {
	Type  ColumnType
	Valid bool
	Int   int64
	Num   float64
	Str   string
}

// NullValue returns a null cell of type t.
func NullValue(t ColumnType) Value {
	return Value{Type: t}
}

func IntValue(i int64) Value {
	return Value{Type: TypeInt, Valid: true, Int: i}
}

func NumValue(f float64) Value {
	return Value{Type: TypeNum, Valid: true, Num: f}
}

func StrValue(s string) Value {
	return Value{Type: TypeStr, Valid: true, Str: s}
}

// GeneralValue holds raw text for a column whose type is not yet known.
func GeneralValue(s string) Value {
	return Value{Type: TypeGeneral, Valid: true, Str: s}
}

// Text renders the cell the way it is written to a delimited file.
// Null cells render as the empty string.
func (v Value) Text() string {
	if !v.Valid {
		return ""
	}
	switch v.Type {
	case TypeInt:
		return strconv.FormatInt(v.Int, 10)
	case TypeNum:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	default:
		return v.Str
	}
}

func (v Value) String() string {
	if !v.Valid {
		return "<null>"
	}
	return v.Text()
}

// Equal reports whether two cells hold the same type and value.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type || v.Valid != o.Valid {
		return false
	}
	if !v.Valid {
		return true
	}
	switch v.Type {
	case TypeInt:
		return v.Int == o.Int
	case TypeNum:
		return v.Num == o.Num
	default:
		return v.Str == o.Str
	}
}

// MarshalJSON encodes null cells as null, numeric cells as numbers and the
// rest as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	switch v.Type {
	case TypeInt:
		return []byte(strconv.FormatInt(v.Int, 10)), nil
	case TypeNum:
		return json.Marshal(v.Num)
	default:
		return json.Marshal(v.Str)
	}
}

// Row is one record. Its length always equals the table's header count.
type Row []Value

// Clone returns an independent copy of r.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Op is a filter operator.
type Op int

const (
	OpEQ Op = iota
	OpNE
	OpGE
	OpGT
	OpLE
	OpLT
	OpCO // contains
	OpST // starts with
	OpED // ends with
	OpRX // full-string regular expression match
)

var opNames = [...]struct {
	name   string
	symbol string
}{
	OpEQ: {"EQ", "="},
	OpNE: {"NE", "!="},
	OpGE: {"GE", ">="},
	OpGT: {"GT", ">"},
	OpLE: {"LE", "<="},
	OpLT: {"LT", "<"},
	OpCO: {"CO", "()"},
	OpST: {"ST", "(="},
	OpED: {"ED", ")="},
	OpRX: {"RX", "?="},
}

func (o Op) String() string {
	if o < OpEQ || o > OpRX {
		return fmt.Sprintf("Op(%d)", int(o))
	}
	return opNames[o].name
}

// Symbol returns the compact operator form, e.g. ">=" for OpGE.
func (o Op) Symbol() string {
	if o < OpEQ || o > OpRX {
		return ""
	}
	return opNames[o].symbol
}

// Ordered reports whether o is a comparison operator that numeric columns support.
func (o Op) Ordered() bool {
	return o >= OpEQ && o <= OpLT
}

// ParseOp accepts either the operator name ("ge", case-insensitive) or its
// symbol (">=").
func ParseOp(s string) (Op, error) {
	s = strings.TrimSpace(s)
	for i, n := range opNames {
		if strings.EqualFold(s, n.name) || s == n.symbol {
			return Op(i), nil
		}
	}
	// "==" is common enough in hand-written queries to be worth accepting.
	if s == "==" {
		return OpEQ, nil
	}
	return OpEQ, fmt.Errorf("unknown operator %q", s)
}

func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Op) UnmarshalText(b []byte) error {
	parsed, err := ParseOp(string(b))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Direction is a sort order.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// ParseDirection accepts "asc" and "desc" in any case. The empty string is ASC.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ASC":
		return Asc, nil
	case "DESC":
		return Desc, nil
	}
	return Asc, fmt.Errorf("unknown sort direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	parsed, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// SortSpec orders a search by one column.
type SortSpec struct {
	Column    int       `json:"column"`
	Direction Direction `json:"direction"`
}

// Position anchors an insert relative to an existing line.
type Position int

const (
	Before Position = iota
	After
)

func (p Position) String() string {
	if p == After {
		return "AFTER"
	}
	return "BEFORE"
}

// ParsePosition accepts BEFORE/FRONT/TOP and AFTER/BACK/BOTTOM in any case.
func ParsePosition(s string) (Position, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BEFORE", "FRONT", "TOP":
		return Before, nil
	case "AFTER", "BACK", "BOTTOM":
		return After, nil
	}
	return Before, fmt.Errorf("%w: %q", ErrUnsupportedPosition, s)
}

func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Position) UnmarshalText(b []byte) error {
	parsed, err := ParsePosition(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Condition is one filter term. Operand is parsed according to the column's
// type when the search is compiled.
type Condition struct {
	Column  int `json:"column"`
	Op      Op  `json:"op"`
	Operand any `json:"value"`
}

// Line is a row together with its 1-based position in storage at the time
// it was read.
type Line struct {
	LineNumber int `json:"line"`
	Values     Row `json:"values"`
}

// Page is the result of a read or search.
type Page struct {
	Headers      []Header  `json:"headers"`
	Lines        []Line    `json:"lines"`
	TotalMatches int       `json:"totalMatches"`
	TotalSize    int       `json:"totalSize"`
	PageNumber   int       `json:"page,omitempty"`
	PageSize     int       `json:"pageSize,omitempty"`
	ReleaseAt    time.Time `json:"releaseAt"`
}

// Sampling is a preview of a file with inferred column types.
type Sampling struct {
	Headers []Header `json:"headers"`
	Rows    []Row    `json:"rows"`
}

// TableInfo describes a registered table for listings and the status page.
type TableInfo struct {
	ID           string    `json:"id"`
	Path         string    `json:"path,omitempty"`
	Size         int       `json:"size"`
	HasHeader    bool      `json:"hasHeader"`
	Headers      []Header  `json:"headers"`
	Created      time.Time `json:"created"`
	LastAccessed time.Time `json:"lastAccessed"`
	LastModified time.Time `json:"lastModified"`
	ReleaseAt    time.Time `json:"releaseAt"`
}
