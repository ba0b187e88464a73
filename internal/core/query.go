package core

// query.go implements the search pipeline: sort the whole table in place,
// filter the reordered rows with the AND of all conditions, then cut the
// requested page window. The sort is permanent; later reads see the new order.

import (
	"cmp"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// SearchRequest is one search over a table.
type SearchRequest struct {
	Sort       *SortSpec   `json:"sort,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
}

type predicate func(Value) bool

type compiledCondition struct {
	column int
	match  predicate
}

// Search runs req against the table. Conditions are compiled before the sort,
// so a malformed request never reorders storage.
func (t *Table) Search(req SearchRequest) (Page, error) {
	if req.Page < 1 || req.PageSize < 1 {
		return Page{}, newError("search", ErrInvalidPage, "page %d, size %d", req.Page, req.PageSize)
	}
	if req.Sort != nil {
		if req.Sort.Column < 0 || req.Sort.Column >= len(t.headers) {
			return Page{}, newError("search", ErrInvalidCondition, "sort column %d out of range", req.Sort.Column)
		}
		if req.Sort.Direction != Asc && req.Sort.Direction != Desc {
			return Page{}, newError("search", ErrInvalidCondition, "sort direction %d", int(req.Sort.Direction))
		}
	}
	conds, err := compileConditions(t.headers, req.Conditions)
	if err != nil {
		return Page{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if req.Sort != nil {
		sortRows(t.rows, *req.Sort, t.headers[req.Sort.Column].Type)
		t.touch(true)
	}

	var matched []int
	for i, row := range t.rows {
		if matchAll(conds, row) {
			matched = append(matched, i)
		}
	}

	page := Page{
		Headers:      t.Headers(),
		Lines:        []Line{},
		TotalMatches: len(matched),
		TotalSize:    len(t.rows),
		PageNumber:   req.Page,
		PageSize:     req.PageSize,
	}
	t.touch(false)

	if len(matched) == 0 {
		return page, nil
	}

	page.PageNumber = clampPage(req.Page, req.PageSize, len(matched))
	begin := (page.PageNumber - 1) * req.PageSize
	end := min(begin+req.PageSize, len(matched))

	page.Lines = make([]Line, 0, end-begin)
	for _, idx := range matched[begin:end] {
		page.Lines = append(page.Lines, Line{LineNumber: idx + 1, Values: t.rows[idx].Clone()})
	}
	return page, nil
}

// clampPage returns page, or the last non-empty page when page starts past
// the end of total matches.
func clampPage(page, size, total int) int {
	if (page-1)*size < total {
		return page
	}
	last := total / size
	if last*size != total {
		last++
	}
	return last
}

func matchAll(conds []compiledCondition, row Row) bool {
	for _, c := range conds {
		if !c.match(row[c.column]) {
			return false
		}
	}
	return true
}

// sortRows stably sorts rows by one column. Nulls order before every non-null
// value and equal to each other, so DESC puts them last. GENERAL columns have
// no ordering and are left as they are.
func sortRows(rows []Row, order SortSpec, t ColumnType) {
	if t == TypeGeneral {
		return
	}
	col := order.Column
	slices.SortStableFunc(rows, func(a, b Row) int {
		c := compareValues(a[col], b[col], t)
		if order.Direction == Desc {
			return -c
		}
		return c
	})
}

func compareValues(a, b Value, t ColumnType) int {
	switch {
	case !a.Valid && !b.Valid:
		return 0
	case !a.Valid:
		return -1
	case !b.Valid:
		return 1
	}
	switch t {
	case TypeInt:
		return cmp.Compare(a.Int, b.Int)
	case TypeNum:
		return cmp.Compare(a.Num, b.Num)
	default:
		return strings.Compare(a.Str, b.Str)
	}
}

func compileConditions(headers []Header, conds []Condition) ([]compiledCondition, error) {
	out := make([]compiledCondition, 0, len(conds))
	for i, c := range conds {
		if c.Column < 0 || c.Column >= len(headers) {
			return nil, newError("search", ErrInvalidCondition, "condition %d: column %d out of range", i, c.Column)
		}
		if c.Op < OpEQ || c.Op > OpRX {
			return nil, newError("search", ErrInvalidCondition, "condition %d: unknown operator %d", i, int(c.Op))
		}
		match, err := compileCondition(headers[c.Column].Type, c)
		if err != nil {
			return nil, newError("search", ErrInvalidCondition, "condition %d on column %q: %v", i, headers[c.Column].Name, err)
		}
		out = append(out, compiledCondition{column: c.Column, match: match})
	}
	return out, nil
}

func compileCondition(t ColumnType, c Condition) (predicate, error) {
	switch t {
	case TypeGeneral:
		return func(Value) bool { return true }, nil
	case TypeInt, TypeNum:
		if !c.Op.Ordered() {
			return func(Value) bool { return false }, nil
		}
		return compileNumeric(t, c)
	default:
		return compileString(c)
	}
}

func compileNumeric(t ColumnType, c Condition) (predicate, error) {
	text, err := operandText(c.Operand)
	if err != nil {
		return nil, err
	}
	f, ok := parseNum(text)
	if !ok {
		return nil, fmt.Errorf("operand %q is not a number", text)
	}
	i, isInt := parseInt(text)

	var compare func(Value) int
	switch {
	case t == TypeInt && isInt:
		compare = func(v Value) int { return cmp.Compare(v.Int, i) }
	case t == TypeInt:
		compare = func(v Value) int { return cmp.Compare(float64(v.Int), f) }
	default:
		compare = func(v Value) int { return cmp.Compare(v.Num, f) }
	}
	test := orderedTest(c.Op)
	return func(v Value) bool {
		return v.Valid && test(compare(v))
	}, nil
}

func compileString(c Condition) (predicate, error) {
	operand, err := operandText(c.Operand)
	if err != nil {
		return nil, err
	}

	var test func(string) bool
	switch c.Op {
	case OpCO:
		test = func(s string) bool { return strings.Contains(s, operand) }
	case OpST:
		test = func(s string) bool { return strings.HasPrefix(s, operand) }
	case OpED:
		test = func(s string) bool { return strings.HasSuffix(s, operand) }
	case OpRX:
		re, err := regexp.Compile(`^(?:` + operand + `)$`)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		test = re.MatchString
	default:
		ordered := orderedTest(c.Op)
		test = func(s string) bool { return ordered(strings.Compare(s, operand)) }
	}
	return func(v Value) bool {
		return v.Valid && test(v.Str)
	}, nil
}

// orderedTest turns a comparison result into the boolean for op.
func orderedTest(op Op) func(int) bool {
	switch op {
	case OpNE:
		return func(c int) bool { return c != 0 }
	case OpGE:
		return func(c int) bool { return c >= 0 }
	case OpGT:
		return func(c int) bool { return c > 0 }
	case OpLE:
		return func(c int) bool { return c <= 0 }
	case OpLT:
		return func(c int) bool { return c < 0 }
	default:
		return func(c int) bool { return c == 0 }
	}
}

// operandText renders a decoded operand as text for parsing or comparison.
func operandText(operand any) (string, error) {
	switch v := operand.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case Value:
		if !v.Valid {
			return "", fmt.Errorf("operand is null")
		}
		return v.Text(), nil
	case nil:
		return "", fmt.Errorf("operand is missing")
	}
	return "", fmt.Errorf("unsupported operand type %T", operand)
}
