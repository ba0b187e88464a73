package core

// coerce.go turns raw text and caller-supplied values into typed cells.
//
// Three modes exist:
//   - strict (ParseCell): the column type is fixed; text that does not parse
//     as that type is an error. Used by load.
//   - adaptive (Infer/Widen): the column type moves up the lattice as wider
//     values are seen. Used by sampling.
//   - input (CoerceInput): values decoded from a request body are checked
//     against the column type. Used by insert and update.

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// parseInt and parseNum are the only two parsers; every mode goes through them
// so "what counts as a number" has one definition.
func parseInt(raw string) (int64, bool) {
	i, err := strconv.ParseInt(raw, 10, 64)
	return i, err == nil
}

func parseNum(raw string) (float64, bool) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Infer classifies non-empty raw text: integer, then float, then string.
// The empty string is GENERAL, which never widens anything.
func Infer(raw string) ColumnType {
	if raw == "" {
		return TypeGeneral
	}
	if _, ok := parseInt(raw); ok {
		return TypeInt
	}
	if _, ok := parseNum(raw); ok {
		return TypeNum
	}
	return TypeStr
}

// Widen returns the column type after observing raw in a column of type current.
func Widen(current ColumnType, raw string) ColumnType {
	if observed := Infer(raw); observed.Wider(current) {
		return observed
	}
	return current
}

// ParseCell parses raw strictly as t. Empty text is a null of type t.
func ParseCell(raw string, t ColumnType) (Value, error) {
	if raw == "" {
		return NullValue(t), nil
	}
	switch t {
	case TypeInt:
		i, ok := parseInt(raw)
		if !ok {
			return Value{}, fmt.Errorf("%w: cannot parse %q as %s", ErrTypeMismatch, raw, t)
		}
		return IntValue(i), nil
	case TypeNum:
		f, ok := parseNum(raw)
		if !ok {
			return Value{}, fmt.Errorf("%w: cannot parse %q as %s", ErrTypeMismatch, raw, t)
		}
		return NumValue(f), nil
	case TypeStr:
		return StrValue(raw), nil
	default:
		return GeneralValue(raw), nil
	}
}

// CoerceInput validates a caller-supplied value against column type t.
//
// INT and NUM accept Go numbers, json.Number and numeric strings; INT
// additionally requires the value to be integral. STR accepts only strings.
// GENERAL accepts anything and keeps its text form. nil and "" are null.
func CoerceInput(in any, t ColumnType) (Value, error) {
	switch v := in.(type) {
	case nil:
		return NullValue(t), nil
	case Value:
		if !v.Valid {
			return NullValue(t), nil
		}
		if v.Type == t {
			return v, nil
		}
		if v.Type == TypeStr || v.Type == TypeGeneral {
			return CoerceInput(v.Str, t)
		}
		if v.Type == TypeInt {
			return CoerceInput(v.Int, t)
		}
		return CoerceInput(v.Num, t)
	case *Value:
		if v == nil {
			return NullValue(t), nil
		}
		return CoerceInput(*v, t)
	case string:
		if t == TypeStr && v != "" {
			return StrValue(v), nil
		}
		return ParseCell(v, t)
	case json.Number:
		return coerceNumberText(v.String(), t)
	case int:
		return coerceInt(int64(v), t)
	case int32:
		return coerceInt(int64(v), t)
	case int64:
		return coerceInt(v, t)
	case float32:
		return coerceFloat(float64(v), t)
	case float64:
		return coerceFloat(v, t)
	case bool:
		if t == TypeGeneral {
			return GeneralValue(strconv.FormatBool(v)), nil
		}
	}
	return Value{}, fmt.Errorf("%w: %T is not valid for a %s column", ErrTypeMismatch, in, t)
}

func coerceNumberText(s string, t ColumnType) (Value, error) {
	switch t {
	case TypeInt:
		if i, ok := parseInt(s); ok {
			return IntValue(i), nil
		}
		if f, ok := parseNum(s); ok {
			return coerceFloat(f, t)
		}
	case TypeNum:
		if f, ok := parseNum(s); ok {
			return NumValue(f), nil
		}
	case TypeGeneral:
		return GeneralValue(s), nil
	}
	return Value{}, fmt.Errorf("%w: number %s is not valid for a %s column", ErrTypeMismatch, s, t)
}

func coerceInt(i int64, t ColumnType) (Value, error) {
	switch t {
	case TypeInt:
		return IntValue(i), nil
	case TypeNum:
		return NumValue(float64(i)), nil
	case TypeGeneral:
		return GeneralValue(strconv.FormatInt(i, 10)), nil
	}
	return Value{}, fmt.Errorf("%w: number %d is not valid for a %s column", ErrTypeMismatch, i, t)
}

func coerceFloat(f float64, t ColumnType) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: %v is not a finite number", ErrTypeMismatch, f)
	}
	switch t {
	case TypeInt:
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return IntValue(int64(f)), nil
		}
	case TypeNum:
		return NumValue(f), nil
	case TypeGeneral:
		return GeneralValue(strconv.FormatFloat(f, 'f', -1, 64)), nil
	}
	return Value{}, fmt.Errorf("%w: number %v is not valid for a %s column", ErrTypeMismatch, f, t)
}

// coerceRow validates a whole input row against headers. The error names the
// offending column.
func coerceRow(headers []Header, in []any) (Row, error) {
	if len(in) != len(headers) {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrLengthMismatch, len(headers), len(in))
	}
	row := make(Row, len(in))
	for i, raw := range in {
		v, err := CoerceInput(raw, headers[i].Type)
		if err != nil {
			return nil, fmt.Errorf("column %d (%s): %w", i, headers[i].Name, err)
		}
		row[i] = v
	}
	return row, nil
}
