package cell

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind tags the variant of a Cell. The set is closed: decoding dispatches on
// the column's declared type name so every recognized driver type maps to
// exactly one Kind.
type Kind int

const (
	KindInteger Kind = iota
	KindUnsigned
	KindReal
	KindString
	KindBool
	KindDate
	KindTime
	KindDatetime
	KindJSON
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindUnsigned:
		return "unsigned"
	case KindReal:
		return "real"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindDatetime:
		return "datetime"
	case KindJSON:
		return "json"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Cell is one typed value flowing between HTTP, SQL and JSON. The zero Cell
// is a NULL integer. A Cell is nullable independent of its Kind, so a NULL
// read from a VARCHAR column stays a string-kinded cell.
type Cell struct {
	kind  Kind
	valid bool

	i      int64
	u      uint64
	f      float64
	s      string
	b      bool
	t      time.Time
	doc    any
	elems  []Cell
	fields map[string]Cell
}

// Row is one decoded result row.
type Row = map[string]Cell

func Int(v int64) Cell      { return Cell{kind: KindInteger, valid: true, i: v} }
func Uint(v uint64) Cell    { return Cell{kind: KindUnsigned, valid: true, u: v} }
func Float(v float64) Cell  { return Cell{kind: KindReal, valid: true, f: v} }
func Str(v string) Cell     { return Cell{kind: KindString, valid: true, s: v} }
func Bool(v bool) Cell      { return Cell{kind: KindBool, valid: true, b: v} }
func Date(v time.Time) Cell { return Cell{kind: KindDate, valid: true, t: v} }

// Clock carries a time-of-day; the date part of v is ignored on output.
func Clock(v time.Time) Cell    { return Cell{kind: KindTime, valid: true, t: v} }
func Datetime(v time.Time) Cell { return Cell{kind: KindDatetime, valid: true, t: v} }

// JSONDoc wraps an already-parsed JSON document (any combination of
// map[string]any, []any and scalars).
func JSONDoc(v any) Cell { return Cell{kind: KindJSON, valid: true, doc: v} }

func Array(elems []Cell) Cell { return Cell{kind: KindArray, valid: true, elems: elems} }

func Object(fields map[string]Cell) Cell {
	return Cell{kind: KindObject, valid: true, fields: fields}
}

// Null returns the typed NULL of the given kind.
func Null(k Kind) Cell { return Cell{kind: k} }

func (c Cell) Kind() Kind   { return c.kind }
func (c Cell) IsNull() bool { return !c.valid }

func (c Cell) Int64() int64         { return c.i }
func (c Cell) Uint64() uint64       { return c.u }
func (c Cell) Float64() float64     { return c.f }
func (c Cell) Text() string         { return c.s }
func (c Cell) Boolean() bool        { return c.b }
func (c Cell) TimeValue() time.Time { return c.t }

// Elem returns the i-th element of an array cell.
func (c Cell) Elem(i int) (Cell, bool) {
	if c.kind != KindArray || !c.valid || i < 0 || i >= len(c.elems) {
		return Cell{}, false
	}
	return c.elems[i], true
}

// Field returns the named field of an object cell.
func (c Cell) Field(name string) (Cell, bool) {
	if c.kind != KindObject || !c.valid {
		return Cell{}, false
	}
	v, ok := c.fields[name]
	return v, ok
}

func (c Cell) Len() int { return len(c.elems) }

// Encode converts the cell into a driver bind parameter. Structured cells
// cannot be bound into a scalar placeholder.
func (c Cell) Encode() (any, error) {
	if !c.valid {
		return nil, nil
	}
	switch c.kind {
	case KindInteger:
		return c.i, nil
	case KindUnsigned:
		return c.u, nil
	case KindReal:
		return c.f, nil
	case KindString:
		return c.s, nil
	case KindBool:
		return c.b, nil
	case KindDate, KindTime, KindDatetime:
		return c.t, nil
	case KindJSON:
		b, err := json.Marshal(c.doc)
		if err != nil {
			return nil, fmt.Errorf("encode json cell: %w", err)
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBind, c.kind)
	}
}

// MarshalJSON is variant-preserving: numbers stay numbers, temporals render
// ISO-8601, embedded JSON is emitted as a document rather than a string.
func (c Cell) MarshalJSON() ([]byte, error) {
	if !c.valid {
		return []byte("null"), nil
	}
	switch c.kind {
	case KindInteger:
		return []byte(strconv.FormatInt(c.i, 10)), nil
	case KindUnsigned:
		return []byte(strconv.FormatUint(c.u, 10)), nil
	case KindReal:
		return json.Marshal(c.f)
	case KindString:
		return json.Marshal(c.s)
	case KindBool:
		return json.Marshal(c.b)
	case KindDate:
		return json.Marshal(c.t.Format("2006-01-02"))
	case KindTime:
		return json.Marshal(c.t.Format("15:04:05"))
	case KindDatetime:
		return json.Marshal(c.t.Format(time.RFC3339))
	case KindJSON:
		return json.Marshal(c.doc)
	case KindArray:
		return json.Marshal(c.elems)
	case KindObject:
		return json.Marshal(c.fields)
	}
	return nil, fmt.Errorf("marshal cell: unknown kind %d", c.kind)
}

// AsAny flattens the cell to plain Go values (for expression environments
// and query-string rendering).
func (c Cell) AsAny() any {
	if !c.valid {
		return nil
	}
	switch c.kind {
	case KindInteger:
		return c.i
	case KindUnsigned:
		return c.u
	case KindReal:
		return c.f
	case KindString:
		return c.s
	case KindBool:
		return c.b
	case KindDate:
		return c.t.Format("2006-01-02")
	case KindTime:
		return c.t.Format("15:04:05")
	case KindDatetime:
		return c.t.Format(time.RFC3339)
	case KindJSON:
		return c.doc
	case KindArray:
		out := make([]any, len(c.elems))
		for i, e := range c.elems {
			out[i] = e.AsAny()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(c.fields))
		for k, v := range c.fields {
			out[k] = v.AsAny()
		}
		return out
	}
	return nil
}

// FromAny converts a decoded JSON value (map/slice/float64/string/bool/nil)
// into a Cell. JSON null becomes a string-kinded NULL: the payload carries
// no column type to preserve.
func FromAny(v any) Cell {
	switch val := v.(type) {
	case nil:
		return Null(KindString)
	case bool:
		return Bool(val)
	case string:
		return Str(val)
	case float64:
		if val == math.Trunc(val) && val >= math.MinInt64 && val <= math.MaxInt64 {
			return Int(int64(val))
		}
		return Float(val)
	case int:
		return Int(int64(val))
	case int64:
		return Int(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i)
		}
		f, _ := val.Float64()
		return Float(f)
	case []any:
		elems := make([]Cell, len(val))
		for i, e := range val {
			elems[i] = FromAny(e)
		}
		return Array(elems)
	case map[string]any:
		fields := make(map[string]Cell, len(val))
		for k, e := range val {
			fields[k] = FromAny(e)
		}
		return Object(fields)
	default:
		return Str(fmt.Sprintf("%v", val))
	}
}

// FromRows lifts decoded result rows into a single array-of-objects cell,
// which is what after-hooks see as "res".
func FromRows(rows []Row) Cell {
	elems := make([]Cell, len(rows))
	for i, r := range rows {
		elems[i] = Object(r)
	}
	return Array(elems)
}

// Sniff classifies a query-string value as bool, number, null or string and
// returns the corresponding cell. The empty string is treated as NULL.
func Sniff(s string) Cell {
	switch s {
	case "":
		return Null(KindString)
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Float(f)
	}
	if strings.EqualFold(s, "null") {
		return Null(KindString)
	}
	return Str(s)
}
