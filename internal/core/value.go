package core

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags the dynamic type held by a Value.
type ValueKind int

const (
	KindEmpty ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindDate
)

// Value is a single cell of an uploaded row. Rows arrive with a schema only
// known at runtime, so cells carry their own kind.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	t    time.Time
}

// EmptyValue returns the value used for missing cells.
func EmptyValue() Value { return Value{} }

// StringValue wraps raw text.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue wraps a parsed number.
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }

// BoolValue wraps a parsed boolean.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// DateValue wraps a parsed date.
func DateValue(t time.Time) Value { return Value{kind: KindDate, t: t} }

// Kind returns the tag of v.
func (v Value) Kind() ValueKind { return v.kind }

// IsEmpty is true for missing cells and for text that is blank after trimming.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindEmpty:
		return true
	case KindString:
		return strings.TrimSpace(v.str) == ""
	}
	return false
}

// Text returns the textual form used for length checks, regex matching and
// duplicate keys.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDate:
		return v.t.Format("2006-01-02")
	}
	return ""
}

// Number returns the numeric form of v. Strings are coerced with ParseNumber.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		return ParseNumber(v.str)
	}
	return 0, false
}

// Bool returns the boolean form of v. Strings are coerced with ParseBool.
func (v Value) Bool() (bool, bool) {
	switch v.kind {
	case KindBool:
		return v.b, true
	case KindString:
		return ParseBool(v.str)
	case KindNumber:
		if v.num == 0 || v.num == 1 {
			return v.num == 1, true
		}
	}
	return false, false
}

// Date returns the date form of v. Strings are coerced with ParseDate.
func (v Value) Date() (time.Time, bool) {
	switch v.kind {
	case KindDate:
		return v.t, true
	case KindString:
		return ParseDate(v.str)
	}
	return time.Time{}, false
}

// String implements fmt.Stringer.
func (v Value) String() string { return v.Text() }

// MarshalJSON encodes empty values as null and other kinds natively.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindDate:
		return json.Marshal(v.Text())
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes JSON scalars. Dates arrive as strings and stay strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = ValueOf(raw)
	return nil
}

// ValueOf converts a Go scalar to a Value.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return EmptyValue()
	case Value:
		return t
	case string:
		return StringValue(t)
	case float64:
		return NumberValue(t)
	case float32:
		return NumberValue(float64(t))
	case int:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case int32:
		return NumberValue(float64(t))
	case bool:
		return BoolValue(t)
	case time.Time:
		return DateValue(t)
	}
	return EmptyValue()
}

var rowType = reflect.TypeOf(Row{})

// Row is an ordered mapping from source header to cell value.
type Row struct {
	keys   []string
	values map[string]Value
}

// NewRow creates an empty row with capacity for n columns.
func NewRow(n int) Row {
	return Row{
		keys:   make([]string, 0, n),
		values: make(map[string]Value, n),
	}
}

// RowOf builds a row from alternating key/value pairs.
// Odd trailing arguments are ignored.
func RowOf(kv ...any) Row {
	r := NewRow(len(kv) / 2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		r.Set(key, ValueOf(kv[i+1]))
	}
	return r
}

// Set stores a value, keeping the first insertion position of key.
func (r *Row) Set(key string, v Value) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Get returns the value for key and whether it is present.
func (r Row) Get(key string) (Value, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the headers in insertion order.
func (r Row) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of columns.
func (r Row) Len() int { return len(r.keys) }

// MarshalJSON encodes the row as an object in key order.
func (r Row) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := r.values[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// Record is a row tagged with its stable 1-based position in the raw input.
// Index counts data rows only. Line is the physical line the row starts on
// in the source file, or 0 when the source has no lines.
type Record struct {
	Index int `json:"row"`
	Line  int `json:"line,omitempty"`
	Row   Row `json:"data"`
}

// Records numbers rows starting at 1.
func Records(rows []Row) []Record {
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = Record{Index: i + 1, Row: r}
	}
	return out
}

// UnmarshalJSON decodes a JSON object, keeping the key order of the input.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return &json.UnmarshalTypeError{Value: "non-object", Type: rowType}
	}
	*r = NewRow(0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var v Value
		if err := dec.Decode(&v); err != nil {
			return err
		}
		r.Set(key, v)
	}
	_, err = dec.Token()
	return err
}
