package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// FieldType is the native kind of a cell on the channel. Query rows only
// carry Integer, Float and String cells.
type FieldType uint8

const (
	FieldNull FieldType = iota
	FieldBool
	FieldInteger
	FieldFloat
	FieldString
)

var fieldTypeNames = map[FieldType]string{
	FieldNull:    "null",
	FieldBool:    "bool",
	FieldInteger: "integer",
	FieldFloat:   "float",
	FieldString:  "string",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Field is one untyped cell. Only the member matching Type is meaningful.
type Field struct {
	Type  FieldType
	Bool  bool
	Int   int64
	Float float64
	Str   string
}

func NullField() Field           { return Field{Type: FieldNull} }
func BoolField(v bool) Field     { return Field{Type: FieldBool, Bool: v} }
func IntegerField(v int64) Field { return Field{Type: FieldInteger, Int: v} }
func FloatField(v float64) Field { return Field{Type: FieldFloat, Float: v} }
func StringField(v string) Field { return Field{Type: FieldString, Str: v} }
func (f Field) IsNull() bool     { return f.Type == FieldNull }

// FieldOf converts a value for the write side of the channel. Sets are
// sent as their JSON encoding. An Invalid value is a caller bug.
func FieldOf(v Value) Field {
	switch v.kind {
	case BoolKind:
		return BoolField(v.b)
	case Int64Kind:
		return IntegerField(v.i)
	case Float64Kind:
		return FloatField(v.f)
	case StringKind:
		return StringField(v.s)
	case StringSetKind:
		return StringField(MarshalSet(v.set))
	}
	panic(fmt.Sprintf("unsupported preference value kind %s", v.kind))
}

// RowField converts a stored value for a query row. Booleans become the
// literal strings "true" and "false".
func RowField(v Value) Field {
	if v.kind == BoolKind {
		return StringField(strconv.FormatBool(v.b))
	}
	return FieldOf(v)
}

// Stored converts a written cell into the value the backend keeps. A
// string that strictly parses as a JSON string array is stored as a set.
// ok is false for a null cell, which means "remove".
func Stored(f Field) (Value, bool) {
	switch f.Type {
	case FieldBool:
		return Bool(f.Bool), true
	case FieldInteger:
		return Int64(f.Int), true
	case FieldFloat:
		return Float64(f.Float), true
	case FieldString:
		if set, err := UnmarshalSet(f.Str); err == nil {
			return Value{kind: StringSetKind, set: set}, true
		}
		return String(f.Str), true
	}
	return Value{}, false
}

// Decode turns a query cell back into a typed value. The checks run in a
// fixed order: numeric cells by storage kind, then the literal strings
// "true"/"false" as booleans, then a strict JSON string array as a set,
// and any other string as itself. A stored string "true" therefore reads
// back as a boolean.
func Decode(f Field) (Value, bool) {
	switch f.Type {
	case FieldInteger:
		return Int64(f.Int), true
	case FieldFloat:
		return Float64(f.Float), true
	case FieldString:
		if f.Str == "true" || f.Str == "false" {
			return Bool(f.Str == "true"), true
		}
		if set, err := UnmarshalSet(f.Str); err == nil {
			return Value{kind: StringSetKind, set: set}, true
		}
		return String(f.Str), true
	case FieldBool:
		return Bool(f.Bool), true
	}
	return Value{}, false
}

type fieldJSON struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (f Field) MarshalJSON() ([]byte, error) {
	var (
		raw []byte
		err error
	)
	switch f.Type {
	case FieldNull:
	case FieldBool:
		raw, err = json.Marshal(f.Bool)
	case FieldInteger:
		raw, err = json.Marshal(f.Int)
	case FieldFloat:
		raw, err = marshalFloat(f.Float)
	case FieldString:
		raw, err = json.Marshal(f.Str)
	default:
		return nil, fmt.Errorf("marshal field: unknown type %d", f.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal %s field: %w", f.Type, err)
	}
	return json.Marshal(fieldJSON{Type: f.Type.String(), Value: raw})
}

func (f *Field) UnmarshalJSON(data []byte) error {
	var in fieldJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("unmarshal field: %w", err)
	}

	var out Field
	var err error
	switch in.Type {
	case "null", "":
		out = NullField()
	case "bool":
		out.Type = FieldBool
		err = json.Unmarshal(in.Value, &out.Bool)
	case "integer":
		out.Type = FieldInteger
		err = json.Unmarshal(in.Value, &out.Int)
	case "float":
		out.Type = FieldFloat
		out.Float, err = unmarshalFloat(in.Value)
	case "string":
		out.Type = FieldString
		err = json.Unmarshal(in.Value, &out.Str)
	default:
		return fmt.Errorf("unmarshal field: unknown type %q", in.Type)
	}
	if err != nil {
		return fmt.Errorf("unmarshal %s field: %w", in.Type, err)
	}
	*f = out
	return nil
}

// marshalFloat writes finite floats as JSON numbers and NaN or ±Inf, which
// JSON cannot represent, as the strings "NaN", "+Inf" and "-Inf".
func marshalFloat(v float64) ([]byte, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return json.Marshal(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return json.Marshal(v)
}

func unmarshalFloat(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || !(math.IsNaN(v) || math.IsInf(v, 0)) {
			return 0, fmt.Errorf("float string %q is not NaN or ±Inf", s)
		}
		return v, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// Row is one query result: the key and its native cell.
type Row struct {
	Key   string `json:"key"`
	Value Field  `json:"value"`
}

// ContentValues is the payload of an insert or update. A null Value
// removes the key.
type ContentValues struct {
	Key   string `json:"key"`
	Value Field  `json:"value"`
}
