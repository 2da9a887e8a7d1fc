package value

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// EncodeText renders v as (kind, text) for untyped text storage such as a
// SQLite column pair. DecodeText reverses it exactly.
func EncodeText(v Value) (string, string, error) {
	if v.kind == Invalid {
		return "", "", fmt.Errorf("encode value: invalid kind")
	}
	return v.kind.String(), v.String(), nil
}

func DecodeText(kind, text string) (Value, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return Value{}, err
	}

	switch k {
	case BoolKind:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Value{}, fmt.Errorf("decode bool: %w", err)
		}
		return Bool(b), nil
	case Int64Kind:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("decode int64: %w", err)
		}
		return Int64(i), nil
	case Float64Kind:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("decode float64: %w", err)
		}
		return Float64(f), nil
	case StringSetKind:
		set, err := UnmarshalSet(text)
		if err != nil {
			return Value{}, fmt.Errorf("decode string set: %w", err)
		}
		return Value{kind: StringSetKind, set: set}, nil
	default:
		return String(text), nil
	}
}

type valueJSON struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	kind, text, err := EncodeText(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Kind: kind, Value: text})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var in valueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	out, err := DecodeText(in.Kind, in.Value)
	if err != nil {
		return err
	}
	*v = out
	return nil
}
