package ports

import (
	"encoding/json"
	"fmt"
	"time"
)

// Player identifies the owner of cached and durable rows. Branch is carried
// separately where an operation is template-scoped, because templates live on
// a (game, branch) pair while player rows live on (game, client, env).
type Player struct {
	GameID   string
	ClientID string
	Env      string
}

// ValueKind discriminates the element value union.
type ValueKind string

const (
	KindInt    ValueKind = "int"
	KindFloat  ValueKind = "float"
	KindString ValueKind = "string"
	KindBool   ValueKind = "bool"
	KindDate   ValueKind = "date"
)

// Value is the tagged union stored per element. Exactly one of the payload
// fields is meaningful, selected by Kind.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
	Date  time.Time
}

func IntValue(v int64) Value      { return Value{Kind: KindInt, Int: v} }
func FloatValue(v float64) Value  { return Value{Kind: KindFloat, Float: v} }
func StringValue(v string) Value  { return Value{Kind: KindString, Str: v} }
func BoolValue(v bool) Value      { return Value{Kind: KindBool, Bool: v} }
func DateValue(t time.Time) Value { return Value{Kind: KindDate, Date: t} }

// Numeric returns the value as a float64 for int/float kinds.
func (v Value) Numeric() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	}
	return 0, false
}

type valueJSON struct {
	Kind  ValueKind       `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.Kind {
	case KindInt:
		payload = v.Int
	case KindFloat:
		payload = v.Float
	case KindString:
		payload = v.Str
	case KindBool:
		payload = v.Bool
	case KindDate:
		payload = v.Date.UTC().Format(time.RFC3339Nano)
	default:
		return nil, fmt.Errorf("value: unknown kind %q", v.Kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Kind: v.Kind, Value: raw})
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var vj valueJSON
	if err := json.Unmarshal(b, &vj); err != nil {
		return err
	}
	v.Kind = vj.Kind
	switch vj.Kind {
	case KindInt:
		return json.Unmarshal(vj.Value, &v.Int)
	case KindFloat:
		return json.Unmarshal(vj.Value, &v.Float)
	case KindString:
		return json.Unmarshal(vj.Value, &v.Str)
	case KindBool:
		return json.Unmarshal(vj.Value, &v.Bool)
	case KindDate:
		var s string
		if err := json.Unmarshal(vj.Value, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		v.Date = t
		return nil
	}
	return fmt.Errorf("value: unknown kind %q", vj.Kind)
}

// HistoryEntry is one sample in an analytic element's value history, used by
// the array aggregation methods.
type HistoryEntry struct {
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// Element is a single tracked value for a player. History is populated only
// for analytic elements whose template uses an array method.
type Element struct {
	Player    Player
	ElementID string
	Value     Value
	History   []HistoryEntry
	UpdatedAt time.Time
}
