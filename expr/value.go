// Package expr implements the expression language used throughout a
// schema for conditionals, discriminator guards, and computed-field
// targets: a small recursive-descent evaluator over a tagged Value
// covering the int64/string/bool domain a binary-format schema needs.
package expr

import "fmt"

// Kind is the closed set of runtime value shapes an expression can
// produce or consume.
type Kind int

const (
	KindInt Kind = iota
	KindString
	KindBool
)

// Value is a tagged union: exactly one of Int/Str/Bool is meaningful,
// selected by Kind. Integers are int64 and all arithmetic wraps with
// ordinary two's-complement semantics, matching the width a decoded field
// would carry on the host side.
type Value struct {
	Kind Kind
	Int  int64
	Str  string
	Bool bool
}

func Int(v int64) Value    { return Value{Kind: KindInt, Int: v} }
func String(v string) Value { return Value{Kind: KindString, Str: v} }
func Bool(v bool) Value     { return Value{Kind: KindBool, Bool: v} }

func (v Value) asInt() (int64, error) {
	switch v.Kind {
	case KindInt:
		return v.Int, nil
	case KindBool:
		if v.Bool {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("expr: cannot use %s value as an integer", v.describe())
	}
}

func (v Value) truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	case KindString:
		return v.Str != ""
	default:
		return false
	}
}

func (v Value) describe() string {
	switch v.Kind {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

func boolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }
