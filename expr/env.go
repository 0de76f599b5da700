package expr

import "fmt"

// Env resolves the names an expression may reference: dotted field paths
// (optionally rooted at the document's outermost message via a leading
// "_root." segment) and the synthetic name "value" a discriminator or
// guard binds to the field currently being tested.
type Env interface {
	// Lookup resolves a dotted path, e.g. "header.flags" or
	// "_root.sequence_number". It does not see the "_root." prefix; the
	// evaluator strips it and calls Lookup on the root environment
	// instead of the local one.
	Lookup(path string) (Value, error)
	// Root returns the environment for the outermost message in scope,
	// used to resolve a "_root."-prefixed path. Implementations that are
	// already the root may return themselves.
	Root() Env
	// Value returns the synthetic "value" binding, or an error if none is
	// bound in this scope (only discriminator/guard expressions bind it).
	Value() (Value, error)
}

// MapEnv is a simple Env backed by a flat map of already-decoded field
// values, suitable for host-side interpretation and for tests. Dotted
// paths are looked up as literal keys (the caller is responsible for
// flattening nested paths into this shape before evaluating).
type MapEnv struct {
	Fields map[string]Value
	Bound  *Value
	root   *MapEnv
}

// NewMapEnv builds a MapEnv that is its own root.
func NewMapEnv(fields map[string]Value) *MapEnv {
	e := &MapEnv{Fields: fields}
	e.root = e
	return e
}

// WithValue returns a copy of e with the synthetic "value" name bound,
// for evaluating discriminator/guard expressions.
func (e *MapEnv) WithValue(v Value) *MapEnv {
	child := &MapEnv{Fields: e.Fields, Bound: &v, root: e.root}
	return child
}

func (e *MapEnv) Lookup(path string) (Value, error) {
	if path == "value" {
		return e.Value()
	}
	if v, ok := e.Fields[path]; ok {
		return v, nil
	}
	return Value{}, fmt.Errorf("expr: unresolved path %q", path)
}

func (e *MapEnv) Root() Env {
	if e.root == nil {
		return e
	}
	return e.root
}

func (e *MapEnv) Value() (Value, error) {
	if e.Bound == nil {
		return Value{}, fmt.Errorf("expr: %q is not bound in this scope", "value")
	}
	return *e.Bound, nil
}
