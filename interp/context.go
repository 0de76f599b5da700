// Package interp is the host-side reference interpreter: it encodes by
// executing a plan.Plan against a bitio.Writer and decodes by reading
// fields in declaration order from a bitio.Reader, without generating
// any source code. It
// exists primarily so the planner and code generators have a ground
// truth to be tested against, and so tooling (the decode CLI command)
// can exercise a schema without a target language toolchain.
package interp

import (
	"fmt"

	"github.com/binschema/binschema/bitio"
	"github.com/binschema/binschema/expr"
	"github.com/binschema/binschema/schema"
)

// decodeContext carries the in-progress decode state: the bit reader, the
// schema being interpreted, and the flattened field values decoded so
// far, keyed by field name,
// used to resolve field_ref lengths, discriminator field paths, and
// expression evaluation (the decode result is a separate map).
type decodeContext struct {
	s      *schema.Schema
	r      *bitio.Reader
	values map[string]any
	root   *decodeContext
}

func newDecodeContext(s *schema.Schema, r *bitio.Reader) *decodeContext {
	ctx := &decodeContext{s: s, r: r, values: make(map[string]any)}
	ctx.root = ctx
	return ctx
}

func (ctx *decodeContext) child() *decodeContext {
	return &decodeContext{s: ctx.s, r: ctx.r, values: make(map[string]any), root: ctx.root}
}

// env adapts ctx into an expr.Env, optionally binding the synthetic
// "value" name for discriminator/guard evaluation.
func (ctx *decodeContext) env(bound *any) expr.Env {
	return &dynEnv{ctx: ctx, bound: bound}
}

type dynEnv struct {
	ctx   *decodeContext
	bound *any
}

func (e *dynEnv) Lookup(path string) (expr.Value, error) {
	if path == "value" {
		return e.Value()
	}
	v, ok := e.ctx.values[path]
	if !ok {
		return expr.Value{}, fmt.Errorf("interp: unresolved field %q", path)
	}
	return toExprValue(v)
}

func (e *dynEnv) Root() expr.Env {
	return &dynEnv{ctx: e.ctx.root}
}

func (e *dynEnv) Value() (expr.Value, error) {
	if e.bound == nil {
		return expr.Value{}, fmt.Errorf("interp: %q is not bound in this scope", "value")
	}
	return toExprValue(*e.bound)
}

func toExprValue(v any) (expr.Value, error) {
	switch t := v.(type) {
	case int64:
		return expr.Int(t), nil
	case uint64:
		return expr.Int(int64(t)), nil
	case int:
		return expr.Int(int64(t)), nil
	case string:
		return expr.String(t), nil
	case bool:
		return expr.Bool(t), nil
	default:
		return expr.Value{}, fmt.Errorf("interp: value of type %T has no expression representation", v)
	}
}

// fieldSpan records the byte range a field occupied in the output, used
// to resolve length_of/position_of/crc patches against both ordinary and
// placeholder fields.
type fieldSpan struct {
	start, end int64
}

// encodeContext mirrors decodeContext for the write direction; values is
// the caller-supplied input rather than an accumulating decode result.
type encodeContext struct {
	s      *schema.Schema
	w      *bitio.Writer
	values map[string]any
	root   *encodeContext

	// spans records every field's written byte range, keyed by name, so a
	// patch step can measure length/position relative to any earlier
	// field, not just another computed one.
	spans map[string]fieldSpan
}

func newEncodeContext(s *schema.Schema, w *bitio.Writer, values map[string]any) *encodeContext {
	ctx := &encodeContext{s: s, w: w, values: values, spans: make(map[string]fieldSpan)}
	ctx.root = ctx
	return ctx
}

func (ctx *encodeContext) env() expr.Env {
	return &encDynEnv{ctx: ctx}
}

type encDynEnv struct {
	ctx *encodeContext
}

func (e *encDynEnv) Lookup(path string) (expr.Value, error) {
	v, ok := e.ctx.values[path]
	if !ok {
		return expr.Value{}, fmt.Errorf("interp: unresolved field %q", path)
	}
	return toExprValue(v)
}

func (e *encDynEnv) Root() expr.Env { return &encDynEnv{ctx: e.ctx.root} }

func (e *encDynEnv) Value() (expr.Value, error) {
	return expr.Value{}, fmt.Errorf("interp: %q is not bound for encode-side expressions", "value")
}
