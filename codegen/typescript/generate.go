// Package typescript generates a standalone TypeScript module for a
// schema: one interface (or, for types with instances, one class) per
// sequence type, a discriminated-union type per union, and a matching
// encode/decode function pair for each, built against a small "./bitio"
// runtime module whose surface mirrors the project's own bitio package.
// The walk dispatches by schema.FieldKind exactly as codegen/golang's
// generator does, so the two targets stay wire-compatible by
// construction, with one exception: the ./bitio runtime packs bit fields
// MSB-first only, so a schema's lsb_first bit_order is not applied here.
package typescript

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/binschema/binschema/expr"
	"github.com/binschema/binschema/plan"
	"github.com/binschema/binschema/schema"
)

// Generate emits one TypeScript source file declaring a type (interface
// or class) and an encode/decode function pair for every sequence type
// in s, plus a discriminated-union type and its own encode/decode pair
// for every union, in declaration order.
func Generate(s *schema.Schema) ([]byte, error) {
	g := &generator{s: s, unions: map[string]*unionInfo{}}
	return g.generate()
}

// Target adapts Generate to codegen.Target so the TypeScript backend
// can be passed to codegen.GenerateAll alongside other language targets.
type Target struct{}

func (Target) Name() string          { return "typescript" }
func (Target) FileExtension() string { return "ts" }
func (Target) Generate(s *schema.Schema) ([]byte, error) {
	return Generate(s)
}

type generator struct {
	s      *schema.Schema
	buf    bytes.Buffer
	unions map[string]*unionInfo
	order  []string
}

type unionInfo struct {
	name    string
	union   *schema.Union
	variant []string
}

func (g *generator) generate() ([]byte, error) {
	g.buf.WriteString("import * as bitio from \"./bitio\";\n\n")

	for _, td := range g.s.Types {
		switch td.Kind {
		case schema.KindSequence:
			if err := g.generateType(td); err != nil {
				return nil, fmt.Errorf("typescript codegen: type %q: %w", td.Name, err)
			}
			if err := g.generateEncodeFunction(td); err != nil {
				return nil, fmt.Errorf("typescript codegen: type %q: %w", td.Name, err)
			}
			if err := g.generateDecodeFunction(td); err != nil {
				return nil, fmt.Errorf("typescript codegen: type %q: %w", td.Name, err)
			}
		case schema.KindUnion:
			g.registerUnion(td.Name, td.Union)
		}
	}

	for _, name := range g.order {
		if err := g.generateUnion(g.unions[name]); err != nil {
			return nil, fmt.Errorf("typescript codegen: union %q: %w", name, err)
		}
	}

	return g.buf.Bytes(), nil
}

func (g *generator) registerUnion(name string, u *schema.Union) *unionInfo {
	if info, ok := g.unions[name]; ok {
		return info
	}
	info := &unionInfo{name: name, union: u}
	seen := map[string]bool{}
	for _, v := range u.Variants {
		if !seen[v.TargetType] {
			seen[v.TargetType] = true
			info.variant = append(info.variant, v.TargetType)
		}
	}
	g.unions[name] = info
	g.order = append(g.order, name)
	return info
}

func (g *generator) unionFieldName(containerType, fieldName string, u *schema.Union) string {
	name := containerType + pascal(fieldName) + "Union"
	g.registerUnion(name, u)
	return name
}

// generateType emits a plain data interface for types with no instances,
// or a class (so a lazily-resolved instance can carry its own memoized
// accessor methods) for
// types that have them.
func (g *generator) generateType(td *schema.TypeDef) error {
	if len(td.Instances) == 0 {
		fmt.Fprintf(&g.buf, "export interface %s {\n", td.Name)
		for _, f := range td.Fields {
			if f.Name == "" {
				continue
			}
			tsType, err := g.tsType(td.Name, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(&g.buf, "  %s: %s;\n", camel(f.Name), tsType)
		}
		g.buf.WriteString("}\n\n")
		return nil
	}

	fmt.Fprintf(&g.buf, "export class %s {\n", td.Name)
	for _, f := range td.Fields {
		if f.Name == "" {
			continue
		}
		tsType, err := g.tsType(td.Name, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(&g.buf, "  %s!: %s;\n", camel(f.Name), tsType)
	}
	g.buf.WriteString("\n  // backs instance accessors; set by decode" + td.Name + "\n")
	g.buf.WriteString("  __r!: bitio.Reader;\n")
	for _, inst := range td.Instances {
		fmt.Fprintf(&g.buf, "  %sState: number = 0;\n", camel(inst.Name))
		fmt.Fprintf(&g.buf, "  %sMemo: %s | null = null;\n", camel(inst.Name), inst.TargetType)
	}
	g.buf.WriteString("\n")
	for _, inst := range td.Instances {
		if err := g.generateInstanceAccessor(td, inst); err != nil {
			return err
		}
	}
	g.buf.WriteString("}\n\n")
	return nil
}

const (
	instUnevaluated = 0
	instEvaluating  = 1
	instEvaluated   = 2
)

// generateInstanceAccessor emits a memoized, cycle-guarded method
// implementing the same UNEVALUATED -> EVALUATING -> EVALUATED/ERROR
// state machine as codegen/golang's instance accessors.
func (g *generator) generateInstanceAccessor(td *schema.TypeDef, inst *schema.Instance) error {
	name := camel(inst.Name)
	state := name + "State"
	memo := name + "Memo"

	fmt.Fprintf(&g.buf, "  %s(): %s | null {\n", name, inst.TargetType)
	fmt.Fprintf(&g.buf, "    if (this.%s === %d) { return this.%s; }\n", state, instEvaluated, memo)
	fmt.Fprintf(&g.buf, "    if (this.%s === %d) { throw new Error(\"circular reference evaluating instance %s\"); }\n", state, instEvaluating, inst.Name)
	fmt.Fprintf(&g.buf, "    this.%s = %d;\n", state, instEvaluating)

	if inst.Conditional != "" {
		cond, err := tsCondition(inst.Conditional, "this.")
		if err != nil {
			return fmt.Errorf("instance %q: %w", inst.Name, err)
		}
		fmt.Fprintf(&g.buf, "    if (!%s) { this.%s = %d; return null; }\n", cond, state, instEvaluated)
	}

	g.buf.WriteString("    let pos: number;\n")
	switch inst.Position.Kind {
	case schema.PositionLiteral:
		fmt.Fprintf(&g.buf, "    pos = %d;\n", inst.Position.Literal)
	case schema.PositionFieldRef:
		fmt.Fprintf(&g.buf, "    pos = this.%s;\n", camel(inst.Position.Path))
	case schema.PositionFromEnd:
		g.buf.WriteString("    const sz = this.__r.size();\n")
		fmt.Fprintf(&g.buf, "    if (sz === null) { this.%s = %d; throw new Error(\"instance %s uses from_end position but the backing source has no known length\"); }\n", state, instEvaluated, inst.Name)
		fmt.Fprintf(&g.buf, "    pos = sz - %d;\n", inst.Position.FromEnd)
	}

	if inst.Alignment != nil {
		fmt.Fprintf(&g.buf, "    if (pos %% %d !== 0) { this.%s = %d; throw new Error(`Position ${pos} is not aligned to %d bytes`); }\n",
			*inst.Alignment, state, instEvaluated, *inst.Alignment)
	}

	g.buf.WriteString("    const sub = this.__r.clone();\n    sub.seek(pos);\n")
	fmt.Fprintf(&g.buf, "    const v = decode%s(sub);\n", inst.TargetType)
	fmt.Fprintf(&g.buf, "    this.%s = %d;\n    this.%s = v;\n    return v;\n  }\n\n", state, instEvaluated, memo)
	return nil
}

func (g *generator) tsType(containerType string, f *schema.Field) (string, error) {
	switch f.Kind {
	case schema.FieldInt, schema.FieldBits, schema.FieldVarint, schema.FieldCRC:
		return "number", nil
	case schema.FieldString:
		return "string", nil
	case schema.FieldArray:
		item, err := g.tsType(containerType, f.Array.Item)
		if err != nil {
			return "", err
		}
		return item + "[]", nil
	case schema.FieldTypeRef:
		if td, ok := g.s.ByName(f.Ref.TypeName); ok && td.Kind == schema.KindUnion {
			g.registerUnion(f.Ref.TypeName, td.Union)
		}
		return f.Ref.TypeName, nil
	case schema.FieldOptional:
		val, err := g.tsType(containerType, f.Opt.Value)
		if err != nil {
			return "", err
		}
		return val + " | null", nil
	case schema.FieldUnion:
		if f.Union.Inline != nil {
			return g.unionFieldName(containerType, f.Name, f.Union.Inline), nil
		}
		if td, ok := g.s.ByName(f.Union.TypeName); ok && td.Union != nil {
			g.registerUnion(f.Union.TypeName, td.Union)
		}
		return f.Union.TypeName, nil
	case schema.FieldPointer:
		return f.Ptr.TargetType + " | null", nil
	default:
		return "", fmt.Errorf("field %q: kind not supported by the typescript generator", f.Name)
	}
}

func pascal(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' })
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return b.String()
}

func camel(name string) string {
	p := pascal(name)
	if p == "" {
		return p
	}
	return strings.ToLower(p[:1]) + p[1:]
}

// tsCondition lowers a boolean guard expression to TypeScript source
// through the expression grammar's parse tree, mirroring codegen/
// golang's goCondition: field references resolve against recv and
// every binary node is parenthesized explicitly.
func tsCondition(expression, recv string) (string, error) {
	n, err := expr.Parse(expression)
	if err != nil {
		return "", err
	}
	return lowerTSBool(n, func(path string) (string, error) {
		return resolveTSFieldRef(path, recv)
	})
}

func resolveTSFieldRef(path, recv string) (string, error) {
	if path == "value" {
		return "", fmt.Errorf("%q is only bound inside a union when clause", "value")
	}
	if strings.HasPrefix(path, "_root.") {
		return "", fmt.Errorf("_root paths are not supported in generated code")
	}
	ref := recv
	for i, seg := range strings.Split(path, ".") {
		if i > 0 {
			ref += "."
		}
		ref += camel(seg)
	}
	return ref, nil
}

// lowerTSExpr renders a parsed expression as TypeScript source with
// every binary node parenthesized.
func lowerTSExpr(n *expr.Node, resolve func(path string) (string, error)) (string, error) {
	switch n.Kind {
	case expr.NodeInt:
		return strconv.FormatInt(n.Int, 10), nil
	case expr.NodeString:
		return strconv.Quote(n.Str), nil
	case expr.NodeBool:
		return strconv.FormatBool(n.Bool), nil
	case expr.NodeIdent:
		return resolve(n.Ident)
	case expr.NodeUnary:
		if n.Op == "!" {
			x, err := lowerTSBool(n.X, resolve)
			if err != nil {
				return "", err
			}
			return "!" + x, nil
		}
		x, err := lowerTSExpr(n.X, resolve)
		if err != nil {
			return "", err
		}
		return n.Op + "(" + x + ")", nil
	case expr.NodeBinary:
		lower := lowerTSExpr
		if n.Op == "&&" || n.Op == "||" {
			lower = lowerTSBool
		}
		x, err := lower(n.X, resolve)
		if err != nil {
			return "", err
		}
		y, err := lower(n.Y, resolve)
		if err != nil {
			return "", err
		}
		return "(" + x + " " + n.Op + " " + y + ")", nil
	case expr.NodeTernary:
		c, err := lowerTSBool(n.X, resolve)
		if err != nil {
			return "", err
		}
		x, err := lowerTSExpr(n.Y, resolve)
		if err != nil {
			return "", err
		}
		y, err := lowerTSExpr(n.Z, resolve)
		if err != nil {
			return "", err
		}
		return "(" + c + " ? " + x + " : " + y + ")", nil
	default:
		return "", fmt.Errorf("unsupported expression node")
	}
}

// lowerTSBool renders n in boolean position, adding an explicit != 0
// around integer-valued subexpressions so truthiness matches the
// runtime evaluator rather than JavaScript coercion rules.
func lowerTSBool(n *expr.Node, resolve func(path string) (string, error)) (string, error) {
	x, err := lowerTSExpr(n, resolve)
	if err != nil {
		return "", err
	}
	if n.IsBoolean() {
		return x, nil
	}
	return "(" + x + " != 0)", nil
}

// --- Encode ---

func (g *generator) generateEncodeFunction(td *schema.TypeDef) error {
	p, err := plan.Build(g.s, td.Name)
	if err != nil {
		return err
	}

	fmt.Fprintf(&g.buf, "export function encode%s(m: %s, w: bitio.Writer): void {\n", td.Name, td.Name)
	for _, f := range td.Fields {
		fmt.Fprintf(&g.buf, "  let %sStart = 0, %sEnd = 0;\n", camel(f.Name), camel(f.Name))
	}

	for _, step := range p.Steps {
		switch step.Kind {
		case plan.StepField:
			f := step.Field
			v := camel(f.Name)
			fmt.Fprintf(&g.buf, "  %sStart = w.currentByteOffset();\n", v)
			if f.Conditional != "" {
				cond, err := tsCondition(f.Conditional, "m.")
				if err != nil {
					return fmt.Errorf("field %q: %w", f.Name, err)
				}
				fmt.Fprintf(&g.buf, "  if (%s) {\n", cond)
				if err := g.generateEncodeField(td, f, "    "); err != nil {
					return err
				}
				g.buf.WriteString("  }\n")
			} else if err := g.generateEncodeField(td, f, "  "); err != nil {
				return err
			}
			fmt.Fprintf(&g.buf, "  %sEnd = w.currentByteOffset();\n", v)
		case plan.StepPlaceholder:
			f := step.PlaceholderField
			v := camel(f.Name)
			fmt.Fprintf(&g.buf, "  %sStart = w.currentByteOffset();\n", v)
			emitWritePlaceholder(&g.buf, step.PlaceholderWidth, "  ")
			fmt.Fprintf(&g.buf, "  %sEnd = w.currentByteOffset();\n", v)
		case plan.StepPatch:
			if err := g.emitPatch(td, step.PatchField); err != nil {
				return err
			}
		}
	}
	g.buf.WriteString("}\n\n")
	return nil
}

func emitWritePlaceholder(buf *bytes.Buffer, width int, indent string) {
	fmt.Fprintf(buf, "%sw.writeU%d(0%s);\n", indent, width*8, endianArgSuffix(width))
}

func endianArgSuffix(width int) string {
	if width == 1 {
		return ""
	}
	return ", bitio.Endian.Big"
}

// endianExpr resolves the runtime endian argument for a field, honoring
// a per-field override before the schema config default.
func (g *generator) endianExpr(f *schema.Field) string {
	e := g.s.Config.EffectiveEndianness()
	if f != nil && f.Endianness != "" {
		e = f.Endianness
	}
	if e == schema.LittleEndian {
		return "bitio.Endian.Little"
	}
	return "bitio.Endian.Big"
}

func (g *generator) endianSuffix(width int, f *schema.Field) string {
	if width == 1 {
		return ""
	}
	return ", " + g.endianExpr(f)
}

func fieldByName(td *schema.TypeDef, name string) *schema.Field {
	for _, f := range td.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (g *generator) emitPatch(td *schema.TypeDef, f *schema.Field) error {
	v := camel(f.Name)
	width, err := placeholderWidthOf(f)
	if err != nil {
		return err
	}
	endian := g.endianSuffix(width, f)

	switch {
	case f.Kind == schema.FieldCRC:
		start := "0"
		if f.CRC.AfterField != "" {
			start = camel(f.CRC.AfterField) + "End"
		}
		fmt.Fprintf(&g.buf, "  {\n    const sum = bitio.crc32(w.bytes().slice(%s, %sStart));\n", start, v)
		fmt.Fprintf(&g.buf, "    w.patchU%d(%sStart, sum%s);\n  }\n", width*8, v, endian)
	case f.Computed != nil && f.Computed.Kind == schema.ComputedLengthOf:
		switch {
		case f.Computed.FromAfterField != "":
			// Everything after the anchor to the current offset, minus
			// the computed field's own placeholder bytes.
			fmt.Fprintf(&g.buf, "  {\n    const ln = w.currentByteOffset() - %sEnd - %d;\n", camel(f.Computed.FromAfterField), width)
		case fieldByName(td, f.Computed.Target) != nil && fieldByName(td, f.Computed.Target).Kind == schema.FieldArray:
			// Arrays are measured in items.
			fmt.Fprintf(&g.buf, "  {\n    const ln = m.%s.length;\n", camel(f.Computed.Target))
		default:
			fmt.Fprintf(&g.buf, "  {\n    const ln = %sEnd - %sStart;\n", camel(f.Computed.Target), camel(f.Computed.Target))
		}
		fmt.Fprintf(&g.buf, "    w.patchU%d(%sStart, ln%s);\n  }\n", width*8, v, endian)
	case f.Computed != nil && f.Computed.Kind == schema.ComputedPositionOf:
		target := camel(f.Computed.Target) + "Start"
		fmt.Fprintf(&g.buf, "  w.patchU%d(%sStart, %s%s);\n", width*8, v, target, endian)
	default:
		return fmt.Errorf("unsupported computed kind for field %q", f.Name)
	}
	return nil
}

func placeholderWidthOf(f *schema.Field) (int, error) {
	switch f.Kind {
	case schema.FieldInt:
		return f.Int.Width / 8, nil
	case schema.FieldCRC:
		return f.CRC.Width / 8, nil
	default:
		return 0, fmt.Errorf("computed fields must be fixed-width ints or crc fields, got kind %v", f.Kind)
	}
}

func (g *generator) generateEncodeField(td *schema.TypeDef, f *schema.Field, indent string) error {
	ref := "m." + camel(f.Name)
	if f.Const != nil {
		lit, err := constLiteral(f)
		if err != nil {
			return err
		}
		ref = lit
	}
	return g.generateEncodeFieldImpl(td, f, ref, indent)
}

func constLiteral(f *schema.Field) (string, error) {
	cv := f.Const
	switch {
	case cv.Int != nil:
		return fmt.Sprintf("%d", *cv.Int), nil
	case cv.IsStr:
		s := cv.Str
		// Short fixed-string consts are zero-padded to the declared
		// width, on the wire and in the decode-time equality check.
		if f.Kind == schema.FieldString && f.Str != nil && f.Str.Kind == schema.StringFixed && len(s) < f.Str.FixedLength {
			s += strings.Repeat("\x00", f.Str.FixedLength-len(s))
		}
		return fmt.Sprintf("%q", s), nil
	default:
		return "", fmt.Errorf("field %q: unsupported const shape", f.Name)
	}
}

func (g *generator) generateEncodeFieldImpl(td *schema.TypeDef, f *schema.Field, ref, indent string) error {
	switch f.Kind {
	case schema.FieldInt:
		if f.Int.Width == 8 {
			fmt.Fprintf(&g.buf, "%sw.writeU8(%s);\n", indent, ref)
		} else {
			fmt.Fprintf(&g.buf, "%sw.writeU%d(%s, %s);\n", indent, f.Int.Width, ref, g.endianExpr(f))
		}
		return nil
	case schema.FieldBits:
		fmt.Fprintf(&g.buf, "%sw.writeBits(%s, %d);\n", indent, ref, f.Bits.Width)
		return nil
	case schema.FieldVarint:
		fmt.Fprintf(&g.buf, "%sw.writeVarlen(%s, bitio.Varint.%s);\n", indent, ref, strings.ToUpper(string(f.Varint.Encoding)))
		return nil
	case schema.FieldString:
		return g.generateEncodeString(f, ref, indent)
	case schema.FieldArray:
		return g.generateEncodeArray(td, f, ref, indent)
	case schema.FieldTypeRef:
		fmt.Fprintf(&g.buf, "%sencode%s(%s, w);\n", indent, f.Ref.TypeName, ref)
		return nil
	case schema.FieldUnion:
		name := f.Union.TypeName
		if f.Union.Inline != nil {
			name = g.unionFieldName(td.Name, f.Name, f.Union.Inline)
		}
		fmt.Fprintf(&g.buf, "%sencode%s(%s, w);\n", indent, name, ref)
		return nil
	case schema.FieldOptional:
		return g.generateEncodeOptional(td, f, ref, indent)
	case schema.FieldPointer:
		fmt.Fprintf(&g.buf, "%sthrow new Error(\"pointer field %s encoding is not supported by the generated encoder\");\n", indent, f.Name)
		return nil
	case schema.FieldCRC:
		return nil
	default:
		return fmt.Errorf("field %q: kind not supported by the typescript encode generator", f.Name)
	}
}

func (g *generator) generateEncodeOptional(td *schema.TypeDef, f *schema.Field, ref, indent string) error {
	of := f.Opt
	fmt.Fprintf(&g.buf, "%sif (%s === null) {\n%s  w.writeBits(0, %d);\n%s} else {\n", indent, ref, indent, of.PresenceWidth, indent)
	fmt.Fprintf(&g.buf, "%s  w.writeBits(1, %d);\n", indent, of.PresenceWidth)
	if err := g.generateEncodeFieldImpl(td, of.Value, ref, indent+"  "); err != nil {
		return err
	}
	fmt.Fprintf(&g.buf, "%s}\n", indent)
	return nil
}

func (g *generator) generateEncodeString(f *schema.Field, ref, indent string) error {
	switch f.Str.Kind {
	case schema.StringFixed:
		fmt.Fprintf(&g.buf, "%sw.writeFixedString(%s, %d);\n", indent, ref, f.Str.FixedLength)
	case schema.StringLengthPrefixed:
		fmt.Fprintf(&g.buf, "%sw.writeLengthPrefixedString(%s, bitio.LenPrefix.%s);\n", indent, ref, strings.ToUpper(f.Str.LengthPrefix))
	case schema.StringFieldReferenced:
		fmt.Fprintf(&g.buf, "%sw.writeBytes(bitio.utf8Encode(%s));\n", indent, ref)
	case schema.StringNullTerminated:
		fmt.Fprintf(&g.buf, "%sw.writeNullTerminatedString(%s);\n", indent, ref)
	default:
		return fmt.Errorf("field %q: string kind not supported by the typescript generator", f.Name)
	}
	return nil
}

func (g *generator) generateEncodeArray(td *schema.TypeDef, f *schema.Field, ref, indent string) error {
	af := f.Array
	switch af.Kind {
	case schema.ArrayFixed:
		fmt.Fprintf(&g.buf, "%sif (%s.length !== %d) { throw new Error(\"field %s: expected %d items\"); }\n", indent, ref, af.FixedLength, f.Name, af.FixedLength)
	case schema.ArrayLengthPrefixed:
		fmt.Fprintf(&g.buf, "%sw.writeLengthPrefix(%s.length, bitio.LenPrefix.%s);\n", indent, ref, strings.ToUpper(af.LengthPrefix))
	case schema.ArrayFieldReferenced, schema.ArrayNullTerminated, schema.ArrayEOFTerminated:
	case schema.ArrayByteLengthPrefixed, schema.ArrayLengthPrefixedItems:
		fmt.Fprintf(&g.buf, "%sthrow new Error(\"field %s: array kind is not supported by the generated encoder\");\n", indent, f.Name)
		return nil
	default:
		return fmt.Errorf("field %q: array kind not supported by the typescript generator", f.Name)
	}

	itemVar := camel(f.Name) + "Item"
	fmt.Fprintf(&g.buf, "%sfor (const %s of %s) {\n", indent, itemVar, ref)
	if err := g.generateEncodeFieldImpl(td, af.Item, itemVar, indent+"  "); err != nil {
		return err
	}
	g.buf.WriteString(indent + "}\n")
	if af.Kind == schema.ArrayNullTerminated {
		fmt.Fprintf(&g.buf, "%sw.writeU8(0);\n", indent)
	}
	return nil
}

// --- Decode ---

func (g *generator) generateDecodeFunction(td *schema.TypeDef) error {
	fmt.Fprintf(&g.buf, "export function decode%s(r: bitio.Reader): %s {\n", td.Name, td.Name)
	if len(td.Instances) == 0 {
		fmt.Fprintf(&g.buf, "  const m = {} as %s;\n", td.Name)
	} else {
		fmt.Fprintf(&g.buf, "  const m = new %s();\n", td.Name)
	}
	for _, f := range td.Fields {
		if err := g.generateDecodeField(td, f, "  "); err != nil {
			return err
		}
	}
	if len(td.Instances) > 0 {
		g.buf.WriteString("  m.__r = r.clone();\n")
	}
	g.buf.WriteString("  return m;\n}\n\n")
	return nil
}

func (g *generator) generateDecodeField(td *schema.TypeDef, f *schema.Field, indent string) error {
	ref := "m." + camel(f.Name)
	if f.Conditional != "" {
		cond, err := tsCondition(f.Conditional, "m.")
		if err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		fmt.Fprintf(&g.buf, "%sif (%s) {\n", indent, cond)
		if err := g.generateDecodeFieldImpl(td, f, ref, indent+"  "); err != nil {
			return err
		}
		g.buf.WriteString(indent + "}\n")
		return nil
	}
	return g.generateDecodeFieldImpl(td, f, ref, indent)
}

func (g *generator) generateDecodeFieldImpl(td *schema.TypeDef, f *schema.Field, ref, indent string) error {
	switch f.Kind {
	case schema.FieldInt:
		if f.Int.Width == 8 {
			fmt.Fprintf(&g.buf, "%s%s = r.readU8();\n", indent, ref)
		} else {
			fmt.Fprintf(&g.buf, "%s%s = r.readU%d(%s);\n", indent, ref, f.Int.Width, g.endianExpr(f))
		}
		return g.emitConstCheck(f, ref, indent)
	case schema.FieldBits:
		fmt.Fprintf(&g.buf, "%s%s = r.readBits(%d);\n", indent, ref, f.Bits.Width)
		return nil
	case schema.FieldVarint:
		fmt.Fprintf(&g.buf, "%s%s = r.readVarlen(bitio.Varint.%s);\n", indent, ref, strings.ToUpper(string(f.Varint.Encoding)))
		return nil
	case schema.FieldString:
		return g.generateDecodeString(f, ref, indent)
	case schema.FieldArray:
		return g.generateDecodeArray(td, f, ref, indent)
	case schema.FieldTypeRef:
		if tdRef, ok := g.s.ByName(f.Ref.TypeName); ok && tdRef.Kind == schema.KindUnion {
			return g.emitUnionDecodeCall(f.Ref.TypeName, tdRef.Union, ref, indent)
		}
		fmt.Fprintf(&g.buf, "%s%s = decode%s(r);\n", indent, ref, f.Ref.TypeName)
		return nil
	case schema.FieldUnion:
		var name string
		var u *schema.Union
		if f.Union.Inline != nil {
			u = f.Union.Inline
			name = g.unionFieldName(td.Name, f.Name, u)
		} else {
			name = f.Union.TypeName
			if tdRef, ok := g.s.ByName(name); ok {
				u = tdRef.Union
			}
		}
		return g.emitUnionDecodeCall(name, u, ref, indent)
	case schema.FieldPointer:
		return g.generateDecodePointer(f, ref, indent)
	case schema.FieldOptional:
		return g.generateDecodeOptional(td, f, ref, indent)
	case schema.FieldCRC:
		if f.CRC.Width == 8 {
			fmt.Fprintf(&g.buf, "%s%s = r.readU8();\n", indent, ref)
		} else {
			fmt.Fprintf(&g.buf, "%s%s = r.readU%d(%s);\n", indent, ref, f.CRC.Width, g.endianExpr(f))
		}
		return nil
	default:
		return fmt.Errorf("field %q: kind not supported by the typescript decode generator", f.Name)
	}
}

func (g *generator) emitConstCheck(f *schema.Field, ref, indent string) error {
	if f.Const == nil {
		return nil
	}
	lit, err := constLiteral(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(&g.buf, "%sif (%s !== %s) { throw new Error(`field %s: const mismatch: got ${%s}, want %s`); }\n",
		indent, ref, lit, f.Name, ref, lit)
	return nil
}

func (g *generator) generateDecodePointer(f *schema.Field, ref, indent string) error {
	pf := f.Ptr
	rawVar := camel(f.Name) + "Raw"
	if pf.StoredWidth == 8 {
		fmt.Fprintf(&g.buf, "%sconst %s = r.readU8();\n", indent, rawVar)
	} else {
		fmt.Fprintf(&g.buf, "%sconst %s = r.readU%d(%s);\n", indent, rawVar, pf.StoredWidth, g.endianExpr(f))
	}
	offVar := camel(f.Name) + "Off"
	fmt.Fprintf(&g.buf, "%slet %s = %s;\n", indent, offVar, rawVar)
	if pf.OffsetMask != nil {
		fmt.Fprintf(&g.buf, "%s%s &= %d;\n", indent, offVar, *pf.OffsetMask)
	}
	fmt.Fprintf(&g.buf, "%sconst %sSub = r.clone();\n%s%sSub.seek(%s);\n", indent, camel(f.Name), indent, camel(f.Name), offVar)
	fmt.Fprintf(&g.buf, "%s%s = decode%s(%sSub);\n", indent, ref, pf.TargetType, camel(f.Name))
	return nil
}

func (g *generator) generateDecodeOptional(td *schema.TypeDef, f *schema.Field, ref, indent string) error {
	of := f.Opt
	presVar := camel(f.Name) + "Present"
	fmt.Fprintf(&g.buf, "%sconst %s = r.readBits(%d);\n", indent, presVar, of.PresenceWidth)
	fmt.Fprintf(&g.buf, "%sif (%s !== 0) {\n", indent, presVar)
	fmt.Fprintf(&g.buf, "%s  %s = %s;\n", indent, ref, zeroValueFor(of.Value))
	if err := g.generateDecodeFieldImpl(td, of.Value, ref, indent+"  "); err != nil {
		return err
	}
	fmt.Fprintf(&g.buf, "%s} else {\n%s  %s = null;\n%s}\n", indent, indent, ref, indent)
	return nil
}

func zeroValueFor(f *schema.Field) string {
	switch f.Kind {
	case schema.FieldString:
		return `""`
	case schema.FieldArray:
		return "[]"
	default:
		return "0"
	}
}

func (g *generator) generateDecodeString(f *schema.Field, ref, indent string) error {
	switch f.Str.Kind {
	case schema.StringFixed:
		fmt.Fprintf(&g.buf, "%s%s = r.readFixedString(%d);\n", indent, ref, f.Str.FixedLength)
	case schema.StringLengthPrefixed:
		fmt.Fprintf(&g.buf, "%s%s = r.readLengthPrefixedString(bitio.LenPrefix.%s);\n", indent, ref, strings.ToUpper(f.Str.LengthPrefix))
	case schema.StringNullTerminated:
		fmt.Fprintf(&g.buf, "%s%s = r.readNullTerminatedString();\n", indent, ref)
	default:
		return fmt.Errorf("field %q: string kind not supported by the typescript generator", f.Name)
	}
	if f.Const != nil {
		return g.emitConstCheck(f, ref, indent)
	}
	return nil
}

func (g *generator) generateDecodeArray(td *schema.TypeDef, f *schema.Field, ref, indent string) error {
	af := f.Array
	itemType, err := g.tsType(td.Name, af.Item)
	if err != nil {
		return err
	}
	itemVar := camel(f.Name) + "Item"

	switch af.Kind {
	case schema.ArrayFixed:
		countVar := camel(f.Name) + "Count"
		fmt.Fprintf(&g.buf, "%sconst %s = %d;\n", indent, countVar, af.FixedLength)
		g.emitFixedCountLoop(td, f, ref, itemType, itemVar, countVar, indent)
		return nil
	case schema.ArrayLengthPrefixed:
		countVar := camel(f.Name) + "Count"
		fmt.Fprintf(&g.buf, "%sconst %s = r.readLengthPrefix(bitio.LenPrefix.%s);\n", indent, countVar, strings.ToUpper(af.LengthPrefix))
		g.emitFixedCountLoop(td, f, ref, itemType, itemVar, countVar, indent)
		return nil
	case schema.ArrayFieldReferenced:
		countVar := camel(f.Name) + "Count"
		fmt.Fprintf(&g.buf, "%sconst %s = m.%s;\n", indent, countVar, camel(af.FieldRef))
		g.emitFixedCountLoop(td, f, ref, itemType, itemVar, countVar, indent)
		return nil
	case schema.ArrayByteLengthPrefixed:
		byteLenVar := camel(f.Name) + "ByteLen"
		fmt.Fprintf(&g.buf, "%sconst %s = r.readLengthPrefix(bitio.LenPrefix.%s);\n", indent, byteLenVar, strings.ToUpper(af.LengthPrefix))
		fmt.Fprintf(&g.buf, "%sconst %sStartByte = r.currentPosition();\n%s%s = [];\n", indent, camel(f.Name), indent, ref)
		fmt.Fprintf(&g.buf, "%swhile (r.currentPosition() - %sStartByte < %s) {\n", indent, camel(f.Name), byteLenVar)
		fmt.Fprintf(&g.buf, "%s  let %s: %s;\n", indent, itemVar, itemType)
		if err := g.generateDecodeFieldImpl(td, af.Item, itemVar, indent+"  "); err != nil {
			return err
		}
		fmt.Fprintf(&g.buf, "%s  %s.push(%s);\n%s}\n", indent, ref, itemVar, indent)
		return nil
	case schema.ArrayNullTerminated, schema.ArrayEOFTerminated:
		fmt.Fprintf(&g.buf, "%s%s = [];\n%swhile (true) {\n", indent, ref, indent)
		if af.Kind == schema.ArrayNullTerminated {
			fmt.Fprintf(&g.buf, "%s  const peeked = r.peekBits(8);\n%s  if (peeked === 0) { r.readBits(8); break; }\n", indent, indent)
		} else {
			fmt.Fprintf(&g.buf, "%s  if (r.atEOF()) { break; }\n", indent)
		}
		fmt.Fprintf(&g.buf, "%s  let %s: %s;\n", indent, itemVar, itemType)
		if err := g.generateDecodeFieldImpl(td, af.Item, itemVar, indent+"  "); err != nil {
			return err
		}
		fmt.Fprintf(&g.buf, "%s  %s.push(%s);\n%s}\n", indent, ref, itemVar, indent)
		return nil
	case schema.ArrayLengthPrefixedItems:
		fmt.Fprintf(&g.buf, "%sthrow new Error(\"field %s: length_prefixed_items arrays are not supported by the generated decoder\");\n", indent, f.Name)
		return nil
	default:
		return fmt.Errorf("field %q: array kind not supported by the typescript generator", f.Name)
	}
}

func (g *generator) emitFixedCountLoop(td *schema.TypeDef, f *schema.Field, ref, itemType, itemVar, countVar, indent string) error {
	fmt.Fprintf(&g.buf, "%s%s = [];\n%sfor (let i = 0; i < %s; i++) {\n", indent, ref, indent, countVar)
	fmt.Fprintf(&g.buf, "%s  let %s: %s;\n", indent, itemVar, itemType)
	if err := g.generateDecodeFieldImpl(td, f.Array.Item, itemVar, indent+"  "); err != nil {
		return err
	}
	fmt.Fprintf(&g.buf, "%s  %s.push(%s);\n%s}\n", indent, ref, itemVar, indent)
	return nil
}

// --- Unions ---

// generateUnion emits a TypeScript discriminated-union type (a `|` of
// per-variant object types keyed by a "variantType" tag, the idiom
// TypeScript's control-flow narrowing expects) with matching
// encode/decode functions. The struct-of-optional-pointers shape
// codegen/golang uses is a Go-specific idiom for the same concept; here
// a tagged union type is the native fit.
func (g *generator) generateUnion(info *unionInfo) error {
	u := info.union
	fieldBased := u.Discriminator.Kind == schema.DiscriminatorField

	fmt.Fprintf(&g.buf, "export type %s =\n", info.name)
	for i, v := range info.variant {
		sep := " |"
		if i == len(info.variant)-1 {
			sep = ";"
		}
		fmt.Fprintf(&g.buf, "  { variantType: %q; value: %s }%s\n", v, v, sep)
	}
	g.buf.WriteString("\n")

	fmt.Fprintf(&g.buf, "export function encode%s(u: %s, w: bitio.Writer): void {\n", info.name, info.name)
	g.buf.WriteString("  switch (u.variantType) {\n")
	for _, v := range info.variant {
		fmt.Fprintf(&g.buf, "    case %q: encode%s(u.value, w); return;\n", v, v)
	}
	g.buf.WriteString("  }\n}\n\n")

	if fieldBased {
		fmt.Fprintf(&g.buf, "export function decode%s(r: bitio.Reader, value: number): %s {\n", info.name, info.name)
	} else {
		fmt.Fprintf(&g.buf, "export function decode%s(r: bitio.Reader): %s {\n", info.name, info.name)
		fmt.Fprintf(&g.buf, "  const value = r.peekBits(%d);\n", u.Discriminator.PeekWidth)
	}
	for _, variant := range u.Variants {
		when, err := tsWhenCondition(variant.When)
		if err != nil {
			return fmt.Errorf("variant %q: %w", variant.TargetType, err)
		}
		fmt.Fprintf(&g.buf, "  if (%s) { return { variantType: %q, value: decode%s(r) }; }\n",
			when, variant.TargetType, variant.TargetType)
	}
	fmt.Fprintf(&g.buf, "  throw new Error(`no union variant matched discriminator value ${value}`);\n}\n\n")
	return nil
}

// emitUnionDecodeCall mirrors codegen/golang's helper of the same name:
// a field-based union's decode function needs the discriminator value
// the containing sequence already decoded, passed explicitly rather than
// peeked from the wire a second time.
func (g *generator) emitUnionDecodeCall(name string, u *schema.Union, ref, indent string) error {
	if u != nil && u.Discriminator.Kind == schema.DiscriminatorField {
		fmt.Fprintf(&g.buf, "%s%s = decode%s(r, m.%s);\n", indent, ref, name, camel(u.Discriminator.FieldPath))
	} else {
		fmt.Fprintf(&g.buf, "%s%s = decode%s(r);\n", indent, ref, name)
	}
	return nil
}

// tsWhenCondition lowers a discriminator `when` clause against the
// local `value` binding; nothing else is in scope in the dispatch
// function, so any other name is an error.
func tsWhenCondition(when string) (string, error) {
	n, err := expr.Parse(when)
	if err != nil {
		return "", err
	}
	return lowerTSBool(n, func(path string) (string, error) {
		if path != "value" {
			return "", fmt.Errorf("union when clauses may reference only %q, got %q", "value", path)
		}
		return "value", nil
	})
}
