// Package golang generates standalone Go source for a schema, built
// against the bitio package as the runtime import: one struct per
// sequence type, an Encode method and a Decode function per type, and
// a oneof-shaped struct per union.
//
// The encode side is driven by plan.Build, the same placeholder/patch
// plan interp/encode.go executes directly, so a computed length_of,
// position_of, or crc field lowers to a reserve-now/patch-later pair of
// emitted statements instead of a value the generator would have to
// know up front. The decode side reads fields in declaration order with
// no separate plan, matching interp/decode.go (decoding never needs a
// placeholder: every byte is already on the wire by the time it's read).
package golang

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/binschema/binschema/expr"
	"github.com/binschema/binschema/plan"
	"github.com/binschema/binschema/schema"
)

// Generate emits one Go source file declaring a struct, Encode method,
// and Decode function for every sequence type in s, plus a tagged union
// wrapper type and its own Encode/Decode pair for every union (whether a
// top-level type or an inline field), in declaration order.
func Generate(s *schema.Schema) ([]byte, error) {
	g := &generator{s: s, unions: map[string]*unionInfo{}}
	return g.generate()
}

// Target adapts Generate to codegen.Target so the Go backend can be
// passed to codegen.GenerateAll alongside other language backends.
type Target struct{}

func (Target) Name() string          { return "go" }
func (Target) FileExtension() string { return "go" }
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
	variant []string // distinct target type names, in first-seen order
}

func (g *generator) generate() ([]byte, error) {
	g.buf.WriteString("package binschemagen\n\n")
	g.buf.WriteString("import (\n\t\"fmt\"\n\n\t\"github.com/binschema/binschema/bitio\"\n)\n\n")

	for _, td := range g.s.Types {
		switch td.Kind {
		case schema.KindSequence:
			if err := g.generateStruct(td); err != nil {
				return nil, fmt.Errorf("golang codegen: type %q: %w", td.Name, err)
			}
			if err := g.generateEncodeMethod(td); err != nil {
				return nil, fmt.Errorf("golang codegen: type %q: %w", td.Name, err)
			}
			if err := g.generateDecodeFunction(td); err != nil {
				return nil, fmt.Errorf("golang codegen: type %q: %w", td.Name, err)
			}
		case schema.KindUnion:
			g.registerUnion(td.Name, td.Union)
		}
	}

	// Unions are emitted after every sequence type so their variant
	// Decode/Encode functions already exist; registration may have
	// happened lazily while walking sequence fields above, so re-walk
	// the stable name list now that it's complete.
	for _, name := range g.order {
		info := g.unions[name]
		if err := g.generateUnion(info); err != nil {
			return nil, fmt.Errorf("golang codegen: union %q: %w", name, err)
		}
	}

	return g.buf.Bytes(), nil
}

// registerUnion assigns a stable Go type name to a union (inline or
// top-level) the first time it's seen, and records its distinct variant
// target types so generateUnion can emit a field per variant.
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
	name := export(containerType) + export(fieldName) + "Union"
	g.registerUnion(name, u)
	return name
}

func (g *generator) generateStruct(td *schema.TypeDef) error {
	fmt.Fprintf(&g.buf, "type %s struct {\n", td.Name)
	for _, f := range td.Fields {
		if f.Name == "" {
			continue
		}
		goType, err := g.goType(td.Name, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(&g.buf, "\t%s %s\n", export(f.Name), goType)
	}
	for _, inst := range td.Instances {
		fmt.Fprintf(&g.buf, "\t// %s is resolved lazily; call %s() to evaluate and memoize it.\n",
			export(inst.Name), export(inst.Name))
		fmt.Fprintf(&g.buf, "\t%sState int\n", unexport(inst.Name))
		fmt.Fprintf(&g.buf, "\t%sMemo  *%s\n", unexport(inst.Name), inst.TargetType)
		fmt.Fprintf(&g.buf, "\t%sErr   error\n", unexport(inst.Name))
	}
	if len(td.Instances) > 0 {
		g.buf.WriteString("\n\t__r *bitio.Reader // set by Decode; backs instance accessors\n")
	}
	g.buf.WriteString("}\n\n")

	for _, inst := range td.Instances {
		if err := g.generateInstanceAccessor(td, inst); err != nil {
			return err
		}
	}
	return nil
}

const (
	instUnevaluated = 0
	instEvaluating  = 1
	instEvaluated   = 2
)

// generateInstanceAccessor emits a memoized, cycle-guarded accessor
// implementing the UNEVALUATED -> EVALUATING -> EVALUATED/ERROR state
// machine for one random-access instance field.
func (g *generator) generateInstanceAccessor(td *schema.TypeDef, inst *schema.Instance) error {
	recv := unexport(td.Name)[:1]
	name := export(inst.Name)
	state := unexport(inst.Name) + "State"
	memo := unexport(inst.Name) + "Memo"
	errv := unexport(inst.Name) + "Err"

	fmt.Fprintf(&g.buf, "func (%s *%s) %s() (*%s, error) {\n", recv, td.Name, name, inst.TargetType)
	fmt.Fprintf(&g.buf, "\tswitch %s.%s {\n\tcase %d:\n\t\treturn %s.%s, %s.%s\n\tcase %d:\n\t\treturn nil, fmt.Errorf(\"circular reference evaluating instance %q\")\n\t}\n",
		recv, state, instEvaluated, recv, memo, recv, errv, instEvaluating, inst.Name)
	fmt.Fprintf(&g.buf, "\t%s.%s = %d\n", recv, state, instEvaluating)

	if inst.Conditional != "" {
		cond, err := goCondition(td, inst.Conditional, recv+".")
		if err != nil {
			return fmt.Errorf("instance %q: %w", inst.Name, err)
		}
		fmt.Fprintf(&g.buf, "\tif !%s {\n\t\t%s.%s = %d\n\t\treturn nil, nil\n\t}\n", cond, recv, state, instEvaluated)
	}

	fmt.Fprintf(&g.buf, "\tvar pos int64\n")
	switch inst.Position.Kind {
	case schema.PositionLiteral:
		fmt.Fprintf(&g.buf, "\tpos = %d\n", inst.Position.Literal)
	case schema.PositionFieldRef:
		fmt.Fprintf(&g.buf, "\tpos = int64(%s.%s)\n", recv, export(inst.Position.Path))
	case schema.PositionFromEnd:
		fmt.Fprintf(&g.buf, "\tsz, ok, szErr := %s.__r.Size()\n\tif szErr != nil {\n\t\t%s.%s, %s.%s = %d, szErr\n\t\treturn nil, szErr\n\t}\n",
			recv, recv, state, recv, errv, instEvaluated)
		fmt.Fprintf(&g.buf, "\tif !ok {\n\t\terr := fmt.Errorf(\"instance %q uses from_end position but the backing source has no known length\")\n\t\t%s.%s, %s.%s = %d, err\n\t\treturn nil, err\n\t}\n",
			inst.Name, recv, state, recv, errv, instEvaluated)
		fmt.Fprintf(&g.buf, "\tpos = sz - %d\n", inst.Position.FromEnd)
	}

	if inst.Alignment != nil {
		fmt.Fprintf(&g.buf, "\tif pos%%%d != 0 {\n\t\terr := fmt.Errorf(\"Position %%d is not aligned to %d bytes\", pos)\n\t\t%s.%s, %s.%s = %d, err\n\t\treturn nil, err\n\t}\n",
			*inst.Alignment, *inst.Alignment, recv, state, recv, errv, instEvaluated)
	}

	fmt.Fprintf(&g.buf, "\tsub := %s.__r.Clone()\n\tif err := sub.Seek(pos); err != nil {\n\t\t%s.%s, %s.%s = %d, err\n\t\treturn nil, err\n\t}\n",
		recv, recv, state, recv, errv, instEvaluated)
	fmt.Fprintf(&g.buf, "\tv, err := Decode%s(sub)\n\t%s.%s, %s.%s, %s.%s = %d, v, err\n\treturn v, err\n}\n\n",
		inst.TargetType, recv, state, recv, memo, recv, errv, instEvaluated)
	return nil
}

func (g *generator) goType(containerType string, f *schema.Field) (string, error) {
	switch f.Kind {
	case schema.FieldInt:
		return goIntType(f.Int.Width, f.Int.Signed), nil
	case schema.FieldBits, schema.FieldVarint:
		return "uint64", nil
	case schema.FieldString:
		return "string", nil
	case schema.FieldArray:
		itemType, err := g.goType(containerType, f.Array.Item)
		if err != nil {
			return "", err
		}
		return "[]" + itemType, nil
	case schema.FieldTypeRef:
		if td, ok := g.s.ByName(f.Ref.TypeName); ok && td.Kind == schema.KindUnion {
			g.registerUnion(f.Ref.TypeName, td.Union)
			return f.Ref.TypeName, nil
		}
		return f.Ref.TypeName, nil
	case schema.FieldOptional:
		valType, err := g.goType(containerType, f.Opt.Value)
		if err != nil {
			return "", err
		}
		return "*" + valType, nil
	case schema.FieldCRC:
		return goIntType(f.CRC.Width, false), nil
	case schema.FieldUnion:
		if f.Union.Inline != nil {
			return g.unionFieldName(containerType, f.Name, f.Union.Inline), nil
		}
		if td, ok := g.s.ByName(f.Union.TypeName); ok && td.Union != nil {
			g.registerUnion(f.Union.TypeName, td.Union)
		}
		return f.Union.TypeName, nil
	case schema.FieldPointer:
		return "*" + f.Ptr.TargetType, nil
	default:
		return "", fmt.Errorf("field %q: kind not supported by the golang generator", f.Name)
	}
}

func goIntType(width int, signed bool) string {
	prefix := "uint"
	if signed {
		prefix = "int"
	}
	return fmt.Sprintf("%s%d", prefix, width)
}

func goEndianName(e schema.Endianness) string {
	if e == schema.LittleEndian {
		return "bitio.LittleEndian"
	}
	return "bitio.BigEndian"
}

func fieldEndian(s *schema.Schema, f *schema.Field) string {
	e := f.Endianness
	if e == "" {
		e = s.Config.EffectiveEndianness()
	}
	return goEndianName(e)
}

func export(name string) string {
	if name == "" {
		return name
	}
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' })
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return b.String()
}

func unexport(name string) string {
	e := export(name)
	if e == "" {
		return e
	}
	return strings.ToLower(e[:1]) + e[1:]
}

// --- Encode ---

func (g *generator) generateEncodeMethod(td *schema.TypeDef) error {
	p, err := plan.Build(g.s, td.Name)
	if err != nil {
		return err
	}

	fmt.Fprintf(&g.buf, "func (m *%s) Encode(w *bitio.Writer) error {\n", td.Name)
	for _, f := range td.Fields {
		fmt.Fprintf(&g.buf, "\tvar %sStart, %sEnd int\n", unexport(f.Name), unexport(f.Name))
		fmt.Fprintf(&g.buf, "\t_, _ = %sStart, %sEnd\n", unexport(f.Name), unexport(f.Name))
	}

	for _, step := range p.Steps {
		switch step.Kind {
		case plan.StepField:
			f := step.Field
			v := unexport(f.Name)
			fmt.Fprintf(&g.buf, "\t%sStart = w.CurrentByteOffset()\n", v)
			if f.Conditional != "" {
				cond, err := goCondition(td, f.Conditional, "m.")
				if err != nil {
					return fmt.Errorf("field %q: %w", f.Name, err)
				}
				fmt.Fprintf(&g.buf, "\tif %s {\n", cond)
				if err := g.generateEncodeField(td, f, "\t\t"); err != nil {
					return err
				}
				g.buf.WriteString("\t}\n")
			} else {
				if err := g.generateEncodeField(td, f, "\t"); err != nil {
					return err
				}
			}
			fmt.Fprintf(&g.buf, "\t%sEnd = w.CurrentByteOffset()\n", v)
		case plan.StepPlaceholder:
			f := step.PlaceholderField
			v := unexport(f.Name)
			fmt.Fprintf(&g.buf, "\t%sStart = w.CurrentByteOffset()\n", v)
			if err := emitWritePlaceholder(&g.buf, step.PlaceholderWidth, "\t"); err != nil {
				return err
			}
			fmt.Fprintf(&g.buf, "\t%sEnd = w.CurrentByteOffset()\n", v)
		case plan.StepPatch:
			if err := g.emitPatch(td, step.PatchField); err != nil {
				return err
			}
		}
	}
	g.buf.WriteString("\treturn nil\n}\n\n")
	return nil
}

func emitWritePlaceholder(buf *bytes.Buffer, width int, indent string) error {
	switch width {
	case 1:
		fmt.Fprintf(buf, "%sif err := w.WriteU8(0); err != nil {\n%s\treturn err\n%s}\n", indent, indent, indent)
	case 2:
		fmt.Fprintf(buf, "%sif err := w.WriteU16(0, bitio.BigEndian); err != nil {\n%s\treturn err\n%s}\n", indent, indent, indent)
	case 4:
		fmt.Fprintf(buf, "%sif err := w.WriteU32(0, bitio.BigEndian); err != nil {\n%s\treturn err\n%s}\n", indent, indent, indent)
	case 8:
		fmt.Fprintf(buf, "%sif err := w.WriteU64(0, bitio.BigEndian); err != nil {\n%s\treturn err\n%s}\n", indent, indent, indent)
	default:
		return fmt.Errorf("unsupported placeholder width %d bytes", width)
	}
	return nil
}

func patchCallName(width int) (string, error) {
	switch width {
	case 1:
		return "PatchU8", nil
	case 2:
		return "PatchU16", nil
	case 4:
		return "PatchU32", nil
	case 8:
		return "PatchU64", nil
	default:
		return "", fmt.Errorf("unsupported patch width %d bytes", width)
	}
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
	v := unexport(f.Name)
	width, err := placeholderWidthOf(f)
	if err != nil {
		return err
	}
	call, err := patchCallName(width)
	if err != nil {
		return err
	}
	endian := fieldEndian(g.s, f)
	castType := goIntType(width*8, false)

	switch {
	case f.Kind == schema.FieldCRC:
		start := "0"
		if f.CRC.AfterField != "" {
			start = unexport(f.CRC.AfterField) + "End"
		}
		fmt.Fprintf(&g.buf, "\t{\n\t\tsum := bitio.CRC32(w.Bytes()[%s:%sStart])\n", start, v)
		if width == 1 {
			fmt.Fprintf(&g.buf, "\t\tw.%s(%sStart, %s(sum))\n\t}\n", call, v, castType)
		} else {
			fmt.Fprintf(&g.buf, "\t\tw.%s(%sStart, %s(sum), %s)\n\t}\n", call, v, castType, endian)
		}
	case f.Computed != nil && f.Computed.Kind == schema.ComputedLengthOf:
		switch {
		case f.Computed.FromAfterField != "":
			// Everything after the anchor to the current offset, minus
			// the computed field's own placeholder bytes.
			fmt.Fprintf(&g.buf, "\t{\n\t\tln := w.CurrentByteOffset() - %sEnd - %d\n", unexport(f.Computed.FromAfterField), width)
		case fieldByName(td, f.Computed.Target) != nil && fieldByName(td, f.Computed.Target).Kind == schema.FieldArray:
			// Arrays are measured in items.
			fmt.Fprintf(&g.buf, "\t{\n\t\tln := len(m.%s)\n", export(f.Computed.Target))
		default:
			fmt.Fprintf(&g.buf, "\t{\n\t\tln := %sEnd - %sStart\n", unexport(f.Computed.Target), unexport(f.Computed.Target))
		}
		if width == 1 {
			fmt.Fprintf(&g.buf, "\t\tw.%s(%sStart, %s(ln))\n\t}\n", call, v, castType)
		} else {
			fmt.Fprintf(&g.buf, "\t\tw.%s(%sStart, %s(ln), %s)\n\t}\n", call, v, castType, endian)
		}
	case f.Computed != nil && f.Computed.Kind == schema.ComputedPositionOf:
		target := unexport(f.Computed.Target) + "Start"
		if width == 1 {
			fmt.Fprintf(&g.buf, "\tw.%s(%sStart, %s(%s))\n", call, v, castType, target)
		} else {
			fmt.Fprintf(&g.buf, "\tw.%s(%sStart, %s(%s), %s)\n", call, v, castType, target, endian)
		}
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
	endian := fieldEndian(g.s, f)
	ref := "m." + export(f.Name)
	if f.Const != nil {
		lit, err := constLiteral(f)
		if err != nil {
			return err
		}
		ref = lit
	}
	return g.generateEncodeFieldImpl(td, f, ref, endian, indent)
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

func (g *generator) generateEncodeFieldImpl(td *schema.TypeDef, f *schema.Field, ref, endian, indent string) error {
	switch f.Kind {
	case schema.FieldInt:
		return emitWriteInt(&g.buf, f.Int.Width, f.Int.Signed, ref, endian, indent)
	case schema.FieldBits:
		fmt.Fprintf(&g.buf, "%sif err := w.WriteBits(uint64(%s), %d); err != nil {\n%s\treturn err\n%s}\n", indent, ref, f.Bits.Width, indent, indent)
		return nil
	case schema.FieldVarint:
		fmt.Fprintf(&g.buf, "%sif err := w.WriteVarlen(uint64(%s), %s); err != nil {\n%s\treturn err\n%s}\n", indent, ref, bitioVarintConst(f.Varint.Encoding), indent, indent)
		return nil
	case schema.FieldString:
		return g.generateEncodeString(f, ref, endian, indent)
	case schema.FieldArray:
		return g.generateEncodeArray(td, f, ref, endian, indent)
	case schema.FieldTypeRef:
		fmt.Fprintf(&g.buf, "%sif err := %s.Encode(w); err != nil {\n%s\treturn err\n%s}\n", indent, ref, indent, indent)
		return nil
	case schema.FieldUnion:
		fmt.Fprintf(&g.buf, "%sif err := %s.Encode(w); err != nil {\n%s\treturn err\n%s}\n", indent, ref, indent, indent)
		return nil
	case schema.FieldOptional:
		return g.generateEncodeOptional(td, f, ref, endian, indent)
	case schema.FieldPointer:
		fmt.Fprintf(&g.buf, "%sreturn fmt.Errorf(\"pointer field %q encoding is not supported by the generated encoder\")\n", indent, f.Name)
		return nil
	case schema.FieldCRC:
		return nil // handled entirely by the placeholder/patch steps
	default:
		return fmt.Errorf("field %q: kind not supported by the golang encode generator", f.Name)
	}
}

func bitioVarintConst(name schema.VarintEncodingName) string {
	switch name {
	case schema.VarintDER:
		return "bitio.DER"
	case schema.VarintEBML:
		return "bitio.EBML"
	case schema.VarintVLQ:
		return "bitio.VLQ"
	default:
		return "bitio.LEB128"
	}
}

func emitWriteInt(buf *bytes.Buffer, width int, signed bool, ref, endian, indent string) error {
	kind := "U"
	if signed {
		kind = "I"
	}
	switch width {
	case 8:
		fmt.Fprintf(buf, "%sif err := w.Write%s8(%s); err != nil {\n%s\treturn err\n%s}\n", indent, kind, ref, indent, indent)
	case 16, 32, 64:
		fmt.Fprintf(buf, "%sif err := w.Write%s%d(%s, %s); err != nil {\n%s\treturn err\n%s}\n", indent, kind, width, ref, endian, indent, indent)
	default:
		return fmt.Errorf("unsupported int width %d", width)
	}
	return nil
}

func (g *generator) generateEncodeOptional(td *schema.TypeDef, f *schema.Field, ref, endian, indent string) error {
	of := f.Opt
	fmt.Fprintf(&g.buf, "%sif %s == nil {\n%s\tif err := w.WriteBits(0, %d); err != nil {\n%s\t\treturn err\n%s\t}\n%s} else {\n",
		indent, ref, indent, of.PresenceWidth, indent, indent, indent)
	fmt.Fprintf(&g.buf, "%s\tif err := w.WriteBits(1, %d); err != nil {\n%s\t\treturn err\n%s\t}\n", indent, of.PresenceWidth, indent, indent)
	if err := g.generateEncodeFieldImpl(td, of.Value, "(*"+ref+")", endian, indent+"\t"); err != nil {
		return err
	}
	fmt.Fprintf(&g.buf, "%s}\n", indent)
	return nil
}

func (g *generator) generateEncodeString(f *schema.Field, ref, endian, indent string) error {
	bytesVar := unexport(f.Name) + "Bytes"
	fmt.Fprintf(&g.buf, "%s%s := []byte(%s)\n", indent, bytesVar, ref)
	switch f.Str.Kind {
	case schema.StringFixed:
		fmt.Fprintf(&g.buf, "%sif len(%s) != %d {\n%s\treturn fmt.Errorf(\"field %s: expected %d bytes, got %%d\", len(%s))\n%s}\n",
			indent, bytesVar, f.Str.FixedLength, indent, f.Name, f.Str.FixedLength, bytesVar, indent)
		fmt.Fprintf(&g.buf, "%sif err := w.WriteBytes(%s); err != nil {\n%s\treturn err\n%s}\n", indent, bytesVar, indent, indent)
	case schema.StringLengthPrefixed:
		if err := emitWriteLengthPrefix(&g.buf, f.Str.LengthPrefix, bytesVar, endian, indent); err != nil {
			return err
		}
		fmt.Fprintf(&g.buf, "%sif err := w.WriteBytes(%s); err != nil {\n%s\treturn err\n%s}\n", indent, bytesVar, indent, indent)
	case schema.StringFieldReferenced:
		fmt.Fprintf(&g.buf, "%sif err := w.WriteBytes(%s); err != nil {\n%s\treturn err\n%s}\n", indent, bytesVar, indent, indent)
	case schema.StringNullTerminated:
		fmt.Fprintf(&g.buf, "%sif err := w.WriteBytes(%s); err != nil {\n%s\treturn err\n%s}\n", indent, bytesVar, indent, indent)
		fmt.Fprintf(&g.buf, "%sif err := w.WriteU8(0); err != nil {\n%s\treturn err\n%s}\n", indent, indent, indent)
	default:
		return fmt.Errorf("field %q: string kind not supported by the golang generator", f.Name)
	}
	return nil
}

// emitWriteLengthPrefix writes the prefix big-endian whatever endian says,
// as interp and the TypeScript runtime do.
func emitWriteLengthPrefix(buf *bytes.Buffer, prefix, lenExpr, endian, indent string) error {
	switch prefix {
	case "uint8":
		fmt.Fprintf(buf, "%sif err := w.WriteU8(uint8(len(%s))); err != nil {\n%s\treturn err\n%s}\n", indent, lenExpr, indent, indent)
	case "uint16":
		fmt.Fprintf(buf, "%sif err := w.WriteU16(uint16(len(%s)), bitio.BigEndian); err != nil {\n%s\treturn err\n%s}\n", indent, lenExpr, indent, indent)
	case "uint32":
		fmt.Fprintf(buf, "%sif err := w.WriteU32(uint32(len(%s)), bitio.BigEndian); err != nil {\n%s\treturn err\n%s}\n", indent, lenExpr, indent, indent)
	default:
		return fmt.Errorf("unsupported length prefix width %q", prefix)
	}
	return nil
}

func (g *generator) generateEncodeArray(td *schema.TypeDef, f *schema.Field, ref, endian, indent string) error {
	af := f.Array
	switch af.Kind {
	case schema.ArrayFixed:
		fmt.Fprintf(&g.buf, "%sif len(%s) != %d {\n%s\treturn fmt.Errorf(\"field %s: expected %d items, got %%d\", len(%s))\n%s}\n",
			indent, ref, af.FixedLength, indent, f.Name, af.FixedLength, ref, indent)
	case schema.ArrayLengthPrefixed:
		if err := emitWriteLengthPrefix(&g.buf, af.LengthPrefix, ref, endian, indent); err != nil {
			return err
		}
	case schema.ArrayFieldReferenced, schema.ArrayNullTerminated, schema.ArrayEOFTerminated:
	case schema.ArrayByteLengthPrefixed, schema.ArrayLengthPrefixedItems:
		fmt.Fprintf(&g.buf, "%sreturn fmt.Errorf(\"field %q: array kind is not supported by the generated encoder\")\n", indent, f.Name)
		return nil
	default:
		return fmt.Errorf("field %q: array kind not supported by the golang generator", f.Name)
	}

	itemVar := unexport(f.Name) + "Item"
	fmt.Fprintf(&g.buf, "%sfor _, %s := range %s {\n", indent, itemVar, ref)
	if err := g.generateEncodeFieldImpl(td, af.Item, itemVar, endian, indent+"\t"); err != nil {
		return err
	}
	g.buf.WriteString(indent + "}\n")

	if af.Kind == schema.ArrayNullTerminated {
		fmt.Fprintf(&g.buf, "%sif err := w.WriteU8(0); err != nil {\n%s\treturn err\n%s}\n", indent, indent, indent)
	}
	return nil
}

// goCondition lowers a boolean guard expression to Go source through
// the expression grammar's own parse tree, so any expression the
// runtime evaluator accepts lowers to equivalent Go: every field
// reference is resolved against recv and every binary node is
// parenthesized explicitly, keeping Go's operator precedence out of
// the picture.
func goCondition(td *schema.TypeDef, expression, recv string) (string, error) {
	n, err := expr.Parse(expression)
	if err != nil {
		return "", err
	}
	return lowerGoBool(n, func(path string) (string, error) {
		return resolveGoFieldRef(td, path, recv)
	})
}

// resolveGoFieldRef maps a dotted schema path to the Go expression that
// reads it. Single-segment integer-like fields are widened to int64 so
// mixed-width comparisons and bitwise arithmetic compile.
func resolveGoFieldRef(td *schema.TypeDef, path, recv string) (string, error) {
	if path == "value" {
		return "", fmt.Errorf("%q is only bound inside a union when clause", "value")
	}
	if strings.HasPrefix(path, "_root.") {
		return "", fmt.Errorf("_root paths are not supported in generated code")
	}
	segs := strings.Split(path, ".")
	ref := recv
	for i, seg := range segs {
		if i > 0 {
			ref += "."
		}
		ref += export(seg)
	}
	if len(segs) == 1 {
		if f := fieldByName(td, segs[0]); f != nil {
			switch f.Kind {
			case schema.FieldInt, schema.FieldBits, schema.FieldVarint, schema.FieldCRC:
				ref = "int64(" + ref + ")"
			}
		}
	}
	return ref, nil
}

// lowerGoExpr renders a parsed expression as Go source. Binary nodes
// are always parenthesized; ~ is spelled ^ the way Go writes bitwise
// complement.
func lowerGoExpr(n *expr.Node, resolve func(path string) (string, error)) (string, error) {
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
			x, err := lowerGoBool(n.X, resolve)
			if err != nil {
				return "", err
			}
			return "!" + x, nil
		}
		op := n.Op
		if op == "~" {
			op = "^"
		}
		x, err := lowerGoExpr(n.X, resolve)
		if err != nil {
			return "", err
		}
		return op + "(" + x + ")", nil
	case expr.NodeBinary:
		lower := lowerGoExpr
		if n.Op == "&&" || n.Op == "||" {
			lower = lowerGoBool
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
		return "", fmt.Errorf("ternary expressions are not supported in generated Go")
	default:
		return "", fmt.Errorf("unsupported expression node")
	}
}

// lowerGoBool renders n where Go requires a bool, adding an explicit
// != 0 around integer-valued subexpressions.
func lowerGoBool(n *expr.Node, resolve func(path string) (string, error)) (string, error) {
	x, err := lowerGoExpr(n, resolve)
	if err != nil {
		return "", err
	}
	if n.IsBoolean() {
		return x, nil
	}
	return "(" + x + " != 0)", nil
}

// --- Decode ---

func (g *generator) generateDecodeFunction(td *schema.TypeDef) error {
	fmt.Fprintf(&g.buf, "func Decode%s(r *bitio.Reader) (*%s, error) {\n", td.Name, td.Name)
	fmt.Fprintf(&g.buf, "\tm := &%s{}\n", td.Name)
	for _, f := range td.Fields {
		if err := g.generateDecodeField(td, f, "\t"); err != nil {
			return err
		}
	}
	if len(td.Instances) > 0 {
		g.buf.WriteString("\tm.__r = r.Clone()\n")
	}
	g.buf.WriteString("\treturn m, nil\n}\n\n")
	return nil
}

func (g *generator) generateDecodeField(td *schema.TypeDef, f *schema.Field, indent string) error {
	endian := fieldEndian(g.s, f)
	ref := "m." + export(f.Name)

	if f.Conditional != "" {
		cond, err := goCondition(td, f.Conditional, "m.")
		if err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		fmt.Fprintf(&g.buf, "%sif %s {\n", indent, cond)
		if err := g.generateDecodeFieldImpl(td, f, ref, endian, indent+"\t"); err != nil {
			return err
		}
		g.buf.WriteString(indent + "}\n")
		return nil
	}
	return g.generateDecodeFieldImpl(td, f, ref, endian, indent)
}

func (g *generator) generateDecodeFieldImpl(td *schema.TypeDef, f *schema.Field, ref, endian, indent string) error {
	switch f.Kind {
	case schema.FieldInt:
		if err := emitReadInt(&g.buf, f.Int.Width, f.Int.Signed, ref, endian, indent); err != nil {
			return err
		}
		return g.emitConstCheck(f, ref, indent)
	case schema.FieldBits:
		fmt.Fprintf(&g.buf, "%s{\n%s\tv, err := r.ReadBits(%d)\n%s\tif err != nil {\n%s\t\treturn nil, err\n%s\t}\n%s\t%s = v\n%s}\n",
			indent, indent, f.Bits.Width, indent, indent, indent, indent, ref, indent)
		return nil
	case schema.FieldVarint:
		fmt.Fprintf(&g.buf, "%s{\n%s\tv, err := r.ReadVarlen(%s)\n%s\tif err != nil {\n%s\t\treturn nil, err\n%s\t}\n%s\t%s = v\n%s}\n",
			indent, indent, bitioVarintConst(f.Varint.Encoding), indent, indent, indent, indent, ref, indent)
		return nil
	case schema.FieldString:
		return g.generateDecodeString(f, ref, endian, indent)
	case schema.FieldArray:
		return g.generateDecodeArray(td, f, ref, endian, indent)
	case schema.FieldTypeRef:
		if tdRef, ok := g.s.ByName(f.Ref.TypeName); ok && tdRef.Kind == schema.KindUnion {
			return g.emitUnionDecodeCall(f.Ref.TypeName, tdRef.Union, ref, f.Name, indent)
		}
		nestedVar := unexport(f.Name)
		fmt.Fprintf(&g.buf, "%s%s, err := Decode%s(r)\n", indent, nestedVar, f.Ref.TypeName)
		fmt.Fprintf(&g.buf, "%sif err != nil {\n%s\treturn nil, err\n%s}\n", indent, indent, indent)
		fmt.Fprintf(&g.buf, "%s%s = *%s\n", indent, ref, nestedVar)
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
		return g.emitUnionDecodeCall(name, u, ref, f.Name, indent)
	case schema.FieldPointer:
		return g.generateDecodePointer(f, ref, endian, indent)
	case schema.FieldOptional:
		return g.generateDecodeOptional(td, f, ref, endian, indent)
	case schema.FieldCRC:
		return emitReadInt(&g.buf, f.CRC.Width, false, ref, endian, indent)
	default:
		return fmt.Errorf("field %q: kind not supported by the golang decode generator", f.Name)
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
	fmt.Fprintf(&g.buf, "%sif %s != %s {\n%s\treturn nil, fmt.Errorf(\"field %s: const mismatch: got %%v, want %s\", %s)\n%s}\n",
		indent, ref, lit, indent, f.Name, lit, ref, indent)
	return nil
}

func (g *generator) generateDecodePointer(f *schema.Field, ref, endian, indent string) error {
	pf := f.Ptr
	rawVar := unexport(f.Name) + "Raw"
	if err := emitReadIntLocal(&g.buf, pf.StoredWidth, false, rawVar, endian, indent); err != nil {
		return err
	}
	offVar := unexport(f.Name) + "Off"
	fmt.Fprintf(&g.buf, "%s%s := int64(%s)\n", indent, offVar, rawVar)
	if pf.OffsetMask != nil {
		fmt.Fprintf(&g.buf, "%s%s &= %d\n", indent, offVar, *pf.OffsetMask)
	}
	fmt.Fprintf(&g.buf, "%ssub := r.Clone()\n%sif err := sub.Seek(%s); err != nil {\n%s\treturn nil, err\n%s}\n",
		indent, indent, offVar, indent, indent)
	nestedVar := unexport(f.Name) + "Val"
	fmt.Fprintf(&g.buf, "%s%s, err := Decode%s(sub)\n%sif err != nil {\n%s\treturn nil, err\n%s}\n",
		indent, nestedVar, pf.TargetType, indent, indent, indent)
	fmt.Fprintf(&g.buf, "%s%s = %s\n", indent, ref, nestedVar)
	return nil
}

func (g *generator) generateDecodeOptional(td *schema.TypeDef, f *schema.Field, ref, endian, indent string) error {
	of := f.Opt
	presVar := unexport(f.Name) + "Present"
	fmt.Fprintf(&g.buf, "%s%s, err := r.ReadBits(%d)\n%sif err != nil {\n%s\treturn nil, err\n%s}\n",
		indent, presVar, of.PresenceWidth, indent, indent, indent)
	fmt.Fprintf(&g.buf, "%sif %s != 0 {\n", indent, presVar)
	valType, err := g.goType(td.Name, of.Value)
	if err != nil {
		return err
	}
	valVar := unexport(f.Name) + "Val"
	fmt.Fprintf(&g.buf, "%s\tvar %s %s\n", indent, valVar, valType)
	if err := g.generateDecodeFieldImpl(td, of.Value, valVar, endian, indent+"\t"); err != nil {
		return err
	}
	fmt.Fprintf(&g.buf, "%s\t%s = &%s\n%s}\n", indent, ref, valVar, indent)
	return nil
}

func emitReadInt(buf *bytes.Buffer, width int, signed bool, ref, endian, indent string) error {
	kind := "U"
	if signed {
		kind = "I"
	}
	switch width {
	case 8:
		fmt.Fprintf(buf, "%s{\n%s\tv, err := r.Read%s8()\n%s\tif err != nil {\n%s\t\treturn nil, err\n%s\t}\n%s\t%s = v\n%s}\n",
			indent, indent, kind, indent, indent, indent, indent, ref, indent)
	case 16, 32, 64:
		fmt.Fprintf(buf, "%s{\n%s\tv, err := r.Read%s%d(%s)\n%s\tif err != nil {\n%s\t\treturn nil, err\n%s\t}\n%s\t%s = v\n%s}\n",
			indent, indent, kind, width, endian, indent, indent, indent, indent, ref, indent)
	default:
		return fmt.Errorf("unsupported int width %d", width)
	}
	return nil
}

func emitReadIntLocal(buf *bytes.Buffer, width int, signed bool, varName, endian, indent string) error {
	kind := "U"
	if signed {
		kind = "I"
	}
	switch width {
	case 8:
		fmt.Fprintf(buf, "%s%s, err := r.Read%s8()\n%sif err != nil {\n%s\treturn nil, err\n%s}\n", indent, varName, kind, indent, indent, indent)
	case 16, 32, 64:
		fmt.Fprintf(buf, "%s%s, err := r.Read%s%d(%s)\n%sif err != nil {\n%s\treturn nil, err\n%s}\n", indent, varName, kind, width, endian, indent, indent, indent)
	default:
		return fmt.Errorf("unsupported int width %d", width)
	}
	return nil
}

func (g *generator) generateDecodeString(f *schema.Field, ref, endian, indent string) error {
	bytesVar := unexport(f.Name) + "Bytes"
	switch f.Str.Kind {
	case schema.StringFixed:
		fmt.Fprintf(&g.buf, "%s%s, err := r.ReadBytes(%d)\n", indent, bytesVar, f.Str.FixedLength)
		fmt.Fprintf(&g.buf, "%sif err != nil {\n%s\treturn nil, err\n%s}\n", indent, indent, indent)
	case schema.StringLengthPrefixed:
		lenVar := bytesVar + "Len"
		if err := emitReadLengthPrefix(&g.buf, f.Str.LengthPrefix, lenVar, endian, indent); err != nil {
			return err
		}
		fmt.Fprintf(&g.buf, "%s%s, err := r.ReadBytes(int(%s))\n", indent, bytesVar, lenVar)
		fmt.Fprintf(&g.buf, "%sif err != nil {\n%s\treturn nil, err\n%s}\n", indent, indent, indent)
	case schema.StringNullTerminated:
		fmt.Fprintf(&g.buf, "%svar %s []byte\n%sfor {\n%s\tb, err := r.ReadU8()\n%s\tif err != nil {\n%s\t\treturn nil, err\n%s\t}\n%s\tif b == 0 {\n%s\t\tbreak\n%s\t}\n%s\t%s = append(%s, b)\n%s}\n",
			indent, bytesVar, indent, indent, indent, indent, indent, indent, indent, indent, indent, bytesVar, bytesVar, indent)
	default:
		return fmt.Errorf("field %q: string kind not supported by the golang generator", f.Name)
	}
	fmt.Fprintf(&g.buf, "%s%s = string(%s)\n", indent, ref, bytesVar)
	if f.Const != nil {
		return g.emitConstCheck(f, ref, indent)
	}
	return nil
}

// emitReadLengthPrefix reads the prefix big-endian whatever endian says,
// matching emitWriteLengthPrefix.
func emitReadLengthPrefix(buf *bytes.Buffer, prefix, lenVar, endian, indent string) error {
	switch prefix {
	case "uint8":
		fmt.Fprintf(buf, "%s%s, err := r.ReadU8()\n", indent, lenVar)
	case "uint16":
		fmt.Fprintf(buf, "%s%s, err := r.ReadU16(bitio.BigEndian)\n", indent, lenVar)
	case "uint32":
		fmt.Fprintf(buf, "%s%s, err := r.ReadU32(bitio.BigEndian)\n", indent, lenVar)
	default:
		return fmt.Errorf("unsupported length prefix width %q", prefix)
	}
	fmt.Fprintf(buf, "%sif err != nil {\n%s\treturn nil, err\n%s}\n", indent, indent, indent)
	return nil
}

func (g *generator) generateDecodeArray(td *schema.TypeDef, f *schema.Field, ref, endian, indent string) error {
	af := f.Array
	itemType, err := g.goType(td.Name, af.Item)
	if err != nil {
		return err
	}
	countVar := unexport(f.Name) + "Count"

	switch af.Kind {
	case schema.ArrayFixed:
		fmt.Fprintf(&g.buf, "%s%s := %d\n", indent, countVar, af.FixedLength)
	case schema.ArrayLengthPrefixed:
		if err := emitReadLengthPrefix(&g.buf, af.LengthPrefix, countVar, endian, indent); err != nil {
			return err
		}
	case schema.ArrayByteLengthPrefixed:
		byteLenVar := unexport(f.Name) + "ByteLen"
		if err := emitReadLengthPrefix(&g.buf, af.LengthPrefix, byteLenVar, endian, indent); err != nil {
			return err
		}
		fmt.Fprintf(&g.buf, "%sstartByte, _ := r.CurrentPosition()\n%s%s = nil\n%sfor {\n", indent, indent, ref, indent)
		fmt.Fprintf(&g.buf, "%s\tcur, _ := r.CurrentPosition()\n%s\tif cur-startByte >= int64(%s) {\n%s\t\tbreak\n%s\t}\n", indent, indent, byteLenVar, indent, indent)
		itemVar := unexport(f.Name) + "Item"
		fmt.Fprintf(&g.buf, "%s\tvar %s %s\n", indent, itemVar, itemType)
		if err := g.generateDecodeFieldImpl(td, af.Item, itemVar, endian, indent+"\t"); err != nil {
			return err
		}
		fmt.Fprintf(&g.buf, "%s\t%s = append(%s, %s)\n%s}\n", indent, ref, ref, itemVar, indent)
		return nil
	case schema.ArrayFieldReferenced:
		fmt.Fprintf(&g.buf, "%s%s := int(m.%s)\n", indent, countVar, export(af.FieldRef))
	case schema.ArrayNullTerminated, schema.ArrayEOFTerminated:
		fmt.Fprintf(&g.buf, "%s%s = nil\n", indent, ref)
		fmt.Fprintf(&g.buf, "%sfor {\n", indent)
		fmt.Fprintf(&g.buf, "%s\tpeeked, peekErr := r.PeekBits(8)\n", indent)
		if af.Kind == schema.ArrayNullTerminated {
			fmt.Fprintf(&g.buf, "%s\tif peekErr != nil {\n%s\t\treturn nil, peekErr\n%s\t}\n", indent, indent, indent)
			fmt.Fprintf(&g.buf, "%s\tif peeked == 0 {\n%s\t\tif _, err := r.ReadBits(8); err != nil {\n%s\t\t\treturn nil, err\n%s\t\t}\n%s\t\tbreak\n%s\t}\n",
				indent, indent, indent, indent, indent, indent)
		} else {
			fmt.Fprintf(&g.buf, "%s\t_ = peeked\n%s\tif peekErr != nil {\n%s\t\tbreak\n%s\t}\n", indent, indent, indent, indent)
		}
		itemVar := unexport(f.Name) + "Item"
		fmt.Fprintf(&g.buf, "%s\tvar %s %s\n", indent, itemVar, itemType)
		if err := g.generateDecodeFieldImpl(td, af.Item, itemVar, endian, indent+"\t"); err != nil {
			return err
		}
		fmt.Fprintf(&g.buf, "%s\t%s = append(%s, %s)\n%s}\n", indent, ref, ref, itemVar, indent)
		return nil
	case schema.ArrayLengthPrefixedItems:
		fmt.Fprintf(&g.buf, "%sreturn nil, fmt.Errorf(\"field %q: length_prefixed_items arrays are not supported by the generated decoder\")\n", indent, f.Name)
		return nil
	default:
		return fmt.Errorf("field %q: array kind not supported by the golang generator", f.Name)
	}

	fmt.Fprintf(&g.buf, "%s%s = make([]%s, %s)\n", indent, ref, itemType, countVar)
	itemVar := unexport(f.Name) + "Item"
	fmt.Fprintf(&g.buf, "%sfor i := 0; i < %s; i++ {\n", indent, countVar)
	fmt.Fprintf(&g.buf, "%s\tvar %s %s\n", indent, itemVar, itemType)
	if err := g.generateDecodeFieldImpl(td, af.Item, itemVar, endian, indent+"\t"); err != nil {
		return err
	}
	fmt.Fprintf(&g.buf, "%s\t%s[i] = %s\n%s}\n", indent, ref, itemVar, indent)
	return nil
}

// --- Unions ---

// generateUnion emits a oneof-shaped Go struct for one union (inline
// field union or top-level union type): one pointer field per distinct
// variant target type, a VariantType string tag, and a dispatch pair of
// Decode<Name>/(Encode) functions. A wrapper struct rather than an
// interface{} + type switch keeps variant access statically typed.
func (g *generator) generateUnion(info *unionInfo) error {
	u := info.union
	fieldBased := u.Discriminator.Kind == schema.DiscriminatorField

	fmt.Fprintf(&g.buf, "type %s struct {\n\tVariantType string\n", info.name)
	for _, v := range info.variant {
		fmt.Fprintf(&g.buf, "\t%s *%s\n", v, v)
	}
	g.buf.WriteString("}\n\n")

	fmt.Fprintf(&g.buf, "func (u *%s) Encode(w *bitio.Writer) error {\n\tswitch u.VariantType {\n", info.name)
	for _, v := range info.variant {
		fmt.Fprintf(&g.buf, "\tcase %q:\n\t\treturn u.%s.Encode(w)\n", v, v)
	}
	fmt.Fprintf(&g.buf, "\tdefault:\n\t\treturn fmt.Errorf(\"%s: unknown variant %%q\", u.VariantType)\n\t}\n}\n\n", info.name)

	// A field-based discriminator keys off a value the containing
	// sequence already decoded (it names an earlier field by dotted
	// path), so Decode<Name> takes that value as a parameter rather than
	// peeking it off the wire itself.
	if fieldBased {
		fmt.Fprintf(&g.buf, "func Decode%s(r *bitio.Reader, value int64) (*%s, error) {\n", info.name, info.name)
	} else {
		fmt.Fprintf(&g.buf, "func Decode%s(r *bitio.Reader) (*%s, error) {\n", info.name, info.name)
		switch u.Discriminator.PeekWidth {
		case 8:
			g.buf.WriteString("\tpeeked, err := r.PeekBits(8)\n")
		case 16:
			g.buf.WriteString("\tpeeked, err := r.PeekBits(16)\n")
		default:
			g.buf.WriteString("\tpeeked, err := r.PeekBits(32)\n")
		}
		g.buf.WriteString("\tif err != nil {\n\t\treturn nil, err\n\t}\n\tvalue := int64(peeked)\n")
	}

	g.buf.WriteString("\tswitch {\n")
	for _, variant := range u.Variants {
		when, err := goWhenCondition(variant.When)
		if err != nil {
			return fmt.Errorf("variant %q: %w", variant.TargetType, err)
		}
		fmt.Fprintf(&g.buf, "\tcase %s:\n", when)
		fmt.Fprintf(&g.buf, "\t\tv, err := Decode%s(r)\n\t\tif err != nil {\n\t\t\treturn nil, err\n\t\t}\n\t\treturn &%s{VariantType: %q, %s: v}, nil\n",
			variant.TargetType, info.name, variant.TargetType, variant.TargetType)
	}
	g.buf.WriteString("\t}\n\treturn nil, fmt.Errorf(\"no union variant matched discriminator value %v\", value)\n}\n\n")
	return nil
}

// emitUnionDecodeCall emits the call to a union's Decode<Name> function
// at a field's decode site, supplying the discriminator value for a
// field-based union (read back from the struct field it names) and
// nothing extra for a peek-based one.
func (g *generator) emitUnionDecodeCall(name string, u *schema.Union, ref, fieldName, indent string) error {
	nestedVar := unexport(fieldName)
	if u != nil && u.Discriminator.Kind == schema.DiscriminatorField {
		fmt.Fprintf(&g.buf, "%s%s, err := Decode%s(r, int64(m.%s))\n", indent, nestedVar, name, export(u.Discriminator.FieldPath))
	} else {
		fmt.Fprintf(&g.buf, "%s%s, err := Decode%s(r)\n", indent, nestedVar, name)
	}
	fmt.Fprintf(&g.buf, "%sif err != nil {\n%s\treturn nil, err\n%s}\n", indent, indent, indent)
	fmt.Fprintf(&g.buf, "%s%s = *%s\n", indent, ref, nestedVar)
	return nil
}

// goWhenCondition lowers a discriminator `when` clause against the
// local `value` variable a Decode<Union> function binds. When clauses
// compare against the synthetic `value` only; any other name is an
// error since nothing else is in scope in the dispatch function.
func goWhenCondition(when string) (string, error) {
	n, err := expr.Parse(when)
	if err != nil {
		return "", err
	}
	return lowerGoBool(n, func(path string) (string, error) {
		if path != "value" {
			return "", fmt.Errorf("union when clauses may reference only %q, got %q", "value", path)
		}
		return "value", nil
	})
}
