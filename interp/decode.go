package interp

import (
	"fmt"

	"github.com/binschema/binschema/bitio"
	"github.com/binschema/binschema/expr"
	"github.com/binschema/binschema/schema"
)

// Decode reads typeName out of r per s, returning the flattened field
// values by name (nested sequence/union fields are stored as
// map[string]any under their field name, arrays as []any).
func Decode(s *schema.Schema, typeName string, r *bitio.Reader) (map[string]any, error) {
	ctx := newDecodeContext(s, r)
	v, err := decodeType(ctx, typeName)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("interp: top-level type %q is not a sequence", typeName)
	}
	return m, nil
}

func decodeType(ctx *decodeContext, typeName string) (any, error) {
	td, ok := ctx.s.ByName(typeName)
	if !ok {
		return nil, fmt.Errorf("interp: unknown type %q", typeName)
	}
	switch td.Kind {
	case schema.KindSequence:
		return decodeSequence(ctx, td)
	case schema.KindUnion:
		return decodeUnion(ctx, td.Union)
	case schema.KindAlias:
		return decodeField(ctx, td.Alias)
	default:
		return nil, fmt.Errorf("interp: type %q has unknown kind", typeName)
	}
}

func decodeSequence(ctx *decodeContext, td *schema.TypeDef) (map[string]any, error) {
	result := make(map[string]any, len(td.Fields))
	for _, f := range td.Fields {
		if f.Conditional != "" {
			ok, err := evalBoolCond(ctx.env(nil), f.Conditional)
			if err != nil {
				return nil, fmt.Errorf("interp: field %q: %w", f.Name, err)
			}
			if !ok {
				continue
			}
		}
		v, err := decodeField(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("interp: field %q: %w", f.Name, err)
		}
		if f.Name != "" {
			result[f.Name] = v
			ctx.values[f.Name] = v
		}
		if f.Const != nil {
			if err := checkConst(f, v); err != nil {
				return nil, fmt.Errorf("interp: field %q: %w", f.Name, err)
			}
		}
	}

	for _, inst := range td.Instances {
		if inst.Conditional != "" {
			ok, err := evalBoolCond(ctx.env(nil), inst.Conditional)
			if err != nil {
				return nil, fmt.Errorf("interp: instance %q: %w", inst.Name, err)
			}
			if !ok {
				continue
			}
		}
		v, err := decodeInstance(ctx, inst)
		if err != nil {
			return nil, fmt.Errorf("interp: instance %q: %w", inst.Name, err)
		}
		result[inst.Name] = v
	}
	return result, nil
}

func checkConst(f *schema.Field, got any) error {
	cv := f.Const
	switch {
	case cv.Int != nil:
		gi, ok := got.(int64)
		if !ok || gi != *cv.Int {
			return fmt.Errorf("const mismatch: got %v, want %d", got, *cv.Int)
		}
	case cv.IsStr:
		want := cv.Str
		if f.Kind == schema.FieldString && f.Str.Kind == schema.StringFixed && len(want) < f.Str.FixedLength {
			// Encoders zero-pad short const literals, so the decoded
			// bytes carry the padding too.
			want += string(make([]byte, f.Str.FixedLength-len(want)))
		}
		gs, ok := got.(string)
		if !ok || gs != want {
			return fmt.Errorf("const mismatch: got %v, want %q", got, want)
		}
	}
	return nil
}

func evalBoolCond(env expr.Env, condition string) (bool, error) {
	v, err := expr.Eval(condition, env)
	if err != nil {
		return false, err
	}
	return truthyValue(v), nil
}

func truthyValue(v expr.Value) bool {
	switch v.Kind {
	case expr.KindBool:
		return v.Bool
	case expr.KindInt:
		return v.Int != 0
	case expr.KindString:
		return v.Str != ""
	default:
		return false
	}
}

func fieldEndianness(s *schema.Schema, f *schema.Field) bitio.Endianness {
	e := f.Endianness
	if e == "" {
		e = s.Config.EffectiveEndianness()
	}
	if e == schema.LittleEndian {
		return bitio.LittleEndian
	}
	return bitio.BigEndian
}

func decodeField(ctx *decodeContext, f *schema.Field) (any, error) {
	switch f.Kind {
	case schema.FieldInt:
		return decodeInt(ctx, f)
	case schema.FieldBits:
		return ctx.r.ReadBits(f.Bits.Width)
	case schema.FieldVarint:
		enc := varintEncoding(f.Varint.Encoding)
		return ctx.r.ReadVarlen(enc)
	case schema.FieldArray:
		return decodeArray(ctx, f)
	case schema.FieldString:
		return decodeString(ctx, f)
	case schema.FieldTypeRef:
		return decodeType(ctx, f.Ref.TypeName)
	case schema.FieldUnion:
		var u *schema.Union
		if f.Union.Inline != nil {
			u = f.Union.Inline
		} else {
			td, ok := ctx.s.ByName(f.Union.TypeName)
			if !ok || td.Union == nil {
				return nil, fmt.Errorf("union references unknown type %q", f.Union.TypeName)
			}
			u = td.Union
		}
		return decodeUnion(ctx, u)
	case schema.FieldPointer:
		return decodePointer(ctx, f)
	case schema.FieldOptional:
		return decodeOptional(ctx, f)
	case schema.FieldCRC:
		return decodeInt64Width(ctx.r, f.CRC.Width, false, fieldEndianness(ctx.s, f))
	default:
		return nil, fmt.Errorf("unsupported field kind")
	}
}

func decodeInt(ctx *decodeContext, f *schema.Field) (any, error) {
	endian := fieldEndianness(ctx.s, f)
	return decodeInt64Width(ctx.r, f.Int.Width, f.Int.Signed, endian)
}

func decodeInt64Width(r *bitio.Reader, width int, signed bool, endian bitio.Endianness) (any, error) {
	switch width {
	case 8:
		if signed {
			v, err := r.ReadI8()
			return int64(v), err
		}
		v, err := r.ReadU8()
		return int64(v), err
	case 16:
		if signed {
			v, err := r.ReadI16(endian)
			return int64(v), err
		}
		v, err := r.ReadU16(endian)
		return int64(v), err
	case 32:
		if signed {
			v, err := r.ReadI32(endian)
			return int64(v), err
		}
		v, err := r.ReadU32(endian)
		return int64(v), err
	case 64:
		if signed {
			return r.ReadI64(endian)
		}
		v, err := r.ReadU64(endian)
		return int64(v), err
	default:
		return nil, fmt.Errorf("unsupported int width %d", width)
	}
}

func varintEncoding(name schema.VarintEncodingName) bitio.VarintEncoding {
	switch name {
	case schema.VarintDER:
		return bitio.DER
	case schema.VarintLEB128:
		return bitio.LEB128
	case schema.VarintEBML:
		return bitio.EBML
	case schema.VarintVLQ:
		return bitio.VLQ
	default:
		return bitio.LEB128
	}
}

func decodeArray(ctx *decodeContext, f *schema.Field) (any, error) {
	af := f.Array
	var count int
	switch af.Kind {
	case schema.ArrayFixed:
		count = af.FixedLength
	case schema.ArrayLengthPrefixed:
		n, err := readPrefixWidth(ctx.r, af.LengthPrefix)
		if err != nil {
			return nil, err
		}
		count = int(n)
	case schema.ArrayFieldReferenced:
		v, ok := ctx.values[af.FieldRef]
		if !ok {
			return nil, fmt.Errorf("array references unknown field %q", af.FieldRef)
		}
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("array field_ref %q is not an integer", af.FieldRef)
		}
		count = int(n)
	case schema.ArrayByteLengthPrefixed:
		n, err := readPrefixWidth(ctx.r, af.LengthPrefix)
		if err != nil {
			return nil, err
		}
		return decodeArrayByByteLength(ctx, af.Item, int(n))
	case schema.ArrayNullTerminated:
		return decodeArrayUntilSentinel(ctx, af.Item)
	case schema.ArrayEOFTerminated:
		return decodeArrayUntilEOF(ctx, af.Item)
	case schema.ArrayLengthPrefixedItems:
		return nil, fmt.Errorf("length_prefixed_items arrays are not supported by the host interpreter")
	default:
		return nil, fmt.Errorf("unsupported array kind")
	}

	items := make([]any, 0, count)
	for i := 0; i < count; i++ {
		v, err := decodeField(ctx, af.Item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, v)
	}
	return items, nil
}

func decodeArrayByByteLength(ctx *decodeContext, item *schema.Field, byteLen int) (any, error) {
	startByte, _ := ctx.r.CurrentPosition()
	var items []any
	for {
		cur, _ := ctx.r.CurrentPosition()
		if cur-startByte >= int64(byteLen) {
			break
		}
		v, err := decodeField(ctx, item)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

func decodeArrayUntilSentinel(ctx *decodeContext, item *schema.Field) (any, error) {
	var items []any
	for {
		b, err := ctx.r.PeekBits(8)
		if err != nil {
			return nil, err
		}
		if b == 0 {
			if _, err := ctx.r.ReadBits(8); err != nil {
				return nil, err
			}
			break
		}
		v, err := decodeField(ctx, item)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

func decodeArrayUntilEOF(ctx *decodeContext, item *schema.Field) (any, error) {
	var items []any
	for {
		if _, err := ctx.r.PeekBits(8); err != nil {
			break
		}
		v, err := decodeField(ctx, item)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

func readPrefixWidth(r *bitio.Reader, width string) (uint64, error) {
	switch width {
	case "uint8":
		v, err := r.ReadU8()
		return uint64(v), err
	case "uint16":
		return u64(r.ReadU16(bitio.BigEndian))
	case "uint32":
		return u64(r.ReadU32(bitio.BigEndian))
	default:
		return 0, fmt.Errorf("unknown length prefix width %q", width)
	}
}

func u64[T ~uint8 | ~uint16 | ~uint32 | ~uint64](v T, err error) (uint64, error) {
	return uint64(v), err
}

func decodeString(ctx *decodeContext, f *schema.Field) (any, error) {
	sf := f.Str
	var raw []byte
	var err error
	switch sf.Kind {
	case schema.StringFixed:
		raw, err = ctx.r.ReadBytes(sf.FixedLength)
	case schema.StringLengthPrefixed:
		n, perr := readPrefixWidth(ctx.r, sf.LengthPrefix)
		if perr != nil {
			return nil, perr
		}
		raw, err = ctx.r.ReadBytes(int(n))
	case schema.StringFieldReferenced:
		v, ok := ctx.values[sf.FieldRef]
		if !ok {
			return nil, fmt.Errorf("string references unknown field %q", sf.FieldRef)
		}
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("string field_ref %q is not an integer", sf.FieldRef)
		}
		raw, err = ctx.r.ReadBytes(int(n))
	case schema.StringNullTerminated:
		var buf []byte
		for {
			b, rerr := ctx.r.ReadU8()
			if rerr != nil {
				return nil, rerr
			}
			if b == 0 {
				break
			}
			buf = append(buf, b)
		}
		raw = buf
	default:
		return nil, fmt.Errorf("unsupported string kind")
	}
	if err != nil {
		return nil, err
	}
	return decodeStringBytes(raw, sf, ctx.s.Config.Strict)
}

func decodeStringBytes(raw []byte, sf *schema.StringField, strict bool) (string, error) {
	switch sf.Encoding {
	case schema.EncodingUTF8, schema.EncodingLatin1:
		return string(raw), nil
	case schema.EncodingASCII:
		if strict {
			for _, b := range raw {
				if b >= 128 {
					return "", fmt.Errorf("non-ascii byte %#x in strict ascii field", b)
				}
			}
		}
		return string(raw), nil
	default:
		return string(raw), nil
	}
}

func decodeUnion(ctx *decodeContext, u *schema.Union) (any, error) {
	var discVal expr.Value
	switch u.Discriminator.Kind {
	case schema.DiscriminatorPeek:
		v, err := ctx.r.PeekBits(u.Discriminator.PeekWidth)
		if err != nil {
			return nil, err
		}
		discVal = expr.Int(int64(v))
	case schema.DiscriminatorField:
		raw, ok := ctx.values[u.Discriminator.FieldPath]
		if !ok {
			return nil, fmt.Errorf("union discriminator field %q not yet decoded", u.Discriminator.FieldPath)
		}
		v, err := toExprValue(raw)
		if err != nil {
			return nil, err
		}
		discVal = v
	default:
		return nil, fmt.Errorf("unsupported discriminator kind")
	}

	env := ctx.env(nil).(*dynEnv)
	bound := any(discVal.Int)
	if discVal.Kind == expr.KindString {
		bound = discVal.Str
	}
	boundEnv := ctx.env(&bound)
	_ = env

	for _, variant := range u.Variants {
		ok, err := evalBoolCond(boundEnv, variant.When)
		if err != nil {
			return nil, fmt.Errorf("variant %q: %w", variant.TargetType, err)
		}
		if ok {
			v, err := decodeType(ctx.child(), variant.TargetType)
			if m, isMap := v.(map[string]any); isMap && err == nil {
				// The same key Encode reads to pick the variant.
				m["__variant_type__"] = variant.TargetType
			}
			return v, err
		}
	}
	return nil, fmt.Errorf("no union variant matched discriminator")
}

func decodePointer(ctx *decodeContext, f *schema.Field) (any, error) {
	pf := f.Ptr
	endian := fieldEndianness(ctx.s, f)
	raw, err := decodeInt64Width(ctx.r, pf.StoredWidth, false, endian)
	if err != nil {
		return nil, err
	}
	offset := raw.(int64)
	if pf.OffsetMask != nil {
		offset &= int64(*pf.OffsetMask)
	}

	saved := ctx.r.Clone()
	if err := ctx.r.Seek(offset); err != nil {
		return nil, err
	}
	v, err := decodeType(ctx.child(), pf.TargetType)
	*ctx.r = *saved
	return v, err
}

func decodeOptional(ctx *decodeContext, f *schema.Field) (any, error) {
	of := f.Opt
	present, err := ctx.r.ReadBits(of.PresenceWidth)
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	return decodeField(ctx, of.Value)
}

func decodeInstance(ctx *decodeContext, inst *schema.Instance) (any, error) {
	var pos int64
	switch inst.Position.Kind {
	case schema.PositionLiteral:
		pos = inst.Position.Literal
	case schema.PositionFieldRef:
		v, ok := ctx.values[inst.Position.Path]
		if !ok {
			return nil, fmt.Errorf("instance position references unknown field %q", inst.Position.Path)
		}
		i, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("instance position field %q is not an integer", inst.Position.Path)
		}
		pos = i
	case schema.PositionFromEnd:
		size, ok, err := ctx.r.Size()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("instance uses from_end position but the backing source has no known length")
		}
		pos = size - inst.Position.FromEnd
	default:
		return nil, fmt.Errorf("unsupported instance position kind")
	}
	if inst.Alignment != nil {
		a := int64(*inst.Alignment)
		if pos%a != 0 {
			return nil, fmt.Errorf("Position %d is not aligned to %d bytes", pos, a)
		}
	}

	saved := ctx.r.Clone()
	if err := ctx.r.Seek(pos); err != nil {
		return nil, err
	}
	v, err := decodeType(ctx.child(), inst.TargetType)
	*ctx.r = *saved
	return v, err
}
