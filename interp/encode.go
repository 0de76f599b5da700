package interp

import (
	"fmt"

	"github.com/binschema/binschema/bitio"
	"github.com/binschema/binschema/plan"
	"github.com/binschema/binschema/schema"
)

// Encode writes values (a field-name-keyed map shaped like Decode's
// result, const/computed fields omitted) as typeName into a fresh
// bitio.Writer and returns the encoded bytes.
func Encode(s *schema.Schema, typeName string, values map[string]any) ([]byte, error) {
	w := bitio.NewWriter(toBitioOrder(s.Config.EffectiveBitOrder()), toBitioEndian(s.Config.EffectiveEndianness()))
	ctx := newEncodeContext(s, w, values)
	if err := encodeType(ctx, typeName, values); err != nil {
		return nil, err
	}
	return w.Finish(), nil
}

func encodeType(ctx *encodeContext, typeName string, values map[string]any) error {
	td, ok := ctx.s.ByName(typeName)
	if !ok {
		return fmt.Errorf("interp: unknown type %q", typeName)
	}
	switch td.Kind {
	case schema.KindSequence:
		return encodeSequence(ctx, td, values)
	case schema.KindAlias:
		v, ok := values[""]
		if !ok {
			// Alias types carry a single anonymous value under a
			// caller-chosen key; fall back to the lone map entry.
			for _, vv := range values {
				v = vv
				break
			}
		}
		return encodeField(ctx, td.Alias, v)
	default:
		return fmt.Errorf("interp: type %q is not directly encodable", typeName)
	}
}

func encodeSequence(ctx *encodeContext, td *schema.TypeDef, values map[string]any) error {
	p, err := plan.Build(ctx.s, td.Name)
	if err != nil {
		return err
	}
	for _, step := range p.Steps {
		switch step.Kind {
		case plan.StepField:
			f := step.Field
			if f.Conditional != "" {
				ok, err := evalBoolCond(ctx.env(), f.Conditional)
				if err != nil {
					return fmt.Errorf("field %q: %w", f.Name, err)
				}
				if !ok {
					continue
				}
			}
			v := values[f.Name]
			if f.Const != nil {
				v = constAsValue(f.Const)
			}
			ctx.values[f.Name] = v
			start := ctx.w.CurrentByteOffset()
			if err := encodeField(ctx, f, v); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
			ctx.spans[f.Name] = fieldSpan{start: int64(start), end: int64(ctx.w.CurrentByteOffset())}
		case plan.StepPlaceholder:
			start := ctx.w.CurrentByteOffset()
			if err := writeZeroPlaceholder(ctx.w, step.PlaceholderWidth); err != nil {
				return fmt.Errorf("field %q: %w", step.PlaceholderField.Name, err)
			}
			ctx.spans[step.PlaceholderField.Name] = fieldSpan{start: int64(start), end: int64(ctx.w.CurrentByteOffset())}
		case plan.StepPatch:
			if err := applyPatch(ctx, step.PatchField); err != nil {
				return fmt.Errorf("field %q: %w", step.PatchField.Name, err)
			}
		}
	}
	return nil
}

func toBitioOrder(o schema.BitOrder) bitio.BitOrder {
	if o == schema.LSBFirst {
		return bitio.LSBFirst
	}
	return bitio.MSBFirst
}

func toBitioEndian(e schema.Endianness) bitio.Endianness {
	if e == schema.LittleEndian {
		return bitio.LittleEndian
	}
	return bitio.BigEndian
}

func constAsValue(cv *schema.ConstValue) any {
	switch {
	case cv.Int != nil:
		return *cv.Int
	case cv.IsStr:
		return cv.Str
	default:
		return nil
	}
}

func writeZeroPlaceholder(w *bitio.Writer, width int) error {
	switch width {
	case 1:
		return w.WriteU8(0)
	case 2:
		return w.WriteU16(0, bitio.BigEndian)
	case 4:
		return w.WriteU32(0, bitio.BigEndian)
	case 8:
		return w.WriteU64(0, bitio.BigEndian)
	default:
		return fmt.Errorf("unsupported placeholder width %d bytes", width)
	}
}

func applyPatch(ctx *encodeContext, f *schema.Field) error {
	span, ok := ctx.spans[f.Name]
	if !ok {
		return fmt.Errorf("no placeholder reserved")
	}
	endian := fieldEndianness(ctx.s, f)

	var v uint64
	switch {
	case f.Kind == schema.FieldCRC:
		start := int64(0)
		if f.CRC.AfterField != "" {
			afterSpan, ok := ctx.spans[f.CRC.AfterField]
			if !ok {
				return fmt.Errorf("crc after_field %q has no recorded span", f.CRC.AfterField)
			}
			start = afterSpan.end
		}
		data := ctx.w.Bytes()
		if int(start) > len(data) || start > span.start {
			return fmt.Errorf("crc start offset %d beyond covered range", start)
		}
		v = uint64(bitio.CRC32(data[start:span.start]))
	case f.Computed != nil && f.Computed.Kind == schema.ComputedLengthOf:
		if f.Computed.FromAfterField != "" {
			afterSpan, ok := ctx.spans[f.Computed.FromAfterField]
			if !ok {
				return fmt.Errorf("length_of from_after_field %q has no recorded span", f.Computed.FromAfterField)
			}
			// Everything after the anchor up to the current offset,
			// excluding the computed field's own placeholder bytes.
			data := ctx.w.Bytes()
			v = uint64(int64(len(data)) - afterSpan.end - (span.end - span.start))
		} else {
			targetSpan, ok := ctx.spans[f.Computed.Target]
			if !ok {
				return fmt.Errorf("length_of target %q has no recorded span", f.Computed.Target)
			}
			// Arrays are measured in items, strings and everything else
			// in bytes.
			if items, isArr := ctx.values[f.Computed.Target].([]any); isArr {
				v = uint64(len(items))
			} else {
				v = uint64(targetSpan.end - targetSpan.start)
			}
		}
	case f.Computed != nil && f.Computed.Kind == schema.ComputedPositionOf:
		targetSpan, ok := ctx.spans[f.Computed.Target]
		if !ok {
			return fmt.Errorf("position_of target %q has no recorded span", f.Computed.Target)
		}
		v = uint64(targetSpan.start)
	default:
		return fmt.Errorf("unsupported computed kind")
	}

	return patchWidth(ctx.w, int(span.start), v, int(span.end-span.start), endian)
}

func patchWidth(w *bitio.Writer, offset int, v uint64, width int, endian bitio.Endianness) error {
	switch width {
	case 1:
		w.PatchU8(offset, uint8(v))
	case 2:
		w.PatchU16(offset, uint16(v), endian)
	case 4:
		w.PatchU32(offset, uint32(v), endian)
	case 8:
		w.PatchU64(offset, v, endian)
	default:
		return fmt.Errorf("unsupported patch width %d bytes", width)
	}
	return nil
}

func encodeField(ctx *encodeContext, f *schema.Field, v any) error {
	switch f.Kind {
	case schema.FieldInt:
		return encodeInt(ctx, f, v)
	case schema.FieldBits:
		i, err := asUint64(v)
		if err != nil {
			return err
		}
		return ctx.w.WriteBits(i, f.Bits.Width)
	case schema.FieldVarint:
		i, err := asUint64(v)
		if err != nil {
			return err
		}
		return ctx.w.WriteVarlen(i, varintEncoding(f.Varint.Encoding))
	case schema.FieldArray:
		return encodeArray(ctx, f, v)
	case schema.FieldString:
		return encodeString(ctx, f, v)
	case schema.FieldTypeRef:
		nested, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("type_ref field expects a nested value map")
		}
		return encodeType(ctx, f.Ref.TypeName, nested)
	case schema.FieldUnion:
		nested, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("union field expects a nested value map")
		}
		variantType, _ := nested["__variant_type__"].(string)
		if variantType == "" {
			return fmt.Errorf("union field value must carry \"__variant_type__\" naming the encoded variant")
		}
		return encodeType(ctx, variantType, nested)
	case schema.FieldPointer:
		return fmt.Errorf("pointer field encoding is not supported by the host interpreter")
	case schema.FieldOptional:
		if v == nil {
			return ctx.w.WriteBits(0, f.Opt.PresenceWidth)
		}
		if err := ctx.w.WriteBits(1, f.Opt.PresenceWidth); err != nil {
			return err
		}
		return encodeField(ctx, f.Opt.Value, v)
	case schema.FieldCRC:
		return nil // handled entirely by the placeholder/patch steps
	default:
		return fmt.Errorf("unsupported field kind")
	}
}

func encodeInt(ctx *encodeContext, f *schema.Field, v any) error {
	endian := fieldEndianness(ctx.s, f)
	i, err := asInt64(v)
	if err != nil {
		return err
	}
	switch f.Int.Width {
	case 8:
		if f.Int.Signed {
			return ctx.w.WriteI8(int8(i))
		}
		return ctx.w.WriteU8(uint8(i))
	case 16:
		if f.Int.Signed {
			return ctx.w.WriteI16(int16(i), endian)
		}
		return ctx.w.WriteU16(uint16(i), endian)
	case 32:
		if f.Int.Signed {
			return ctx.w.WriteI32(int32(i), endian)
		}
		return ctx.w.WriteU32(uint32(i), endian)
	case 64:
		if f.Int.Signed {
			return ctx.w.WriteI64(i, endian)
		}
		return ctx.w.WriteU64(uint64(i), endian)
	default:
		return fmt.Errorf("unsupported int width %d", f.Int.Width)
	}
}

func encodeArray(ctx *encodeContext, f *schema.Field, v any) error {
	items, ok := v.([]any)
	if !ok {
		return fmt.Errorf("array field expects a []any value")
	}
	af := f.Array
	switch af.Kind {
	case schema.ArrayFixed:
		if len(items) != af.FixedLength {
			return fmt.Errorf("fixed array expects %d items, got %d", af.FixedLength, len(items))
		}
	case schema.ArrayLengthPrefixed:
		if err := writePrefixWidth(ctx.w, af.LengthPrefix, uint64(len(items))); err != nil {
			return err
		}
	case schema.ArrayFieldReferenced, schema.ArrayNullTerminated, schema.ArrayEOFTerminated:
	case schema.ArrayByteLengthPrefixed, schema.ArrayLengthPrefixedItems:
		return fmt.Errorf("array kind is not supported by the host interpreter encoder")
	default:
		return fmt.Errorf("unsupported array kind")
	}
	for i, item := range items {
		if err := encodeField(ctx, af.Item, item); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	if af.Kind == schema.ArrayNullTerminated {
		return ctx.w.WriteU8(0)
	}
	return nil
}

func writePrefixWidth(w *bitio.Writer, width string, v uint64) error {
	switch width {
	case "uint8":
		return w.WriteU8(uint8(v))
	case "uint16":
		return w.WriteU16(uint16(v), bitio.BigEndian)
	case "uint32":
		return w.WriteU32(uint32(v), bitio.BigEndian)
	default:
		return fmt.Errorf("unknown length prefix width %q", width)
	}
}

func encodeString(ctx *encodeContext, f *schema.Field, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("string field expects a string value")
	}
	if f.Str.Encoding == schema.EncodingASCII && ctx.s.Config.Strict {
		for _, r := range s {
			if r >= 128 {
				return fmt.Errorf("non-ascii rune %q in strict ascii field", r)
			}
		}
	}
	raw := []byte(s)
	switch f.Str.Kind {
	case schema.StringFixed:
		if len(raw) > f.Str.FixedLength {
			return fmt.Errorf("fixed string expects at most %d bytes, got %d", f.Str.FixedLength, len(raw))
		}
		if len(raw) < f.Str.FixedLength {
			// Const literals shorter than the declared width are
			// zero-padded; ordinary values must fill the field exactly.
			if f.Const == nil {
				return fmt.Errorf("fixed string expects %d bytes, got %d", f.Str.FixedLength, len(raw))
			}
			raw = append(raw, make([]byte, f.Str.FixedLength-len(raw))...)
		}
		return ctx.w.WriteBytes(raw)
	case schema.StringLengthPrefixed:
		if err := writePrefixWidth(ctx.w, f.Str.LengthPrefix, uint64(len(raw))); err != nil {
			return err
		}
		return ctx.w.WriteBytes(raw)
	case schema.StringFieldReferenced:
		return ctx.w.WriteBytes(raw)
	case schema.StringNullTerminated:
		if err := ctx.w.WriteBytes(raw); err != nil {
			return err
		}
		return ctx.w.WriteU8(0)
	default:
		return fmt.Errorf("unsupported string kind")
	}
}

func asUint64(v any) (uint64, error) {
	switch t := v.(type) {
	case int64:
		return uint64(t), nil
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	default:
		return 0, fmt.Errorf("expected an integer value, got %T", v)
	}
}

func asInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case uint64:
		return int64(t), nil
	case int:
		return int64(t), nil
	default:
		return 0, fmt.Errorf("expected an integer value, got %T", v)
	}
}
