package schema

import "fmt"

// ValidationError collects every rule violation found in one pass rather
// than failing on the first, so a schema author sees all problems at once.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("schema: %s", e.Errors[0])
	}
	return fmt.Sprintf("schema: %d validation errors, first: %s", len(e.Errors), e.Errors[0])
}

type validator struct {
	s    *Schema
	errs []string
}

func (v *validator) errf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Sprintf(format, args...))
}

// Validate checks a parsed Schema against the closed set of structural
// invariants: every referenced type name must exist, integer and bit
// widths must fall in supported ranges, union variants need at least one
// arm and a resolvable discriminator, arrays/strings declare exactly one
// length strategy, pointer and instance windows resolve to real types, and
// const/computed modifiers never combine on the same field. It returns a
// *ValidationError aggregating every violation found.
func Validate(s *Schema) error {
	v := &validator{s: s}

	seen := make(map[string]bool, len(s.Types))
	for _, t := range s.Types {
		if t.Name == "" {
			v.errf("type declared with empty name")
			continue
		}
		if seen[t.Name] {
			v.errf("duplicate type name %q", t.Name)
		}
		seen[t.Name] = true
	}

	for _, t := range s.Types {
		v.validateType(t)
	}

	if len(v.errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errs}
}

func (v *validator) resolvesType(name string) bool {
	if name == "" {
		return false
	}
	_, ok := v.s.ByName(name)
	return ok
}

func (v *validator) validateType(t *TypeDef) {
	switch t.Kind {
	case KindSequence:
		names := make(map[string]bool)
		for i, f := range t.Fields {
			if f.Name == "" {
				v.errf("type %q: field %d has no name", t.Name, i)
			} else if names[f.Name] {
				v.errf("type %q: duplicate field name %q", t.Name, f.Name)
			} else {
				names[f.Name] = true
			}
			v.validateField(t.Name, f)
		}
		v.validateComputedOrdering(t)
		for _, inst := range t.Instances {
			v.validateInstance(t.Name, inst)
		}
	case KindUnion:
		if t.Union == nil {
			v.errf("type %q: union type has no union body", t.Name)
			return
		}
		v.validateUnion(t.Name, t.Union)
	case KindAlias:
		if t.Alias == nil {
			v.errf("type %q: alias type has no field", t.Name)
			return
		}
		v.validateField(t.Name, t.Alias)
	default:
		v.errf("type %q: unknown type kind", t.Name)
	}
}

func (v *validator) validateUnion(typeName string, u *Union) {
	switch u.Discriminator.Kind {
	case DiscriminatorPeek:
		switch u.Discriminator.PeekWidth {
		case 8, 16, 32:
		default:
			v.errf("type %q: discriminator peek_width must be 8, 16, or 32, got %d", typeName, u.Discriminator.PeekWidth)
		}
	case DiscriminatorField:
		if u.Discriminator.FieldPath == "" {
			v.errf("type %q: field discriminator has empty path", typeName)
		}
	default:
		v.errf("type %q: union discriminator has unknown kind", typeName)
	}

	if len(u.Variants) == 0 {
		v.errf("type %q: union has no variants", typeName)
	}
	for i, variant := range u.Variants {
		if variant.TargetType == "" {
			v.errf("type %q: variant %d has no target_type", typeName, i)
			continue
		}
		if !v.resolvesType(variant.TargetType) {
			v.errf("type %q: variant %d references unknown type %q", typeName, i, variant.TargetType)
		}
	}
}

// validateComputedOrdering enforces the in-sequence rules for computed
// fields: targets must resolve within the sequence, position_of may only
// name a later field, and from_after_field's anchor must immediately
// precede the computed field up to other computed placeholders — a
// content field between the anchor and the computed field would be
// measured twice.
func (v *validator) validateComputedOrdering(t *TypeDef) {
	index := make(map[string]int, len(t.Fields))
	for i, f := range t.Fields {
		index[f.Name] = i
	}
	for i, f := range t.Fields {
		if f.Computed == nil {
			continue
		}
		c := f.Computed
		if c.Target != "" {
			ti, ok := index[c.Target]
			if !ok {
				v.errf("type %q: field %q: computed target %q does not exist", t.Name, f.Name, c.Target)
				continue
			}
			if c.Kind == ComputedPositionOf && ti <= i {
				v.errf("type %q: field %q: position_of target %q must come later in the sequence", t.Name, f.Name, c.Target)
			}
		}
		if c.FromAfterField == "" {
			continue
		}
		ai, ok := index[c.FromAfterField]
		if !ok {
			v.errf("type %q: field %q: from_after_field %q does not exist", t.Name, f.Name, c.FromAfterField)
			continue
		}
		if ai >= i {
			v.errf("type %q: field %q: from_after_field %q must come earlier in the sequence", t.Name, f.Name, c.FromAfterField)
			continue
		}
		for j := ai + 1; j < i; j++ {
			between := t.Fields[j]
			if between.Computed == nil && between.Kind != FieldCRC {
				v.errf("type %q: field %q: content field %q between from_after_field anchor %q and the computed field would be double-encoded", t.Name, f.Name, between.Name, c.FromAfterField)
				break
			}
		}
	}
}

func (v *validator) validateField(typeName string, f *Field) {
	if f.Const != nil && f.Computed != nil {
		v.errf("type %q: field %q cannot be both const and computed", typeName, f.Name)
	}

	switch f.Kind {
	case FieldInt:
		if f.Int == nil {
			v.errf("type %q: field %q (int) missing payload", typeName, f.Name)
			return
		}
		switch f.Int.Width {
		case 8, 16, 32, 64:
		default:
			v.errf("type %q: field %q: int width must be 8, 16, 32, or 64, got %d", typeName, f.Name, f.Int.Width)
		}
	case FieldBits:
		if f.Bits == nil {
			v.errf("type %q: field %q (bits) missing payload", typeName, f.Name)
			return
		}
		if f.Bits.Width < 1 || f.Bits.Width > 64 {
			v.errf("type %q: field %q: bit width must be 1-64, got %d", typeName, f.Name, f.Bits.Width)
		}
	case FieldVarint:
		if f.Varint == nil {
			v.errf("type %q: field %q (varint) missing payload", typeName, f.Name)
			return
		}
		switch f.Varint.Encoding {
		case VarintDER, VarintLEB128, VarintEBML, VarintVLQ:
		default:
			v.errf("type %q: field %q: unknown varint encoding %q", typeName, f.Name, f.Varint.Encoding)
		}
	case FieldArray:
		v.validateArray(typeName, f)
	case FieldString:
		v.validateString(typeName, f)
	case FieldTypeRef:
		if f.Ref == nil || !v.resolvesType(f.Ref.TypeName) {
			ref := ""
			if f.Ref != nil {
				ref = f.Ref.TypeName
			}
			v.errf("type %q: field %q references unknown type %q", typeName, f.Name, ref)
		}
	case FieldUnion:
		if f.Union == nil {
			v.errf("type %q: field %q (union) missing payload", typeName, f.Name)
			return
		}
		if f.Union.Inline != nil {
			v.validateUnion(typeName+"."+f.Name, f.Union.Inline)
		} else if f.Union.TypeName != "" {
			if !v.resolvesType(f.Union.TypeName) {
				v.errf("type %q: field %q references unknown union type %q", typeName, f.Name, f.Union.TypeName)
			}
		} else {
			v.errf("type %q: field %q (union) has neither inline body nor type reference", typeName, f.Name)
		}
	case FieldPointer:
		if f.Ptr == nil {
			v.errf("type %q: field %q (pointer) missing payload", typeName, f.Name)
			return
		}
		switch f.Ptr.StoredWidth {
		case 8, 16, 32, 64:
		default:
			v.errf("type %q: field %q: pointer stored_width must be 8, 16, 32, or 64", typeName, f.Name)
		}
		if !v.resolvesType(f.Ptr.TargetType) {
			v.errf("type %q: field %q: pointer references unknown type %q", typeName, f.Name, f.Ptr.TargetType)
		}
	case FieldOptional:
		if f.Opt == nil || f.Opt.Value == nil {
			v.errf("type %q: field %q (optional) missing value field", typeName, f.Name)
			return
		}
		v.validateField(typeName, f.Opt.Value)
	case FieldCRC:
		if f.CRC == nil {
			v.errf("type %q: field %q (crc) missing payload", typeName, f.Name)
			return
		}
		if f.CRC.Width != 32 {
			v.errf("type %q: field %q: only 32-bit CRC is supported, got %d", typeName, f.Name, f.CRC.Width)
		}
	default:
		v.errf("type %q: field %q has unknown kind", typeName, f.Name)
	}
}

func (v *validator) validateArray(typeName string, f *Field) {
	if f.Array == nil {
		v.errf("type %q: field %q (array) missing payload", typeName, f.Name)
		return
	}
	if f.Array.Item == nil {
		v.errf("type %q: field %q: array has no item field", typeName, f.Name)
		return
	}
	v.validateField(typeName, f.Array.Item)

	switch f.Array.Kind {
	case ArrayFixed:
		if f.Array.FixedLength < 0 {
			v.errf("type %q: field %q: fixed array length must be >= 0", typeName, f.Name)
		}
	case ArrayLengthPrefixed, ArrayByteLengthPrefixed:
		if !validPrefixWidth(f.Array.LengthPrefix) {
			v.errf("type %q: field %q: invalid length_prefix %q", typeName, f.Name, f.Array.LengthPrefix)
		}
	case ArrayLengthPrefixedItems:
		if !validPrefixWidth(f.Array.ItemLengthPrefix) {
			v.errf("type %q: field %q: invalid item_length_prefix %q", typeName, f.Name, f.Array.ItemLengthPrefix)
		}
	case ArrayFieldReferenced:
		if f.Array.FieldRef == "" {
			v.errf("type %q: field %q: field_referenced array has no field_ref", typeName, f.Name)
		}
	case ArrayNullTerminated, ArrayEOFTerminated:
	default:
		v.errf("type %q: field %q: unknown array kind", typeName, f.Name)
	}
}

func (v *validator) validateString(typeName string, f *Field) {
	if f.Str == nil {
		v.errf("type %q: field %q (string) missing payload", typeName, f.Name)
		return
	}
	switch f.Str.Encoding {
	case EncodingUTF8, EncodingASCII, EncodingLatin1:
	default:
		v.errf("type %q: field %q: unknown string encoding %q", typeName, f.Name, f.Str.Encoding)
	}
	switch f.Str.Kind {
	case StringFixed:
		if f.Str.FixedLength < 0 {
			v.errf("type %q: field %q: fixed string length must be >= 0", typeName, f.Name)
		}
		if f.Const != nil && f.Const.IsStr && len(f.Const.Str) > f.Str.FixedLength {
			v.errf("type %q: field %q: const literal is %d bytes but the declared length is %d", typeName, f.Name, len(f.Const.Str), f.Str.FixedLength)
		}
	case StringLengthPrefixed:
		if !validPrefixWidth(f.Str.LengthPrefix) {
			v.errf("type %q: field %q: invalid length_prefix %q", typeName, f.Name, f.Str.LengthPrefix)
		}
	case StringFieldReferenced:
		if f.Str.FieldRef == "" {
			v.errf("type %q: field %q: field_referenced string has no field_ref", typeName, f.Name)
		}
	case StringNullTerminated:
	default:
		v.errf("type %q: field %q: unknown string kind", typeName, f.Name)
	}
}

func validPrefixWidth(name string) bool {
	switch name {
	case "uint8", "uint16", "uint32":
		return true
	}
	return false
}

func (v *validator) validateInstance(typeName string, inst *Instance) {
	if inst.Name == "" {
		v.errf("type %q: instance has no name", typeName)
	}
	if !v.resolvesType(inst.TargetType) {
		v.errf("type %q: instance %q references unknown type %q", typeName, inst.Name, inst.TargetType)
	}
	switch inst.Position.Kind {
	case PositionLiteral:
		if inst.Position.Literal < 0 {
			v.errf("type %q: instance %q: literal position must be >= 0", typeName, inst.Name)
		}
	case PositionFieldRef:
		if inst.Position.Path == "" {
			v.errf("type %q: instance %q: field_ref position has empty path", typeName, inst.Name)
		}
	case PositionFromEnd:
		if inst.Position.FromEnd < 0 {
			v.errf("type %q: instance %q: from_end magnitude must be >= 0", typeName, inst.Name)
		}
	default:
		v.errf("type %q: instance %q: unknown position kind", typeName, inst.Name)
	}
	if inst.Alignment != nil {
		a := *inst.Alignment
		if a <= 0 || a&(a-1) != 0 {
			v.errf("type %q: instance %q: alignment must be a power of two, got %d", typeName, inst.Name, a)
		}
	}
}
