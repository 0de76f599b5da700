package schema

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError reports a schema document syntax problem, with a YAML line
// number when the underlying node carries one.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("schema: line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("schema: %s", e.Message)
}

func parseErrorf(n *yaml.Node, format string, args ...any) error {
	line := 0
	if n != nil {
		line = n.Line
	}
	return &ParseError{Line: line, Message: fmt.Sprintf(format, args...)}
}

// Parse reads a BinSchema document (YAML, or JSON, which YAML accepts as
// a strict subset) into a Schema. The tree is walked directly off the
// yaml.Node representation rather than through an intermediate map so
// that every order-sensitive list (type declarations, sequence fields,
// union variants) keeps its declaration order.
func Parse(data []byte) (*Schema, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, parseErrorf(&root, "empty document")
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, parseErrorf(doc, "document root must be a mapping")
	}

	s := &Schema{}
	if cfgNode := mapGet(doc, "config"); cfgNode != nil {
		cfg, err := parseConfig(cfgNode)
		if err != nil {
			return nil, err
		}
		s.Config = cfg
	}

	typesNode := mapGet(doc, "types")
	if typesNode == nil {
		return nil, parseErrorf(doc, "missing required top-level key 'types'")
	}
	if typesNode.Kind != yaml.SequenceNode {
		return nil, parseErrorf(typesNode, "'types' must be a sequence")
	}
	for _, tn := range typesNode.Content {
		td, err := parseTypeDef(tn)
		if err != nil {
			return nil, err
		}
		s.Types = append(s.Types, td)
	}
	s.index()
	return s, nil
}

// mapGet returns the value node for key in a mapping node, or nil.
func mapGet(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func scalarStr(n *yaml.Node) (string, bool) {
	if n == nil || n.Kind != yaml.ScalarNode {
		return "", false
	}
	return n.Value, true
}

func scalarInt(n *yaml.Node) (int64, bool) {
	if n == nil || n.Kind != yaml.ScalarNode {
		return 0, false
	}
	v, err := strconv.ParseInt(n.Value, 0, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func scalarBool(n *yaml.Node) (bool, bool) {
	if n == nil || n.Kind != yaml.ScalarNode {
		return false, false
	}
	v, err := strconv.ParseBool(n.Value)
	if err != nil {
		return false, false
	}
	return v, true
}

func parseConfig(n *yaml.Node) (Config, error) {
	var c Config
	if v, ok := scalarStr(mapGet(n, "endianness")); ok {
		c.Endianness = Endianness(v)
	}
	if v, ok := scalarStr(mapGet(n, "bit_order")); ok {
		c.BitOrder = BitOrder(v)
	}
	if v, ok := scalarBool(mapGet(n, "strict")); ok {
		c.Strict = v
	}
	return c, nil
}

func parseTypeDef(n *yaml.Node) (*TypeDef, error) {
	if n.Kind != yaml.MappingNode {
		return nil, parseErrorf(n, "type entry must be a mapping")
	}
	name, ok := scalarStr(mapGet(n, "name"))
	if !ok || name == "" {
		return nil, parseErrorf(n, "type entry missing 'name'")
	}
	kindStr, _ := scalarStr(mapGet(n, "kind"))

	td := &TypeDef{Name: name}
	switch kindStr {
	case "", "sequence":
		td.Kind = KindSequence
		fieldsNode := mapGet(n, "fields")
		if fieldsNode != nil {
			if fieldsNode.Kind != yaml.SequenceNode {
				return nil, parseErrorf(fieldsNode, "type %q: 'fields' must be a sequence", name)
			}
			for _, fn := range fieldsNode.Content {
				f, err := parseField(fn)
				if err != nil {
					return nil, err
				}
				td.Fields = append(td.Fields, f)
			}
		}
		if instNode := mapGet(n, "instances"); instNode != nil {
			if instNode.Kind != yaml.SequenceNode {
				return nil, parseErrorf(instNode, "type %q: 'instances' must be a sequence", name)
			}
			for _, in := range instNode.Content {
				inst, err := parseInstance(in)
				if err != nil {
					return nil, err
				}
				td.Instances = append(td.Instances, inst)
			}
		}
	case "union":
		td.Kind = KindUnion
		u, err := parseUnion(n, name)
		if err != nil {
			return nil, err
		}
		td.Union = u
	case "alias":
		td.Kind = KindAlias
		fn := mapGet(n, "field")
		if fn == nil {
			return nil, parseErrorf(n, "type %q: alias requires 'field'", name)
		}
		f, err := parseField(fn)
		if err != nil {
			return nil, err
		}
		td.Alias = f
	default:
		return nil, parseErrorf(n, "type %q: unknown kind %q", name, kindStr)
	}
	return td, nil
}

func parseUnion(n *yaml.Node, typeName string) (*Union, error) {
	discNode := mapGet(n, "discriminator")
	if discNode == nil {
		return nil, parseErrorf(n, "type %q: union requires 'discriminator'", typeName)
	}
	disc, err := parseDiscriminator(discNode, typeName)
	if err != nil {
		return nil, err
	}
	u := &Union{Discriminator: disc}

	variantsNode := mapGet(n, "variants")
	if variantsNode == nil || variantsNode.Kind != yaml.SequenceNode {
		return nil, parseErrorf(n, "type %q: union requires sequence 'variants'", typeName)
	}
	for _, vn := range variantsNode.Content {
		if vn.Kind != yaml.MappingNode {
			return nil, parseErrorf(vn, "type %q: variant entry must be a mapping", typeName)
		}
		when, _ := scalarStr(mapGet(vn, "when"))
		target, ok := scalarStr(mapGet(vn, "target_type"))
		if !ok {
			return nil, parseErrorf(vn, "type %q: variant missing 'target_type'", typeName)
		}
		u.Variants = append(u.Variants, Variant{When: when, TargetType: target})
	}
	return u, nil
}

func parseDiscriminator(n *yaml.Node, typeName string) (Discriminator, error) {
	var d Discriminator
	kind, _ := scalarStr(mapGet(n, "kind"))
	switch kind {
	case "", "peek":
		d.Kind = DiscriminatorPeek
		w, ok := scalarInt(mapGet(n, "peek_width"))
		if !ok {
			w = 8
		}
		d.PeekWidth = int(w)
		if e, ok := scalarStr(mapGet(n, "peek_endianness")); ok {
			d.PeekEndianness = Endianness(e)
		}
	case "field":
		d.Kind = DiscriminatorField
		path, ok := scalarStr(mapGet(n, "field"))
		if !ok {
			return d, parseErrorf(n, "type %q: field discriminator requires 'field'", typeName)
		}
		d.FieldPath = path
	default:
		return d, parseErrorf(n, "type %q: unknown discriminator kind %q", typeName, kind)
	}
	return d, nil
}

func parseField(n *yaml.Node) (*Field, error) {
	if n.Kind != yaml.MappingNode {
		return nil, parseErrorf(n, "field entry must be a mapping")
	}
	name, _ := scalarStr(mapGet(n, "name"))
	kindStr, ok := scalarStr(mapGet(n, "kind"))
	if !ok {
		return nil, parseErrorf(n, "field %q missing 'kind'", name)
	}

	f := &Field{Name: name}
	if e, ok := scalarStr(mapGet(n, "endianness")); ok {
		f.Endianness = Endianness(e)
	}
	if cond, ok := scalarStr(mapGet(n, "if")); ok {
		f.Conditional = cond
	}
	if cn := mapGet(n, "const"); cn != nil {
		cv, err := parseConstValue(cn)
		if err != nil {
			return nil, err
		}
		f.Const = cv
	}
	if cn := mapGet(n, "computed"); cn != nil {
		c, err := parseComputed(cn, name)
		if err != nil {
			return nil, err
		}
		f.Computed = c
	}

	switch kindStr {
	case "int":
		f.Kind = FieldInt
		w, _ := scalarInt(mapGet(n, "width"))
		signed, _ := scalarBool(mapGet(n, "signed"))
		f.Int = &IntField{Width: int(w), Signed: signed}
	case "bits":
		f.Kind = FieldBits
		w, _ := scalarInt(mapGet(n, "width"))
		f.Bits = &BitsField{Width: int(w)}
	case "varint":
		f.Kind = FieldVarint
		enc, _ := scalarStr(mapGet(n, "encoding"))
		f.Varint = &VarintField{Encoding: VarintEncodingName(enc)}
	case "array":
		af, err := parseArrayField(n, name)
		if err != nil {
			return nil, err
		}
		f.Kind = FieldArray
		f.Array = af
	case "string":
		sf, err := parseStringField(n, name)
		if err != nil {
			return nil, err
		}
		f.Kind = FieldString
		f.Str = sf
	case "type_ref":
		tn, ok := scalarStr(mapGet(n, "type"))
		if !ok {
			return nil, parseErrorf(n, "field %q: type_ref requires 'type'", name)
		}
		f.Kind = FieldTypeRef
		f.Ref = &TypeRefField{TypeName: tn}
	case "union":
		uf := &UnionField{}
		if tn, ok := scalarStr(mapGet(n, "type")); ok {
			uf.TypeName = tn
		} else {
			u, err := parseUnion(n, name)
			if err != nil {
				return nil, err
			}
			uf.Inline = u
		}
		f.Kind = FieldUnion
		f.Union = uf
	case "pointer":
		pf, err := parsePointerField(n, name)
		if err != nil {
			return nil, err
		}
		f.Kind = FieldPointer
		f.Ptr = pf
	case "optional":
		of, err := parseOptionalField(n, name)
		if err != nil {
			return nil, err
		}
		f.Kind = FieldOptional
		f.Opt = of
	case "crc":
		cf, err := parseCRCField(n, name)
		if err != nil {
			return nil, err
		}
		f.Kind = FieldCRC
		f.CRC = cf
	default:
		return nil, parseErrorf(n, "field %q: unknown kind %q", name, kindStr)
	}
	return f, nil
}

func parseConstValue(n *yaml.Node) (*ConstValue, error) {
	if n.Kind != yaml.ScalarNode {
		return nil, parseErrorf(n, "'const' must be a scalar")
	}
	switch n.Tag {
	case "!!int":
		v, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return nil, parseErrorf(n, "invalid const int: %v", err)
		}
		return &ConstValue{Int: &v}, nil
	case "!!str":
		return &ConstValue{Str: n.Value, IsStr: true}, nil
	default:
		v, err := strconv.ParseInt(n.Value, 0, 64)
		if err == nil {
			return &ConstValue{Int: &v}, nil
		}
		return &ConstValue{Str: n.Value, IsStr: true}, nil
	}
}

func parseComputed(n *yaml.Node, fieldName string) (*Computed, error) {
	kind, _ := scalarStr(mapGet(n, "kind"))
	c := &Computed{}
	switch kind {
	case "length_of":
		c.Kind = ComputedLengthOf
	case "position_of":
		c.Kind = ComputedPositionOf
	default:
		return nil, parseErrorf(n, "field %q: unknown computed kind %q", fieldName, kind)
	}
	target, ok := scalarStr(mapGet(n, "target"))
	if !ok {
		return nil, parseErrorf(n, "field %q: computed requires 'target'", fieldName)
	}
	c.Target = target
	if after, ok := scalarStr(mapGet(n, "from_after_field")); ok {
		c.FromAfterField = after
	}
	return c, nil
}

func parseArrayField(n *yaml.Node, fieldName string) (*ArrayField, error) {
	itemNode := mapGet(n, "item")
	if itemNode == nil {
		return nil, parseErrorf(n, "field %q: array requires 'item'", fieldName)
	}
	item, err := parseField(itemNode)
	if err != nil {
		return nil, err
	}
	af := &ArrayField{Item: item}

	lenKind, _ := scalarStr(mapGet(n, "length_kind"))
	switch lenKind {
	case "fixed":
		af.Kind = ArrayFixed
		v, _ := scalarInt(mapGet(n, "length"))
		af.FixedLength = int(v)
	case "length_prefixed":
		af.Kind = ArrayLengthPrefixed
		af.LengthPrefix, _ = scalarStr(mapGet(n, "length_prefix"))
	case "byte_length_prefixed":
		af.Kind = ArrayByteLengthPrefixed
		af.LengthPrefix, _ = scalarStr(mapGet(n, "length_prefix"))
	case "length_prefixed_items":
		af.Kind = ArrayLengthPrefixedItems
		af.ItemLengthPrefix, _ = scalarStr(mapGet(n, "item_length_prefix"))
	case "field_referenced":
		af.Kind = ArrayFieldReferenced
		af.FieldRef, _ = scalarStr(mapGet(n, "field_ref"))
	case "null_terminated":
		af.Kind = ArrayNullTerminated
	case "eof_terminated":
		af.Kind = ArrayEOFTerminated
	default:
		return nil, parseErrorf(n, "field %q: unknown array length_kind %q", fieldName, lenKind)
	}
	return af, nil
}

func parseStringField(n *yaml.Node, fieldName string) (*StringField, error) {
	sf := &StringField{Encoding: EncodingUTF8}
	if enc, ok := scalarStr(mapGet(n, "encoding")); ok {
		sf.Encoding = StringEncoding(enc)
	}
	lenKind, _ := scalarStr(mapGet(n, "length_kind"))
	switch lenKind {
	case "fixed":
		sf.Kind = StringFixed
		v, _ := scalarInt(mapGet(n, "length"))
		sf.FixedLength = int(v)
	case "length_prefixed":
		sf.Kind = StringLengthPrefixed
		sf.LengthPrefix, _ = scalarStr(mapGet(n, "length_prefix"))
	case "null_terminated":
		sf.Kind = StringNullTerminated
	case "field_referenced":
		sf.Kind = StringFieldReferenced
		sf.FieldRef, _ = scalarStr(mapGet(n, "field_ref"))
	default:
		return nil, parseErrorf(n, "field %q: unknown string length_kind %q", fieldName, lenKind)
	}
	return sf, nil
}

func parsePointerField(n *yaml.Node, fieldName string) (*PointerField, error) {
	pf := &PointerField{}
	w, ok := scalarInt(mapGet(n, "stored_width"))
	if !ok {
		return nil, parseErrorf(n, "field %q: pointer requires 'stored_width'", fieldName)
	}
	pf.StoredWidth = int(w)
	pf.Window, _ = scalarStr(mapGet(n, "window"))
	target, ok := scalarStr(mapGet(n, "target_type"))
	if !ok {
		return nil, parseErrorf(n, "field %q: pointer requires 'target_type'", fieldName)
	}
	pf.TargetType = target
	if maskNode := mapGet(n, "offset_mask"); maskNode != nil {
		v, err := strconv.ParseUint(maskNode.Value, 0, 64)
		if err != nil {
			return nil, parseErrorf(maskNode, "field %q: invalid offset_mask: %v", fieldName, err)
		}
		pf.OffsetMask = &v
	}
	return pf, nil
}

func parseOptionalField(n *yaml.Node, fieldName string) (*OptionalField, error) {
	of := &OptionalField{PresenceWidth: 8}
	if w, ok := scalarInt(mapGet(n, "presence_width")); ok {
		of.PresenceWidth = int(w)
	}
	valNode := mapGet(n, "value")
	if valNode == nil {
		return nil, parseErrorf(n, "field %q: optional requires 'value'", fieldName)
	}
	v, err := parseField(valNode)
	if err != nil {
		return nil, err
	}
	of.Value = v
	return of, nil
}

func parseCRCField(n *yaml.Node, fieldName string) (*CRCField, error) {
	cf := &CRCField{Width: 32}
	if w, ok := scalarInt(mapGet(n, "width")); ok {
		cf.Width = int(w)
	}
	cf.Covers, _ = scalarStr(mapGet(n, "covers"))
	cf.AfterField, _ = scalarStr(mapGet(n, "after_field"))

	// covers and after_field are two spellings of the same choice;
	// normalize so downstream consumers only ever look at AfterField
	// (empty = coverage from the start of the sequence).
	switch {
	case cf.Covers == "":
		if cf.AfterField != "" {
			cf.Covers = "from_after_field"
		} else {
			cf.Covers = "from_start"
		}
	case cf.Covers == "from_start":
		if cf.AfterField != "" {
			return nil, parseErrorf(n, "field %q: covers: from_start contradicts after_field %q", fieldName, cf.AfterField)
		}
	case cf.Covers == "from_after_field":
		if cf.AfterField == "" {
			return nil, parseErrorf(n, "field %q: covers: from_after_field requires 'after_field'", fieldName)
		}
	case strings.HasPrefix(cf.Covers, "from_after_field:"):
		name := strings.TrimPrefix(cf.Covers, "from_after_field:")
		if name == "" {
			return nil, parseErrorf(n, "field %q: covers: from_after_field: names no field", fieldName)
		}
		if cf.AfterField != "" && cf.AfterField != name {
			return nil, parseErrorf(n, "field %q: covers names %q but after_field says %q", fieldName, name, cf.AfterField)
		}
		cf.AfterField = name
		cf.Covers = "from_after_field"
	default:
		return nil, parseErrorf(n, "field %q: unknown covers %q", fieldName, cf.Covers)
	}
	return cf, nil
}

func parseInstance(n *yaml.Node) (*Instance, error) {
	if n.Kind != yaml.MappingNode {
		return nil, parseErrorf(n, "instance entry must be a mapping")
	}
	name, ok := scalarStr(mapGet(n, "name"))
	if !ok {
		return nil, parseErrorf(n, "instance missing 'name'")
	}
	target, ok := scalarStr(mapGet(n, "target_type"))
	if !ok {
		return nil, parseErrorf(n, "instance %q missing 'target_type'", name)
	}
	posNode := mapGet(n, "position")
	if posNode == nil {
		return nil, parseErrorf(n, "instance %q missing 'position'", name)
	}
	pos, err := parsePositionExpr(posNode, name)
	if err != nil {
		return nil, err
	}
	inst := &Instance{Name: name, TargetType: target, Position: pos}
	if sz, ok := scalarInt(mapGet(n, "size")); ok {
		s := int(sz)
		inst.Size = &s
	}
	if al, ok := scalarInt(mapGet(n, "alignment")); ok {
		a := int(al)
		inst.Alignment = &a
	}
	inst.Conditional, _ = scalarStr(mapGet(n, "if"))
	return inst, nil
}

func parsePositionExpr(n *yaml.Node, instName string) (PositionExpr, error) {
	var p PositionExpr
	kind, _ := scalarStr(mapGet(n, "kind"))
	switch kind {
	case "literal":
		v, ok := scalarInt(mapGet(n, "value"))
		if !ok {
			return p, parseErrorf(n, "instance %q: literal position requires 'value'", instName)
		}
		p.Kind = PositionLiteral
		p.Literal = v
	case "field_ref":
		path, ok := scalarStr(mapGet(n, "path"))
		if !ok {
			return p, parseErrorf(n, "instance %q: field_ref position requires 'path'", instName)
		}
		p.Kind = PositionFieldRef
		p.Path = path
	case "from_end":
		v, ok := scalarInt(mapGet(n, "value"))
		if !ok {
			return p, parseErrorf(n, "instance %q: from_end position requires 'value'", instName)
		}
		p.Kind = PositionFromEnd
		p.FromEnd = v
	default:
		return p, parseErrorf(n, "instance %q: unknown position kind %q", instName, kind)
	}
	return p, nil
}
