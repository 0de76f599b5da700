// Package schema holds the normalized, validated in-memory representation
// of a BinSchema document: types, fields, computed expressions,
// discriminators, conditionals, instances, and global config. Everything
// downstream (the expression evaluator, the planner, the code generator)
// assumes a Schema returned by Parse has already passed Validate.
package schema

// Endianness is the schema-level or per-field byte order for multi-byte
// integers.
type Endianness string

const (
	BigEndian    Endianness = "big"
	LittleEndian Endianness = "little"
)

// BitOrder controls which end of a byte bit fields fill first.
type BitOrder string

const (
	MSBFirst BitOrder = "msb_first"
	LSBFirst BitOrder = "lsb_first"
)

// Config is the schema's global configuration, inherited by any field that
// doesn't declare its own override.
type Config struct {
	Endianness Endianness `yaml:"endianness,omitempty" json:"endianness,omitempty"`
	BitOrder   BitOrder   `yaml:"bit_order,omitempty" json:"bit_order,omitempty"`
	// Strict, when true, makes the interp package reject ascii characters
	// >= 128 on both encode and decode instead of passing them through.
	// Generated code does not read it.
	Strict bool `yaml:"strict,omitempty" json:"strict,omitempty"`
}

// EffectiveEndianness returns the configured endianness, defaulting to
// big-endian when unset.
func (c Config) EffectiveEndianness() Endianness {
	if c.Endianness == "" {
		return BigEndian
	}
	return c.Endianness
}

// EffectiveBitOrder returns the configured bit order, defaulting to
// MSB-first when unset.
func (c Config) EffectiveBitOrder() BitOrder {
	if c.BitOrder == "" {
		return MSBFirst
	}
	return c.BitOrder
}

// Schema is a fully parsed (but not necessarily yet validated) BinSchema
// document.
type Schema struct {
	Config Config
	// Types preserves declaration order, which matters for codegen output
	// stability even though lookups go through ByName.
	Types []*TypeDef

	byName map[string]*TypeDef
}

// ByName resolves a type name, returning false if it doesn't exist.
func (s *Schema) ByName(name string) (*TypeDef, bool) {
	if s.byName == nil {
		s.index()
	}
	t, ok := s.byName[name]
	return t, ok
}

func (s *Schema) index() {
	s.byName = make(map[string]*TypeDef, len(s.Types))
	for _, t := range s.Types {
		s.byName[t.Name] = t
	}
}

// TypeKind is the closed set of type definition shapes.
type TypeKind int

const (
	KindSequence TypeKind = iota
	KindUnion
	KindAlias
)

// TypeDef is one named entry in the schema's type map.
type TypeDef struct {
	Name string
	Kind TypeKind

	// KindSequence
	Fields    []*Field
	Instances []*Instance

	// KindUnion
	Union *Union

	// KindAlias
	Alias *Field
}

// Union is a discriminated-union type definition: a discriminator plus an
// ordered list of variants, evaluated in declaration order.
type Union struct {
	Discriminator Discriminator
	Variants      []Variant
}

// DiscriminatorKind distinguishes a peek-based union (reads ahead without
// consuming) from a field-based one (keys off an already-decoded field).
type DiscriminatorKind int

const (
	DiscriminatorPeek DiscriminatorKind = iota
	DiscriminatorField
)

// Discriminator selects which variant of a union applies.
type Discriminator struct {
	Kind DiscriminatorKind

	// DiscriminatorPeek
	PeekWidth      int // 8, 16, or 32
	PeekEndianness Endianness

	// DiscriminatorField
	FieldPath string // dotted path to an earlier field; never carries endianness
}

// Variant is one arm of a discriminated union.
type Variant struct {
	When       string // expression compared against the synthetic name `value`
	TargetType string
}

// Field is one member of a sequence type (or the sole field of an alias
// type). Exactly one Kind-specific payload below is populated, selected by
// Kind.
type Field struct {
	Name string
	Kind FieldKind

	// Modifiers, mutually exclusive with each other except Conditional,
	// which may combine with either.
	Const      *ConstValue
	Computed   *Computed
	Conditional string // boolean expression; field present only if true

	Endianness Endianness // "" inherits schema config

	Int    *IntField
	Bits   *BitsField
	Varint *VarintField
	Array  *ArrayField
	Str    *StringField
	Ref    *TypeRefField
	Union  *UnionField
	Ptr    *PointerField
	Opt    *OptionalField
	CRC    *CRCField
}

// FieldKind is the closed set of field kinds.
type FieldKind int

const (
	FieldInt FieldKind = iota
	FieldBits
	FieldVarint
	FieldArray
	FieldString
	FieldTypeRef
	FieldUnion
	FieldPointer
	FieldOptional
	FieldCRC
)

// ConstValue is a fixed value a field always carries: omitted from encoder
// input, present (and checked) in decoded output.
type ConstValue struct {
	Int    *int64
	Str    string
	IsStr  bool
	Bytes  []byte
	IsByte bool
}

// ComputedKind is the closed set of ways a field can be derived at encode
// time from other fields.
type ComputedKind int

const (
	ComputedLengthOf ComputedKind = iota
	ComputedPositionOf
)

// Computed declares how to fill a field at encode time.
type Computed struct {
	Kind ComputedKind

	// ComputedLengthOf / ComputedPositionOf
	Target string

	// ComputedLengthOf only: measure from just after this field to end of
	// sequence, instead of measuring Target's own length.
	FromAfterField string
}

// IntField is a fixed-width integer.
type IntField struct {
	Width  int // 8, 16, 32, 64
	Signed bool
}

// BitsField is a 1-64 bit packed field.
type BitsField struct {
	Width int
}

// VarintEncodingName names one of the four variable-length encodings.
type VarintEncodingName string

const (
	VarintDER    VarintEncodingName = "der"
	VarintLEB128 VarintEncodingName = "leb128"
	VarintEBML   VarintEncodingName = "ebml"
	VarintVLQ    VarintEncodingName = "vlq"
)

type VarintField struct {
	Encoding VarintEncodingName
}

// ArrayKind is the closed set of array length strategies.
type ArrayKind int

const (
	ArrayFixed ArrayKind = iota
	ArrayLengthPrefixed
	ArrayByteLengthPrefixed
	ArrayLengthPrefixedItems
	ArrayFieldReferenced
	ArrayNullTerminated
	ArrayEOFTerminated
)

// ArrayField describes a repeated element with one of the seven length
// strategies.
type ArrayField struct {
	Kind ArrayKind
	Item *Field

	FixedLength     int    // ArrayFixed
	LengthPrefix    string // ArrayLengthPrefixed / ArrayByteLengthPrefixed: "uint8"|"uint16"|"uint32"
	ItemLengthPrefix string // ArrayLengthPrefixedItems: per-item length prefix width name
	FieldRef        string // ArrayFieldReferenced: name of an earlier field holding the count
}

// StringKind mirrors ArrayKind's shape but for the string field kind.
type StringKind int

const (
	StringFixed StringKind = iota
	StringLengthPrefixed
	StringNullTerminated
	StringFieldReferenced
)

type StringEncoding string

const (
	EncodingUTF8   StringEncoding = "utf8"
	EncodingASCII  StringEncoding = "ascii"
	EncodingLatin1 StringEncoding = "latin1"
)

type StringField struct {
	Kind     StringKind
	Encoding StringEncoding

	FixedLength  int    // StringFixed
	LengthPrefix string // StringLengthPrefixed: "uint8"|"uint16"|"uint32"
	FieldRef     string // StringFieldReferenced
}

// TypeRefField names another type in the schema.
type TypeRefField struct {
	TypeName string
}

// UnionField is an inline or referenced discriminated union.
type UnionField struct {
	Inline     *Union
	TypeName   string // non-empty when referencing a top-level union TypeDef instead of inlining
}

// PointerField stores an integer offset into a named window, plus a target
// type to parse there.
type PointerField struct {
	StoredWidth int // 8, 16, 32, 64 — width of the on-wire stored integer
	Window      string
	TargetType  string
	OffsetMask  *uint64 // ANDed onto the stored integer after it is read in its declared byte order
}

// OptionalField is a presence indicator followed by a value iff present.
type OptionalField struct {
	PresenceWidth int // bits in the presence indicator byte/type; 8 is the common case
	Value         *Field
}

// CRCField is a computed checksum over a byte span,
// placeholder-and-patched the same way length_of/position_of are. The
// parser normalizes the covers/after_field spellings so AfterField is
// the single source of truth: empty means coverage from the start of
// the sequence, otherwise coverage begins after the named field.
type CRCField struct {
	Width      int    // 32 (only IEEE CRC-32 is supported, via bitio.CRC32)
	Covers     string // normalized: "from_start" | "from_after_field"
	AfterField string
}

// Instance is a random-access field belonging to a sequence type, resolved
// lazily by absolute position rather than cursor order.
type Instance struct {
	Name       string
	TargetType string

	Position     PositionExpr
	Size         *int // optional size window, bytes
	Alignment    *int // optional; must be a power of two
	Conditional  string
}

// PositionKind is the closed set of ways an instance's position can be
// expressed.
type PositionKind int

const (
	PositionLiteral PositionKind = iota
	PositionFieldRef
	PositionFromEnd
)

type PositionExpr struct {
	Kind    PositionKind
	Literal int64  // PositionLiteral
	Path    string // PositionFieldRef: dotted path to an earlier field
	FromEnd int64  // PositionFromEnd: negative offset from end of stream (stored as positive magnitude)
}
