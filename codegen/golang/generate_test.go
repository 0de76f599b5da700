package golang

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/binschema/binschema/schema"
)

func mustParseValidate(t *testing.T, doc string) *schema.Schema {
	t.Helper()
	s, err := schema.Parse([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, schema.Validate(s))
	return s
}

func TestGenerateSimpleSequenceShape(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: Point
    kind: sequence
    fields:
      - name: x
        kind: int
        width: 32
        signed: true
      - name: y
        kind: int
        width: 32
        signed: true
`)
	out, err := Generate(s)
	require.NoError(t, err)
	src := string(out)

	require.Contains(t, src, "type Point struct {")
	require.Contains(t, src, "X int32")
	require.Contains(t, src, "Y int32")
	require.Contains(t, src, "func (m *Point) Encode(w *bitio.Writer) error {")
	require.Contains(t, src, "func DecodePoint(r *bitio.Reader) (*Point, error) {")
}

func TestGenerateComputedLengthUsesPlaceholderAndPatch(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: Msg
    kind: sequence
    fields:
      - name: length
        kind: int
        width: 16
        computed: {kind: length_of, target: payload}
      - name: payload
        kind: array
        length_kind: fixed
        length: 3
        item: {kind: int, width: 8}
`)
	out, err := Generate(s)
	require.NoError(t, err)
	src := string(out)

	require.Contains(t, src, "w.WriteU16(0, bitio.BigEndian)")
	require.Contains(t, src, "ln := len(m.Payload)")
	require.Contains(t, src, "w.PatchU16(lengthStart,")
}

func TestGenerateCRCFieldEmitsPlaceholderAndCRC32Patch(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: Frame
    kind: sequence
    fields:
      - name: payload
        kind: array
        length_kind: fixed
        length: 4
        item: {kind: int, width: 8}
      - name: checksum
        kind: crc
        width: 32
        covers: from_start
`)
	out, err := Generate(s)
	require.NoError(t, err)
	src := string(out)

	require.Contains(t, src, "Checksum uint32")
	require.Contains(t, src, "bitio.CRC32(w.Bytes()[0:checksumStart])")
	require.Contains(t, src, "w.PatchU32(checksumStart,")
}

func TestGenerateConditionalFieldGuardsBothDirections(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: Opt
    kind: sequence
    fields:
      - name: flag
        kind: int
        width: 8
      - name: extra
        kind: int
        width: 16
        if: "flag == 1"
`)
	out, err := Generate(s)
	require.NoError(t, err)
	src := string(out)

	// Once in Encode, once in DecodeOpt.
	require.Equal(t, 2, strings.Count(src, "if (int64(m.Flag) == 1) {"))
}

func TestGenerateCompoundConditionalLowersThroughExpr(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: Opt
    kind: sequence
    fields:
      - name: flags
        kind: int
        width: 8
      - name: extra
        kind: int
        width: 16
        if: "(flags & 3) != 0 && flags < 128"
`)
	out, err := Generate(s)
	require.NoError(t, err)
	src := string(out)

	// Every identifier is qualified and every operator parenthesized, so
	// the bitmask gate survives the trip into Go source.
	require.Contains(t, src, "if (((int64(m.Flags) & 3) != 0) && (int64(m.Flags) < 128)) {")
}

func TestGeneratePeekUnionEmitsWrapperStructAndDispatch(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: TypeA
    kind: sequence
    fields:
      - name: a
        kind: int
        width: 8
  - name: TypeB
    kind: sequence
    fields:
      - name: b
        kind: int
        width: 16
  - name: Msg
    kind: sequence
    fields:
      - name: body
        kind: union
        discriminator: {kind: peek, peek_width: 8}
        variants:
          - when: "value == 1"
            target_type: TypeA
          - when: "value == 2"
            target_type: TypeB
`)
	out, err := Generate(s)
	require.NoError(t, err)
	src := string(out)

	require.Contains(t, src, "type MsgBodyUnion struct {")
	require.Contains(t, src, "VariantType string")
	require.Contains(t, src, "TypeA *TypeA")
	require.Contains(t, src, "TypeB *TypeB")
	require.Contains(t, src, "func DecodeMsgBodyUnion(r *bitio.Reader) (*MsgBodyUnion, error) {")
	require.Contains(t, src, "peeked, err := r.PeekBits(8)")
	require.Contains(t, src, "case (value == 1):")
}

func TestGenerateCompoundWhenClause(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: TypeA
    kind: sequence
    fields:
      - name: a
        kind: int
        width: 8
  - name: TypeB
    kind: sequence
    fields:
      - name: b
        kind: int
        width: 8
  - name: Msg
    kind: sequence
    fields:
      - name: body
        kind: union
        discriminator: {kind: peek, peek_width: 8}
        variants:
          - when: "value == 1 || value == 3"
            target_type: TypeA
          - when: "(value & 0xF0) == 0x20"
            target_type: TypeB
`)
	out, err := Generate(s)
	require.NoError(t, err)
	src := string(out)

	require.Contains(t, src, "case ((value == 1) || (value == 3)):")
	require.Contains(t, src, "case ((value & 240) == 32):")
}

func TestGenerateWhenClauseRejectsFieldReference(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: TypeA
    kind: sequence
    fields:
      - name: a
        kind: int
        width: 8
  - name: Msg
    kind: sequence
    fields:
      - name: body
        kind: union
        discriminator: {kind: peek, peek_width: 8}
        variants:
          - when: "tag == 1"
            target_type: TypeA
`)
	_, err := Generate(s)
	require.Error(t, err)
	require.Contains(t, err.Error(), "may reference only")
}

func TestGenerateFieldBasedUnionPassesDiscriminatorValue(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: TypeA
    kind: sequence
    fields:
      - name: a
        kind: int
        width: 8
  - name: TypeB
    kind: sequence
    fields:
      - name: b
        kind: int
        width: 16
  - name: Msg
    kind: sequence
    fields:
      - name: kind
        kind: int
        width: 8
      - name: body
        kind: union
        discriminator: {kind: field, field: kind}
        variants:
          - when: "value == 1"
            target_type: TypeA
          - when: "value == 2"
            target_type: TypeB
`)
	out, err := Generate(s)
	require.NoError(t, err)
	src := string(out)

	require.Contains(t, src, "func DecodeMsgBodyUnion(r *bitio.Reader, value int64) (*MsgBodyUnion, error) {")
	require.Contains(t, src, "body, err := DecodeMsgBodyUnion(r, int64(m.Kind))")
}

func TestGenerateInstanceAccessorStateMachine(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: Target
    kind: sequence
    fields:
      - name: v
        kind: int
        width: 8
  - name: Container
    kind: sequence
    fields:
      - name: offset
        kind: int
        width: 32
    instances:
      - name: lazy
        target_type: Target
        position: {kind: field_ref, path: offset}
`)
	out, err := Generate(s)
	require.NoError(t, err)
	src := string(out)

	require.Contains(t, src, "func (c *Container) Lazy() (*Target, error) {")
	require.Contains(t, src, "circular reference evaluating instance")
	require.Contains(t, src, "pos = int64(c.Offset)")
	require.Contains(t, src, "sub := c.__r.Clone()")
}

func TestGeneratePointerFieldDecodeAppliesOffsetMask(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: Target
    kind: sequence
    fields:
      - name: v
        kind: int
        width: 8
  - name: Container
    kind: sequence
    fields:
      - name: ptr
        kind: pointer
        stored_width: 32
        target_type: Target
        offset_mask: 0xFFFFFF
`)
	out, err := Generate(s)
	require.NoError(t, err)
	src := string(out)

	require.Contains(t, src, "Ptr *Target")
	require.Contains(t, src, "ptrOff &= 16777215")
	require.Contains(t, src, "sub := r.Clone()")
	require.Contains(t, src, "return fmt.Errorf(\"pointer field")
}
