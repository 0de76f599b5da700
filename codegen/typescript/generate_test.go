package typescript

import (
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

	require.Contains(t, src, `import * as bitio from "./bitio";`)
	require.Contains(t, src, "export interface Point {")
	require.Contains(t, src, "x: number;")
	require.Contains(t, src, "y: number;")
	require.Contains(t, src, "export function encodePoint(m: Point, w: bitio.Writer): void {")
	require.Contains(t, src, "export function decodePoint(r: bitio.Reader): Point {")
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

	// The computed field is reserved at its declared offset and patched
	// once the target's byte span is known.
	require.Contains(t, src, "lengthStart = w.currentByteOffset();")
	require.Contains(t, src, "w.writeU16(0, bitio.Endian.Big);")
	require.Contains(t, src, "const ln = m.payload.length;")
	require.Contains(t, src, "w.patchU16(lengthStart, ln, bitio.Endian.Big);")
}

func TestGenerateInstanceAccessorIsMemoizedAndCycleGuarded(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: Target
    kind: sequence
    fields:
      - name: value
        kind: int
        width: 16
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

	// Instance-bearing types become classes so the accessor can carry its
	// own state machine.
	require.Contains(t, src, "export class Container {")
	require.Contains(t, src, "lazy(): Target | null {")
	require.Contains(t, src, "circular reference evaluating instance lazy")
	require.Contains(t, src, "pos = this.offset;")
	require.Contains(t, src, "const sub = this.__r.clone();")
	require.Contains(t, src, "this.lazyMemo = v;")
}

func TestGenerateInstanceAlignmentCheck(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: Target
    kind: sequence
    fields:
      - name: value
        kind: int
        width: 8
  - name: Container
    kind: sequence
    fields:
      - name: pad
        kind: int
        width: 8
    instances:
      - name: aligned
        target_type: Target
        position: {kind: literal, value: 8}
        alignment: 4
`)
	out, err := Generate(s)
	require.NoError(t, err)
	src := string(out)

	require.Contains(t, src, "if (pos % 4 !== 0)")
	require.Contains(t, src, "is not aligned to 4 bytes")
}

func TestGeneratePeekUnionDispatch(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: TypeA
    kind: sequence
    fields:
      - name: tag
        kind: int
        width: 8
  - name: TypeB
    kind: sequence
    fields:
      - name: tag
        kind: int
        width: 8
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

	require.Contains(t, src, "export type MsgBodyUnion =")
	require.Contains(t, src, `{ variantType: "TypeA"; value: TypeA } |`)
	require.Contains(t, src, `{ variantType: "TypeB"; value: TypeB };`)
	require.Contains(t, src, "const value = r.peekBits(8);")
	require.Contains(t, src, `if ((value == 1)) { return { variantType: "TypeA", value: decodeTypeA(r) }; }`)
	require.Contains(t, src, "no union variant matched discriminator value")
}

func TestGenerateFieldBasedUnionTakesDecodedValue(t *testing.T) {
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

	require.Contains(t, src, "export function decodeMsgBodyUnion(r: bitio.Reader, value: number): MsgBodyUnion {")
	require.Contains(t, src, "m.body = decodeMsgBodyUnion(r, m.kind);")
}

func TestGenerateConstStringRoundTrip(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: Header
    kind: sequence
    fields:
      - name: magic
        kind: string
        length_kind: fixed
        length: 4
        const: SIZE
      - name: size
        kind: int
        width: 32
`)
	out, err := Generate(s)
	require.NoError(t, err)
	src := string(out)

	// Encoders write the literal regardless of input; decoders equality-check.
	require.Contains(t, src, `w.writeFixedString("SIZE", 4);`)
	require.Contains(t, src, "m.magic = r.readFixedString(4);")
	require.Contains(t, src, `if (m.magic !== "SIZE")`)
	require.Contains(t, src, "const mismatch")
}

func TestGenerateOptionalAndConditional(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: Msg
    kind: sequence
    fields:
      - name: flags
        kind: int
        width: 8
      - name: extra
        kind: int
        width: 16
        if: "flags > 0"
      - name: note
        kind: optional
        value: {kind: int, width: 8}
`)
	out, err := Generate(s)
	require.NoError(t, err)
	src := string(out)

	require.Contains(t, src, "extra: number;")
	require.Contains(t, src, "if ((m.flags > 0)) {")
	require.Contains(t, src, "note: number | null;")
	require.Contains(t, src, "const notePresent = r.readBits(")
	require.Contains(t, src, "m.note = null;")
}

func TestGenerateCompoundConditionalAndWhenClause(t *testing.T) {
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
      - name: flags
        kind: int
        width: 8
      - name: extra
        kind: int
        width: 16
        if: "(flags & 3) != 0 && flags < 128"
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

	require.Contains(t, src, "if ((((m.flags & 3) != 0) && (m.flags < 128))) {")
	require.Contains(t, src, "if (((value == 1) || (value == 3)))")
	require.Contains(t, src, "if (((value & 240) == 32))")
}

func TestGenerateTargetMetadata(t *testing.T) {
	var tgt Target
	require.Equal(t, "typescript", tgt.Name())
	require.Equal(t, "ts", tgt.FileExtension())
}
