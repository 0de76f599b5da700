package interp

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/binschema/binschema/bitio"
	"github.com/binschema/binschema/schema"
)

func mustParseValidate(t *testing.T, doc string) *schema.Schema {
	t.Helper()
	s, err := schema.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("schema.Parse() error: %v", err)
	}
	if err := schema.Validate(s); err != nil {
		t.Fatalf("schema.Validate() error: %v", err)
	}
	return s
}

func TestEncodeDecodeSimpleSequence(t *testing.T) {
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
	values := map[string]any{"x": int64(-5), "y": int64(42)}
	data, err := Encode(s, "Point", values)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if len(data) != 8 {
		t.Fatalf("got %d bytes, want 8", len(data))
	}
	r := bitio.NewBufferReader(data, bitio.MSBFirst, bitio.BigEndian)
	got, err := Decode(s, "Point", r)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got["x"] != int64(-5) || got["y"] != int64(42) {
		t.Errorf("got %+v, want x=-5 y=42", got)
	}
}

func TestEncodeDecodeLengthOfRoundTrip(t *testing.T) {
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
	values := map[string]any{
		"payload": []any{int64(1), int64(2), int64(3)},
	}
	data, err := Encode(s, "Msg", values)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if data[0] != 0x00 || data[1] != 0x03 {
		t.Errorf("length prefix = %#v, want [0x00 0x03]", data[:2])
	}
	r := bitio.NewBufferReader(data, bitio.MSBFirst, bitio.BigEndian)
	got, err := Decode(s, "Msg", r)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got["length"] != int64(3) {
		t.Errorf("decoded length = %v, want 3", got["length"])
	}
}

func TestEncodeDecodeCRCRoundTrip(t *testing.T) {
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
	values := map[string]any{"payload": []any{int64(1), int64(2), int64(3), int64(4)}}
	data, err := Encode(s, "Frame", values)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	want := bitio.CRC32([]byte{1, 2, 3, 4})
	got := uint32(data[4])<<24 | uint32(data[5])<<16 | uint32(data[6])<<8 | uint32(data[7])
	if got != want {
		t.Errorf("crc = %#x, want %#x", got, want)
	}
}

func TestConditionalFieldPresence(t *testing.T) {
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
	data, err := Encode(s, "Opt", map[string]any{"flag": int64(0)})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if len(data) != 1 {
		t.Fatalf("got %d bytes, want 1 (extra field omitted)", len(data))
	}
	r := bitio.NewBufferReader(data, bitio.MSBFirst, bitio.BigEndian)
	got, err := Decode(s, "Opt", r)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if _, ok := got["extra"]; ok {
		t.Error("extra field should be absent when flag == 0")
	}
}

func TestUnionDiscriminatedByPeek(t *testing.T) {
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
	r := bitio.NewBufferReader([]byte{0x01, 0x2A}, bitio.MSBFirst, bitio.BigEndian)
	got, err := Decode(s, "Msg", r)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	body, ok := got["body"].(map[string]any)
	if !ok {
		t.Fatalf("body = %+v, want map", got["body"])
	}
	if body["a"] != int64(0x01) {
		t.Errorf("body.a = %v, want 0x01", body["a"])
	}
}

func TestRoundTripAllConcurrent(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: Point
    kind: sequence
    fields:
      - name: x
        kind: int
        width: 16
        signed: false
`)
	var cases []Case
	for i := 0; i < 20; i++ {
		cases = append(cases, Case{TypeName: "Point", Values: map[string]any{"x": int64(i)}})
	}
	results, err := RoundTripAll(context.Background(), s, cases)
	if err != nil {
		t.Fatalf("RoundTripAll() error: %v", err)
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("case %d: %v", i, r.Err)
		}
		if r.Decoded["x"] != int64(i) {
			t.Errorf("case %d: got x=%v, want %d", i, r.Decoded["x"], i)
		}
	}
}

func TestConstStringHeaderByteExact(t *testing.T) {
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
	data, err := Encode(s, "Header", map[string]any{"size": int64(42)})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	want := []byte{0x53, 0x49, 0x5A, 0x45, 0x00, 0x00, 0x00, 0x2A}
	if !bytes.Equal(data, want) {
		t.Fatalf("Encode() = %#v, want %#v", data, want)
	}

	r := bitio.NewBufferReader(data, bitio.MSBFirst, bitio.BigEndian)
	got, err := Decode(s, "Header", r)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got["magic"] != "SIZE" || got["size"] != int64(42) {
		t.Errorf("decoded %+v, want magic=SIZE size=42", got)
	}

	bad := append([]byte{}, data...)
	bad[0] = 'X'
	r = bitio.NewBufferReader(bad, bitio.MSBFirst, bitio.BigEndian)
	if _, err := Decode(s, "Header", r); err == nil {
		t.Error("Decode() with corrupted magic should fail with a const mismatch")
	}
}

func TestConstStringShorterThanFieldIsZeroPadded(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: Tag
    kind: sequence
    fields:
      - name: magic
        kind: string
        length_kind: fixed
        length: 4
        const: OK
`)
	data, err := Encode(s, "Tag", map[string]any{})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	want := []byte{'O', 'K', 0x00, 0x00}
	if !bytes.Equal(data, want) {
		t.Fatalf("Encode() = %#v, want %#v", data, want)
	}
	r := bitio.NewBufferReader(data, bitio.MSBFirst, bitio.BigEndian)
	if _, err := Decode(s, "Tag", r); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
}

func TestComputedPacketByteExact(t *testing.T) {
	s := mustParseValidate(t, `
config:
  endianness: little
types:
  - name: Packet
    kind: sequence
    fields:
      - name: name_length
        kind: int
        width: 8
        computed: {kind: length_of, target: name}
      - name: name
        kind: string
        length_kind: field_referenced
        field_ref: name_length
      - name: payload_offset
        kind: int
        width: 16
        computed: {kind: position_of, target: payload}
      - name: payload
        kind: array
        length_kind: fixed
        length: 2
        item: {kind: int, width: 8}
`)
	values := map[string]any{
		"name":    "foo",
		"payload": []any{int64(0x11), int64(0x22)},
	}
	data, err := Encode(s, "Packet", values)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	want := []byte{0x03, 'f', 'o', 'o', 0x06, 0x00, 0x11, 0x22}
	if !bytes.Equal(data, want) {
		t.Fatalf("Encode() = %#v, want %#v", data, want)
	}

	r := bitio.NewBufferReader(data, bitio.MSBFirst, bitio.LittleEndian)
	got, err := Decode(s, "Packet", r)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got["name"] != "foo" {
		t.Errorf("decoded name = %v, want foo", got["name"])
	}
	if got["payload_offset"] != int64(6) {
		t.Errorf("decoded payload_offset = %v, want 6", got["payload_offset"])
	}
}

func TestInstanceFieldDecodeByteExact(t *testing.T) {
	s := mustParseValidate(t, `
config:
  endianness: little
types:
  - name: Data
    kind: sequence
    fields:
      - name: value_a
        kind: int
        width: 16
      - name: extra
        kind: int
        width: 8
  - name: Container
    kind: sequence
    fields:
      - name: type_tag
        kind: int
        width: 8
      - name: data_offset
        kind: int
        width: 32
      - name: data_size
        kind: int
        width: 32
    instances:
      - name: data
        target_type: Data
        position: {kind: field_ref, path: data_offset}
`)
	raw := []byte{
		0x01,
		0x09, 0x00, 0x00, 0x00,
		0x03, 0x00, 0x00, 0x00,
		0x34, 0x12,
		0xAB,
	}
	r := bitio.NewBufferReader(raw, bitio.MSBFirst, bitio.LittleEndian)
	got, err := Decode(s, "Container", r)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got["type_tag"] != int64(1) || got["data_offset"] != int64(9) {
		t.Fatalf("decoded header %+v, want type_tag=1 data_offset=9", got)
	}
	data, ok := got["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %+v, want map", got["data"])
	}
	if data["value_a"] != int64(0x1234) {
		t.Errorf("data.value_a = %v, want 0x1234", data["value_a"])
	}
	if data["extra"] != int64(0xAB) {
		t.Errorf("data.extra = %v, want 0xAB", data["extra"])
	}
}

func TestInstanceAlignmentViolation(t *testing.T) {
	s := mustParseValidate(t, `
types:
  - name: Data
    kind: sequence
    fields:
      - name: v
        kind: int
        width: 8
  - name: Container
    kind: sequence
    fields:
      - name: pad
        kind: int
        width: 8
    instances:
      - name: misaligned
        target_type: Data
        position: {kind: literal, value: 3}
        alignment: 4
`)
	raw := []byte{0x00, 0x01, 0x02, 0x03, 0x04}
	r := bitio.NewBufferReader(raw, bitio.MSBFirst, bitio.BigEndian)
	_, err := Decode(s, "Container", r)
	if err == nil {
		t.Fatal("Decode() should fail on a misaligned instance position")
	}
	if !strings.Contains(err.Error(), "Position 3 is not aligned to 4 bytes") {
		t.Errorf("error = %q, want the alignment message with position and width", err)
	}
}
