package schema

import "testing"

func TestParseCompactBasic(t *testing.T) {
	td, err := ParseCompact("Sample", ">BHI")
	if err != nil {
		t.Fatalf("ParseCompact() error: %v", err)
	}
	if len(td.Fields) != 3 {
		t.Fatalf("got %d fields, want 3", len(td.Fields))
	}
	if td.Fields[0].Int.Width != 8 || td.Fields[0].Int.Signed {
		t.Errorf("field 0 = %+v, want unsigned 8", td.Fields[0].Int)
	}
	if td.Fields[1].Int.Width != 16 {
		t.Errorf("field 1 width = %d, want 16", td.Fields[1].Int.Width)
	}
	if td.Fields[2].Int.Width != 32 {
		t.Errorf("field 2 width = %d, want 32", td.Fields[2].Int.Width)
	}
	for _, f := range td.Fields {
		if f.Endianness != BigEndian {
			t.Errorf("field %q endianness = %q, want big", f.Name, f.Endianness)
		}
	}
}

func TestParseCompactLittleEndianAndRepeat(t *testing.T) {
	td, err := ParseCompact("Sample", "<4B")
	if err != nil {
		t.Fatalf("ParseCompact() error: %v", err)
	}
	if len(td.Fields) != 4 {
		t.Fatalf("got %d fields, want 4", len(td.Fields))
	}
	for _, f := range td.Fields {
		if f.Endianness != LittleEndian {
			t.Errorf("field %q endianness = %q, want little", f.Name, f.Endianness)
		}
	}
}

func TestParseCompactArrayBracket(t *testing.T) {
	td, err := ParseCompact("Sample", ">H[4]")
	if err != nil {
		t.Fatalf("ParseCompact() error: %v", err)
	}
	if len(td.Fields) != 1 || td.Fields[0].Kind != FieldArray {
		t.Fatalf("got %+v, want single array field", td.Fields)
	}
	if td.Fields[0].Array.FixedLength != 4 {
		t.Errorf("array length = %d, want 4", td.Fields[0].Array.FixedLength)
	}
}

func TestParseCompactUnknownChar(t *testing.T) {
	if _, err := ParseCompact("Sample", ">Z"); err == nil {
		t.Fatal("expected error for unknown format character")
	}
}

func TestBinaryExportImportRoundTrip(t *testing.T) {
	orig, err := ParseCompact("Sample", ">BHIq")
	if err != nil {
		t.Fatalf("ParseCompact() error: %v", err)
	}
	data, err := ExportBinary(orig)
	if err != nil {
		t.Fatalf("ExportBinary() error: %v", err)
	}
	got, err := ImportBinary("Sample", data)
	if err != nil {
		t.Fatalf("ImportBinary() error: %v", err)
	}
	if len(got.Fields) != len(orig.Fields) {
		t.Fatalf("got %d fields, want %d", len(got.Fields), len(orig.Fields))
	}
	for i := range orig.Fields {
		o, g := orig.Fields[i].Int, got.Fields[i].Int
		if o.Width != g.Width || o.Signed != g.Signed {
			t.Errorf("field %d: got %+v, want %+v", i, g, o)
		}
	}
}

func TestImportBinaryRejectsBadMagic(t *testing.T) {
	if _, err := ImportBinary("X", []byte{0x00, 0x01}); err == nil {
		t.Fatal("expected error for bad magic byte")
	}
}
