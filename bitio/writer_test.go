package bitio

import (
	"bytes"
	"testing"
)

func TestWriteU8(t *testing.T) {
	w := NewWriter(MSBFirst, BigEndian)
	if err := w.WriteU8(0x42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := w.Finish(); !bytes.Equal(got, []byte{0x42}) {
		t.Errorf("Finish() = %#v, want [0x42]", got)
	}
}

func TestWriteU64BigEndian(t *testing.T) {
	w := NewWriter(MSBFirst, BigEndian)
	if err := w.WriteU64(0x123456789ABCDEF0, BigEndian); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE, 0xF0}
	if got := w.Finish(); !bytes.Equal(got, want) {
		t.Errorf("Finish() = %#v, want %#v", got, want)
	}
}

func TestWriteBitsSpanningMSBFirst(t *testing.T) {
	w := NewWriter(MSBFirst, BigEndian)
	if err := w.WriteBits(1, 1); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteBits(0x42, 8); err != nil {
		t.Fatal(err)
	}
	want := []byte{0xA1, 0x00}
	if got := w.Finish(); !bytes.Equal(got, want) {
		t.Errorf("Finish() = %#v, want %#v", got, want)
	}
}

func TestWriteBitsSpanningLSBFirst(t *testing.T) {
	w := NewWriter(LSBFirst, BigEndian)
	if err := w.WriteBits(1, 1); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteBits(0x42, 8); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x85, 0x00}
	if got := w.Finish(); !bytes.Equal(got, want) {
		t.Errorf("Finish() = %#v, want %#v", got, want)
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	widths := []int{1, 3, 5, 8, 13, 24, 32, 48, 64}
	for _, order := range []BitOrder{MSBFirst, LSBFirst} {
		w := NewWriter(order, BigEndian)
		for _, width := range widths {
			v := uint64(1)<<uint(width-1) | 1
			if width == 64 {
				v = 0xDEADBEEFCAFEBABE
			}
			if err := w.WriteBits(v, width); err != nil {
				t.Fatalf("WriteBits(%d) failed: %v", width, err)
			}
		}
		data := w.Finish()
		r := NewBufferReader(data, order, BigEndian)
		for _, width := range widths {
			want := uint64(1)<<uint(width-1) | 1
			if width == 64 {
				want = 0xDEADBEEFCAFEBABE
			}
			got, err := r.ReadBits(width)
			if err != nil {
				t.Fatalf("order=%v width=%d: %v", order, width, err)
			}
			if got != want {
				t.Errorf("order=%v width=%d: got %#x, want %#x", order, width, got, want)
			}
		}
	}
}

func TestMisalignedByteWriteIsFatal(t *testing.T) {
	w := NewWriter(MSBFirst, BigEndian)
	if err := w.WriteBits(1, 3); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteU16(1, BigEndian); err == nil {
		t.Fatal("expected misalignment error, got nil")
	}
}

func TestPatchU32(t *testing.T) {
	w := NewWriter(MSBFirst, BigEndian)
	offset := w.CurrentByteOffset()
	if err := w.WriteU32(0, BigEndian); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteBytes([]byte{0x01, 0x02}); err != nil {
		t.Fatal(err)
	}
	w.PatchU32(offset, 42, BigEndian)
	want := []byte{0x00, 0x00, 0x00, 0x2A, 0x01, 0x02}
	if got := w.Finish(); !bytes.Equal(got, want) {
		t.Errorf("Finish() = %#v, want %#v", got, want)
	}
}
