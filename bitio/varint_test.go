package bitio

import (
	"bytes"
	"testing"
)

func TestVLQEncode(t *testing.T) {
	tests := []struct {
		name string
		v    uint64
		want []byte
	}{
		{"480", 480, []byte{0x83, 0x60}},
		{"268435455", 268435455, []byte{0xFF, 0xFF, 0xFF, 0x7F}},
		{"zero", 0, []byte{0x00}},
		{"127", 127, []byte{0x7F}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter(MSBFirst, BigEndian)
			if err := w.WriteVarlen(tt.v, VLQ); err != nil {
				t.Fatalf("WriteVarlen() error: %v", err)
			}
			if got := w.Finish(); !bytes.Equal(got, tt.want) {
				t.Errorf("WriteVarlen(%d) = %#v, want %#v", tt.v, got, tt.want)
			}
		})
	}
}

func TestVLQDecode(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint64
	}{
		{"480", []byte{0x83, 0x60}, 480},
		{"268435455", []byte{0xFF, 0xFF, 0xFF, 0x7F}, 268435455},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewBufferReader(tt.data, MSBFirst, BigEndian)
			got, err := r.ReadVarlen(VLQ)
			if err != nil {
				t.Fatalf("ReadVarlen() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadVarlen() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestVLQOverflow(t *testing.T) {
	w := NewWriter(MSBFirst, BigEndian)
	if err := w.WriteVarlen(0x10000000, VLQ); err == nil {
		t.Fatal("expected overflow error for value exceeding VLQ max")
	}
}

func TestDERRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 255, 256, 65535, 1 << 40} {
		w := NewWriter(MSBFirst, BigEndian)
		if err := w.WriteVarlen(v, DER); err != nil {
			t.Fatalf("WriteVarlen(%d) error: %v", v, err)
		}
		data := w.Finish()
		r := NewBufferReader(data, MSBFirst, BigEndian)
		got, err := r.ReadVarlen(DER)
		if err != nil {
			t.Fatalf("ReadVarlen() error: %v", err)
		}
		if got != v {
			t.Errorf("round-trip DER(%d) = %d", v, got)
		}
	}
}

func TestDERSingleByteForm(t *testing.T) {
	w := NewWriter(MSBFirst, BigEndian)
	if err := w.WriteVarlen(127, DER); err != nil {
		t.Fatal(err)
	}
	if got := w.Finish(); !bytes.Equal(got, []byte{0x7F}) {
		t.Errorf("DER(127) = %#v, want [0x7F]", got)
	}
}

func TestLEB128RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 35} {
		w := NewWriter(MSBFirst, BigEndian)
		if err := w.WriteVarlen(v, LEB128); err != nil {
			t.Fatalf("WriteVarlen(%d): %v", v, err)
		}
		data := w.Finish()
		r := NewBufferReader(data, MSBFirst, BigEndian)
		got, err := r.ReadVarlen(LEB128)
		if err != nil {
			t.Fatalf("ReadVarlen(): %v", err)
		}
		if got != v {
			t.Errorf("round-trip LEB128(%d) = %d", v, got)
		}
	}
}

func TestEBMLRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 100, 127, 128, 16383, 16384, 1 << 30} {
		w := NewWriter(MSBFirst, BigEndian)
		if err := w.WriteVarlen(v, EBML); err != nil {
			t.Fatalf("WriteVarlen(%d): %v", v, err)
		}
		data := w.Finish()
		r := NewBufferReader(data, MSBFirst, BigEndian)
		got, err := r.ReadVarlen(EBML)
		if err != nil {
			t.Fatalf("ReadVarlen(): %v", err)
		}
		if got != v {
			t.Errorf("round-trip EBML(%d) = %d", v, got)
		}
	}
}

func TestCRC32(t *testing.T) {
	if CRC32(nil) != 0 {
		t.Errorf("CRC32(nil) = %#x, want 0", CRC32(nil))
	}
	if CRC32([]byte("123456789")) != 0xCBF43926 {
		t.Errorf("CRC32 check value mismatch")
	}
}
