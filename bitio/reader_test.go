package bitio

import (
	"bytes"
	"testing"
)

func TestReadU8(t *testing.T) {
	r := NewBufferReader([]byte{0x42}, MSBFirst, BigEndian)
	v, err := r.ReadU8()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0x42 {
		t.Errorf("ReadU8() = %#x, want 0x42", v)
	}
}

func TestReadU64Endianness(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		endian Endianness
		want   uint64
	}{
		{"big endian", []byte{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE, 0xF0}, BigEndian, 0x123456789ABCDEF0},
		{"little endian", []byte{0xF0, 0xDE, 0xBC, 0x9A, 0x78, 0x56, 0x34, 0x12}, LittleEndian, 0x123456789ABCDEF0},
		{"zero", make([]byte, 8), BigEndian, 0},
		{"max", []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, BigEndian, 0xFFFFFFFFFFFFFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewBufferReader(tt.data, MSBFirst, tt.endian)
			got, err := r.ReadU64(tt.endian)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadU64() = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestReadBitsSpanning(t *testing.T) {
	// flag (1 bit) = 1, value (8 bits) = 0x42, packed MSB-first -> 0xA1, 0x00
	r := NewBufferReader([]byte{0xA1, 0x00}, MSBFirst, BigEndian)
	flag, err := r.ReadBits(1)
	if err != nil || flag != 1 {
		t.Fatalf("flag = %d, err = %v, want 1", flag, err)
	}
	value, err := r.ReadBits(8)
	if err != nil || value != 0x42 {
		t.Fatalf("value = %#x, err = %v, want 0x42", value, err)
	}
}

func TestReadBitsSpanningLSBFirst(t *testing.T) {
	r := NewBufferReader([]byte{0x85, 0x00}, LSBFirst, BigEndian)
	flag, err := r.ReadBits(1)
	if err != nil || flag != 1 {
		t.Fatalf("flag = %d, err = %v, want 1", flag, err)
	}
	value, err := r.ReadBits(8)
	if err != nil || value != 0x42 {
		t.Fatalf("value = %#x, err = %v, want 0x42", value, err)
	}
}

func TestMisalignedMultiByteReadIsFatal(t *testing.T) {
	r := NewBufferReader([]byte{0xFF, 0x00}, MSBFirst, BigEndian)
	if _, err := r.ReadBits(3); err != nil {
		t.Fatalf("unexpected error priming bit offset: %v", err)
	}
	if _, err := r.ReadU16(BigEndian); err == nil {
		t.Fatal("expected misalignment error, got nil")
	}
}

func TestReadOutOfBounds(t *testing.T) {
	r := NewBufferReader([]byte{0x01}, MSBFirst, BigEndian)
	if _, err := r.ReadBytes(2); err == nil {
		t.Fatal("expected out-of-bounds error, got nil")
	}
}

func TestSeekAndCurrentPosition(t *testing.T) {
	r := NewBufferReader([]byte{0x00, 0x11, 0x22, 0x33}, MSBFirst, BigEndian)
	if err := r.Seek(2); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	byteOff, bitOff := r.CurrentPosition()
	if byteOff != 2 || bitOff != 0 {
		t.Fatalf("position = (%d, %d), want (2, 0)", byteOff, bitOff)
	}
	v, err := r.ReadU8()
	if err != nil || v != 0x22 {
		t.Fatalf("ReadU8() = %#x, err = %v, want 0x22", v, err)
	}
}

func TestPeekDoesNotAdvance(t *testing.T) {
	r := NewBufferReader([]byte{0xAB, 0xCD}, MSBFirst, BigEndian)
	peeked, err := r.PeekBits(8)
	if err != nil || peeked != 0xAB {
		t.Fatalf("PeekBits() = %#x, err = %v, want 0xAB", peeked, err)
	}
	read, err := r.ReadU8()
	if err != nil || read != 0xAB {
		t.Fatalf("ReadU8() after peek = %#x, err = %v, want 0xAB (peek must not advance)", read, err)
	}
}

func TestStreamReaderSequentialThenLength(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	var warned string
	r := NewStreamReader(bytes.NewReader(data), MSBFirst, BigEndian, func(msg string) { warned = msg })
	v, err := r.ReadU8()
	if err != nil || v != 1 {
		t.Fatalf("ReadU8() = %d, err = %v, want 1", v, err)
	}
	if warned != "" {
		t.Fatalf("unexpected warning before any length query: %q", warned)
	}
	size, ok, err := r.Size()
	if err != nil || !ok || size != int64(len(data)) {
		t.Fatalf("Size() = (%d, %v), err = %v, want (%d, true)", size, ok, err, len(data))
	}
	if warned == "" {
		t.Fatal("expected a buffering warning once total length was requested")
	}
}
