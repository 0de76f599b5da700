package bitio

import (
	"io"
	"math"
	"os"
)

// Reader provides bit- and byte-granularity sequential access over one of
// the three backing stores (buffer, file handle, stream), selected
// automatically by the constructor used. All three present the same
// interface; only their internal fetch strategy differs.
type Reader struct {
	src        source
	bitOrder   BitOrder
	endianness Endianness

	bytePos int64 // absolute offset of the next unfetched byte
	curByte byte  // logical (bit-order-normalized) content of the in-progress byte
	curBits int   // number of bits of curByte already consumed, 0..7; 8 means none buffered
}

// NewBufferReader wraps an in-memory byte slice.
func NewBufferReader(data []byte, order BitOrder, endian Endianness) *Reader {
	return newReader(newBufferSource(data), order, endian)
}

// NewFileReader wraps an *os.File opened for reading, read on demand with a
// small read-ahead cache.
func NewFileReader(f *os.File, order BitOrder, endian Endianness) *Reader {
	return newReader(newFileSource(f), order, endian)
}

// NewStreamReader wraps a non-seekable io.Reader. onWarn, if non-nil, is
// called the first time the whole remaining stream must be buffered (a
// from-end instance position, or any call to Size).
func NewStreamReader(r io.Reader, order BitOrder, endian Endianness, onWarn func(string)) *Reader {
	return newReader(newStreamSource(r, onWarn), order, endian)
}

func newReader(src source, order BitOrder, endian Endianness) *Reader {
	return &Reader{src: src, bitOrder: order, endianness: endian, curBits: 8}
}

// CurrentPosition returns the byte offset and within-byte bit offset (0-7,
// counted in the reader's bit order) of the next bit to be read.
func (r *Reader) CurrentPosition() (byteOffset int64, bitOffset int) {
	if r.curBits == 8 {
		return r.bytePos, 0
	}
	return r.bytePos - 1, r.curBits
}

func (r *Reader) aligned() bool { return r.curBits == 8 }

func (r *Reader) fetchByte() error {
	var buf [1]byte
	n, err := r.src.readAt(buf[:], r.bytePos)
	if n < 1 {
		if err == nil {
			err = decodeErrorf(r.bytePos, "read out of bounds")
		}
		return err
	}
	r.bytePos++
	r.curByte = reorderByte(buf[0], r.bitOrder)
	r.curBits = 0
	return nil
}

// ReadBits reads n bits (1 <= n <= 64), MSB-of-result-first, i.e. the
// earliest bit read becomes the most significant bit of the returned value.
func (r *Reader) ReadBits(n int) (uint64, error) {
	if n < 1 || n > 64 {
		return 0, decodeErrorf(r.bytePos, "invalid bit width %d", n)
	}
	var result uint64
	remaining := n
	for remaining > 0 {
		if r.curBits == 8 {
			if err := r.fetchByte(); err != nil {
				return 0, err
			}
		}
		avail := 8 - r.curBits
		take := remaining
		if take > avail {
			take = avail
		}
		shift := avail - take
		chunk := (r.curByte >> uint(shift)) & maskN(take)
		result = (result << uint(take)) | uint64(chunk)
		r.curBits += take
		remaining -= take
	}
	return result, nil
}

// PeekBits reads n bits without advancing the reader.
func (r *Reader) PeekBits(n int) (uint64, error) {
	saved := *r
	v, err := r.ReadBits(n)
	*r = saved
	return v, err
}

// ReadBytes reads n whole bytes. The reader must be byte-aligned.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if !r.aligned() {
		return nil, decodeErrorf(r.bytePos, "misaligned byte read: bit offset is %d, not 0", r.curBits)
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	got, err := r.src.readAt(buf, r.bytePos)
	if err != nil {
		return nil, err
	}
	r.bytePos += int64(got)
	return buf, nil
}

func (r *Reader) requireAligned() error {
	if !r.aligned() {
		return decodeErrorf(r.bytePos, "misaligned multi-byte read: bit offset is %d, not 0", r.curBits)
	}
	return nil
}

// ReadU8/ReadU16/.../ReadI64 read fixed-width integers. Endianness applies
// only to widths above 8 bits.

func (r *Reader) ReadU8() (uint8, error) {
	if err := r.requireAligned(); err != nil {
		return 0, err
	}
	b, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadU16(e Endianness) (uint16, error) {
	b, err := r.readAlignedN(2)
	if err != nil {
		return 0, err
	}
	if e == BigEndian {
		return uint16(b[0])<<8 | uint16(b[1]), nil
	}
	return uint16(b[1])<<8 | uint16(b[0]), nil
}

func (r *Reader) ReadU32(e Endianness) (uint32, error) {
	b, err := r.readAlignedN(4)
	if err != nil {
		return 0, err
	}
	if e == BigEndian {
		return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
	}
	return uint32(b[3])<<24 | uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0]), nil
}

func (r *Reader) ReadU64(e Endianness) (uint64, error) {
	b, err := r.readAlignedN(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	if e == BigEndian {
		for i := 0; i < 8; i++ {
			v = v<<8 | uint64(b[i])
		}
	} else {
		for i := 7; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
	}
	return v, nil
}

func (r *Reader) ReadI8() (int8, error) {
	v, err := r.ReadU8()
	return int8(v), err
}

func (r *Reader) ReadI16(e Endianness) (int16, error) {
	v, err := r.ReadU16(e)
	return int16(v), err
}

func (r *Reader) ReadI32(e Endianness) (int32, error) {
	v, err := r.ReadU32(e)
	return int32(v), err
}

func (r *Reader) ReadI64(e Endianness) (int64, error) {
	v, err := r.ReadU64(e)
	return int64(v), err
}

func (r *Reader) ReadFloat32(e Endianness) (float32, error) {
	v, err := r.ReadU32(e)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) ReadFloat64(e Endianness) (float64, error) {
	v, err := r.ReadU64(e)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *Reader) readAlignedN(n int) ([]byte, error) {
	if err := r.requireAligned(); err != nil {
		return nil, err
	}
	return r.ReadBytes(n)
}

// Seek moves to an absolute byte offset, discarding any buffered partial
// byte.
func (r *Reader) Seek(absolute int64) error {
	if absolute < 0 {
		return decodeErrorf(absolute, "negative seek position")
	}
	r.bytePos = absolute
	r.curBits = 8
	return nil
}

// Size returns the total byte length of the underlying source, if it can be
// determined. For a stream source this drains and buffers the remainder.
func (r *Reader) Size() (int64, bool, error) { return r.src.size() }

// Clone returns an independent copy of the reader's cursor state sharing the
// same backing source, used by instance accessors to parse a sub-region
// without disturbing the caller's position.
func (r *Reader) Clone() *Reader {
	cp := *r
	return &cp
}
