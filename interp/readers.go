package interp

import (
	"io"
	"os"

	"github.com/binschema/binschema/bitio"
	"github.com/binschema/binschema/schema"
)

// BufferReader returns a bitio.Reader over data configured with s's
// effective bit order and endianness.
func BufferReader(s *schema.Schema, data []byte) *bitio.Reader {
	return bitio.NewBufferReader(data, toBitioOrder(s.Config.EffectiveBitOrder()), toBitioEndian(s.Config.EffectiveEndianness()))
}

// FileReader returns a bitio.Reader over f configured with s's effective
// bit order and endianness. Bytes are read on demand; f must stay open
// for the life of the reader and any lazily resolved instance fields.
func FileReader(s *schema.Schema, f *os.File) *bitio.Reader {
	return bitio.NewFileReader(f, toBitioOrder(s.Config.EffectiveBitOrder()), toBitioEndian(s.Config.EffectiveEndianness()))
}

// StreamReader returns a bitio.Reader over a non-seekable byte stream.
// onWarn, if non-nil, is called once if resolving a position forces the
// remainder of the stream to be buffered in memory.
func StreamReader(s *schema.Schema, r io.Reader, onWarn func(string)) *bitio.Reader {
	return bitio.NewStreamReader(r, toBitioOrder(s.Config.EffectiveBitOrder()), toBitioEndian(s.Config.EffectiveEndianness()), onWarn)
}
