package schema

import (
	"encoding/binary"
	"fmt"
)

// Binary encoding constants for the compact on-disk schema cache format:
// a 2-byte header (magic, version)
// followed by one fixed 4-byte record per field. Only plain fixed-width
// int fields round-trip through this format — it exists to cache a
// ParseCompact result cheaply, not to serialize the full schema model.
const (
	binaryMagic   = 0x42 // 'B'
	binaryVersion = 0x01
)

const binaryFieldRecordLen = 4

// ExportBinary serializes a sequence TypeDef built entirely of plain int
// fields into the compact binary cache format. Returns an error if the
// type contains any field kind other than FieldInt, since those need more
// than 4 bytes of metadata to round-trip.
func ExportBinary(t *TypeDef) ([]byte, error) {
	if t.Kind != KindSequence {
		return nil, fmt.Errorf("schema: ExportBinary only supports sequence types, got %q", t.Name)
	}
	if len(t.Fields) > 255 {
		return nil, fmt.Errorf("schema: ExportBinary: %d fields exceeds the 255 field cap", len(t.Fields))
	}

	out := make([]byte, 2, 2+len(t.Fields)*binaryFieldRecordLen)
	out[0] = binaryMagic
	out[1] = binaryVersion

	for _, f := range t.Fields {
		if f.Kind != FieldInt || f.Int == nil {
			return nil, fmt.Errorf("schema: ExportBinary: field %q is not a plain int field", f.Name)
		}
		sizeCode, err := widthToSizeCode(f.Int.Width)
		if err != nil {
			return nil, fmt.Errorf("schema: ExportBinary: field %q: %w", f.Name, err)
		}
		var typeByte byte
		if f.Int.Signed {
			typeByte = 0x1 << 4
		}
		typeByte |= sizeCode

		endianFlag := byte(0)
		if f.Endianness == LittleEndian {
			endianFlag = 1
		}
		rec := make([]byte, binaryFieldRecordLen)
		rec[0] = typeByte
		rec[1] = endianFlag
		binary.LittleEndian.PutUint16(rec[2:4], 0)
		out = append(out, rec...)
	}
	return out, nil
}

// ImportBinary is ExportBinary's inverse: it decodes the compact cache
// format back into a sequence TypeDef with sequentially numbered field
// names ("f1", "f2", ...), the same convention ParseCompact uses.
func ImportBinary(name string, data []byte) (*TypeDef, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("schema: ImportBinary: data too short for header")
	}
	if data[0] != binaryMagic {
		return nil, fmt.Errorf("schema: ImportBinary: bad magic byte %#x", data[0])
	}
	if data[1] != binaryVersion {
		return nil, fmt.Errorf("schema: ImportBinary: unsupported version %d", data[1])
	}

	body := data[2:]
	if len(body)%binaryFieldRecordLen != 0 {
		return nil, fmt.Errorf("schema: ImportBinary: truncated field record, %d trailing bytes", len(body)%binaryFieldRecordLen)
	}

	td := &TypeDef{Name: name, Kind: KindSequence}
	for i := 0; i*binaryFieldRecordLen < len(body); i++ {
		rec := body[i*binaryFieldRecordLen : (i+1)*binaryFieldRecordLen]
		typeByte := rec[0]
		signed := typeByte&0x10 != 0
		width, err := sizeCodeToWidth(typeByte & 0x0F)
		if err != nil {
			return nil, fmt.Errorf("schema: ImportBinary: field %d: %w", i, err)
		}
		endian := BigEndian
		if rec[1] == 1 {
			endian = LittleEndian
		}
		td.Fields = append(td.Fields, &Field{
			Name:       fmt.Sprintf("f%d", i+1),
			Kind:       FieldInt,
			Endianness: endian,
			Int:        &IntField{Width: width, Signed: signed},
		})
	}
	return td, nil
}

func widthToSizeCode(width int) (byte, error) {
	switch width {
	case 8:
		return 0x0, nil
	case 16:
		return 0x1, nil
	case 32:
		return 0x2, nil
	case 64:
		return 0x3, nil
	default:
		return 0, fmt.Errorf("width %d has no binary size code", width)
	}
}

func sizeCodeToWidth(code byte) (int, error) {
	switch code {
	case 0x0:
		return 8, nil
	case 0x1:
		return 16, nil
	case 0x2:
		return 32, nil
	case 0x3:
		return 64, nil
	default:
		return 0, fmt.Errorf("unknown size code %#x", code)
	}
}
