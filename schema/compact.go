package schema

import (
	"fmt"
	"regexp"
	"strconv"
)

// compactTokenPattern matches one compact-format token: an optional repeat
// count, a format character, and an optional trailing array length in
// brackets (making the field a fixed-length array).
var compactTokenPattern = regexp.MustCompile(`(\d*)([a-zA-Z])(?:\[(\d+)\])?`)

var compactByteOrderPrefixes = map[byte]Endianness{
	'>': BigEndian,
	'<': LittleEndian,
	'!': BigEndian,
}

// compactFormatChars maps a single compact-format character to the int
// field it denotes. Lowercase is signed, uppercase unsigned, following
// the struct-format convention.
var compactFormatChars = map[byte]IntField{
	'b': {Width: 8, Signed: true},
	'B': {Width: 8, Signed: false},
	'h': {Width: 16, Signed: true},
	'H': {Width: 16, Signed: false},
	'i': {Width: 32, Signed: true},
	'I': {Width: 32, Signed: false},
	'q': {Width: 64, Signed: true},
	'Q': {Width: 64, Signed: false},
}

// ParseCompact parses a single-line compact notation into an anonymous
// sequence TypeDef: a terse shorthand for simple fixed-layout records.
// Example: ">BHI" is three
// fields — unsigned 8, unsigned 16, unsigned 32 bit big-endian integers.
// An optional "[n]" suffix on a character repeats that field n times as
// a fixed-length array.
func ParseCompact(name, format string) (*TypeDef, error) {
	endian := BigEndian
	if len(format) > 0 {
		if e, ok := compactByteOrderPrefixes[format[0]]; ok {
			endian = e
			format = format[1:]
		}
	}

	matches := compactTokenPattern.FindAllStringSubmatch(format, -1)
	if matches == nil && format != "" {
		return nil, fmt.Errorf("schema: compact format %q has no recognizable tokens", format)
	}

	td := &TypeDef{Name: name, Kind: KindSequence}
	seq := 0
	for _, m := range matches {
		countStr, ch, repeatStr := m[1], m[2][0], m[3]
		count := 1
		if countStr != "" {
			n, err := strconv.Atoi(countStr)
			if err != nil {
				return nil, fmt.Errorf("schema: compact format %q: bad repeat count: %w", format, err)
			}
			count = n
		}
		intSpec, ok := compactFormatChars[ch]
		if !ok {
			return nil, fmt.Errorf("schema: compact format %q: unknown format character %q", format, string(ch))
		}

		for i := 0; i < count; i++ {
			seq++
			field := &Field{
				Name:       fmt.Sprintf("f%d", seq),
				Kind:       FieldInt,
				Endianness: endian,
				Int:        &IntField{Width: intSpec.Width, Signed: intSpec.Signed},
			}
			if repeatStr != "" {
				n, err := strconv.Atoi(repeatStr)
				if err != nil {
					return nil, fmt.Errorf("schema: compact format %q: bad array length: %w", format, err)
				}
				field = &Field{
					Name:       fmt.Sprintf("f%d", seq),
					Kind:       FieldArray,
					Endianness: endian,
					Array: &ArrayField{
						Kind:        ArrayFixed,
						FixedLength: n,
						Item: &Field{
							Name:       fmt.Sprintf("f%d_item", seq),
							Kind:       FieldInt,
							Endianness: endian,
							Int:        &IntField{Width: intSpec.Width, Signed: intSpec.Signed},
						},
					},
				}
			}
			td.Fields = append(td.Fields, field)
		}
	}
	return td, nil
}
