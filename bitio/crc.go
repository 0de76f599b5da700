package bitio

import "hash/crc32"

// CRC32 computes the IEEE CRC-32 of data, the checksum helper generated
// modules import alongside the bit reader/writer and expression
// evaluator.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
