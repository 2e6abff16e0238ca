package vba

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCorrupt reports a compressed container that cannot be decoded.
var ErrCorrupt = errors.New("corrupt compressed container")

const (
	containerSignature = 0x01
	chunkSizeMask      = 0x0FFF
	chunkCompressedBit = 0x8000
)

// Decompress decodes a compressed container as used for the dir stream and
// module source streams. Copy tokens never reach back before the start of
// their chunk.
func Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 || data[0] != containerSignature {
		return nil, fmt.Errorf("%w: missing signature byte", ErrCorrupt)
	}

	out := make([]byte, 0, len(data)*2)
	pos := 1
	for pos < len(data) {
		if pos+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated chunk header at %d", ErrCorrupt, pos)
		}
		header := binary.LittleEndian.Uint16(data[pos:])
		chunkEnd := pos + int(header&chunkSizeMask) + 3
		if chunkEnd > len(data) {
			chunkEnd = len(data)
		}
		pos += 2

		if header&chunkCompressedBit == 0 {
			out = append(out, data[pos:chunkEnd]...)
			pos = chunkEnd
			continue
		}

		chunkStart := len(out)
		for pos < chunkEnd {
			flags := data[pos]
			pos++
			for bit := 0; bit < 8 && pos < chunkEnd; bit++ {
				if flags&(1<<bit) == 0 {
					out = append(out, data[pos])
					pos++
					continue
				}
				if pos+2 > chunkEnd {
					return nil, fmt.Errorf("%w: truncated copy token at %d", ErrCorrupt, pos)
				}
				token := binary.LittleEndian.Uint16(data[pos:])
				pos += 2

				length, offset := unpackCopyToken(token, len(out)-chunkStart)
				from := len(out) - offset
				if from < chunkStart {
					return nil, fmt.Errorf("%w: copy token offset %d out of range", ErrCorrupt, offset)
				}
				// Byte-by-byte: the source may overlap what is being written.
				for i := 0; i < length; i++ {
					out = append(out, out[from+i])
				}
			}
		}
		pos = chunkEnd
	}
	return out, nil
}

// unpackCopyToken splits a copy token. The number of offset bits grows with
// the amount already decompressed in the chunk, from 4 up to 12.
func unpackCopyToken(token uint16, decompressed int) (length, offset int) {
	bitCount := 4
	for bitCount < 12 && (1<<bitCount) < decompressed {
		bitCount++
	}
	lengthMask := uint16(0xFFFF) >> bitCount
	offsetMask := ^lengthMask
	length = int(token&lengthMask) + 3
	offset = int((token&offsetMask)>>(16-bitCount)) + 1
	return length, offset
}
