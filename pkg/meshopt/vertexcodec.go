package meshopt

import "fmt"

const (
	vertexHeader         = 0xa0
	vertexBlockSizeBytes = 8192
	vertexBlockMaxSize   = 256
	byteGroupSize        = 16
	byteGroupDecodeLimit = 24
	tailMaxSize          = 32
)

// VertexVersionLatest is the newest vertex format version the encoder can produce.
const VertexVersionLatest = 0

// VertexEncoderOptions controls vertex buffer encoding.
type VertexEncoderOptions struct {
	// Version is the format version to emit. Only version 0 exists.
	Version int
}

// DefaultVertexEncoderOptions returns options for the latest format version.
func DefaultVertexEncoderOptions() VertexEncoderOptions {
	return VertexEncoderOptions{Version: VertexVersionLatest}
}

func validateVertexSize(vertexSize int) error {
	if vertexSize <= 0 || vertexSize > 256 || vertexSize%4 != 0 {
		return fmt.Errorf("%w: vertex size %d must be a multiple of 4 up to 256", ErrInvalidArgument, vertexSize)
	}
	return nil
}

func vertexBlockSize(vertexSize int) int {
	result := vertexBlockSizeBytes / vertexSize
	// blocks are whole byte groups
	result &^= byteGroupSize - 1
	return min(result, vertexBlockMaxSize)
}

func zigzag8(v byte) byte {
	return byte(int8(v)>>7) ^ v<<1
}

func unzigzag8(v byte) byte {
	return -(v & 1) ^ v>>1
}

func tailSize(vertexSize int) int {
	return max(vertexSize, tailMaxSize)
}

// EncodeVertexBufferBound returns the worst-case encoded size of a vertex buffer.
func EncodeVertexBufferBound(vertexCount, vertexSize int) int {
	blockSize := vertexBlockSize(vertexSize)
	blockCount := (vertexCount + blockSize - 1) / blockSize
	headerSize := (blockSize/byteGroupSize + 3) / 4
	return 1 + blockCount*vertexSize*(headerSize+blockSize) + tailSize(vertexSize)
}

// EncodeVertexBuffer compresses vertexCount records of vertexSize bytes. Each
// byte column is delta encoded against the previous vertex and bit packed in
// groups of 16. Returns the encoded size or ErrBufferTooSmall.
func EncodeVertexBuffer(dst, vertices []byte, vertexCount, vertexSize int, opts VertexEncoderOptions) (int, error) {
	if err := validateVertexSize(vertexSize); err != nil {
		return 0, err
	}
	if opts.Version != 0 {
		return 0, fmt.Errorf("%w: vertex encoder version %d", ErrInvalidArgument, opts.Version)
	}
	if len(vertices) < vertexCount*vertexSize {
		return 0, fmt.Errorf("%w: %d bytes for %d vertices", ErrInvalidArgument, len(vertices), vertexCount)
	}
	if len(dst) < 1+vertexSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrBufferTooSmall, len(dst))
	}

	dst[0] = byte(vertexHeader | opts.Version)
	data := 1

	var first, last [256]byte
	if vertexCount > 0 {
		copy(first[:], vertices[:vertexSize])
	}
	copy(last[:], first[:vertexSize])

	blockSize := vertexBlockSize(vertexSize)
	for offset := 0; offset < vertexCount; offset += blockSize {
		count := min(blockSize, vertexCount-offset)
		var ok bool
		data, ok = encodeVertexBlock(dst, data, vertices[offset*vertexSize:], count, vertexSize, &last)
		if !ok {
			return 0, fmt.Errorf("%w: %d bytes", ErrBufferTooSmall, len(dst))
		}
	}

	tail := tailSize(vertexSize)
	if len(dst)-data < tail {
		return 0, fmt.Errorf("%w: %d bytes", ErrBufferTooSmall, len(dst))
	}
	// the first vertex is stored padded at the end so the decoder can seed deltas without bounds checks
	for i := 0; i < tail-vertexSize; i++ {
		dst[data] = 0
		data++
	}
	data += copy(dst[data:], first[:vertexSize])
	return data, nil
}

func encodeVertexBlock(dst []byte, data int, vertices []byte, count, vertexSize int, last *[256]byte) (int, bool) {
	var buffer [vertexBlockMaxSize]byte
	aligned := (count + byteGroupSize - 1) &^ (byteGroupSize - 1)

	for k := 0; k < vertexSize; k++ {
		p := last[k]
		for i := 0; i < count; i++ {
			v := vertices[i*vertexSize+k]
			buffer[i] = zigzag8(v - p)
			p = v
		}
		for i := count; i < aligned; i++ {
			buffer[i] = 0
		}
		var ok bool
		data, ok = encodeBytes(dst, data, buffer[:aligned])
		if !ok {
			return 0, false
		}
	}
	copy(last[:vertexSize], vertices[(count-1)*vertexSize:count*vertexSize])
	return data, true
}

func encodeBytes(dst []byte, data int, buffer []byte) (int, bool) {
	// two header bits per group
	headerSize := (len(buffer)/byteGroupSize + 3) / 4
	if len(dst)-data < headerSize {
		return 0, false
	}
	header := dst[data : data+headerSize]
	for i := range header {
		header[i] = 0
	}
	data += headerSize

	for i := 0; i < len(buffer); i += byteGroupSize {
		if len(dst)-data < byteGroupDecodeLimit {
			return 0, false
		}
		group := buffer[i : i+byteGroupSize]

		bestBits := 8
		bestSize := measureBytesGroup(group, 8)
		for bits := 1; bits < 8; bits *= 2 {
			if size := measureBytesGroup(group, bits); size < bestSize {
				bestBits, bestSize = bits, size
			}
		}

		bitslog2 := 3
		switch bestBits {
		case 1:
			bitslog2 = 0
		case 2:
			bitslog2 = 1
		case 4:
			bitslog2 = 2
		}
		g := i / byteGroupSize
		header[g/4] |= byte(bitslog2 << ((g % 4) * 2))
		data = encodeBytesGroup(dst, data, group, bestBits)
	}
	return data, true
}

func measureBytesGroup(group []byte, bits int) int {
	switch bits {
	case 1:
		for _, b := range group {
			if b != 0 {
				return 1 << 30
			}
		}
		return 0
	case 8:
		return byteGroupSize
	}
	result := byteGroupSize * bits / 8
	sentinel := byte(1<<bits - 1)
	for _, b := range group {
		if b >= sentinel {
			result++
		}
	}
	return result
}

func encodeBytesGroup(dst []byte, data int, group []byte, bits int) int {
	switch bits {
	case 1:
		return data
	case 8:
		return data + copy(dst[data:], group)
	}

	perByte := 8 / bits
	sentinel := byte(1<<bits - 1)
	// fixed width codes first, then one full byte per value that hit the sentinel
	for i := 0; i < byteGroupSize; i += perByte {
		var packed byte
		for k := 0; k < perByte; k++ {
			packed <<= bits
			packed |= min(group[i+k], sentinel)
		}
		dst[data] = packed
		data++
	}
	for _, b := range group {
		if b >= sentinel {
			dst[data] = b
			data++
		}
	}
	return data
}

// DecodeVertexBuffer decodes vertexCount records of vertexSize bytes into dst.
// Malformed input yields an error wrapping ErrDecode; the decoder never reads
// or writes out of bounds.
func DecodeVertexBuffer(dst []byte, vertexCount, vertexSize int, buffer []byte) error {
	if err := validateVertexSize(vertexSize); err != nil {
		return err
	}
	if len(dst) < vertexCount*vertexSize {
		return fmt.Errorf("%w: %d bytes for %d vertices", ErrBufferTooSmall, len(dst), vertexCount)
	}
	if len(buffer) < 1+vertexSize {
		return fmt.Errorf("%w: %d bytes", ErrTruncated, len(buffer))
	}
	if buffer[0]&0xf0 != vertexHeader {
		return fmt.Errorf("%w: header 0x%02x", ErrUnsupportedVersion, buffer[0])
	}
	if version := int(buffer[0] & 0x0f); version > VertexVersionLatest {
		return fmt.Errorf("%w: version %d", ErrUnsupportedVersion, version)
	}

	var last [256]byte
	copy(last[:], buffer[len(buffer)-vertexSize:])

	data := 1
	blockSize := vertexBlockSize(vertexSize)
	for offset := 0; offset < vertexCount; offset += blockSize {
		count := min(blockSize, vertexCount-offset)
		var ok bool
		data, ok = decodeVertexBlock(buffer, data, dst[offset*vertexSize:], count, vertexSize, &last)
		if !ok {
			return fmt.Errorf("%w: vertex block at %d", ErrTruncated, offset)
		}
	}

	if len(buffer)-data != tailSize(vertexSize) {
		return fmt.Errorf("%w: unexpected tail of %d bytes", ErrDecode, len(buffer)-data)
	}
	return nil
}

func decodeVertexBlock(buffer []byte, data int, dst []byte, count, vertexSize int, last *[256]byte) (int, bool) {
	var groups [vertexBlockMaxSize]byte
	aligned := (count + byteGroupSize - 1) &^ (byteGroupSize - 1)

	for k := 0; k < vertexSize; k++ {
		var ok bool
		data, ok = decodeBytes(buffer, data, groups[:aligned])
		if !ok {
			return 0, false
		}
		p := last[k]
		for i := 0; i < count; i++ {
			v := unzigzag8(groups[i]) + p
			dst[i*vertexSize+k] = v
			p = v
		}
	}
	copy(last[:vertexSize], dst[(count-1)*vertexSize:count*vertexSize])
	return data, true
}

func decodeBytes(buffer []byte, data int, out []byte) (int, bool) {
	headerSize := (len(out)/byteGroupSize + 3) / 4
	if len(buffer)-data < headerSize {
		return 0, false
	}
	header := buffer[data : data+headerSize]
	data += headerSize

	for i := 0; i < len(out); i += byteGroupSize {
		// a group reads at most byteGroupDecodeLimit bytes
		if len(buffer)-data < byteGroupDecodeLimit {
			return 0, false
		}
		g := i / byteGroupSize
		bitslog2 := (header[g/4] >> ((g % 4) * 2)) & 3
		data = decodeBytesGroup(buffer, data, out[i:i+byteGroupSize], bitslog2)
	}
	return data, true
}

func decodeBytesGroup(buffer []byte, data int, out []byte, bitslog2 byte) int {
	switch bitslog2 {
	case 0:
		for i := range out {
			out[i] = 0
		}
		return data
	case 3:
		return data + copy(out, buffer[data:data+byteGroupSize])
	}

	bits := 1 << bitslog2
	perByte := 8 / bits
	sentinel := byte(1<<bits - 1)
	variable := data + byteGroupSize/perByte
	for i := 0; i < byteGroupSize; i += perByte {
		packed := buffer[data]
		data++
		for k := 0; k < perByte; k++ {
			enc := (packed >> (8 - bits*(k+1))) & sentinel
			if enc == sentinel {
				enc = buffer[variable]
				variable++
			}
			out[i+k] = enc
		}
	}
	return variable
}
