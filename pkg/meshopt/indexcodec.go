package meshopt

import "fmt"

// Index codec headers; the low nibble carries the format version.
const (
	indexHeader    = 0xe0
	sequenceHeader = 0xd0
)

// IndexVersionLatest is the newest index format version the encoder can produce.
const IndexVersionLatest = 1

// IndexEncoderOptions controls index buffer and sequence encoding.
type IndexEncoderOptions struct {
	// Version is the format version to emit, 0 or 1. Version 0 is understood
	// by every decoder; version 1 encodes strip-like runs more compactly.
	Version int
}

// DefaultIndexEncoderOptions returns options for the latest format version.
func DefaultIndexEncoderOptions() IndexEncoderOptions {
	return IndexEncoderOptions{Version: IndexVersionLatest}
}

func (o IndexEncoderOptions) validate() error {
	if o.Version < 0 || o.Version > IndexVersionLatest {
		return fmt.Errorf("%w: index encoder version %d", ErrInvalidArgument, o.Version)
	}
	return nil
}

type vertexFifo [16]uint32
type edgeFifo [16][2]uint32

var triangleIndexOrder = [3][3]int{{0, 1, 2}, {1, 2, 0}, {2, 0, 1}}

// Built from symbol frequencies on a training set of meshes. The last two
// entries are never used for encoding.
var codeAuxTable = [16]byte{
	0x00, 0x76, 0x87, 0x56, 0x67, 0x78, 0xa9, 0x86, 0x65, 0x89, 0x68, 0x98, 0x01, 0x69,
	0, 0,
}

func newVertexFifo() vertexFifo {
	var f vertexFifo
	for i := range f {
		f[i] = ^uint32(0)
	}
	return f
}

func newEdgeFifo() edgeFifo {
	var f edgeFifo
	for i := range f {
		f[i] = [2]uint32{^uint32(0), ^uint32(0)}
	}
	return f
}

// find returns (position<<2)|rotation of the first edge of a, b, c in the fifo, or -1.
func (f *edgeFifo) find(a, b, c uint32, offset int) int {
	for i := 0; i < 16; i++ {
		e := f[(offset-1-i)&15]
		switch {
		case e[0] == a && e[1] == b:
			return i<<2 | 0
		case e[0] == b && e[1] == c:
			return i<<2 | 1
		case e[0] == c && e[1] == a:
			return i<<2 | 2
		}
	}
	return -1
}

func (f *edgeFifo) push(a, b uint32, offset *int) {
	f[*offset] = [2]uint32{a, b}
	*offset = (*offset + 1) & 15
}

func (f *vertexFifo) find(v uint32, offset int) int {
	for i := 0; i < 16; i++ {
		if f[(offset-1-i)&15] == v {
			return i
		}
	}
	return -1
}

func (f *vertexFifo) push(v uint32, offset *int, cond bool) {
	f[*offset] = v
	if cond {
		*offset = (*offset + 1) & 15
	}
}

func encodeVByte(data []byte, pos int, v uint32) int {
	for {
		b := byte(v & 127)
		if v > 127 {
			b |= 128
		}
		data[pos] = b
		pos++
		v >>= 7
		if v == 0 {
			return pos
		}
	}
}

// decodeVByte reads at most five bytes regardless of content.
func decodeVByte(data []byte, pos int) (uint32, int) {
	lead := data[pos]
	pos++
	if lead < 128 {
		return uint32(lead), pos
	}
	result := uint32(lead & 127)
	shift := uint(7)
	for i := 0; i < 4; i++ {
		group := data[pos]
		pos++
		result |= uint32(group&127) << shift
		shift += 7
		if group < 128 {
			break
		}
	}
	return result, pos
}

func zigzag(d uint32) uint32 {
	return d<<1 ^ uint32(int32(d)>>31)
}

func unzigzag(v uint32) uint32 {
	return v>>1 ^ -(v & 1)
}

func encodeIndex(data []byte, pos int, index, last uint32) int {
	return encodeVByte(data, pos, zigzag(index-last))
}

func decodeIndex(data []byte, pos int, last uint32) (uint32, int) {
	v, pos := decodeVByte(data, pos)
	return last + unzigzag(v), pos
}

func codeAuxIndex(v byte) int {
	for i, e := range codeAuxTable {
		if e == v {
			return i
		}
	}
	return -1
}

func vertexBits(vertexCount int) uint {
	bits := uint(1)
	for bits < 32 && uint64(vertexCount) > uint64(1)<<bits {
		bits++
	}
	return bits
}

// EncodeIndexBufferBound returns the worst-case encoded size of a triangle list.
func EncodeIndexBufferBound(indexCount, vertexCount int) int {
	groups := int((vertexBits(vertexCount) + 1 + 6) / 7)
	// two header bytes and three varint deltas per triangle
	return 1 + (indexCount/3)*(2+3*groups) + 16
}

// EncodeIndexBuffer compresses a triangle list into dst. Triangle order is kept
// but the corners of each triangle may be rotated. Returns the encoded size or
// ErrBufferTooSmall.
func EncodeIndexBuffer(dst []byte, indices []uint32, opts IndexEncoderOptions) (int, error) {
	if len(indices)%3 != 0 {
		return 0, fmt.Errorf("%w: index count %d is not a multiple of 3", ErrInvalidArgument, len(indices))
	}
	if err := opts.validate(); err != nil {
		return 0, err
	}
	faceCount := len(indices) / 3
	if len(dst) < 1+faceCount+16 {
		return 0, fmt.Errorf("%w: %d bytes for %d triangles", ErrBufferTooSmall, len(dst), faceCount)
	}

	version := opts.Version
	dst[0] = byte(indexHeader | version)

	edges := newEdgeFifo()
	verts := newVertexFifo()
	edgeOffset, vertexOffset := 0, 0
	next, last := uint32(0), uint32(0)

	code := 1
	data := 1 + faceCount
	safeEnd := len(dst) - 16

	fecmax := 15
	if version >= 1 {
		fecmax = 13
	}

	for i := 0; i < len(indices); i += 3 {
		// each triangle writes at most 16 bytes of data
		if data > safeEnd {
			return 0, fmt.Errorf("%w: %d bytes", ErrBufferTooSmall, len(dst))
		}

		fer := edges.find(indices[i], indices[i+1], indices[i+2], edgeOffset)

		if fer >= 0 && fer>>2 < 15 {
			order := triangleIndexOrder[fer&3]
			a, b, c := indices[i+order[0]], indices[i+order[1]], indices[i+order[2]]

			fe := fer >> 2
			fc := verts.find(c, vertexOffset)
			fec := 15
			switch {
			case fc >= 1 && fc < fecmax:
				fec = fc
			case c == next:
				fec = 0
				next++
			}

			if fec == 15 && version >= 1 {
				// strip-like runs step the last free index by one
				if c+1 == last {
					fec, last = 13, c
				}
				if c == last+1 {
					fec, last = 14, c
				}
			}

			dst[code] = byte(fe<<4 | fec)
			code++

			if fec == 15 {
				data = encodeIndex(dst, data, c, last)
				last = c
			}
			if fec == 0 || fec >= fecmax {
				verts.push(c, &vertexOffset, true)
			}

			edges.push(c, b, &edgeOffset)
			edges.push(a, c, &edgeOffset)
			continue
		}

		rotation := 0
		switch next {
		case indices[i+1]:
			rotation = 1
		case indices[i+2]:
			rotation = 2
		}
		order := triangleIndexOrder[rotation]
		a, b, c := indices[i+order[0]], indices[i+order[1]], indices[i+order[2]]

		reset := false
		if a == 0 && b == 1 && c == 2 && next > 0 && version >= 1 {
			reset = true
			next = 0
			// stale fifo entries must never be referenced after a reset
			verts = newVertexFifo()
		}

		fb := verts.find(b, vertexOffset)
		fc := verts.find(c, vertexOffset)

		fea := 15
		if a == next {
			fea = 0
			next++
		}
		feb := 15
		switch {
		case fb >= 0 && fb < 14:
			feb = fb + 1
		case b == next:
			feb = 0
			next++
		}
		fec := 15
		switch {
		case fc >= 0 && fc < 14:
			fec = fc + 1
		case c == next:
			fec = 0
			next++
		}

		codeaux := byte(feb<<4 | fec)
		auxIndex := codeAuxIndex(codeaux)

		if fea == 0 && auxIndex >= 0 && auxIndex < 14 && !reset {
			dst[code] = byte(15<<4 | auxIndex)
			code++
		} else {
			dst[code] = byte(15<<4 | 14 | fea)
			code++
			dst[data] = codeaux
			data++
		}

		if fea == 15 {
			data = encodeIndex(dst, data, a, last)
			last = a
		}
		if feb == 15 {
			data = encodeIndex(dst, data, b, last)
			last = b
		}
		if fec == 15 {
			data = encodeIndex(dst, data, c, last)
			last = c
		}

		if fea == 0 || fea == 15 {
			verts.push(a, &vertexOffset, true)
		}
		if feb == 0 || feb == 15 {
			verts.push(b, &vertexOffset, true)
		}
		if fec == 0 || fec == 15 {
			verts.push(c, &vertexOffset, true)
		}

		edges.push(b, a, &edgeOffset)
		edges.push(c, b, &edgeOffset)
		edges.push(a, c, &edgeOffset)
	}

	if data > safeEnd {
		return 0, fmt.Errorf("%w: %d bytes", ErrBufferTooSmall, len(dst))
	}
	// the table doubles as padding so the decoder can read 16 bytes per triangle unchecked
	data += copy(dst[data:], codeAuxTable[:])
	return data, nil
}

// DecodeIndexBuffer decodes a triangle list produced by EncodeIndexBuffer into
// dst, whose length is the index count. Malformed input yields an error
// wrapping ErrDecode; the decoder never reads or writes out of bounds.
func DecodeIndexBuffer(dst []uint32, buffer []byte) error {
	return decodeIndexBuffer(dst, buffer)
}

// DecodeIndexBuffer16 is DecodeIndexBuffer for 16-bit destinations.
// Indices are truncated to 16 bits.
func DecodeIndexBuffer16(dst []uint16, buffer []byte) error {
	return decodeIndexBuffer(dst, buffer)
}

func checkHeader(buffer []byte, header byte) (int, error) {
	if buffer[0]&0xf0 != header {
		return 0, fmt.Errorf("%w: header 0x%02x", ErrUnsupportedVersion, buffer[0])
	}
	version := int(buffer[0] & 0x0f)
	if version > IndexVersionLatest {
		return 0, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, version)
	}
	return version, nil
}

func decodeIndexBuffer[T uint16 | uint32](dst []T, buffer []byte) error {
	if len(dst)%3 != 0 {
		return fmt.Errorf("%w: index count %d is not a multiple of 3", ErrInvalidArgument, len(dst))
	}
	faceCount := len(dst) / 3
	if len(buffer) < 1+faceCount+16 {
		return fmt.Errorf("%w: %d bytes for %d triangles", ErrTruncated, len(buffer), faceCount)
	}
	version, err := checkHeader(buffer, indexHeader)
	if err != nil {
		return err
	}

	edges := newEdgeFifo()
	verts := newVertexFifo()
	edgeOffset, vertexOffset := 0, 0
	next, last := uint32(0), uint32(0)

	fecmax := 15
	if version >= 1 {
		fecmax = 13
	}

	code := 1
	data := 1 + faceCount
	safeEnd := len(buffer) - 16
	table := buffer[safeEnd:]

	for i := 0; i < len(dst); i += 3 {
		// each triangle reads at most 16 bytes of data
		if data > safeEnd {
			return fmt.Errorf("%w: triangle %d", ErrTruncated, i/3)
		}

		codetri := buffer[code]
		code++

		var a, b, c uint32
		switch {
		case codetri < 0xf0:
			fe := int(codetri >> 4)
			e := edges[(edgeOffset-1-fe)&15]
			a, b = e[0], e[1]
			fec := int(codetri & 15)

			if fec < fecmax {
				if fec == 0 {
					c = next
					next++
				} else {
					c = verts[(vertexOffset-1-fec)&15]
				}
				verts.push(c, &vertexOffset, fec == 0)
			} else {
				if fec != 15 {
					// 13 and 14 step the last index by -1 and +1
					c = last + uint32(fec-(fec^3))
				} else {
					c, data = decodeIndex(buffer, data, last)
				}
				last = c
				verts.push(c, &vertexOffset, true)
			}

			edges.push(c, b, &edgeOffset)
			edges.push(a, c, &edgeOffset)

		case codetri < 0xfe:
			codeaux := table[codetri&15]
			feb := int(codeaux >> 4)
			fec := int(codeaux & 15)

			a = next
			next++
			if feb == 0 {
				b = next
				next++
			} else {
				b = verts[(vertexOffset-feb)&15]
			}
			if fec == 0 {
				c = next
				next++
			} else {
				c = verts[(vertexOffset-fec)&15]
			}

			verts.push(a, &vertexOffset, true)
			verts.push(b, &vertexOffset, feb == 0)
			verts.push(c, &vertexOffset, fec == 0)
			edges.push(b, a, &edgeOffset)
			edges.push(c, b, &edgeOffset)
			edges.push(a, c, &edgeOffset)

		default:
			codeaux := buffer[data]
			data++
			fea := 15
			if codetri == 0xfe {
				fea = 0
			}
			feb := int(codeaux >> 4)
			fec := int(codeaux & 15)

			if codeaux == 0 {
				next = 0
			}

			if fea == 0 {
				a = next
				next++
			}
			if feb == 0 {
				b = next
				next++
			} else {
				b = verts[(vertexOffset-feb)&15]
			}
			if fec == 0 {
				c = next
				next++
			} else {
				c = verts[(vertexOffset-fec)&15]
			}

			if fea == 15 {
				a, data = decodeIndex(buffer, data, last)
				last = a
			}
			if feb == 15 {
				b, data = decodeIndex(buffer, data, last)
				last = b
			}
			if fec == 15 {
				c, data = decodeIndex(buffer, data, last)
				last = c
			}

			verts.push(a, &vertexOffset, true)
			verts.push(b, &vertexOffset, feb == 0 || feb == 15)
			verts.push(c, &vertexOffset, fec == 0 || fec == 15)
			edges.push(b, a, &edgeOffset)
			edges.push(c, b, &edgeOffset)
			edges.push(a, c, &edgeOffset)
		}

		dst[i], dst[i+1], dst[i+2] = T(a), T(b), T(c)
	}

	if data != safeEnd {
		return fmt.Errorf("%w: %d trailing bytes", ErrDecode, safeEnd-data)
	}
	return nil
}

// EncodeIndexSequenceBound returns the worst-case encoded size of an index sequence.
func EncodeIndexSequenceBound(indexCount, vertexCount int) int {
	groups := int((vertexBits(vertexCount) + 1 + 1 + 6) / 7)
	return 1 + indexCount*groups + 4
}

// EncodeIndexSequence compresses an arbitrary index sequence such as a strip,
// line list or point list. Returns the encoded size or ErrBufferTooSmall.
func EncodeIndexSequence(dst []byte, indices []uint32, opts IndexEncoderOptions) (int, error) {
	if err := opts.validate(); err != nil {
		return 0, err
	}
	if len(dst) < 1+len(indices)+4 {
		return 0, fmt.Errorf("%w: %d bytes for %d indices", ErrBufferTooSmall, len(dst), len(indices))
	}

	dst[0] = byte(sequenceHeader | opts.Version)

	var baselines [2]uint32
	current := uint32(0)
	data := 1
	safeEnd := len(dst) - 4

	for _, index := range indices {
		// each index writes at most 5 bytes
		if data >= safeEnd {
			return 0, fmt.Errorf("%w: %d bytes", ErrBufferTooSmall, len(dst))
		}

		// switch baselines when the delta no longer fits a single byte
		cd := int32(index - baselines[current])
		if cd >= 30 || cd <= -30 {
			current ^= 1
		}

		v := zigzag(index - baselines[current])
		data = encodeVByte(dst, data, v<<1|current)
		baselines[current] = index
	}

	if data > safeEnd {
		return 0, fmt.Errorf("%w: %d bytes", ErrBufferTooSmall, len(dst))
	}
	for k := 0; k < 4; k++ {
		dst[data] = 0
		data++
	}
	return data, nil
}

// DecodeIndexSequence decodes a sequence produced by EncodeIndexSequence into dst.
func DecodeIndexSequence(dst []uint32, buffer []byte) error {
	return decodeIndexSequence(dst, buffer)
}

// DecodeIndexSequence16 is DecodeIndexSequence for 16-bit destinations.
func DecodeIndexSequence16(dst []uint16, buffer []byte) error {
	return decodeIndexSequence(dst, buffer)
}

func decodeIndexSequence[T uint16 | uint32](dst []T, buffer []byte) error {
	if len(buffer) < 1+len(dst)+4 {
		return fmt.Errorf("%w: %d bytes for %d indices", ErrTruncated, len(buffer), len(dst))
	}
	if _, err := checkHeader(buffer, sequenceHeader); err != nil {
		return err
	}

	var baselines [2]uint32
	data := 1
	safeEnd := len(buffer) - 4

	for i := range dst {
		// each index reads at most 5 bytes
		if data >= safeEnd {
			return fmt.Errorf("%w: index %d", ErrTruncated, i)
		}
		var v uint32
		v, data = decodeVByte(buffer, data)
		current := v & 1
		index := baselines[current] + unzigzag(v>>1)
		baselines[current] = index
		dst[i] = T(index)
	}

	if data != safeEnd {
		return fmt.Errorf("%w: %d trailing bytes", ErrDecode, safeEnd-data)
	}
	return nil
}
