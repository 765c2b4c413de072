package meshopt

import (
	"fmt"
	"math"
)

const stripBufferCapacity = 8

type stripBuffer struct {
	tris [stripBufferCapacity][3]uint32
	size int
}

// removeAt deletes triangle i keeping the order of the rest.
func (s *stripBuffer) removeAt(i int) {
	copy(s.tris[i:s.size], s.tris[i+1:s.size])
	s.size--
}

// first picks the triangle whose least-shared vertex has the lowest valence.
func (s *stripBuffer) first(valence []uint32) int {
	index := 0
	best := ^uint32(0)
	for i := 0; i < s.size; i++ {
		t := s.tris[i]
		v := min(valence[t[0]], valence[t[1]], valence[t[2]])
		if v < best {
			index, best = i, v
		}
	}
	return index
}

// next finds a triangle containing edge e0->e1 and returns (slot<<2)|opposite corner.
func (s *stripBuffer) next(e0, e1 uint32) int {
	for i := 0; i < s.size; i++ {
		a, b, c := s.tris[i][0], s.tris[i][1], s.tris[i][2]
		switch {
		case e0 == a && e1 == b:
			return i<<2 | 2
		case e0 == b && e1 == c:
			return i<<2 | 0
		case e0 == c && e1 == a:
			return i<<2 | 1
		}
	}
	return -1
}

// StripifyBound returns the worst-case strip length for a triangle list.
func StripifyBound(indexCount int) int {
	// two degenerate indices or one restart plus three indices per triangle
	return indexCount / 3 * 5
}

// Stripify converts a triangle list into a triangle strip. Strips are joined
// with restartIndex, or with degenerate triangles when restartIndex is 0.
// Returns the strip length.
func Stripify(dst, indices []uint32, vertexCount int, restartIndex uint32) (int, error) {
	if err := validateTriangles(indices, vertexCount); err != nil {
		return 0, err
	}
	if len(dst) < StripifyBound(len(indices)) {
		return 0, fmt.Errorf("%w: strip buffer %d < %d", ErrBufferTooSmall, len(dst), StripifyBound(len(indices)))
	}

	valence := make([]uint32, vertexCount)
	for _, v := range indices {
		valence[v]++
	}

	var buf stripBuffer
	var strip [2]uint32
	parity := 0
	size := 0
	offset := 0
	next := -1

	for buf.size > 0 || offset < len(indices) {
		for buf.size < stripBufferCapacity && offset < len(indices) {
			buf.tris[buf.size] = [3]uint32{indices[offset], indices[offset+1], indices[offset+2]}
			buf.size++
			offset += 3
		}

		if next >= 0 {
			i := next >> 2
			t := buf.tris[i]
			v := t[next&3]
			buf.removeAt(i)
			valence[t[0]]--
			valence[t[1]]--
			valence[t[2]]--

			// edge order flips on every step
			e0, e1 := v, strip[1]
			if parity != 0 {
				e0, e1 = strip[1], v
			}
			cont := buf.next(e0, e1)
			swap := -1
			if cont < 0 {
				s0, s1 := strip[0], v
				if parity != 0 {
					s0, s1 = v, strip[0]
				}
				swap = buf.next(s0, s1)
			}

			if cont < 0 && swap >= 0 {
				// [a b c d e] -> [a b a c d e] keeps the winding
				dst[size] = strip[0]
				dst[size+1] = v
				size += 2
				strip[1] = v
				next = swap
			} else {
				dst[size] = v
				size++
				strip[0], strip[1] = strip[1], v
				parity ^= 1
				next = cont
			}
			continue
		}

		i := buf.first(valence)
		t := buf.tris[i]
		a, b, c := t[0], t[1], t[2]
		buf.removeAt(i)
		valence[a]--
		valence[b]--
		valence[c]--

		// rotate so the outgoing edge continues into the buffer
		ea := buf.next(c, b)
		eb := buf.next(a, c)
		ec := buf.next(b, a)
		best := math.MaxInt
		for _, e := range [3]int{ea, eb, ec} {
			if e >= 0 && e < best {
				best = e
			}
		}
		switch best {
		case ea:
			next = ea
		case eb:
			a, b, c = b, c, a
			next = eb
		case ec:
			a, b, c = c, a, b
			next = ec
		}

		if restartIndex != 0 {
			if size > 0 {
				dst[size] = restartIndex
				size++
			}
			dst[size], dst[size+1], dst[size+2] = a, b, c
			size += 3
			strip = [2]uint32{b, c}
			parity = 1
			continue
		}

		if size > 0 {
			// degenerate triangles bridge the previous strip
			dst[size], dst[size+1] = strip[1], a
			size += 2
		}
		e0, e1 := b, c
		if parity != 0 {
			e0, e1 = c, b
		}
		dst[size], dst[size+1], dst[size+2] = a, e0, e1
		size += 3
		strip = [2]uint32{e0, e1}
		parity ^= 1
	}
	return size, nil
}

// UnstripifyBound returns the worst-case triangle list length for a strip.
func UnstripifyBound(indexCount int) int {
	if indexCount < 3 {
		return 0
	}
	return (indexCount - 2) * 3
}

// Unstripify converts a triangle strip back into a triangle list, dropping
// degenerate triangles. restartIndex 0 means the strip has no restarts.
// Returns the list length.
func Unstripify(dst, indices []uint32, restartIndex uint32) (int, error) {
	if len(dst) < UnstripifyBound(len(indices)) {
		return 0, fmt.Errorf("%w: list buffer %d < %d", ErrBufferTooSmall, len(dst), UnstripifyBound(len(indices)))
	}

	offset := 0
	start := 0
	for i, index := range indices {
		if restartIndex != 0 && index == restartIndex {
			start = i + 1
			continue
		}
		if i-start < 2 {
			continue
		}
		a, b, c := indices[i-2], indices[i-1], index
		if (i-start)&1 != 0 {
			a, b = b, a
		}
		if a != b && a != c && b != c {
			dst[offset], dst[offset+1], dst[offset+2] = a, b, c
			offset += 3
		}
	}
	return offset, nil
}
