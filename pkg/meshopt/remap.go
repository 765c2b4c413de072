package meshopt

import "fmt"

// Unused marks remap entries for vertices no index references.
const Unused = ^uint32(0)

// GenerateVertexRemap builds a remap table that collapses bytewise-identical
// vertices. dst must hold vertexCount entries. indices may be nil, meaning the
// vertex buffer is an unindexed triangle list. Returns the unique vertex count.
func GenerateVertexRemap(dst, indices []uint32, vertexCount int, vertices Stream) (int, error) {
	return GenerateVertexRemapMulti(dst, indices, vertexCount, []Stream{vertices})
}

// GenerateVertexRemapMulti is GenerateVertexRemap for vertices split across up to
// MaxStreams streams. Two vertices are equal when every stream matches.
func GenerateVertexRemapMulti(dst, indices []uint32, vertexCount int, streams []Stream) (int, error) {
	if err := validateStreams(streams); err != nil {
		return 0, err
	}
	if len(dst) < vertexCount {
		return 0, fmt.Errorf("%w: remap has %d entries for %d vertices", ErrBufferTooSmall, len(dst), vertexCount)
	}
	for _, s := range streams {
		if s.Count() < vertexCount {
			return 0, fmt.Errorf("%w: stream holds %d of %d vertices", ErrInvalidArgument, s.Count(), vertexCount)
		}
	}
	if indices != nil {
		if err := validateIndices(indices, vertexCount); err != nil {
			return 0, err
		}
	}

	for i := 0; i < vertexCount; i++ {
		dst[i] = Unused
	}

	h := vertexHasher{streams: streams}
	table := newHashTable(vertexCount)
	next := uint32(0)

	visit := func(index uint32) {
		if dst[index] != Unused {
			return
		}
		slot := table.find(h, index)
		if found := table.slots[slot]; found != hashEmpty {
			dst[index] = dst[found]
			return
		}
		table.slots[slot] = index
		dst[index] = next
		next++
	}

	if indices == nil {
		for i := 0; i < vertexCount; i++ {
			visit(uint32(i))
		}
	} else {
		for _, index := range indices {
			visit(index)
		}
	}
	return int(next), nil
}

// RemapIndexBuffer writes remap[indices[i]] to dst[i]. A nil indices slice
// means sequential indices over len(dst) vertices. dst may alias indices.
func RemapIndexBuffer(dst, indices, remap []uint32) {
	if indices == nil {
		for i := range dst {
			dst[i] = remap[i]
		}
		return
	}
	for i, index := range indices {
		dst[i] = remap[index]
	}
}

// RemapVertexBuffer copies each vertex to its remapped slot in dst.
// Vertices marked Unused are dropped. dst must not alias vertices.
func RemapVertexBuffer(dst, vertices []byte, vertexCount, vertexSize int, remap []uint32) {
	for i := 0; i < vertexCount; i++ {
		if remap[i] == Unused {
			continue
		}
		to := int(remap[i]) * vertexSize
		copy(dst[to:to+vertexSize], vertices[i*vertexSize:(i+1)*vertexSize])
	}
}

// RemapVertexBufferInPlace applies remap to vertices in place through a scratch copy.
func RemapVertexBufferInPlace(vertices []byte, vertexCount, vertexSize int, remap []uint32) {
	scratch := make([]byte, vertexCount*vertexSize)
	copy(scratch, vertices)
	RemapVertexBuffer(vertices, scratch, vertexCount, vertexSize, remap)
}
