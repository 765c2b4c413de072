package meshopt

import "fmt"

// OptimizeVertexFetchRemap computes a remap table that orders vertices by first
// use in indices. Unreferenced vertices map to Unused. dst must hold vertexCount
// entries. Returns the number of referenced vertices.
func OptimizeVertexFetchRemap(dst, indices []uint32, vertexCount int) (int, error) {
	if len(dst) < vertexCount {
		return 0, fmt.Errorf("%w: remap %d < %d vertices", ErrBufferTooSmall, len(dst), vertexCount)
	}
	if err := validateIndices(indices, vertexCount); err != nil {
		return 0, err
	}
	for i := 0; i < vertexCount; i++ {
		dst[i] = Unused
	}
	next := uint32(0)
	for _, v := range indices {
		if dst[v] == Unused {
			dst[v] = next
			next++
		}
	}
	return int(next), nil
}

// OptimizeVertexFetch reorders vertices by first use and rewrites indices in
// place to match. Referenced vertices are packed at the front of dst; the
// remaining space is left untouched. Returns the number of referenced vertices.
func OptimizeVertexFetch(dst []byte, indices []uint32, vertices []byte, vertexCount, vertexSize int) (int, error) {
	if vertexSize <= 0 || len(vertices) < vertexCount*vertexSize {
		return 0, fmt.Errorf("%w: vertex buffer %d bytes for %d x %d", ErrInvalidArgument, len(vertices), vertexCount, vertexSize)
	}
	if len(dst) < vertexCount*vertexSize {
		return 0, fmt.Errorf("%w: destination %d bytes", ErrBufferTooSmall, len(dst))
	}
	remap := make([]uint32, vertexCount)
	count, err := OptimizeVertexFetchRemap(remap, indices, vertexCount)
	if err != nil {
		return 0, err
	}

	// dst may alias vertices
	src := append([]byte(nil), vertices[:vertexCount*vertexSize]...)
	RemapVertexBuffer(dst, src, vertexCount, vertexSize, remap)
	RemapIndexBuffer(indices, indices, remap)
	return count, nil
}
