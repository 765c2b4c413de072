package meshopt

import "fmt"

// GenerateShadowIndexBuffer writes an index buffer where each index points at
// the first vertex whose Size bytes match. Useful for depth-only passes that
// ignore attributes. dst may alias indices.
func GenerateShadowIndexBuffer(dst, indices []uint32, vertexCount int, vertices Stream) error {
	return GenerateShadowIndexBufferMulti(dst, indices, vertexCount, []Stream{vertices})
}

// GenerateShadowIndexBufferMulti is GenerateShadowIndexBuffer over several streams.
func GenerateShadowIndexBufferMulti(dst, indices []uint32, vertexCount int, streams []Stream) error {
	if err := validateStreams(streams); err != nil {
		return err
	}
	if len(dst) < len(indices) {
		return fmt.Errorf("%w: shadow buffer %d < %d", ErrBufferTooSmall, len(dst), len(indices))
	}
	if err := validateIndices(indices, vertexCount); err != nil {
		return err
	}

	remap := make([]uint32, vertexCount)
	for i := range remap {
		remap[i] = Unused
	}
	h := vertexHasher{streams: streams}
	table := newHashTable(vertexCount)

	for i, index := range indices {
		if remap[index] == Unused {
			slot := table.find(h, index)
			if table.slots[slot] == hashEmpty {
				table.slots[slot] = index
			}
			remap[index] = table.slots[slot]
		}
		dst[i] = remap[index]
	}
	return nil
}

var nextCorner = [3]int{1, 2, 0}

type edgeKey [2]uint32

// buildEdgeOpposites maps each directed position edge to the vertex opposite it.
func buildEdgeOpposites(indices, remap []uint32) map[edgeKey][3]uint32 {
	edges := make(map[edgeKey][3]uint32, len(indices))
	for i := 0; i+2 < len(indices); i += 3 {
		for e := 0; e < 3; e++ {
			i0 := indices[i+e]
			i1 := indices[i+nextCorner[e]]
			i2 := indices[i+nextCorner[nextCorner[e]]]
			key := edgeKey{remap[i0], remap[i1]}
			if _, ok := edges[key]; !ok {
				edges[key] = [3]uint32{i0, i1, i2}
			}
		}
	}
	return edges
}

// GenerateAdjacencyIndexBuffer writes six indices per triangle for geometry
// shaders with adjacency: each corner followed by the vertex opposite the next
// edge. Border edges repeat the triangle's own opposite vertex. Vertices are
// matched by position. dst must hold len(indices)*2 entries.
func GenerateAdjacencyIndexBuffer(dst, indices []uint32, positions []float32, vertexCount, stride int) error {
	if err := validateTriangles(indices, vertexCount); err != nil {
		return err
	}
	if err := validatePositions(positions, stride, vertexCount); err != nil {
		return err
	}
	if len(dst) < len(indices)*2 {
		return fmt.Errorf("%w: adjacency buffer %d < %d", ErrBufferTooSmall, len(dst), len(indices)*2)
	}

	remap := buildPositionRemap(positions, stride, vertexCount)
	edges := buildEdgeOpposites(indices, remap)

	for i := 0; i < len(indices); i += 3 {
		for e := 0; e < 3; e++ {
			i0 := indices[i+e]
			i1 := indices[i+nextCorner[e]]
			patch := indices[i+nextCorner[nextCorner[e]]]
			if opp, ok := edges[edgeKey{remap[i1], remap[i0]}]; ok {
				patch = opp[2]
			}
			dst[i*2+e*2] = i0
			dst[i*2+e*2+1] = patch
		}
	}
	return nil
}

// GenerateTessellationIndexBuffer writes twelve indices per triangle for
// PN-AEN tessellation: the triangle corners, the neighbouring triangle's
// version of each edge, and the dominant vertex of each corner.
// dst must hold len(indices)*4 entries.
func GenerateTessellationIndexBuffer(dst, indices []uint32, positions []float32, vertexCount, stride int) error {
	if err := validateTriangles(indices, vertexCount); err != nil {
		return err
	}
	if err := validatePositions(positions, stride, vertexCount); err != nil {
		return err
	}
	if len(dst) < len(indices)*4 {
		return fmt.Errorf("%w: tessellation buffer %d < %d", ErrBufferTooSmall, len(dst), len(indices)*4)
	}

	remap := buildPositionRemap(positions, stride, vertexCount)
	edges := buildEdgeOpposites(indices, remap)

	for i := 0; i < len(indices); i += 3 {
		out := dst[i*4 : i*4+12]
		for e := 0; e < 3; e++ {
			i0 := indices[i+e]
			i1 := indices[i+nextCorner[e]]
			out[e] = i0
			a, b := i0, i1
			if opp, ok := edges[edgeKey{remap[i1], remap[i0]}]; ok {
				// neighbour edge runs the other way
				a, b = opp[1], opp[0]
			}
			out[3+e*2] = a
			out[3+e*2+1] = b
			out[9+e] = remap[i0]
		}
	}
	return nil
}
