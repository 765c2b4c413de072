package meshopt

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/Faultbox/meshopt/pkg/math"
)

// Meshlet size limits.
const (
	MeshletMaxVertices  = 255
	MeshletMaxTriangles = 512
)

const meshletUnused = 0xff

// Meshlet references a slice of the shared vertex and triangle arrays filled by
// BuildMeshlets. Triangles hold three local vertex indices per triangle and each
// meshlet's triangle range starts at a multiple of 4 bytes.
type Meshlet struct {
	VertexOffset   uint32
	TriangleOffset uint32
	VertexCount    uint32
	TriangleCount  uint32
}

// Vertices returns the meshlet's global vertex indices.
func (m Meshlet) Vertices(meshletVertices []uint32) []uint32 {
	return meshletVertices[m.VertexOffset : m.VertexOffset+m.VertexCount]
}

// Triangles returns the meshlet's local triangle corners.
func (m Meshlet) Triangles(meshletTriangles []byte) []byte {
	return meshletTriangles[m.TriangleOffset : m.TriangleOffset+m.TriangleCount*3]
}

func validateMeshletLimits(maxVertices, maxTriangles int) error {
	if maxVertices < 3 || maxVertices > MeshletMaxVertices {
		return fmt.Errorf("%w: max vertices %d outside [3, %d]", ErrInvalidArgument, maxVertices, MeshletMaxVertices)
	}
	if maxTriangles < 4 || maxTriangles > MeshletMaxTriangles || maxTriangles%4 != 0 {
		return fmt.Errorf("%w: max triangles %d must be a multiple of 4 up to %d", ErrInvalidArgument, maxTriangles, MeshletMaxTriangles)
	}
	return nil
}

// BuildMeshletsBound returns the maximum number of meshlets BuildMeshlets or
// BuildMeshletsScan can produce. The vertex and triangle arrays need
// bound*maxVertices and bound*maxTriangles*3 entries.
func BuildMeshletsBound(indexCount, maxVertices, maxTriangles int) int {
	// a meshlet may close with two vertex slots left unused
	conservative := maxVertices - 2
	byVertices := (indexCount + conservative - 1) / conservative
	byTriangles := (indexCount/3 + maxTriangles - 1) / maxTriangles
	return max(byVertices, byTriangles)
}

// meshletWriter appends triangles to meshlets, closing them when full.
type meshletWriter struct {
	meshlets  []Meshlet
	vertices  []uint32
	triangles []byte

	used         []byte
	current      Meshlet
	count        int
	maxVertices  uint32
	maxTriangles uint32
}

func newMeshletWriter(meshlets []Meshlet, vertices []uint32, triangles []byte, vertexCount, maxVertices, maxTriangles int) *meshletWriter {
	used := make([]byte, vertexCount)
	for i := range used {
		used[i] = meshletUnused
	}
	return &meshletWriter{
		meshlets:     meshlets,
		vertices:     vertices,
		triangles:    triangles,
		used:         used,
		maxVertices:  uint32(maxVertices),
		maxTriangles: uint32(maxTriangles),
	}
}

// newVertices counts how many of a, b, c are not in the current meshlet.
func (w *meshletWriter) newVertices(a, b, c uint32) uint32 {
	n := uint32(0)
	for _, v := range [3]uint32{a, b, c} {
		if w.used[v] == meshletUnused {
			n++
		}
	}
	return n
}

func (w *meshletWriter) fits(extra uint32) bool {
	return w.current.VertexCount+extra <= w.maxVertices && w.current.TriangleCount < w.maxTriangles
}

// pad zero-fills the triangle array up to a 4 byte boundary.
func (w *meshletWriter) pad() {
	offset := w.current.TriangleOffset + w.current.TriangleCount*3
	for offset&3 != 0 {
		w.triangles[offset] = 0
		offset++
	}
}

func (w *meshletWriter) flush() {
	w.meshlets[w.count] = w.current
	w.count++
	for _, v := range w.current.Vertices(w.vertices) {
		w.used[v] = meshletUnused
	}
	w.pad()
	w.current.VertexOffset += w.current.VertexCount
	w.current.TriangleOffset += (w.current.TriangleCount*3 + 3) &^ 3
	w.current.VertexCount = 0
	w.current.TriangleCount = 0
}

// append adds a triangle and reports whether a meshlet was closed first.
func (w *meshletWriter) append(a, b, c uint32) bool {
	closed := false
	if !w.fits(w.newVertices(a, b, c)) {
		w.flush()
		closed = true
	}
	var local [3]byte
	for k, v := range [3]uint32{a, b, c} {
		if w.used[v] == meshletUnused {
			w.used[v] = byte(w.current.VertexCount)
			w.vertices[w.current.VertexOffset+w.current.VertexCount] = v
			w.current.VertexCount++
		}
		local[k] = w.used[v]
	}
	copy(w.triangles[w.current.TriangleOffset+w.current.TriangleCount*3:], local[:])
	w.current.TriangleCount++
	return closed
}

// finish emits the last partial meshlet and returns the meshlet count.
func (w *meshletWriter) finish() int {
	if w.current.TriangleCount > 0 {
		w.pad()
		w.meshlets[w.count] = w.current
		w.count++
	}
	return w.count
}

func checkMeshletOutputs(meshlets []Meshlet, vertices []uint32, triangles []byte, indexCount, maxVertices, maxTriangles int) error {
	bound := BuildMeshletsBound(indexCount, maxVertices, maxTriangles)
	if len(meshlets) < bound || len(vertices) < bound*maxVertices || len(triangles) < bound*maxTriangles*3 {
		return fmt.Errorf("%w: meshlet outputs need %d meshlets", ErrBufferTooSmall, bound)
	}
	return nil
}

// BuildMeshletsScan splits a cache-optimized triangle list into meshlets in
// index order, starting a new meshlet whenever the current one is full.
// Returns the meshlet count.
func BuildMeshletsScan(meshlets []Meshlet, meshletVertices []uint32, meshletTriangles []byte, indices []uint32, vertexCount, maxVertices, maxTriangles int) (int, error) {
	if err := validateMeshletLimits(maxVertices, maxTriangles); err != nil {
		return 0, err
	}
	if err := validateTriangles(indices, vertexCount); err != nil {
		return 0, err
	}
	if err := checkMeshletOutputs(meshlets, meshletVertices, meshletTriangles, len(indices), maxVertices, maxTriangles); err != nil {
		return 0, err
	}

	w := newMeshletWriter(meshlets, meshletVertices, meshletTriangles, vertexCount, maxVertices, maxTriangles)
	for i := 0; i < len(indices); i += 3 {
		w.append(indices[i], indices[i+1], indices[i+2])
	}
	return w.finish(), nil
}

// triangleCone is a triangle centroid and unit normal.
type triangleCone struct {
	p math.Vec3
	n math.Vec3
}

func computeTriangleCones(indices []uint32, positions []float32, stride int) ([]triangleCone, float32) {
	cones := make([]triangleCone, len(indices)/3)
	var meshArea float32
	for t := range cones {
		p0 := math.V3(positions[int(indices[t*3])*stride:])
		p1 := math.V3(positions[int(indices[t*3+1])*stride:])
		p2 := math.V3(positions[int(indices[t*3+2])*stride:])
		normal := p1.Sub(p0).Cross(p2.Sub(p0))
		area := normal.Length()
		cones[t] = triangleCone{p: p0.Add(p1).Add(p2).Scale(1.0 / 3), n: normal.Normalize()}
		meshArea += area
	}
	return cones, meshArea
}

// meshletScore favours close triangles whose normal agrees with the meshlet cone. Lower is better.
func meshletScore(distance2, spread, coneWeight, expectedRadius float32) float32 {
	cone := max(1-spread*coneWeight, 1e-3)
	return (1 + math32.Sqrt(distance2)/expectedRadius*(1-coneWeight)) * cone
}

type meshletBuilder struct {
	*meshletWriter
	indices        []uint32
	adj            *triangleAdjacency
	live           []uint32
	cones          []triangleCone
	expectedRadius float32
	coneWeight     float32
}

// neighbor picks the best unemitted triangle sharing a vertex with the current
// meshlet. With cone == nil it scores topologically by remaining valence.
func (b *meshletBuilder) neighbor(cone *triangleCone) (int, uint32) {
	best := -1
	bestExtra := uint32(5)
	bestScore := float32(math32.MaxFloat32)

	for _, v := range b.current.Vertices(b.vertices) {
		for _, t := range b.adj.triangles(v) {
			i0, i1, i2 := b.indices[t*3], b.indices[t*3+1], b.indices[t*3+2]
			extra := b.newVertices(i0, i1, i2)
			if extra != 0 {
				// dangling triangles are expensive to pick up later
				if b.live[i0] == 1 || b.live[i1] == 1 || b.live[i2] == 1 {
					extra = 0
				}
				extra++
			}
			// topology always outranks score
			if extra > bestExtra {
				continue
			}

			var score float32
			if cone != nil {
				tc := b.cones[t]
				distance2 := tc.p.Sub(cone.p).LengthSq()
				spread := tc.n.Dot(cone.n)
				score = meshletScore(distance2, spread, b.coneWeight, b.expectedRadius)
			} else {
				score = float32(b.live[i0] + b.live[i1] + b.live[i2] - 3)
			}

			if extra < bestExtra || score < bestScore {
				best, bestExtra, bestScore = int(t), extra, score
			}
		}
	}
	return best, bestExtra
}

// BuildMeshlets partitions a triangle list into meshlets of at most maxVertices
// vertices and maxTriangles triangles. Triangles are added greedily by shared
// vertices, distance to the meshlet centroid and, with coneWeight in (0, 1],
// agreement with the meshlet normal cone. When no neighbour is left the nearest
// remaining triangle is used. Returns the meshlet count.
func BuildMeshlets(meshlets []Meshlet, meshletVertices []uint32, meshletTriangles []byte, indices []uint32, positions []float32, vertexCount, stride, maxVertices, maxTriangles int, coneWeight float32) (int, error) {
	if err := validateMeshletLimits(maxVertices, maxTriangles); err != nil {
		return 0, err
	}
	if coneWeight < 0 || coneWeight > 1 {
		return 0, fmt.Errorf("%w: cone weight %g outside [0, 1]", ErrInvalidArgument, coneWeight)
	}
	if err := validateTriangles(indices, vertexCount); err != nil {
		return 0, err
	}
	if err := validatePositions(positions, stride, vertexCount); err != nil {
		return 0, err
	}
	if err := checkMeshletOutputs(meshlets, meshletVertices, meshletTriangles, len(indices), maxVertices, maxTriangles); err != nil {
		return 0, err
	}

	faceCount := len(indices) / 3
	adj := buildTriangleAdjacency(indices, vertexCount)
	cones, meshArea := computeTriangleCones(indices, positions, stride)

	// a meshlet is roughly a square patch of maxTriangles average triangles
	var expectedRadius float32
	if faceCount > 0 {
		expectedRadius = math32.Sqrt(meshArea/float32(faceCount)*0.5*float32(maxTriangles)) * 0.5
	}
	if expectedRadius == 0 {
		expectedRadius = 1
	}

	centroids := make([]math.Vec3, faceCount)
	for i, c := range cones {
		centroids[i] = c.p
	}
	tree := newKDTree(centroids, 8)
	emitted := make([]bool, faceCount)

	b := &meshletBuilder{
		meshletWriter:  newMeshletWriter(meshlets, meshletVertices, meshletTriangles, vertexCount, maxVertices, maxTriangles),
		indices:        indices,
		adj:            adj,
		live:           append([]uint32(nil), adj.counts...),
		cones:          cones,
		expectedRadius: expectedRadius,
		coneWeight:     coneWeight,
	}

	var acc triangleCone
	for {
		cone := meshletCone(acc, b.current.TriangleCount)

		best, extra := b.neighbor(&cone)
		// spatial scoring means little once the meshlet is full
		if best >= 0 && !b.fits(extra) {
			best, _ = b.neighbor(nil)
		}
		if best < 0 {
			index := Unused
			limit := float32(math32.MaxFloat32)
			if faceCount > 0 {
				tree.nearest(0, emitted, cone.p, &index, &limit)
			}
			if index == Unused {
				break
			}
			best = int(index)
		}

		a, bv, c := indices[best*3], indices[best*3+1], indices[best*3+2]
		if b.append(a, bv, c) {
			acc = triangleCone{}
		}

		b.live[a]--
		b.live[bv]--
		b.live[c]--
		for _, v := range [3]uint32{a, bv, c} {
			adj.remove(v, uint32(best))
		}

		acc.p = acc.p.Add(cones[best].p)
		acc.n = acc.n.Add(cones[best].n)
		emitted[best] = true
	}
	return b.finish(), nil
}

func meshletCone(acc triangleCone, triangleCount uint32) triangleCone {
	if triangleCount == 0 {
		return triangleCone{n: acc.n.Normalize()}
	}
	return triangleCone{p: acc.p.Scale(1 / float32(triangleCount)), n: acc.n.Normalize()}
}

// OptimizeMeshlet reorders a meshlet's triangles for vertex reuse and its
// vertices for access locality. vertices and triangles are the meshlet's own
// ranges, as returned by Meshlet.Vertices and Meshlet.Triangles. Membership is
// unchanged.
func OptimizeMeshlet(vertices []uint32, triangles []byte) error {
	if len(vertices) > MeshletMaxVertices || len(triangles)%3 != 0 || len(triangles)/3 > MeshletMaxTriangles {
		return fmt.Errorf("%w: meshlet with %d vertices and %d corners", ErrInvalidArgument, len(vertices), len(triangles))
	}
	for _, c := range triangles {
		if int(c) >= len(vertices) {
			return fmt.Errorf("%w: local index %d out of range %d", ErrInvalidArgument, c, len(vertices))
		}
	}

	triangleCount := len(triangles) / 3
	// timestamps are per triangle and compared with wrapping byte arithmetic
	var cache [MeshletMaxVertices]byte
	cacheLast := byte(128)
	const cacheCutoff = 3

	for i := 0; i < triangleCount; i++ {
		next, nextMatch := -1, -1
		for j := i; j < triangleCount; j++ {
			match := 0
			for _, v := range triangles[j*3 : j*3+3] {
				if cacheLast-cache[v] < cacheCutoff {
					match++
				}
			}
			if match > nextMatch {
				next, nextMatch = j, match
				// two cached vertices is enough for strip-like traversal
				if nextMatch >= 2 {
					break
				}
			}
		}

		var tri [3]byte
		copy(tri[:], triangles[next*3:next*3+3])
		// shift instead of swap to keep the remaining order
		copy(triangles[(i+1)*3:(next+1)*3], triangles[i*3:next*3])
		copy(triangles[i*3:], tri[:])

		cacheLast++
		cache[tri[0]] = cacheLast
		cache[tri[1]] = cacheLast
		cache[tri[2]] = cacheLast
	}

	var order [MeshletMaxVertices]uint32
	var remap [MeshletMaxVertices]byte
	for i := range remap {
		remap[i] = meshletUnused
	}
	count := 0
	for i, c := range triangles {
		if remap[c] == meshletUnused {
			remap[c] = byte(count)
			order[count] = vertices[c]
			count++
		}
		triangles[i] = remap[c]
	}
	copy(vertices, order[:count])
	return nil
}
