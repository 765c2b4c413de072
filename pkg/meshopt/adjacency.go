package meshopt

// triangleAdjacency lists the triangles incident to each vertex in CSR form:
// triangles of vertex v are data[offsets[v] : offsets[v]+counts[v]].
type triangleAdjacency struct {
	counts  []uint32
	offsets []uint32
	data    []uint32
}

func buildTriangleAdjacency(indices []uint32, vertexCount int) *triangleAdjacency {
	adj := &triangleAdjacency{
		counts:  make([]uint32, vertexCount),
		offsets: make([]uint32, vertexCount),
		data:    make([]uint32, len(indices)),
	}
	for _, v := range indices {
		adj.counts[v]++
	}
	offset := uint32(0)
	for v := 0; v < vertexCount; v++ {
		adj.offsets[v] = offset
		offset += adj.counts[v]
	}
	// offsets advance while filling and are rewound afterwards
	for i, v := range indices {
		adj.data[adj.offsets[v]] = uint32(i / 3)
		adj.offsets[v]++
	}
	for v := 0; v < vertexCount; v++ {
		adj.offsets[v] -= adj.counts[v]
	}
	return adj
}

// triangles returns the triangles incident to v.
func (a *triangleAdjacency) triangles(v uint32) []uint32 {
	return a.data[a.offsets[v] : a.offsets[v]+a.counts[v]]
}

// remove drops triangle t from v's list, keeping order irrelevant.
func (a *triangleAdjacency) remove(v, t uint32) {
	list := a.triangles(v)
	for i, x := range list {
		if x == t {
			list[i] = list[len(list)-1]
			a.counts[v]--
			return
		}
	}
}

// halfEdge is a directed edge v->next leaving a vertex, with prev closing its triangle.
type halfEdge struct {
	next uint32
	prev uint32
}

// edgeAdjacency lists outgoing half-edges per vertex in CSR form.
type edgeAdjacency struct {
	counts  []uint32
	offsets []uint32
	data    []halfEdge
}

func buildEdgeAdjacency(indices []uint32, vertexCount int, remap []uint32) *edgeAdjacency {
	adj := &edgeAdjacency{
		counts:  make([]uint32, vertexCount),
		offsets: make([]uint32, vertexCount),
		data:    make([]halfEdge, len(indices)),
	}
	adj.rebuild(indices, remap)
	return adj
}

// rebuild refills the adjacency from indices, mapping vertices through remap when set.
func (adj *edgeAdjacency) rebuild(indices, remap []uint32) {
	for i := range adj.counts {
		adj.counts[i] = 0
	}
	adj.data = adj.data[:len(indices)]
	for _, v := range indices {
		adj.counts[mapped(remap, v)]++
	}
	offset := uint32(0)
	for v := range adj.counts {
		adj.offsets[v] = offset
		offset += adj.counts[v]
	}
	for i := 0; i+2 < len(indices); i += 3 {
		a := mapped(remap, indices[i])
		b := mapped(remap, indices[i+1])
		c := mapped(remap, indices[i+2])
		adj.data[adj.offsets[a]] = halfEdge{next: b, prev: c}
		adj.offsets[a]++
		adj.data[adj.offsets[b]] = halfEdge{next: c, prev: a}
		adj.offsets[b]++
		adj.data[adj.offsets[c]] = halfEdge{next: a, prev: b}
		adj.offsets[c]++
	}
	for v := range adj.counts {
		adj.offsets[v] -= adj.counts[v]
	}
}

func mapped(remap []uint32, v uint32) uint32 {
	if remap == nil {
		return v
	}
	return remap[v]
}

// edges returns the outgoing half-edges of v.
func (a *edgeAdjacency) edges(v uint32) []halfEdge {
	return a.data[a.offsets[v] : a.offsets[v]+a.counts[v]]
}

// hasEdge reports whether the directed edge a->b exists.
func (a *edgeAdjacency) hasEdge(from, to uint32) bool {
	for _, e := range a.edges(from) {
		if e.next == to {
			return true
		}
	}
	return false
}
