package meshopt

import (
	"fmt"
	"sort"

	"github.com/chewxy/math32"

	"github.com/Faultbox/meshopt/pkg/math"
)

// SimplifyOptions is a bit set of simplifier flags.
type SimplifyOptions uint32

const (
	// SimplifyLockBorder keeps vertices on the mesh border in place. Useful
	// when simplifying chunks of a larger mesh independently.
	SimplifyLockBorder SimplifyOptions = 1 << iota
)

// SimplifyAttributes adds per-vertex attribute error to Simplify.
type SimplifyAttributes struct {
	// Data holds Stride floats per vertex; the first len(Weights) are compared.
	Data    []float32
	Stride  int
	Weights []float32
	// Lock marks vertices that must not move. May be nil.
	Lock []bool
}

type vertexKind uint8

const (
	kindManifold vertexKind = iota // not on an attribute seam or border
	kindBorder                     // has exactly two open edges
	kindSeam                       // on an attribute seam with exactly two wedges
	kindLocked                     // cannot move
	kindCount
)

// canCollapse[k0][k1] reports whether a k0 vertex may move onto a k1 vertex.
var canCollapse = [kindCount][kindCount]bool{
	{true, true, true, true},
	{false, true, false, false},
	{false, false, true, false},
	{false, false, false, false},
}

// hasOpposite[k0][k1] reports whether a k0-k1 edge also appears reversed.
var hasOpposite = [kindCount][kindCount]bool{
	{true, true, true, true},
	{true, false, true, false},
	{true, true, true, true},
	{true, false, true, false},
}

// Border edges are weighted heavily so the outline survives simplification.
const (
	borderEdgeWeight = 10
	seamEdgeWeight   = 1
)

type collapse struct {
	v0, v1 uint32
	bidi   bool
	error  float32
}

// SimplifyScale returns the factor that converts relative simplification error
// into the units of positions: the largest extent of the bounding box.
func SimplifyScale(positions []float32, vertexCount, stride int) float32 {
	lo, hi := math.Bounds(positions, stride, vertexCount)
	return hi.Sub(lo).MaxComponent()
}

// Simplify reduces a triangle list by collapsing edges, lowest quadric error
// first, while keeping topology intact. It stops at targetIndexCount or when the
// next collapse would exceed targetError, which is relative to the mesh extent
// (0.01 is 1%). dst must hold len(indices) entries. Returns the resulting index
// count and the relative error reached.
func Simplify(dst, indices []uint32, positions []float32, vertexCount, stride, targetIndexCount int, targetError float32, options SimplifyOptions) (int, float32, error) {
	return SimplifyWithAttributes(dst, indices, positions, vertexCount, stride, SimplifyAttributes{}, targetIndexCount, targetError, options)
}

// SimplifyWithAttributes is Simplify with additional weighted attribute error
// and an optional per-vertex lock mask.
func SimplifyWithAttributes(dst, indices []uint32, positions []float32, vertexCount, stride int, attrs SimplifyAttributes, targetIndexCount int, targetError float32, options SimplifyOptions) (int, float32, error) {
	if err := validateTriangles(indices, vertexCount); err != nil {
		return 0, 0, err
	}
	if err := validatePositions(positions, stride, vertexCount); err != nil {
		return 0, 0, err
	}
	if targetIndexCount < 0 || targetIndexCount > len(indices) {
		return 0, 0, fmt.Errorf("%w: target index count %d", ErrInvalidArgument, targetIndexCount)
	}
	if len(dst) < len(indices) {
		return 0, 0, fmt.Errorf("%w: destination %d < %d indices", ErrBufferTooSmall, len(dst), len(indices))
	}
	if err := attrs.validate(vertexCount); err != nil {
		return 0, 0, err
	}

	s := newSimplifier(indices, positions, vertexCount, stride, attrs, options)
	count, resultError := s.run(dst, targetIndexCount, targetError)
	return count, resultError, nil
}

func (a SimplifyAttributes) validate(vertexCount int) error {
	if len(a.Weights) > 0 {
		if a.Stride < len(a.Weights) || len(a.Data) < vertexCount*a.Stride {
			return fmt.Errorf("%w: %d attribute floats with stride %d for %d weights", ErrInvalidArgument, len(a.Data), a.Stride, len(a.Weights))
		}
	}
	if a.Lock != nil && len(a.Lock) < vertexCount {
		return fmt.Errorf("%w: lock mask %d < %d vertices", ErrInvalidArgument, len(a.Lock), vertexCount)
	}
	return nil
}

type simplifier struct {
	indices     []uint32
	vertexCount int
	positions   []math.Vec3
	attrs       SimplifyAttributes

	remap []uint32
	wedge []uint32
	kind  []vertexKind
	loop  []uint32

	quadrics []quadric
}

func newSimplifier(indices []uint32, positions []float32, vertexCount, stride int, attrs SimplifyAttributes, options SimplifyOptions) *simplifier {
	s := &simplifier{
		indices:     indices,
		vertexCount: vertexCount,
		positions:   rescalePositions(positions, vertexCount, stride),
		attrs:       attrs,
	}
	s.remap = buildPositionRemap(positions, stride, vertexCount)
	s.wedge = buildWedges(s.remap)
	s.classify(options)
	s.fillQuadrics()
	return s
}

// rescalePositions maps positions into the unit cube so errors are relative.
func rescalePositions(positions []float32, vertexCount, stride int) []math.Vec3 {
	lo, hi := math.Bounds(positions, stride, vertexCount)
	extent := hi.Sub(lo).MaxComponent()
	scale := float32(0)
	if extent > 0 {
		scale = 1 / extent
	}
	out := make([]math.Vec3, vertexCount)
	for i := range out {
		out[i] = math.V3(positions[i*stride:]).Sub(lo).Scale(scale)
	}
	return out
}

// buildWedges links all vertices sharing a position into a ring.
func buildWedges(remap []uint32) []uint32 {
	wedge := make([]uint32, len(remap))
	for i := range wedge {
		wedge[i] = uint32(i)
	}
	for i, r := range remap {
		if r != uint32(i) {
			wedge[i] = wedge[r]
			wedge[r] = uint32(i)
		}
	}
	return wedge
}

// hasEdge reports whether any wedge of a has an edge to a vertex positioned at b.
func (s *simplifier) hasEdge(adj *edgeAdjacency, a, b uint32) bool {
	v := a
	for {
		for _, e := range adj.edges(v) {
			if s.remap[e.next] == s.remap[b] {
				return true
			}
		}
		v = s.wedge[v]
		if v == a {
			return false
		}
	}
}

func (s *simplifier) classify(options SimplifyOptions) {
	n := s.vertexCount
	adj := buildEdgeAdjacency(s.indices, n, nil)

	openInc := make([]uint32, n)
	openOut := make([]uint32, n)
	for i := range openInc {
		openInc[i] = Unused
		openOut[i] = Unused
	}
	// an open edge has no reverse edge; vertices with several open edges
	// collapse to themselves which marks them as complex
	for i := 0; i < n; i++ {
		for _, e := range adj.edges(uint32(i)) {
			target := e.next
			if s.hasEdge(adj, target, uint32(i)) {
				continue
			}
			if openInc[target] == Unused {
				openInc[target] = uint32(i)
			} else {
				openInc[target] = target
			}
			if openOut[i] == Unused {
				openOut[i] = target
			} else {
				openOut[i] = uint32(i)
			}
		}
	}

	s.kind = make([]vertexKind, n)
	s.loop = make([]uint32, n)
	for i := range s.loop {
		s.loop[i] = Unused
	}

	isOpen := func(v, self uint32) bool { return v != Unused && v != self }

	for i := 0; i < n; i++ {
		v := uint32(i)
		if s.remap[i] != v {
			continue
		}
		switch w := s.wedge[i]; {
		case w == v:
			oi, oo := openInc[i], openOut[i]
			switch {
			case oi == Unused && oo == Unused:
				s.kind[i] = kindManifold
			case isOpen(oi, v) && isOpen(oo, v):
				s.kind[i] = kindBorder
				s.loop[i] = oo
			default:
				s.kind[i] = kindLocked
			}
		case s.wedge[w] == v:
			oiv, oov, oiw, oow := openInc[i], openOut[i], openInc[w], openOut[w]
			// each wedge has one open half-edge and the pairs meet at the same positions
			if isOpen(oiv, v) && isOpen(oov, v) && isOpen(oiw, w) && isOpen(oow, w) &&
				s.remap[oiv] == s.remap[oow] && s.remap[oov] == s.remap[oiw] {
				s.kind[i] = kindSeam
				s.loop[i] = oov
				s.loop[w] = oow
			} else {
				s.kind[i] = kindLocked
			}
		default:
			s.kind[i] = kindLocked
		}
	}
	for i := 0; i < n; i++ {
		if r := s.remap[i]; r != uint32(i) {
			s.kind[i] = s.kind[r]
		}
	}

	for i := 0; i < n; i++ {
		locked := s.attrs.Lock != nil && s.attrs.Lock[i]
		if options&SimplifyLockBorder != 0 && s.kind[i] == kindBorder {
			locked = true
		}
		if locked {
			s.kind[s.remap[i]] = kindLocked
		}
	}
	// propagate locks set on canonical vertices back to their wedges
	for i := 0; i < n; i++ {
		s.kind[i] = s.kind[s.remap[i]]
	}
}

func (s *simplifier) fillQuadrics() {
	s.quadrics = make([]quadric, s.vertexCount)
	for t := 0; t+2 < len(s.indices); t += 3 {
		i0, i1, i2 := s.indices[t], s.indices[t+1], s.indices[t+2]
		q := triangleQuadric(s.positions[i0], s.positions[i1], s.positions[i2])
		s.quadrics[s.remap[i0]].add(q)
		s.quadrics[s.remap[i1]].add(q)
		s.quadrics[s.remap[i2]].add(q)
	}

	for t := 0; t+2 < len(s.indices); t += 3 {
		for e := 0; e < 3; e++ {
			i0 := s.indices[t+e]
			i1 := s.indices[t+nextCorner[e]]
			k0, k1 := s.kind[i0], s.kind[i1]
			if k0 != k1 || (k0 != kindBorder && k0 != kindSeam) || s.loop[i0] != i1 {
				continue
			}
			// seam edges show up twice
			if hasOpposite[k0][k1] && s.remap[i1] > s.remap[i0] {
				continue
			}
			i2 := s.indices[t+nextCorner[nextCorner[e]]]
			weight := float32(seamEdgeWeight)
			if k0 == kindBorder {
				weight = borderEdgeWeight
			}
			q := edgeQuadric(s.positions[i0], s.positions[i1], s.positions[i2], weight)
			s.quadrics[s.remap[i0]].add(q)
			s.quadrics[s.remap[i1]].add(q)
		}
	}
}

// attributeError returns the weighted squared attribute distance between two vertices.
func (s *simplifier) attributeError(a, b uint32) float32 {
	if len(s.attrs.Weights) == 0 {
		return 0
	}
	va := s.attrs.Data[int(a)*s.attrs.Stride:]
	vb := s.attrs.Data[int(b)*s.attrs.Stride:]
	var e float32
	for k, w := range s.attrs.Weights {
		d := (va[k] - vb[k]) * w
		e += d * d
	}
	return e
}

func (s *simplifier) collapseError(from, to uint32) float32 {
	return s.quadrics[s.remap[from]].error(s.positions[to]) + s.attributeError(from, to)
}

func (s *simplifier) run(dst []uint32, targetIndexCount int, targetError float32) (int, float32) {
	result := dst[:len(s.indices)]
	copy(result, s.indices)
	count := len(result)

	adj := buildEdgeAdjacency(result, s.vertexCount, s.remap)
	collapseRemap := make([]uint32, s.vertexCount)
	collapseLocked := make([]bool, s.vertexCount)

	errorLimit := targetError * targetError
	var resultError float32

	for count > targetIndexCount {
		adj.rebuild(result[:count], s.remap)

		collapses := s.pickCollapses(result[:count])
		if len(collapses) == 0 {
			break
		}
		s.rankCollapses(collapses)
		sort.SliceStable(collapses, func(i, j int) bool { return collapses[i].error < collapses[j].error })

		for i := range collapseRemap {
			collapseRemap[i] = uint32(i)
			collapseLocked[i] = false
		}

		goal := (count - targetIndexCount) / 3
		applied := s.performCollapses(collapses, adj, collapseRemap, collapseLocked, goal, errorLimit, &resultError)
		if applied == 0 {
			break
		}

		for i, l := range s.loop {
			if l == Unused {
				continue
			}
			r := collapseRemap[l]
			// a seam edge collapsed against the loop direction points back at i
			if r == uint32(i) {
				s.loop[i] = s.loop[l]
			} else {
				s.loop[i] = r
			}
		}
		count = remapTriangles(result[:count], collapseRemap)
	}
	return count, math32.Sqrt(resultError)
}

func (s *simplifier) pickCollapses(indices []uint32) []collapse {
	var out []collapse
	for t := 0; t+2 < len(indices); t += 3 {
		for e := 0; e < 3; e++ {
			i0 := indices[t+e]
			i1 := indices[t+nextCorner[e]]
			// weld edges are never collapsed
			if s.remap[i0] == s.remap[i1] {
				continue
			}
			k0, k1 := s.kind[i0], s.kind[i1]
			if !canCollapse[k0][k1] && !canCollapse[k1][k0] {
				continue
			}
			if hasOpposite[k0][k1] && s.remap[i1] > s.remap[i0] {
				continue
			}
			// two border or seam vertices on different edge loops
			if k0 == k1 && (k0 == kindBorder || k0 == kindSeam) && s.loop[i0] != i1 {
				continue
			}
			switch {
			case canCollapse[k0][k1] && canCollapse[k1][k0]:
				out = append(out, collapse{v0: i0, v1: i1, bidi: true})
			case canCollapse[k0][k1]:
				out = append(out, collapse{v0: i0, v1: i1})
			default:
				out = append(out, collapse{v0: i1, v1: i0})
			}
		}
	}
	return out
}

func (s *simplifier) rankCollapses(collapses []collapse) {
	for i := range collapses {
		c := &collapses[i]
		ei := s.collapseError(c.v0, c.v1)
		if c.bidi {
			if ej := s.collapseError(c.v1, c.v0); ej < ei {
				c.v0, c.v1 = c.v1, c.v0
				ei = ej
			}
		}
		c.error = ei
	}
}

func (s *simplifier) performCollapses(collapses []collapse, adj *edgeAdjacency, collapseRemap []uint32, locked []bool, triangleGoal int, errorLimit float32, resultError *float32) int {
	edgeCollapses := 0
	triangleCollapses := 0
	// most collapses remove two triangles
	edgeGoal := triangleGoal / 2

	for _, c := range collapses {
		if c.error > errorLimit || triangleCollapses >= triangleGoal {
			break
		}
		// many collapses get blocked by their neighbours so the pass tolerates some slack
		errorGoal := float32(math32.MaxFloat32)
		if edgeGoal < len(collapses) {
			errorGoal = 1.5 * collapses[edgeGoal].error
		}
		if c.error > errorGoal && triangleCollapses > triangleGoal/6 {
			break
		}

		i0, i1 := c.v0, c.v1
		r0, r1 := s.remap[i0], s.remap[i1]
		// a vertex moves at most once per pass
		if locked[r0] || locked[r1] {
			continue
		}
		if s.hasTriangleFlips(adj, collapseRemap, r0, r1) {
			edgeGoal++
			continue
		}

		s.quadrics[r1].add(s.quadrics[r0])

		if s.kind[i0] == kindSeam {
			collapseRemap[i0] = i1
			collapseRemap[s.wedge[i0]] = s.wedge[i1]
		} else {
			collapseRemap[i0] = i1
		}
		locked[r0] = true
		locked[r1] = true

		if s.kind[i0] == kindBorder {
			triangleCollapses++
		} else {
			triangleCollapses += 2
		}
		edgeCollapses++
		*resultError = max(*resultError, c.error)
	}
	return edgeCollapses
}

// hasTriangleFlips reports whether moving i0 onto i1 turns any surviving triangle around i0.
func (s *simplifier) hasTriangleFlips(adj *edgeAdjacency, collapseRemap []uint32, i0, i1 uint32) bool {
	v0, v1 := s.positions[i0], s.positions[i1]
	for _, e := range adj.edges(i0) {
		a := s.remap[collapseRemap[e.next]]
		b := s.remap[collapseRemap[e.prev]]
		// triangles removed by this collapse or earlier ones
		if a == i1 || b == i1 || a == b {
			continue
		}
		pa, pb := s.positions[a], s.positions[b]
		eb := pb.Sub(pa)
		nbc := eb.Cross(v0.Sub(pa))
		nbd := eb.Cross(v1.Sub(pa))
		if nbc.Dot(nbd) <= 0 {
			return true
		}
	}
	return false
}

// remapTriangles applies collapseRemap and drops degenerate triangles, returning the new count.
func remapTriangles(indices, collapseRemap []uint32) int {
	count := 0
	for t := 0; t+2 < len(indices); t += 3 {
		v0 := collapseRemap[indices[t]]
		v1 := collapseRemap[indices[t+1]]
		v2 := collapseRemap[indices[t+2]]
		if v0 != v1 && v0 != v2 && v1 != v2 {
			indices[count], indices[count+1], indices[count+2] = v0, v1, v2
			count += 3
		}
	}
	return count
}
