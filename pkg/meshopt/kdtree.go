package meshopt

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/meshopt/pkg/math"
)

const kdLeafAxis = 3

// kdNode is either a split plane or a leaf. A leaf stores its first point in
// index and the remaining children points in the nodes immediately following it.
// For a split, children is the size of the left subtree.
type kdNode struct {
	split    float32
	index    uint32
	axis     uint8
	children uint32
}

type kdTree struct {
	nodes  []kdNode
	points []math.Vec3
}

func newKDTree(points []math.Vec3, leafSize int) *kdTree {
	t := &kdTree{nodes: make([]kdNode, len(points)*2), points: points}
	indices := make([]uint32, len(points))
	for i := range indices {
		indices[i] = uint32(i)
	}
	if len(points) > 0 {
		t.build(0, indices, leafSize)
	}
	return t
}

func (t *kdTree) buildLeaf(offset int, indices []uint32) int {
	t.nodes[offset] = kdNode{index: indices[0], axis: kdLeafAxis, children: uint32(len(indices) - 1)}
	for i := 1; i < len(indices); i++ {
		t.nodes[offset+i] = kdNode{index: indices[i], axis: kdLeafAxis}
	}
	return offset + len(indices)
}

func (t *kdTree) build(offset int, indices []uint32, leafSize int) int {
	if len(indices) <= leafSize {
		return t.buildLeaf(offset, indices)
	}

	// Welford's running mean and variance
	var mean, vars [3]float32
	for i, idx := range indices {
		p := t.points[idx]
		inv := 1 / float32(i+1)
		for k := 0; k < 3; k++ {
			v := p.Idx(k)
			delta := v - mean[k]
			mean[k] += delta * inv
			vars[k] += delta * (v - mean[k])
		}
	}

	axis := 2
	if vars[0] >= vars[1] && vars[0] >= vars[2] {
		axis = 0
	} else if vars[1] >= vars[2] {
		axis = 1
	}
	split := mean[axis]

	middle := 0
	for i, idx := range indices {
		if t.points[idx].Idx(axis) < split {
			indices[middle], indices[i] = indices[i], indices[middle]
			middle++
		}
	}

	// degenerate partitions collapse into a single leaf
	if middle <= leafSize/2 || middle >= len(indices)-leafSize/2 {
		return t.buildLeaf(offset, indices)
	}

	next := t.build(offset+1, indices[:middle], leafSize)
	t.nodes[offset] = kdNode{split: split, axis: uint8(axis), children: uint32(next - offset - 1)}
	return t.build(next, indices[middle:], leafSize)
}

// nearest finds the closest point to position not flagged in skip, updating
// result and limit in place.
func (t *kdTree) nearest(root int, skip []bool, position math.Vec3, result *uint32, limit *float32) {
	node := t.nodes[root]
	if node.axis == kdLeafAxis {
		for i := 0; i <= int(node.children); i++ {
			index := t.nodes[root+i].index
			if skip[index] {
				continue
			}
			d := t.points[index].Distance(position)
			if d < *limit {
				*result = index
				*limit = d
			}
		}
		return
	}

	// visit the side containing position first
	delta := position.Idx(int(node.axis)) - node.split
	first, second := 0, int(node.children)
	if delta > 0 {
		first, second = second, first
	}
	t.nearest(root+1+first, skip, position, result, limit)
	if math32.Abs(delta) <= *limit {
		t.nearest(root+1+second, skip, position, result, limit)
	}
}
