package meshopt

import (
	"fmt"
	"sort"

	"github.com/Faultbox/meshopt/pkg/math"
)

// part1By2 spreads the low 10 bits of x so there are two zero bits between each.
func part1By2(x uint32) uint32 {
	x &= 0x000003ff
	x = (x ^ (x << 16)) & 0xff0000ff
	x = (x ^ (x << 8)) & 0x0300f00f
	x = (x ^ (x << 4)) & 0x030c30c3
	x = (x ^ (x << 2)) & 0x09249249
	return x
}

// mortonKeys quantizes points to a 10-bit grid over their bounds and
// interleaves the coordinates into 30-bit Morton codes.
func mortonKeys(points []math.Vec3) []uint32 {
	keys := make([]uint32, len(points))
	if len(points) == 0 {
		return keys
	}
	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		lo = lo.Min(p)
		hi = hi.Max(p)
	}
	extent := hi.Sub(lo).MaxComponent()
	scale := float32(0)
	if extent > 0 {
		scale = 1 / extent
	}
	for i, p := range points {
		q := p.Sub(lo).Scale(scale)
		x := uint32(q.X*1023 + 0.5)
		y := uint32(q.Y*1023 + 0.5)
		z := uint32(q.Z*1023 + 0.5)
		keys[i] = part1By2(x) | part1By2(y)<<1 | part1By2(z)<<2
	}
	return keys
}

func sortedOrder(keys []uint32) []int {
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return keys[order[i]] < keys[order[j]] })
	return order
}

// SpatialSortRemap computes a remap table that orders vertices along a Morton
// curve, improving locality for point clouds and unindexed geometry. dst must
// hold vertexCount entries.
func SpatialSortRemap(dst []uint32, positions []float32, vertexCount, stride int) error {
	if err := validatePositions(positions, stride, vertexCount); err != nil {
		return err
	}
	if len(dst) < vertexCount {
		return fmt.Errorf("%w: remap %d < %d vertices", ErrBufferTooSmall, len(dst), vertexCount)
	}

	points := make([]math.Vec3, vertexCount)
	for i := range points {
		points[i] = math.V3(positions[i*stride:])
	}
	for rank, v := range sortedOrder(mortonKeys(points)) {
		dst[v] = uint32(rank)
	}
	return nil
}

// SpatialSortTriangles reorders triangles by the Morton code of their
// centroids. Useful before clustering when the input order carries no locality.
// dst may alias indices.
func SpatialSortTriangles(dst, indices []uint32, positions []float32, vertexCount, stride int) error {
	if err := validateTriangles(indices, vertexCount); err != nil {
		return err
	}
	if err := validatePositions(positions, stride, vertexCount); err != nil {
		return err
	}
	if len(dst) < len(indices) {
		return fmt.Errorf("%w: destination %d < %d indices", ErrBufferTooSmall, len(dst), len(indices))
	}

	indices = append([]uint32(nil), indices...)
	centroids := make([]math.Vec3, len(indices)/3)
	for t := range centroids {
		a := math.V3(positions[int(indices[t*3])*stride:])
		b := math.V3(positions[int(indices[t*3+1])*stride:])
		c := math.V3(positions[int(indices[t*3+2])*stride:])
		centroids[t] = a.Add(b).Add(c).Scale(1.0 / 3)
	}
	for i, t := range sortedOrder(mortonKeys(centroids)) {
		copy(dst[i*3:i*3+3], indices[t*3:t*3+3])
	}
	return nil
}
