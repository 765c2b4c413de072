package meshopt

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/Faultbox/meshopt/pkg/math"
)

// Bounds holds a bounding sphere and a normal cone for cluster culling.
//
// A cluster is backfacing and can be skipped when
// dot(normalize(ConeApex - cameraPosition), ConeAxis) >= ConeCutoff, or for
// orthographic views dot(viewDirection, ConeAxis) >= ConeCutoff.
type Bounds struct {
	Center math.Vec3
	Radius float32

	ConeApex   math.Vec3
	ConeAxis   math.Vec3
	ConeCutoff float32 // cos(angle/2)

	// 8-bit SNORM encoding; use dot(view, axis/127) >= cutoff/127 for a conservative test
	ConeAxisS8   [3]int8
	ConeCutoffS8 int8
}

// boundingSphere computes an approximate bounding sphere with Ritter's method.
func boundingSphere(points []math.Vec3) (math.Vec3, float32) {
	var pmin, pmax [3]int
	for i, p := range points {
		for axis := 0; axis < 3; axis++ {
			if p.Idx(axis) < points[pmin[axis]].Idx(axis) {
				pmin[axis] = i
			}
			if p.Idx(axis) > points[pmax[axis]].Idx(axis) {
				pmax[axis] = i
			}
		}
	}

	// the widest axis pair seeds the sphere
	paxis := 0
	var paxisd2 float32
	for axis := 0; axis < 3; axis++ {
		d2 := points[pmax[axis]].Sub(points[pmin[axis]]).LengthSq()
		if d2 > paxisd2 {
			paxisd2, paxis = d2, axis
		}
	}
	p1, p2 := points[pmin[paxis]], points[pmax[paxis]]
	center := p1.Add(p2).Scale(0.5)
	radius := math32.Sqrt(paxisd2) / 2

	// grow until every point fits
	for _, p := range points {
		d2 := p.Sub(center).LengthSq()
		if d2 > radius*radius {
			d := math32.Sqrt(d2)
			k := 0.5 + (radius/d)/2
			center = center.Scale(k).Add(p.Scale(1 - k))
			radius = (radius + d) / 2
		}
	}
	return center, radius
}

// ComputeClusterBounds returns the bounding sphere and normal cone of a small
// triangle list of at most MeshletMaxTriangles triangles. Degenerate triangles
// are ignored; a cluster without valid triangles yields zero bounds.
func ComputeClusterBounds(indices []uint32, positions []float32, vertexCount, stride int) (Bounds, error) {
	if err := validateTriangles(indices, vertexCount); err != nil {
		return Bounds{}, err
	}
	if len(indices)/3 > MeshletMaxTriangles {
		return Bounds{}, fmt.Errorf("%w: cluster has %d triangles", ErrInvalidArgument, len(indices)/3)
	}
	if err := validatePositions(positions, stride, vertexCount); err != nil {
		return Bounds{}, err
	}

	normals := make([]math.Vec3, 0, len(indices)/3)
	corners := make([]math.Vec3, 0, len(indices))
	for i := 0; i < len(indices); i += 3 {
		p0 := math.V3(positions[int(indices[i])*stride:])
		p1 := math.V3(positions[int(indices[i+1])*stride:])
		p2 := math.V3(positions[int(indices[i+2])*stride:])
		normal := p1.Sub(p0).Cross(p2.Sub(p0))
		area := normal.Length()
		// degenerate triangles are invisible
		if area == 0 {
			continue
		}
		normals = append(normals, normal.Scale(1/area))
		corners = append(corners, p0, p1, p2)
	}

	var b Bounds
	if len(normals) == 0 {
		return b, nil
	}

	b.Center, b.Radius = boundingSphere(corners)

	// the center of the sphere around all normals is the best cone axis
	axis, _ := boundingSphere(normals)
	axis = axis.Normalize()

	mindp := float32(1)
	for _, n := range normals {
		mindp = min(mindp, n.Dot(axis))
	}

	// cones wider than ~168 degrees are not useful for culling
	if mindp <= 0.1 {
		b.ConeCutoff = 1
		b.ConeCutoffS8 = 127
		return b, nil
	}

	// the apex lies on center - t*axis in the negative half-space of every triangle
	var maxt float32
	for i, n := range normals {
		dc := b.Center.Sub(corners[i*3]).Dot(n)
		dn := axis.Dot(n)
		maxt = max(maxt, dc/dn)
	}

	b.ConeApex = b.Center.Sub(axis.Scale(maxt))
	b.ConeAxis = axis
	// the culling test uses the cone inverted and widened by 90 degrees: sin(a) = sqrt(1 - cos^2(a))
	b.ConeCutoff = math32.Sqrt(1 - mindp*mindp)

	var axisError float32
	for k := 0; k < 3; k++ {
		q := int8(QuantizeSnorm(axis.Idx(k), 8))
		b.ConeAxisS8[k] = q
		axisError += math32.Abs(float32(q)/127 - axis.Idx(k))
	}
	// round up so the 8-bit test stays conservative
	cutoff := int(127*(b.ConeCutoff+axisError) + 1)
	b.ConeCutoffS8 = int8(min(cutoff, 127))
	return b, nil
}

// ComputeMeshletBounds is ComputeClusterBounds for a meshlet's local arrays.
func ComputeMeshletBounds(vertices []uint32, triangles []byte, positions []float32, vertexCount, stride int) (Bounds, error) {
	if len(triangles)%3 != 0 {
		return Bounds{}, fmt.Errorf("%w: %d triangle corners", ErrInvalidArgument, len(triangles))
	}
	indices := make([]uint32, len(triangles))
	for i, c := range triangles {
		if int(c) >= len(vertices) {
			return Bounds{}, fmt.Errorf("%w: local index %d out of range %d", ErrInvalidArgument, c, len(vertices))
		}
		indices[i] = vertices[c]
	}
	return ComputeClusterBounds(indices, positions, vertexCount, stride)
}
