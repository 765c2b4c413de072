package meshopt

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/meshopt/pkg/math"
)

// quadric is a symmetric 4x4 error form accumulating weighted squared plane distances.
type quadric struct {
	a00, a11, a22 float32
	a10, a20, a21 float32
	b0, b1, b2    float32
	c             float32
	w             float32
}

// quadricFromPlane builds a quadric for the plane n.x + d = 0 scaled by weight.
func quadricFromPlane(n math.Vec3, d, weight float32) quadric {
	aw := n.X * weight
	bw := n.Y * weight
	cw := n.Z * weight
	dw := d * weight
	return quadric{
		a00: aw * n.X, a11: bw * n.Y, a22: cw * n.Z,
		a10: aw * n.Y, a20: aw * n.Z, a21: bw * n.Z,
		b0: aw * d, b1: bw * d, b2: cw * d,
		c: dw * d,
		w: weight,
	}
}

func (q *quadric) add(r quadric) {
	q.a00 += r.a00
	q.a11 += r.a11
	q.a22 += r.a22
	q.a10 += r.a10
	q.a20 += r.a20
	q.a21 += r.a21
	q.b0 += r.b0
	q.b1 += r.b1
	q.b2 += r.b2
	q.c += r.c
	q.w += r.w
}

// error returns the weight-normalized squared distance of p from the accumulated planes.
func (q *quadric) error(p math.Vec3) float32 {
	r := q.a00*p.X*p.X + q.a11*p.Y*p.Y + q.a22*p.Z*p.Z
	r += 2 * (q.a10*p.X*p.Y + q.a20*p.X*p.Z + q.a21*p.Y*p.Z)
	r += 2 * (q.b0*p.X + q.b1*p.Y + q.b2*p.Z)
	r += q.c
	if q.w == 0 {
		return 0
	}
	return math32.Abs(r) / q.w
}

// triangleQuadric weights the triangle plane by sqrt(area) so error scales linearly.
func triangleQuadric(p0, p1, p2 math.Vec3) quadric {
	n := p1.Sub(p0).Cross(p2.Sub(p0))
	area := n.Length()
	n = n.Normalize()
	return quadricFromPlane(n, -n.Dot(p0), math32.Sqrt(area))
}

// edgeQuadric builds a plane through edge p0-p1 perpendicular to the triangle,
// used to keep borders and seams in place.
func edgeQuadric(p0, p1, p2 math.Vec3, weight float32) quadric {
	p10 := p1.Sub(p0)
	length := p10.Length()
	p10 = p10.Normalize()

	p20 := p2.Sub(p0)
	n := p20.Sub(p10.Scale(p20.Dot(p10))).Normalize()
	return quadricFromPlane(n, -n.Dot(p0), length*weight)
}
