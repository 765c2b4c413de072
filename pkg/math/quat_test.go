package math

import (
	"math"
	"testing"
)

func TestQuatIdentity(t *testing.T) {
	q := QuatIdentity()
	if q.X != 0 || q.Y != 0 || q.Z != 0 || q.W != 1 {
		t.Errorf("Identity quaternion should be (0,0,0,1), got (%v,%v,%v,%v)", q.X, q.Y, q.Z, q.W)
	}
}

func TestQuatNormalize(t *testing.T) {
	q := Quat{X: 1, Y: 2, Z: 3, W: 4}
	n := q.Normalize()

	length := float32(math.Sqrt(float64(n.Dot(n))))
	if math.Abs(float64(length-1.0)) > 0.0001 {
		t.Errorf("Normalized quaternion length should be 1, got %v", length)
	}

	if z := (Quat{}).Normalize(); z != QuatIdentity() {
		t.Errorf("zero quaternion should normalize to identity, got %v", z)
	}
}

func TestQuatFromAxisAngle(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{X: 0, Y: 1, Z: 0}, float32(math.Pi))
	if math.Abs(float64(q.Y-1)) > 0.0001 || math.Abs(float64(q.W)) > 0.0001 {
		t.Errorf("180 degree Y rotation = %v, want (0,1,0,0)", q)
	}
}

func TestQuatSameRotation(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{X: 1, Y: 0, Z: 0}, 0.5)
	neg := Quat{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W}
	if !q.SameRotation(neg, 1e-5) {
		t.Error("q and -q should describe the same rotation")
	}
	if q.SameRotation(QuatIdentity(), 1e-5) {
		t.Error("rotation should differ from identity")
	}
	if QuatFromArray(q.Array()) != q {
		t.Error("array round trip changed quaternion")
	}
}
