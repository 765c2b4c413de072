package meshopt

import (
	"errors"
	"testing"
)

func TestStripify_RoundTrip(t *testing.T) {
	gridIndices, _ := createTestGrid(12)
	sphereIndices, spherePositions := createTestSphere(10, 14)

	meshes := []struct {
		name        string
		indices     []uint32
		vertexCount int
	}{
		{"quad", []uint32{0, 1, 2, 2, 1, 3}, 4},
		{"disjoint", []uint32{0, 1, 2, 3, 4, 5}, 6},
		{"grid", gridIndices, 144},
		{"sphere", sphereIndices, len(spherePositions) / 3},
	}
	restarts := []struct {
		name    string
		restart uint32
	}{
		{"degenerate", 0},
		{"restart", ^uint32(0)},
	}
	for _, m := range meshes {
		for _, r := range restarts {
			t.Run(m.name+"/"+r.name, func(t *testing.T) {
				strip := make([]uint32, StripifyBound(len(m.indices)))
				n, err := Stripify(strip, m.indices, m.vertexCount, r.restart)
				if err != nil {
					t.Fatalf("Stripify failed: %v", err)
				}
				if n > StripifyBound(len(m.indices)) {
					t.Fatalf("strip length %d exceeds bound", n)
				}

				list := make([]uint32, UnstripifyBound(n))
				count, err := Unstripify(list, strip[:n], r.restart)
				if err != nil {
					t.Fatalf("Unstripify failed: %v", err)
				}
				assertSameTriangles(t, m.indices, list[:count])
			})
		}
	}
}

func TestStripify_GridIsCompact(t *testing.T) {
	indices, _ := createTestGrid(16)
	strip := make([]uint32, StripifyBound(len(indices)))

	n, err := Stripify(strip, indices, 256, ^uint32(0))
	if err != nil {
		t.Fatalf("Stripify failed: %v", err)
	}
	if n >= len(indices) {
		t.Errorf("expected strip shorter than list %d, got %d", len(indices), n)
	}
}

func TestUnstripify(t *testing.T) {
	strip := []uint32{0, 1, 2, 3, 3, 4, 4, 5, 6}
	list := make([]uint32, UnstripifyBound(len(strip)))

	n, err := Unstripify(list, strip, 0)
	if err != nil {
		t.Fatalf("Unstripify failed: %v", err)
	}
	want := []uint32{0, 1, 2, 2, 1, 3, 4, 5, 6}
	if n != len(want) {
		t.Fatalf("expected %d indices, got %d: %v", len(want), n, list[:n])
	}
	for i := range want {
		if list[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, list[:n])
		}
	}

	if _, err := Unstripify(make([]uint32, 2), strip, 0); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("expected ErrBufferTooSmall, got %v", err)
	}
}

func TestSpatialSortRemap(t *testing.T) {
	// two clusters far apart, interleaved in the input
	positions := []float32{
		0, 0, 0,
		100, 100, 100,
		0.1, 0, 0,
		100.1, 100, 100,
		0, 0.1, 0,
	}
	remap := make([]uint32, 5)
	if err := SpatialSortRemap(remap, positions, 5, 3); err != nil {
		t.Fatalf("SpatialSortRemap failed: %v", err)
	}

	seen := make([]bool, 5)
	for _, r := range remap {
		if r >= 5 || seen[r] {
			t.Fatalf("remap is not a permutation: %v", remap)
		}
		seen[r] = true
	}
	for _, near := range []int{0, 2, 4} {
		if remap[near] >= 3 {
			t.Errorf("expected vertex %d in the first cluster, got slot %d", near, remap[near])
		}
	}
}

func TestSpatialSortTriangles(t *testing.T) {
	indices, positions := createTestGrid(10)
	dst := make([]uint32, len(indices))

	if err := SpatialSortTriangles(dst, indices, positions, 100, 3); err != nil {
		t.Fatalf("SpatialSortTriangles failed: %v", err)
	}
	assertSameTriangles(t, indices, dst)

	if err := SpatialSortTriangles(indices, indices, positions, 100, 3); err != nil {
		t.Fatalf("in-place SpatialSortTriangles failed: %v", err)
	}
	assertSameTriangles(t, dst, indices)
}
