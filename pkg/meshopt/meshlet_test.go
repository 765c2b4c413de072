package meshopt

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/Faultbox/meshopt/pkg/math"
)

type meshletBuffers struct {
	meshlets  []Meshlet
	vertices  []uint32
	triangles []byte
}

func newMeshletBuffers(indexCount, maxVertices, maxTriangles int) meshletBuffers {
	bound := BuildMeshletsBound(indexCount, maxVertices, maxTriangles)
	return meshletBuffers{
		meshlets:  make([]Meshlet, bound),
		vertices:  make([]uint32, bound*maxVertices),
		triangles: make([]byte, bound*maxTriangles*3),
	}
}

// assertValidMeshlets checks limits, padding and that the meshlets reproduce
// the input triangle list.
func assertValidMeshlets(t *testing.T, b meshletBuffers, count int, indices []uint32, maxVertices, maxTriangles int) {
	t.Helper()
	var rebuilt []uint32
	for i, m := range b.meshlets[:count] {
		if m.VertexCount == 0 || int(m.VertexCount) > maxVertices {
			t.Fatalf("meshlet %d has %d vertices", i, m.VertexCount)
		}
		if m.TriangleCount == 0 || int(m.TriangleCount) > maxTriangles {
			t.Fatalf("meshlet %d has %d triangles", i, m.TriangleCount)
		}
		if m.TriangleOffset%4 != 0 {
			t.Fatalf("meshlet %d triangle offset %d is not 4-byte aligned", i, m.TriangleOffset)
		}
		vertices := m.Vertices(b.vertices)
		for _, c := range m.Triangles(b.triangles) {
			if int(c) >= len(vertices) {
				t.Fatalf("meshlet %d local index %d out of range", i, c)
			}
			rebuilt = append(rebuilt, vertices[c])
		}
	}
	assertSameTriangles(t, indices, rebuilt)
}

func TestBuildMeshlets_Valid(t *testing.T) {
	gridIndices, gridPositions := createTestGrid(40)
	sphereIndices, spherePositions := createTestSphere(24, 32)
	rng := rand.New(rand.NewSource(37))
	randomIndices, randomPositions := createTestRandomMesh(rng, 500, 1500)

	meshes := []struct {
		name      string
		indices   []uint32
		positions []float32
	}{
		{"grid", gridIndices, gridPositions},
		{"sphere", sphereIndices, spherePositions},
		{"random", randomIndices, randomPositions},
	}
	limits := []struct{ maxVertices, maxTriangles int }{
		{64, 124},
		{128, 256},
		{3, 4},
	}
	for _, m := range meshes {
		vertexCount := len(m.positions) / 3
		for _, l := range limits {
			t.Run(m.name, func(t *testing.T) {
				b := newMeshletBuffers(len(m.indices), l.maxVertices, l.maxTriangles)
				n, err := BuildMeshlets(b.meshlets, b.vertices, b.triangles, m.indices, m.positions, vertexCount, 3, l.maxVertices, l.maxTriangles, 0.25)
				if err != nil {
					t.Fatalf("BuildMeshlets failed: %v", err)
				}
				assertValidMeshlets(t, b, n, m.indices, l.maxVertices, l.maxTriangles)

				b = newMeshletBuffers(len(m.indices), l.maxVertices, l.maxTriangles)
				n, err = BuildMeshletsScan(b.meshlets, b.vertices, b.triangles, m.indices, vertexCount, l.maxVertices, l.maxTriangles)
				if err != nil {
					t.Fatalf("BuildMeshletsScan failed: %v", err)
				}
				assertValidMeshlets(t, b, n, m.indices, l.maxVertices, l.maxTriangles)
			})
		}
	}
}

func TestBuildMeshlets_Empty(t *testing.T) {
	n, err := BuildMeshlets(nil, nil, nil, nil, nil, 0, 3, 64, 124, 0)
	if err != nil {
		t.Fatalf("BuildMeshlets failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no meshlets, got %d", n)
	}
}

func TestBuildMeshlets_Errors(t *testing.T) {
	indices, positions := createTestGrid(4)
	b := newMeshletBuffers(len(indices), 64, 124)

	tests := []struct {
		name                      string
		maxVertices, maxTriangles int
		meshlets                  []Meshlet
		want                      error
	}{
		{"triangles not multiple of 4", 64, 126, b.meshlets, ErrInvalidArgument},
		{"too many vertices", 256, 124, b.meshlets, ErrInvalidArgument},
		{"too few vertices", 2, 124, b.meshlets, ErrInvalidArgument},
		{"short meshlet slice", 64, 124, nil, ErrBufferTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildMeshlets(tt.meshlets, b.vertices, b.triangles, indices, positions, 16, 3, tt.maxVertices, tt.maxTriangles, 0)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestOptimizeMeshlet(t *testing.T) {
	indices, positions := createTestGrid(12)
	b := newMeshletBuffers(len(indices), 64, 64)
	n, err := BuildMeshlets(b.meshlets, b.vertices, b.triangles, indices, positions, 144, 3, 64, 64, 0)
	if err != nil {
		t.Fatalf("BuildMeshlets failed: %v", err)
	}

	for i, m := range b.meshlets[:n] {
		vertices := m.Vertices(b.vertices)
		triangles := m.Triangles(b.triangles)

		var before []uint32
		for _, c := range triangles {
			before = append(before, vertices[c])
		}
		if err := OptimizeMeshlet(vertices, triangles); err != nil {
			t.Fatalf("OptimizeMeshlet failed: %v", err)
		}
		var after []uint32
		for _, c := range triangles {
			after = append(after, vertices[c])
		}
		assertSameTriangles(t, before, after)

		// vertices are renumbered in order of first use
		next := byte(0)
		for _, c := range triangles {
			if c > next {
				t.Fatalf("meshlet %d: vertex %d used before %d", i, c, next)
			}
			if c == next {
				next++
			}
		}
	}
}

func TestComputeClusterBounds_ContainsVertices(t *testing.T) {
	indices, positions := createTestSphere(24, 32)
	b := newMeshletBuffers(len(indices), 64, 124)
	vertexCount := len(positions) / 3
	n, err := BuildMeshlets(b.meshlets, b.vertices, b.triangles, indices, positions, vertexCount, 3, 64, 124, 0.5)
	if err != nil {
		t.Fatalf("BuildMeshlets failed: %v", err)
	}

	for i, m := range b.meshlets[:n] {
		bounds, err := ComputeMeshletBounds(m.Vertices(b.vertices), m.Triangles(b.triangles), positions, vertexCount, 3)
		if err != nil {
			t.Fatalf("ComputeMeshletBounds failed: %v", err)
		}
		for _, c := range m.Triangles(b.triangles) {
			v := b.vertices[m.VertexOffset+uint32(c)]
			p := math.V3(positions[v*3:])
			if d := p.Distance(bounds.Center); d > bounds.Radius*1.0001+1e-5 {
				t.Fatalf("meshlet %d: vertex %d at distance %f outside radius %f", i, v, d, bounds.Radius)
			}
		}
		if bounds.ConeCutoff > 1 {
			t.Fatalf("meshlet %d: cone cutoff %f above 1", i, bounds.ConeCutoff)
		}
	}
}

func TestComputeClusterBounds_FlatPatch(t *testing.T) {
	indices, positions := createTestGrid(4)

	b, err := ComputeClusterBounds(indices, positions, 16, 3)
	if err != nil {
		t.Fatalf("ComputeClusterBounds failed: %v", err)
	}
	if b.ConeAxis.Z > -0.999 && b.ConeAxis.Z < 0.999 {
		t.Errorf("expected cone axis along Z, got %+v", b.ConeAxis)
	}
	if b.ConeCutoff > 1e-3 {
		t.Errorf("expected cutoff near 0 for a flat patch, got %f", b.ConeCutoff)
	}
	if b.ConeCutoffS8 < 0 || int(b.ConeCutoffS8) > 127 {
		t.Errorf("unexpected 8-bit cutoff %d", b.ConeCutoffS8)
	}
	if az := b.ConeAxisS8[2]; az != 127 && az != -127 {
		t.Errorf("expected 8-bit axis along Z, got %v", b.ConeAxisS8)
	}

	// every triangle faces the axis direction, so a viewer behind the patch culls it
	viewer := b.Center.Add(b.ConeAxis.Scale(10))
	dir := b.ConeApex.Sub(viewer).Normalize()
	if dir.Dot(b.ConeAxis) >= b.ConeCutoff {
		t.Error("expected a viewer in front of the patch to see it")
	}
	viewer = b.Center.Sub(b.ConeAxis.Scale(10))
	dir = b.ConeApex.Sub(viewer).Normalize()
	if dir.Dot(b.ConeAxis) < b.ConeCutoff {
		t.Error("expected a viewer behind the patch to cull it")
	}
}

func TestComputeClusterBounds_Degenerate(t *testing.T) {
	positions := []float32{0, 0, 0, 1, 0, 0, 2, 0, 0}
	b, err := ComputeClusterBounds([]uint32{0, 1, 2}, positions, 3, 3)
	if err != nil {
		t.Fatalf("ComputeClusterBounds failed: %v", err)
	}
	if b != (Bounds{}) {
		t.Errorf("expected zero bounds for a degenerate cluster, got %+v", b)
	}

	big := make([]uint32, (MeshletMaxTriangles+1)*3)
	if _, err := ComputeClusterBounds(big, positions, 3, 3); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for oversized cluster, got %v", err)
	}
}
