package meshfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"
)

// createTestMeshData creates a mesh file with a single quad and the given
// vertex size (position first, padding after).
func createTestMeshData(major, minor uint8, vertexSize uint32) []byte {
	buf := new(bytes.Buffer)

	// Magic "MESH"
	buf.WriteString("MESH")
	buf.WriteByte(major)
	buf.WriteByte(minor)

	binary.Write(buf, binary.LittleEndian, uint32(4))
	binary.Write(buf, binary.LittleEndian, vertexSize)
	binary.Write(buf, binary.LittleEndian, uint32(6))

	corners := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}}
	for _, c := range corners {
		binary.Write(buf, binary.LittleEndian, c)
		if vertexSize > 12 {
			buf.Write(make([]byte, vertexSize-12))
		}
	}
	binary.Write(buf, binary.LittleEndian, []uint32{0, 1, 2, 2, 1, 3})

	return buf.Bytes()
}

func TestParseMesh_ValidFile(t *testing.T) {
	data := createTestMeshData(1, 0, 16)

	mesh, err := ParseMesh(data)
	if err != nil {
		t.Fatalf("ParseMesh failed: %v", err)
	}

	if mesh.Version.String() != "1.0" {
		t.Errorf("expected version 1.0, got %s", mesh.Version)
	}
	if mesh.VertexCount() != 4 {
		t.Errorf("expected 4 vertices, got %d", mesh.VertexCount())
	}
	if mesh.VertexSize != 16 {
		t.Errorf("expected vertex size 16, got %d", mesh.VertexSize)
	}
	if mesh.TriangleCount() != 2 {
		t.Errorf("expected 2 triangles, got %d", mesh.TriangleCount())
	}

	positions := mesh.Positions()
	if len(positions) != 12 || positions[9] != 1 || positions[10] != 1 {
		t.Errorf("unexpected positions %v", positions)
	}
}

func TestParseMesh_Errors(t *testing.T) {
	valid := createTestMeshData(1, 0, 12)
	badIndex := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badIndex[len(badIndex)-4:], 9)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"too short", []byte("MESH"), ErrTruncatedMeshData},
		{"bad magic", append([]byte("HSEM"), valid[4:]...), ErrInvalidMeshMagic},
		{"future version", createTestMeshData(2, 0, 12), ErrUnsupportedMeshVersion},
		{"small vertex", createTestMeshData(1, 0, 8), ErrInvalidMesh},
		{"truncated payload", valid[:len(valid)-5], ErrTruncatedMeshData},
		{"index out of range", badIndex, ErrInvalidMesh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMesh(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseMesh_HugeCountsRejected(t *testing.T) {
	data := createTestMeshData(1, 0, 12)
	binary.LittleEndian.PutUint32(data[6:], 0xffffffff)

	if _, err := ParseMesh(data); !errors.Is(err, ErrTruncatedMeshData) {
		t.Errorf("expected ErrTruncatedMeshData, got %v", err)
	}
}

func TestMesh_WriteFileRoundTrip(t *testing.T) {
	mesh, err := ParseMesh(createTestMeshData(1, 0, 20))
	if err != nil {
		t.Fatalf("ParseMesh failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "quad.mesh")
	if err := mesh.WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	loaded, err := ParseMeshFile(path)
	if err != nil {
		t.Fatalf("ParseMeshFile failed: %v", err)
	}

	if !bytes.Equal(loaded.Vertices, mesh.Vertices) {
		t.Error("vertices differ after round trip")
	}
	if len(loaded.Indices) != len(mesh.Indices) {
		t.Fatalf("expected %d indices, got %d", len(mesh.Indices), len(loaded.Indices))
	}
	for i := range mesh.Indices {
		if loaded.Indices[i] != mesh.Indices[i] {
			t.Fatalf("index %d differs", i)
		}
	}
}

func TestMesh_MarshalInvalid(t *testing.T) {
	mesh := &Mesh{VertexSize: 12, Vertices: make([]byte, 24), Indices: []uint32{0, 1}}
	if _, err := mesh.Marshal(); !errors.Is(err, ErrInvalidMesh) {
		t.Errorf("expected ErrInvalidMesh, got %v", err)
	}
}

func TestParseMeshFile_Missing(t *testing.T) {
	if _, err := ParseMeshFile(filepath.Join(t.TempDir(), "missing.mesh")); err == nil {
		t.Error("expected error for missing file")
	}
}
