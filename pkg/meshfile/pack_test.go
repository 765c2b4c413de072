package meshfile

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/Faultbox/meshopt/pkg/meshopt"
)

func createTestMesh(t *testing.T) *Mesh {
	t.Helper()
	mesh, err := ParseMesh(createTestMeshData(1, 0, 16))
	if err != nil {
		t.Fatalf("ParseMesh failed: %v", err)
	}
	return mesh
}

func TestPack_EncodeDecode(t *testing.T) {
	mesh := createTestMesh(t)

	pack, err := EncodeMesh(mesh, meshopt.DefaultIndexEncoderOptions(), meshopt.DefaultVertexEncoderOptions())
	if err != nil {
		t.Fatalf("EncodeMesh failed: %v", err)
	}
	if pack.VertexCount != 4 || pack.IndexCount != 6 || pack.VertexSize != 16 {
		t.Errorf("unexpected pack header %+v", pack)
	}

	decoded, err := pack.Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decoded.Vertices, mesh.Vertices) {
		t.Error("vertices differ after decode")
	}
	if decoded.TriangleCount() != 2 {
		t.Errorf("expected 2 triangles, got %d", decoded.TriangleCount())
	}
}

func TestPack_MarshalRoundTrip(t *testing.T) {
	pack, err := EncodeMesh(createTestMesh(t), meshopt.DefaultIndexEncoderOptions(), meshopt.DefaultVertexEncoderOptions())
	if err != nil {
		t.Fatalf("EncodeMesh failed: %v", err)
	}
	pack.Meshlets = []meshopt.Meshlet{{VertexOffset: 0, TriangleOffset: 0, VertexCount: 4, TriangleCount: 2}}
	pack.MeshletVertices = []uint32{0, 1, 2, 3}
	pack.MeshletTriangles = []byte{0, 1, 2, 2, 1, 3, 0, 0}
	pack.Error = 0.125

	path := filepath.Join(t.TempDir(), "quad.meshpack")
	if err := pack.WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	loaded, err := ParsePackFile(path)
	if err != nil {
		t.Fatalf("ParsePackFile failed: %v", err)
	}

	if loaded.VertexCount != pack.VertexCount || loaded.VertexSize != pack.VertexSize || loaded.IndexCount != pack.IndexCount {
		t.Errorf("header mismatch: %+v", loaded)
	}
	if !bytes.Equal(loaded.EncodedVertices, pack.EncodedVertices) || !bytes.Equal(loaded.EncodedIndices, pack.EncodedIndices) {
		t.Error("encoded payloads differ")
	}
	if len(loaded.Meshlets) != 1 || loaded.Meshlets[0] != pack.Meshlets[0] {
		t.Errorf("meshlets differ: %+v", loaded.Meshlets)
	}
	if len(loaded.MeshletVertices) != 4 || loaded.MeshletVertices[3] != 3 {
		t.Errorf("meshlet vertices differ: %v", loaded.MeshletVertices)
	}
	if !bytes.Equal(loaded.MeshletTriangles, pack.MeshletTriangles) {
		t.Errorf("meshlet triangles differ: %v", loaded.MeshletTriangles)
	}
	if loaded.Error != 0.125 {
		t.Errorf("expected error 0.125, got %f", loaded.Error)
	}
	if err := loaded.ValidateMeshlets(); err != nil {
		t.Errorf("ValidateMeshlets failed: %v", err)
	}
}

func TestUnmarshalPack_SkipsUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 42, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))
	b = protowire.AppendTag(b, packVertexSize, protowire.VarintType)
	b = protowire.AppendVarint(b, 12)
	b = protowire.AppendTag(b, 43, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)
	// unpacked repeated varints are accepted too
	b = protowire.AppendTag(b, packMeshletVertices, protowire.VarintType)
	b = protowire.AppendVarint(b, 5)

	pack, err := UnmarshalPack(b)
	if err != nil {
		t.Fatalf("UnmarshalPack failed: %v", err)
	}
	if pack.VertexSize != 12 {
		t.Errorf("expected vertex size 12, got %d", pack.VertexSize)
	}
	if len(pack.MeshletVertices) != 1 || pack.MeshletVertices[0] != 5 {
		t.Errorf("unexpected meshlet vertices %v", pack.MeshletVertices)
	}
}

func TestUnmarshalPack_Errors(t *testing.T) {
	truncated := protowire.AppendTag(nil, packEncodedVertices, protowire.BytesType)
	truncated = protowire.AppendVarint(truncated, 100)

	tests := []struct {
		name string
		data []byte
	}{
		{"bad tag", []byte{0xff}},
		{"truncated bytes", truncated},
		{"oversized count", protowire.AppendVarint(protowire.AppendTag(nil, packVertexCount, protowire.VarintType), 1<<40)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalPack(tt.data); !errors.Is(err, ErrInvalidPack) {
				t.Errorf("expected ErrInvalidPack, got %v", err)
			}
		})
	}
}

func TestPack_DecodeRejectsCorruption(t *testing.T) {
	pack, err := EncodeMesh(createTestMesh(t), meshopt.DefaultIndexEncoderOptions(), meshopt.DefaultVertexEncoderOptions())
	if err != nil {
		t.Fatalf("EncodeMesh failed: %v", err)
	}

	corrupt := *pack
	corrupt.EncodedIndices = corrupt.EncodedIndices[:len(corrupt.EncodedIndices)-1]
	if _, err := corrupt.Decode(); !errors.Is(err, meshopt.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}

	huge := *pack
	huge.VertexCount = 1 << 30
	if _, err := huge.Decode(); !errors.Is(err, ErrInvalidPack) {
		t.Errorf("expected ErrInvalidPack, got %v", err)
	}
}

func TestPack_ValidateMeshlets(t *testing.T) {
	pack := &Pack{
		VertexCount:      4,
		Meshlets:         []meshopt.Meshlet{{VertexCount: 3, TriangleCount: 1}},
		MeshletVertices:  []uint32{0, 1, 2},
		MeshletTriangles: []byte{0, 1, 5},
	}
	if err := pack.ValidateMeshlets(); !errors.Is(err, ErrInvalidPack) {
		t.Errorf("expected ErrInvalidPack, got %v", err)
	}
}
