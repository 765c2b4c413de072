// Package meshfile reads and writes the mesh container files used by the
// meshopt command line tool.
package meshfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// Mesh format errors.
var (
	ErrInvalidMeshMagic       = errors.New("invalid mesh magic: expected 'MESH'")
	ErrUnsupportedMeshVersion = errors.New("unsupported mesh version")
	ErrTruncatedMeshData      = errors.New("truncated mesh data")
	ErrInvalidMesh            = errors.New("invalid mesh")
)

const (
	meshMagic      = "MESH"
	meshHeaderSize = 18

	// MinVertexSize is the size of the leading float3 position.
	MinVertexSize = 12
	// MaxVertexSize is the largest vertex record the vertex codec accepts.
	MaxVertexSize = 256
)

// Version represents the mesh file version.
type Version struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// CurrentVersion is the version written by Marshal.
var CurrentVersion = Version{Major: 1, Minor: 0}

// Mesh is an indexed triangle list with interleaved vertices. Every vertex
// record starts with a little endian float3 position.
type Mesh struct {
	Version    Version
	VertexSize int
	Vertices   []byte
	Indices    []uint32
}

// VertexCount returns the number of vertex records.
func (m *Mesh) VertexCount() int {
	if m.VertexSize == 0 {
		return 0
	}
	return len(m.Vertices) / m.VertexSize
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Positions returns the vertex positions packed as xyz triples.
func (m *Mesh) Positions() []float32 {
	count := m.VertexCount()
	positions := make([]float32, count*3)
	for i := 0; i < count; i++ {
		v := m.Vertices[i*m.VertexSize:]
		for k := 0; k < 3; k++ {
			positions[i*3+k] = math.Float32frombits(binary.LittleEndian.Uint32(v[k*4:]))
		}
	}
	return positions
}

// Validate checks the vertex layout and that every index is in range.
func (m *Mesh) Validate() error {
	if m.VertexSize < MinVertexSize || m.VertexSize > MaxVertexSize {
		return fmt.Errorf("%w: vertex size %d", ErrInvalidMesh, m.VertexSize)
	}
	if len(m.Vertices)%m.VertexSize != 0 {
		return fmt.Errorf("%w: %d vertex bytes for vertex size %d", ErrInvalidMesh, len(m.Vertices), m.VertexSize)
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("%w: index count %d is not a multiple of 3", ErrInvalidMesh, len(m.Indices))
	}
	count := m.VertexCount()
	for i, index := range m.Indices {
		if int(index) >= count {
			return fmt.Errorf("%w: index %d at %d out of range %d", ErrInvalidMesh, index, i, count)
		}
	}
	return nil
}

// ParseMesh parses a mesh file from raw bytes.
func ParseMesh(data []byte) (*Mesh, error) {
	if len(data) < meshHeaderSize {
		return nil, ErrTruncatedMeshData
	}

	// Check magic "MESH"
	if string(data[0:4]) != meshMagic {
		return nil, ErrInvalidMeshMagic
	}

	version := Version{Major: data[4], Minor: data[5]}
	if version.Major != CurrentVersion.Major {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMeshVersion, version)
	}

	r := bytes.NewReader(data[6:])

	var vertexCount, vertexSize, indexCount uint32
	if err := binary.Read(r, binary.LittleEndian, &vertexCount); err != nil {
		return nil, fmt.Errorf("%w: reading vertex count", ErrTruncatedMeshData)
	}
	if err := binary.Read(r, binary.LittleEndian, &vertexSize); err != nil {
		return nil, fmt.Errorf("%w: reading vertex size", ErrTruncatedMeshData)
	}
	if err := binary.Read(r, binary.LittleEndian, &indexCount); err != nil {
		return nil, fmt.Errorf("%w: reading index count", ErrTruncatedMeshData)
	}

	if vertexSize < MinVertexSize || vertexSize > MaxVertexSize {
		return nil, fmt.Errorf("%w: vertex size %d", ErrInvalidMesh, vertexSize)
	}

	// Sizes come from the file, so check them against the payload before allocating
	need := uint64(vertexCount)*uint64(vertexSize) + uint64(indexCount)*4
	if need > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncatedMeshData, need, r.Len())
	}

	mesh := &Mesh{
		Version:    version,
		VertexSize: int(vertexSize),
		Vertices:   make([]byte, int(vertexCount)*int(vertexSize)),
		Indices:    make([]uint32, indexCount),
	}
	if _, err := io.ReadFull(r, mesh.Vertices); err != nil {
		return nil, fmt.Errorf("%w: reading vertices", ErrTruncatedMeshData)
	}
	if err := binary.Read(r, binary.LittleEndian, mesh.Indices); err != nil {
		return nil, fmt.Errorf("%w: reading indices", ErrTruncatedMeshData)
	}

	if err := mesh.Validate(); err != nil {
		return nil, err
	}
	return mesh, nil
}

// ParseMeshFile parses a mesh file from disk.
func ParseMeshFile(path string) (*Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mesh file: %w", err)
	}
	return ParseMesh(data)
}

// Marshal serializes the mesh at CurrentVersion.
func (m *Mesh) Marshal() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	buf.Grow(meshHeaderSize + len(m.Vertices) + len(m.Indices)*4)

	buf.WriteString(meshMagic)
	buf.WriteByte(CurrentVersion.Major)
	buf.WriteByte(CurrentVersion.Minor)

	binary.Write(buf, binary.LittleEndian, uint32(m.VertexCount()))
	binary.Write(buf, binary.LittleEndian, uint32(m.VertexSize))
	binary.Write(buf, binary.LittleEndian, uint32(len(m.Indices)))
	buf.Write(m.Vertices)
	binary.Write(buf, binary.LittleEndian, m.Indices)

	return buf.Bytes(), nil
}

// WriteFile writes the mesh to path.
func (m *Mesh) WriteFile(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing mesh file: %w", err)
	}
	return nil
}
