package meshfile

import (
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/Faultbox/meshopt/pkg/meshopt"
)

// ErrInvalidPack reports a malformed packed mesh.
var ErrInvalidPack = errors.New("invalid mesh pack")

// Pack field numbers.
const (
	packVertexCount      protowire.Number = 1
	packVertexSize       protowire.Number = 2
	packIndexCount       protowire.Number = 3
	packEncodedVertices  protowire.Number = 4
	packEncodedIndices   protowire.Number = 5
	packMeshlet          protowire.Number = 6
	packMeshletVertices  protowire.Number = 7
	packMeshletTriangles protowire.Number = 8
	packError            protowire.Number = 9
)

// Meshlet message field numbers.
const (
	meshletVertexOffset   protowire.Number = 1
	meshletTriangleOffset protowire.Number = 2
	meshletVertexCount    protowire.Number = 3
	meshletTriangleCount  protowire.Number = 4
)

// Pack is a compressed mesh with optional meshlets, stored as protobuf wire
// format so other tools can read it with a plain schema.
type Pack struct {
	VertexCount     int
	VertexSize      int
	IndexCount      int
	EncodedVertices []byte
	EncodedIndices  []byte

	Meshlets         []meshopt.Meshlet
	MeshletVertices  []uint32
	MeshletTriangles []byte

	// Error is the relative simplification error baked into the mesh.
	Error float32
}

// EncodeMesh compresses a mesh with the vertex and index codecs.
func EncodeMesh(m *Mesh, indexOpts meshopt.IndexEncoderOptions, vertexOpts meshopt.VertexEncoderOptions) (*Pack, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	vertexCount := m.VertexCount()

	vbuf := make([]byte, meshopt.EncodeVertexBufferBound(vertexCount, m.VertexSize))
	vn, err := meshopt.EncodeVertexBuffer(vbuf, m.Vertices, vertexCount, m.VertexSize, vertexOpts)
	if err != nil {
		return nil, fmt.Errorf("encoding vertices: %w", err)
	}

	ibuf := make([]byte, meshopt.EncodeIndexBufferBound(len(m.Indices), vertexCount))
	in, err := meshopt.EncodeIndexBuffer(ibuf, m.Indices, indexOpts)
	if err != nil {
		return nil, fmt.Errorf("encoding indices: %w", err)
	}

	return &Pack{
		VertexCount:     vertexCount,
		VertexSize:      m.VertexSize,
		IndexCount:      len(m.Indices),
		EncodedVertices: vbuf[:vn],
		EncodedIndices:  ibuf[:in],
	}, nil
}

// Decode decompresses the pack back into a mesh.
func (p *Pack) Decode() (*Mesh, error) {
	if p.VertexSize < MinVertexSize || p.VertexSize > MaxVertexSize {
		return nil, fmt.Errorf("%w: vertex size %d", ErrInvalidPack, p.VertexSize)
	}
	// counts come from the file; a codec byte covers at most 64 vertices or one triangle
	if p.VertexCount < 0 || p.VertexCount > len(p.EncodedVertices)*64 {
		return nil, fmt.Errorf("%w: %d vertices in %d bytes", ErrInvalidPack, p.VertexCount, len(p.EncodedVertices))
	}
	if p.IndexCount < 0 || p.IndexCount/3 > len(p.EncodedIndices) {
		return nil, fmt.Errorf("%w: %d indices in %d bytes", ErrInvalidPack, p.IndexCount, len(p.EncodedIndices))
	}
	m := &Mesh{
		Version:    CurrentVersion,
		VertexSize: p.VertexSize,
		Vertices:   make([]byte, p.VertexCount*p.VertexSize),
		Indices:    make([]uint32, p.IndexCount),
	}
	if err := meshopt.DecodeVertexBuffer(m.Vertices, p.VertexCount, p.VertexSize, p.EncodedVertices); err != nil {
		return nil, fmt.Errorf("decoding vertices: %w", err)
	}
	if err := meshopt.DecodeIndexBuffer(m.Indices, p.EncodedIndices); err != nil {
		return nil, fmt.Errorf("decoding indices: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Marshal serializes the pack.
func (p *Pack) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, packVertexCount, uint64(p.VertexCount))
	b = appendVarintField(b, packVertexSize, uint64(p.VertexSize))
	b = appendVarintField(b, packIndexCount, uint64(p.IndexCount))
	b = appendBytesField(b, packEncodedVertices, p.EncodedVertices)
	b = appendBytesField(b, packEncodedIndices, p.EncodedIndices)

	for _, m := range p.Meshlets {
		var msg []byte
		msg = appendVarintField(msg, meshletVertexOffset, uint64(m.VertexOffset))
		msg = appendVarintField(msg, meshletTriangleOffset, uint64(m.TriangleOffset))
		msg = appendVarintField(msg, meshletVertexCount, uint64(m.VertexCount))
		msg = appendVarintField(msg, meshletTriangleCount, uint64(m.TriangleCount))
		b = protowire.AppendTag(b, packMeshlet, protowire.BytesType)
		b = protowire.AppendBytes(b, msg)
	}

	if len(p.MeshletVertices) > 0 {
		var packed []byte
		for _, v := range p.MeshletVertices {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		b = appendBytesField(b, packMeshletVertices, packed)
	}
	b = appendBytesField(b, packMeshletTriangles, p.MeshletTriangles)

	if p.Error != 0 {
		b = protowire.AppendTag(b, packError, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(p.Error))
	}
	return b
}

// Zero values are omitted, as in proto3.
func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// UnmarshalPack parses a pack. Unknown fields are skipped.
func UnmarshalPack(data []byte) (*Pack, error) {
	p := &Pack{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPack, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == packVertexCount && typ == protowire.VarintType,
			num == packVertexSize && typ == protowire.VarintType,
			num == packIndexCount && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrInvalidPack, num, protowire.ParseError(n))
			}
			if v > math.MaxInt32 {
				return nil, fmt.Errorf("%w: field %d value %d", ErrInvalidPack, num, v)
			}
			switch num {
			case packVertexCount:
				p.VertexCount = int(v)
			case packVertexSize:
				p.VertexSize = int(v)
			default:
				p.IndexCount = int(v)
			}
			data = data[n:]

		case num == packMeshletVertices && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: meshlet vertex: %v", ErrInvalidPack, protowire.ParseError(n))
			}
			p.MeshletVertices = append(p.MeshletVertices, uint32(v))
			data = data[n:]

		case num == packError && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: error field: %v", ErrInvalidPack, protowire.ParseError(n))
			}
			p.Error = math.Float32frombits(v)
			data = data[n:]

		case typ == protowire.BytesType && num >= packEncodedVertices && num <= packMeshletTriangles:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrInvalidPack, num, protowire.ParseError(n))
			}
			if err := p.setBytesField(num, v); err != nil {
				return nil, err
			}
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrInvalidPack, num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return p, nil
}

func (p *Pack) setBytesField(num protowire.Number, v []byte) error {
	switch num {
	case packEncodedVertices:
		p.EncodedVertices = append([]byte(nil), v...)
	case packEncodedIndices:
		p.EncodedIndices = append([]byte(nil), v...)
	case packMeshletTriangles:
		p.MeshletTriangles = append([]byte(nil), v...)
	case packMeshlet:
		m, err := unmarshalMeshlet(v)
		if err != nil {
			return err
		}
		p.Meshlets = append(p.Meshlets, m)
	case packMeshletVertices:
		for len(v) > 0 {
			x, n := protowire.ConsumeVarint(v)
			if n < 0 {
				return fmt.Errorf("%w: packed meshlet vertices: %v", ErrInvalidPack, protowire.ParseError(n))
			}
			p.MeshletVertices = append(p.MeshletVertices, uint32(x))
			v = v[n:]
		}
	}
	return nil
}

func unmarshalMeshlet(data []byte) (meshopt.Meshlet, error) {
	var m meshopt.Meshlet
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return m, fmt.Errorf("%w: meshlet: %v", ErrInvalidPack, protowire.ParseError(n))
		}
		data = data[n:]
		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return m, fmt.Errorf("%w: meshlet field %d: %v", ErrInvalidPack, num, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return m, fmt.Errorf("%w: meshlet field %d: %v", ErrInvalidPack, num, protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case meshletVertexOffset:
			m.VertexOffset = uint32(v)
		case meshletTriangleOffset:
			m.TriangleOffset = uint32(v)
		case meshletVertexCount:
			m.VertexCount = uint32(v)
		case meshletTriangleCount:
			m.TriangleCount = uint32(v)
		}
	}
	return m, nil
}

// ValidateMeshlets checks that every meshlet range lies inside the shared arrays.
func (p *Pack) ValidateMeshlets() error {
	for i, m := range p.Meshlets {
		if uint64(m.VertexOffset)+uint64(m.VertexCount) > uint64(len(p.MeshletVertices)) {
			return fmt.Errorf("%w: meshlet %d vertex range", ErrInvalidPack, i)
		}
		if uint64(m.TriangleOffset)+uint64(m.TriangleCount)*3 > uint64(len(p.MeshletTriangles)) {
			return fmt.Errorf("%w: meshlet %d triangle range", ErrInvalidPack, i)
		}
		for _, c := range m.Triangles(p.MeshletTriangles) {
			if uint32(c) >= m.VertexCount {
				return fmt.Errorf("%w: meshlet %d local index %d", ErrInvalidPack, i, c)
			}
		}
		for _, v := range m.Vertices(p.MeshletVertices) {
			if int(v) >= p.VertexCount {
				return fmt.Errorf("%w: meshlet %d vertex %d", ErrInvalidPack, i, v)
			}
		}
	}
	return nil
}

// ParsePackFile parses a pack from disk.
func ParsePackFile(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pack file: %w", err)
	}
	return UnmarshalPack(data)
}

// WriteFile writes the pack to path.
func (p *Pack) WriteFile(path string) error {
	if err := os.WriteFile(path, p.Marshal(), 0644); err != nil {
		return fmt.Errorf("writing pack file: %w", err)
	}
	return nil
}
