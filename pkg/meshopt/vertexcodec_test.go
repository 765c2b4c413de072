package meshopt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"
)

// createTestVertices creates vertexCount records of a smooth position+uv layout.
func createTestVertices(vertexCount int) []byte {
	buf := new(bytes.Buffer)
	for i := 0; i < vertexCount; i++ {
		binary.Write(buf, binary.LittleEndian, uint16(i*3))
		binary.Write(buf, binary.LittleEndian, uint16(i*5))
		binary.Write(buf, binary.LittleEndian, uint16(1000-i))
		binary.Write(buf, binary.LittleEndian, uint16(0))
		binary.Write(buf, binary.LittleEndian, float32(i)/float32(vertexCount))
	}
	return buf.Bytes()
}

func TestVertexBuffer_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	random := make([]byte, 1000*16)
	rng.Read(random)

	tests := []struct {
		name        string
		vertices    []byte
		vertexCount int
		vertexSize  int
	}{
		{"empty", nil, 0, 12},
		{"single", []byte{1, 2, 3, 4}, 1, 4},
		{"smooth", createTestVertices(3000), 3000, 12},
		{"random", random, 1000, 16},
		{"wide", bytes.Repeat([]byte{7}, 256*3), 3, 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, EncodeVertexBufferBound(tt.vertexCount, tt.vertexSize))
			n, err := EncodeVertexBuffer(buf, tt.vertices, tt.vertexCount, tt.vertexSize, DefaultVertexEncoderOptions())
			if err != nil {
				t.Fatalf("EncodeVertexBuffer failed: %v", err)
			}
			if buf[0] != 0xa0 {
				t.Errorf("expected header 0xa0, got 0x%02x", buf[0])
			}

			decoded := make([]byte, tt.vertexCount*tt.vertexSize)
			if err := DecodeVertexBuffer(decoded, tt.vertexCount, tt.vertexSize, buf[:n]); err != nil {
				t.Fatalf("DecodeVertexBuffer failed: %v", err)
			}
			if !bytes.Equal(decoded, tt.vertices[:tt.vertexCount*tt.vertexSize]) {
				t.Error("decoded vertices differ from input")
			}
		})
	}
}

func TestVertexBuffer_Compresses(t *testing.T) {
	vertices := createTestVertices(4096)
	buf := make([]byte, EncodeVertexBufferBound(4096, 12))
	n, err := EncodeVertexBuffer(buf, vertices, 4096, 12, DefaultVertexEncoderOptions())
	if err != nil {
		t.Fatalf("EncodeVertexBuffer failed: %v", err)
	}
	if n*2 > len(vertices) {
		t.Errorf("expected at least 2x compression, got %d bytes from %d", n, len(vertices))
	}
}

func TestVertexBuffer_Errors(t *testing.T) {
	vertices := createTestVertices(100)
	buf := make([]byte, EncodeVertexBufferBound(100, 12))
	n, err := EncodeVertexBuffer(buf, vertices, 100, 12, VertexEncoderOptions{})
	if err != nil {
		t.Fatalf("EncodeVertexBuffer failed: %v", err)
	}
	encoded := buf[:n]

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"size not multiple of 4", func() error {
			_, err := EncodeVertexBuffer(buf, vertices, 100, 6, VertexEncoderOptions{})
			return err
		}, ErrInvalidArgument},
		{"size over 256", func() error {
			return DecodeVertexBuffer(make([]byte, 260), 1, 260, encoded)
		}, ErrInvalidArgument},
		{"unknown version option", func() error {
			_, err := EncodeVertexBuffer(buf, vertices, 100, 12, VertexEncoderOptions{Version: 1})
			return err
		}, ErrInvalidArgument},
		{"small destination", func() error {
			_, err := EncodeVertexBuffer(make([]byte, 40), vertices, 100, 12, VertexEncoderOptions{})
			return err
		}, ErrBufferTooSmall},
		{"future version", func() error {
			bad := append([]byte(nil), encoded...)
			bad[0] = 0xa5
			return DecodeVertexBuffer(make([]byte, 1200), 100, 12, bad)
		}, ErrUnsupportedVersion},
		{"wrong header", func() error {
			bad := append([]byte(nil), encoded...)
			bad[0] = 0xe0
			return DecodeVertexBuffer(make([]byte, 1200), 100, 12, bad)
		}, ErrDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("truncated", func(t *testing.T) {
		dst := make([]byte, 1200)
		for k := 0; k < n; k++ {
			if err := DecodeVertexBuffer(dst, 100, 12, encoded[:k]); !errors.Is(err, ErrDecode) {
				t.Fatalf("expected ErrDecode at length %d, got %v", k, err)
			}
		}
	})
}

func TestVertexBuffer_RandomInputNeverPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	dst := make([]byte, 64*256)
	for i := 0; i < 2000; i++ {
		buf := make([]byte, rng.Intn(2048))
		rng.Read(buf)
		if len(buf) > 0 {
			buf[0] = 0xa0
		}
		size := 4 * (1 + rng.Intn(8))
		_ = DecodeVertexBuffer(dst, rng.Intn(64), size, buf)
	}
}

func FuzzDecodeVertexBuffer(f *testing.F) {
	vertices := createTestVertices(20)
	buf := make([]byte, EncodeVertexBufferBound(20, 12))
	if n, err := EncodeVertexBuffer(buf, vertices, 20, 12, VertexEncoderOptions{}); err == nil {
		f.Add(buf[:n], 20, 12)
	}
	f.Fuzz(func(t *testing.T, data []byte, count, size int) {
		if count < 0 || count > 1000 || size <= 0 || size > 256 {
			return
		}
		_ = DecodeVertexBuffer(make([]byte, count*size), count, size, data)
	})
}
