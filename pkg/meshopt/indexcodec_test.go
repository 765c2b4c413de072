package meshopt

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
)

func encodeTestIndices(t *testing.T, indices []uint32, vertexCount int, opts IndexEncoderOptions) []byte {
	t.Helper()
	buf := make([]byte, EncodeIndexBufferBound(len(indices), vertexCount))
	n, err := EncodeIndexBuffer(buf, indices, opts)
	if err != nil {
		t.Fatalf("EncodeIndexBuffer failed: %v", err)
	}
	return buf[:n]
}

func TestIndexBuffer_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	randomIndices, _ := createTestRandomMesh(rng, 1000, 700)
	gridIndices, _ := createTestGrid(20)
	cached := make([]uint32, len(gridIndices))
	if err := OptimizeVertexCache(cached, gridIndices, 400); err != nil {
		t.Fatalf("OptimizeVertexCache failed: %v", err)
	}

	meshes := []struct {
		name        string
		indices     []uint32
		vertexCount int
	}{
		{"empty", nil, 0},
		{"quad", []uint32{0, 1, 2, 2, 1, 3}, 4},
		{"degenerate", []uint32{0, 0, 3, 3, 0, 0, 1, 2, 1, 5, 5, 5, 0, 1, 2, 2, 2, 4}, 6},
		{"grid", gridIndices, 400},
		{"cached grid", cached, 400},
		{"random", randomIndices, 1000},
	}
	for _, m := range meshes {
		for version := 0; version <= IndexVersionLatest; version++ {
			t.Run(fmt.Sprintf("%s v%d", m.name, version), func(t *testing.T) {
				encoded := encodeTestIndices(t, m.indices, m.vertexCount, IndexEncoderOptions{Version: version})
				if encoded[0] != byte(0xe0|version) {
					t.Errorf("expected header 0x%02x, got 0x%02x", 0xe0|version, encoded[0])
				}

				decoded := make([]uint32, len(m.indices))
				if err := DecodeIndexBuffer(decoded, encoded); err != nil {
					t.Fatalf("DecodeIndexBuffer failed: %v", err)
				}
				// corners may be rotated but triangle order is kept
				for i := 0; i < len(m.indices); i += 3 {
					assertSameTriangles(t, m.indices[i:i+3], decoded[i:i+3])
				}
			})
		}
	}
}

func TestIndexBuffer_Compresses(t *testing.T) {
	indices, _ := createTestGrid(32)
	cached := make([]uint32, len(indices))
	if err := OptimizeVertexCache(cached, indices, 1024); err != nil {
		t.Fatalf("OptimizeVertexCache failed: %v", err)
	}
	encoded := encodeTestIndices(t, cached, 1024, DefaultIndexEncoderOptions())

	if raw := len(cached) * 4; len(encoded)*4 > raw {
		t.Errorf("expected at least 4x compression, got %d bytes from %d", len(encoded), raw)
	}
}

func TestIndexBuffer_CacheOptimizeEncodeDecode(t *testing.T) {
	indices := []uint32{0, 1, 2, 2, 1, 3}
	optimized := make([]uint32, len(indices))
	if err := OptimizeVertexCache(optimized, indices, 4); err != nil {
		t.Fatalf("OptimizeVertexCache failed: %v", err)
	}

	encoded := encodeTestIndices(t, optimized, 4, DefaultIndexEncoderOptions())
	decoded := make([]uint32, len(indices))
	if err := DecodeIndexBuffer(decoded, encoded); err != nil {
		t.Fatalf("DecodeIndexBuffer failed: %v", err)
	}
	assertSameTriangles(t, indices, decoded)
}

func TestIndexBuffer_Decode16(t *testing.T) {
	indices := []uint32{0, 1, 2, 2, 1, 3, 65535, 4, 5}
	encoded := encodeTestIndices(t, indices, 65536, DefaultIndexEncoderOptions())

	decoded := make([]uint16, len(indices))
	if err := DecodeIndexBuffer16(decoded, encoded); err != nil {
		t.Fatalf("DecodeIndexBuffer16 failed: %v", err)
	}
	wide := make([]uint32, len(decoded))
	for i, v := range decoded {
		wide[i] = uint32(v)
	}
	assertSameTriangles(t, indices, wide)
}

func TestIndexBuffer_Errors(t *testing.T) {
	indices := []uint32{0, 1, 2, 2, 1, 3}
	encoded := encodeTestIndices(t, indices, 4, DefaultIndexEncoderOptions())

	t.Run("small destination", func(t *testing.T) {
		_, err := EncodeIndexBuffer(make([]byte, 4), indices, DefaultIndexEncoderOptions())
		if !errors.Is(err, ErrBufferTooSmall) {
			t.Errorf("expected ErrBufferTooSmall, got %v", err)
		}
	})

	t.Run("bad version option", func(t *testing.T) {
		_, err := EncodeIndexBuffer(make([]byte, 64), indices, IndexEncoderOptions{Version: 7})
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("future version", func(t *testing.T) {
		bad := append([]byte(nil), encoded...)
		bad[0] = 0xe0 | 0x0f
		err := DecodeIndexBuffer(make([]uint32, 6), bad)
		if !errors.Is(err, ErrUnsupportedVersion) || !errors.Is(err, ErrDecode) {
			t.Errorf("expected ErrUnsupportedVersion, got %v", err)
		}
	})

	t.Run("wrong header", func(t *testing.T) {
		bad := append([]byte(nil), encoded...)
		bad[0] = 0xa0
		if err := DecodeIndexBuffer(make([]uint32, 6), bad); !errors.Is(err, ErrDecode) {
			t.Errorf("expected ErrDecode, got %v", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		for n := 0; n < len(encoded); n++ {
			if err := DecodeIndexBuffer(make([]uint32, 6), encoded[:n]); !errors.Is(err, ErrDecode) {
				t.Fatalf("expected ErrDecode at length %d, got %v", n, err)
			}
		}
	})
}

func TestIndexBuffer_RandomInputNeverPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	dst := make([]uint32, 300)
	for i := 0; i < 2000; i++ {
		buf := make([]byte, rng.Intn(512))
		rng.Read(buf)
		if len(buf) > 0 && rng.Intn(2) == 0 {
			buf[0] = byte(0xe0 | rng.Intn(2))
		}
		_ = DecodeIndexBuffer(dst[:rng.Intn(100)*3], buf)
	}
}

func TestIndexSequence_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	random := make([]uint32, 1000)
	for i := range random {
		random[i] = uint32(rng.Intn(100000))
	}
	strip := make([]uint32, 0, 200)
	for i := 0; i < 100; i++ {
		strip = append(strip, uint32(i), uint32(i+100))
	}

	sequences := []struct {
		name    string
		indices []uint32
		count   int
	}{
		{"empty", nil, 0},
		{"strip", strip, 200},
		{"random", random, 100000},
		{"extremes", []uint32{0, 0xffffffff, 0, 0xfffffffe, 1}, 0},
	}
	for _, s := range sequences {
		t.Run(s.name, func(t *testing.T) {
			vertexCount := s.count
			if vertexCount == 0 {
				vertexCount = 1 << 30
			}
			buf := make([]byte, EncodeIndexSequenceBound(len(s.indices), vertexCount)+8)
			n, err := EncodeIndexSequence(buf, s.indices, DefaultIndexEncoderOptions())
			if err != nil {
				t.Fatalf("EncodeIndexSequence failed: %v", err)
			}
			if buf[0] != 0xd1 {
				t.Errorf("expected header 0xd1, got 0x%02x", buf[0])
			}

			decoded := make([]uint32, len(s.indices))
			if err := DecodeIndexSequence(decoded, buf[:n]); err != nil {
				t.Fatalf("DecodeIndexSequence failed: %v", err)
			}
			for i := range s.indices {
				if decoded[i] != s.indices[i] {
					t.Fatalf("mismatch at %d: expected %d, got %d", i, s.indices[i], decoded[i])
				}
			}
		})
	}
}

func TestIndexSequence_Decode16(t *testing.T) {
	indices := []uint32{7, 8, 9, 100, 65535, 0, 3}
	buf := make([]byte, EncodeIndexSequenceBound(len(indices), 65536))
	n, err := EncodeIndexSequence(buf, indices, DefaultIndexEncoderOptions())
	if err != nil {
		t.Fatalf("EncodeIndexSequence failed: %v", err)
	}

	decoded := make([]uint16, len(indices))
	if err := DecodeIndexSequence16(decoded, buf[:n]); err != nil {
		t.Fatalf("DecodeIndexSequence16 failed: %v", err)
	}
	for i := range indices {
		if uint32(decoded[i]) != indices[i] {
			t.Fatalf("mismatch at %d: expected %d, got %d", i, indices[i], decoded[i])
		}
	}
}

func TestIndexSequence_Truncated(t *testing.T) {
	indices := []uint32{5, 6, 7, 1000, 3}
	buf := make([]byte, EncodeIndexSequenceBound(len(indices), 1001))
	n, err := EncodeIndexSequence(buf, indices, IndexEncoderOptions{})
	if err != nil {
		t.Fatalf("EncodeIndexSequence failed: %v", err)
	}
	for k := 0; k < n; k++ {
		if err := DecodeIndexSequence(make([]uint32, len(indices)), buf[:k]); !errors.Is(err, ErrDecode) {
			t.Fatalf("expected ErrDecode at length %d, got %v", k, err)
		}
	}
}

func FuzzDecodeIndexBuffer(f *testing.F) {
	f.Add([]byte{0xe1, 0xf0, 0x10, 0xfe, 0xff, 0xf0, 0x0c, 0xff, 0x02, 0x02, 0x02, 0x00, 0x76, 0x87, 0x56, 0x67,
		0x78, 0xa9, 0x86, 0x65, 0x89, 0x68, 0x98, 0x01, 0x69, 0x00, 0x00}, 12)
	f.Add([]byte{0xe0}, 3)
	f.Fuzz(func(t *testing.T, data []byte, count int) {
		if count < 0 || count > 3000 {
			return
		}
		_ = DecodeIndexBuffer(make([]uint32, count-count%3), data)
		_ = DecodeIndexBuffer16(make([]uint16, count-count%3), data)
	})
}

func FuzzDecodeIndexSequence(f *testing.F) {
	f.Add([]byte{0xd1, 0x00, 0x02, 0x04, 0x00, 0x00, 0x00, 0x00}, 3)
	f.Fuzz(func(t *testing.T, data []byte, count int) {
		if count < 0 || count > 3000 {
			return
		}
		_ = DecodeIndexSequence(make([]uint32, count), data)
	})
}
