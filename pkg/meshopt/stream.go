package meshopt

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxStreams is the maximum number of streams accepted by multi-stream functions.
const MaxStreams = 16

// Stream is a strided view over raw vertex data.
// Element i occupies Data[i*Stride : i*Stride+Size].
type Stream struct {
	Data   []byte
	Size   int
	Stride int
}

// NewStream returns a tightly packed stream of size-byte elements.
func NewStream(data []byte, size int) Stream {
	return Stream{Data: data, Size: size, Stride: size}
}

// Float3Stream converts the first three floats of each position record into a
// packed 12-byte stream.
func Float3Stream(positions []float32, strideFloats int) Stream {
	count := positionsCount(positions, strideFloats)
	data := make([]byte, count*12)
	for i := 0; i < count; i++ {
		p := positions[i*strideFloats:]
		binary.LittleEndian.PutUint32(data[i*12:], math.Float32bits(p[0]))
		binary.LittleEndian.PutUint32(data[i*12+4:], math.Float32bits(p[1]))
		binary.LittleEndian.PutUint32(data[i*12+8:], math.Float32bits(p[2]))
	}
	return NewStream(data, 12)
}

// Count returns the number of complete elements in the stream.
func (s Stream) Count() int {
	if s.Stride <= 0 || len(s.Data) < s.Size {
		return 0
	}
	return (len(s.Data)-s.Size)/s.Stride + 1
}

// Element returns the bytes of element i.
func (s Stream) Element(i int) []byte {
	off := i * s.Stride
	return s.Data[off : off+s.Size]
}

func (s Stream) validate() error {
	if s.Size <= 0 || s.Stride < s.Size {
		return fmt.Errorf("%w: stream size %d stride %d", ErrInvalidArgument, s.Size, s.Stride)
	}
	return nil
}

func validateStreams(streams []Stream) error {
	if len(streams) == 0 || len(streams) > MaxStreams {
		return fmt.Errorf("%w: stream count %d", ErrInvalidArgument, len(streams))
	}
	for _, s := range streams {
		if err := s.validate(); err != nil {
			return err
		}
	}
	return nil
}

// positionsCount returns how many vertices a position buffer holds.
func positionsCount(positions []float32, stride int) int {
	if stride < 3 || len(positions) < 3 {
		return 0
	}
	return (len(positions)-3)/stride + 1
}

func validatePositions(positions []float32, stride, vertexCount int) error {
	if stride < 3 {
		return fmt.Errorf("%w: position stride %d", ErrInvalidArgument, stride)
	}
	if positionsCount(positions, stride) < vertexCount {
		return fmt.Errorf("%w: %d positions for %d vertices", ErrInvalidArgument, positionsCount(positions, stride), vertexCount)
	}
	return nil
}

func validateIndices(indices []uint32, vertexCount int) error {
	for i, v := range indices {
		if int(v) >= vertexCount {
			return fmt.Errorf("%w: index %d at %d out of range %d", ErrInvalidArgument, v, i, vertexCount)
		}
	}
	return nil
}

func validateTriangles(indices []uint32, vertexCount int) error {
	if len(indices)%3 != 0 {
		return fmt.Errorf("%w: index count %d is not a multiple of 3", ErrInvalidArgument, len(indices))
	}
	return validateIndices(indices, vertexCount)
}
