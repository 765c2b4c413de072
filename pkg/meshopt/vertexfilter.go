package meshopt

import (
	"encoding/binary"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/Faultbox/meshopt/pkg/math"
)

// EncodeExpMode selects how exponents are shared by EncodeFilterExp.
type EncodeExpMode int

const (
	// EncodeExpSeparate gives every component its own exponent.
	EncodeExpSeparate EncodeExpMode = iota
	// EncodeExpSharedVector shares one exponent across all components of a vector.
	EncodeExpSharedVector
	// EncodeExpSharedComponent shares each component's exponent across all vectors.
	EncodeExpSharedComponent
)

// String returns the mode name as used in config files.
func (m EncodeExpMode) String() string {
	switch m {
	case EncodeExpSeparate:
		return "separate"
	case EncodeExpSharedVector:
		return "shared_vector"
	case EncodeExpSharedComponent:
		return "shared_component"
	}
	return fmt.Sprintf("EncodeExpMode(%d)", int(m))
}

func checkFilterBuffer(buffer []byte, count, stride int) error {
	if count < 0 || len(buffer) < count*stride {
		return fmt.Errorf("%w: filter buffer %d bytes for %d x %d", ErrBufferTooSmall, len(buffer), count, stride)
	}
	return nil
}

func roundSigned(v float32) int {
	if v >= 0 {
		return int(v + 0.5)
	}
	return int(v - 0.5)
}

// DecodeFilterOct decodes octahedral normals in place. Each element holds four
// signed components (8-bit for stride 4, 16-bit for stride 8); the first three
// become a unit vector scaled to the component range and the fourth is kept.
func DecodeFilterOct(buffer []byte, count, stride int) error {
	if stride != 4 && stride != 8 {
		return fmt.Errorf("%w: oct filter stride %d", ErrInvalidArgument, stride)
	}
	if err := checkFilterBuffer(buffer, count, stride); err != nil {
		return err
	}

	width := stride / 4
	limit := float32(int(1)<<(width*8-1) - 1)
	for i := 0; i < count; i++ {
		e := buffer[i*stride : (i+1)*stride]
		x := float32(readSigned(e, 0, width))
		y := float32(readSigned(e, 1, width))
		z := float32(readSigned(e, 2, width)) - math32.Abs(x) - math32.Abs(y)

		// fold back the lower hemisphere
		t := math32.Min(z, 0)
		if x >= 0 {
			x += t
		} else {
			x -= t
		}
		if y >= 0 {
			y += t
		} else {
			y -= t
		}

		l := math32.Sqrt(x*x + y*y + z*z)
		s := limit / l
		writeSigned(e, 0, width, roundSigned(x*s))
		writeSigned(e, 1, width, roundSigned(y*s))
		writeSigned(e, 2, width, roundSigned(z*s))
	}
	return nil
}

// DecodeFilterQuat decodes quaternions in place. Each 8-byte element holds three
// 16-bit components and a selector word naming the dropped largest component.
func DecodeFilterQuat(buffer []byte, count, stride int) error {
	if stride != 8 {
		return fmt.Errorf("%w: quat filter stride %d", ErrInvalidArgument, stride)
	}
	if err := checkFilterBuffer(buffer, count, stride); err != nil {
		return err
	}

	scale := float32(1 / sqrt2)
	for i := 0; i < count; i++ {
		e := buffer[i*8 : i*8+8]
		meta := readSigned(e, 3, 2)
		ss := scale / float32(meta|3)

		x := float32(readSigned(e, 0, 2)) * ss
		y := float32(readSigned(e, 1, 2)) * ss
		z := float32(readSigned(e, 2, 2)) * ss
		w := math32.Sqrt(math32.Max(1-x*x-y*y-z*z, 0))

		qc := meta & 3
		writeSigned(e, (qc+1)&3, 2, roundSigned(x*32767))
		writeSigned(e, (qc+2)&3, 2, roundSigned(y*32767))
		writeSigned(e, (qc+3)&3, 2, roundSigned(z*32767))
		writeSigned(e, qc, 2, roundSigned(w*32767))
	}
	return nil
}

// DecodeFilterExp decodes shared-exponent floats in place. Every 32-bit word
// holds a 24-bit signed mantissa and an 8-bit signed exponent.
func DecodeFilterExp(buffer []byte, count, stride int) error {
	if stride <= 0 || stride%4 != 0 {
		return fmt.Errorf("%w: exp filter stride %d", ErrInvalidArgument, stride)
	}
	if err := checkFilterBuffer(buffer, count, stride); err != nil {
		return err
	}

	for i := 0; i < count*stride; i += 4 {
		v := binary.LittleEndian.Uint32(buffer[i:])
		m := int32(v<<8) >> 8
		e := int32(v) >> 24
		f := math32.Float32frombits(uint32(e+127)<<23) * float32(m)
		binary.LittleEndian.PutUint32(buffer[i:], math32.Float32bits(f))
	}
	return nil
}

// EncodeFilterOct encodes unit vectors (four floats per element, the fourth
// passed through) with bits of precision into dst for DecodeFilterOct.
// stride is 4 for bits in [4, 8] and 8 for bits in [4, 16].
func EncodeFilterOct(dst []byte, count, stride, bits int, data []float32) error {
	if (stride != 4 && stride != 8) || bits < 4 || bits > stride*2 {
		return fmt.Errorf("%w: oct filter stride %d bits %d", ErrInvalidArgument, stride, bits)
	}
	if err := checkFilterBuffer(dst, count, stride); err != nil {
		return err
	}
	if len(data) < count*4 {
		return fmt.Errorf("%w: %d floats for %d vectors", ErrInvalidArgument, len(data), count)
	}

	width := stride / 4
	for i := 0; i < count; i++ {
		n := data[i*4 : i*4+4]
		nx, ny, nz, nw := n[0], n[1], n[2], n[3]

		nl := math32.Abs(nx) + math32.Abs(ny) + math32.Abs(nz)
		ns := float32(0)
		if nl != 0 {
			ns = 1 / nl
		}
		nx *= ns
		ny *= ns

		u, v := nx, ny
		if nz < 0 {
			u = (1 - math32.Abs(ny)) * signOf(nx)
			v = (1 - math32.Abs(nx)) * signOf(ny)
		}

		e := dst[i*stride : (i+1)*stride]
		writeSigned(e, 0, width, QuantizeSnorm(u, bits))
		writeSigned(e, 1, width, QuantizeSnorm(v, bits))
		writeSigned(e, 2, width, QuantizeSnorm(1, bits))
		writeSigned(e, 3, width, QuantizeSnorm(nw, bits))
	}
	return nil
}

// EncodeFilterQuat encodes quaternions (x, y, z, w) with bits of precision per
// component into 8-byte elements for DecodeFilterQuat. Input is normalized first.
func EncodeFilterQuat(dst []byte, count, stride, bits int, data []float32) error {
	if stride != 8 || bits < 4 || bits > 16 {
		return fmt.Errorf("%w: quat filter stride %d bits %d", ErrInvalidArgument, stride, bits)
	}
	if err := checkFilterBuffer(dst, count, stride); err != nil {
		return err
	}
	if len(data) < count*4 {
		return fmt.Errorf("%w: %d floats for %d quaternions", ErrInvalidArgument, len(data), count)
	}

	scaler := float32(sqrt2)
	for i := 0; i < count; i++ {
		q := math.QuatFromArray([4]float32(data[i*4 : i*4+4])).Normalize().Array()

		qc := 0
		for c := 1; c < 4; c++ {
			if math32.Abs(q[c]) > math32.Abs(q[qc]) {
				qc = c
			}
		}
		// q and -q are the same rotation
		sign := signOf(q[qc])

		e := dst[i*8 : i*8+8]
		writeSigned(e, 0, 2, QuantizeSnorm(q[(qc+1)&3]*scaler*sign, bits))
		writeSigned(e, 1, 2, QuantizeSnorm(q[(qc+2)&3]*scaler*sign, bits))
		writeSigned(e, 2, 2, QuantizeSnorm(q[(qc+3)&3]*scaler*sign, bits))
		writeSigned(e, 3, 2, (QuantizeSnorm(1, bits)&^3)|qc)
	}
	return nil
}

const expMin = -100

const sqrt2 = 1.41421356237309504880168872420969808

// optlog2 returns the exponent that puts |v| in [0.5, 1) after scaling.
func optlog2(v float32) int {
	if v == 0 {
		return 0
	}
	return int((math32.Float32bits(v)>>23)&0xff) - 127 + 1
}

func optexp2(e int) float32 {
	return math32.Float32frombits(uint32(e+127) << 23)
}

// EncodeFilterExp encodes floats with a bits-wide mantissa and an exponent
// shared according to mode. stride is in bytes and must be a multiple of 4.
func EncodeFilterExp(dst []byte, count, stride, bits int, data []float32, mode EncodeExpMode) error {
	if stride <= 0 || stride%4 != 0 || stride > 256 || bits < 1 || bits > 24 {
		return fmt.Errorf("%w: exp filter stride %d bits %d", ErrInvalidArgument, stride, bits)
	}
	if mode < EncodeExpSeparate || mode > EncodeExpSharedComponent {
		return fmt.Errorf("%w: exp mode %v", ErrInvalidArgument, mode)
	}
	if err := checkFilterBuffer(dst, count, stride); err != nil {
		return err
	}
	components := stride / 4
	if len(data) < count*components {
		return fmt.Errorf("%w: %d floats for %d x %d", ErrInvalidArgument, len(data), count, components)
	}

	componentExp := make([]int, components)
	if mode == EncodeExpSharedComponent {
		for j := range componentExp {
			componentExp[j] = expMin
		}
		for i := 0; i < count; i++ {
			for j, x := range data[i*components : (i+1)*components] {
				componentExp[j] = max(componentExp[j], optlog2(x))
			}
		}
	}

	for i := 0; i < count; i++ {
		v := data[i*components : (i+1)*components]
		vectorExp := expMin
		switch mode {
		case EncodeExpSharedVector:
			for _, x := range v {
				vectorExp = max(vectorExp, optlog2(x))
			}
		case EncodeExpSeparate:
			for j, x := range v {
				componentExp[j] = max(expMin, optlog2(x))
			}
		}

		for j, x := range v {
			exp := componentExp[j]
			if mode == EncodeExpSharedVector {
				exp = vectorExp
			}
			// the mantissa is a bits-wide signed integer
			exp -= bits - 1
			m := roundSigned(x * optexp2(-exp))
			word := uint32(m)&(1<<24-1) | uint32(exp)<<24
			binary.LittleEndian.PutUint32(dst[i*stride+j*4:], word)
		}
	}
	return nil
}

func signOf(v float32) float32 {
	if v >= 0 {
		return 1
	}
	return -1
}

// readSigned reads signed component k of width bytes from e.
func readSigned(e []byte, k, width int) int {
	if width == 1 {
		return int(int8(e[k]))
	}
	return int(int16(binary.LittleEndian.Uint16(e[k*2:])))
}

func writeSigned(e []byte, k, width, v int) {
	if width == 1 {
		e[k] = byte(int8(v))
		return
	}
	binary.LittleEndian.PutUint16(e[k*2:], uint16(int16(v)))
}
