package meshopt

import "math"

const hashEmpty = ^uint32(0)

// keyHasher hashes and compares keys identified by a uint32 handle.
type keyHasher interface {
	hash(key uint32) uint32
	equal(a, b uint32) bool
}

// hashTable is an open addressing table of uint32 handles with quadratic probing.
type hashTable struct {
	slots []uint32
}

func newHashTable(count int) *hashTable {
	size := 1
	for size < count+count/4 {
		size *= 2
	}
	slots := make([]uint32, size)
	for i := range slots {
		slots[i] = hashEmpty
	}
	return &hashTable{slots: slots}
}

// find returns the slot holding a key equal to key, or the empty slot where it belongs.
func (t *hashTable) find(h keyHasher, key uint32) int {
	mask := uint32(len(t.slots) - 1)
	bucket := h.hash(key) & mask
	for probe := uint32(0); probe <= mask; probe++ {
		item := t.slots[bucket]
		if item == hashEmpty || h.equal(item, key) {
			return int(bucket)
		}
		bucket = (bucket + probe + 1) & mask
	}
	panic("meshopt: hash table is full")
}

// murmur2 mixes bytes into h using the MurmurHash2 round function.
func murmur2(h uint32, data []byte) uint32 {
	const m = 0x5bd1e995
	const r = 24
	for len(data) >= 4 {
		k := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
		k *= m
		k ^= k >> r
		k *= m
		h *= m
		h ^= k
		data = data[4:]
	}
	for _, b := range data {
		h ^= uint32(b)
		h *= m
	}
	return h
}

// vertexHasher compares vertices bytewise across a set of streams.
type vertexHasher struct {
	streams []Stream
}

func (v vertexHasher) hash(key uint32) uint32 {
	h := uint32(0)
	for _, s := range v.streams {
		h = murmur2(h, s.Element(int(key)))
	}
	return h
}

func (v vertexHasher) equal(a, b uint32) bool {
	for _, s := range v.streams {
		ea, eb := s.Element(int(a)), s.Element(int(b))
		for i := range ea {
			if ea[i] != eb[i] {
				return false
			}
		}
	}
	return true
}

// positionHasher compares vertices by their float3 position.
type positionHasher struct {
	positions []float32
	stride    int
}

func (p positionHasher) hash(key uint32) uint32 {
	v := p.positions[int(key)*p.stride:]
	h := uint32(0)
	for i := 0; i < 3; i++ {
		bits := math.Float32bits(v[i])
		if bits&0x7fffffff == 0 {
			bits = 0 // -0 hashes as +0
		}
		h = h*73856093 ^ (bits ^ bits>>17)
	}
	return h
}

func (p positionHasher) equal(a, b uint32) bool {
	va := p.positions[int(a)*p.stride:]
	vb := p.positions[int(b)*p.stride:]
	return va[0] == vb[0] && va[1] == vb[1] && va[2] == vb[2]
}

// buildPositionRemap maps every vertex to the first vertex sharing its position.
func buildPositionRemap(positions []float32, stride, vertexCount int) []uint32 {
	remap := make([]uint32, vertexCount)
	h := positionHasher{positions: positions, stride: stride}
	table := newHashTable(vertexCount)
	for i := 0; i < vertexCount; i++ {
		slot := table.find(h, uint32(i))
		if table.slots[slot] == hashEmpty {
			table.slots[slot] = uint32(i)
		}
		remap[i] = table.slots[slot]
	}
	return remap
}
