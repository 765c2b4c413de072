package meshopt

import "fmt"

const (
	cacheSizeMax = 16
	valenceMax   = 8
)

// vertexScoreTable scores a vertex by its cache position and remaining valence.
type vertexScoreTable struct {
	cache [1 + cacheSizeMax]float32
	live  [1 + valenceMax]float32
}

// Tuned against a corpus of game meshes for a 16-entry LRU cache.
var scoreTableList = vertexScoreTable{
	cache: [...]float32{0, 0.779, 0.791, 0.789, 0.981, 0.843, 0.726, 0.847, 0.882, 0.867, 0.799, 0.642, 0.613, 0.600, 0.568, 0.372, 0.234},
	live:  [...]float32{0, 0.995, 0.713, 0.450, 0.404, 0.059, 0.005, 0.147, 0.006},
}

// Tuned for strip conversion: favours the last three vertices heavily.
var scoreTableStrip = vertexScoreTable{
	cache: [...]float32{0, 1.000, 1.000, 1.000, 0.453, 0.561, 0.490, 0.459, 0.179, 0.526, 0.000, 0.227, 0.184, 0.490, 0.112, 0.050, 0.131},
	live:  [...]float32{0, 0.956, 0.786, 0.577, 0.558, 0.618, 0.549, 0.499, 0.489},
}

func (t *vertexScoreTable) score(cachePosition int, liveTriangles uint32) float32 {
	if liveTriangles > valenceMax {
		liveTriangles = valenceMax
	}
	return t.cache[1+cachePosition] + t.live[liveTriangles]
}

// OptimizeVertexCache reorders triangles to improve post-transform vertex cache
// reuse on GPUs with an LRU-like cache. dst may alias indices.
func OptimizeVertexCache(dst, indices []uint32, vertexCount int) error {
	return optimizeVertexCacheTable(dst, indices, vertexCount, &scoreTableList)
}

// OptimizeVertexCacheStrip reorders triangles to produce long runs of
// strip-friendly triangles, trading some cache efficiency for fewer restarts
// after Stripify.
func OptimizeVertexCacheStrip(dst, indices []uint32, vertexCount int) error {
	return optimizeVertexCacheTable(dst, indices, vertexCount, &scoreTableStrip)
}

func checkCacheArgs(dst, indices []uint32, vertexCount int) error {
	if err := validateTriangles(indices, vertexCount); err != nil {
		return err
	}
	if len(dst) < len(indices) {
		return fmt.Errorf("%w: destination %d < %d indices", ErrBufferTooSmall, len(dst), len(indices))
	}
	return nil
}

func optimizeVertexCacheTable(dst, indices []uint32, vertexCount int, table *vertexScoreTable) error {
	if err := checkCacheArgs(dst, indices, vertexCount); err != nil {
		return err
	}
	if len(indices) == 0 {
		return nil
	}

	// work on a copy so dst may alias indices
	indices = append([]uint32(nil), indices...)
	faceCount := len(indices) / 3
	const cacheSize = cacheSizeMax

	adj := buildTriangleAdjacency(indices, vertexCount)
	liveTriangles := append([]uint32(nil), adj.counts...)
	emitted := make([]bool, faceCount)

	vertexScores := make([]float32, vertexCount)
	for v := range vertexScores {
		vertexScores[v] = table.score(-1, liveTriangles[v])
	}
	triangleScores := make([]float32, faceCount)
	for t := range triangleScores {
		triangleScores[t] = vertexScores[indices[t*3]] + vertexScores[indices[t*3+1]] + vertexScores[indices[t*3+2]]
	}

	cache := make([]uint32, 0, cacheSize+3)
	cacheNew := make([]uint32, 0, cacheSize+3)

	current := 0
	inputCursor := 1
	out := 0

	for current >= 0 {
		a, b, c := indices[current*3], indices[current*3+1], indices[current*3+2]
		dst[out*3], dst[out*3+1], dst[out*3+2] = a, b, c
		out++

		emitted[current] = true
		triangleScores[current] = 0

		cacheNew = append(cacheNew[:0], a, b, c)
		for _, v := range cache {
			if v != a && v != b && v != c {
				cacheNew = append(cacheNew, v)
			}
		}
		cache, cacheNew = cacheNew, cache

		for _, v := range [3]uint32{a, b, c} {
			adj.remove(v, uint32(current))
			liveTriangles[v]--
		}

		best := -1
		bestScore := float32(0)
		for i, v := range cache {
			if adj.counts[v] == 0 {
				continue
			}
			position := i
			if i >= cacheSize {
				position = -1
			}
			score := table.score(position, liveTriangles[v])
			diff := score - vertexScores[v]
			vertexScores[v] = score
			for _, t := range adj.triangles(v) {
				ts := triangleScores[t] + diff
				if best < 0 || ts > bestScore {
					best = int(t)
					bestScore = ts
				}
				triangleScores[t] = ts
			}
		}
		if len(cache) > cacheSize {
			cache = cache[:cacheSize]
		}

		current = best
		if current < 0 {
			for inputCursor < faceCount && emitted[inputCursor] {
				inputCursor++
			}
			if inputCursor < faceCount {
				current = inputCursor
			}
		}
	}
	return nil
}

// OptimizeVertexCacheFifo reorders triangles for a fixed-size FIFO cache of
// cacheSize entries. It is faster than OptimizeVertexCache but usually yields
// slightly worse results on LRU hardware. dst may alias indices.
func OptimizeVertexCacheFifo(dst, indices []uint32, vertexCount, cacheSize int) error {
	if cacheSize < 3 {
		return fmt.Errorf("%w: cache size %d", ErrInvalidArgument, cacheSize)
	}
	if err := checkCacheArgs(dst, indices, vertexCount); err != nil {
		return err
	}
	if len(indices) == 0 {
		return nil
	}

	indices = append([]uint32(nil), indices...)
	faceCount := len(indices) / 3

	adj := buildTriangleAdjacency(indices, vertexCount)
	liveTriangles := append([]uint32(nil), adj.counts...)
	timestamps := make([]int, vertexCount)
	deadEnd := make([]uint32, 0, len(indices))
	emitted := make([]bool, faceCount)

	current := 0
	timestamp := cacheSize + 1
	inputCursor := 1
	out := 0

	for current >= 0 {
		candidatesBegin := len(deadEnd)

		for _, t := range adj.triangles(uint32(current)) {
			if emitted[t] {
				continue
			}
			tri := indices[t*3 : t*3+3]
			copy(dst[out*3:], tri)
			out++
			deadEnd = append(deadEnd, tri...)
			for _, v := range tri {
				liveTriangles[v]--
				if timestamp-timestamps[v] > cacheSize {
					timestamps[v] = timestamp
					timestamp++
				}
			}
			emitted[t] = true
		}

		current = -1
		bestPriority := -1
		for _, v := range deadEnd[candidatesBegin:] {
			if liveTriangles[v] == 0 {
				continue
			}
			priority := 0
			if timestamp-timestamps[v]+2*int(liveTriangles[v]) <= cacheSize {
				priority = timestamp - timestamps[v]
			}
			if priority > bestPriority {
				current = int(v)
				bestPriority = priority
			}
		}

		if current < 0 {
			for len(deadEnd) > 0 {
				v := deadEnd[len(deadEnd)-1]
				deadEnd = deadEnd[:len(deadEnd)-1]
				if liveTriangles[v] > 0 {
					current = int(v)
					break
				}
			}
		}
		if current < 0 {
			for inputCursor < vertexCount && liveTriangles[inputCursor] == 0 {
				inputCursor++
			}
			if inputCursor < vertexCount {
				current = inputCursor
			}
		}
	}
	return nil
}
