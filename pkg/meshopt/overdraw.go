package meshopt

import (
	"fmt"
	"sort"

	"github.com/Faultbox/meshopt/pkg/math"
)

const overdrawCacheSize = 16

// fifoCache simulates a FIFO post-transform cache with timestamps.
type fifoCache struct {
	timestamps []int
	timestamp  int
	size       int
}

func newFifoCache(vertexCount, size int) *fifoCache {
	return &fifoCache{timestamps: make([]int, vertexCount), timestamp: size + 1, size: size}
}

// flush invalidates all cache entries.
func (f *fifoCache) flush() {
	f.timestamp += f.size + 1
}

// triangle feeds a triangle through the cache and returns the miss count.
func (f *fifoCache) triangle(a, b, c uint32) int {
	misses := 0
	for _, v := range [3]uint32{a, b, c} {
		if f.timestamp-f.timestamps[v] > f.size {
			f.timestamps[v] = f.timestamp
			f.timestamp++
			misses++
		}
	}
	return misses
}

// OptimizeOverdraw reorders clusters of a cache-optimized triangle list so that
// outward-facing geometry is drawn first, reducing overdraw. threshold bounds
// how much worse the vertex cache may get: 1.05 allows 5% more misses.
// Clusters are ordered by centroid along the average normal; the software
// rasterizer used to measure overdraw is in AnalyzeOverdraw.
// dst may alias indices.
func OptimizeOverdraw(dst, indices []uint32, positions []float32, vertexCount, stride int, threshold float32) error {
	if err := validateTriangles(indices, vertexCount); err != nil {
		return err
	}
	if err := validatePositions(positions, stride, vertexCount); err != nil {
		return err
	}
	if len(dst) < len(indices) {
		return fmt.Errorf("%w: destination %d < %d indices", ErrBufferTooSmall, len(dst), len(indices))
	}
	if len(indices) == 0 {
		return nil
	}

	indices = append([]uint32(nil), indices...)
	faceCount := len(indices) / 3

	hard := hardBoundaries(indices, vertexCount)
	clusters := softBoundaries(indices, vertexCount, hard, threshold)
	keys := clusterSortKeys(indices, positions, stride, clusters)

	order := make([]int, len(clusters))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return keys[order[i]] > keys[order[j]]
	})

	out := 0
	for _, c := range order {
		start := clusters[c]
		end := faceCount
		if c+1 < len(clusters) {
			end = clusters[c+1]
		}
		out += copy(dst[out:], indices[start*3:end*3])
	}
	return nil
}

// hardBoundaries starts a cluster at every triangle that misses the cache on all corners.
func hardBoundaries(indices []uint32, vertexCount int) []int {
	cache := newFifoCache(vertexCount, overdrawCacheSize)
	var clusters []int
	for t := 0; t < len(indices)/3; t++ {
		misses := cache.triangle(indices[t*3], indices[t*3+1], indices[t*3+2])
		if t == 0 || misses == 3 {
			clusters = append(clusters, t)
		}
	}
	return clusters
}

// softBoundaries splits hard clusters wherever the running ACMR drops below
// the cluster's ACMR scaled by threshold.
func softBoundaries(indices []uint32, vertexCount int, hard []int, threshold float32) []int {
	faceCount := len(indices) / 3
	cache := newFifoCache(vertexCount, overdrawCacheSize)
	var clusters []int

	for h, start := range hard {
		end := faceCount
		if h+1 < len(hard) {
			end = hard[h+1]
		}

		cache.flush()
		clusterMisses := 0
		for t := start; t < end; t++ {
			clusterMisses += cache.triangle(indices[t*3], indices[t*3+1], indices[t*3+2])
		}
		limit := threshold * float32(clusterMisses) / float32(end-start)

		clusters = append(clusters, start)
		cache.flush()
		misses, faces := 0, 0
		for t := start; t < end; t++ {
			misses += cache.triangle(indices[t*3], indices[t*3+1], indices[t*3+2])
			faces++
			if float32(misses)/float32(faces) <= limit {
				clusters = append(clusters, t+1)
				cache.flush()
				misses, faces = 0, 0
			}
		}
		// a split after the last triangle would leave an empty cluster
		if clusters[len(clusters)-1] == end {
			clusters = clusters[:len(clusters)-1]
		}
	}
	return clusters
}

// clusterSortKeys scores each cluster by how far its centroid lies along its
// average normal relative to the mesh centroid.
func clusterSortKeys(indices []uint32, positions []float32, stride int, clusters []int) []float32 {
	faceCount := len(indices) / 3

	var meshCentroid math.Vec3
	for _, v := range indices {
		meshCentroid = meshCentroid.Add(math.V3(positions[int(v)*stride:]))
	}
	meshCentroid = meshCentroid.Scale(1 / float32(len(indices)))

	keys := make([]float32, len(clusters))
	for c, start := range clusters {
		end := faceCount
		if c+1 < len(clusters) {
			end = clusters[c+1]
		}

		var centroid, normal math.Vec3
		var area float32
		for t := start; t < end; t++ {
			p0 := math.V3(positions[int(indices[t*3])*stride:])
			p1 := math.V3(positions[int(indices[t*3+1])*stride:])
			p2 := math.V3(positions[int(indices[t*3+2])*stride:])
			n := p1.Sub(p0).Cross(p2.Sub(p0))
			a := n.Length()
			centroid = centroid.Add(p0.Add(p1).Add(p2).Scale(a / 3))
			normal = normal.Add(n)
			area += a
		}
		if area > 0 {
			centroid = centroid.Scale(1 / area)
		}
		keys[c] = centroid.Sub(meshCentroid).Dot(normal.Normalize())
	}
	return keys
}
