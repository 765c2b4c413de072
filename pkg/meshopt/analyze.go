package meshopt

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/meshopt/pkg/math"
)

// VertexCacheStatistics summarises a simulated post-transform cache run.
type VertexCacheStatistics struct {
	VerticesTransformed int
	WarpsExecuted       int
	ACMR                float32 // transformed vertices per triangle, 0.5..3
	ATVR                float32 // transformed vertices per vertex, 1 is optimal
}

// AnalyzeVertexCache simulates a FIFO cache of cacheSize entries, optionally
// grouped into warps of warpSize vertices with at most primGroupSize triangles.
// Pass 0 for warpSize and primGroupSize to disable warp simulation.
func AnalyzeVertexCache(indices []uint32, vertexCount, cacheSize, warpSize, primGroupSize int) VertexCacheStatistics {
	var stats VertexCacheStatistics
	if len(indices) < 3 || vertexCount == 0 {
		return stats
	}

	timestamps := make([]int, vertexCount)
	timestamp := cacheSize + 1

	warpVertices := 0
	warpTriangles := 0
	warp := make(map[uint32]struct{}, warpSize)

	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]

		if warpSize > 0 {
			missing := 0
			for _, v := range [3]uint32{a, b, c} {
				if _, ok := warp[v]; !ok {
					missing++
				}
			}
			if warpVertices+missing > warpSize || (primGroupSize > 0 && warpTriangles >= primGroupSize) {
				stats.WarpsExecuted++
				for k := range warp {
					delete(warp, k)
				}
				warpVertices = 0
				warpTriangles = 0
			}
			for _, v := range [3]uint32{a, b, c} {
				if _, ok := warp[v]; !ok {
					warp[v] = struct{}{}
					warpVertices++
				}
			}
			warpTriangles++
		}

		for _, v := range [3]uint32{a, b, c} {
			if timestamp-timestamps[v] > cacheSize {
				timestamps[v] = timestamp
				timestamp++
				stats.VerticesTransformed++
			}
		}
	}
	if warpSize > 0 && warpTriangles > 0 {
		stats.WarpsExecuted++
	}

	unique := 0
	seen := make([]bool, vertexCount)
	for _, v := range indices {
		if !seen[v] {
			seen[v] = true
			unique++
		}
	}

	stats.ACMR = float32(stats.VerticesTransformed) / float32(len(indices)/3)
	stats.ATVR = float32(stats.VerticesTransformed) / float32(unique)
	return stats
}

// VertexFetchStatistics summarises a simulated vertex fetch through a cache.
type VertexFetchStatistics struct {
	BytesFetched int
	Overfetch    float32 // fetched bytes / vertex buffer bytes, 1 is optimal
}

// AnalyzeVertexFetch simulates a small direct-mapped cache of 64-byte lines.
func AnalyzeVertexFetch(indices []uint32, vertexCount, vertexSize int) VertexFetchStatistics {
	const (
		lineSize  = 64
		cacheSize = 128 * 1024
		lines     = cacheSize / lineSize
	)
	var stats VertexFetchStatistics
	if len(indices) == 0 || vertexCount == 0 || vertexSize <= 0 {
		return stats
	}

	cache := make([]int, lines)
	for i := range cache {
		cache[i] = -1
	}
	used := make([]bool, vertexCount)
	for _, v := range indices {
		used[v] = true
		start := int(v) * vertexSize
		end := start + vertexSize
		for line := start / lineSize; line <= (end-1)/lineSize; line++ {
			slot := line % lines
			if cache[slot] != line {
				cache[slot] = line
				stats.BytesFetched += lineSize
			}
		}
	}
	unique := 0
	for _, u := range used {
		if u {
			unique++
		}
	}
	stats.Overfetch = float32(stats.BytesFetched) / float32(unique*vertexSize)
	return stats
}

// OverdrawStatistics summarises pixel coverage from a software rasterization pass.
type OverdrawStatistics struct {
	PixelsCovered int
	PixelsShaded  int
	Overdraw      float32 // shaded / covered, 1 is optimal
}

// AnalyzeOverdraw rasterizes the mesh from six axis-aligned views with a depth
// test and counts pixels that pass it versus pixels finally covered.
func AnalyzeOverdraw(indices []uint32, positions []float32, vertexCount, stride int) OverdrawStatistics {
	var stats OverdrawStatistics
	if len(indices) < 3 || vertexCount == 0 {
		return stats
	}

	lo, hi := math.Bounds(positions, stride, vertexCount)
	extent := hi.Sub(lo).MaxComponent()
	scale := float32(0)
	if extent > 0 {
		scale = 1 / extent
	}

	triangles := make([]math.Vec3, 0, len(indices))
	for _, v := range indices {
		p := math.V3(positions[int(v)*stride:])
		triangles = append(triangles, p.Sub(lo).Scale(scale))
	}

	r := newRasterizer()
	for axis := 0; axis < 3; axis++ {
		for _, flip := range [2]bool{false, true} {
			r.clear()
			r.draw(triangles, axis, flip)
			covered, shaded := r.counts()
			stats.PixelsCovered += covered
			stats.PixelsShaded += shaded
		}
	}
	if stats.PixelsCovered > 0 {
		stats.Overdraw = float32(stats.PixelsShaded) / float32(stats.PixelsCovered)
	}
	return stats
}

const rasterGrid = 256

// rasterizer is a tiny depth-tested scanline rasterizer used to estimate overdraw.
type rasterizer struct {
	depth  []float32
	shaded []uint32
}

func newRasterizer() *rasterizer {
	return &rasterizer{
		depth:  make([]float32, rasterGrid*rasterGrid),
		shaded: make([]uint32, rasterGrid*rasterGrid),
	}
}

func (r *rasterizer) clear() {
	for i := range r.depth {
		r.depth[i] = 0
		r.shaded[i] = 0
	}
}

func (r *rasterizer) counts() (covered, shaded int) {
	for _, s := range r.shaded {
		if s > 0 {
			covered++
			shaded += int(s)
		}
	}
	return covered, shaded
}

// project maps a normalized point to screen space for a view along axis.
func project(p math.Vec3, axis int, flip bool) (x, y, z float32) {
	u, v, w := p.Idx((axis+1)%3), p.Idx((axis+2)%3), p.Idx(axis)
	if flip {
		u = 1 - u
		w = 1 - w
	}
	return u * rasterGrid, v * rasterGrid, w
}

// draw rasterizes triangles with back-face culling and a greater-depth test.
func (r *rasterizer) draw(triangles []math.Vec3, axis int, flip bool) {
	for i := 0; i+2 < len(triangles); i += 3 {
		x0, y0, z0 := project(triangles[i], axis, flip)
		x1, y1, z1 := project(triangles[i+1], axis, flip)
		x2, y2, z2 := project(triangles[i+2], axis, flip)
		r.triangle(x0, y0, z0, x1, y1, z1, x2, y2, z2)
	}
}

func (r *rasterizer) triangle(x0, y0, z0, x1, y1, z1, x2, y2, z2 float32) {
	area := (x1-x0)*(y2-y0) - (x2-x0)*(y1-y0)
	if area <= 0 {
		return
	}
	minX := clampPixel(math32.Min(x0, math32.Min(x1, x2)))
	maxX := clampPixel(math32.Max(x0, math32.Max(x1, x2)))
	minY := clampPixel(math32.Min(y0, math32.Min(y1, y2)))
	maxY := clampPixel(math32.Max(y0, math32.Max(y1, y2)))
	inv := 1 / area

	for y := minY; y <= maxY; y++ {
		py := float32(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float32(x) + 0.5
			w0 := (x1-px)*(y2-py) - (x2-px)*(y1-py)
			w1 := (x2-px)*(y0-py) - (x0-px)*(y2-py)
			w2 := (x0-px)*(y1-py) - (x1-px)*(y0-py)
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := (w0*z0 + w1*z1 + w2*z2) * inv
			pixel := y*rasterGrid + x
			if z >= r.depth[pixel] {
				r.depth[pixel] = z
				r.shaded[pixel]++
			}
		}
	}
}

func clampPixel(v float32) int {
	p := int(v)
	if p < 0 {
		return 0
	}
	if p >= rasterGrid {
		return rasterGrid - 1
	}
	return p
}
