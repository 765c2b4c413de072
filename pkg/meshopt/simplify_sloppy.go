package meshopt

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/Faultbox/meshopt/pkg/math"
)

const (
	maxGridSize         = 1025
	interpolationPasses = 5
)

// computeVertexIDs quantizes unit-cube positions onto a gridSize^3 grid and packs
// the cell coordinates into 30-bit ids.
func computeVertexIDs(ids []uint32, positions []math.Vec3, gridSize int) {
	scale := float32(gridSize - 1)
	for i, p := range positions {
		x := uint32(p.X*scale + 0.5)
		y := uint32(p.Y*scale + 0.5)
		z := uint32(p.Z*scale + 0.5)
		ids[i] = x<<20 | y<<10 | z
	}
}

func countTriangles(ids, indices []uint32) int {
	count := 0
	for t := 0; t+2 < len(indices); t += 3 {
		a, b, c := ids[indices[t]], ids[indices[t+1]], ids[indices[t+2]]
		if a != b && a != c && b != c {
			count++
		}
	}
	return count
}

// interpolate is three-point interpolation search from "Revenge of Interpolation Search".
func interpolate(y, x0, y0, x1, y1, x2, y2 float32) float32 {
	num := (y1 - y) * (x1 - x2) * (x1 - x0) * (y2 - y0)
	den := (y2-y)*(x1-x2)*(y0-y1) + (y0-y)*(x1-x0)*(y1-y2)
	return x1 + num/den
}

// gridSearch finds the largest grid size whose result count stays within target.
// count evaluates a grid size; minGrid must be evaluated by the caller.
func gridSearch(target, minGrid, minCount, maxCount, guess int, count func(grid int) int) (int, int) {
	maxGrid := maxGridSize
	next := guess
	for pass := 0; pass < 10+interpolationPasses; pass++ {
		if minCount >= target || maxGrid-minGrid <= 1 {
			break
		}
		// clamp the guess so the search converges
		grid := min(max(next, minGrid+1), maxGrid-1)
		n := count(grid)
		tip := interpolate(float32(target), float32(minGrid), float32(minCount), float32(grid), float32(n), float32(maxGrid), float32(maxCount))

		if n <= target {
			minGrid, minCount = grid, n
		} else {
			maxGrid, maxCount = grid, n
		}
		// interpolation converges fast but degrades to O(N); finish with bisection
		if pass < interpolationPasses && !math32.IsNaN(tip) && !math32.IsInf(tip, 0) {
			next = int(tip + 0.5)
		} else {
			next = (minGrid + maxGrid) / 2
		}
	}
	return minGrid, minCount
}

// fillVertexCells assigns a dense cell index to every distinct vertex id.
func fillVertexCells(cells, ids []uint32) int {
	table := make(map[uint32]uint32, len(ids))
	for i, id := range ids {
		c, ok := table[id]
		if !ok {
			c = uint32(len(table))
			table[id] = c
		}
		cells[i] = c
	}
	return len(table)
}

// SimplifySloppy reduces a triangle list by clustering vertices on a uniform
// grid. It is much faster than Simplify but ignores topology and attributes.
// The grid is chosen so the result stays within targetIndexCount and, when
// possible, targetError. Returns the resulting index count and relative error.
// When even the coarsest grid that keeps any triangle exceeds targetIndexCount
// the result is empty with error 1; this is not an error.
func SimplifySloppy(dst, indices []uint32, positions []float32, vertexCount, stride, targetIndexCount int, targetError float32) (int, float32, error) {
	if err := validateTriangles(indices, vertexCount); err != nil {
		return 0, 0, err
	}
	if err := validatePositions(positions, stride, vertexCount); err != nil {
		return 0, 0, err
	}
	if targetIndexCount < 0 || targetIndexCount > len(indices) {
		return 0, 0, fmt.Errorf("%w: target index count %d", ErrInvalidArgument, targetIndexCount)
	}
	if len(dst) < targetIndexCount {
		return 0, 0, fmt.Errorf("%w: destination %d < %d indices", ErrBufferTooSmall, len(dst), targetIndexCount)
	}

	if targetIndexCount == len(indices) {
		copy(dst, indices)
		return len(indices), 0, nil
	}

	points := rescalePositions(positions, vertexCount, stride)
	ids := make([]uint32, vertexCount)
	targetTriangles := targetIndexCount / 3

	minGrid := int(1 / max(targetError, 1e-3))
	minTriangles := 0
	// error-limited grids are evaluated up front which also speeds up convergence
	if minGrid > 1 {
		computeVertexIDs(ids, points, minGrid)
		minTriangles = countTriangles(ids, indices)
	}
	// the index budget wins when the error grid is already too fine
	if minTriangles > targetTriangles {
		minGrid, minTriangles = 1, 0
	}

	// triangle count grows roughly with the square of the grid size
	guess := int(math32.Sqrt(float32(targetIndexCount/6)) + 0.5)
	grid, triangles := gridSearch(targetTriangles, minGrid, minTriangles, len(indices)/3, guess, func(grid int) int {
		computeVertexIDs(ids, points, grid)
		return countTriangles(ids, indices)
	})
	if triangles == 0 || triangles > targetTriangles {
		return 0, 1, nil
	}

	computeVertexIDs(ids, points, grid)
	cells := make([]uint32, vertexCount)
	cellCount := fillVertexCells(cells, ids)

	quadrics := make([]quadric, cellCount)
	for t := 0; t+2 < len(indices); t += 3 {
		i0, i1, i2 := indices[t], indices[t+1], indices[t+2]
		q := triangleQuadric(points[i0], points[i1], points[i2])
		quadrics[cells[i0]].add(q)
		quadrics[cells[i1]].add(q)
		quadrics[cells[i2]].add(q)
	}

	// each cell collapses onto its vertex with the least error
	cellRemap := make([]uint32, cellCount)
	cellErrors := make([]float32, cellCount)
	for i := range cellRemap {
		cellRemap[i] = Unused
	}
	for i, c := range cells {
		e := quadrics[c].error(points[i])
		if cellRemap[c] == Unused || e < cellErrors[c] {
			cellRemap[c] = uint32(i)
			cellErrors[c] = e
		}
	}
	var resultError float32
	for _, e := range cellErrors {
		resultError = max(resultError, e)
	}

	// neighbouring cells frequently produce the same triangle
	seen := make(map[[3]uint32]struct{}, triangles)
	write := 0
	for t := 0; t+2 < len(indices); t += 3 {
		c0, c1, c2 := cells[indices[t]], cells[indices[t+1]], cells[indices[t+2]]
		if c0 == c1 || c0 == c2 || c1 == c2 {
			continue
		}
		a, b, c := cellRemap[c0], cellRemap[c1], cellRemap[c2]
		// rotate the smallest index first so duplicates compare equal
		if b < a && b < c {
			a, b, c = b, c, a
		} else if c < a && c < b {
			a, b, c = c, a, b
		}
		key := [3]uint32{a, b, c}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		dst[write], dst[write+1], dst[write+2] = a, b, c
		write += 3
	}
	return write, math32.Sqrt(resultError), nil
}
