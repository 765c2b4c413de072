package meshopt

import (
	"fmt"

	"github.com/Faultbox/meshopt/pkg/math"
)

// PointColors supplies optional per-point colors for SimplifyPoints.
type PointColors struct {
	Data   []float32 // Stride floats per point, the first three are compared
	Stride int
	Weight float32 // relative importance of color versus position
}

// SimplifyPoints selects up to targetVertexCount representative points from a
// point cloud by clustering on a uniform grid. Within each cell the point closest
// to the cell average (in position and weighted color) wins. dst must hold
// targetVertexCount entries. Returns the number of points written.
func SimplifyPoints(dst []uint32, positions []float32, vertexCount, stride int, colors PointColors, targetVertexCount int) (int, error) {
	if err := validatePositions(positions, stride, vertexCount); err != nil {
		return 0, err
	}
	if targetVertexCount < 0 || targetVertexCount > vertexCount {
		return 0, fmt.Errorf("%w: target vertex count %d", ErrInvalidArgument, targetVertexCount)
	}
	if len(dst) < targetVertexCount {
		return 0, fmt.Errorf("%w: destination %d < %d", ErrBufferTooSmall, len(dst), targetVertexCount)
	}
	hasColors := colors.Data != nil
	if hasColors && (colors.Stride < 3 || len(colors.Data) < (vertexCount-1)*colors.Stride+3) {
		return 0, fmt.Errorf("%w: color stride %d", ErrInvalidArgument, colors.Stride)
	}

	if targetVertexCount == vertexCount {
		for i := 0; i < vertexCount; i++ {
			dst[i] = uint32(i)
		}
		return vertexCount, nil
	}
	if targetVertexCount == 0 {
		return 0, nil
	}

	points := rescalePositions(positions, vertexCount, stride)
	ids := make([]uint32, vertexCount)
	cells := make([]uint32, vertexCount)

	countCells := func(grid int) int {
		computeVertexIDs(ids, points, grid)
		return fillVertexCells(cells, ids)
	}

	// cell count grows roughly with the cube of the grid size
	guess := 1
	for guess*guess*guess < targetVertexCount {
		guess++
	}
	grid, _ := gridSearch(targetVertexCount, 1, countCells(1), vertexCount, guess, countCells)
	cellCount := countCells(grid)

	type reservoir struct {
		pos   math.Vec3
		color math.Vec3
		count float32
	}
	res := make([]reservoir, cellCount)
	color := func(i int) math.Vec3 {
		if !hasColors {
			return math.Vec3{}
		}
		return math.V3(colors.Data[i*colors.Stride:])
	}
	for i, c := range cells {
		res[c].pos = res[c].pos.Add(points[i])
		res[c].color = res[c].color.Add(color(i))
		res[c].count++
	}

	cellRemap := make([]uint32, cellCount)
	cellErrors := make([]float32, cellCount)
	for i := range cellRemap {
		cellRemap[i] = Unused
	}
	weight := colors.Weight * colors.Weight
	for i, c := range cells {
		inv := 1 / res[c].count
		e := points[i].Sub(res[c].pos.Scale(inv)).LengthSq()
		if hasColors {
			e += weight * color(i).Sub(res[c].color.Scale(inv)).LengthSq()
		}
		if cellRemap[c] == Unused || e < cellErrors[c] {
			cellRemap[c] = uint32(i)
			cellErrors[c] = e
		}
	}

	return copy(dst[:targetVertexCount], cellRemap), nil
}
