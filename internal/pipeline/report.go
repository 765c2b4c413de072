package pipeline

import (
	"fmt"
	"io"

	"github.com/Faultbox/meshopt/pkg/meshfile"
	"github.com/Faultbox/meshopt/pkg/meshopt"
)

// Report holds the GPU efficiency metrics of a mesh.
type Report struct {
	VertexCount   int
	TriangleCount int
	VertexSize    int
	Cache         meshopt.VertexCacheStatistics
	Fetch         meshopt.VertexFetchStatistics
	Overdraw      meshopt.OverdrawStatistics
}

// Analyze measures cache, fetch and overdraw efficiency with a cache of
// cacheSize entries.
func Analyze(m *meshfile.Mesh, cacheSize int) Report {
	vertexCount := m.VertexCount()
	return Report{
		VertexCount:   vertexCount,
		TriangleCount: m.TriangleCount(),
		VertexSize:    m.VertexSize,
		Cache:         meshopt.AnalyzeVertexCache(m.Indices, vertexCount, cacheSize, 0, 0),
		Fetch:         meshopt.AnalyzeVertexFetch(m.Indices, vertexCount, m.VertexSize),
		Overdraw:      meshopt.AnalyzeOverdraw(m.Indices, m.Positions(), vertexCount, 3),
	}
}

// Print writes the report in aligned columns.
func (r Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Vertices:   %d (%d bytes each)\n", r.VertexCount, r.VertexSize)
	fmt.Fprintf(w, "Triangles:  %d\n", r.TriangleCount)
	fmt.Fprintf(w, "ACMR:       %.3f\n", r.Cache.ACMR)
	fmt.Fprintf(w, "ATVR:       %.3f\n", r.Cache.ATVR)
	fmt.Fprintf(w, "Overfetch:  %.3f\n", r.Fetch.Overfetch)
	fmt.Fprintf(w, "Overdraw:   %.3f\n", r.Overdraw.Overdraw)
}

// PrintStages writes one line per executed stage.
func (r *Result) PrintStages(w io.Writer) {
	fmt.Fprintf(w, "%-10s %10s %10s %8s %12s\n", "STAGE", "INDICES", "VERTICES", "ACMR", "TIME")
	for _, s := range r.Stages {
		fmt.Fprintf(w, "%-10s %10d %10d %8.3f %12s\n", s.Stage, s.IndexCount, s.VertexCount, s.ACMR, s.Duration)
	}
}
