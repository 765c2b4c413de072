package pipeline

import (
	"github.com/pkg/errors"

	"github.com/Faultbox/meshopt/internal/config"
	"github.com/Faultbox/meshopt/pkg/meshfile"
	"github.com/Faultbox/meshopt/pkg/meshopt"
)

// runDedup merges bitwise identical vertices and drops unreferenced ones.
func runDedup(st *state) error {
	m := st.mesh
	vertexCount := m.VertexCount()

	remap := make([]uint32, vertexCount)
	unique, err := meshopt.GenerateVertexRemap(remap, m.Indices, vertexCount, meshopt.NewStream(m.Vertices, m.VertexSize))
	if err != nil {
		return errors.Wrap(err, "generating vertex remap")
	}

	vertices := make([]byte, unique*m.VertexSize)
	meshopt.RemapVertexBuffer(vertices, m.Vertices, vertexCount, m.VertexSize, remap)
	meshopt.RemapIndexBuffer(m.Indices, m.Indices, remap)
	m.Vertices = vertices
	return nil
}

// simplifyTarget rounds the ratio-scaled index count down to whole triangles.
func simplifyTarget(indexCount int, ratio float32) int {
	return int(float32(indexCount)*ratio) / 3 * 3
}

func runSimplify(st *state) error {
	m := st.mesh
	cfg := st.cfg.Simplify
	positions := m.Positions()
	vertexCount := m.VertexCount()
	target := simplifyTarget(len(m.Indices), cfg.Ratio)

	dst := make([]uint32, len(m.Indices))
	var (
		count  int
		relErr float32
		err    error
	)
	switch cfg.Mode {
	case config.SimplifySloppy:
		count, relErr, err = meshopt.SimplifySloppy(dst, m.Indices, positions, vertexCount, 3, target, cfg.TargetError)
	default:
		var opts meshopt.SimplifyOptions
		if cfg.LockBorder {
			opts |= meshopt.SimplifyLockBorder
		}
		count, relErr, err = meshopt.Simplify(dst, m.Indices, positions, vertexCount, 3, target, cfg.TargetError, opts)
	}
	if err != nil {
		return errors.Wrapf(err, "simplifying (%s)", cfg.Mode)
	}

	m.Indices = dst[:count]
	st.result.SimplifyError = relErr
	return nil
}

func runCache(st *state) error {
	m := st.mesh
	vertexCount := m.VertexCount()

	var err error
	switch st.cfg.Cache.Mode {
	case config.CacheStrip:
		err = meshopt.OptimizeVertexCacheStrip(m.Indices, m.Indices, vertexCount)
	case config.CacheFIFO:
		err = meshopt.OptimizeVertexCacheFifo(m.Indices, m.Indices, vertexCount, st.cfg.Cache.FIFOSize)
	default:
		err = meshopt.OptimizeVertexCache(m.Indices, m.Indices, vertexCount)
	}
	return errors.Wrapf(err, "optimizing vertex cache (%s)", st.cfg.Cache.Mode)
}

func runOverdraw(st *state) error {
	m := st.mesh
	err := meshopt.OptimizeOverdraw(m.Indices, m.Indices, m.Positions(), m.VertexCount(), 3, st.cfg.Overdraw.Threshold)
	return errors.Wrap(err, "optimizing overdraw")
}

// runFetch reorders vertices into first-use order and drops the ones no
// triangle references.
func runFetch(st *state) error {
	m := st.mesh
	vertices := make([]byte, len(m.Vertices))
	unique, err := meshopt.OptimizeVertexFetch(vertices, m.Indices, m.Vertices, m.VertexCount(), m.VertexSize)
	if err != nil {
		return errors.Wrap(err, "optimizing vertex fetch")
	}
	m.Vertices = vertices[:unique*m.VertexSize]
	return nil
}

func runMeshlets(st *state) error {
	m := st.mesh
	cfg := st.cfg.Meshlets
	vertexCount := m.VertexCount()

	bound := meshopt.BuildMeshletsBound(len(m.Indices), cfg.MaxVertices, cfg.MaxTriangles)
	meshlets := make([]meshopt.Meshlet, bound)
	meshletVertices := make([]uint32, bound*cfg.MaxVertices)
	meshletTriangles := make([]byte, bound*cfg.MaxTriangles*3)

	var (
		count int
		err   error
	)
	if cfg.Scan {
		count, err = meshopt.BuildMeshletsScan(meshlets, meshletVertices, meshletTriangles, m.Indices, vertexCount, cfg.MaxVertices, cfg.MaxTriangles)
	} else {
		count, err = meshopt.BuildMeshlets(meshlets, meshletVertices, meshletTriangles, m.Indices, m.Positions(), vertexCount, 3, cfg.MaxVertices, cfg.MaxTriangles, cfg.ConeWeight)
	}
	if err != nil {
		return errors.Wrap(err, "building meshlets")
	}
	meshlets = meshlets[:count]

	for i, ml := range meshlets {
		if err := meshopt.OptimizeMeshlet(ml.Vertices(meshletVertices), ml.Triangles(meshletTriangles)); err != nil {
			return errors.Wrapf(err, "optimizing meshlet %d", i)
		}
	}

	var vertexEnd, triangleEnd uint32
	if count > 0 {
		last := meshlets[count-1]
		vertexEnd = last.VertexOffset + last.VertexCount
		triangleEnd = last.TriangleOffset + (last.TriangleCount*3+3)&^3
	}

	st.result.Meshlets = meshlets
	st.result.MeshletVertices = meshletVertices[:vertexEnd]
	st.result.MeshletTriangles = meshletTriangles[:triangleEnd]
	return nil
}

func runEncode(st *state) error {
	if st.mesh.VertexSize%4 != 0 {
		return errors.Errorf("vertex size %d is not a multiple of 4", st.mesh.VertexSize)
	}
	pack, err := meshfile.EncodeMesh(st.mesh,
		meshopt.IndexEncoderOptions{Version: st.cfg.Encoding.IndexVersion},
		meshopt.VertexEncoderOptions{Version: st.cfg.Encoding.VertexVersion})
	if err != nil {
		return errors.Wrap(err, "encoding mesh")
	}
	pack.Meshlets = st.result.Meshlets
	pack.MeshletVertices = st.result.MeshletVertices
	pack.MeshletTriangles = st.result.MeshletTriangles
	pack.Error = st.result.SimplifyError
	st.result.Pack = pack
	return nil
}
