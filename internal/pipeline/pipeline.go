// Package pipeline runs the configured sequence of mesh optimization stages.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/meshopt/internal/config"
	"github.com/Faultbox/meshopt/internal/logger"
	"github.com/Faultbox/meshopt/pkg/meshfile"
	"github.com/Faultbox/meshopt/pkg/meshopt"
)

// Stage names as they appear in logs and stats.
const (
	StageDedup    = "dedup"
	StageSimplify = "simplify"
	StageCache    = "cache"
	StageOverdraw = "overdraw"
	StageFetch    = "fetch"
	StageMeshlets = "meshlets"
	StageEncode   = "encode"
)

// statsCacheSize is the FIFO size used when reporting ACMR after each stage.
const statsCacheSize = 16

// StageStats describes the mesh after a stage ran.
type StageStats struct {
	Stage       string
	IndexCount  int
	VertexCount int
	ACMR        float32
	Duration    time.Duration
}

// Result is the output of a pipeline run.
type Result struct {
	RunID string
	Mesh  *meshfile.Mesh

	Meshlets         []meshopt.Meshlet
	MeshletVertices  []uint32
	MeshletTriangles []byte

	// SimplifyError is relative to the mesh extent; multiply by
	// meshopt.SimplifyScale for model units.
	SimplifyError float32

	// Pack is set when encoding ran.
	Pack *meshfile.Pack

	Stages []StageStats
}

// Pipeline applies the stages enabled in a config.
type Pipeline struct {
	cfg *config.Config
	log *zap.Logger

	// Encode compresses the final mesh into Result.Pack.
	Encode bool
}

// New creates a pipeline. A nil logger discards output.
func New(cfg *config.Config, log *zap.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{cfg: cfg, log: log}
}

type stage struct {
	name    string
	enabled bool
	run     func(*state) error
}

// state is the mesh being transformed plus artifacts produced along the way.
type state struct {
	cfg    *config.Config
	mesh   *meshfile.Mesh
	result *Result
}

// Run optimizes a copy of mesh. The input is not modified. The context is
// checked between stages.
func (p *Pipeline) Run(ctx context.Context, mesh *meshfile.Mesh) (*Result, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "pipeline config")
	}
	if err := mesh.Validate(); err != nil {
		return nil, errors.Wrap(err, "input mesh")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, "generating run id")
	}
	result := &Result{RunID: id.String()}
	log := p.log.With(zap.String("run_id", result.RunID))

	st := &state{
		cfg: p.cfg,
		mesh: &meshfile.Mesh{
			Version:    mesh.Version,
			VertexSize: mesh.VertexSize,
			Vertices:   append([]byte(nil), mesh.Vertices...),
			Indices:    append([]uint32(nil), mesh.Indices...),
		},
		result: result,
	}

	stages := []stage{
		{StageDedup, p.cfg.Remap.Enabled, runDedup},
		{StageSimplify, p.cfg.Simplify.Enabled, runSimplify},
		{StageCache, p.cfg.Cache.Enabled, runCache},
		{StageOverdraw, p.cfg.Overdraw.Enabled, runOverdraw},
		{StageFetch, p.cfg.Fetch.Enabled, runFetch},
		{StageMeshlets, p.cfg.Meshlets.Enabled, runMeshlets},
		{StageEncode, p.Encode, runEncode},
	}

	log.Info("pipeline started",
		zap.Int("index_count", len(mesh.Indices)),
		zap.Int("vertex_count", mesh.VertexCount()),
		zap.Int("vertex_size", mesh.VertexSize))

	for _, s := range stages {
		if !s.enabled {
			log.Debug("stage skipped", zap.String("stage", s.name))
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "before stage %s", s.name)
		}

		start := time.Now()
		if err := s.run(st); err != nil {
			log.Error("stage failed", zap.String("stage", s.name), zap.Error(err))
			return nil, errors.Wrapf(err, "stage %s", s.name)
		}

		stats := StageStats{
			Stage:       s.name,
			IndexCount:  len(st.mesh.Indices),
			VertexCount: st.mesh.VertexCount(),
			ACMR:        meshopt.AnalyzeVertexCache(st.mesh.Indices, st.mesh.VertexCount(), statsCacheSize, 0, 0).ACMR,
			Duration:    time.Since(start),
		}
		result.Stages = append(result.Stages, stats)

		fields := []zap.Field{
			zap.String("stage", s.name),
			zap.Int("index_count", stats.IndexCount),
			zap.Int("vertex_count", stats.VertexCount),
			zap.Float32("acmr", stats.ACMR),
			zap.Duration("duration", stats.Duration),
		}
		switch s.name {
		case StageSimplify:
			fields = append(fields, zap.Float32("error", result.SimplifyError))
		case StageMeshlets:
			fields = append(fields, zap.Int("meshlets", len(result.Meshlets)))
		case StageEncode:
			fields = append(fields,
				zap.Int("bytes", len(result.Pack.EncodedVertices)+len(result.Pack.EncodedIndices)),
				zap.Int("raw_bytes", len(st.mesh.Vertices)+len(st.mesh.Indices)*4))
		}
		log.Info("stage done", fields...)
	}

	result.Mesh = st.mesh
	log.Info("pipeline finished", zap.Int("stages", len(result.Stages)))
	return result, nil
}
