// Package config handles optimization pipeline configuration loading and management.
package config

import (
	"errors"
	"fmt"

	"github.com/Faultbox/meshopt/pkg/meshopt"
)

// ErrInvalidConfig reports a configuration value outside its allowed range.
var ErrInvalidConfig = errors.New("invalid config")

// Cache optimizer modes.
const (
	CacheLRU   = "lru"
	CacheStrip = "strip"
	CacheFIFO  = "fifo"
)

// Simplifier modes.
const (
	SimplifyQuadric = "quadric"
	SimplifySloppy  = "sloppy"
)

// Config holds all pipeline settings.
type Config struct {
	Remap    RemapConfig    `yaml:"remap"`
	Cache    CacheConfig    `yaml:"cache"`
	Overdraw OverdrawConfig `yaml:"overdraw"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Simplify SimplifyConfig `yaml:"simplify"`
	Meshlets MeshletConfig  `yaml:"meshlets"`
	Encoding EncodingConfig `yaml:"encoding"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RemapConfig controls vertex deduplication.
type RemapConfig struct {
	Enabled bool `yaml:"enabled"`
}

// CacheConfig controls vertex cache ordering.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Mode     string `yaml:"mode"`      // lru, strip or fifo
	FIFOSize int    `yaml:"fifo_size"` // only used by fifo
}

// OverdrawConfig controls overdraw ordering.
type OverdrawConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float32 `yaml:"threshold"` // allowed ACMR growth, 1.05 = 5%
}

// FetchConfig controls vertex fetch ordering.
type FetchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SimplifyConfig controls mesh simplification.
type SimplifyConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Mode        string  `yaml:"mode"`         // quadric or sloppy
	Ratio       float32 `yaml:"ratio"`        // target fraction of triangles kept
	TargetError float32 `yaml:"target_error"` // relative to mesh extent
	LockBorder  bool    `yaml:"lock_border"`
}

// MeshletConfig controls meshlet clustering.
type MeshletConfig struct {
	Enabled      bool    `yaml:"enabled"`
	MaxVertices  int     `yaml:"max_vertices"`
	MaxTriangles int     `yaml:"max_triangles"`
	ConeWeight   float32 `yaml:"cone_weight"`
	Scan         bool    `yaml:"scan"` // index order instead of spatial growth
}

// EncodingConfig selects codec format versions.
type EncodingConfig struct {
	IndexVersion  int `yaml:"index_version"`
	VertexVersion int `yaml:"vertex_version"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Remap: RemapConfig{Enabled: true},
		Cache: CacheConfig{
			Enabled:  true,
			Mode:     CacheLRU,
			FIFOSize: 16,
		},
		Overdraw: OverdrawConfig{
			Enabled:   true,
			Threshold: 1.05,
		},
		Fetch: FetchConfig{Enabled: true},
		Simplify: SimplifyConfig{
			Enabled:     false,
			Mode:        SimplifyQuadric,
			Ratio:       0.5,
			TargetError: 0.01,
		},
		Meshlets: MeshletConfig{
			Enabled:      false,
			MaxVertices:  64,
			MaxTriangles: 124,
			ConeWeight:   0.25,
		},
		Encoding: EncodingConfig{
			IndexVersion:  meshopt.IndexVersionLatest,
			VertexVersion: meshopt.VertexVersionLatest,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	switch c.Cache.Mode {
	case CacheLRU, CacheStrip:
	case CacheFIFO:
		if c.Cache.FIFOSize < 3 {
			return fmt.Errorf("%w: cache.fifo_size %d must be at least 3", ErrInvalidConfig, c.Cache.FIFOSize)
		}
	default:
		return fmt.Errorf("%w: unknown cache.mode %q", ErrInvalidConfig, c.Cache.Mode)
	}

	if c.Overdraw.Threshold < 1 {
		return fmt.Errorf("%w: overdraw.threshold %.2f below 1", ErrInvalidConfig, c.Overdraw.Threshold)
	}

	switch c.Simplify.Mode {
	case SimplifyQuadric, SimplifySloppy:
	default:
		return fmt.Errorf("%w: unknown simplify.mode %q", ErrInvalidConfig, c.Simplify.Mode)
	}
	if !(c.Simplify.Ratio > 0 && c.Simplify.Ratio <= 1) {
		return fmt.Errorf("%w: simplify.ratio %g outside (0, 1]", ErrInvalidConfig, c.Simplify.Ratio)
	}
	if c.Simplify.TargetError < 0 {
		return fmt.Errorf("%w: simplify.target_error %g is negative", ErrInvalidConfig, c.Simplify.TargetError)
	}

	m := c.Meshlets
	if m.MaxVertices < 3 || m.MaxVertices > meshopt.MeshletMaxVertices {
		return fmt.Errorf("%w: meshlets.max_vertices %d outside [3, %d]", ErrInvalidConfig, m.MaxVertices, meshopt.MeshletMaxVertices)
	}
	if m.MaxTriangles < 4 || m.MaxTriangles > meshopt.MeshletMaxTriangles || m.MaxTriangles%4 != 0 {
		return fmt.Errorf("%w: meshlets.max_triangles %d must be a multiple of 4 up to %d", ErrInvalidConfig, m.MaxTriangles, meshopt.MeshletMaxTriangles)
	}
	if m.ConeWeight < 0 || m.ConeWeight > 1 {
		return fmt.Errorf("%w: meshlets.cone_weight %g outside [0, 1]", ErrInvalidConfig, m.ConeWeight)
	}

	if c.Encoding.IndexVersion < 0 || c.Encoding.IndexVersion > meshopt.IndexVersionLatest {
		return fmt.Errorf("%w: encoding.index_version %d", ErrInvalidConfig, c.Encoding.IndexVersion)
	}
	if c.Encoding.VertexVersion != meshopt.VertexVersionLatest {
		return fmt.Errorf("%w: encoding.vertex_version %d", ErrInvalidConfig, c.Encoding.VertexVersion)
	}
	return nil
}
