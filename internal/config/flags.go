package config

import "flag"

// Flags holds command-line overrides bound to a subcommand's flag set.
type Flags struct {
	fs *flag.FlagSet

	config       string
	debug        bool
	logFile      string
	cacheMode    string
	noOverdraw   bool
	ratio        float64
	targetError  float64
	sloppy       bool
	lockBorder   bool
	maxVertices  int
	maxTriangles int
	coneWeight   float64
	scan         bool
	indexVersion int
}

// RegisterFlags defines the pipeline override flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.config, "config", "", "Path to config file")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.logFile, "log-file", "", "Write logs to this file")
	fs.StringVar(&f.cacheMode, "cache", "", "Vertex cache mode: lru, strip or fifo")
	fs.BoolVar(&f.noOverdraw, "no-overdraw", false, "Skip overdraw optimization")
	fs.Float64Var(&f.ratio, "ratio", 0, "Fraction of triangles to keep when simplifying")
	fs.Float64Var(&f.targetError, "error", 0, "Relative simplification error limit")
	fs.BoolVar(&f.sloppy, "sloppy", false, "Use the grid simplifier")
	fs.BoolVar(&f.lockBorder, "lock-border", false, "Keep mesh border vertices in place")
	fs.IntVar(&f.maxVertices, "v", 0, "Meshlet vertex limit")
	fs.IntVar(&f.maxTriangles, "t", 0, "Meshlet triangle limit")
	fs.Float64Var(&f.coneWeight, "cone-weight", -1, "Meshlet cone weight in [0, 1]")
	fs.BoolVar(&f.scan, "scan", false, "Build meshlets in index order")
	fs.IntVar(&f.indexVersion, "index-version", -1, "Index codec version")
	return f
}

// ConfigPath returns the explicit config path if provided via -config.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return f.config
}

// set reports whether the named flag was given on the command line.
func (f *Flags) set(name string) bool {
	found := false
	f.fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config, f *Flags) {
	if f == nil {
		return
	}
	if f.debug {
		cfg.Logging.Level = "debug"
	}
	if f.logFile != "" {
		cfg.Logging.LogFile = f.logFile
	}
	if f.cacheMode != "" {
		cfg.Cache.Mode = f.cacheMode
	}
	if f.noOverdraw {
		cfg.Overdraw.Enabled = false
	}
	if f.set("ratio") {
		cfg.Simplify.Ratio = float32(f.ratio)
	}
	if f.set("error") {
		cfg.Simplify.TargetError = float32(f.targetError)
	}
	if f.sloppy {
		cfg.Simplify.Mode = SimplifySloppy
	}
	if f.lockBorder {
		cfg.Simplify.LockBorder = true
	}
	if f.maxVertices > 0 {
		cfg.Meshlets.MaxVertices = f.maxVertices
	}
	if f.maxTriangles > 0 {
		cfg.Meshlets.MaxTriangles = f.maxTriangles
	}
	if f.set("cone-weight") {
		cfg.Meshlets.ConeWeight = float32(f.coneWeight)
	}
	if f.scan {
		cfg.Meshlets.Scan = true
	}
	if f.set("index-version") {
		cfg.Encoding.IndexVersion = f.indexVersion
	}
}
