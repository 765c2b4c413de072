// meshopt is a CLI utility for optimizing triangle meshes for GPU rendering.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/meshopt/internal/config"
	"github.com/Faultbox/meshopt/internal/logger"
	"github.com/Faultbox/meshopt/internal/pipeline"
	"github.com/Faultbox/meshopt/pkg/meshfile"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "optimize", "opt":
		cmdOptimize(args)
	case "simplify":
		cmdSimplify(args)
	case "meshlets":
		cmdMeshlets(args)
	case "pack":
		cmdPack(args)
	case "unpack":
		cmdUnpack(args)
	case "stats":
		cmdStats(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`meshopt - triangle mesh optimizer

Usage:
  meshopt <command> [options]

Commands:
  info <file>                          Show .mesh or .meshpack header
  optimize [opts] <in.mesh> <out.mesh> Reorder for vertex cache, overdraw and fetch
  simplify [opts] <in.mesh> <out.mesh> Reduce triangle count, then optimize
  meshlets [opts] <in.mesh> <out.pack> Optimize and split into meshlets
  pack [opts] <in.mesh> <out.pack>     Optimize and compress
  unpack <in.pack> <out.mesh>          Decompress a pack
  stats <file.mesh>                    Report ACMR, overfetch and overdraw
  config [opts] [-save]                Print the effective config or save it

Options (optimize, simplify, meshlets, pack):
  -config <path>     Config file (default ./meshopt.yaml)
  -cache <mode>      lru, strip or fifo
  -no-overdraw       Skip overdraw optimization
  -ratio <f>         Fraction of triangles to keep
  -error <f>         Relative simplification error limit
  -sloppy            Use the grid simplifier
  -lock-border       Keep border vertices in place
  -v, -t <n>         Meshlet vertex and triangle limits
  -cone-weight <f>   Meshlet cone weight
  -scan              Build meshlets in index order
  -index-version <n> Index codec version
  -debug             Enable debug logging
  -log-file <path>   Write logs to this file

Examples:
  meshopt optimize bunny.mesh bunny.opt.mesh
  meshopt simplify -ratio 0.25 -error 0.02 bunny.mesh bunny.lod1.mesh
  meshopt meshlets -v 64 -t 124 bunny.mesh bunny.meshpack
  meshopt stats bunny.opt.mesh`)
}

// exitOnError prints err and exits with status 1.
func exitOnError(err error) {
	if err == nil {
		return
	}
	logger.Sync()
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// parsePipelineArgs parses the shared pipeline flags, loads the config and
// initializes logging. It exits when fewer than two positional arguments remain.
func parsePipelineArgs(name string, args []string) (*config.Config, string, string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "Usage: meshopt %s [options] <input> <output>\n", name)
		os.Exit(1)
	}

	cfg, err := config.Load(flags)
	exitOnError(err)
	exitOnError(logger.Init(cfg.Logging.Level, cfg.Logging.LogFile))

	logger.Debug("config loaded",
		zap.String("command", name),
		zap.String("config", flags.ConfigPath()),
		zap.String("cache", cfg.Cache.Mode),
		zap.Bool("simplify", cfg.Simplify.Enabled),
		zap.Bool("meshlets", cfg.Meshlets.Enabled))

	return cfg, fs.Arg(0), fs.Arg(1)
}

// runPipeline loads input, runs the configured stages and prints a summary.
func runPipeline(cfg *config.Config, input string, encode bool) (*meshfile.Mesh, *pipeline.Result) {
	mesh, err := meshfile.ParseMeshFile(input)
	exitOnError(errors.Wrapf(err, "reading %s", input))
	logger.Sugar.Debugf("read %s: mesh %s, %d triangles", input, mesh.Version, mesh.TriangleCount())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p := pipeline.New(cfg, logger.Log.With(zap.String("input", input)))
	p.Encode = encode
	result, err := p.Run(ctx, mesh)
	exitOnError(err)

	fmt.Printf("Input:  %d triangles, %d vertices\n", mesh.TriangleCount(), mesh.VertexCount())
	fmt.Printf("Output: %d triangles, %d vertices\n", result.Mesh.TriangleCount(), result.Mesh.VertexCount())
	fmt.Println()
	result.PrintStages(os.Stdout)
	return mesh, result
}

// writeMesh and writePack report the written path at info level.
func writeMesh(m *meshfile.Mesh, path string) {
	exitOnError(errors.Wrapf(m.WriteFile(path), "writing %s", path))
	logger.Info("output written", zap.String("path", path), zap.Int("triangles", m.TriangleCount()))
}

func writePack(p *meshfile.Pack, path string) {
	exitOnError(errors.Wrapf(p.WriteFile(path), "writing %s", path))
	logger.Info("output written", zap.String("path", path), zap.Int("meshlets", len(p.Meshlets)))
}

func cmdOptimize(args []string) {
	cfg, input, output := parsePipelineArgs("optimize", args)
	_, result := runPipeline(cfg, input, false)
	writeMesh(result.Mesh, output)
}

func cmdSimplify(args []string) {
	cfg, input, output := parsePipelineArgs("simplify", args)
	cfg.Simplify.Enabled = true
	mesh, result := runPipeline(cfg, input, false)
	fmt.Printf("\nError: %.4f relative\n", result.SimplifyError)

	if mesh.TriangleCount() > 0 {
		kept := float32(result.Mesh.TriangleCount()) / float32(mesh.TriangleCount())
		if kept > cfg.Simplify.Ratio {
			logger.Warn("error limit reached before target ratio",
				zap.Float32("ratio", cfg.Simplify.Ratio),
				zap.Float32("kept", kept),
				zap.Float32("target_error", cfg.Simplify.TargetError))
		}
	}
	writeMesh(result.Mesh, output)
}

func cmdMeshlets(args []string) {
	cfg, input, output := parsePipelineArgs("meshlets", args)
	cfg.Meshlets.Enabled = true
	_, result := runPipeline(cfg, input, true)
	fmt.Printf("\nMeshlets: %d (max %d vertices, %d triangles)\n",
		len(result.Meshlets), cfg.Meshlets.MaxVertices, cfg.Meshlets.MaxTriangles)
	writePack(result.Pack, output)
}

func cmdPack(args []string) {
	cfg, input, output := parsePipelineArgs("pack", args)
	_, result := runPipeline(cfg, input, true)

	raw := len(result.Mesh.Vertices) + len(result.Mesh.Indices)*4
	packed := len(result.Pack.EncodedVertices) + len(result.Pack.EncodedIndices)
	fmt.Printf("\nVertices: %d -> %d bytes\n", len(result.Mesh.Vertices), len(result.Pack.EncodedVertices))
	fmt.Printf("Indices:  %d -> %d bytes\n", len(result.Mesh.Indices)*4, len(result.Pack.EncodedIndices))
	if packed > 0 {
		fmt.Printf("Ratio:    %.2fx\n", float64(raw)/float64(packed))
	}
	writePack(result.Pack, output)
}

func cmdUnpack(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: meshopt unpack <in.meshpack> <out.mesh>")
		os.Exit(1)
	}

	pack, err := meshfile.ParsePackFile(args[0])
	exitOnError(errors.Wrapf(err, "reading %s", args[0]))
	mesh, err := pack.Decode()
	exitOnError(errors.Wrapf(err, "decoding %s", args[0]))
	writeMesh(mesh, args[1])

	fmt.Printf("Unpacked %d triangles, %d vertices\n", mesh.TriangleCount(), mesh.VertexCount())
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshopt info <file>")
		os.Exit(1)
	}

	data, err := os.ReadFile(args[0])
	exitOnError(err)

	fmt.Printf("File: %s\n", args[0])
	if bytes.HasPrefix(data, []byte("MESH")) {
		mesh, err := meshfile.ParseMesh(data)
		exitOnError(err)
		fmt.Printf("Format:      mesh %s\n", mesh.Version)
		fmt.Printf("Vertices:    %d\n", mesh.VertexCount())
		fmt.Printf("Vertex size: %d bytes\n", mesh.VertexSize)
		fmt.Printf("Triangles:   %d\n", mesh.TriangleCount())
		return
	}

	pack, err := meshfile.UnmarshalPack(data)
	exitOnError(err)
	fmt.Printf("Format:      meshpack\n")
	fmt.Printf("Vertices:    %d (%d bytes encoded)\n", pack.VertexCount, len(pack.EncodedVertices))
	fmt.Printf("Vertex size: %d bytes\n", pack.VertexSize)
	fmt.Printf("Triangles:   %d (%d bytes encoded)\n", pack.IndexCount/3, len(pack.EncodedIndices))
	if len(pack.Meshlets) > 0 {
		fmt.Printf("Meshlets:    %d\n", len(pack.Meshlets))
	}
	if pack.Error > 0 {
		fmt.Printf("Error:       %.4f\n", pack.Error)
	}
}

func cmdStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	cacheSize := fs.Int("cache-size", 16, "Simulated vertex cache size")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshopt stats [-cache-size n] <file.mesh>")
		os.Exit(1)
	}

	mesh, err := meshfile.ParseMeshFile(fs.Arg(0))
	exitOnError(err)
	pipeline.Analyze(mesh, *cacheSize).Print(os.Stdout)
}

func cmdConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	save := fs.Bool("save", false, "Write to the user config directory")
	fs.Parse(args)

	cfg, err := config.Load(flags)
	exitOnError(err)

	if *save {
		path, err := cfg.Save()
		exitOnError(errors.Wrap(err, "saving config"))
		fmt.Printf("Saved %s\n", path)
		return
	}
	exitOnError(cfg.Write(os.Stdout))
}
