// Command facet loads, denoises, simplifies and describes polygon meshes.
//
// Usage:
//
//	facet [-config file] [-log-level level] [-dev] <command> [flags] args...
//
// Commands:
//
//	info <mesh>                          counts, measurements and validation
//	smooth [flags] <in> <out>            bilateral denoising
//	describe [-seed n] <mesh> features   vol2bbox, volume, area, d2 <points> <bins>
//	run [-json] <script>                 evaluate a pipeline script
//	serve [-addr a] [-dir d]             stream emitted meshes over websocket
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/chazu/facet/pkg/config"
	"github.com/chazu/facet/pkg/logger"
	"go.uber.org/zap"
)

const usage = `usage: facet [-config file] [-log-level level] [-dev] <command> [flags] args...

commands:
  info <mesh>
  smooth [-sigma-c c] [-sigma-s s] [-iterations n] [-noise sigma] [-seed n] <in> <out>
  describe [-seed n] <mesh> [vol2bbox] [volume] [area] [d2 <points> <bins>]
  run [-json] <script>
  serve [-addr addr] [-dir dir]
`

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("facet", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := global.String("config", "", "JSON settings file")
	level := global.String("log-level", "", "log level (overrides settings)")
	dev := global.Bool("dev", false, "human-readable console logging")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if *level != "" {
		settings.Log.Level = *level
	}
	if *dev {
		settings.Log.Development = true
	}
	log, err := logger.New(settings.Log.Level, settings.Log.Development)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer log.Sync()

	app := NewApp(settings, log)
	cmd, rest := global.Arg(0), global.Args()[1:]
	err = dispatch(ctx, app, cmd, rest, stdout, stderr)
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprint(stderr, usage)
		return 2
	case err != nil:
		log.Error("command failed", zap.String("command", cmd), zap.Error(err))
		fmt.Fprintln(stderr, "facet:", err)
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, app *App, cmd string, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)

	switch cmd {
	case "info":
		if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
			return errUsage
		}
		return app.Info(fs.Arg(0), stdout)

	case "smooth":
		s := app.settings.Smoothing
		var p SmoothParams
		fs.Float64Var(&p.SigmaC, "sigma-c", 0, "closeness sigma (default: avg edge * sigmaCScale)")
		fs.Float64Var(&p.SigmaS, "sigma-s", 0, "similarity sigma (default: avg edge * sigmaSScale)")
		fs.IntVar(&p.Iterations, "iterations", s.Iterations, "number of passes")
		fs.Float64Var(&p.Noise, "noise", 0, "gaussian noise sigma applied before smoothing")
		fs.Int64Var(&p.Seed, "seed", 0, "noise seed")
		workers := fs.Int("workers", s.Workers, "displacement workers (0 = one per CPU)")
		if err := fs.Parse(args); err != nil || fs.NArg() != 2 {
			return errUsage
		}
		app.settings.Smoothing.Workers = *workers
		r, err := app.Smooth(ctx, fs.Arg(0), fs.Arg(1), p)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%d passes, %d vertex moves, max displacement %g, %s\n",
			r.Passes, r.Moved, r.MaxDisplacement, r.Elapsed)
		return nil

	case "describe":
		seed := fs.Int64("seed", 0, "point sampling seed")
		if err := fs.Parse(args); err != nil || fs.NArg() < 1 {
			return errUsage
		}
		return app.Describe(fs.Arg(0), fs.Args()[1:], *seed, stdout)

	case "run":
		asJSON := fs.Bool("json", false, "print the full result as JSON")
		if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
			return errUsage
		}
		return app.RunScript(ctx, fs.Arg(0), *asJSON, stdout)

	case "serve":
		addr := fs.String("addr", app.settings.Server.Addr, "listen address")
		dir := fs.String("dir", ".", "directory scripts may load from and save to")
		if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
			return errUsage
		}
		return app.Serve(ctx, *addr, *dir)
	}
	return errUsage
}
