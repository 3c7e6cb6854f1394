package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chazu/facet/pkg/config"
	"github.com/chazu/facet/pkg/descriptor"
	"github.com/chazu/facet/pkg/engine"
	"github.com/chazu/facet/pkg/kernel"
	"github.com/chazu/facet/pkg/kernel/sdfx"
	"github.com/chazu/facet/pkg/meshio"
	"github.com/chazu/facet/pkg/noise"
	"github.com/chazu/facet/pkg/smooth"
	"github.com/chazu/facet/pkg/stream"
	"github.com/chazu/facet/pkg/tessellate"
	"go.uber.org/zap"
)

// colorPalette is a default palette used to assign distinct colors to
// emitted meshes.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// maxScriptBytes bounds the body of an /eval request.
const maxScriptBytes = 1 << 20

// App holds the shared state behind every subcommand.
type App struct {
	settings config.Settings
	log      *zap.Logger
	kernel   kernel.Kernel
	hub      *stream.Hub
}

// MeshData is the JSON-serializable mesh format sent to clients.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	Name     string    `json:"name"`
	Color    string    `json:"color"`
}

// EvalErrorData is a JSON-serializable eval error.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// EvalResult is the full result of running a script.
type EvalResult struct {
	RunID  string          `json:"runId,omitempty"`
	Meshes []MeshData      `json:"meshes"`
	Errors []EvalErrorData `json:"errors"`
}

// NewApp creates an App with the sdfx kernel and a stream hub.
func NewApp(s config.Settings, log *zap.Logger) *App {
	return &App{
		settings: s,
		log:      log,
		kernel:   sdfx.New(sdfx.WithCells(s.Engine.MeshCells)),
		hub:      stream.NewHub(stream.WithLogger(log.Named("stream"))),
	}
}

func (a *App) newEngine(baseDir string) *engine.Engine {
	return engine.NewEngine(
		engine.WithKernel(a.kernel),
		engine.WithTimeout(a.settings.Engine.Timeout()),
		engine.WithBaseDir(baseDir),
		engine.WithWorkers(a.settings.Smoothing.Workers),
		engine.WithSigmaScales(a.settings.Smoothing.SigmaCScale, a.settings.Smoothing.SigmaSScale),
		engine.WithPublisher(a.hub),
		engine.WithLogger(a.log.Named("engine")),
	)
}

// Info prints the element counts and basic measurements of a mesh file.
func (a *App) Info(path string, w io.Writer) error {
	m, err := meshio.Load(path, meshio.WithLogger(a.log))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "mesh %q: %d vertices, %d edges, %d faces\n",
		m.Name(), m.NumVertices(), m.NumEdges(), m.NumFaces())
	if lo, hi, ok := m.BoundingBox(); ok {
		fmt.Fprintf(w, "bbox: (%g %g %g) .. (%g %g %g)\n", lo.X, lo.Y, lo.Z, hi.X, hi.Y, hi.Z)
	}
	if stats, err := descriptor.EdgeLengths(m); err == nil {
		fmt.Fprintf(w, "edge length: min %g max %g mean %g stddev %g\n",
			stats.Min, stats.Max, stats.Mean, stats.StdDev)
	}
	boundary := 0
	for _, v := range m.Vertices() {
		if m.IsBoundary(v) {
			boundary++
		}
	}
	fmt.Fprintf(w, "boundary vertices: %d\n", boundary)
	findings := m.Validate()
	fmt.Fprintf(w, "validation findings: %d\n", len(findings))
	for _, f := range findings {
		fmt.Fprintf(w, "  %v\n", f)
	}
	return nil
}

// SmoothParams configures the smooth subcommand. Zero sigmas are derived
// from the average edge length and the configured scales.
type SmoothParams struct {
	SigmaC     float64
	SigmaS     float64
	Iterations int
	Noise      float64
	Seed       int64
}

// Smooth loads in, optionally perturbs it, runs the bilateral filter and
// saves the result to out.
func (a *App) Smooth(ctx context.Context, in, out string, p SmoothParams) (smooth.Report, error) {
	m, err := meshio.Load(in, meshio.WithLogger(a.log))
	if err != nil {
		return smooth.Report{}, err
	}
	a.log.Info("loaded mesh",
		zap.String("mesh", m.Name()),
		zap.Int("vertices", m.NumVertices()),
		zap.Int("edges", m.NumEdges()),
		zap.Int("faces", m.NumFaces()),
		zap.String("path", in))

	if p.Noise > 0 {
		if err := noise.Perturb(m, p.Noise, p.Seed, noise.WithLogger(a.log)); err != nil {
			return smooth.Report{}, err
		}
	}

	d := m.AverageEdgeLength()
	if p.SigmaC == 0 {
		p.SigmaC = d * a.settings.Smoothing.SigmaCScale
	}
	if p.SigmaS == 0 {
		p.SigmaS = d * a.settings.Smoothing.SigmaSScale
	}
	if p.Iterations == 0 {
		p.Iterations = a.settings.Smoothing.Iterations
	}
	s, err := smooth.New(p.SigmaC, p.SigmaS,
		smooth.WithWorkers(a.settings.Smoothing.Workers),
		smooth.WithLogger(a.log.Named("smooth")))
	if err != nil {
		return smooth.Report{}, err
	}
	r, err := s.Run(ctx, m, p.Iterations)
	if err != nil {
		return r, err
	}
	if err := meshio.Save(out, m, meshio.WithLogger(a.log)); err != nil {
		return r, err
	}
	return r, nil
}

// Describe prints the feature vector of a mesh on one line. Features are
// "vol2bbox", "volume", "area" and "d2 <points> <bins>".
func (a *App) Describe(path string, features []string, seed int64, w io.Writer) error {
	m, err := meshio.Load(path, meshio.WithLogger(a.log))
	if err != nil {
		return err
	}
	a.log.Info("loaded mesh",
		zap.String("mesh", m.Name()),
		zap.Int("vertices", m.NumVertices()),
		zap.Int("edges", m.NumEdges()),
		zap.Int("faces", m.NumFaces()),
		zap.String("path", path))

	var vec []float64
	for i := 0; i < len(features); i++ {
		switch features[i] {
		case "vol2bbox":
			r, err := descriptor.VolumeToBBoxRatio(m)
			if err != nil {
				return err
			}
			vec = append(vec, r)
		case "volume":
			vec = append(vec, descriptor.Volume(m))
		case "area":
			vec = append(vec, descriptor.Area(m))
		case "d2":
			if i+2 >= len(features) {
				return fmt.Errorf("d2 needs <points> <bins>")
			}
			points, err1 := strconv.Atoi(features[i+1])
			bins, err2 := strconv.Atoi(features[i+2])
			if err1 != nil || err2 != nil || points < 1 || bins < 1 {
				return fmt.Errorf("invalid d2 parameters %q %q", features[i+1], features[i+2])
			}
			i += 2
			h, err := descriptor.D2(m, points, bins, seed)
			if err != nil {
				return err
			}
			vec = append(vec, h...)
		default:
			return fmt.Errorf("unknown feature %q", features[i])
		}
	}

	parts := make([]string, len(vec))
	for i, x := range vec {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	_, err = fmt.Fprintln(w, strings.Join(parts, " "))
	return err
}

// Evaluate runs source with paths resolved against baseDir and converts
// the emitted meshes to render buffers.
func (a *App) Evaluate(ctx context.Context, baseDir, source string) EvalResult {
	result := EvalResult{
		Meshes: []MeshData{},
		Errors: []EvalErrorData{},
	}

	res, evalErrs, err := a.newEngine(baseDir).EvaluateContext(ctx, source)
	if err != nil {
		// Fatal error (panic, timeout, etc.)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{
				Line:    e.Line,
				Col:     e.Col,
				Message: e.Message,
			})
		}
		return result
	}

	result.RunID = res.RunID.String()
	for i, em := range res.Meshes {
		buf := tessellate.Buffer(em.Mesh)
		result.Meshes = append(result.Meshes, MeshData{
			Vertices: buf.Vertices,
			Normals:  buf.Normals,
			Indices:  buf.Indices,
			Name:     em.Name,
			Color:    colorPalette[i%len(colorPalette)],
		})
	}
	return result
}

// RunScript evaluates the script at path. Relative paths inside the script
// resolve against the script's directory. With asJSON the full result is
// written to w; otherwise a summary line per emitted mesh.
func (a *App) RunScript(ctx context.Context, path string, asJSON bool, w io.Writer) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	result := a.Evaluate(ctx, filepath.Dir(path), string(source))
	if asJSON {
		enc := json.NewEncoder(w)
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		for _, m := range result.Meshes {
			fmt.Fprintf(w, "%s: %d vertices, %d triangles\n", m.Name, len(m.Vertices)/3, len(m.Indices)/3)
		}
	}
	if len(result.Errors) > 0 {
		e := result.Errors[0]
		if e.Line > 0 {
			return fmt.Errorf("%s:%d: %s", path, e.Line, e.Message)
		}
		return fmt.Errorf("%s: %s", path, e.Message)
	}
	return nil
}

// Handler returns the HTTP routes of the serve subcommand: /ws streams
// emitted meshes and /eval runs a posted script.
func (a *App) Handler(baseDir string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", a.hub)
	mux.HandleFunc("/eval", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "POST a script body", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxScriptBytes))
		if err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		result := a.Evaluate(r.Context(), baseDir, string(body))
		w.Header().Set("Content-Type", "application/json")
		if len(result.Errors) > 0 {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}
		if err := json.NewEncoder(w).Encode(result); err != nil {
			a.log.Warn("eval response write failed", zap.Error(err))
		}
	})
	return mux
}

// Serve listens on addr until ctx is cancelled.
func (a *App) Serve(ctx context.Context, addr, baseDir string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(baseDir),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		a.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("shutdown", zap.Error(err))
		}
	}()

	a.log.Info("serving", zap.String("addr", addr), zap.String("dir", baseDir))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
