// Package engine runs facet pipeline scripts. It wraps zygomys in a
// sandboxed environment extended with builtins that load, generate, perturb,
// smooth, simplify and save meshes.
package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/facet/pkg/kernel"
	"github.com/chazu/facet/pkg/kernel/sdfx"
	"github.com/chazu/facet/pkg/mesh"
	"github.com/chazu/facet/pkg/smooth"
	"github.com/chazu/facet/pkg/stream"
	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Emitted is a mesh handed out of a script with (emit "name" mesh).
type Emitted struct {
	Name string
	Mesh *mesh.Mesh
}

// Result is the output of a successful evaluation.
type Result struct {
	RunID  uuid.UUID
	Meshes []Emitted
}

// Lookup returns the last mesh emitted under name.
func (r *Result) Lookup(name string) (*mesh.Mesh, bool) {
	for i := len(r.Meshes) - 1; i >= 0; i-- {
		if r.Meshes[i].Name == name {
			return r.Meshes[i].Mesh, true
		}
	}
	return nil, false
}

// Publisher receives a frame for every emitted mesh. *stream.Hub satisfies
// it.
type Publisher interface {
	Publish(stream.Frame) int
}

// Engine wraps the zygomys interpreter. It is safe for concurrent use; each
// call to Evaluate creates a fresh sandboxed environment for determinism.
type Engine struct {
	mu         sync.Mutex
	generation uint64

	timeout   time.Duration
	kernel    kernel.Kernel
	baseDir   string
	workers   int
	sigmaC    float64
	sigmaS    float64
	publisher Publisher
	log       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets the hard limit for a single evaluation. Non-positive
// values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithKernel sets the solid modeling backend used by the primitive builtins.
func WithKernel(k kernel.Kernel) Option {
	return func(e *Engine) { e.kernel = k }
}

// WithBaseDir resolves relative paths given to load and save against dir.
func WithBaseDir(dir string) Option {
	return func(e *Engine) { e.baseDir = dir }
}

// WithWorkers sets the smoothing worker count.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithSigmaScales sets the default smoothing sigmas as multiples of the
// average edge length. Non-positive scales are ignored.
func WithSigmaScales(c, s float64) Option {
	return func(e *Engine) {
		if c > 0 && s > 0 {
			e.sigmaC, e.sigmaS = c, s
		}
	}
}

// WithPublisher streams every emitted mesh to p.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithLogger routes evaluation logs to l. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine creates a new Engine instance.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		timeout: EvalTimeout,
		sigmaC:  smooth.DefaultSigmaCScale,
		sigmaS:  smooth.DefaultSigmaSScale,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.kernel == nil {
		e.kernel = sdfx.New()
	}
	return e
}

// Evaluate runs source with a background context.
func (e *Engine) Evaluate(source string) (*Result, []EvalError, error) {
	return e.EvaluateContext(context.Background(), source)
}

// EvaluateContext takes Lisp source code and runs it in a fresh zygomys
// sandbox. Long-running builtins observe ctx and the evaluation timeout.
//
// Return semantics:
//   - On success: returns result + nil errors + nil error
//   - On parse/eval failure: returns nil result + eval errors + nil error
//   - On fatal failure (timeout, cancellation, panic, superseded): returns
//     nil + nil + error
func (e *Engine) EvaluateContext(ctx context.Context, source string) (*Result, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	run := &session{
		eng:   e,
		ctx:   ctx,
		runID: uuid.New(),
	}
	run.log = e.log.With(zap.String("run", run.runID.String()))
	run.log.Info("evaluation started", zap.Uint64("generation", gen), zap.Int("bytes", len(source)))

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("%w: %v", ErrPanic, r)}
			}
		}()

		res, evalErrs, err := run.evaluate(source)
		ch <- evalResult{result: res, errors: evalErrs, err: err}
	}()

	res, evalErrs, err := waitWithTimeout(ctx, ch, gen, &e.mu, &e.generation, e.timeout)
	switch {
	case err != nil:
		run.log.Error("evaluation failed", zap.Error(err))
	case len(evalErrs) > 0:
		run.log.Warn("evaluation reported errors", zap.Int("errors", len(evalErrs)), zap.String("first", evalErrs[0].Error()))
	default:
		run.log.Info("evaluation finished", zap.Int("emitted", len(res.Meshes)))
	}
	return res, evalErrs, err
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (s *session) evaluate(source string) (*Result, []EvalError, error) {
	// Empty source is a valid program that emits nothing.
	if strings.TrimSpace(source) == "" {
		return s.result(), nil, nil
	}

	// Sandbox mode keeps the filesystem and syscalls away from user code;
	// load and save go through the builtins instead.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env, s)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, parseZygomysError(err), nil
	}
	return s.result(), nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{
				Line:    line,
				Message: strings.TrimSpace(m[2]),
			}}
		}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
