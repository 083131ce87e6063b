package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sitewatch-dev/sitewatch/internal/config"
	"github.com/sitewatch-dev/sitewatch/internal/errors"
	"github.com/sitewatch-dev/sitewatch/internal/metrics"
	"github.com/sitewatch-dev/sitewatch/internal/styletool"
)

const tracerName = "sitewatch/build"

// Outcome is how a pipeline run ended.
type Outcome int

const (
	// Success means every stage completed.
	Success Outcome = iota

	// Failed means a stage returned an error.
	Failed

	// Cancelled means the run was interrupted before completion. A
	// cancelled run is not a failure: its outputs are simply not
	// current.
	Cancelled
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result describes one finished pipeline run.
type Result struct {
	Outcome  Outcome
	Duration time.Duration

	// Stage and Err identify the first failing stage for Failed runs.
	Stage string
	Err   error
}

// Options configures a Pipeline.
type Options struct {
	// Release enables optimized artifacts: stripped binaries, minified
	// CSS and wasm-opt.
	Release bool

	// Toolchain, Bundler, Optimizer, Styles and Assets override the
	// default implementations. Nil fields get defaults; a nil Assets
	// disables the assets stage, a nil Styles disables the style stage
	// when no style entry is configured.
	Toolchain Toolchain
	Bundler   Bundler
	Optimizer Optimizer
	Styles    StyleCompiler
	Assets    AssetSyncer

	// Metrics overrides the process-wide metrics.
	Metrics *metrics.Metrics

	// Logf receives diagnostic output. Nil discards it.
	Logf func(format string, args ...any)
}

// Pipeline drives one full build of the site: clean, assets, then the
// style, wasm and server stages in parallel.
type Pipeline struct {
	cfg       *config.Config
	release   bool
	toolchain Toolchain
	bundler   Bundler
	optimizer Optimizer
	styles    StyleCompiler
	assets    AssetSyncer
	metrics   *metrics.Metrics
	logf      func(format string, args ...any)
	tracer    trace.Tracer
}

// NewPipeline creates a pipeline for cfg.
func NewPipeline(cfg *config.Config, opts Options) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		release:   opts.Release,
		toolchain: opts.Toolchain,
		bundler:   opts.Bundler,
		optimizer: opts.Optimizer,
		styles:    opts.Styles,
		assets:    opts.Assets,
		metrics:   opts.Metrics,
		logf:      opts.Logf,
		tracer:    otel.Tracer(tracerName),
	}
	if p.toolchain == nil {
		p.toolchain = &GoToolchain{Config: cfg, Release: opts.Release}
	}
	if p.bundler == nil {
		p.bundler = &WasmBundler{Config: cfg, Logf: opts.Logf}
	}
	if p.optimizer == nil {
		p.optimizer = &WasmOpt{Logf: opts.Logf}
	}
	if p.styles == nil && cfg.StylePath() != "" {
		p.styles = &styletool.Compiler{ProjectDir: cfg.Dir(), Logf: opts.Logf}
	}
	if p.metrics == nil {
		p.metrics = metrics.Default()
	}
	if p.logf == nil {
		p.logf = func(string, ...any) {}
	}
	return p
}

// Run executes the pipeline once. Cancelling ctx stops the run at the
// next stage boundary; in-flight compiles are killed through their
// command contexts.
func (p *Pipeline) Run(ctx context.Context) Result {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "build",
		trace.WithAttributes(attribute.Bool("release", p.release)))
	defer span.End()

	result := p.run(ctx)
	result.Duration = time.Since(start)

	switch result.Outcome {
	case Failed:
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Stage)
	case Cancelled:
		span.SetStatus(codes.Error, "cancelled")
	default:
		span.SetStatus(codes.Ok, "")
	}
	p.metrics.RecordBuild(result.Outcome.String())
	return result
}

// RunStyle reruns only the style stage. Used when a style change
// arrives and the rest of the site is already current.
func (p *Pipeline) RunStyle(ctx context.Context) error {
	return p.stage(ctx, "style", p.style)
}

func (p *Pipeline) run(ctx context.Context) Result {
	serial := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"clean", p.clean},
		{"assets", p.syncAssets},
	}
	for _, stage := range serial {
		if ctx.Err() != nil {
			return Result{Outcome: Cancelled}
		}
		if err := p.stage(ctx, stage.name, stage.fn); err != nil {
			return p.failure(ctx, stage.name, err)
		}
	}

	if ctx.Err() != nil {
		return Result{Outcome: Cancelled}
	}

	// The three artifact stages are independent; run them in parallel
	// and cancel the others as soon as one fails.
	parallel := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"style", p.style},
		{"wasm", p.wasm},
		{"server", p.server},
	}

	groupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type stageErr struct {
		name string
		err  error
	}
	errCh := make(chan stageErr, len(parallel))
	var wg sync.WaitGroup
	for _, stage := range parallel {
		stage := stage
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.stage(groupCtx, stage.name, stage.fn); err != nil {
				errCh <- stageErr{stage.name, err}
				cancel()
			}
		}()
	}
	wg.Wait()
	close(errCh)

	if first, ok := <-errCh; ok {
		return p.failure(ctx, first.name, first.err)
	}
	if ctx.Err() != nil {
		return Result{Outcome: Cancelled}
	}

	if err := p.stage(ctx, "site", p.writeIndex); err != nil {
		return p.failure(ctx, "site", err)
	}
	return Result{Outcome: Success}
}

// failure maps a stage error to a result, folding cancellation of the
// caller's context into the Cancelled outcome.
func (p *Pipeline) failure(ctx context.Context, stage string, err error) Result {
	if ctx.Err() != nil {
		return Result{Outcome: Cancelled}
	}
	return Result{Outcome: Failed, Stage: stage, Err: err}
}

// stage runs one named stage with a span and a duration sample.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	p.metrics.RecordStageDuration(name, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// clean removes stale build outputs: the pkg directory and the server
// binary. Synced assets are left for the assets stage to reconcile.
func (p *Pipeline) clean(context.Context) error {
	if err := os.RemoveAll(p.cfg.PkgDir()); err != nil {
		return errors.New("E145").WithDetail(p.cfg.PkgDir()).Wrap(err)
	}
	if err := os.RemoveAll(p.cfg.ServerBinPath()); err != nil {
		return errors.New("E145").WithDetail(p.cfg.ServerBinPath()).Wrap(err)
	}
	return nil
}

func (p *Pipeline) syncAssets(context.Context) error {
	if p.assets == nil {
		return nil
	}
	return p.assets.Resync()
}

func (p *Pipeline) style(ctx context.Context) error {
	if p.styles == nil || p.cfg.StylePath() == "" {
		return nil
	}
	output := filepath.Join(p.cfg.PkgDir(), p.cfg.Build.OutputName+".css")
	return p.styles.Compile(ctx, p.cfg.StylePath(), output, p.release)
}

func (p *Pipeline) wasm(ctx context.Context) error {
	tmp := filepath.Join(p.cfg.SiteRoot(), "..", p.cfg.Build.OutputName+".wasm")
	if err := p.toolchain.CompileWasm(ctx, tmp); err != nil {
		return err
	}
	if p.release {
		if err := p.optimizer.Optimize(ctx, tmp); err != nil {
			return err
		}
	}
	return p.bundler.Bundle(ctx, tmp)
}

func (p *Pipeline) server(ctx context.Context) error {
	out := p.cfg.ServerBinPath()
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return errors.New("E140").WithDetail(out).Wrap(err)
	}
	return p.toolchain.CompileServer(ctx, out)
}

// writeIndex generates the HTML shell at the site root. It references
// the bundle by its stable names, so it only changes when the config
// does, but rewriting it every build keeps it authoritative.
func (p *Pipeline) writeIndex(context.Context) error {
	name := p.cfg.Build.OutputName
	pkg := p.cfg.Site.PkgDir

	css := ""
	if p.cfg.StylePath() != "" {
		css = fmt.Sprintf("\n    <link rel=\"stylesheet\" href=\"/%s/%s.css\">", pkg, name)
	}
	html := fmt.Sprintf(indexTemplate, p.cfg.Name, css, pkg, name)

	if err := os.MkdirAll(p.cfg.SiteRoot(), 0755); err != nil {
		return errors.New("E145").WithDetail(p.cfg.SiteRoot()).Wrap(err)
	}
	path := filepath.Join(p.cfg.SiteRoot(), "index.html")
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return errors.New("E145").WithDetail(path).Wrap(err)
	}
	return nil
}

const indexTemplate = `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>%s</title>%s
    <script src="/%[3]s/wasm_exec.js"></script>
    <script defer src="/%[3]s/%[4]s.js"></script>
  </head>
  <body></body>
</html>
`
