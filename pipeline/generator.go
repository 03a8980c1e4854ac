// Package pipeline runs the sample generation loop: sample a scene, build
// it, render it, derive labels, and persist the pair — repeated across
// workers with disjoint seed and index ranges.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/RunnersNum40/Kubric-Pallets/annotate"
	"github.com/RunnersNum40/Kubric-Pallets/dataset"
	"github.com/RunnersNum40/Kubric-Pallets/render"
	"github.com/RunnersNum40/Kubric-Pallets/scene"
)

// Config configures a generation run.
type Config struct {
	Samples   int
	Workers   int
	SeedBase  int64
	OutputDir string
	Scene     scene.Options
}

// Validate checks the run parameters.
func (c *Config) Validate() error {
	if c.Samples < 1 {
		return errors.New("a run needs at least one sample")
	}
	if c.Workers < 1 {
		return errors.New("a run needs at least one worker")
	}
	if c.OutputDir == "" {
		return errors.New("output directory is required")
	}
	return c.Scene.Validate()
}

// EngineFactory creates one engine session per worker.
type EngineFactory func(ctx context.Context, logger golog.Logger) (render.Engine, error)

// Summary reports the outcome of a run.
type Summary struct {
	Attempted int
	Succeeded int
	Skipped   int
	// SkipReasons counts skipped samples per error class.
	SkipReasons map[string]int
	// FailedSeeds lists the seeds of skipped samples for reproduction.
	FailedSeeds []int64

	durationsMS []float64
}

// String renders the end-of-run report.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "attempted %d, succeeded %d, skipped %d", s.Attempted, s.Succeeded, s.Skipped)
	if len(s.SkipReasons) > 0 {
		reasons := make([]string, 0, len(s.SkipReasons))
		for reason, count := range s.SkipReasons {
			reasons = append(reasons, fmt.Sprintf("%s=%d", reason, count))
		}
		sort.Strings(reasons)
		fmt.Fprintf(&b, " (%s)", strings.Join(reasons, ", "))
	}
	if len(s.durationsMS) > 0 {
		mean, err := stats.Mean(s.durationsMS)
		p95, err2 := stats.Percentile(s.durationsMS, 95)
		if err == nil && err2 == nil {
			fmt.Fprintf(&b, "; per-sample mean %.0fms p95 %.0fms", mean, p95)
		}
	}
	return b.String()
}

// Generator drives the per-sample pipeline.
type Generator struct {
	cfg       Config
	catalog   *scene.Catalog
	newEngine EngineFactory
	logger    golog.Logger
}

// New validates the configuration and returns a generator.
func New(cfg Config, catalog *scene.Catalog, newEngine EngineFactory, logger golog.Logger) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if newEngine == nil {
		return nil, errors.New("an engine factory is required")
	}
	return &Generator{cfg: cfg, catalog: catalog, newEngine: newEngine, logger: logger}, nil
}

// Run generates the configured number of samples. With V views per scene,
// sample i renders view i mod V of the scene seeded SeedBase+i/V, at
// dataset index i; worker w handles the indices congruent to w modulo the
// worker count, with its own engine session and writer, so no state is
// shared between workers beyond the read-only catalog.
//
// Per-sample errors are logged with the failing seed and skipped; an
// IOError aborts the whole run. The returned summary is valid either way.
func (g *Generator) Run(ctx context.Context) (*Summary, error) {
	sampler, err := scene.NewSampler(g.catalog, g.cfg.Scene)
	if err != nil {
		return nil, err
	}

	summary := &Summary{SkipReasons: map[string]int{}}
	var mu sync.Mutex

	group, ctx := errgroup.WithContext(ctx)
	for w := 0; w < g.cfg.Workers; w++ {
		worker := w
		group.Go(func() error {
			return g.runWorker(ctx, worker, sampler, summary, &mu)
		})
	}
	if err := group.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (g *Generator) runWorker(
	ctx context.Context,
	worker int,
	sampler *scene.Sampler,
	summary *Summary,
	mu *sync.Mutex,
) error {
	logger := g.logger.Named(fmt.Sprintf("worker%d", worker))
	engine, err := g.newEngine(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(context.Background()); err != nil {
			logger.Errorw("engine close failed", "error", err)
		}
	}()

	writer, err := dataset.NewWriter(g.cfg.OutputDir, dataset.Options{
		Start:  worker,
		Stride: g.cfg.Workers,
	}, logger)
	if err != nil {
		return err
	}

	views := g.cfg.Scene.ViewsPerScene
	for i := worker; i < g.cfg.Samples; i += g.cfg.Workers {
		if err := ctx.Err(); err != nil {
			return err
		}
		seed := g.cfg.SeedBase + int64(i/views)
		view := i % views
		start := time.Now()
		err := g.generateOne(ctx, sampler, engine, writer, seed, view)
		elapsed := time.Since(start)

		mu.Lock()
		summary.Attempted++
		switch {
		case err == nil:
			summary.Succeeded++
			summary.durationsMS = append(summary.durationsMS, float64(elapsed.Milliseconds()))
		default:
			summary.Skipped++
			summary.SkipReasons[classify(err)]++
			summary.FailedSeeds = append(summary.FailedSeeds, seed)
		}
		mu.Unlock()

		if err != nil {
			var ioErr *dataset.IOError
			if errors.As(err, &ioErr) {
				// The output destination is unusable; abort the run.
				return err
			}
			logger.Errorw("sample skipped", "seed", seed, "view", view, "error", err)
		}
	}
	return nil
}

// generateOne runs one sample through the full pipeline. The scene state is
// always closed before returning so nothing leaks into the next sample.
func (g *Generator) generateOne(
	ctx context.Context,
	sampler *scene.Sampler,
	engine render.Engine,
	writer *dataset.Writer,
	seed int64,
	view int,
) (err error) {
	cfg, err := sampler.SampleView(seed, view)
	if err != nil {
		return err
	}
	state, err := render.Build(ctx, engine, g.catalog, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, state.Close())
	}()

	frame, err := state.Render(ctx)
	if err != nil {
		return err
	}
	annotations, err := annotate.Extract(cfg, frame, annotate.Options{
		VisibleAreaThreshold: g.cfg.Scene.VisibleAreaThreshold,
	})
	if err != nil {
		return err
	}
	_, err = writer.Write(frame, annotations, cfg)
	return err
}

// classify maps an error to its taxonomy bucket for the summary.
func classify(err error) string {
	var (
		placementErr *scene.PlacementError
		rangeErr     *scene.RangeError
		notFoundErr  *scene.NotFoundError
		buildErr     *render.BuildError
		renderErr    *render.RenderError
		ioErr        *dataset.IOError
	)
	switch {
	case errors.As(err, &placementErr):
		return "placement"
	case errors.As(err, &rangeErr):
		return "range"
	case errors.As(err, &notFoundErr):
		return "asset"
	case errors.As(err, &buildErr):
		return "build"
	case errors.As(err, &renderErr):
		return "render"
	case errors.As(err, &ioErr):
		return "io"
	default:
		return "other"
	}
}
