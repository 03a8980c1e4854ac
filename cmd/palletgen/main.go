// Package main generates a synthetic pallet pose dataset: randomized
// warehouse scenes rendered and labeled with ground-truth 6DOF poses.
package main

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/RunnersNum40/Kubric-Pallets/pipeline"
	"github.com/RunnersNum40/Kubric-Pallets/render"
	"github.com/RunnersNum40/Kubric-Pallets/scene"
)

var logger = golog.NewDevelopmentLogger("palletgen")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	OutputDir string `flag:"output,default=dataset,usage=dataset output directory"`
	Samples   int    `flag:"samples,default=16,usage=number of samples to generate"`
	Workers   int    `flag:"workers,default=1,usage=parallel workers, each with its own engine session"`
	Seed      int    `flag:"seed,default=1,usage=base seed; sample i uses seed+i"`
	Options   string `flag:"config,usage=scene randomization options JSON (defaults when empty)"`
	Assets    string `flag:"assets,usage=asset catalog JSON (built-in demo catalog when empty)"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	catalog := scene.DemoCatalog()
	if argsParsed.Assets != "" {
		var err error
		if catalog, err = scene.LoadCatalog(argsParsed.Assets); err != nil {
			return err
		}
	}
	opts := scene.DefaultOptions()
	if argsParsed.Options != "" {
		var err error
		if opts, err = scene.LoadOptions(argsParsed.Options); err != nil {
			return err
		}
	}

	generator, err := pipeline.New(pipeline.Config{
		Samples:   argsParsed.Samples,
		Workers:   argsParsed.Workers,
		SeedBase:  int64(argsParsed.Seed),
		OutputDir: argsParsed.OutputDir,
		Scene:     opts,
	}, catalog, func(ctx context.Context, logger golog.Logger) (render.Engine, error) {
		return render.NewBlockEngine(logger), nil
	}, logger)
	if err != nil {
		return err
	}

	summary, err := generator.Run(ctx)
	if summary != nil {
		logger.Infow("run finished", "summary", summary.String())
	}
	if err != nil {
		return err
	}
	if summary.Skipped > 0 {
		return errors.Errorf("%d of %d samples failed; failing seeds: %v",
			summary.Skipped, summary.Attempted, summary.FailedSeeds)
	}
	return nil
}
