/*
PURPOSE:
  Resolves a validated config into a sweep plan: prompts, parsed axes,
  encoded images and the ordered combination list.

REQUIREMENTS:
  User-specified:
  - Prompt file entries come before --prompt values.
  - Images are validated and encoded once, before any job runs.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.Run, internal/cli (plan command)
  - Calls: internal/sweep

ERROR HANDLING:
  - Bad axis values and unusable image inputs are *model.ConfigurationError.

USAGE:
  plan, err := engine.BuildPlan(cfg)

RELATED FILES:
  - internal/sweep/combinations.go
  - internal/sweep/images.go
*/

package engine

import (
	"github.com/samber/lo"

	"github.com/daryltucker/ollama-sweep/internal/config"
	"github.com/daryltucker/ollama-sweep/internal/model"
	"github.com/daryltucker/ollama-sweep/internal/output"
	"github.com/daryltucker/ollama-sweep/internal/sweep"
)

// Plan is a resolved sweep: the ordered combinations and the encoded
// images they reference.
type Plan struct {
	Mode         model.Mode
	Combinations []model.Combination
	Images       map[string]string
	Runs         int
	Cycles       int
}

// Jobs is the planned job count.
func (p *Plan) Jobs() int {
	return sweep.JobCount(p.Combinations, p.Runs, p.Cycles)
}

// BuildPlan parses the configured axes, loads prompts and images and
// generates the combinations. All failures are *model.ConfigurationError.
func BuildPlan(cfg *config.Config) (*Plan, error) {
	mode, err := model.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	var prompts []string
	if cfg.PromptFile != "" {
		prompts, err = sweep.LoadPrompts(cfg.PromptFile)
		if err != nil {
			return nil, err
		}
	}
	prompts = append(prompts, cfg.Prompts...)

	axes := sweep.Axes{Prompts: prompts}
	if axes.Contexts, err = sweep.ParseInts("ctx", cfg.Contexts); err != nil {
		return nil, err
	}
	if axes.NumPredict, err = sweep.ParseInts("num-predict", cfg.NumPredict); err != nil {
		return nil, err
	}
	if axes.Temperatures, err = sweep.ParseFloats("temp", cfg.Temperatures); err != nil {
		return nil, err
	}
	if axes.Seeds, err = sweep.ParseSeeds(lo.FromPtr(cfg.Seeds)); err != nil {
		return nil, err
	}

	images := map[string]string{}
	if mode != model.ModeText {
		paths, err := sweep.CollectImages(cfg.Images, cfg.ImageDir)
		if err != nil {
			return nil, &model.ConfigurationError{Field: "image-dir", Reason: err.Error()}
		}
		for _, img := range sweep.EncodeImages(paths, cfg.ImageWorkers) {
			images[img.Path] = img.Data
			axes.Images = append(axes.Images, lo.ToPtr(img.Path))
		}
		if len(paths) > 0 {
			output.Logger.Info("Images loaded", "requested", len(paths), "usable", len(axes.Images))
		}
	}

	combos, err := sweep.Generate(axes, mode)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Mode:         mode,
		Combinations: combos,
		Images:       images,
		Runs:         cfg.Runs,
		Cycles:       cfg.Cycles,
	}, nil
}
