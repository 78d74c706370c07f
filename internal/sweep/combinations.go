/*
PURPOSE:
  Expands the sweep axes into the ordered cross-product of parameter
  combinations, filtered by test mode.

REQUIREMENTS:
  User-specified:
  - Axis order: prompt, image, context, num_predict, temperature, seed.
  - text mode ignores images; vision mode needs at least one image;
    both mode runs "no image" plus every image.

  Implementation-discovered:
  - Ordering drives progress numbering and log output, so it is fixed.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.Sweep, internal/cli (plan command)
  - Produces: []model.Combination

ERROR HANDLING:
  - Returns *model.ConfigurationError for empty axes and for vision mode without images.

IMPLEMENTATION RULES:
  - Pure function. No IO.

USAGE:
  combos, err := sweep.Generate(axes, model.ModeBoth)

SELF-HEALING INSTRUCTIONS:
  - If a new axis is added, add it to Axes and to the nested loops in axis order.

RELATED FILES:
  - internal/sweep/parse.go
  - internal/model/types.go

MAINTENANCE:
  - Update when adding sweep axes.
*/

package sweep

import (
	"github.com/samber/lo"

	"github.com/daryltucker/ollama-sweep/internal/model"
)

// Axes holds the values of every sweep axis. A nil entry in Images or
// Seeds means "no image" and "server-chosen seed" respectively.
type Axes struct {
	Prompts      []string
	Images       []*string
	Contexts     []int
	NumPredict   []int
	Temperatures []float64
	Seeds        []*int
}

// JobCount is the number of jobs a sweep over combos will attempt.
func JobCount(combos []model.Combination, runs, cycles int) int {
	return len(combos) * runs * cycles
}

// Generate returns the lexicographic cross-product of the axes.
func Generate(axes Axes, mode model.Mode) ([]model.Combination, error) {
	if len(axes.Prompts) == 0 {
		return nil, &model.ConfigurationError{Field: "prompts", Reason: "no prompts configured"}
	}
	if len(axes.Contexts) == 0 {
		return nil, &model.ConfigurationError{Field: "ctx", Reason: "no context sizes configured"}
	}
	if len(axes.NumPredict) == 0 {
		return nil, &model.ConfigurationError{Field: "num-predict", Reason: "no num_predict values configured"}
	}
	if len(axes.Temperatures) == 0 {
		return nil, &model.ConfigurationError{Field: "temp", Reason: "no temperatures configured"}
	}
	seeds := axes.Seeds
	if len(seeds) == 0 {
		seeds = []*int{nil}
	}

	images, err := imageAxis(axes.Images, mode)
	if err != nil {
		return nil, err
	}

	combos := make([]model.Combination, 0,
		len(axes.Prompts)*len(images)*len(axes.Contexts)*len(axes.NumPredict)*len(axes.Temperatures)*len(seeds))
	for _, prompt := range axes.Prompts {
		for _, img := range images {
			for _, ctx := range axes.Contexts {
				for _, np := range axes.NumPredict {
					for _, temp := range axes.Temperatures {
						for _, seed := range seeds {
							combos = append(combos, model.Combination{
								Prompt:      prompt,
								ImagePath:   img,
								Context:     ctx,
								NumPredict:  np,
								Temperature: temp,
								Seed:        seed,
							})
						}
					}
				}
			}
		}
	}
	return combos, nil
}

func imageAxis(images []*string, mode model.Mode) ([]*string, error) {
	present := lo.Filter(images, func(p *string, _ int) bool { return p != nil && *p != "" })

	switch mode {
	case model.ModeText:
		return []*string{nil}, nil
	case model.ModeVision:
		if len(present) == 0 {
			return nil, &model.ConfigurationError{Field: "images", Reason: "vision mode requires at least one image"}
		}
		return present, nil
	case model.ModeBoth:
		return append([]*string{nil}, present...), nil
	}
	return nil, &model.ConfigurationError{Field: "mode", Reason: "unknown mode " + string(mode)}
}
