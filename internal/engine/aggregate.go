/*
PURPOSE:
  Collects decode throughput per combination while a sweep runs and
  derives the final cross-combination summary.

REQUIREMENTS:
  User-specified:
  - Per-mode stats, text/vision comparison, per-temperature breakdown, top 5.
  - Failed jobs are counted per combination.

  Implementation-discovered:
  - Combination order in the report follows first execution, not map order.
  - Stdev needs two values; with one it is absent, not zero.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.Sweep
  - Output: model.SweepSummary, printed by internal/output

ERROR HANDLING:
  - None. Records without a decode rate only register the combination.

IMPLEMENTATION RULES:
  - Sample stdev (n-1).
  - Not safe for concurrent use; the sweep is sequential.

USAGE:
  agg := NewAggregate()
  agg.Add(combo, rec)
  agg.Fill(&summary)

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/model/summary.go
  - internal/output/report.go

MAINTENANCE:
  - Update TopN if the report grows.
*/

package engine

import (
	"cmp"
	"math"
	"slices"

	"github.com/samber/lo"

	"github.com/daryltucker/ollama-sweep/internal/model"
)

// TopN is how many combinations the summary ranks.
const TopN = 5

// Aggregate collects decode throughput per combination, in the order
// combinations were first seen.
type Aggregate struct {
	order  []string
	combos map[string]*comboAgg
}

type comboAgg struct {
	combo  model.Combination
	values []float64
	failed int
}

func NewAggregate() *Aggregate {
	return &Aggregate{combos: make(map[string]*comboAgg)}
}

func (a *Aggregate) entry(c model.Combination) *comboAgg {
	key := c.Key()
	e, ok := a.combos[key]
	if !ok {
		e = &comboAgg{combo: c}
		a.combos[key] = e
		a.order = append(a.order, key)
	}
	return e
}

// Add records a completed job. Records without a decode rate only
// register the combination.
func (a *Aggregate) Add(c model.Combination, rec model.BenchmarkRecord) {
	e := a.entry(c)
	if rec.DecodeTPS != nil {
		e.values = append(e.values, *rec.DecodeTPS)
	}
}

// Fail records a failed job for c.
func (a *Aggregate) Fail(c model.Combination) {
	a.entry(c).failed++
}

// values returns the decode rates collected for a combination key.
func (a *Aggregate) values(key string) []float64 {
	if e, ok := a.combos[key]; ok {
		return slices.Clone(e.values)
	}
	return nil
}

// keys returns combination keys in first-seen order.
func (a *Aggregate) keys() []string {
	return slices.Clone(a.order)
}

// Fill computes the throughput sections of s from the collected values.
func (a *Aggregate) Fill(s *model.SweepSummary) {
	var text, vision []float64
	type tempKey struct {
		temp float64
		mode model.Mode
	}
	byTemp := map[tempKey][]float64{}

	s.Combinations = s.Combinations[:0]
	for _, key := range a.keys() {
		e := a.combos[key]
		mode := e.combo.Mode()
		if mode == model.ModeVision {
			vision = append(vision, e.values...)
		} else {
			text = append(text, e.values...)
		}
		if len(e.values) > 0 {
			tk := tempKey{e.combo.Temperature, mode}
			byTemp[tk] = append(byTemp[tk], e.values...)
		}

		cs := model.ComboSummary{
			Key:         key,
			Mode:        mode,
			PromptHash:  model.PromptHash(e.combo.Prompt),
			ImagePath:   e.combo.ImagePath,
			Context:     e.combo.Context,
			NumPredict:  e.combo.NumPredict,
			Temperature: e.combo.Temperature,
			Seed:        e.combo.Seed,
			Failed:      e.failed,
		}
		if st := ComputeStats(e.values); st != nil {
			cs.TPSStats = *st
		}
		s.Combinations = append(s.Combinations, cs)
	}

	s.Text = ComputeStats(text)
	s.Vision = ComputeStats(vision)
	s.Comparison = Compare(s.Text, s.Vision)

	temps := lo.Keys(byTemp)
	slices.SortFunc(temps, func(x, y tempKey) int {
		if c := cmp.Compare(x.temp, y.temp); c != 0 {
			return c
		}
		return cmp.Compare(x.mode, y.mode)
	})
	s.Temperatures = lo.Map(temps, func(tk tempKey, _ int) model.TemperatureSummary {
		return model.TemperatureSummary{Temperature: tk.temp, Mode: tk.mode, TPSStats: *ComputeStats(byTemp[tk])}
	})

	ranked := lo.Filter(s.Combinations, func(c model.ComboSummary, _ int) bool { return c.Samples > 0 })
	slices.SortStableFunc(ranked, func(x, y model.ComboSummary) int {
		return cmp.Compare(y.Mean, x.Mean)
	})
	if len(ranked) > TopN {
		ranked = ranked[:TopN]
	}
	s.Top = ranked
}

// ComputeStats describes values; nil when there are none. Stdev is the
// sample standard deviation and needs two values.
func ComputeStats(values []float64) *model.TPSStats {
	n := len(values)
	if n == 0 {
		return nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mean := lo.Sum(values) / float64(n)

	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	st := &model.TPSStats{
		Samples: n,
		Mean:    mean,
		Median:  median,
		Min:     sorted[0],
		Max:     sorted[n-1],
	}
	if n >= 2 {
		var sq float64
		for _, v := range values {
			sq += (v - mean) * (v - mean)
		}
		st.Stdev = lo.ToPtr(math.Sqrt(sq / float64(n-1)))
	}
	return st
}

// Compare relates text and vision throughput. Nil unless both modes have
// data and vision's mean is positive.
func Compare(text, vision *model.TPSStats) *model.ModeComparison {
	if text == nil || vision == nil || vision.Mean <= 0 {
		return nil
	}
	ratio := text.Mean / vision.Mean
	faster := model.ModeVision
	if ratio > 1 {
		faster = model.ModeText
	}
	return &model.ModeComparison{
		TextVisionRatio:     ratio,
		TextFasterByPercent: (ratio - 1) * 100,
		FasterMode:          faster,
	}
}
