package monitor

import (
	"github.com/samber/lo"

	"github.com/daryltucker/ollama-sweep/internal/model"
)

type metricPicker func(model.ResourceSample) *float64

// Summarize reduces an ordered, time-ascending sample slice into per-metric
// min/max/mean/count. Each metric only counts the samples where it is present.
func Summarize(samples []model.ResourceSample) model.ResourceSummary {
	sum := model.ResourceSummary{SampleCount: len(samples)}
	if len(samples) >= 2 {
		sum.DurationS = samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp).Seconds()
	}

	sum.CPUPercent = metricStats(samples, func(s model.ResourceSample) *float64 { return lo.ToPtr(s.CPUPercent) })
	sum.RAMPercent = metricStats(samples, func(s model.ResourceSample) *float64 { return lo.ToPtr(s.RAMPercent) })
	sum.RAMUsedGB = metricStats(samples, func(s model.ResourceSample) *float64 { return lo.ToPtr(s.RAMUsedGB) })
	sum.GPUUsagePercent = metricStats(samples, func(s model.ResourceSample) *float64 { return s.GPUUsagePercent })
	sum.GPUMemUsedMB = metricStats(samples, func(s model.ResourceSample) *float64 { return s.GPUMemUsedMB })
	sum.CPUTempC = metricStats(samples, func(s model.ResourceSample) *float64 { return s.CPUTempC })
	sum.GPUTempC = metricStats(samples, func(s model.ResourceSample) *float64 { return s.GPUTempC })
	sum.PowerWatts = metricStats(samples, func(s model.ResourceSample) *float64 { return s.PowerWatts })
	sum.DiskReadMB = metricStats(samples, func(s model.ResourceSample) *float64 { return s.DiskReadMB })
	sum.DiskWriteMB = metricStats(samples, func(s model.ResourceSample) *float64 { return s.DiskWriteMB })
	return sum
}

func metricStats(samples []model.ResourceSample, pick metricPicker) model.MetricStats {
	var (
		st         model.MetricStats
		minV, maxV float64
		total      float64
	)
	for _, s := range samples {
		v := pick(s)
		if v == nil {
			continue
		}
		if st.Count == 0 || *v < minV {
			minV = *v
		}
		if st.Count == 0 || *v > maxV {
			maxV = *v
		}
		total += *v
		st.Count++
	}
	if st.Count == 0 {
		return st
	}
	st.Min = lo.ToPtr(minV)
	st.Max = lo.ToPtr(maxV)
	st.Mean = lo.ToPtr(total / float64(st.Count))
	return st
}
