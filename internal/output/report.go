package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/daryltucker/ollama-sweep/internal/model"
)

// PrintSummary writes the final sweep report.
func PrintSummary(w io.Writer, s model.SweepSummary) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "SWEEP SUMMARY  model=%s  run=%s\n", s.Model, s.RunID)
	fmt.Fprintln(w, rule)
	status := "complete"
	if s.Interrupted {
		status = "interrupted"
	}
	fmt.Fprintf(w, "Jobs: %d/%d completed, %d failed (%s) in %.1fs\n",
		s.Completed, s.Planned, s.Failed, status, s.ElapsedS)

	if s.Text == nil && s.Vision == nil {
		fmt.Fprintln(w, "No decode throughput collected.")
		return
	}

	fmt.Fprintln(w, "\nDecode throughput by mode (tok/s):")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  mode\tsamples\tmean\tmedian\tmin\tmax\tstdev")
	printModeRow(tw, model.ModeText, s.Text)
	printModeRow(tw, model.ModeVision, s.Vision)
	tw.Flush()

	if c := s.Comparison; c != nil {
		fmt.Fprintf(w, "\nText/vision ratio: %.2fx (%s is faster, text faster by %.1f%%)\n",
			c.TextVisionRatio, c.FasterMode, c.TextFasterByPercent)
	}

	if len(s.Temperatures) > 0 {
		fmt.Fprintln(w, "\nBy temperature:")
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  temp\tmode\tsamples\tmean\tmedian")
		for _, t := range s.Temperatures {
			fmt.Fprintf(tw, "  %g\t%s\t%d\t%.2f\t%.2f\n", t.Temperature, t.Mode, t.Samples, t.Mean, t.Median)
		}
		tw.Flush()
	}

	if len(s.Combinations) > 0 {
		fmt.Fprintln(w, "\nPer combination:")
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  key\tn\tfailed\tmean\tmedian\tmin\tmax")
		for _, c := range s.Combinations {
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\n", c.Key, c.Samples, c.Failed, c.Mean, c.Median, c.Min, c.Max)
		}
		tw.Flush()
	}

	if len(s.Top) > 0 {
		fmt.Fprintln(w, "\nTop combinations:")
		for i, c := range s.Top {
			fmt.Fprintf(w, "  %d. %.2f tok/s  %s\n", i+1, c.Mean, c.Key)
		}
	}
}

func printModeRow(w io.Writer, mode model.Mode, st *model.TPSStats) {
	if st == nil {
		return
	}
	stdev := "-"
	if st.Stdev != nil {
		stdev = fmt.Sprintf("%.2f", *st.Stdev)
	}
	fmt.Fprintf(w, "  %s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
		mode, st.Samples, st.Mean, st.Median, st.Min, st.Max, stdev)
}
