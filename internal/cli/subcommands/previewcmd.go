package subcommands

import (
	"flag"
	"fmt"
	"image"
	"os"
	"strings"

	"TraceLens/internal/config"
	"TraceLens/internal/engine"
	"TraceLens/internal/preview"
	"TraceLens/internal/viewer"
)

// RunPreview renders one step of a trace document as a PNG chart.
func RunPreview(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	stepIdx := fs.Int("step", 0, "Step to render")
	out := fs.String("out", "", "Output PNG path (defaults next to the trace file)")
	scale := fs.Int("scale", 1, "Integer upscale factor for the chart")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "preview requires a trace file path")
		return 1
	}
	tracePath := fs.Arg(0)

	trace, err := viewer.LoadTrace(tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if *stepIdx < 0 || *stepIdx >= trace.NumSteps() {
		fmt.Fprintf(os.Stderr, "step %d out of range; trace has %d steps\n", *stepIdx, trace.NumSteps())
		return 1
	}

	img := renderTraceStep(trace, *stepIdx, preview.Options{Scale: *scale})

	path := *out
	if path == "" {
		path = fmt.Sprintf("%s_step%d.png", strings.TrimSuffix(tracePath, ".json"), *stepIdx)
	}
	if err := preview.WritePNG(path, img); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	fmt.Printf("Preview written to %s\n", path)
	return 0
}

func renderTraceStep(trace *viewer.Trace, idx int, opts preview.Options) *image.RGBA {
	if trace.Inference != nil {
		step := trace.Inference.Steps[idx]
		title := fmt.Sprintf("step %d  selected %q (%s)", step.Step, step.SelectedToken.Token, step.SelectedToken.SelectionMethod)
		return preview.RenderDistribution(step.OutputDistribution, title, opts)
	}

	step := trace.Training.Steps[idx]
	d := engine.Distribution{TopK: len(step.Predictions), Candidates: step.Predictions}
	title := fmt.Sprintf("step %d  target %q  loss %.4f", step.Step, step.TargetToken, step.Loss)
	return preview.RenderDistribution(d, title, opts)
}
