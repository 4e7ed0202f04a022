package subcommands

import (
	"context"
	"fmt"
	"log"
	"os"

	"TraceLens/internal/analytics"
	"TraceLens/internal/client"
	"TraceLens/internal/config"
	"TraceLens/internal/engine"
)

// GenerateOptions carry the parsed generate flags.
type GenerateOptions struct {
	Prompt            string
	MaxNewTokens      int
	TopK              int
	Temperature       *float64
	ApplyChatTemplate *bool
	Language          string
	ServerURL         string
	OutDir            string
}

// RunGenerate records one generation trace through the service and saves it.
func RunGenerate(ctx context.Context, cfg config.Config, opts GenerateOptions) int {
	c := serviceClient(cfg, opts.ServerURL)

	loaded, err := c.CheckServer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		fmt.Fprintln(os.Stderr, "start the service with: TraceLens serve")
		return 1
	}
	if !loaded {
		if cfg.Runner.Model == "" {
			fmt.Fprintln(os.Stderr, "no model is loaded and no default model is configured")
			return 1
		}
		fmt.Printf("Loading model %s...\n", cfg.Runner.Model)
		if err := c.LoadModel(ctx, cfg.Runner.Model); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load model: %v\n", err)
			return 1
		}
	}

	trace, err := c.Generate(ctx, client.GenerateOptions{
		Prompt:            opts.Prompt,
		MaxNewTokens:      opts.MaxNewTokens,
		TopK:              opts.TopK,
		Temperature:       opts.Temperature,
		ApplyChatTemplate: opts.ApplyChatTemplate,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "generation failed: %v\n", err)
		return 1
	}

	outDir := opts.OutDir
	if outDir == "" {
		outDir = cfg.Data.Dir
	}
	path, err := client.SaveInference(outDir, trace, opts.Language)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	recordInference(cfg, trace)

	fmt.Printf("Recorded %d steps for model %s\n", len(trace.Steps), trace.ModelInfo.Name)
	if len(trace.Steps) > 0 {
		last := trace.Steps[len(trace.Steps)-1]
		fmt.Printf("Final context: %s%s\n", last.InputText, last.SelectedToken.Token)
	}
	fmt.Printf("Trace saved to %s\n", path)
	return 0
}

// recordInference best-effort persists the trace summary for later stats.
func recordInference(cfg config.Config, trace *engine.InferenceTrace) {
	store, err := analytics.NewStore(cfg.Analytics.Path)
	if err != nil {
		log.Printf("analytics unavailable: %v", err)
		return
	}
	defer store.Close()

	if err := store.RecordInference(analytics.SummarizeInference(trace)); err != nil {
		log.Printf("failed to record trace summary: %v", err)
	}
}

func serviceClient(cfg config.Config, override string) *client.Client {
	base := override
	if base == "" {
		base = "http://" + cfg.ServerAddr()
	}
	return client.New(base)
}
