package subcommands

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"TraceLens/internal/analytics"
	"TraceLens/internal/client"
	"TraceLens/internal/config"
	"TraceLens/internal/corpus"
)

// TrainOptions carry the parsed train flags. Exactly one of Text, File or Dir
// is set.
type TrainOptions struct {
	Text      string
	File      string
	Dir       string
	MaxTokens int
	Source    string
	ServerURL string
	OutDir    string
}

// RunTrain records teacher-forced traces for one text or a whole corpus.
func RunTrain(ctx context.Context, cfg config.Config, opts TrainOptions) int {
	docs, ok := collectDocuments(cfg, opts)
	if !ok {
		return 1
	}

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

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = cfg.Training.MaxTokens
	}
	outDir := opts.OutDir
	if outDir == "" {
		outDir = cfg.Data.Dir
	}

	var store *analytics.Store
	if store, err = analytics.NewStore(cfg.Analytics.Path); err != nil {
		log.Printf("analytics unavailable: %v", err)
		store = nil
	} else {
		defer store.Close()
	}

	recorded := 0
	for _, doc := range docs {
		trace, err := c.ProcessTraining(ctx, client.TrainingOptions{
			Text:      doc.Text,
			Source:    doc.Source,
			MaxTokens: maxTokens,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to trace %s: %v\n", doc.Source, err)
			continue
		}

		path, err := client.SaveTraining(outDir, trace)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}

		sum := analytics.SummarizeTraining(trace)
		if store != nil {
			if err := store.RecordTraining(sum); err != nil {
				log.Printf("failed to record trace summary: %v", err)
			}
		}
		fmt.Printf("%s: %d steps, mean loss %.4f -> %s\n", doc.Source, sum.Steps, sum.MeanLoss, path)
		recorded++
	}

	if recorded == 0 {
		fmt.Fprintln(os.Stderr, "no traces were recorded")
		return 1
	}
	fmt.Printf("Recorded %d of %d traces\n", recorded, len(docs))
	return 0
}

func collectDocuments(cfg config.Config, opts TrainOptions) ([]corpus.Document, bool) {
	switch {
	case opts.Text != "":
		source := opts.Source
		if source == "" {
			source = "inline"
		}
		return []corpus.Document{{Source: source, Text: opts.Text}}, true

	case opts.File != "":
		loader := corpus.NewLoader(cfg.Corpus.Extensions)
		doc, err := loader.LoadFile(opts.File)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return nil, false
		}
		if opts.Source != "" {
			doc.Source = opts.Source
		}
		return []corpus.Document{doc}, true

	default:
		loader := corpus.NewLoader(cfg.Corpus.Extensions)
		docs, err := loader.LoadDir(opts.Dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return nil, false
		}
		if len(docs) == 0 {
			fmt.Fprintf(os.Stderr, "no readable corpus files under %s\n", filepath.Clean(opts.Dir))
			return nil, false
		}
		return docs, true
	}
}
