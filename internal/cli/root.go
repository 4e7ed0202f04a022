package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"TraceLens/internal/cli/subcommands"
	"TraceLens/internal/config"
)

// Execute is the entry point for the TraceLens CLI.
func Execute() int {
	ctx := context.Background()
	args := os.Args[1:]

	cfg, err := config.Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	if len(args) == 0 {
		printHelp()
		return 0
	}

	subcommand := args[0]
	switch subcommand {
	case "serve":
		return subcommands.RunServe(ctx, cfg, args[1:])
	case "generate":
		return runGenerate(ctx, cfg, args[1:])
	case "train":
		return runTrain(ctx, cfg, args[1:])
	case "index":
		return subcommands.RunIndex(cfg, args[1:])
	case "stats":
		return subcommands.RunStats(cfg, args[1:])
	case "view":
		return runView(args[1:])
	case "preview":
		return subcommands.RunPreview(cfg, args[1:])
	case "fonts":
		return subcommands.RunFonts(ctx, cfg, args[1:])
	case "help", "-h", "--help":
		printHelp()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", subcommand)
		printHelp()
		return 1
	}
}

func runGenerate(ctx context.Context, cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	prompt := fs.String("prompt", "", "Prompt to trace (or pass it as positional arguments)")
	maxNewTokens := fs.Int("max-new-tokens", 0, "Number of tokens to generate (0 uses config default)")
	topK := fs.Int("top-k", 0, "Candidates recorded per step (0 uses config default)")
	temperature := fs.Float64("temperature", -1, "Sampling temperature; 0 is greedy (-1 uses config default)")
	noChat := fs.Bool("no-chat", false, "Skip the chat template even when the model has one")
	language := fs.String("language", "en", "Language code recorded on the trace document")
	serverURL := fs.String("server", "", "Trace service base URL (defaults to the configured server address)")
	out := fs.String("out", "", "Directory for the trace document (defaults to the configured data dir)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		return 1
	}

	remaining := fs.Args()
	if *prompt == "" && len(remaining) > 0 {
		*prompt = strings.Join(remaining, " ")
	}
	if strings.TrimSpace(*prompt) == "" {
		fmt.Fprintln(os.Stderr, "generate requires a prompt (--prompt) or positional argument")
		return 1
	}

	options := subcommands.GenerateOptions{
		Prompt:       strings.TrimSpace(*prompt),
		MaxNewTokens: *maxNewTokens,
		TopK:         *topK,
		Language:     *language,
		ServerURL:    *serverURL,
		OutDir:       *out,
	}
	if *temperature >= 0 {
		options.Temperature = temperature
	}
	if *noChat {
		f := false
		options.ApplyChatTemplate = &f
	}

	return subcommands.RunGenerate(ctx, cfg, options)
}

func runTrain(ctx context.Context, cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	text := fs.String("text", "", "Text to trace directly")
	file := fs.String("file", "", "Corpus file to trace (.txt, .md or .pdf)")
	dir := fs.String("dir", "", "Corpus directory; every supported file becomes one trace")
	maxTokens := fs.Int("max-tokens", 0, "Token truncation limit (0 uses config default)")
	source := fs.String("source", "", "Source label stored in the trace (defaults to the file name)")
	serverURL := fs.String("server", "", "Trace service base URL (defaults to the configured server address)")
	out := fs.String("out", "", "Directory for the trace documents (defaults to the configured data dir)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		return 1
	}

	set := 0
	for _, v := range []string{*text, *file, *dir} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		fmt.Fprintln(os.Stderr, "train requires exactly one of --text, --file or --dir")
		return 1
	}

	return subcommands.RunTrain(ctx, cfg, subcommands.TrainOptions{
		Text:      *text,
		File:      *file,
		Dir:       *dir,
		MaxTokens: *maxTokens,
		Source:    *source,
		ServerURL: *serverURL,
		OutDir:    *out,
	})
}

func runView(args []string) int {
	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "view requires a trace file path")
		return 1
	}
	return subcommands.RunView(fs.Arg(0))
}

func printHelp() {
	fmt.Println(`TraceLens - Language Model Decoding Trace Recorder

Usage:
  TraceLens [command] [flags]

Commands:
  serve     Start the trace service backed by an external model runner
  generate  Record a generation trace for a prompt
  train     Record teacher-forced traces for texts or a corpus
  index     Catalog trace documents into SQLite and examples.json
  stats     Show per-model aggregates from recorded traces
  view      Replay a trace step by step in the terminal
  preview   Render a trace step's distribution as a PNG chart
  fonts     Mirror the UI web fonts locally

Each step of a trace records the model's full top-K probability
distribution before a token is committed, so decoding and training
dynamics can be replayed offline.

Use "TraceLens [command] --help" for more information about a command.`)
}
