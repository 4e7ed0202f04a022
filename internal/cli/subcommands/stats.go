package subcommands

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"TraceLens/internal/analytics"
	"TraceLens/internal/config"
)

// RunStats prints per-model aggregates from the recorded trace summaries.
func RunStats(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	dbPath := fs.String("db", cfg.Analytics.Path, "Path of the DuckDB statistics database")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		return 1
	}

	store, err := analytics.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer store.Close()

	aggregates, err := store.ModelAggregates()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if len(aggregates) == 0 {
		fmt.Println("No traces recorded yet. Run generate or train first.")
		return 0
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tINF RUNS\tTRAIN RUNS\tINF STEPS\tTRAIN STEPS\tMEAN TOP PROB\tMEAN LOSS")
	for _, a := range aggregates {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.4f\t%.4f\n",
			a.Model, a.InferenceRuns, a.TrainingRuns, a.TotalInfSteps, a.TotalTrainStep, a.MeanTopProb, a.MeanLoss)
	}
	w.Flush()
	return 0
}
