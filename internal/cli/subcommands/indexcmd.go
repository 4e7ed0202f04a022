package subcommands

import (
	"flag"
	"fmt"
	"os"

	"TraceLens/internal/config"
	"TraceLens/internal/index"
)

// RunIndex catalogs the trace documents under the data directory.
func RunIndex(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	dir := fs.String("dir", cfg.Data.Dir, "Directory holding trace documents")
	dbPath := fs.String("db", cfg.Index.Path, "Path of the SQLite catalog database")
	list := fs.Bool("list", false, "Print the indexed entries after scanning")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		return 1
	}

	store, err := index.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer store.Close()

	indexed, err := store.Scan(*dir, cfg.Index.Catalog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	catalogPath, err := store.WriteCatalog(*dir, cfg.Index.Catalog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	fmt.Printf("Indexed %d trace documents from %s\n", indexed, *dir)
	fmt.Printf("Catalog written to %s\n", catalogPath)

	if *list {
		entries, err := store.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		for _, e := range entries {
			fmt.Printf("  %-10s %-6s %4d tokens  %-20s %s\n", e.Type, e.Language, e.NumTokens, e.ModelID, e.Path)
		}
	}
	return 0
}
