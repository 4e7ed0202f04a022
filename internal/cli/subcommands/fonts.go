package subcommands

import (
	"context"
	"flag"
	"fmt"
	"os"

	"TraceLens/internal/assets"
	"TraceLens/internal/config"
)

// RunFonts mirrors the UI web fonts into the local assets directory.
func RunFonts(ctx context.Context, cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("fonts", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	url := fs.String("url", cfg.Assets.CSSURL, "Stylesheet URL declaring the font faces")
	dir := fs.String("dir", cfg.Assets.Dir, "Directory to mirror the fonts into")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		return 1
	}

	n, err := assets.NewDownloader(*dir).Fetch(ctx, *url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	if n == 0 {
		fmt.Printf("Fonts already mirrored under %s\n", *dir)
	} else {
		fmt.Printf("Downloaded %d font files into %s\n", n, *dir)
	}
	return 0
}
