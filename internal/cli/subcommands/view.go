package subcommands

import (
	"TraceLens/internal/viewer"
)

// RunView replays a trace document in the terminal.
func RunView(path string) int {
	return viewer.Run(path)
}
