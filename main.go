package main

import (
	"os"

	"TraceLens/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
