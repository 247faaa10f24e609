package main

import (
	"os"

	"github.com/joseph-ayodele/label-checker/cmd/labelcheck/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
