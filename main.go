package main

import (
	"fmt"
	"os"

	"github.com/zeu5/locomotion-rl/benchmarks"
	"github.com/zeu5/locomotion-rl/observability"
)

// main entry point to all the experiments
func main() {
	rootCommand := benchmarks.GetRootCommand()
	err := rootCommand.Execute()
	observability.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
