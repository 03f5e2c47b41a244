package main

import (
	"os"

	"github.com/liamcoop/prcycle/cmd/rulecheck/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
