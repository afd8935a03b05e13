package main

import (
	"os"

	"github.com/conneroisu/devlens/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
