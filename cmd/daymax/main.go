package main

import (
	"os"

	"github.com/smartcampus/daymax/cmd/daymax/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
