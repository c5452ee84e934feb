package main

import (
	"os"

	"github.com/emera/sattur/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
