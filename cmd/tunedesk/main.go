package main

import (
	"os"

	"github.com/tunedesk/tunedesk/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
