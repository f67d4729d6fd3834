package main

import (
	"os"

	"github.com/example/kvc-indicator/internal/logging"
)

func main() {
	err := newRootCmd(defaultDeps()).Execute()
	logging.Sync()
	if err != nil {
		os.Exit(1)
	}
}
