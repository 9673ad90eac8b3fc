// Command tunetrees-syncd runs the replication engine as a long-lived
// process (serve), or as a set of small operator utilities (login,
// stats, monitor) against the same local store.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Dev convenience only: a missing .env is not an error, and a
	// present .env never overrides already-set environment variables
	// (viper's env layer still takes precedence either way), grounded
	// on sibling example repo kirbs-btw-spotify-playlist-dataset's own
	// godotenv.Load() call at process start.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
