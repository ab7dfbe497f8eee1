// Command bridge connects to the printer service and exposes it to local
// callers over HTTP, one-shot commands and print scripts.
package main

import (
	"os"
)

// Version is set during build via ldflags
var Version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}
