// Command printerd is a printer service: it drives an ESC/POS printer and
// answers bridge sessions over websocket and, optionally, D-Bus.
package main

import (
	"fmt"
	"os"
)

// Version is set during build via ldflags
var Version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
