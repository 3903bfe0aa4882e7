// Command weft is a local-first semantic code search indexer.
package main

import (
	"os"

	"github.com/weftlabs/weft/cmd/weft/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
