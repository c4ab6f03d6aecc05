// Command quotectl prices home insurance quotes offline against the coverage cost tables.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
