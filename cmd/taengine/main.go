// Command taengine serves and runs technical analysis over OHLCV bars.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
