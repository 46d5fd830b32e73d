// Command mxvc is an operator and debugging front end for an mxvc
// repository: it creates commits, rewrites them and inspects the
// operation log.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
