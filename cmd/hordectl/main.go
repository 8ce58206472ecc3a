// Command hordectl is a thin operator CLI against a running broker's
// HTTP surface (§2 domain stack: operator CLI).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
