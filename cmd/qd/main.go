// Command qd runs the qoldau help-desk core: an HTTP API over the ticket
// pipeline plus the operational subcommands around it.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
