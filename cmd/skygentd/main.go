// Command skygentd is the Skygent CLI: store management, filter
// compilation, pull/push sync, and view derivation.
package main

import (
	"os"

	"skygent.dev/skygent/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
