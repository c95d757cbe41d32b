// Command graphctl operates a graphtrack store from the shell: migrations,
// batch validation and import, traversal queries and snapshot export.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
