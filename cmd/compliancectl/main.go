// Command compliancectl scores defect record files offline against a
// catalog. It runs the same normalizer, scoring engine and priority
// classifier as the server without a database.
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
