// Command fatigued serves and runs the vocal fatigue classifier.
//
// Usage:
//
//	fatigued [--config file] <command> [args]
//
// Commands:
//
//	serve    - HTTP API: POST /predict, GET /healthz, GET /metrics
//	predict  - classify a local audio file and print the JSON result
//	inspect  - print model and scaler metadata
//
// The config path may also be given in FATIGUE_CONFIG.
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
