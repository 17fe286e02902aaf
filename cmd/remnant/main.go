package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "remnant",
	Short: "Modified vulnerable code clone detector",
	Long: `Remnant: modified vulnerable code clone detector for C/C++ targets.
Extracts target functions into raw, normalized, and abstracted representations,
cuts the search space with content-hash reuse evidence, then matches patch-derived
vulnerability signatures against what survives.
Intended flow is extract -> scan -> triage.`,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
