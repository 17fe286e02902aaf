package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noperator/remnant/pkg/callgraph"
	"github.com/noperator/remnant/pkg/dataset"
	"github.com/noperator/remnant/pkg/detect"
	"github.com/noperator/remnant/pkg/extract"
)

var (
	scanTarget      string
	scanConfig      string
	scanCachePath   string
	scanCallersRoot string
	scanOutputFile  string
	scanConcurrency int
)

var scanCmd = &cobra.Command{
	Use:   "scan [flags]",
	Short: "Scan an extracted target against the vulnerability feature store",
	Long: `Scan a previously extracted target for modified vulnerable code clones.

The target's artifacts must exist, either as <target>_funcs.txt and
<target>_hash.txt in the dataset's target-function directory (produced by
'remnant extract') or in a function cache (--cache).

Examples:
  # Scan using text artifacts
  remnant scan -t redis

  # Scan from a cache and annotate findings with their callers
  remnant scan -t ffmpeg --cache ./funcache --callers ~/src/ffmpeg

  # Write the JSON report to a file
  remnant scan -t redis -o redis-report.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(scanConfig)
		if err != nil {
			return err
		}

		var (
			funcs     map[string]*extract.FunctionRecord
			hashTable map[string][]string
		)
		if scanCachePath != "" {
			store, err := dataset.OpenFuncStore(scanCachePath, dataset.FuncStoreOptions{ReadOnly: true})
			if err != nil {
				return err
			}
			defer store.Close()
			if !store.HasTarget(scanTarget) {
				return fmt.Errorf("target %q not present in cache %s; run 'remnant extract' first", scanTarget, scanCachePath)
			}
			if funcs, err = store.Functions(scanTarget); err != nil {
				return err
			}
			if hashTable, err = store.HashTable(scanTarget); err != nil {
				return err
			}
		} else {
			dir := cfg.Dataset.TargetFuncDir()
			if !extract.HasArtifacts(dir, scanTarget) {
				return fmt.Errorf("no artifacts for target %q in %s; run 'remnant extract' first", scanTarget, dir)
			}
			if funcs, err = extract.ReadFunctions(dir, scanTarget); err != nil {
				return err
			}
			if hashTable, err = extract.ReadHashTable(dir, scanTarget); err != nil {
				return err
			}
		}

		store, err := dataset.Load(cfg.Dataset)
		if err != nil {
			return err
		}

		scanner := detect.NewScanner(store, cfg.Detector, scanConcurrency)
		report, err := scanner.Scan(context.Background(), scanTarget, funcs, hashTable)
		if err != nil {
			return err
		}

		if scanCallersRoot != "" {
			if err := annotateCallers(report, scanCallersRoot, cfg.Extract.Extensions); err != nil {
				return err
			}
		}

		for _, match := range report.Matches {
			fmt.Printf("\t* [%s] %s contains the vulnerable %q function in %s\n",
				match.Label, report.Target, match.Function, match.Path)
		}
		fmt.Printf("\ntotal comparison time: %.3f s\n", report.ComparedSeconds)

		if scanOutputFile != "" {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(scanOutputFile, data, 0644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
		}
		return nil
	},
}

func annotateCallers(report *detect.Report, root string, extensions []string) error {
	cg, err := callgraph.Build(root, extensions)
	if err != nil {
		return err
	}
	for i := range report.Matches {
		if cg.Has(report.Matches[i].Function) {
			report.Matches[i].Callers = cg.Callers(report.Matches[i].Function)
		}
	}
	return nil
}

func init() {
	scanCmd.Flags().StringVarP(&scanTarget, "target", "t", "", "Target name to scan (required)")
	scanCmd.Flags().StringVarP(&scanConfig, "config", "c", "", "Path to a config.toml (default: embedded configuration)")
	scanCmd.Flags().StringVar(&scanCachePath, "cache", "", "Load target artifacts from this function cache instead of text files")
	scanCmd.Flags().StringVar(&scanCallersRoot, "callers", "", "Source tree to build a call graph from; findings get annotated with their direct callers")
	scanCmd.Flags().StringVarP(&scanOutputFile, "output", "o", "", "Write the JSON report to this file (default: summary to stdout only)")
	scanCmd.Flags().IntVarP(&scanConcurrency, "concurrency", "j", 0, "Worker count for matching (default: one per CPU)")
	scanCmd.MarkFlagRequired("target")

	rootCmd.AddCommand(scanCmd)
}
