package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/noperator/remnant/pkg/config"
	"github.com/noperator/remnant/pkg/dataset"
	"github.com/noperator/remnant/pkg/detect"
	"github.com/noperator/remnant/pkg/extract"
	"github.com/noperator/remnant/pkg/triage"
)

var (
	triageInputFile   string
	triageOutputFile  string
	triageConfig      string
	triageCachePath   string
	triageBaseURL     string
	triageModel       string
	triageMaxTokens   int
	triageConcurrency int
	triageTimeout     int
	triageAll         bool
)

var triageCmd = &cobra.Command{
	Use:   "triage [flags]",
	Short: "Review scan findings with an LLM",
	Long: `Review a scan report's findings with a Large Language Model.

Each flagged function's source is sent to the model with the finding's
context; the model returns a structured verdict (vulnerable, confidence,
reason). By default only findings the model confirms are output; use --all
to keep every finding with its verdict attached.

Requires REMNANT_OPENAI_API_KEY or OPENAI_API_KEY.

Examples:
  # Scan, then triage the report
  remnant scan -t redis -o report.json
  remnant triage -i report.json -o triaged.json

  # Pipe, with a custom model
  remnant triage -i report.json -m gpt-5-mini --all

  # Triage a scan that ran against a function cache
  remnant triage -i report.json --cache ./funcache`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(triageConfig)
		if err != nil {
			return err
		}

		llmCfg, err := triage.ConfigFromEnv()
		if err != nil {
			return err
		}
		if triageBaseURL != "" {
			llmCfg.BaseURL = triageBaseURL
		}
		if triageModel != "" {
			llmCfg.Model = triageModel
		}
		if triageMaxTokens > 0 {
			llmCfg.MaxTokens = triageMaxTokens
		}
		if triageConcurrency > 0 {
			llmCfg.Concurrency = triageConcurrency
		}

		report, err := readReport(triageInputFile)
		if err != nil {
			return err
		}
		if len(report.Matches) == 0 {
			return nil
		}

		funcs, err := loadTriageFuncs(cfg, triageCachePath, report.Target)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(triageTimeout)*time.Second)
		defer cancel()

		analyzer := triage.NewAnalyzer(llmCfg)
		triaged, err := analyzer.TriageAll(ctx, report.Matches, funcs)
		if err != nil {
			return err
		}

		if !triageAll {
			kept := triaged[:0]
			for _, t := range triaged {
				if t.Verdict != nil && t.Verdict.Vulnerable {
					kept = append(kept, t)
				}
			}
			triaged = kept
		}

		return writeTriaged(triaged, triageOutputFile)
	},
}

// loadTriageFuncs resolves the scanned target's function records from the
// same places scan reads them: a function cache when one is given,
// otherwise the text artifacts.
func loadTriageFuncs(cfg *config.Config, cachePath, target string) (map[string]*extract.FunctionRecord, error) {
	if cachePath != "" {
		store, err := dataset.OpenFuncStore(cachePath, dataset.FuncStoreOptions{ReadOnly: true})
		if err != nil {
			return nil, err
		}
		defer store.Close()
		if !store.HasTarget(target) {
			return nil, fmt.Errorf("target %q not present in cache %s; run 'remnant extract' first", target, cachePath)
		}
		return store.Functions(target)
	}
	return extract.ReadFunctions(cfg.Dataset.TargetFuncDir(), target)
}

func readReport(path string) (*detect.Report, error) {
	var data []byte
	var err error
	if path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var report detect.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

func writeTriaged(triaged []triage.TriagedMatch, path string) error {
	data, err := json.MarshalIndent(triaged, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		_, err = fmt.Println(string(data))
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func init() {
	triageCmd.Flags().StringVarP(&triageInputFile, "input", "i", "", "Scan report to triage (if not provided, reads from stdin)")
	triageCmd.Flags().StringVarP(&triageOutputFile, "output", "o", "", "Output file for triaged findings (if not provided, writes to stdout)")
	triageCmd.Flags().StringVarP(&triageConfig, "config", "c", "", "Path to a config.toml (default: embedded configuration)")
	triageCmd.Flags().StringVar(&triageCachePath, "cache", "", "Load the target's functions from this function cache instead of text artifacts")
	triageCmd.Flags().StringVarP(&triageBaseURL, "base-url", "b", "", "Base URL for OpenAI-compatible API (optional)")
	triageCmd.Flags().StringVarP(&triageModel, "model", "m", "", "Model to use (default: REMNANT_LLM_MODEL or gpt-4o-mini)")
	triageCmd.Flags().IntVar(&triageMaxTokens, "max-tokens", 0, "Maximum tokens per verdict")
	triageCmd.Flags().IntVarP(&triageConcurrency, "concurrency", "j", 0, "Number of concurrent LLM API calls")
	triageCmd.Flags().IntVar(&triageTimeout, "timeout", 300, "Timeout in seconds for the whole triage run")
	triageCmd.Flags().BoolVarP(&triageAll, "all", "a", false, "Output all findings with verdicts attached (default: only confirmed ones)")

	rootCmd.AddCommand(triageCmd)
}
