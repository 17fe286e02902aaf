package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noperator/remnant/pkg/config"
	"github.com/noperator/remnant/pkg/dataset"
	"github.com/noperator/remnant/pkg/extract"
	"github.com/noperator/remnant/pkg/tags"
)

var (
	extractSource    string
	extractTarget    string
	extractConfig    string
	extractTagger    string
	extractCachePath string
	extractOutputDir string
)

var extractCmd = &cobra.Command{
	Use:   "extract [flags]",
	Short: "Extract target functions into scan artifacts",
	Long: `Extract every function from a target source tree into the three
representations the scanner matches against (raw, normalized, abstracted),
plus a content-hash table for search-space reduction.

Artifacts land in the dataset's target-function directory as
<target>_funcs.txt and <target>_hash.txt, where scan expects them.

Examples:
  # Extract a checkout of redis under the default dataset layout
  remnant extract -s ~/src/redis

  # Name the target explicitly and keep a reusable cache
  remnant extract -s ~/src/ffmpeg -t ffmpeg --cache ./funcache`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(extractConfig)
		if err != nil {
			return err
		}

		tagger, err := buildTagger(extractTagger)
		if err != nil {
			return err
		}

		extractor := extract.New(cfg.Extract, tagger)
		res, err := extractor.Extract(context.Background(), extractSource)
		if err != nil {
			return err
		}
		if extractTarget != "" {
			res.Target = extractTarget
		}

		outputDir := extractOutputDir
		if outputDir == "" {
			outputDir = cfg.Dataset.TargetFuncDir()
		}
		if err := extract.WriteArtifacts(outputDir, res.Target, res); err != nil {
			return err
		}

		if extractCachePath != "" {
			store, err := dataset.OpenFuncStore(extractCachePath, dataset.FuncStoreOptions{})
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.PutTarget(res); err != nil {
				return err
			}
		}

		fmt.Printf("extracted %d functions from %d files (%d unreadable, %d failed) -> %s\n",
			len(res.Funcs), res.Files, res.Unreadable, res.Failed, outputDir)
		return nil
	},
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.DefaultConfig()
}

func buildTagger(name string) (tags.Tagger, error) {
	switch name {
	case "treesitter", "":
		return tags.NewTreeSitterTagger(), nil
	case "ctags":
		return tags.NewCtagsTagger("")
	default:
		return nil, fmt.Errorf("unknown tagger %q (want treesitter or ctags)", name)
	}
}

func init() {
	extractCmd.Flags().StringVarP(&extractSource, "source", "s", "", "Path to the target source tree (required)")
	extractCmd.Flags().StringVarP(&extractTarget, "target", "t", "", "Target name for artifact files (default: source directory name)")
	extractCmd.Flags().StringVarP(&extractConfig, "config", "c", "", "Path to a config.toml (default: embedded configuration)")
	extractCmd.Flags().StringVar(&extractTagger, "tagger", "treesitter", "Structural tagger: treesitter or ctags")
	extractCmd.Flags().StringVar(&extractCachePath, "cache", "", "Path to a function cache to populate alongside the text artifacts")
	extractCmd.Flags().StringVarP(&extractOutputDir, "output-dir", "o", "", "Artifact output directory (default: dataset target-function directory)")
	extractCmd.MarkFlagRequired("source")

	rootCmd.AddCommand(extractCmd)
}
