package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matthewjhunter/tidings"
	"github.com/matthewjhunter/tidings/internal/output"
	"github.com/matthewjhunter/tidings/internal/storage"
)

const bulkImportEnv = "TIDINGS_ALLOW_BULK_IMPORT"

var (
	configPath   string
	cfg          *storage.Config
	outputFormat string
	logger       *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tidings",
		Short: "Korean Christian news tracker with cached AI summaries",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path, .yaml or .toml (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "output format: json, text, human (default: json)")

	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(summarizeCmd())
	rootCmd.AddCommand(regenerateCmd())
	rootCmd.AddCommand(repopulateCmd())
	rootCmd.AddCommand(bulkImportCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(initConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	// .env is optional
	_ = godotenv.Load()

	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	var err error
	cfg, err = storage.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err = newLogger(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	return nil
}

func newLogger(mode string) (*zap.Logger, error) {
	switch strings.ToLower(mode) {
	case "development", "dev":
		return zap.NewDevelopment()
	case "off", "none":
		return zap.NewNop(), nil
	default:
		return zap.NewProduction()
	}
}

// openEngine builds an engine from the loaded config. The caller closes it.
func openEngine() (*tidings.Engine, error) {
	engineCfg := tidings.NewEngineConfig(cfg)
	engineCfg.AllowBulkImport = os.Getenv(bulkImportEnv) == "1"
	engineCfg.Logger = logger

	engine, err := tidings.NewEngine(engineCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Fetch the listing once and store new articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.CheckForNew(cmd.Context())
			if err != nil {
				return err
			}
			return formatter.OutputCheckResult(result)
		},
	}
}

func listCmd() *cobra.Command {
	var page, perPage int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored articles, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.Page(page, perPage)
			if err != nil {
				return err
			}
			return formatter.OutputPage(result)
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number")
	cmd.Flags().IntVarP(&perPage, "per-page", "n", storage.DefaultPerPage, "articles per page (1-100)")
	return cmd
}

func backfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Look up publication dates for articles stored without one",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.Backfill(cmd.Context())
			if err != nil {
				return err
			}
			return formatter.OutputBackfill(result)
		},
	}
}

func summarizeCmd() *cobra.Command {
	var top int
	var title string
	cmd := &cobra.Command{
		Use:   "summarize [url]",
		Short: "Summarize one article, or the newest articles with --top",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			if len(args) == 0 && top <= 0 {
				return errors.New("either an article URL or --top is required")
			}

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if len(args) == 0 {
				summaries, err := engine.TopSummaries(cmd.Context(), top)
				if err != nil {
					return err
				}
				return formatter.OutputSummaries(summaries)
			}

			result, err := engine.GetOrCreateSummary(cmd.Context(), args[0], title)
			if err != nil {
				return err
			}
			return formatter.OutputSummaryResult(args[0], result)
		},
	}
	cmd.Flags().IntVar(&top, "top", 0, "summarize the N newest articles")
	cmd.Flags().StringVar(&title, "title", "", "title to use in the prompt (default: stored title)")
	return cmd
}

func regenerateCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "regenerate <url>",
		Short: "Regenerate an article's summary, replacing the cached one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.ForceRegenerate(cmd.Context(), args[0], title)
			if err != nil {
				return err
			}
			return formatter.OutputSummaryResult(args[0], result)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title to use in the prompt (default: stored title)")
	return cmd
}

func repopulateCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "repopulate",
		Short: "Regenerate summaries for the newest articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			if limit <= 0 {
				limit = cfg.Summaries.RepopulateLimit
			}

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			result, err := engine.RepopulateSummaries(ctx, limit)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return formatter.OutputRepopulate(result)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "number of articles (default: summaries.repopulate_limit)")
	return cmd
}

func bulkImportCmd() *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "bulk-import",
		Short: "Ingest an older listing page (requires " + bulkImportEnv + "=1)",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.BulkImport(cmd.Context(), page)
			if errors.Is(err, tidings.ErrBulkImportDisabled) {
				formatter.Warning("bulk import is disabled; set %s=1 to enable it", bulkImportEnv)
				return nil
			}
			if err != nil {
				return err
			}
			return formatter.OutputCheckResult(result)
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 2, "listing page to import")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show collection totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			stats, err := engine.Stats()
			if err != nil {
				return err
			}
			return formatter.OutputStats(stats)
		},
	}
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config file already exists: %s", configPath)
			}

			if err := storage.SaveConfig(storage.DefaultConfig(), configPath); err != nil {
				return err
			}

			fmt.Printf("Created default config at %s\n", configPath)
			return nil
		},
	}
}
