package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/apichanges/internal/annotate"
	"github.com/TobiSchelling/apichanges/internal/config"
	"github.com/TobiSchelling/apichanges/internal/corpus"
	"github.com/TobiSchelling/apichanges/internal/database"
	"github.com/TobiSchelling/apichanges/internal/jsonfile"
	"github.com/TobiSchelling/apichanges/internal/logger"
	"github.com/TobiSchelling/apichanges/internal/model"
	"github.com/TobiSchelling/apichanges/internal/pipeline"
	"github.com/TobiSchelling/apichanges/internal/report"
	"github.com/TobiSchelling/apichanges/internal/schedule"
	"github.com/TobiSchelling/apichanges/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "apichanges",
	Short:        "Classify API-change issues of an IoT platform",
	Long:         "apichanges ingests tracker issues, filters those about API changes, joins them with the integrations they touch and classifies them against an API-change taxonomy.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "info"
		if verbose {
			level = "debug"
		}
		logger.Setup(level, "console", os.Stderr)

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		if err := config.LoadDotEnv(".env", filepath.Join(config.ConfigDir(), ".env")); err != nil {
			return err
		}
		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if !verbose {
			level = cfg.Logging.Level
		}
		logger.Setup(level, cfg.Logging.Format, os.Stderr)
		log.Debug().Str("config", path).Str("data_dir", cfg.GetDataDir()).Msg("configuration loaded")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(classifyIntegrationsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("apichanges", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/apichanges/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the tracker repository, API keys and LLM provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show corpus, stage output and ledger status",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := cfg.Paths()

		store := corpus.NewStore(paths.Batches, cfg.Tracker.Repo)
		batches, issues, err := store.Stats()
		if err != nil {
			return fmt.Errorf("reading corpus: %w", err)
		}
		fmt.Printf("Data directory: %s\n\n", paths.Root)
		fmt.Println("Corpus:")
		fmt.Printf("  Repository: %s\n", cfg.Tracker.Repo)
		fmt.Printf("  Batches: %d in %s\n", batches, store.Dir())
		fmt.Printf("  Issues: %d\n", issues)

		fmt.Println("\nStage outputs:")
		for _, f := range []struct{ name, path string }{
			{"prefiltered", paths.Prefiltered},
			{"integrations", paths.Integrations},
			{"joined issues", paths.JoinedIssues},
			{"joined integrations", paths.JoinedIntegrations},
			{"classified", paths.Classified},
		} {
			state := "missing"
			if jsonfile.Exists(f.path) {
				state = "present"
			}
			fmt.Printf("  %-20s %s\n", f.name+":", state)
		}

		var classified model.IssueDocument
		if jsonfile.Exists(paths.Classified) {
			if err := jsonfile.Read(paths.Classified, &classified); err != nil {
				return err
			}
			r := report.Build(classified.Issues)
			fmt.Println("\nClassification:")
			fmt.Printf("  Classified: %d of %d (%d Unknown)\n", r.Classified, r.Issues, r.Unknown)
			fmt.Printf("  Annotated: %d\n", r.Annotated)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		fmt.Println("\nLedger:")
		fmt.Printf("  Runs: %d (%d failed)\n", stats.Runs, stats.FailedRuns)
		fmt.Printf("  Oracle attempts: %d (%d failed, %d skipped)\n", stats.Attempts, stats.FailedAttempts, stats.SkippedAttempts)
		if stats.LastRun != nil {
			fmt.Printf("  Last run: %s at %s (%s)\n", stats.LastRun.Stage, stats.LastRun.StartedAt.Local().Format("2006-01-02 15:04"), stats.LastRun.Status)
		}
		return nil
	},
}

// --- stage commands ---

var (
	ingestSchedule string
	ingestDaemon   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch the next batch of issues not yet stored",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
			spec := ingestSchedule
			if spec == "" && ingestDaemon {
				spec = cfg.Schedule.Ingest
				if spec == "" {
					return errors.New("--daemon needs schedule.ingest in the config")
				}
			}
			if spec == "" {
				return printStep(p.Ingest(ctx))
			}

			s, err := schedule.New("ingest", spec, func(ctx context.Context) error {
				return p.Ingest(ctx).Err
			})
			if err != nil {
				return err
			}
			fmt.Printf("Ingesting on schedule %q. Press Ctrl+C to stop.\n", spec)
			return s.Run(ctx)
		})
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSchedule, "schedule", "", "Run ingestion on a cron expression instead of once")
	ingestCmd.Flags().BoolVar(&ingestDaemon, "daemon", false, "Run ingestion on the schedule.ingest expression from the config")
}

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Keep the stored issues that mention API changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
			return printStep(p.Filter())
		})
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Fetch integration metadata from the documentation site",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
			return printStep(p.Scrape(ctx))
		})
	},
}

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Cross-reference filtered issues with known integrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
			return printStep(p.Join())
		})
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Assign taxonomy labels to the joined issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
			return printStep(p.Classify(ctx))
		})
	},
}

var classifyIntegrationsCmd = &cobra.Command{
	Use:   "classify-integrations",
	Short: "Assign an API type to the joined integrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
			return printStep(p.ClassifyIntegrations(ctx))
		})
	},
}

// --- run command ---

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline: ingest -> filter -> join -> classify",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
			var result *pipeline.Result
			if dryRun {
				result = p.DryRun()
			} else {
				result = p.Run(ctx)
			}

			for i, step := range result.Steps {
				fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
				if step.Err != nil {
					fmt.Printf("  Error: %v\n", step.Err)
				} else {
					fmt.Printf("  %s\n", step.Summary)
				}
			}

			if result.Failed() {
				return errors.New("pipeline stopped on error")
			}
			if !dryRun {
				fmt.Println("\nPipeline complete! Run 'apichanges report' or 'apichanges serve' to view the results.")
			}
			return nil
		})
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

// --- annotate command ---

var (
	annotateInput  string
	annotateOutput string
)

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Review classified issues and record agreement",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := annotate.Load(annotateInput)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		prompter := annotate.NewTerminalPrompter(os.Stdin, os.Stdout)
		err = annotate.NewSession(doc, annotateOutput, prompter, os.Stdout).Run(ctx)
		if errors.Is(err, annotate.ErrQuit) {
			return nil
		}
		return err
	},
}

func init() {
	annotateCmd.Flags().StringVar(&annotateInput, "input", "", "Path to the input JSON file")
	annotateCmd.Flags().StringVar(&annotateOutput, "output", "", "Path to save the annotated JSON file")
	annotateCmd.MarkFlagRequired("input")
	annotateCmd.MarkFlagRequired("output")
}

// --- report and serve commands ---

var (
	reportInput string
	reportHTML  bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize classified issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := reportInput
		if path == "" {
			path = cfg.Paths().Classified
		}
		doc, err := annotate.Load(path)
		if err != nil {
			return err
		}

		r := report.Build(doc.Issues)
		if !reportHTML {
			fmt.Print(r.Markdown())
			return nil
		}
		html, err := r.HTML()
		if err != nil {
			return err
		}
		fmt.Print(html)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportInput, "input", "", "Classified or annotated JSON file (default: classified.json in the data directory)")
	reportCmd.Flags().BoolVar(&reportHTML, "html", false, "Render HTML instead of Markdown")
}

var (
	servePort  int
	serveInput string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local report server",
	RunE: func(cmd *cobra.Command, args []string) error {
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		path := serveInput
		if path == "" {
			path = cfg.Paths().Classified
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(path, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
	serveCmd.Flags().StringVar(&serveInput, "input", "", "Classified JSON file to serve (default: classified.json in the data directory)")
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [subject]",
	Short: "List recent runs, or the oracle attempts for one subject",
	Long:  "Without arguments, list the most recent stage runs. With a subject such as issue#42 or an integration URL, list every oracle attempt recorded for it.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if len(args) == 1 {
			attempts, err := db.GetAttempts(args[0])
			if err != nil {
				return fmt.Errorf("getting attempts: %w", err)
			}
			if len(attempts) == 0 {
				fmt.Printf("No oracle attempts recorded for %s\n", args[0])
				return nil
			}
			for _, a := range attempts {
				strategy := a.Strategy
				if strategy == "" {
					strategy = "-"
				}
				fmt.Printf("%s  %-14s %-8s %s\n", a.AttemptedAt, strategy, a.Outcome, a.Detail)
			}
			return nil
		}

		runs, err := db.GetRecentRuns(historyLimit)
		if err != nil {
			return fmt.Errorf("getting runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}
		for _, r := range runs {
			summary := ""
			if r.Summary != nil {
				summary = *r.Summary
			}
			fmt.Printf("%s  %-22s %-8s %s\n", r.StartedAt.Local().Format("2006-01-02 15:04"), r.Stage, r.Status, summary)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to list")
}

// withPipeline opens the ledger, builds the pipeline and runs fn with a
// context cancelled on interrupt.
func withPipeline(fn func(ctx context.Context, p *pipeline.Pipeline) error) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, pipeline.New(cfg, db))
}

func printStep(step pipeline.StepResult) error {
	if step.Err != nil {
		return fmt.Errorf("%s: %w", step.Name, step.Err)
	}
	fmt.Println(step.Summary)
	return nil
}

func openDB() (*database.DB, error) {
	return database.Open(cfg.Paths().Ledger)
}
