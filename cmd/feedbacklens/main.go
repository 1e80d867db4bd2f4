package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/FeedbackLens/internal/analysis"
	"github.com/TobiSchelling/FeedbackLens/internal/config"
	"github.com/TobiSchelling/FeedbackLens/internal/database"
	"github.com/TobiSchelling/FeedbackLens/internal/ingest"
	"github.com/TobiSchelling/FeedbackLens/internal/llm"
	"github.com/TobiSchelling/FeedbackLens/internal/logging"
	"github.com/TobiSchelling/FeedbackLens/internal/report"
	"github.com/TobiSchelling/FeedbackLens/internal/server"
	"github.com/TobiSchelling/FeedbackLens/internal/session"
	"github.com/TobiSchelling/FeedbackLens/internal/story"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	dbPath     string
	cfg        *config.Config
	logger     = zap.NewNop()
)

func main() {
	if code := exitCode(os.Stderr, rootCmd.Execute()); code != 0 {
		os.Exit(code)
	}
}

// exitCode reports err on w once and maps it to the process exit status.
func exitCode(w io.Writer, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, config.ErrMissingCredential):
		fmt.Fprintf(w, "Fatal: %v\n", err)
		return 2
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
		return 1
	}
}

var rootCmd = &cobra.Command{
	Use:           "feedbacklens",
	Short:         "Customer feedback cause analysis",
	Long:          "FeedbackLens uses a language model to extract the causes behind customer feedback and report recurring issues.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init and version run without configuration.
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Format, verbose)
		if err != nil {
			return fmt.Errorf("configuring logging: %w", err)
		}
		if path != "" {
			logger.Debug("loaded config", zap.String("path", path))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	storyCmd.Flags().StringVarP(&storyType, "type", "t", story.Types[0], "Story type")
	storyCmd.Flags().StringVarP(&storyGenre, "genre", "g", story.Genres[0], "Story genre")

	for _, c := range []*cobra.Command{analyzeCmd, bulkCmd, importCmd} {
		c.Flags().StringVar(&dbPath, "db", "", "Keep feedback in this SQLite file instead of memory")
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(bulkCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(storyCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "feedbacklens", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/feedbacklens/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created config: %s\n", target)
		fmt.Fprintln(cmd.OutOrStdout(), "Edit it to choose the model provider and review feeds.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		heading(out, "Model")
		fmt.Fprintf(out, "  Provider: %s\n", cfg.LLM.Provider)
		fmt.Fprintf(out, "  Model: %s\n", modelName(cfg.LLM))
		if cfg.LLM.NeedsCredential() {
			if _, err := cfg.LLM.APIKey(); err != nil {
				fmt.Fprintf(out, "  Credential: missing (%s)\n", cfg.LLM.APIKeyEnv)
			} else {
				fmt.Fprintf(out, "  Credential: set (%s)\n", cfg.LLM.APIKeyEnv)
			}
		}
		fmt.Fprintf(out, "  Rate limit: %d requests/minute\n", cfg.LLM.RequestsPerMinute)

		heading(out, "Server")
		fmt.Fprintf(out, "  Port: %d\n", cfg.Server.Port)
		fmt.Fprintf(out, "  Session idle timeout: %s\n", cfg.Session.IdleTimeout)

		heading(out, "Review feeds")
		if len(cfg.Import.Feeds) == 0 {
			fmt.Fprintln(out, "  none")
		}
		for _, f := range cfg.Import.Feeds {
			fmt.Fprintf(out, "  %s  %s\n", f.Name, f.URL)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := newModelClient(ctx)
		if err != nil {
			return err
		}

		sessions := session.NewManager(cfg.Session.IdleTimeout, logger)
		defer sessions.Close()

		srv, err := server.New(server.Options{
			Sessions: sessions,
			Analyzer: analysis.NewAnalyzer(client, logger),
			Stories:  story.NewGenerator(client, logger),
			Importer: ingest.NewImporterFromConfig(cfg.Import, logger),
			Feeds:    cfg.Import.Feeds,
			Log:      logger,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "FeedbackLens: http://127.0.0.1:%d\n", cfg.Server.Port)
		return server.Serve(ctx, srv, cfg.Server.Port, logger)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [feedback]",
	Short: "Extract the causes behind one piece of feedback (reads stdin without an argument)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := ""
		if len(args) == 1 {
			text = args[0]
		} else {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			text = string(data)
		}

		ctx := cmd.Context()
		client, err := newModelClient(ctx)
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		var sub analysis.Submission
		err = withSpinner(cmd.ErrOrStderr(), " Analyzing your feedback...", func() error {
			var err error
			sub, err = analysis.NewAnalyzer(client, logger).SubmitFeedback(ctx, store, text)
			return err
		})
		if err != nil {
			return err
		}

		printSubmission(cmd.OutOrStdout(), cmd.ErrOrStderr(), sub)
		return nil
	},
}

var bulkCmd = &cobra.Command{
	Use:   "bulk <file>",
	Short: "Analyze every line of a file as feedback, then report recurring issues",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lines, err := readFeedbackFile(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		client, err := newModelClient(ctx)
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		analyzer := analysis.NewAnalyzer(client, logger)
		var rep *analysis.BulkReport
		err = withSpinner(cmd.ErrOrStderr(), fmt.Sprintf(" Analyzing %d feedback entries...", len(lines)), func() error {
			for _, line := range lines {
				if _, err := analyzer.SubmitFeedback(ctx, store, line); err != nil {
					return err
				}
			}
			var err error
			rep, err = analyzer.AnalyzeBulk(ctx, store)
			return err
		})
		if err != nil {
			return err
		}

		metrics, err := report.Collect(ctx, store)
		if err != nil {
			return err
		}
		printMetrics(cmd.OutOrStdout(), metrics)
		printBulkReport(cmd.OutOrStdout(), cmd.ErrOrStderr(), rep)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import reviews from the configured feeds and count their causes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Import.Feeds) == 0 {
			return errors.New("no review feeds configured (import.feeds)")
		}

		ctx := cmd.Context()
		client, err := newModelClient(ctx)
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		importer := ingest.NewImporterFromConfig(cfg.Import, logger)
		var res ingest.Result
		err = withSpinner(cmd.ErrOrStderr(), " Importing reviews...", func() error {
			reviews, err := importer.Import(ctx, cfg.Import.Feeds)
			if err != nil {
				return err
			}
			res, err = ingest.SubmitAll(ctx, analysis.NewAnalyzer(client, logger), store, reviews)
			return err
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Imported %d reviews (%d causes, %d model failures)\n", res.Submitted, res.Causes, res.UpstreamFailed)

		metrics, err := report.Collect(ctx, store)
		if err != nil {
			return err
		}
		counts, err := store.CauseCounts(ctx)
		if err != nil {
			return err
		}
		printMetrics(out, metrics)
		printTopCauses(out, report.TopCauses(counts, report.DefaultTopN))
		return nil
	},
}

var (
	storyType  string
	storyGenre string
)

var storyCmd = &cobra.Command{
	Use:   "story <prompt>",
	Short: "Generate a story continuation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")
		if err := story.Validate(storyType, storyGenre, prompt); err != nil {
			return err
		}

		ctx := cmd.Context()
		client, err := newModelClient(ctx)
		if err != nil {
			return err
		}

		var text string
		err = withSpinner(cmd.ErrOrStderr(), " Writing...", func() error {
			var err error
			text, err = story.NewGenerator(client, logger).Continue(ctx, story.NewMemory(), storyType, storyGenre, prompt)
			return err
		})
		if err != nil {
			return err
		}

		heading(cmd.OutOrStdout(), "Story Continuation")
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

// newModelClient builds the model client. A provider that needs a credential
// fails with config.ErrMissingCredential when it is not set.
func newModelClient(ctx context.Context) (*llm.Client, error) {
	apiKey, err := cfg.LLM.APIKey()
	if err != nil {
		return nil, err
	}
	provider, err := llm.CreateProvider(ctx, cfg.LLM, apiKey, logger)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(provider, llm.Options{
		MaxTokens:         cfg.LLM.MaxTokens,
		Timeout:           cfg.LLM.Timeout,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	}, logger), nil
}

// openStore opens the --db file, or a fresh in-memory store without one.
func openStore() (*database.DB, error) {
	path := dbPath
	if path == "" {
		path = database.MemoryPath
	}
	store, err := database.Open(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("opened feedback store", zap.String("path", store.Path()))
	return store, nil
}

func modelName(l config.LLM) string {
	if strings.ToLower(l.Provider) == "openai" {
		return l.OpenAIModel
	}
	return l.Model
}

// readFeedbackFile returns the non-blank lines of path.
func readFeedbackFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening feedback file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading feedback file: %w", err)
	}
	if len(lines) == 0 {
		return nil, analysis.ErrNoFeedback
	}
	return lines, nil
}
