package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cortexai/opsinsight/internal/agent"
	"github.com/cortexai/opsinsight/internal/config"
	"github.com/cortexai/opsinsight/internal/server"
	"github.com/cortexai/opsinsight/internal/service"
)

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "opsinsight",
	Short: "Answer hospital operations questions with SQL, charts and a written analysis",
	Long: `opsinsight turns a natural-language question into gated SQL against the
operational database, runs it, builds chart specifications from the results and
writes a Markdown analysis.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			if err := os.Setenv("OPSINSIGHT_CONFIG", configPath); err != nil {
				return err
			}
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		setupLogging(cfg, verbose)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var (
	askFile     string
	askSource   string
	askTimeout  time.Duration
	askMaxRows  int
	askPrettify bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and print the JSON response",
	Long: `Answers a single question through the full pipeline and prints the response
object on stdout.

Example:
  opsinsight ask "Average DRG weight by department"
  opsinsight ask --file visits.xlsx "show the first 5 rows"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.toml or .json)")

	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "spreadsheet, CSV or text file the question refers to")
	askCmd.Flags().StringVar(&askSource, "source", "", `data source preference: "file", "database" or "both"`)
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 5*time.Minute, "overall deadline")
	askCmd.Flags().IntVar(&askMaxRows, "max-rows", 0, "rows loaded from --file (0 = config max_rows)")
	askCmd.Flags().BoolVar(&askPrettify, "pretty", true, "indent JSON output")

	rootCmd.AddCommand(serveCmd, askCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(cfg *config.Config, verbose bool) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	comps, err := server.NewComponents(cfg, nil)
	if err != nil {
		return err
	}
	srv := server.New(cfg, comps)
	log.Info().Str("env", cfg.Environment).Int("port", cfg.Port).Msg("starting opsinsight")
	return srv.Run(ctx)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), askTimeout)
	defer cancel()

	var files service.FileProvider
	if askFile != "" {
		maxRows := askMaxRows
		if maxRows <= 0 {
			maxRows = cfg.MaxRows
		}
		f, err := service.LoadFile(askFile, maxRows)
		if err != nil {
			return fmt.Errorf("load %s: %w", askFile, err)
		}
		files = service.StaticFile{File: f}
	}
	if askSource != "" {
		if _, ok := service.ParsePreference(askSource); !ok {
			return fmt.Errorf(`--source must be "file", "database" or "both", got %q`, askSource)
		}
	}

	comps, err := server.NewComponents(cfg, files)
	if err != nil {
		return err
	}

	resp := comps.Orchestrator.Ask(ctx, agent.Question{
		Text:       strings.Join(args, " "),
		Preference: askSource,
	})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	if askPrettify {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if resp.Type == agent.TypeError {
		return fmt.Errorf("question could not be answered")
	}
	return nil
}
