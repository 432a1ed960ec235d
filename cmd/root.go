package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"apibench/internal/banner"
	"apibench/internal/bench"
	"apibench/internal/dummy"
	"apibench/internal/observability"
	"apibench/internal/report"
	"apibench/internal/runner"
	"apibench/internal/storage"
	"apibench/internal/technique"
	"apibench/internal/tui"
)

var (
	cfgFile string

	// CLI Flags
	techniqueName   string
	iterations      int
	concurrency     int
	outputDir       string
	baseURL         string
	timeoutSec      int
	includeFailures bool
	noTUI           bool
	logLevel        string
)

var rootCmd = &cobra.Command{
	Use:   "apibench",
	Short: "apibench - API Optimization Benchmark Harness",
	Long: `
apibench drives paired optimized vs. baseline request streams against a
target API for a fixed set of optimization techniques (caching, pooling,
pagination, ...), measures per-request latency, and writes comparative
JSON reports.

The target is identified by --base-url or the API_BASE_URL environment
variable. Run "apibench dummy" in another terminal for a local target.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBenchmark()
	},
}

func Execute() {
	// Custom Help with Banner
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(dummyCmd)
	rootCmd.AddCommand(historyCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.apibench.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error|quiet)")

	rootCmd.Flags().StringVarP(&techniqueName, "technique", "t", "", "Benchmark one technique (default: all)")
	rootCmd.Flags().IntVarP(&iterations, "iterations", "i", runner.DefaultIterations, "Sequential probes per variant")
	rootCmd.Flags().IntVarP(&concurrency, "concurrency", "c", runner.DefaultConcurrency, "Burst size for the concurrent phase")
	rootCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "reports", "Directory for JSON reports")
	rootCmd.Flags().StringVarP(&baseURL, "base-url", "u", "", "Target API base URL (env API_BASE_URL)")
	rootCmd.Flags().IntVar(&timeoutSec, "timeout", runner.DefaultTimeoutSec, "Per-request timeout in seconds")
	rootCmd.Flags().BoolVar(&includeFailures, "include-failures", false, "Count failed probes in latency statistics")
	rootCmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable the live progress view")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".apibench")
		}
	}
	viper.SetDefault("api_base_url", "http://localhost:8000")
	viper.BindEnv("api_base_url", "API_BASE_URL")
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

// --- Run ---

func runBenchmark() error {
	target := baseURL
	if target == "" {
		target = viper.GetString("api_base_url")
	}

	cfg := runner.Config{
		BaseURL:         target,
		Iterations:      iterations,
		Concurrency:     concurrency,
		Technique:       techniqueName,
		OutputDir:       outputDir,
		TimeoutSec:      timeoutSec,
		IncludeFailures: includeFailures,
		PacingMs:        runner.DefaultPacingMs,
	}

	useTUI := !noTUI && isatty.IsTerminal(os.Stdout.Fd())

	level := logLevel
	if useTUI && level == "info" {
		// Console logs fight the progress view for the terminal.
		level = "error"
	}
	log := observability.NewLogger(level)

	updates := make(bench.UpdateChan, 100)
	orch, err := bench.New(cfg, log, updates)
	if err != nil {
		return err
	}

	// Fail on an unwritable output directory before any probing.
	sink, err := report.NewSink(cfg.OutputDir, time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.CheckTarget(ctx); err != nil {
		return err
	}

	printHeader(cfg, len(orch.Techniques()))

	var result *bench.RunResult
	if useTUI {
		result, err = runWithTUI(ctx, cancel, orch, updates)
	} else {
		result, err = runPlain(ctx, orch, updates)
	}
	if err != nil {
		return err
	}

	if useTUI {
		fmt.Print(report.Render(result))
	} else {
		// Plain text for pipes and CI logs.
		fmt.Print(report.Summary(result))
	}

	if err := sink.Write(result); err != nil {
		return err
	}
	fmt.Printf("💾 Reports saved to %s\n", sink.Dir())

	saveHistory(result, cfg, log)
	return nil
}

func runWithTUI(ctx context.Context, cancel context.CancelFunc, orch *bench.Orchestrator, updates bench.UpdateChan) (*bench.RunResult, error) {
	m := tui.NewModel(updates, cancel)
	p := tea.NewProgram(m)

	var result *bench.RunResult
	var runErr error
	done := make(chan struct{})

	go func() {
		defer close(done)
		result, runErr = orch.Run(ctx)
		p.Send(tui.RunDoneMsg{Err: runErr})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("progress view: %w", err)
	}
	// Quitting the view cancels the run; wait for the orchestrator to unwind.
	<-done
	if runErr != nil {
		return nil, runErr
	}
	if result == nil {
		return nil, fmt.Errorf("run aborted")
	}
	return result, nil
}

func runPlain(ctx context.Context, orch *bench.Orchestrator, updates bench.UpdateChan) (*bench.RunResult, error) {
	done := make(chan struct{})
	go func() {
		// Drain updates and keep a modest heartbeat on stderr.
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		var last bench.Snapshot
		for {
			select {
			case <-done:
				return
			case s := <-updates:
				last = s
			case <-ticker.C:
				if last.Technique != "" {
					fmt.Fprintf(os.Stderr, "  %s (%s): %d/%d probes | P50 %.1fms P99 %.1fms\n",
						last.Technique, last.Variant, last.Completed, last.Total, last.P50Ms, last.P99Ms)
				}
			}
		}
	}()
	defer close(done)

	return orch.Run(ctx)
}

func printHeader(cfg runner.Config, techniques int) {
	fmt.Printf("\n🚀 STARTING API BENCHMARK\n")
	fmt.Printf("======================================================================\n")
	fmt.Printf("Target     : %s\n", cfg.BaseURL)
	fmt.Printf("Techniques : %d\n", techniques)
	fmt.Printf("Iterations : %d sequential + %d concurrent per variant\n", cfg.Iterations, cfg.Concurrency)
	fmt.Printf("Timeout    : %ds\n", cfg.TimeoutSec)
	fmt.Printf("======================================================================\n")
}

func saveHistory(result *bench.RunResult, cfg runner.Config, log zerolog.Logger) {
	store, err := storage.NewStore()
	if err != nil {
		log.Warn().Err(err).Msg("history unavailable")
		return
	}
	defer store.Close()

	if err := store.Save(storage.FromRun(result, cfg)); err != nil {
		log.Warn().Err(err).Msg("could not save history")
	}
}

// --- Dummy Subcommand ---

var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run the built-in dummy target API",
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		dummy.Start(dummy.ServerConfig{Port: port})
		select {}
	},
}

// --- History Subcommand ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past benchmark runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewStore()
		if err != nil {
			return err
		}
		defer store.Close()

		items := store.List()
		if len(items) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}

		for _, item := range items {
			fmt.Printf("%s  %s  (iterations=%d concurrency=%d)\n",
				item.Timestamp.Local().Format("2006-01-02 15:04:05"),
				item.ID, item.Config.Iterations, item.Config.Concurrency)
			for _, t := range item.Techniques {
				if t.Err != "" {
					fmt.Printf("    %-20s ERROR: %s\n", t.Technique, t.Err)
					continue
				}
				fmt.Printf("    %-20s %8.2fms → %8.2fms  (%.2fx)\n",
					t.Technique, t.BaselineAvgMs, t.OptimizedAvgMs, t.ImprovementFactor)
			}
		}
		return nil
	},
}

func init() {
	dummyCmd.Flags().IntP("port", "p", 8000, "Port to run the dummy API on")
}

func init() {
	rootCmd.RegisterFlagCompletionFunc("technique", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return technique.Names(), cobra.ShellCompDirectiveNoFileComp
	})
}
