// Command jurywatch follows compliance pipeline runs and reconciles the
// reasoning trace of the Jury, Critic and Judge agents.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Cypher-0-shift/JurAI/internal/adapter/pipeline"
	"github.com/Cypher-0-shift/JurAI/internal/config"
	"github.com/Cypher-0-shift/JurAI/internal/metrics"
	"github.com/Cypher-0-shift/JurAI/internal/repository"
	"github.com/Cypher-0-shift/JurAI/internal/session"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "jurywatch",
	Short: "Follow compliance pipeline runs and their agent reasoning",
	Long: `jurywatch consumes the event stream of the JurAI compliance pipeline and
keeps a reconciled trace of what the Jury, Critic and Judge agents were
thinking, whether the run is watched live or caught up on afterwards.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}

		logger, err = newLogger(cfg.Log.Level, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file (default: jurywatch.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(tailCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func openStore() (*repository.SQLiteStore, error) {
	store, err := repository.NewSQLiteStore(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	return store, nil
}

// newManager wires a session manager on the configured pipeline and store.
func newManager(store repository.Store, log *zap.Logger, mt *metrics.Metrics, opts ...session.Option) *session.Manager {
	base := []session.Option{
		session.WithLogger(log),
		session.WithMetrics(mt),
		session.WithSessionConfig(cfg.Session),
	}
	return session.NewManager(pipeline.NewClient(cfg.API), store, store, append(base, opts...)...)
}
