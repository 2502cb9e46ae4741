package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
	"github.com/Cypher-0-shift/JurAI/internal/metrics"
	"github.com/Cypher-0-shift/JurAI/internal/session"
	"github.com/Cypher-0-shift/JurAI/internal/tui"
)

var (
	watchFeatureID string
	watchRunID     string
	watchPlain     bool
	watchExit      bool
)

// watchCmd follows one run in the terminal.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a pipeline run and show what each agent is thinking",
	Long: `Streams the pipeline for the pending submission, or catches up on a
finished run when --feature-id and --run-id are given.

Examples:
  jurywatch submit answers.yaml && jurywatch watch
  jurywatch watch --feature-id feat_1 --run-id run_1 --plain`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchFeatureID, "feature-id", "", "Feature id of the run to follow")
	watchCmd.Flags().StringVar(&watchRunID, "run-id", "", "Run id of the run to follow")
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "Log updates instead of drawing the terminal view")
	watchCmd.Flags().BoolVar(&watchExit, "exit", false, "Exit once the run completes")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	// The terminal view owns the screen, so session logs are dropped there.
	sessionLog := zap.NewNop()
	var opts []session.Option
	if watchPlain {
		sessionLog = logger
		opts = append(opts, session.WithListener(logUpdate))
	}

	m := newManager(store, sessionLog, metrics.New(), opts...)
	sessCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		m.Wait()
	}()

	s, err := m.Start(sessCtx, session.Route{FeatureID: watchFeatureID, RunID: watchRunID})
	if err != nil {
		return err
	}

	if watchPlain {
		return watchPlainly(ctx, cmd, s)
	}

	var viewOpts []tui.Option
	if watchExit {
		viewOpts = append(viewOpts, tui.WithExitOnComplete())
	}
	p := tea.NewProgram(tui.New(s, tui.Updates(s), viewOpts...), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("terminal view failed: %w", err)
	}

	printOutcome(cmd, s)
	return nil
}

func logUpdate(u domain.Update) {
	switch u.Kind {
	case domain.UpdateThought:
		if u.Entry != nil {
			logger.Info("thought",
				zap.String("agent", string(u.Agent)),
				zap.Int("ordinal", u.Entry.Ordinal),
				zap.String("source", string(u.Entry.Source)),
				zap.String("text", u.Entry.Text))
		}
	case domain.UpdateHeadline:
		logger.Info("headline", zap.String("text", u.Headline))
	case domain.UpdateActive:
		logger.Debug("active agent", zap.String("agent", string(u.Agent)))
	case domain.UpdatePhase:
		logger.Info("phase", zap.String("phase", string(u.Phase)))
	}
}

func watchPlainly(ctx context.Context, cmd *cobra.Command, s *session.Session) error {
	select {
	case <-s.Completed():
	case <-ctx.Done():
		return nil
	}

	printOutcome(cmd, s)
	if watchExit {
		return nil
	}

	<-ctx.Done()
	return nil
}

func printOutcome(cmd *cobra.Command, s *session.Session) {
	o := s.Outcome()
	if o == nil {
		return
	}
	line := fmt.Sprintf("%s: %s, %d entries", o.Key, o.Reason, o.Entries)
	if o.Error != "" {
		line += ", error: " + o.Error
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}
