package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Cypher-0-shift/JurAI/internal/adapter/pipeline"
	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

var triggerFeatureID string

// triggerCmd starts a background core run that can later be caught up on.
var triggerCmd = &cobra.Command{
	Use:   "trigger [answers-file]",
	Short: "Start a background pipeline run without streaming it",
	Long: `Submits the answers to the pipeline's background core run and prints the
feature and run ids. Follow it afterwards with:

  jurywatch watch --feature-id <feature_id> --run-id <run_id>`,
	Args: cobra.ExactArgs(1),
	RunE: runTrigger,
}

func init() {
	triggerCmd.Flags().StringVar(&triggerFeatureID, "feature-id", "", "Reuse an existing feature id")
}

func runTrigger(cmd *cobra.Command, args []string) error {
	answers, err := loadAnswers(args[0])
	if err != nil {
		return err
	}

	client := pipeline.NewClient(cfg.API)
	resp, err := client.TriggerCore(cmd.Context(), &domain.CoreRunRequest{
		FeatureID:   triggerFeatureID,
		ContextData: answers,
	})
	if err != nil {
		return err
	}

	logger.Info("background run started",
		zap.String("feature_id", resp.FeatureID),
		zap.String("run_id", resp.RunID),
		zap.String("status", string(resp.Status)))
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", resp.FeatureID, resp.RunID)
	return nil
}
