package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

var submitFeatureID string

// submitCmd caches a questionnaire submission for the next watch session.
var submitCmd = &cobra.Command{
	Use:   "submit [answers-file]",
	Short: "Cache a questionnaire submission to be streamed by the next watch",
	Long: `Reads questionnaire answers from a YAML or JSON file and stores them as
the pending submission. The next "jurywatch watch" without a run id streams
the pipeline for it and removes it once the run is done.

The file maps question ids to an answer string or a list of strings:

  q1: "Stores location history"
  q2: ["EU", "US"]`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitFeatureID, "feature-id", "", "Feature id to attach to the submission")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	answers, err := loadAnswers(args[0])
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	p := &domain.PendingSubmission{
		ID:        uuid.New().String(),
		FeatureID: submitFeatureID,
		Context:   answers,
		CreatedAt: time.Now(),
	}
	if err := store.SavePending(cmd.Context(), p); err != nil {
		return err
	}

	logger.Info("submission cached",
		zap.String("pending_id", p.ID),
		zap.String("feature_id", p.FeatureID),
		zap.Int("answers", len(answers)))
	fmt.Fprintln(cmd.OutOrStdout(), p.ID)
	return nil
}

// loadAnswers reads a questionnaire file. JSON files parse as YAML.
func loadAnswers(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read answers file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse answers file: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("answers file %s has no answers", path)
	}

	return normalizeAnswers(raw)
}

// normalizeAnswers keeps answers as a string or an ordered list of strings.
// Other scalars are converted to their text form.
func normalizeAnswers(raw map[string]any) (map[string]any, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(raw))
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			out[k] = v
		case []any:
			list := make([]string, 0, len(v))
			for i, item := range v {
				s, ok := scalarText(item)
				if !ok {
					return nil, fmt.Errorf("answer %s[%d]: expected a scalar, got %T", k, i, item)
				}
				list = append(list, s)
			}
			out[k] = list
		default:
			s, ok := scalarText(v)
			if !ok {
				return nil, fmt.Errorf("answer %s: expected a string or a list of strings, got %T", k, v)
			}
			out[k] = s
		}
	}
	return out, nil
}

func scalarText(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case int, int64, float64, bool:
		return fmt.Sprint(v), true
	case nil:
		return "", true
	default:
		return "", false
	}
}
