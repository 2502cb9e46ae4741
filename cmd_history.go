package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

var historyLimit int

// historyCmd lists archived session outcomes.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List how past sessions completed",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of outcomes to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	outcomes, err := store.ListOutcomes(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no sessions recorded yet")
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), outcomeTable(outcomes))
	return nil
}

func outcomeTable(outcomes []domain.Outcome) string {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("COMPLETED", "FEATURE", "RUN", "MODE", "REASON", "ENTRIES", "HEADLINE").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})

	for _, o := range outcomes {
		headline := o.Headline
		if o.Error != "" {
			headline = "error: " + o.Error
		}
		t.Row(
			o.CompletedAt.Local().Format("2006-01-02 15:04:05"),
			orDash(o.FeatureID),
			orDash(o.RunID),
			string(o.Mode),
			string(o.Reason),
			strconv.Itoa(o.Entries),
			truncate(headline, 48),
		)
	}
	return t.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
