package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/splitkit/splitkit/internal/stats"
	"github.com/splitkit/splitkit/internal/store"
)

var uniqueConversions bool

var resultsCmd = &cobra.Command{
	Use:   "results <experiment>",
	Short: "Show detailed results for an experiment",
	Long: `Show per-variant results: participants, conversions, conversion rate,
lift against the control, confidence intervals, and the winner so far.

The experiment can be given by id, id prefix, or name.`,
	Args: cobra.ExactArgs(1),
	RunE: runResults,
}

func init() {
	resultsCmd.Flags().BoolVar(&uniqueConversions, "unique", false, "count at most one conversion per user")
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		exp, err := findExperiment(ctx, s, args[0])
		if err != nil {
			return err
		}

		assignments, err := s.ListAssignments(ctx, exp.ID)
		if err != nil {
			return fmt.Errorf("failed to list assignments: %w", err)
		}
		events, err := s.ListEvents(ctx, exp.ID)
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}

		result := stats.Calculate(exp, assignments, events, stats.Options{
			UniquePerUser: uniqueConversions,
		})

		fmt.Printf("EXPERIMENT: %s\n", exp.Name)
		fmt.Printf("STATUS: %s\n", exp.Status)
		if exp.Description != "" {
			fmt.Printf("DESCRIPTION: %s\n", exp.Description)
		}
		fmt.Printf("CREATED: %s\n", exp.CreatedAt.Format("2006-01-02"))
		if result.OverallResults.Duration > 0 {
			fmt.Printf("RUNNING FOR: %d day(s)\n", result.OverallResults.Duration)
		}
		fmt.Println()

		fmt.Println("VARIANT           PARTICIPANTS  CONVERSIONS  RATE     LIFT     95% CI")
		fmt.Println(strings.Repeat("─", 72))

		for _, v := range result.Variants {
			indicator := ""
			if v.IsWinner && len(result.Variants) > 1 {
				indicator = " ← LEADING"
			}

			ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.ConfidenceInterval.Lower, v.ConfidenceInterval.Upper)
			if v.Participants == 0 {
				ciStr = "N/A"
			}

			name := v.Name
			if len(name) > 16 {
				name = name[:13] + "..."
			}

			fmt.Printf("%-16s  %-12d  %-11d  %-7s  %-7s  %s%s\n",
				name,
				v.Participants,
				v.Conversions,
				fmt.Sprintf("%.2f%%", v.ConversionRate),
				fmt.Sprintf("%+.1f%%", v.Lift),
				ciStr,
				indicator,
			)
		}

		fmt.Println()
		fmt.Printf("Total: %d participants, %d conversions\n",
			result.OverallResults.TotalParticipants, result.OverallResults.TotalConversions)

		if c := result.Comparison; c != nil {
			confPct := c.ConfidenceLevel * 100
			leadingName := variantName(result, c.LeadingVariantID)
			switch {
			case c.Confident:
				fmt.Printf("Statistical significance: %.1f%% confident \"%s\" is the winner\n", confPct, leadingName)
			case confPct >= 90:
				fmt.Printf("Statistical significance: %.1f%% confident \"%s\" beats control (not yet significant)\n", confPct, leadingName)
			default:
				fmt.Println("Statistical significance: Not enough data to determine a winner")
			}
		}

		return nil
	})
}

func variantName(r *stats.Results, variantID string) string {
	for _, v := range r.Variants {
		if v.VariantID == variantID {
			return v.Name
		}
	}
	return variantID
}
