package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/splitkit/splitkit/internal/stats"
	"github.com/splitkit/splitkit/internal/store"
)

func init() {
	rootCmd.AddCommand(newWinnerCmd())
}

func newWinnerCmd() *cobra.Command {
	var complete bool

	cmd := &cobra.Command{
		Use:   "winner <experiment>",
		Short: "Show the current winner of an experiment",
		Long: `Show the variant with the highest conversion rate and the confidence
that it beats the control. With --complete, the experiment is stopped.

Example:
  splitkit winner button-color --complete`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

				result := stats.Calculate(exp, assignments, events, stats.Options{})

				var winner *stats.VariantResult
				for i := range result.Variants {
					if result.Variants[i].IsWinner {
						winner = &result.Variants[i]
						break
					}
				}
				if winner == nil {
					return fmt.Errorf("experiment has no variants")
				}

				fmt.Printf("Winner of '%s': \"%s\" at %.2f%% conversion (%+.1f%% lift)\n",
					exp.Name, winner.Name, winner.ConversionRate, winner.Lift)
				if c := result.Comparison; c != nil {
					fmt.Printf("Confidence vs control: %.1f%%\n", c.ConfidenceLevel*100)
					if !c.Confident {
						fmt.Println("Warning: not yet statistically significant.")
					}
				}

				if !complete {
					return nil
				}

				if exp.Status != store.StatusRunning {
					return fmt.Errorf("experiment is not running (current status: %s)", exp.Status)
				}

				now := time.Now()
				exp.Status = store.StatusCompleted
				exp.EndDate = &now
				exp.UpdatedAt = now
				if err := s.UpdateExperiment(ctx, exp); err != nil {
					return fmt.Errorf("failed to complete experiment: %w", err)
				}
				fmt.Println("Experiment has been marked as completed.")

				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&complete, "complete", false, "stop the experiment after declaring the winner")

	return cmd
}
