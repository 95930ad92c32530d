package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/splitkit/splitkit/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Long:  `List all experiments with their status and participation counts.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		experiments, err := s.ListExperiments(ctx)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if len(experiments) == 0 {
			fmt.Println("No experiments yet.")
			fmt.Println()
			fmt.Println("Create one with:")
			fmt.Println("  splitkit create my-test --variants \"control=50,treatment=50\"")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tVARIANTS\tPARTICIPANTS\tCONVERSIONS\tCREATED")

		for _, exp := range experiments {
			counts, err := s.GetVariantCounts(ctx, exp.ID)
			if err != nil {
				return fmt.Errorf("failed to get counts for %s: %w", exp.ID, err)
			}

			totalParticipants := 0
			totalConversions := 0
			for _, c := range counts {
				totalParticipants += c.Participants
				totalConversions += c.Conversions
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				shortID(exp.ID),
				exp.Name,
				strings.ToUpper(string(exp.Status)),
				len(exp.Variants),
				totalParticipants,
				totalConversions,
				exp.CreatedAt.Format("2006-01-02"),
			)
		}

		w.Flush()
		return nil
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
