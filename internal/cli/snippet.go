package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitkit/splitkit/internal/store"
)

func init() {
	rootCmd.AddCommand(newSnippetCmd())
}

func newSnippetCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "snippet <experiment>",
		Short: "Print integration code for an experiment",
		Long:  "Print copy-paste-ready client code for assigning users and tracking conversions.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				exp, err := findExperiment(context.Background(), s, args[0])
				if err != nil {
					return err
				}

				fmt.Printf("// Assign the current user to '%s' and apply the variant config.\n", exp.Name)
				fmt.Printf(`const res = await fetch("%s/experiments/%s/assign", {
  method: "POST",
  headers: { "Content-Type": "application/json" },
  body: JSON.stringify({ userId, attributes }),
});
const { eligible, variant } = await res.json();
if (eligible) {
  applyVariant(variant.name, variant.config);
}
`, serverURL, exp.ID)
				fmt.Println()
				fmt.Println("// Report a conversion for the same user.")
				fmt.Printf(`await fetch("%s/experiments/%s/track", {
  method: "POST",
  headers: { "Content-Type": "application/json" },
  body: JSON.stringify({ userId, eventType: "conversion" }),
});
`, serverURL, exp.ID)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", getEnvOrDefault("SK_SERVER_URL", "http://localhost:8080"), "base URL of the splitkit server")

	return cmd
}
