package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/splitkit/splitkit/internal/segment"
	"github.com/splitkit/splitkit/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		variants    string
		description string
		rulesJSON   string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new experiment",
		Long: `Create a new A/B experiment with weighted variants.

Variants are given as name=weight pairs; weights must sum to 100.
Omit --variants to define them interactively.

Examples:
  splitkit create button-color --variants "control=50,red=50"
  splitkit create checkout --variants "control=34,a=33,b=33" --description "Checkout flow test"
  splitkit create us-only --variants "control=50,treatment=50" \
    --rules '[{"field":"country","operator":"equals","value":"US"}]'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			var variantList []store.Variant
			var err error
			if variants == "" {
				variantList, err = promptVariants()
			} else {
				variantList, err = parseVariants(variants)
			}
			if err != nil {
				return err
			}

			exp := store.Experiment{
				Name:        name,
				Description: description,
				Variants:    variantList,
			}

			if rulesJSON != "" {
				if err := json.Unmarshal([]byte(rulesJSON), &exp.SegmentationRules); err != nil {
					return fmt.Errorf("invalid --rules JSON: %w", err)
				}
			}

			if err := exp.Validate(); err != nil {
				return err
			}
			if err := segment.Validate(exp.SegmentationRules); err != nil {
				return err
			}
			exp.Normalize(time.Now())

			return withStore(func(s *store.SQLiteStore) error {
				if err := s.CreateExperiment(context.Background(), &exp); err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				fmt.Printf("Created experiment '%s' (%s) with %d variants:\n", exp.Name, exp.ID, len(exp.Variants))
				for i, v := range exp.Variants {
					marker := ""
					if i == 0 {
						marker = " (control)"
					}
					fmt.Printf("  %d: %s %.0f%%%s\n", i, v.Name, v.Weight, marker)
				}
				if len(exp.SegmentationRules) > 0 {
					fmt.Printf("  %d segmentation rule(s)\n", len(exp.SegmentationRules))
				}
				fmt.Println("\nExperiment is in draft; start it with:")
				fmt.Printf("  curl -X POST http://localhost:8080/experiments/%s/start\n", exp.ID)

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variants, "variants", "v", "", "comma-separated name=weight pairs")
	cmd.Flags().StringVarP(&description, "description", "d", "", "experiment description")
	cmd.Flags().StringVar(&rulesJSON, "rules", "", "segmentation rules as a JSON array")

	return cmd
}

// parseVariants turns "control=50,red=50" into variants. The first entry is
// the control.
func parseVariants(spec string) ([]store.Variant, error) {
	parts := strings.Split(spec, ",")
	if len(parts) < 2 {
		return nil, fmt.Errorf("need at least 2 variants. Example: --variants \"control=50,treatment=50\"")
	}

	variants := make([]store.Variant, 0, len(parts))
	for _, part := range parts {
		name, weightStr, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return nil, fmt.Errorf("invalid variant %q: expected name=weight", part)
		}
		weight, err := strconv.ParseFloat(weightStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight for variant %q: %w", name, err)
		}
		variants = append(variants, store.Variant{Name: name, Weight: weight})
	}
	return variants, nil
}

// promptVariants walks through an interactive variant definition. The first
// variant entered becomes the control.
func promptVariants() ([]store.Variant, error) {
	var variants []store.Variant
	var sum float64

	for {
		label := fmt.Sprintf("Variant %d name", len(variants)+1)
		if len(variants) == 0 {
			label += " (control)"
		}
		namePrompt := promptui.Prompt{
			Label: label,
			Validate: func(input string) error {
				if strings.TrimSpace(input) == "" {
					return fmt.Errorf("name must not be empty")
				}
				return nil
			},
		}
		name, err := namePrompt.Run()
		if err != nil {
			return nil, err
		}

		weightPrompt := promptui.Prompt{
			Label:   fmt.Sprintf("Weight for %q (remaining %.0f)", name, 100-sum),
			Default: fmt.Sprintf("%.0f", 100-sum),
			Validate: func(input string) error {
				w, err := strconv.ParseFloat(input, 64)
				if err != nil {
					return fmt.Errorf("weight must be a number")
				}
				if w < 0 || w > 100 {
					return fmt.Errorf("weight must be between 0 and 100")
				}
				return nil
			},
		}
		weightStr, err := weightPrompt.Run()
		if err != nil {
			return nil, err
		}
		weight, _ := strconv.ParseFloat(weightStr, 64)

		variants = append(variants, store.Variant{Name: strings.TrimSpace(name), Weight: weight})
		sum += weight

		if sum >= 100 && len(variants) >= 2 {
			break
		}

		cont := promptui.Select{
			Label: "Add another variant?",
			Items: []string{"yes", "done"},
		}
		_, choice, err := cont.Run()
		if err != nil {
			return nil, err
		}
		if choice == "done" {
			break
		}
	}

	return variants, nil
}
