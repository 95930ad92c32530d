package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/splitkit/splitkit/internal/store"
)

var (
	exportFormat string
	exportWhat   string
)

var exportCmd = &cobra.Command{
	Use:   "export <experiment>",
	Short: "Export raw assignment or event data",
	Long: `Export raw data in CSV or JSON format.

Examples:
  splitkit export button-color --what events --format csv > events.csv
  splitkit export button-color --what assignments --format json > assignments.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	exportCmd.Flags().StringVarP(&exportWhat, "what", "w", "events", "data to export (events or assignments)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}
	if exportWhat != "events" && exportWhat != "assignments" {
		return fmt.Errorf("invalid --what: must be 'events' or 'assignments'")
	}

	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		exp, err := findExperiment(ctx, s, args[0])
		if err != nil {
			return err
		}

		if exportWhat == "assignments" {
			assignments, err := s.ListAssignments(ctx, exp.ID)
			if err != nil {
				return fmt.Errorf("failed to list assignments: %w", err)
			}
			if exportFormat == "csv" {
				return exportAssignmentsCSV(assignments)
			}
			return writeJSONExport(map[string]any{"assignments": assignments})
		}

		events, err := s.ListEvents(ctx, exp.ID)
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}
		if exportFormat == "csv" {
			return exportEventsCSV(events)
		}
		return writeJSONExport(map[string]any{"events": events})
	})
}

func exportEventsCSV(events []*store.TrackingEvent) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "user_id", "event_type", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, e := range events {
		row := []string{
			strconv.FormatInt(e.Timestamp.Unix(), 10),
			e.UserID,
			e.EventType,
			strconv.FormatFloat(e.Value, 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return nil
}

func exportAssignmentsCSV(assignments []*store.Assignment) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if err := w.Write([]string{"assigned_at", "user_id", "variant_id", "variant_name"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, a := range assignments {
		row := []string{
			strconv.FormatInt(a.AssignedAt.Unix(), 10),
			a.UserID,
			a.Variant.ID,
			a.Variant.Name,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return nil
}

func writeJSONExport(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
