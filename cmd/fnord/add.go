package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ananasregina/fnord/internal/fnord"
)

var (
	addWhen      string
	addWhere     string
	addSource    string
	addNotes     string
	addFallacies []string
	addJSON      bool
)

var addCmd = &cobra.Command{
	Use:   "add [summary]",
	Short: "Record a new fnord sighting",
	Long: `Record a new fnord sighting.

Examples:
  fnord add "Saw FNORD spray-painted under the overpass" --source Walk
  fnord add "Hidden message in a press release" --source "News Article" \
      --where "Seattle, WA" --fallacy "appeal to authority"`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVarP(&addWhen, "when", "w", "", "observation time, ISO8601 (default: now)")
	addCmd.Flags().StringVar(&addWhere, "where", "", "human-readable location")
	addCmd.Flags().StringVarP(&addSource, "source", "s", "", "where the fnord was found (required)")
	addCmd.Flags().StringVar(&addNotes, "notes", "", "structured metadata as a JSON object")
	addCmd.Flags().StringSliceVar(&addFallacies, "fallacy", nil, "logical fallacy (repeatable)")
	addCmd.Flags().BoolVar(&addJSON, "json", false, "output as JSON")
	addCmd.MarkFlagRequired("source")
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	when := time.Now().UTC()
	if addWhen != "" {
		parsed, err := fnord.ParseWhen(addWhen)
		if err != nil {
			return err
		}
		when = parsed
	}

	var notes map[string]any
	if addNotes != "" {
		if err := json.Unmarshal([]byte(addNotes), &notes); err != nil {
			return fmt.Errorf("--notes must be a JSON object: %w", err)
		}
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.Create(ctx, &fnord.Sighting{
		When:             when,
		WherePlaceName:   addWhere,
		Source:           addSource,
		Summary:          args[0],
		Notes:            notes,
		LogicalFallacies: addFallacies,
	})
	if err != nil {
		return err
	}

	if addJSON {
		return outputJSON(res)
	}
	fmt.Printf("Recorded fnord #%d\n", res.Sighting.ID)
	if res.EmbeddingSkipped {
		fmt.Println("Warning: embedding endpoint unavailable, stored without a vector")
	}
	return nil
}
