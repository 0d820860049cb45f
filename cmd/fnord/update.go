package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ananasregina/fnord/internal/fnord"
)

var (
	updWhen      string
	updWhere     string
	updSource    string
	updSummary   string
	updNotes     string
	updFallacies []string
	updJSON      bool
)

var updateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Update fields of an existing fnord sighting",
	Long: `Update fields of an existing fnord sighting. Only flags you pass
change; everything else is left alone.

Examples:
  fnord update 23 --summary "It was two fnords, actually"
  fnord update 23 --where "Portland, OR" --fallacy "slippery slope"`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().StringVarP(&updWhen, "when", "w", "", "new observation time, ISO8601")
	updateCmd.Flags().StringVar(&updWhere, "where", "", "new location")
	updateCmd.Flags().StringVarP(&updSource, "source", "s", "", "new source")
	updateCmd.Flags().StringVar(&updSummary, "summary", "", "new summary")
	updateCmd.Flags().StringVar(&updNotes, "notes", "", "replacement notes as a JSON object")
	updateCmd.Flags().StringSliceVar(&updFallacies, "fallacy", nil, "replacement fallacy list (repeatable)")
	updateCmd.Flags().BoolVar(&updJSON, "json", false, "output as JSON")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return err
	}

	var upd fnord.Update
	if cmd.Flags().Changed("when") {
		parsed, err := fnord.ParseWhen(updWhen)
		if err != nil {
			return err
		}
		upd.When = &parsed
	}
	if cmd.Flags().Changed("where") {
		upd.WherePlaceName = &updWhere
	}
	if cmd.Flags().Changed("source") {
		upd.Source = &updSource
	}
	if cmd.Flags().Changed("summary") {
		upd.Summary = &updSummary
	}
	if cmd.Flags().Changed("notes") {
		var notes map[string]any
		if err := json.Unmarshal([]byte(updNotes), &notes); err != nil {
			return fmt.Errorf("--notes must be a JSON object: %w", err)
		}
		upd.Notes = &notes
	}
	if cmd.Flags().Changed("fallacy") {
		upd.LogicalFallacies = &updFallacies
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.Update(ctx, id, upd)
	if err != nil {
		return err
	}

	if updJSON {
		return outputJSON(res)
	}
	fmt.Printf("Updated fnord #%d\n", id)
	printSighting(res.Sighting)
	return nil
}
