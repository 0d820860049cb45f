package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	listLimit  int
	listOffset int
	listJSON   bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List fnord sightings in id order",
	RunE:  runList,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "l", 0, "page size (default from config)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "records to skip")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	limit := listLimit
	if limit <= 0 {
		limit = a.cfg.PageSize
	}

	recs, err := a.engine.List(ctx, listOffset, limit)
	if err != nil {
		return err
	}

	if listJSON {
		return outputJSON(recs)
	}
	if len(recs) == 0 {
		fmt.Println("No fnords recorded. They are still out there.")
		return nil
	}
	for _, rec := range recs {
		printSighting(rec)
		fmt.Println()
	}
	return nil
}
