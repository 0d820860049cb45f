package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var countJSON bool

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Show the total number of recorded fnord sightings",
	RunE:  runCount,
}

func init() {
	countCmd.Flags().BoolVar(&countJSON, "json", false, "output as JSON")
}

func runCount(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.engine.Count(ctx)
	if err != nil {
		return err
	}

	if countJSON {
		return outputJSON(map[string]int64{"count": n})
	}
	fmt.Printf("%d fnords recorded\n", n)
	return nil
}
