package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	searchLimit  int
	searchOffset int
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search fnord sightings",
	Long: `Search fnord sightings by meaning. When the embedding endpoint is
unreachable, or the backend stores no vectors, falls back to substring
matching over summary, source and place name.

Examples:
  fnord search "surveillance themes"
  fnord search Seattle --limit 5 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 0, "maximum results (default from config)")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "results to skip")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	limit := searchLimit
	if limit <= 0 {
		limit = a.cfg.PageSize
	}

	res, err := a.engine.Search(ctx, args[0], searchOffset, limit)
	if err != nil {
		return err
	}

	if searchJSON {
		return outputJSON(res)
	}

	if len(res.Sightings) == 0 {
		fmt.Printf("No fnords match %q\n", args[0])
		return nil
	}

	mode := "lexical"
	if res.Semantic {
		mode = "semantic"
	}
	fmt.Printf("%d of %d matches (%s)\n\n", len(res.Sightings), res.Total, mode)
	for _, rec := range res.Sightings {
		printSighting(rec)
		fmt.Println()
	}
	return nil
}
