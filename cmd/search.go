package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/rubiojr/yatra/pkg/core"
	"github.com/urfave/cli/v3"
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Run a single ranked search",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print results as JSON",
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Record the query in search history",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.Join(c.Args().Slice(), " ")
			if core.NormalizeQuery(query) == "" {
				return fmt.Errorf("a search query is required")
			}
			return searchPlaces(ctx, c.String("config"), query, c.Bool("json"), c.Bool("save"))
		},
	}
}

func searchPlaces(ctx context.Context, configPath, query string, asJSON, save bool) error {
	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.dispatcher.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("searching %q: %w", query, err)
	}

	if save {
		if err := a.history.Commit(query); err != nil {
			return fmt.Errorf("saving history: %w", err)
		}
	}

	if asJSON {
		if results == nil {
			results = []core.RankedItem{}
		}
		return printJSON(results)
	}

	if len(results) == 0 {
		fmt.Println(noDataStyle.Render("No results found"))
		return nil
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("%d results for %q", len(results), core.NormalizeQuery(query))))
	for i, r := range results {
		fmt.Printf("%2d. %s %s %s\n", i+1,
			headerStyle.Render(r.Name),
			metaStyle.Render(fmt.Sprintf("[%s] %s", r.Type, r.Location)),
			scoreStyle.Render(fmt.Sprintf("%d", r.Score)))
	}
	return nil
}
