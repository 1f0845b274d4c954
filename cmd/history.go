package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rubiojr/yatra/pkg/history"
	"github.com/urfave/cli/v3"
)

// HistoryCommand creates the history command
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Manage recent searches",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent searches, newest first",
				Action: func(ctx context.Context, c *cli.Command) error {
					a, err := loadApp(c.String("config"))
					if err != nil {
						return err
					}
					defer a.Close()

					entries := a.history.Entries()
					if len(entries) == 0 {
						fmt.Println(noDataStyle.Render("No recent searches"))
						return nil
					}
					for i, e := range entries {
						fmt.Printf("%2d. %s\n", i+1, e)
					}
					updated, err := a.kv.UpdatedAt(history.Key)
					if err != nil {
						return err
					}
					if !updated.IsZero() {
						fmt.Println(metaStyle.Render("last updated " + updated.Local().Format(time.DateTime)))
					}
					return nil
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove one entry",
				ArgsUsage: "<entry>",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return fmt.Errorf("exactly one entry is required")
					}
					a, err := loadApp(c.String("config"))
					if err != nil {
						return err
					}
					defer a.Close()
					return a.history.Remove(c.Args().First())
				},
			},
			{
				Name:  "clear",
				Usage: "Forget all recent searches",
				Action: func(ctx context.Context, c *cli.Command) error {
					a, err := loadApp(c.String("config"))
					if err != nil {
						return err
					}
					defer a.Close()
					if err := a.history.Clear(); err != nil {
						return err
					}
					fmt.Println("Search history cleared")
					return nil
				},
			},
		},
	}
}
