package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rubiojr/yatra/cmd"
	"github.com/rubiojr/yatra/pkg/config"
	"github.com/rubiojr/yatra/pkg/log"
	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:  "yatra",
		Usage: "Search-as-you-type for Nepal destinations, with exchange rates and weather",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
				Value: false,
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Configuration file path",
				Value: getDefaultConfigPathOrExit(),
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			log.SetGlobalDebug(c.Bool("debug"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			cmd.InitCommand(),
			cmd.SearchCommand(),
			cmd.SuggestCommand(),
			cmd.ServeCommand(),
			cmd.RatesCommand(),
			cmd.WeatherCommand(),
			cmd.HistoryCommand(),
			cmd.IPCCommand(),
			cmd.VersionCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.For("yatra").Errorf("%v", err)
		os.Exit(1)
	}
}

func getDefaultConfigPathOrExit() string {
	path, err := config.GetDefaultConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get default config path: %v\n", err)
		os.Exit(1)
	}
	return path
}
