package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rubiojr/yatra/pkg/feeds"
	"github.com/rubiojr/yatra/pkg/ttlcache"
	"github.com/urfave/cli/v3"
)

// RatesCommand creates the rates command
func RatesCommand() *cli.Command {
	return &cli.Command{
		Name:  "rates",
		Usage: "Show exchange rates for the Nepalese rupee",
		Flags: []cli.Flag{
			&cli.FloatFlag{
				Name:  "amount",
				Usage: "Amount in NPR to convert",
				Value: 1000,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the cache entry as JSON",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := loadApp(c.String("config"))
			if err != nil {
				return err
			}
			defer a.Close()

			entry := a.rates.Get(ctx)
			if c.Bool("json") {
				return printJSON(entry)
			}
			printRates(entry, c.Float("amount"))
			return nil
		},
	}
}

// WeatherCommand creates the weather command
func WeatherCommand() *cli.Command {
	return &cli.Command{
		Name:  "weather",
		Usage: "Show current weather at the configured location",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the cache entry as JSON",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := loadApp(c.String("config"))
			if err != nil {
				return err
			}
			defer a.Close()

			entry := a.weather.Get(ctx)
			if c.Bool("json") {
				return printJSON(entry)
			}
			printWeather(entry)
			return nil
		},
	}
}

func printRates(entry ttlcache.Entry[feeds.Rates], amount float64) {
	r := entry.Data
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s %.2f in tracked currencies", feeds.CurrencySymbol(r.Base), amount)))
	for _, code := range feeds.Tracked {
		v, err := r.Convert(amount, code)
		if err != nil {
			continue
		}
		fmt.Printf("  %s %s %s\n",
			headerStyle.Render(code),
			scoreStyle.Render(fmt.Sprintf("%s%.2f", feeds.CurrencySymbol(code), v)),
			metaStyle.Render(fmt.Sprintf("(rate %g)", r.Rates[code])))
	}
	printProvenance(entry.Source, r.Source, entry.FetchedAt, entry.Stale)
}

func printWeather(entry ttlcache.Entry[feeds.Weather]) {
	w := entry.Data
	fmt.Println(titleStyle.Render(w.Location))
	fmt.Printf("  %s %s\n", w.Icon, headerStyle.Render(fmt.Sprintf("%d°C %s", w.Temperature, w.Condition)))
	fmt.Printf("  %s\n", metaStyle.Render(fmt.Sprintf("humidity %d%%, wind %d km/h, pressure %d hPa", w.Humidity, w.WindSpeed, w.Pressure)))
	printProvenance(entry.Source, w.Source, entry.FetchedAt, entry.Stale)
}

func printProvenance(cacheSource, dataSource string, fetched time.Time, stale bool) {
	line := fmt.Sprintf("source: %s, updated %s", dataSource, fetched.Local().Format(time.Kitchen))
	fmt.Println(metaStyle.Render(line))
	switch {
	case cacheSource == ttlcache.SourceSynthetic:
		fmt.Println(warnStyle.Render("Live data unavailable, showing demo values"))
	case stale:
		fmt.Println(warnStyle.Render("Live data unavailable, showing last known values"))
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
