package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rubiojr/yatra/pkg/api"
	"github.com/rubiojr/yatra/pkg/config"
	"github.com/rubiojr/yatra/pkg/log"
	"github.com/rubiojr/yatra/pkg/notify"
	"github.com/rubiojr/yatra/pkg/scheduler"
	"github.com/urfave/cli/v3"
)

const checkpointInterval = time.Hour

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API and keep the feeds warm",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Address to listen on (overrides server.listen)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c.String("config"), c.String("listen"))
		},
	}
}

// feedEvent is published on the hub after each scheduled refresh.
type feedEvent struct {
	Feed  string `json:"feed"`
	Entry any    `json:"entry"`
}

func serve(ctx context.Context, configPath, listen string) error {
	logger := log.For("serve")

	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if listen == "" {
		listen = a.cfg.Server.Listen
	}

	sched := scheduler.New()
	if err := addFeedJobs(sched, a, a.cfg); err != nil {
		return err
	}
	if err := sched.Add("history-checkpoint", checkpointInterval, func(context.Context) error {
		return a.kv.WALCheckpoint()
	}); err != nil {
		return err
	}

	schedCtx, schedCancel := context.WithCancel(ctx)
	defer schedCancel()
	if err := sched.Start(schedCtx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	apiServer := api.NewServer(api.Options{
		Backend:       a.provider,
		Searcher:      a.dispatcher,
		History:       a.history,
		Rates:         a.rates,
		Weather:       a.weather,
		Hub:           a.hub,
		Popular:       a.cfg.Search.Popular,
		RecentHistory: a.cfg.History.Recent,
	})

	server := &http.Server{
		Addr:              listen,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Starting API server on http://%s", listen)
		logger.Infof("Available endpoints:")
		logger.Infof("    GET /search?q= - Unranked catalog search (backend shape)")
		logger.Infof("    GET /api/suggest?q= - Ranked suggestions, browse list when q is empty")
		logger.Infof("    GET /api/rates - NPR exchange rates")
		logger.Infof("    GET /api/weather - Current weather")
		logger.Infof("    GET|POST|DELETE /api/history - Recent searches")
		logger.Infof("    GET /api/events - WebSocket notices and feed updates")
		logger.Infof("    GET /health - Health check")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	var cfgMutex sync.Mutex
	currentConfig := a.cfg
	reload := func(reason string) {
		cfgMutex.Lock()
		defer cfgMutex.Unlock()
		logger.Infof("%s, reloading configuration...", reason)
		newCfg, err := reloadFeedJobs(configPath, sched, a, currentConfig)
		if err != nil {
			logger.Errorf("Failed to reload configuration: %v", err)
			a.hub.Notify(notify.NewNotice(notify.LevelError, "config_reload", err.Error()))
			return
		}
		currentConfig = newCfg
		logger.Infof("Configuration reloaded successfully")
	}

	var watchEvents <-chan fsnotify.Event
	var watchErrors <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("failed to create config file watcher: %v", err)
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Warnf("failed to close config file watcher: %v", err)
			}
		}()
		if err := watcher.Add(configPath); err != nil {
			logger.Warnf("failed to watch config file %s: %v", configPath, err)
		} else {
			logger.Infof("Watching config file for changes: %s", configPath)
		}
		watchEvents, watchErrors = watcher.Events, watcher.Errors
	}

	shutdown := func() error {
		logger.Infof("Shutting down...")
		schedCancel()
		sched.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}

	for {
		select {
		case <-ctx.Done():
			return shutdown()
		case err := <-serverErr:
			return fmt.Errorf("api server: %w", err)
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reload("Received SIGHUP")
				continue
			}
			return shutdown()
		case event, ok := <-watchEvents:
			if !ok {
				watchEvents = nil
				continue
			}
			// Editors often replace the file with an atomic rename.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(200 * time.Millisecond)
				if _, err := os.Stat(configPath); os.IsNotExist(err) {
					logger.Warnf("Config file was removed and not replaced, skipping reload")
					continue
				}
				if err := watcher.Add(configPath); err != nil {
					logger.Warnf("failed to re-add config file to watcher: %v", err)
				}
			} else {
				time.Sleep(100 * time.Millisecond)
			}
			reload(fmt.Sprintf("Config file changed (%s)", event.Op))
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			logger.Warnf("Config file watcher error: %v", err)
		}
	}
}

// addFeedJobs schedules cache refreshes and broadcasts each result.
func addFeedJobs(sched *scheduler.Scheduler, a *app, cfg *config.Config) error {
	if err := sched.Add("currency", cfg.Currency.Interval.Duration, func(ctx context.Context) error {
		a.hub.Publish(notify.TypeFeed, feedEvent{Feed: "currency", Entry: a.rates.Get(ctx)})
		return nil
	}); err != nil {
		return err
	}
	return sched.Add("weather", cfg.Weather.Interval.Duration, func(ctx context.Context) error {
		a.hub.Publish(notify.TypeFeed, feedEvent{Feed: "weather", Entry: a.weather.Get(ctx)})
		return nil
	})
}

// reloadFeedJobs re-reads the config and reschedules the feed jobs when
// their intervals changed. Other settings need a restart.
func reloadFeedJobs(configPath string, sched *scheduler.Scheduler, a *app, oldCfg *config.Config) (*config.Config, error) {
	newCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading new config: %w", err)
	}

	if newCfg.Currency.Interval == oldCfg.Currency.Interval && newCfg.Weather.Interval == oldCfg.Weather.Interval {
		log.For("serve").Infof("Feed intervals unchanged")
		return newCfg, nil
	}

	for _, name := range []string{"currency", "weather"} {
		if err := sched.Remove(name); err != nil && !errors.Is(err, scheduler.ErrJobNotFound) {
			return nil, err
		}
	}
	if err := addFeedJobs(sched, a, newCfg); err != nil {
		return nil, err
	}
	log.For("serve").Infof("Feed intervals: currency %s, weather %s", newCfg.Currency.Interval, newCfg.Weather.Interval)
	return newCfg, nil
}
