package cmd

import (
	"fmt"
	"os"

	"github.com/rubiojr/yatra/pkg/config"
	"github.com/rubiojr/yatra/pkg/core"
	"github.com/rubiojr/yatra/pkg/dispatch"
	"github.com/rubiojr/yatra/pkg/feeds"
	"github.com/rubiojr/yatra/pkg/history"
	"github.com/rubiojr/yatra/pkg/log"
	"github.com/rubiojr/yatra/pkg/notify"
	"github.com/rubiojr/yatra/pkg/rank"
	"github.com/rubiojr/yatra/pkg/storage"
	"github.com/rubiojr/yatra/pkg/ttlcache"
	"github.com/rubiojr/yatra/pkg/voice"
)

// app holds the components every command builds from the configuration.
type app struct {
	cfg        *config.Config
	provider   core.SearchProvider
	ranker     *rank.Ranker
	dispatcher *dispatch.Dispatcher
	kv         *storage.KVStore
	history    *history.Store
	rates      *ttlcache.Cache[feeds.Rates]
	weather    *ttlcache.Cache[feeds.Weather]
	hub        *notify.Hub
}

func loadApp(configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return newApp(cfg)
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, hub: notify.NewHub(0)}

	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	a.provider = provider
	a.ranker = rank.New(cfg.Search.Popular)

	a.dispatcher, err = dispatch.New(a.provider, a.ranker, dispatch.Options{
		Debounce: cfg.Search.Debounce.Duration,
		Timeout:  cfg.Search.Timeout.Duration,
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		a.Close()
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	a.kv, err = storage.OpenKV(cfg.HistoryDBPath())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	a.history, err = history.New(a.kv, cfg.History.Limit)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("loading history: %w", err)
	}

	client := feeds.NewHTTPClient()
	a.rates, err = feeds.NewCurrencyCache(cfg.Currency, feeds.DefaultEndpoints, client, a.onFallback)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.weather, err = feeds.NewWeatherCache(cfg.Weather, feeds.DefaultEndpoints, client, a.onFallback)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newProvider(cfg *config.Config) (core.SearchProvider, error) {
	p, err := core.NewProvider(cfg.Search.Provider, core.ProviderConfig{
		Endpoint: cfg.Search.Endpoint,
		Timeout:  cfg.Search.Timeout.Duration,
		Strict:   cfg.Search.Strict,
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s search provider: %w", cfg.Search.Provider, err)
	}
	return p, nil
}

func (a *app) onFallback(fb ttlcache.Fallback) {
	msg := fmt.Sprintf("%s data unavailable, showing %s values", fb.Cache, fb.Served)
	a.hub.Notify(notify.NewNotice(notify.LevelWarn, "feed_fallback", msg))
}

// newVoice builds the voice adapter. Without a configured recognizer
// command the adapter reports voice input as unsupported.
func (a *app) newVoice(onResult func(voice.Result)) *voice.Adapter {
	var rec voice.Recognizer
	if len(a.cfg.Voice.Command) > 0 {
		r, err := voice.NewCommandRecognizer(a.cfg.Voice.Command)
		if err != nil {
			log.For("voice").Warnf("voice input disabled: %v", err)
		} else {
			rec = r
		}
	}
	return voice.NewAdapter(rec, voice.Options{
		Language: a.cfg.Voice.Language,
		Timeout:  a.cfg.Voice.Timeout.Duration,
		OnResult: onResult,
	})
}

func (a *app) Close() {
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close history database: %v\n", err)
		}
	}
}
