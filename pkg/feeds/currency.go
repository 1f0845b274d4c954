package feeds

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/rubiojr/yatra/pkg/config"
	"github.com/rubiojr/yatra/pkg/ttlcache"
)

// BaseCurrency is what all rates are quoted against.
const BaseCurrency = "NPR"

// Tracked currencies, in display order.
var Tracked = []string{"USD", "EUR", "GBP", "INR", "JPY", "AUD", "CAD", "CHF"}

// ReferenceRates are approximate NPR rates used when nothing else is known.
var ReferenceRates = map[string]float64{
	"USD": 0.0075,
	"EUR": 0.0069,
	"GBP": 0.0059,
	"INR": 0.63,
	"JPY": 1.12,
	"AUD": 0.0115,
	"CAD": 0.0102,
	"CHF": 0.0067,
}

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"INR": "₹",
	"JPY": "¥",
	"AUD": "A$",
	"CAD": "C$",
	"CHF": "Fr",
	"NPR": "Rs",
}

// CurrencySymbol returns the display symbol, or the code itself.
func CurrencySymbol(code string) string {
	if s, ok := symbols[code]; ok {
		return s
	}
	return code
}

// Rates are units of each tracked currency per one NPR.
type Rates struct {
	Base        string             `json:"base"`
	Rates       map[string]float64 `json:"rates"`
	LastUpdated time.Time          `json:"last_updated"`
	Source      string             `json:"source"`
}

// Convert turns an NPR amount into code.
func (r Rates) Convert(amountNPR float64, code string) (float64, error) {
	if code == r.Base {
		return amountNPR, nil
	}
	rate, ok := r.Rates[code]
	if !ok {
		return 0, fmt.Errorf("no rate for %s", code)
	}
	return amountNPR * rate, nil
}

// normalizeRates keeps the tracked currencies, filling gaps from the
// reference table, and rounds them for display: two decimals for INR and JPY,
// four otherwise.
func normalizeRates(src map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(Tracked))
	for _, code := range Tracked {
		v, ok := src[code]
		if !ok || v <= 0 {
			v = ReferenceRates[code]
		}
		out[code] = roundRate(code, v)
	}
	return out
}

func roundRate(code string, v float64) float64 {
	scale := 10000.0
	if code == "INR" || code == "JPY" {
		scale = 100
	}
	return math.Round(v*scale) / scale
}

// ExchangeRateAPIKeyed fetches from the keyed v6 API.
func ExchangeRateAPIKeyed(client *http.Client, baseURL, apiKey string) ttlcache.Source[Rates] {
	return ttlcache.Source[Rates]{
		Name: "ExchangeRate-API",
		Fetch: func(ctx context.Context) (Rates, error) {
			var resp struct {
				Result          string             `json:"result"`
				ErrorType       string             `json:"error-type"`
				BaseCode        string             `json:"base_code"`
				ConversionRates map[string]float64 `json:"conversion_rates"`
			}
			reqURL := fmt.Sprintf("%s/%s/latest/%s", baseURL, url.PathEscape(apiKey), BaseCurrency)
			if err := getJSON(ctx, client, reqURL, &resp); err != nil {
				return Rates{}, err
			}
			if resp.Result != "success" {
				return Rates{}, fmt.Errorf("exchange rate api: result %q (%s)", resp.Result, resp.ErrorType)
			}
			return Rates{
				Base:        resp.BaseCode,
				Rates:       normalizeRates(resp.ConversionRates),
				LastUpdated: time.Now().UTC(),
				Source:      "ExchangeRate-API",
			}, nil
		},
	}
}

// ExchangeRateAPIFree fetches from the keyless v4 API.
func ExchangeRateAPIFree(client *http.Client, baseURL string) ttlcache.Source[Rates] {
	return ttlcache.Source[Rates]{
		Name: "Free API",
		Fetch: func(ctx context.Context) (Rates, error) {
			var resp struct {
				Base  string             `json:"base"`
				Rates map[string]float64 `json:"rates"`
			}
			if err := getJSON(ctx, client, baseURL+"/latest/"+BaseCurrency, &resp); err != nil {
				return Rates{}, err
			}
			if len(resp.Rates) == 0 {
				return Rates{}, fmt.Errorf("free exchange rate api: empty rates")
			}
			return Rates{
				Base:        resp.Base,
				Rates:       normalizeRates(resp.Rates),
				LastUpdated: time.Now().UTC(),
				Source:      "Free API",
			}, nil
		},
	}
}

// SyntheticRates jitters the reference rates by up to ±2%.
func SyntheticRates(r *rand.Rand) Rates {
	rates := make(map[string]float64, len(Tracked))
	for _, code := range Tracked {
		fluctuation := (unit(r) - 0.5) * 0.04
		rates[code] = roundRate(code, ReferenceRates[code]*(1+fluctuation))
	}
	return Rates{
		Base:        BaseCurrency,
		Rates:       rates,
		LastUpdated: time.Now().UTC(),
		Source:      "Demo Data",
	}
}

// NewCurrencyCache builds the rates cache. With an API key the keyed API is
// primary and the free one secondary; without, the free API is the only
// upstream.
func NewCurrencyCache(cfg config.FeedConfig, ep Endpoints, client *http.Client, onFallback func(ttlcache.Fallback)) (*ttlcache.Cache[Rates], error) {
	if client == nil {
		client = NewHTTPClient()
	}
	free := ExchangeRateAPIFree(client, ep.ExchangeRateV4)
	opts := ttlcache.Options[Rates]{
		Name:         "currency",
		TTL:          cfg.TTL.Duration,
		FetchTimeout: cfg.Timeout.Duration,
		Primary:      free,
		Synthesize:   func() Rates { return SyntheticRates(nil) },
		OnFallback:   onFallback,
	}
	if cfg.APIKey != "" {
		opts.Primary = ExchangeRateAPIKeyed(client, ep.ExchangeRateV6, cfg.APIKey)
		opts.Secondary = &free
	} else {
		feedLogger("currency").Debugf("no api key configured, using the free endpoint only")
	}
	return ttlcache.New(opts)
}
