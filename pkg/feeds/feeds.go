// Package feeds fetches exchange rates and current weather for travellers and
// keeps them behind TTL caches that never fail: when every upstream is down
// they serve the last good values or plausible placeholders.
package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rubiojr/yatra/pkg/log"
)

// Endpoints are the upstream base URLs. Tests point them at local servers.
type Endpoints struct {
	ExchangeRateV6 string
	ExchangeRateV4 string
	OpenWeatherMap string
	OpenMeteo      string
}

var DefaultEndpoints = Endpoints{
	ExchangeRateV6: "https://v6.exchangerate-api.com/v6",
	ExchangeRateV4: "https://api.exchangerate-api.com/v4",
	OpenWeatherMap: "https://api.openweathermap.org/data/2.5",
	OpenMeteo:      "https://api.open-meteo.com/v1",
}

// NewHTTPClient returns the client used for feed requests.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func getJSON(ctx context.Context, client *http.Client, reqURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func feedLogger(name string) *log.Logger {
	return log.For("feeds").Sub(name)
}

// unit draws from r, or from the global source when r is nil.
func unit(r *rand.Rand) float64 {
	if r == nil {
		return rand.Float64()
	}
	return r.Float64()
}

func intN(r *rand.Rand, n int) int {
	if r == nil {
		return rand.IntN(n)
	}
	return r.IntN(n)
}
