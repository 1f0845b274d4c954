// Package httpsearch queries a remote search backend over HTTP.
//
// The backend answers GET {endpoint}/search?q=<query> with
//
//	{"results": [{"name": "...", "type": "Place", ...}]}
package httpsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rubiojr/yatra/pkg/core"
	"github.com/rubiojr/yatra/pkg/log"
)

// ErrUpstreamStatus is returned when the backend answers with a non-2xx code.
var ErrUpstreamStatus = errors.New("search backend returned an error status")

const maxBodySize = 4 << 20

func init() {
	core.RegisterProvider("http", func(cfg core.ProviderConfig) (core.SearchProvider, error) {
		p, err := New(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

type Provider struct {
	endpoint *url.URL
	client   *http.Client
	strict   bool
	logger   *log.Logger
}

func New(cfg core.ProviderConfig) (*Provider, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("http provider: endpoint is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("http provider: invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("http provider: unsupported scheme %q", u.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Provider{
		endpoint: u,
		client:   &http.Client{Timeout: timeout},
		strict:   cfg.Strict,
		logger:   log.For("provider").Sub("http"),
	}, nil
}

// WithClient replaces the HTTP client, mostly for tests.
func (p *Provider) WithClient(c *http.Client) *Provider {
	p.client = c
	return p
}

type searchResponse struct {
	Results []json.RawMessage `json:"results"`
}

func (p *Provider) Search(ctx context.Context, query string) ([]core.CandidateItem, error) {
	u := *p.endpoint
	u.Path += "/search"
	u.RawQuery = url.Values{"q": {query}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, fmt.Errorf("%w: %s", ErrUpstreamStatus, resp.Status)
	}

	var body searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	items := make([]core.CandidateItem, 0, len(body.Results))
	for i, raw := range body.Results {
		var item core.CandidateItem
		err := json.Unmarshal(raw, &item)
		if err == nil {
			err = item.Validate()
		}
		if err != nil {
			if p.strict {
				return nil, fmt.Errorf("result %d: %w", i, err)
			}
			p.logger.Warnf("skipping result %d for %q: %v", i, query, err)
			continue
		}
		items = append(items, item)
	}

	p.logger.Debugf("%q: %d results", query, len(items))
	return items, nil
}
