package httpsearch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rubiojr/yatra/pkg/core"
)

func newServer(t *testing.T, status int, body string) (*httptest.Server, func() string) {
	t.Helper()
	var (
		mu       sync.Mutex
		gotQuery string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		gotQuery = r.URL.Query().Get("q")
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, func() string {
		mu.Lock()
		defer mu.Unlock()
		return gotQuery
	}
}

func TestSearchDecodesResults(t *testing.T) {
	srv, gotQuery := newServer(t, http.StatusOK, `{"results":[
		{"name":"Pokhara Lake","type":"Place","location":"Pokhara","tags":"lake,nature"},
		{"name":"Hotel Pokhara","type":"hotel","tags":["budget"]}
	]}`)

	p, err := New(core.ProviderConfig{Endpoint: srv.URL + "/api/"})
	if err != nil {
		t.Fatal(err)
	}

	items, err := p.Search(context.Background(), "pokhara lake & more")
	if err != nil {
		t.Fatalf("Search error = %v", err)
	}
	if q := gotQuery(); q != "pokhara lake & more" {
		t.Errorf("server saw q=%q", q)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Tags.String() != "lake,nature" {
		t.Errorf("string tags decoded as %v", items[0].Tags)
	}
	if items[1].Type != core.TypeHotel {
		t.Errorf("type = %q, want Hotel", items[1].Type)
	}
}

func TestSearchSkipsMalformed(t *testing.T) {
	body := `{"results":[{"name":"","type":"Place"},{"name":"Ok","type":"Place"},{"name":"X","type":"Boat"},{"name":"Y","type":"Place","tags":42}]}`
	srv, _ := newServer(t, http.StatusOK, body)

	p, err := New(core.ProviderConfig{Endpoint: srv.URL + "/api"})
	if err != nil {
		t.Fatal(err)
	}
	items, err := p.Search(context.Background(), "ok")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Name != "Ok" {
		t.Errorf("items = %+v", items)
	}

	strict, err := New(core.ProviderConfig{Endpoint: srv.URL + "/api", Strict: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := strict.Search(context.Background(), "ok"); !errors.Is(err, core.ErrMalformedItem) {
		t.Errorf("strict error = %v, want ErrMalformedItem", err)
	}
}

func TestSearchUpstreamStatus(t *testing.T) {
	srv, _ := newServer(t, http.StatusBadGateway, `{"error":"down"}`)
	p, err := New(core.ProviderConfig{Endpoint: srv.URL + "/api"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Search(context.Background(), "x"); !errors.Is(err, ErrUpstreamStatus) {
		t.Errorf("error = %v, want ErrUpstreamStatus", err)
	}
}

func TestSearchHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	p, err := New(core.ProviderConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := p.Search(ctx, "slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
}

func TestNewValidatesEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "   ", "ftp://example.com", "://bad"} {
		if _, err := New(core.ProviderConfig{Endpoint: endpoint}); err == nil {
			t.Errorf("New(%q) expected error", endpoint)
		}
	}
}

func TestRegistered(t *testing.T) {
	if _, err := core.NewProvider("http", core.ProviderConfig{Endpoint: "http://localhost:1"}); err != nil {
		t.Errorf("NewProvider(http) error = %v", err)
	}
}
