// Package ttlcache holds a single value fetched from upstream sources and
// reused for a fixed time-to-live.
//
// When upstream fails, Get degrades instead of erroring: primary source,
// then the optional secondary, then the last known value (flagged Stale),
// and finally a synthesized placeholder when nothing was ever fetched.
// Concurrent Gets during a refresh share one upstream round trip.
package ttlcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rubiojr/yatra/pkg/log"
)

// SourceSynthetic is the Source of synthesized entries.
const SourceSynthetic = "synthetic"

// Source is a named upstream.
type Source[T any] struct {
	Name  string
	Fetch func(ctx context.Context) (T, error)
}

// Entry is what Get returns. Stale is set when the entry is served past its
// TTL because every upstream failed.
type Entry[T any] struct {
	Data      T         `json:"data"`
	FetchedAt time.Time `json:"fetched_at"`
	Source    string    `json:"source"`
	Stale     bool      `json:"stale"`
}

// Fallback describes a degraded Get.
type Fallback struct {
	Cache string
	// Served is "stale" or "synthetic".
	Served string
	Err    error
}

type Options[T any] struct {
	// Name identifies the cache in logs and fallback events.
	Name string
	TTL  time.Duration

	Primary   Source[T]
	Secondary *Source[T]
	// Synthesize builds placeholder data when nothing was ever fetched.
	Synthesize func() T

	// FetchTimeout bounds each upstream call. Zero means 5s.
	FetchTimeout time.Duration
	// Now defaults to time.Now.
	Now        func() time.Time
	OnFallback func(Fallback)
}

type Stats struct {
	Hits         uint64
	Fetches      uint64
	Failures     uint64
	StaleServed  uint64
	Synthesized  uint64
	LastError    string
	LastRefresh  time.Time
	HasEntry     bool
	EntrySource  string
	EntryFetched time.Time
}

type Cache[T any] struct {
	opts  Options[T]
	group singleflight.Group
	log   *log.Logger

	mu    sync.Mutex
	entry *Entry[T]
	stats Stats
}

func New[T any](opts Options[T]) (*Cache[T], error) {
	if opts.Name == "" {
		opts.Name = "cache"
	}
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("ttlcache %s: ttl must be positive", opts.Name)
	}
	if opts.Primary.Fetch == nil {
		return nil, fmt.Errorf("ttlcache %s: primary source is required", opts.Name)
	}
	if opts.Secondary != nil && opts.Secondary.Fetch == nil {
		return nil, fmt.Errorf("ttlcache %s: secondary source has no fetch function", opts.Name)
	}
	if opts.Synthesize == nil {
		return nil, fmt.Errorf("ttlcache %s: synthesize function is required", opts.Name)
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Primary.Name == "" {
		opts.Primary.Name = "primary"
	}
	if opts.Secondary != nil && opts.Secondary.Name == "" {
		s := *opts.Secondary
		s.Name = "secondary"
		opts.Secondary = &s
	}
	return &Cache[T]{opts: opts, log: log.For("cache").Sub(opts.Name)}, nil
}

func (c *Cache[T]) Name() string {
	return c.opts.Name
}

// Get returns the cached value, refreshing it when the TTL has elapsed. It
// never fails. If ctx ends before a refresh completes the caller gets the
// last known value (or a placeholder) while the refresh carries on for the
// other waiters.
func (c *Cache[T]) Get(ctx context.Context) Entry[T] {
	if e, ok := c.fresh(); ok {
		return e
	}

	ch := c.group.DoChan("refresh", func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx)), nil
	})

	select {
	case res := <-ch:
		return res.Val.(Entry[T])
	case <-ctx.Done():
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.entry != nil {
			e := *c.entry
			e.Stale = c.expired(e)
			return e
		}
		return Entry[T]{Data: c.opts.Synthesize(), FetchedAt: c.opts.Now(), Source: SourceSynthetic}
	}
}

// Peek returns the current entry without fetching.
func (c *Cache[T]) Peek() (Entry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil {
		return Entry[T]{}, false
	}
	e := *c.entry
	e.Stale = c.expired(e)
	return e, true
}

func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	if c.entry != nil {
		s.HasEntry = true
		s.EntrySource = c.entry.Source
		s.EntryFetched = c.entry.FetchedAt
	}
	return s
}

func (c *Cache[T]) fresh() (Entry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil || c.expired(*c.entry) {
		return Entry[T]{}, false
	}
	c.stats.Hits++
	return *c.entry, true
}

func (c *Cache[T]) expired(e Entry[T]) bool {
	return c.opts.Now().Sub(e.FetchedAt) >= c.opts.TTL
}

func (c *Cache[T]) refresh(ctx context.Context) Entry[T] {
	// A refresh may have completed between the freshness check and joining
	// the flight.
	if e, ok := c.fresh(); ok {
		return e
	}

	sources := []Source[T]{c.opts.Primary}
	if c.opts.Secondary != nil {
		sources = append(sources, *c.opts.Secondary)
	}

	var errs []error
	for _, src := range sources {
		data, err := c.fetch(ctx, src)
		if err == nil {
			e := Entry[T]{Data: data, FetchedAt: c.opts.Now(), Source: src.Name}
			c.mu.Lock()
			c.entry = &e
			c.stats.LastRefresh = e.FetchedAt
			c.mu.Unlock()
			c.log.Debugf("refreshed from %s", src.Name)
			return e
		}
		c.log.Debugf("source %s failed: %v", src.Name, err)
		errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
	}
	err := errors.Join(errs...)

	c.mu.Lock()
	c.stats.LastError = err.Error()
	if c.entry != nil {
		c.stats.StaleServed++
		e := *c.entry
		e.Stale = true
		c.mu.Unlock()
		c.log.Warnf("all sources failed, serving %s data from %s: %v",
			e.Source, e.FetchedAt.Format(time.RFC3339), err)
		c.fallback("stale", err)
		return e
	}

	e := Entry[T]{Data: c.opts.Synthesize(), FetchedAt: c.opts.Now(), Source: SourceSynthetic}
	c.entry = &e
	c.stats.Synthesized++
	c.mu.Unlock()
	c.log.Warnf("all sources failed and nothing cached, serving synthetic data: %v", err)
	c.fallback("synthetic", err)
	return e
}

func (c *Cache[T]) fetch(ctx context.Context, src Source[T]) (data T, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	c.mu.Lock()
	c.stats.Fetches++
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			c.mu.Lock()
			c.stats.Failures++
			c.mu.Unlock()
		}
	}()
	return src.Fetch(ctx)
}

func (c *Cache[T]) fallback(served string, err error) {
	if c.opts.OnFallback != nil {
		c.opts.OnFallback(Fallback{Cache: c.opts.Name, Served: served, Err: err})
	}
}
