// Package dispatch turns a stream of keystrokes into at most one live search
// request.
//
// Updates are debounced on the trailing edge. When the debounce fires any
// in-flight request is cancelled and a new one is issued under a fresh
// request id. Responses carrying an id other than the latest are dropped, so
// the visible results always belong to the most recently dispatched query,
// whatever order the network answers in. Failures, timeouts and
// cancellations all end as an empty result list.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rubiojr/yatra/pkg/core"
	"github.com/rubiojr/yatra/pkg/log"
)

const (
	DefaultDebounce = 300 * time.Millisecond
	DefaultTimeout  = 5 * time.Second
)

var ErrClosed = errors.New("dispatcher closed")

// Ranker orders provider candidates for a query.
type Ranker interface {
	Rank(candidates []core.CandidateItem, query string) []core.RankedItem
}

// State is a snapshot of the dispatcher. Version grows with every change;
// subscribers may see snapshots out of order and should ignore older ones.
type State struct {
	Query     string            `json:"query"`
	Results   []core.RankedItem `json:"results"`
	IsLoading bool              `json:"is_loading"`
	RequestID uint64            `json:"request_id"`
	Version   uint64            `json:"version"`
}

type Options struct {
	Debounce time.Duration
	Timeout  time.Duration
	Clock    Clock
}

type Dispatcher struct {
	provider core.SearchProvider
	ranker   Ranker
	debounce time.Duration
	timeout  time.Duration
	clock    Clock
	log      *log.Logger

	mu       sync.Mutex
	state    State
	timer    Timer
	token    uint64 // identifies the scheduled debounce
	inflight context.CancelFunc
	subs     map[int]func(State)
	nextSub  int
	closed   bool
}

func New(provider core.SearchProvider, ranker Ranker, opts Options) (*Dispatcher, error) {
	if provider == nil {
		return nil, fmt.Errorf("dispatch: search provider is required")
	}
	if ranker == nil {
		return nil, fmt.Errorf("dispatch: ranker is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &Dispatcher{
		provider: provider,
		ranker:   ranker,
		debounce: opts.Debounce,
		timeout:  opts.Timeout,
		clock:    opts.Clock,
		log:      log.For("dispatch"),
		subs:     make(map[int]func(State)),
	}, nil
}

// Update records a keystroke. A non-empty query (re)starts the debounce
// timer. An empty query cancels everything immediately and clears results.
func (d *Dispatcher) Update(raw string) {
	q := core.NormalizeQuery(raw)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.stopTimerLocked()
	d.state.Query = q

	if q == "" {
		d.abortLocked()
		d.state.Results = nil
		d.state.IsLoading = false
		d.unlockAndPublish()
		return
	}

	token := d.token
	d.timer = d.clock.AfterFunc(d.debounce, func() { d.fire(token, q) })
	d.unlockAndPublish()
}

// Cancel drops the pending debounce and any in-flight request and clears the
// results. The query is kept.
func (d *Dispatcher) Cancel() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.stopTimerLocked()
	d.abortLocked()
	d.state.Results = nil
	d.state.IsLoading = false
	d.unlockAndPublish()
}

func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Subscribe registers fn for state changes and returns a function removing
// it. fn runs outside the dispatcher lock and may call back into it.
func (d *Dispatcher) Subscribe(fn func(State)) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

// Close cancels outstanding work. Later updates are ignored.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.stopTimerLocked()
	d.abortLocked()
	d.subs = make(map[int]func(State))
}

// Search runs a single query right away, bypassing the debounce and the
// shared state. Used by one-shot callers like the CLI and HTTP API.
func (d *Dispatcher) Search(ctx context.Context, query string) ([]core.RankedItem, error) {
	q := core.NormalizeQuery(query)
	if q == "" {
		return nil, nil
	}
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	items, err := d.search(ctx, q)
	if err != nil {
		return nil, err
	}
	return d.ranker.Rank(items, q), nil
}

func (d *Dispatcher) fire(token uint64, q string) {
	d.mu.Lock()
	if d.closed || token != d.token {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.abortLocked()

	id := d.state.RequestID
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	d.inflight = cancel
	d.state.IsLoading = true
	d.unlockAndPublish()

	d.log.Debugf("request %d: %q", id, q)
	go d.run(ctx, cancel, id, q)
}

func (d *Dispatcher) run(ctx context.Context, cancel context.CancelFunc, id uint64, q string) {
	defer cancel()

	start := time.Now()
	items, err := d.search(ctx, q)
	var ranked []core.RankedItem
	if err != nil {
		d.log.Debugf("request %d failed after %s: %v", id, time.Since(start), err)
	} else {
		ranked = d.ranker.Rank(items, q)
	}

	d.mu.Lock()
	if d.closed || id != d.state.RequestID {
		d.mu.Unlock()
		d.log.Debugf("request %d superseded, dropping %d results", id, len(ranked))
		return
	}
	d.inflight = nil
	d.state.Results = ranked
	d.state.IsLoading = false
	d.unlockAndPublish()
}

// search enforces ctx even when the provider ignores it.
func (d *Dispatcher) search(ctx context.Context, q string) ([]core.CandidateItem, error) {
	type result struct {
		items []core.CandidateItem
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		items, err := d.provider.Search(ctx, q)
		ch <- result{items: items, err: err}
	}()

	select {
	case r := <-ch:
		if r.err == nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return r.items, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) stopTimerLocked() {
	d.token++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// abortLocked cancels the in-flight request and bumps the request id so a
// late response cannot land.
func (d *Dispatcher) abortLocked() {
	if d.inflight != nil {
		d.inflight()
		d.inflight = nil
	}
	d.state.RequestID++
}

func (d *Dispatcher) snapshotLocked() State {
	s := d.state
	if s.Results != nil {
		s.Results = append([]core.RankedItem(nil), s.Results...)
	}
	return s
}

func (d *Dispatcher) unlockAndPublish() {
	d.state.Version++
	s := d.snapshotLocked()
	subs := make([]func(State), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	d.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
