package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rubiojr/yatra/pkg/core"
)

// gatedProvider blocks each query until released and records every call.
type gatedProvider struct {
	mu        sync.Mutex
	calls     []string
	gates     map[string]chan []core.CandidateItem
	cancelled map[string]bool
	ignoreCtx bool
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{
		gates:     make(map[string]chan []core.CandidateItem),
		cancelled: make(map[string]bool),
	}
}

func (p *gatedProvider) gate(q string) chan []core.CandidateItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.gates[q]
	if !ok {
		ch = make(chan []core.CandidateItem, 1)
		p.gates[q] = ch
	}
	return ch
}

func (p *gatedProvider) release(q string, names ...string) {
	items := make([]core.CandidateItem, len(names))
	for i, n := range names {
		items[i] = core.CandidateItem{Name: n, Type: core.TypePlace}
	}
	p.gate(q) <- items
}

func (p *gatedProvider) Search(ctx context.Context, q string) ([]core.CandidateItem, error) {
	p.mu.Lock()
	p.calls = append(p.calls, q)
	ignore := p.ignoreCtx
	p.mu.Unlock()

	gate := p.gate(q)
	if ignore {
		return <-gate, nil
	}
	select {
	case items := <-gate:
		return items, nil
	case <-ctx.Done():
		p.mu.Lock()
		p.cancelled[q] = true
		p.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (p *gatedProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *gatedProvider) wasCancelled(q string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled[q]
}

// passRanker keeps provider order and scores everything 1.
type passRanker struct{}

func (passRanker) Rank(c []core.CandidateItem, q string) []core.RankedItem {
	out := make([]core.RankedItem, len(c))
	for i, it := range c {
		out[i] = core.RankedItem{CandidateItem: it, Score: 1}
	}
	return out
}

func newTestDispatcher(t *testing.T, p core.SearchProvider, timeout time.Duration) (*Dispatcher, *ManualClock) {
	t.Helper()
	clock := NewManualClock()
	d, err := New(p, passRanker{}, Options{Clock: clock, Timeout: timeout})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Close)
	return d, clock
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDebounceCoalescing(t *testing.T) {
	p := newGatedProvider()
	d, clock := newTestDispatcher(t, p, 0)

	for _, q := range []string{"p", "po", "pok"} {
		d.Update(q)
		clock.Advance(100 * time.Millisecond)
	}
	if len(p.Calls()) != 0 {
		t.Fatalf("Expected no request before the debounce elapsed, got %v", p.Calls())
	}

	clock.Advance(200 * time.Millisecond)
	waitFor(t, "request", func() bool { return len(p.Calls()) == 1 })
	if calls := p.Calls(); calls[0] != "pok" {
		t.Fatalf("Expected a single request for %q, got %v", "pok", calls)
	}
	if !d.State().IsLoading {
		t.Error("Expected loading while request in flight")
	}

	p.release("pok", "Pokhara")
	waitFor(t, "results", func() bool { return !d.State().IsLoading })
	if s := d.State(); len(s.Results) != 1 || s.Results[0].Name != "Pokhara" {
		t.Fatalf("Unexpected state %+v", s)
	}

	clock.Advance(time.Second)
	if n := len(p.Calls()); n != 1 {
		t.Errorf("Expected exactly one request, got %d", n)
	}
}

func TestStaleResponseRejected(t *testing.T) {
	p := newGatedProvider()
	p.ignoreCtx = true
	d, clock := newTestDispatcher(t, p, 0)

	d.Update("kat")
	clock.Advance(300 * time.Millisecond)
	waitFor(t, "first request", func() bool { return len(p.Calls()) == 1 })
	firstID := d.State().RequestID

	d.Update("kath")
	clock.Advance(300 * time.Millisecond)
	waitFor(t, "second request", func() bool { return len(p.Calls()) == 2 })
	secondID := d.State().RequestID
	if secondID <= firstID {
		t.Fatalf("Request ids must increase: %d then %d", firstID, secondID)
	}

	// The second response lands first, then the stale one.
	p.release("kath", "Kathmandu")
	waitFor(t, "second results", func() bool { return !d.State().IsLoading })
	p.release("kat", "Katari")
	time.Sleep(20 * time.Millisecond)

	s := d.State()
	if len(s.Results) != 1 || s.Results[0].Name != "Kathmandu" {
		t.Fatalf("Stale response overwrote results: %+v", s.Results)
	}
	if s.RequestID != secondID {
		t.Errorf("Expected request id %d, got %d", secondID, s.RequestID)
	}
}

func TestNewRequestCancelsInFlight(t *testing.T) {
	p := newGatedProvider()
	d, clock := newTestDispatcher(t, p, 0)

	d.Update("pok")
	clock.Advance(300 * time.Millisecond)
	waitFor(t, "first request", func() bool { return len(p.Calls()) == 1 })

	// Typing alone does not abort the in-flight request.
	d.Update("pokh")
	time.Sleep(10 * time.Millisecond)
	if p.wasCancelled("pok") {
		t.Fatal("In-flight request cancelled before the next dispatch")
	}

	clock.Advance(300 * time.Millisecond)
	waitFor(t, "cancellation", func() bool { return p.wasCancelled("pok") })
}

func TestEmptyQueryClearsImmediately(t *testing.T) {
	p := newGatedProvider()
	d, clock := newTestDispatcher(t, p, 0)

	d.Update("chit")
	clock.Advance(300 * time.Millisecond)
	waitFor(t, "request", func() bool { return len(p.Calls()) == 1 })

	d.Update("   ")
	s := d.State()
	if s.IsLoading || s.Results != nil || s.Query != "" {
		t.Fatalf("Expected cleared state, got %+v", s)
	}
	waitFor(t, "in-flight cancellation", func() bool { return p.wasCancelled("chit") })

	// A pending debounce is dropped too.
	d.Update("lum")
	d.Update("")
	if clock.Pending() != 0 {
		t.Errorf("Expected no pending timers, got %d", clock.Pending())
	}
	clock.Advance(time.Second)
	time.Sleep(10 * time.Millisecond)
	if n := len(p.Calls()); n != 1 {
		t.Errorf("Expected no further requests, got %v", p.Calls())
	}
}

func TestTimeoutYieldsEmptyResults(t *testing.T) {
	p := newGatedProvider()
	p.ignoreCtx = true
	d, clock := newTestDispatcher(t, p, 30*time.Millisecond)

	d.Update("everest")
	clock.Advance(300 * time.Millisecond)
	waitFor(t, "timeout", func() bool {
		s := d.State()
		return len(p.Calls()) == 1 && !s.IsLoading
	})
	if s := d.State(); s.Results != nil {
		t.Errorf("Expected no results after timeout, got %+v", s.Results)
	}
	p.release("everest", "Everest")
}

func TestProviderErrorYieldsEmptyResults(t *testing.T) {
	var calls atomic.Int32
	p := core.SearchProviderFunc(func(ctx context.Context, q string) ([]core.CandidateItem, error) {
		calls.Add(1)
		return nil, errors.New("backend down")
	})
	d, clock := newTestDispatcher(t, p, 0)

	d.Update("rara")
	clock.Advance(300 * time.Millisecond)
	waitFor(t, "request done", func() bool { return calls.Load() == 1 && !d.State().IsLoading })
	if s := d.State(); s.Results != nil {
		t.Errorf("Expected empty results, got %+v", s.Results)
	}
}

func TestCancelKeepsQuery(t *testing.T) {
	p := newGatedProvider()
	d, clock := newTestDispatcher(t, p, 0)

	d.Update("bandipur")
	clock.Advance(300 * time.Millisecond)
	waitFor(t, "request", func() bool { return len(p.Calls()) == 1 })

	d.Cancel()
	s := d.State()
	if s.Query != "bandipur" || s.IsLoading || s.Results != nil {
		t.Fatalf("Unexpected state after cancel %+v", s)
	}
	waitFor(t, "cancellation", func() bool { return p.wasCancelled("bandipur") })
}

func TestSubscribeVersionsIncrease(t *testing.T) {
	p := newGatedProvider()
	d, clock := newTestDispatcher(t, p, 0)

	var mu sync.Mutex
	var versions []uint64
	unsubscribe := d.Subscribe(func(s State) {
		mu.Lock()
		versions = append(versions, s.Version)
		mu.Unlock()
	})

	d.Update("gok")
	clock.Advance(300 * time.Millisecond)
	waitFor(t, "request", func() bool { return len(p.Calls()) == 1 })
	p.release("gok", "Gokyo")
	waitFor(t, "results notification", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(versions) == 3
	})

	unsubscribe()
	d.Update("")

	mu.Lock()
	defer mu.Unlock()
	if len(versions) != 3 {
		t.Fatalf("Expected 3 notifications (query, loading, results), got %v", versions)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("Versions not increasing: %v", versions)
		}
	}
}

func TestSearchOneShot(t *testing.T) {
	p := core.SearchProviderFunc(func(ctx context.Context, q string) ([]core.CandidateItem, error) {
		return []core.CandidateItem{{Name: "Lumbini", Type: core.TypePlace}}, nil
	})
	d, _ := newTestDispatcher(t, p, 0)

	got, err := d.Search(context.Background(), " lum ")
	if err != nil || len(got) != 1 || got[0].Name != "Lumbini" {
		t.Fatalf("Search = %v, %v", got, err)
	}
	if got, err := d.Search(context.Background(), ""); got != nil || err != nil {
		t.Errorf("Expected nothing for empty query, got %v, %v", got, err)
	}

	d.Close()
	if _, err := d.Search(context.Background(), "lum"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(nil, passRanker{}, Options{}); err == nil {
		t.Error("Expected error without provider")
	}
	p := core.SearchProviderFunc(func(context.Context, string) ([]core.CandidateItem, error) { return nil, nil })
	if _, err := New(p, nil, Options{}); err == nil {
		t.Error("Expected error without ranker")
	}
}
