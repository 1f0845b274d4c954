package suggest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rubiojr/yatra/pkg/core"
	"github.com/rubiojr/yatra/pkg/dispatch"
	"github.com/rubiojr/yatra/pkg/history"
	"github.com/rubiojr/yatra/pkg/notify"
	"github.com/rubiojr/yatra/pkg/rank"
	"github.com/rubiojr/yatra/pkg/voice"
)

var testCatalog = []core.CandidateItem{
	{Name: "Hotel Pokhara", Type: core.TypeHotel, Location: "Lakeside, Pokhara"},
	{Name: "Pokhara Lake", Type: core.TypePlace, Location: "Pokhara"},
	{Name: "Kathmandu Durbar Square", Type: core.TypePlace, Location: "Kathmandu"},
}

type recorder struct {
	mu         sync.Mutex
	selections []Selection
	notices    []notify.Notice
}

func (r *recorder) Navigate(sel Selection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selections = append(r.selections, sel)
}

func (r *recorder) Notify(n notify.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) lastSelection(t *testing.T) Selection {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.selections) == 0 {
		t.Fatal("expected a navigation hand-off")
	}
	return r.selections[len(r.selections)-1]
}

type fixture struct {
	c     *Controller
	clock *dispatch.ManualClock
	hist  *history.Store
	rec   *recorder
	calls chan string
}

func newFixture(t *testing.T, popular []string, v Voice) *fixture {
	t.Helper()
	calls := make(chan string, 16)
	provider := core.SearchProviderFunc(func(ctx context.Context, q string) ([]core.CandidateItem, error) {
		calls <- q
		return testCatalog, nil
	})

	clock := dispatch.NewManualClock()
	d, err := dispatch.New(provider, rank.New(nil), dispatch.Options{Clock: clock})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Close)

	hist, err := history.New(history.NewMemoryKV(), 0)
	if err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	c := New(d, hist, v, Options{Popular: popular, Navigator: rec, Notifier: rec})
	t.Cleanup(c.Close)
	return &fixture{c: c, clock: clock, hist: hist, rec: rec, calls: calls}
}

// search types q, fires the debounce and waits for results.
func (f *fixture) search(t *testing.T, q string) View {
	t.Helper()
	f.c.SetQuery(q)
	f.clock.Advance(300 * time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for {
		v := f.c.View()
		if !v.Loading && len(v.Suggestions) > 0 {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for results of %q: %+v", q, v)
		}
		time.Sleep(time.Millisecond)
	}
}

func labels(v View) []string {
	out := make([]string, len(v.Suggestions))
	for i, s := range v.Suggestions {
		out[i] = s.Label
	}
	return out
}

func TestBrowseListHistoryThenPopular(t *testing.T) {
	f := newFixture(t, []string{"Kathmandu", "Pokhara"}, nil)
	for _, q := range []string{"a", "b", "c", "d", "e", "f"} {
		f.hist.Commit(q)
	}

	f.c.Focus()
	v := f.c.View()
	if v.Mode != ModeBrowse || !v.Open || !v.Focused {
		t.Fatalf("Unexpected view %+v", v)
	}
	want := []string{"f", "e", "d", "c", "b", "Kathmandu", "Pokhara"}
	got := labels(v)
	if len(got) != len(want) {
		t.Fatalf("Suggestions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Suggestions = %v, want %v", got, want)
		}
	}
	if v.Suggestions[4].Group != GroupHistory || v.Suggestions[5].Group != GroupPopular {
		t.Errorf("Unexpected groups %+v", v.Suggestions)
	}
}

func TestKeyboardWraparound(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C", "D", "E"}, nil)
	f.c.Focus()

	if v := f.c.View(); v.Index != -1 {
		t.Fatalf("Expected no selection initially, got %d", v.Index)
	}

	f.c.HandleKey(KeyUp)
	if v := f.c.View(); v.Index != 4 {
		t.Fatalf("Up from -1 should select the last item, got %d", v.Index)
	}

	f.c.HandleKey(KeyDown)
	if v := f.c.View(); v.Index != 0 {
		t.Fatalf("Down from 4 should wrap to 0, got %d", v.Index)
	}

	f.c.HandleKey(KeyUp)
	if v := f.c.View(); v.Index != 4 {
		t.Fatalf("Up from 0 should wrap to 4, got %d", v.Index)
	}
}

func TestNavigationOnEmptyList(t *testing.T) {
	f := newFixture(t, nil, nil)
	if f.c.HandleKey(KeyDown) {
		t.Error("Down on an empty list should do nothing")
	}
	if v := f.c.View(); v.Index != -1 {
		t.Errorf("Expected index -1, got %d", v.Index)
	}
}

func TestEnterCommitsHighlightedItem(t *testing.T) {
	f := newFixture(t, nil, nil)
	v := f.search(t, "pokhara")
	if labels(v)[0] != "Pokhara Lake" {
		t.Fatalf("Unexpected ranking %v", labels(v))
	}

	f.c.HandleKey(KeyDown)
	f.c.HandleKey(KeyEnter)

	sel := f.rec.lastSelection(t)
	if sel.Item == nil || sel.Item.Name != "Pokhara Lake" || sel.Query != "Pokhara Lake" {
		t.Fatalf("Unexpected selection %+v", sel)
	}
	if got := f.hist.Entries(); len(got) != 1 || got[0] != "Pokhara Lake" {
		t.Errorf("Expected history push, got %v", got)
	}
	v = f.c.View()
	if v.Open || len(v.Suggestions) != 0 || v.Index != -1 {
		t.Errorf("Expected closed list with cleared results, got %+v", v)
	}
}

func TestEnterWithoutSelectionSubmitsQuery(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.c.SetQuery("  everest trek ")
	f.c.HandleKey(KeyEnter)

	sel := f.rec.lastSelection(t)
	if sel.Item != nil || sel.Query != "everest trek" {
		t.Fatalf("Expected raw query commit, got %+v", sel)
	}
	if f.clock.Pending() != 0 {
		t.Errorf("Commit should cancel the pending debounce, %d timers left", f.clock.Pending())
	}
}

func TestEnterWithBlankQueryDoesNothing(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.c.Focus()
	if f.c.HandleKey(KeyEnter) {
		t.Error("Enter on a blank query should not commit")
	}
}

func TestSelectHistoryEntry(t *testing.T) {
	f := newFixture(t, []string{"Lumbini"}, nil)
	f.hist.Commit("Bandipur")
	f.c.Focus()

	if !f.c.Select(1) {
		t.Fatal("Select(1) failed")
	}
	sel := f.rec.lastSelection(t)
	if sel.Query != "Lumbini" || sel.Item != nil {
		t.Fatalf("Unexpected selection %+v", sel)
	}
	if got := f.hist.Entries(); got[0] != "Lumbini" {
		t.Errorf("Expected Lumbini first in history, got %v", got)
	}
	if f.c.Select(99) {
		t.Error("Select out of range should fail")
	}
}

func TestEscapeKeepsQuery(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.search(t, "kath")
	f.c.HandleKey(KeyDown)

	f.c.HandleKey(KeyEscape)
	v := f.c.View()
	if v.Focused || v.Open {
		t.Errorf("Expected unfocused hidden list, got %+v", v)
	}
	if v.Query != "kath" {
		t.Errorf("Escape must not alter the query, got %q", v.Query)
	}
}

func TestEmptyQueryModeSwitch(t *testing.T) {
	f := newFixture(t, []string{"Chitwan"}, nil)
	v := f.search(t, "pok")
	if v.Mode != ModeSearch {
		t.Fatalf("Expected search mode, got %s", v.Mode)
	}

	f.c.SetQuery("pokh")
	f.c.SetQuery("")
	v = f.c.View()
	if v.Mode != ModeBrowse || v.Loading {
		t.Fatalf("Expected browse mode without loading, got %+v", v)
	}
	if got := labels(v); len(got) != 1 || got[0] != "Chitwan" {
		t.Errorf("Expected browse list, got %v", got)
	}
	if f.clock.Pending() != 0 {
		t.Errorf("Expected no pending request, got %d timers", f.clock.Pending())
	}
}

func TestNewResultsResetIndex(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.search(t, "pokhara")
	f.c.HandleKey(KeyDown)
	f.c.HandleKey(KeyDown)
	if v := f.c.View(); v.Index != 1 {
		t.Fatalf("Expected index 1, got %d", v.Index)
	}

	f.c.SetQuery("kathmandu")
	if v := f.c.View(); v.Index != -1 {
		t.Errorf("Typing should reset the highlighted row, got %d", v.Index)
	}
}

func TestSubscribeReceivesViews(t *testing.T) {
	f := newFixture(t, []string{"Ilam"}, nil)
	var mu sync.Mutex
	var views []View
	unsubscribe := f.c.Subscribe(func(v View) {
		mu.Lock()
		views = append(views, v)
		mu.Unlock()
	})

	f.c.Focus()
	unsubscribe()
	f.c.Blur()

	mu.Lock()
	defer mu.Unlock()
	if len(views) != 1 || !views[0].Open {
		t.Fatalf("Expected one open view, got %+v", views)
	}
}

type fakeVoice struct {
	supported bool
	startErr  error
	started   int
}

func (v *fakeVoice) Supported() bool { return v.supported }
func (v *fakeVoice) Start(ctx context.Context) (string, error) {
	v.started++
	return "session", v.startErr
}
func (v *fakeVoice) Stop()              {}
func (v *fakeVoice) State() voice.State { return voice.StateIdle }

func TestVoiceTranscriptActsAsTypedQuery(t *testing.T) {
	fv := &fakeVoice{supported: true}
	f := newFixture(t, nil, fv)

	f.c.ToggleVoice(context.Background())
	if fv.started != 1 {
		t.Fatalf("Expected voice session to start, got %d", fv.started)
	}

	f.c.HandleVoiceResult(voice.Result{SessionID: "session", Text: "pokhara"})
	if v := f.c.View(); v.Query != "pokhara" || v.Mode != ModeSearch {
		t.Fatalf("Expected transcript as query, got %+v", v)
	}
	if f.clock.Pending() != 1 {
		t.Fatalf("Transcript should go through the debounce, %d timers pending", f.clock.Pending())
	}

	f.clock.Advance(300 * time.Millisecond)
	select {
	case q := <-f.calls:
		if q != "pokhara" {
			t.Errorf("Expected request for pokhara, got %q", q)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a search request")
	}
}

func TestVoiceFailureNotifies(t *testing.T) {
	f := newFixture(t, nil, &fakeVoice{supported: true})
	f.c.SetQuery("lum")

	f.c.HandleVoiceResult(voice.Result{Kind: voice.KindPermissionDenied})

	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	if len(f.rec.notices) != 1 || f.rec.notices[0].Code != string(voice.KindPermissionDenied) {
		t.Fatalf("Unexpected notices %+v", f.rec.notices)
	}
	if f.c.View().Query != "lum" {
		t.Error("A voice failure must not touch the query")
	}
}

func TestVoiceUnsupportedNotifies(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.c.ToggleVoice(context.Background())

	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	if len(f.rec.notices) != 1 || f.rec.notices[0].Code != string(voice.KindUnsupported) {
		t.Fatalf("Unexpected notices %+v", f.rec.notices)
	}
}

func TestVoiceStartErrorNotifies(t *testing.T) {
	f := newFixture(t, nil, &fakeVoice{supported: true, startErr: voice.ErrNoMicrophone})
	f.c.ToggleVoice(context.Background())

	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	if len(f.rec.notices) != 1 || f.rec.notices[0].Code != string(voice.KindNoMicrophone) {
		t.Fatalf("Unexpected notices %+v", f.rec.notices)
	}
}
