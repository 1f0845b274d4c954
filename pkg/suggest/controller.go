// Package suggest drives a search box: it owns the query, focus and the
// merged suggestion list, handles keyboard navigation and hands committed
// selections to a Navigator.
//
// With a query the list is the ranked live results. Without one it is the
// most recent history entries followed by the popular destinations, two
// groups navigated as one sequence.
package suggest

import (
	"context"
	"strings"
	"sync"

	"github.com/rubiojr/yatra/pkg/core"
	"github.com/rubiojr/yatra/pkg/dispatch"
	"github.com/rubiojr/yatra/pkg/log"
	"github.com/rubiojr/yatra/pkg/notify"
	"github.com/rubiojr/yatra/pkg/voice"
)

type Group string

const (
	GroupResults Group = "results"
	GroupHistory Group = "history"
	GroupPopular Group = "popular"
)

type Mode string

const (
	ModeBrowse Mode = "browse"
	ModeSearch Mode = "search"
)

type Key int

const (
	KeyDown Key = iota
	KeyUp
	KeyEnter
	KeyEscape
)

// Suggestion is one row of the merged list. Item is set for live results.
type Suggestion struct {
	Label string           `json:"label" msgpack:"label"`
	Group Group            `json:"group" msgpack:"group"`
	Item  *core.RankedItem `json:"item,omitempty" msgpack:"item,omitempty"`
}

// Selection is what a commit hands to the Navigator: a chosen result item,
// or just a query string.
type Selection struct {
	Query string           `json:"query" msgpack:"query"`
	Item  *core.RankedItem `json:"item,omitempty" msgpack:"item,omitempty"`
}

type Navigator interface {
	Navigate(sel Selection)
}

type NavigatorFunc func(sel Selection)

func (f NavigatorFunc) Navigate(sel Selection) { f(sel) }

type Notifier interface {
	Notify(n notify.Notice)
}

// Dispatcher is the live query pipeline.
type Dispatcher interface {
	Update(raw string)
	Cancel()
	State() dispatch.State
	Subscribe(fn func(dispatch.State)) (unsubscribe func())
}

type History interface {
	Commit(entry string) error
	Recent(n int) []string
}

type Voice interface {
	Supported() bool
	Start(ctx context.Context) (string, error)
	Stop()
	State() voice.State
}

// View is a snapshot for rendering.
type View struct {
	Query       string       `json:"query" msgpack:"query"`
	Mode        Mode         `json:"mode" msgpack:"mode"`
	Focused     bool         `json:"focused" msgpack:"focused"`
	Open        bool         `json:"open" msgpack:"open"`
	Loading     bool         `json:"loading" msgpack:"loading"`
	Listening   bool         `json:"listening" msgpack:"listening"`
	Suggestions []Suggestion `json:"suggestions" msgpack:"suggestions"`
	Index       int          `json:"index" msgpack:"index"`
	Version     uint64       `json:"version" msgpack:"version"`
}

// Selected returns the highlighted suggestion, if any.
func (v View) Selected() (Suggestion, bool) {
	if v.Index < 0 || v.Index >= len(v.Suggestions) {
		return Suggestion{}, false
	}
	return v.Suggestions[v.Index], true
}

type Options struct {
	Popular []string
	// RecentHistory is how many history entries browse mode shows. Zero
	// means 5.
	RecentHistory int
	Navigator     Navigator
	Notifier      Notifier
}

type Controller struct {
	d    Dispatcher
	h    History
	v    Voice
	opts Options
	log  *log.Logger

	mu        sync.Mutex
	query     string
	focused   bool
	open      bool
	results   []core.RankedItem
	loading   bool
	index     int
	lastState uint64
	version   uint64
	subs      map[int]func(View)
	nextSub   int
	unsub     func()
}

// New wires a controller to its collaborators. v may be nil when voice input
// is not offered.
func New(d Dispatcher, h History, v Voice, opts Options) *Controller {
	if opts.RecentHistory <= 0 {
		opts.RecentHistory = 5
	}
	c := &Controller{
		d:     d,
		h:     h,
		v:     v,
		opts:  opts,
		index: -1,
		subs:  make(map[int]func(View)),
		log:   log.For("suggest"),
	}
	c.unsub = d.Subscribe(c.onState)
	return c
}

// Close detaches from the dispatcher.
func (c *Controller) Close() {
	c.unsub()
	if c.v != nil {
		c.v.Stop()
	}
}

// Subscribe registers fn for view changes.
func (c *Controller) Subscribe(fn func(View)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// SetQuery records typed (or pasted, or recognized) text.
func (c *Controller) SetQuery(raw string) {
	c.mu.Lock()
	c.query = raw
	c.focused = true
	c.open = true
	c.index = -1
	if core.NormalizeQuery(raw) == "" {
		c.results = nil
		c.loading = false
	}
	c.unlockAndPublish()

	c.d.Update(raw)
}

// Focus shows the list for the current query.
func (c *Controller) Focus() {
	c.mu.Lock()
	c.focused = true
	c.open = true
	c.unlockAndPublish()
}

// Blur is Escape: focus and list go away, the query stays.
func (c *Controller) Blur() {
	c.mu.Lock()
	c.focused = false
	c.open = false
	c.index = -1
	c.unlockAndPublish()
}

// HandleKey applies a navigation key. It reports whether the key changed
// anything.
func (c *Controller) HandleKey(k Key) bool {
	switch k {
	case KeyEscape:
		c.Blur()
		return true
	case KeyEnter:
		return c.enter()
	}

	c.mu.Lock()
	n := len(c.suggestionsLocked())
	if n == 0 {
		c.mu.Unlock()
		return false
	}
	c.open = true
	switch k {
	case KeyDown:
		c.index = (c.index + 1) % n
	case KeyUp:
		if c.index <= 0 {
			c.index = n - 1
		} else {
			c.index--
		}
	}
	c.unlockAndPublish()
	return true
}

// Select commits the suggestion at index i, as a click would.
func (c *Controller) Select(i int) bool {
	c.mu.Lock()
	list := c.suggestionsLocked()
	if i < 0 || i >= len(list) {
		c.mu.Unlock()
		return false
	}
	s := list[i]
	c.mu.Unlock()

	c.commit(s.Label, s.Item)
	return true
}

// Submit commits the raw query, as the search button does.
func (c *Controller) Submit() bool {
	c.mu.Lock()
	q := core.NormalizeQuery(c.query)
	c.mu.Unlock()
	if q == "" {
		return false
	}
	c.commit(q, nil)
	return true
}

// ToggleVoice starts a voice session, or stops the running one. Failures to
// start are reported through the Notifier.
func (c *Controller) ToggleVoice(ctx context.Context) {
	if c.v == nil || !c.v.Supported() {
		c.notifyVoice(voice.KindUnsupported)
		return
	}
	if _, err := c.v.Start(ctx); err != nil {
		c.notifyVoice(voice.KindOf(err))
	}
	c.mu.Lock()
	c.unlockAndPublish()
}

// HandleVoiceResult feeds a recognized transcript into the query pipeline
// like typed text, or reports the failure.
func (c *Controller) HandleVoiceResult(r voice.Result) {
	if !r.OK() {
		c.notifyVoice(r.Kind)
		c.mu.Lock()
		c.unlockAndPublish()
		return
	}
	c.SetQuery(r.Text)
}

func (c *Controller) notifyVoice(kind voice.ErrorKind) {
	if c.opts.Notifier == nil {
		c.log.Warnf("voice: %s", kind.Message())
		return
	}
	c.opts.Notifier.Notify(notify.NewNotice(notify.LevelWarn, string(kind), kind.Message()))
}

func (c *Controller) enter() bool {
	c.mu.Lock()
	list := c.suggestionsLocked()
	if c.index >= 0 && c.index < len(list) {
		s := list[c.index]
		c.mu.Unlock()
		c.commit(s.Label, s.Item)
		return true
	}
	c.mu.Unlock()
	return c.Submit()
}

func (c *Controller) commit(label string, item *core.RankedItem) {
	if err := c.h.Commit(label); err != nil {
		c.log.Warnf("recording %q: %v", label, err)
	}
	c.d.Cancel()

	c.mu.Lock()
	c.query = label
	c.results = nil
	c.loading = false
	c.open = false
	c.index = -1
	c.unlockAndPublish()

	c.log.Debugf("committed %q", label)
	if c.opts.Navigator != nil {
		c.opts.Navigator.Navigate(Selection{Query: label, Item: item})
	}
}

func (c *Controller) onState(s dispatch.State) {
	c.mu.Lock()
	if s.Version <= c.lastState {
		c.mu.Unlock()
		return
	}
	c.lastState = s.Version

	changed := !sameResults(c.results, s.Results)
	c.results = s.Results
	c.loading = s.IsLoading
	if changed {
		c.index = -1
	}
	c.unlockAndPublish()
}

func (c *Controller) mode() Mode {
	if core.NormalizeQuery(c.query) == "" {
		return ModeBrowse
	}
	return ModeSearch
}

func (c *Controller) suggestionsLocked() []Suggestion {
	if c.mode() == ModeSearch {
		out := make([]Suggestion, len(c.results))
		for i := range c.results {
			item := c.results[i]
			out[i] = Suggestion{Label: item.Name, Group: GroupResults, Item: &item}
		}
		return out
	}

	recent := c.h.Recent(c.opts.RecentHistory)
	out := make([]Suggestion, 0, len(recent)+len(c.opts.Popular))
	for _, e := range recent {
		out = append(out, Suggestion{Label: e, Group: GroupHistory})
	}
	for _, p := range c.opts.Popular {
		out = append(out, Suggestion{Label: p, Group: GroupPopular})
	}
	return out
}

func (c *Controller) viewLocked() View {
	v := View{
		Query:       c.query,
		Mode:        c.mode(),
		Focused:     c.focused,
		Open:        c.open,
		Loading:     c.loading,
		Suggestions: c.suggestionsLocked(),
		Index:       c.index,
		Version:     c.version,
	}
	if c.v != nil {
		v.Listening = c.v.State() == voice.StateListening
	}
	return v
}

func (c *Controller) unlockAndPublish() {
	c.version++
	v := c.viewLocked()
	subs := make([]func(View), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}

func sameResults(a, b []core.RankedItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i].Name, b[i].Name) || a[i].Type != b[i].Type {
			return false
		}
	}
	return true
}
