/*
Package ipc drives a suggestion controller over msgpack on stdin/stdout so
an editor or another host UI can embed the search box.

Requests are msgpack maps, one after the other on the input stream:

	{"id": "1", "op": "type", "text": "pokh"}
	{"id": "2", "op": "key", "key": "down"}
	{"id": "3", "op": "select", "index": 0}

Supported ops are type, key (down, up, enter, escape), focus, blur, select,
submit, voice and view. Every request is answered with the view after the
op was applied:

	{"id": "1", "view": {"query": "pokh", "mode": "search", ...}}

Results that arrive later, commits and notices are pushed with an empty id:

	{"id": "", "view": {...}}
	{"id": "", "navigate": {"query": "Pokhara"}}
	{"id": "", "notice": {"code": "no_speech", ...}}

The first message on the output stream is {"id": "", "status": "ready"}.
*/
package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rubiojr/yatra/pkg/log"
	"github.com/rubiojr/yatra/pkg/notify"
	"github.com/rubiojr/yatra/pkg/suggest"
)

// Request ops.
const (
	OpType   = "type"
	OpKey    = "key"
	OpFocus  = "focus"
	OpBlur   = "blur"
	OpSelect = "select"
	OpSubmit = "submit"
	OpVoice  = "voice"
	OpView   = "view"
)

type Request struct {
	ID    string `msgpack:"id"`
	Op    string `msgpack:"op"`
	Text  string `msgpack:"text,omitempty"`
	Key   string `msgpack:"key,omitempty"`
	Index int    `msgpack:"index,omitempty"`
}

type Response struct {
	ID       string             `msgpack:"id"`
	Status   string             `msgpack:"status,omitempty"`
	View     *suggest.View      `msgpack:"view,omitempty"`
	Navigate *suggest.Selection `msgpack:"navigate,omitempty"`
	Notice   *notify.Notice     `msgpack:"notice,omitempty"`
	Error    string             `msgpack:"e,omitempty"`
	Code     int                `msgpack:"c,omitempty"`
}

// Controller is the part of *suggest.Controller a session drives.
type Controller interface {
	View() suggest.View
	Subscribe(fn func(suggest.View)) (unsubscribe func())
	SetQuery(raw string)
	Focus()
	Blur()
	HandleKey(k suggest.Key) bool
	Select(i int) bool
	Submit() bool
	ToggleVoice(ctx context.Context)
}

var keys = map[string]suggest.Key{
	"down":   suggest.KeyDown,
	"up":     suggest.KeyUp,
	"enter":  suggest.KeyEnter,
	"escape": suggest.KeyEscape,
}

// Session serves one host. It is also the controller's Navigator and
// Notifier, forwarding commits and notices to the host.
type Session struct {
	dec *msgpack.Decoder
	w   io.Writer

	wmu      sync.Mutex
	enc      *msgpack.Encoder
	handling atomic.Bool
	logger   *log.Logger
}

func NewSession(r io.Reader, w io.Writer) *Session {
	enc := msgpack.NewEncoder(w)
	// Notices only carry json tags.
	enc.SetCustomStructTag("json")
	return &Session{
		dec:    msgpack.NewDecoder(bufio.NewReader(r)),
		w:      w,
		enc:    enc,
		logger: log.For("ipc"),
	}
}

// Serve handles requests until the input ends, ctx is done or a write
// fails. A clean end of input returns nil.
func (s *Session) Serve(ctx context.Context, c Controller) error {
	unsub := c.Subscribe(func(v suggest.View) {
		if s.handling.Load() {
			return
		}
		if err := s.send(Response{View: &v}); err != nil {
			s.logger.Debugf("pushing view: %v", err)
		}
	})
	defer unsub()

	s.logger.Debugf("Starting session")
	if err := s.send(Response{Status: "ready"}); err != nil {
		return err
	}

	reqs := make(chan Request)
	errc := make(chan error, 1)
	go func() {
		defer close(reqs)
		for {
			var req Request
			if err := s.dec.Decode(&req); err != nil {
				errc <- err
				return
			}
			select {
			case reqs <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-reqs:
			if !ok {
				err := <-errc
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("reading request: %w", err)
			}
			if err := s.handle(ctx, c, req); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, c Controller, req Request) error {
	s.handling.Store(true)
	err := s.apply(ctx, c, req)
	s.handling.Store(false)

	if err != nil {
		s.logger.Debugf("request %s: %v", req.ID, err)
		return s.send(Response{ID: req.ID, Error: err.Error(), Code: 400})
	}
	v := c.View()
	return s.send(Response{ID: req.ID, View: &v})
}

func (s *Session) apply(ctx context.Context, c Controller, req Request) error {
	switch req.Op {
	case OpType:
		c.SetQuery(req.Text)
	case OpKey:
		k, ok := keys[req.Key]
		if !ok {
			return fmt.Errorf("unknown key %q", req.Key)
		}
		c.HandleKey(k)
	case OpFocus:
		c.Focus()
	case OpBlur:
		c.Blur()
	case OpSelect:
		if !c.Select(req.Index) {
			return fmt.Errorf("no suggestion at index %d", req.Index)
		}
	case OpSubmit:
		c.Submit()
	case OpVoice:
		c.ToggleVoice(ctx)
	case OpView:
	default:
		return fmt.Errorf("unknown op %q", req.Op)
	}
	return nil
}

// Navigate implements suggest.Navigator.
func (s *Session) Navigate(sel suggest.Selection) {
	if err := s.send(Response{Navigate: &sel}); err != nil {
		s.logger.Warnf("sending selection: %v", err)
	}
}

// Notify implements suggest.Notifier.
func (s *Session) Notify(n notify.Notice) {
	if err := s.send(Response{Notice: &n}); err != nil {
		s.logger.Warnf("sending notice: %v", err)
	}
}

func (s *Session) send(resp Response) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.enc.Encode(resp); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
