// Package voice runs one speech recognition session at a time and reports
// its outcome as a Result.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rubiojr/yatra/pkg/log"
)

// ErrorKind classifies a failed session.
type ErrorKind string

const (
	KindNoMicrophone     ErrorKind = "no_microphone"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindNoSpeech         ErrorKind = "no_speech"
	KindNetwork          ErrorKind = "network"
	KindUnsupported      ErrorKind = "unsupported"
)

var (
	ErrUnsupported      = errors.New("voice input is not supported")
	ErrNoMicrophone     = errors.New("no microphone found")
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrNoSpeech         = errors.New("no speech detected")
	ErrNetwork          = errors.New("speech recognition service unreachable")
)

// Message is a short user-facing explanation.
func (k ErrorKind) Message() string {
	switch k {
	case KindNoMicrophone:
		return "No microphone was found. Check that one is connected."
	case KindPermissionDenied:
		return "Microphone access was denied."
	case KindNoSpeech:
		return "No speech was detected. Please try again."
	case KindNetwork:
		return "Speech recognition is unavailable right now."
	case KindUnsupported:
		return "Voice search is not available here."
	}
	return "Voice search failed."
}

// KindOf maps an error to its kind. Errors that match no sentinel count as
// network failures.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ErrNoMicrophone):
		return KindNoMicrophone
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrNoSpeech), errors.Is(err, context.DeadlineExceeded):
		return KindNoSpeech
	}
	return KindNetwork
}

// Recognizer captures one utterance and returns its transcript.
type Recognizer interface {
	Recognize(ctx context.Context, language string) (string, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, language string) (string, error)

func (f RecognizerFunc) Recognize(ctx context.Context, language string) (string, error) {
	return f(ctx, language)
}

// Result is the outcome of a session: a transcript, or a failure kind.
type Result struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text,omitempty"`
	Kind      ErrorKind `json:"kind,omitempty"`
	Err       error     `json:"-"`
}

func (r Result) OK() bool {
	return r.Kind == ""
}

type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
)

type Options struct {
	Language string
	// Timeout bounds a session. Zero means 15s.
	Timeout  time.Duration
	OnResult func(Result)
}

// Adapter owns the session state machine: idle, listening, then back to idle
// with exactly one Result unless the session was stopped.
type Adapter struct {
	rec  Recognizer
	opts Options
	log  *log.Logger

	mu      sync.Mutex
	state   State
	session string
	cancel  context.CancelFunc
}

// NewAdapter returns an adapter. A nil recognizer means the platform has no
// speech capability.
func NewAdapter(rec Recognizer, opts Options) *Adapter {
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Adapter{rec: rec, opts: opts, state: StateIdle, log: log.For("voice")}
}

func (a *Adapter) Supported() bool {
	return a.rec != nil
}

func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Start begins a session and returns its id. Calling Start while listening
// stops the current session instead, discarding its outcome, and returns an
// empty id.
func (a *Adapter) Start(ctx context.Context) (string, error) {
	if a.rec == nil {
		return "", ErrUnsupported
	}

	a.mu.Lock()
	if a.state == StateListening {
		a.stopLocked()
		a.mu.Unlock()
		return "", nil
	}

	id := uuid.NewString()
	sctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	a.state = StateListening
	a.session = id
	a.cancel = cancel
	a.mu.Unlock()

	a.log.Debugf("session %s listening (%s)", id, a.opts.Language)
	go a.run(sctx, id)
	return id, nil
}

// Stop ends the current session without a result.
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *Adapter) stopLocked() {
	if a.state != StateListening {
		return
	}
	a.log.Debugf("session %s stopped", a.session)
	a.cancel()
	a.cancel = nil
	a.session = ""
	a.state = StateIdle
}

func (a *Adapter) run(ctx context.Context, id string) {
	text, err := a.recognize(ctx)

	res := Result{SessionID: id}
	switch {
	case err != nil:
		res.Kind, res.Err = KindOf(err), err
	case strings.TrimSpace(text) == "":
		res.Kind, res.Err = KindNoSpeech, ErrNoSpeech
	default:
		res.Text = strings.TrimSpace(text)
	}

	a.mu.Lock()
	if a.session != id {
		a.mu.Unlock()
		a.log.Debugf("session %s outcome discarded", id)
		return
	}
	a.cancel()
	a.cancel = nil
	a.session = ""
	a.state = StateIdle
	a.mu.Unlock()

	if res.OK() {
		a.log.Debugf("session %s recognized %q", id, res.Text)
	} else {
		a.log.Infof("session %s failed: %s (%v)", id, res.Kind, res.Err)
	}
	if a.opts.OnResult != nil {
		a.opts.OnResult(res)
	}
}

func (a *Adapter) recognize(ctx context.Context) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recognizer panic: %v", r)
		}
	}()
	return a.rec.Recognize(ctx, a.opts.Language)
}
