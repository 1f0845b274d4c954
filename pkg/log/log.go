// Package log provides named component loggers on top of the standard library
// logger.
//
// Every line carries a "[component>]" prefix so output from the dispatcher,
// caches, providers and servers can be told apart:
//
//	l := log.For("dispatch")
//	l.Infof("request %d dispatched", id)
//	l.Debugf("dropping stale response %d", id) // only with debug enabled
//
// Debug output is enabled globally with SetGlobalDebug or for a single
// component with EnableDebugFor. Quiet mode drops INFO and DEBUG lines, which
// the interactive terminal commands use to keep the screen clean.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelDebug = "DEBUG"
)

// Logger is a named component logger. The zero value is not usable, obtain
// one with For.
type Logger struct {
	name string
	std  *log.Logger
}

// atomic.Value requires a consistent concrete type across stores.
type writerHolder struct {
	w io.Writer
}

var (
	globalDebug    atomic.Bool
	quiet          atomic.Bool
	componentDebug sync.Map // map[string]*atomic.Bool
	loggers        sync.Map // map[string]*Logger
	output         atomic.Value
)

func init() {
	output.Store(writerHolder{w: os.Stderr})
}

// For returns the memoized logger for a component.
func For(component string) *Logger {
	component = strings.TrimSpace(component)
	if component == "" {
		component = "yatra"
	}
	if l, ok := loggers.Load(component); ok {
		return l.(*Logger)
	}
	w := output.Load().(writerHolder).w
	l := &Logger{name: component, std: log.New(w, "", log.LstdFlags|log.Lmicroseconds)}
	actual, _ := loggers.LoadOrStore(component, l)
	return actual.(*Logger)
}

// Sub returns the logger for a child component, named "parent/child".
func (l *Logger) Sub(child string) *Logger {
	return For(l.name + "/" + child)
}

// Name returns the component name.
func (l *Logger) Name() string {
	return l.name
}

func SetGlobalDebug(enabled bool) {
	globalDebug.Store(enabled)
}

func GlobalDebug() bool {
	return globalDebug.Load()
}

// SetQuiet suppresses INFO and DEBUG lines for every logger.
func SetQuiet(enabled bool) {
	quiet.Store(enabled)
}

// EnableDebugFor enables debug output for a component and its children.
func EnableDebugFor(component string) {
	if component == "" {
		return
	}
	v, _ := componentDebug.LoadOrStore(component, &atomic.Bool{})
	v.(*atomic.Bool).Store(true)
}

func DisableDebugFor(component string) {
	if v, ok := componentDebug.Load(component); ok {
		v.(*atomic.Bool).Store(false)
	}
}

// DebugEnabledFor reports whether debug output is on for the component,
// globally or through the component itself or one of its parents.
func DebugEnabledFor(component string) bool {
	if globalDebug.Load() {
		return true
	}
	name := component
	for {
		if v, ok := componentDebug.Load(name); ok && v.(*atomic.Bool).Load() {
			return true
		}
		i := strings.LastIndex(name, "/")
		if i < 0 {
			return false
		}
		name = name[:i]
	}
}

// SetOutput redirects every existing and future logger to w.
func SetOutput(w io.Writer) {
	if w == nil {
		return
	}
	output.Store(writerHolder{w: w})
	loggers.Range(func(_, v any) bool {
		v.(*Logger).std.SetOutput(w)
		return true
	})
}

func (l *Logger) emit(level, msg string) {
	l.std.Println(level + " [" + l.name + ">] " + msg)
}

func (l *Logger) Infof(format string, args ...any) {
	if quiet.Load() {
		return
	}
	l.emit(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.emit(LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.emit(LevelError, fmt.Sprintf(format, args...))
}

// Debugf logs only when debug is enabled for this component.
func (l *Logger) Debugf(format string, args ...any) {
	if quiet.Load() || !DebugEnabledFor(l.name) {
		return
	}
	l.emit(LevelDebug, fmt.Sprintf(format, args...))
}
