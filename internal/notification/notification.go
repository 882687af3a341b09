// Package notification is the append-only log shown in the main window.
package notification

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultMaxEntries = 1000

type Level int

const (
	Info Level = iota
	Warning
)

func (l Level) String() string {
	if l == Warning {
		return "WARN"
	}
	return "INFO"
}

type Entry struct {
	At      time.Time
	Level   Level
	Message string
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s %s", e.At.Format("15:04:05.000"), e.Level, e.Message)
}

// Log keeps the most recent entries and mirrors every push to logrus.
type Log struct {
	mu        sync.Mutex
	entries   []Entry
	max       int
	listeners []func(Entry)
	logger    *log.Entry
	now       func() time.Time
}

// New returns a Log holding at most max entries; max <= 0 selects a default.
func New(max int, logger *log.Entry) *Log {
	if max <= 0 {
		max = defaultMaxEntries
	}
	if logger == nil {
		logger = log.WithField("component", "notification")
	}
	return &Log{max: max, logger: logger, now: time.Now}
}

// OnPush registers fn to be called after each new entry. Listeners run on
// the pushing goroutine.
func (l *Log) OnPush(fn func(Entry)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

func (l *Log) Push(msg string) { l.add(Info, msg) }

func (l *Log) Warn(msg string) { l.add(Warning, msg) }

func (l *Log) add(level Level, msg string) {
	l.mu.Lock()
	e := Entry{At: l.now(), Level: level, Message: msg}
	l.entries = append(l.entries, e)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	listeners := append([]func(Entry){}, l.listeners...)
	l.mu.Unlock()

	if level == Warning {
		l.logger.Warn(msg)
	} else {
		l.logger.Info(msg)
	}
	for _, fn := range listeners {
		fn(e)
	}
}

// Entries returns a copy of the retained entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
