// Package logger provides a small ring-buffered, tag-based logger. Entries
// are kept in memory up to a fixed capacity and can be drained to an
// io.Writer in whole or as a tail of the most recent N entries.
//
// Logging is gated by a Permission so that noisy subsystems can be turned
// on and off without call sites needing to know why.
package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Permission decides, at the moment a log entry is recorded, whether it is
// allowed to be kept.
type Permission interface {
	AllowLogging() bool
}

// permissionFunc adapts a bool to the Permission interface.
type permissionFunc bool

func (p permissionFunc) AllowLogging() bool {
	return bool(p)
}

// Allow is a Permission that always allows logging.
const Allow = permissionFunc(true)

// Disallow is a Permission that never allows logging.
const Disallow = permissionFunc(false)

type entry struct {
	tag    string
	detail string
}

func (e entry) String() string {
	return fmt.Sprintf("%s: %s\n", e.tag, e.detail)
}

// Log is a fixed-capacity ring buffer of log entries.
type Log struct {
	mu       sync.Mutex
	capacity int
	entries  []entry
	next     int
	full     bool
}

// NewLogger creates a Log with room for capacity entries. Once full, the
// oldest entry is overwritten first.
func NewLogger(capacity int) *Log {
	if capacity < 1 {
		capacity = 1
	}
	return &Log{
		capacity: capacity,
		entries:  make([]entry, capacity),
	}
}

// Log records detail under tag, if permission allows it.
//
// detail is formatted according to its type: an error's Error() string, a
// fmt.Stringer's String() result, or the %v verb for anything else.
func (l *Log) Log(permission Permission, tag string, detail interface{}) {
	if permission == nil || !permission.AllowLogging() {
		return
	}
	l.append(tag, formatDetail(detail))
}

// Logf records a formatted message under tag, if permission allows it.
func (l *Log) Logf(permission Permission, tag string, format string, args ...interface{}) {
	if permission == nil || !permission.AllowLogging() {
		return
	}
	l.append(tag, fmt.Sprintf(format, args...))
}

func formatDetail(detail interface{}) string {
	switch v := detail.(type) {
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (l *Log) append(tag, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = entry{tag: tag, detail: detail}
	l.next++
	if l.next >= l.capacity {
		l.next = 0
		l.full = true
	}
}

// Clear empties the log.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next = 0
	l.full = false
}

// ordered returns the entries in insertion order, oldest first.
func (l *Log) ordered() []entry {
	if !l.full {
		out := make([]entry, l.next)
		copy(out, l.entries[:l.next])
		return out
	}

	out := make([]entry, l.capacity)
	copy(out, l.entries[l.next:])
	copy(out[l.capacity-l.next:], l.entries[:l.next])
	return out
}

// Write writes every recorded entry, oldest first, to w.
func (l *Log) Write(w io.Writer) {
	l.mu.Lock()
	all := l.ordered()
	l.mu.Unlock()

	var s strings.Builder
	for _, e := range all {
		s.WriteString(e.String())
	}
	io.WriteString(w, s.String())
}

// Tail writes the most recent n entries, oldest first, to w. Asking for
// more entries than are recorded is not an error: whatever is available is
// written.
func (l *Log) Tail(w io.Writer, n int) {
	l.mu.Lock()
	all := l.ordered()
	l.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n > len(all) {
		n = len(all)
	}
	all = all[len(all)-n:]

	var s strings.Builder
	for _, e := range all {
		s.WriteString(e.String())
	}
	io.WriteString(w, s.String())
}

// central is the package-level default logger used by the convenience
// functions below, mirroring a process-global logging facility without
// requiring callers to thread a *Log through every function.
var central = NewLogger(4096)

// LogAlways records detail under tag on the central logger, always allowed.
func LogAlways(tag string, detail interface{}) {
	central.Log(Allow, tag, detail)
}

// Logf records a formatted message under tag on the central logger, subject
// to permission.
func Logf(permission Permission, tag string, format string, args ...interface{}) {
	central.Logf(permission, tag, format, args...)
}

// Write writes the central logger's contents to w.
func Write(w io.Writer) {
	central.Write(w)
}

// Tail writes the central logger's most recent n entries to w.
func Tail(w io.Writer, n int) {
	central.Tail(w, n)
}
