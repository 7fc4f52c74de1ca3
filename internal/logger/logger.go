// Package logger is a small Noticef/Debugf logger for sima.
//
// Log transport and rotation are an external collaborator's concern;
// this package only formats lines and writes them to whatever
// io.Writer the caller installs.
package logger

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"
)

// A Logger is a fairly minimal logging tool.
type Logger interface {
	// Noticef is for messages that the operator should see.
	Noticef(format string, v ...any)
	// Debugf is for messages useful when debugging the supervisor itself.
	Debugf(format string, v ...any)
}

type nullLogger struct{}

func (nullLogger) Noticef(format string, v ...any) {}
func (nullLogger) Debugf(format string, v ...any)  {}

// NullLogger is a logger that does nothing.
var NullLogger = nullLogger{}

var (
	logger     Logger = NullLogger
	loggerLock sync.Mutex
)

// Noticef notifies the operator of something.
func Noticef(format string, v ...any) {
	loggerLock.Lock()
	defer loggerLock.Unlock()
	logger.Noticef(format, v...)
}

// Debugf records something useful for debugging sima itself.
func Debugf(format string, v ...any) {
	loggerLock.Lock()
	defer loggerLock.Unlock()
	logger.Debugf(format, v...)
}

// Panicf notifies the operator and then panics. Used only for internal
// invariant violations that must never happen, such as a failed
// soft-reboot re-exec: pid 1 dying immediately is the desired signal.
func Panicf(format string, v ...any) {
	loggerLock.Lock()
	defer loggerLock.Unlock()
	logger.Noticef("PANIC "+format, v...)
	panic(fmt.Sprintf(format, v...))
}

// SetLogger sets the global logger to l, returning the previous one.
// Must be called before any other goroutine is writing log lines.
func SetLogger(l Logger) (old Logger) {
	loggerLock.Lock()
	defer loggerLock.Unlock()
	old = logger
	logger = l
	return old
}

// MockLogger replaces the global logger with one backed by a buffer,
// returning a Stringer over its contents and a restore function.
func MockLogger() (fmt.Stringer, func()) {
	buf := &lockedBuffer{}
	old := SetLogger(New(buf, ""))
	return buf, func() { SetLogger(old) }
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

type defaultLogger struct {
	w      io.Writer
	prefix string
	buf    []byte
}

// New creates a Logger writing to w, printing prefix between the
// timestamp and the message on every line.
func New(w io.Writer, prefix string) Logger {
	return &defaultLogger{w: w, prefix: prefix, buf: make([]byte, 0, 256)}
}

// Debugf only prints if SIMA_DEBUG=1 is set in the environment.
func (l *defaultLogger) Debugf(format string, v ...any) {
	if os.Getenv("SIMA_DEBUG") == "1" {
		l.Noticef("DEBUG "+format, v...)
	}
}

func (l *defaultLogger) Noticef(format string, v ...any) {
	l.buf = l.buf[:0]
	l.buf = AppendTimestamp(l.buf, time.Now())
	l.buf = append(l.buf, ' ')
	l.buf = append(l.buf, l.prefix...)
	l.buf = fmt.Appendf(l.buf, format, v...)
	if l.buf[len(l.buf)-1] != '\n' {
		l.buf = append(l.buf, '\n')
	}
	l.w.Write(l.buf)
}

// AppendTimestamp appends a timestamp formatted as
// "YYYY-MM-DDTHH:mm:ss.sssZ" (UTC, millisecond precision) to b and
// returns the extended slice. Makes no allocations if b has capacity.
func AppendTimestamp(b []byte, t time.Time) []byte {
	const width = 24
	utc := t.UTC()

	year, month, day := utc.Year(), int(utc.Month()), utc.Day()
	hour, minute, second := utc.Hour(), utc.Minute(), utc.Second()
	millisecond := utc.Nanosecond() / 1_000_000

	start := len(b)
	b = slices.Grow(b, width)
	b = b[:start+width]

	b[start+0] = byte('0' + year/1000%10)
	b[start+1] = byte('0' + year/100%10)
	b[start+2] = byte('0' + year/10%10)
	b[start+3] = byte('0' + year%10)
	b[start+4] = '-'
	b[start+5] = byte('0' + month/10)
	b[start+6] = byte('0' + month%10)
	b[start+7] = '-'
	b[start+8] = byte('0' + day/10)
	b[start+9] = byte('0' + day%10)
	b[start+10] = 'T'
	b[start+11] = byte('0' + hour/10)
	b[start+12] = byte('0' + hour%10)
	b[start+13] = ':'
	b[start+14] = byte('0' + minute/10)
	b[start+15] = byte('0' + minute%10)
	b[start+16] = ':'
	b[start+17] = byte('0' + second/10)
	b[start+18] = byte('0' + second%10)
	b[start+19] = '.'
	b[start+20] = byte('0' + millisecond/100)
	b[start+21] = byte('0' + millisecond/10%10)
	b[start+22] = byte('0' + millisecond%10)
	b[start+23] = 'Z'

	return b
}
