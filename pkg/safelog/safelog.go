// Package safelog is the logging path the engine uses while the
// crashing process's heap is in an unknown state. Every buffer is
// reserved at construction and message formatting is fixed-arity, so
// reporting a failure can never itself allocate. Non-crash-path code
// uses the regular structured logger instead.
package safelog

import (
	"golang.org/x/sys/unix"
)

const bufSize = 512

// Logger formats diagnostics into a pre-reserved buffer and writes
// them to a file descriptor with a single write(2) each. Not safe for
// concurrent use; the engine is single-threaded per invocation.
type Logger struct {
	fd  int
	tag string
	buf [bufSize]byte
}

// New returns a Logger writing to fd, each line prefixed with tag.
func New(fd int, tag string) *Logger {
	return &Logger{fd: fd, tag: tag}
}

// Error writes "tag: E<code>: msg".
func (l *Logger) Error(code int, msg string) {
	n := l.prefix(code, msg)
	l.flush(n)
}

// ErrorStr writes "tag: E<code>: msg: detail".
func (l *Logger) ErrorStr(code int, msg, detail string) {
	n := l.prefix(code, msg)
	n = l.putStr(n, ": ")
	n = l.putStr(n, detail)
	l.flush(n)
}

// ErrorInt writes "tag: E<code>: msg: <v>".
func (l *Logger) ErrorInt(code int, msg string, v int64) {
	n := l.prefix(code, msg)
	n = l.putStr(n, ": ")
	n = l.putInt(n, v)
	l.flush(n)
}

// ErrorHex writes "tag: E<code>: msg: 0x<v>".
func (l *Logger) ErrorHex(code int, msg string, v uint64) {
	n := l.prefix(code, msg)
	n = l.putStr(n, ": 0x")
	n = l.putHex(n, v)
	l.flush(n)
}

func (l *Logger) prefix(code int, msg string) int {
	n := l.putStr(0, l.tag)
	n = l.putStr(n, ": E")
	n = l.putInt(n, int64(code))
	n = l.putStr(n, ": ")
	return l.putStr(n, msg)
}

func (l *Logger) flush(n int) {
	if n < bufSize {
		l.buf[n] = '\n'
		n++
	}
	_, _ = unix.Write(l.fd, l.buf[:n])
}

func (l *Logger) putStr(n int, s string) int {
	for i := 0; i < len(s) && n < bufSize; i++ {
		l.buf[n] = s[i]
		n++
	}
	return n
}

func (l *Logger) putInt(n int, v int64) int {
	if v < 0 {
		if n < bufSize {
			l.buf[n] = '-'
			n++
		}
		v = -v
	}
	var tmp [20]byte
	i := len(tmp)
	for {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
		if v == 0 {
			break
		}
	}
	return l.putBytes(n, tmp[i:])
}

func (l *Logger) putHex(n int, v uint64) int {
	const digits = "0123456789abcdef"
	var tmp [16]byte
	i := len(tmp)
	for {
		i--
		tmp[i] = digits[v&0xf]
		v >>= 4
		if v == 0 {
			break
		}
	}
	return l.putBytes(n, tmp[i:])
}

func (l *Logger) putBytes(n int, b []byte) int {
	for i := 0; i < len(b) && n < bufSize; i++ {
		l.buf[n] = b[i]
		n++
	}
	return n
}
