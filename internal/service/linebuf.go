package service

import (
	"sync"
)

// LineBuffer is an io.Writer splitting its input into lines. A line ends
// with \n, \r\n or a bare \r, so carriage-return progress bars produce one
// line per refresh. Completed lines are kept until Drain is called.
type LineBuffer struct {
	mx      sync.Mutex
	partial []byte
	lastCR  bool
	pending []string
}

func (b *LineBuffer) Write(p []byte) (int, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	for _, c := range p {
		lastCR := b.lastCR
		b.lastCR = c == '\r'
		switch {
		case c == '\n' && lastCR:
			// second half of \r\n
		case c == '\n':
			b.emit()
		case c == '\r':
			if len(b.partial) > 0 {
				b.emit()
			}
		default:
			b.partial = append(b.partial, c)
		}
	}
	return len(p), nil
}

func (b *LineBuffer) emit() {
	b.pending = append(b.pending, string(b.partial))
	b.partial = b.partial[:0]
}

// Flush completes a trailing line without terminator. Called once the
// writer side is closed.
func (b *LineBuffer) Flush() {
	b.mx.Lock()
	defer b.mx.Unlock()
	if len(b.partial) > 0 {
		b.emit()
	}
}

// Drain returns lines completed since the previous call. It never blocks on
// the producer and returns nil when nothing new is available.
func (b *LineBuffer) Drain() []string {
	b.mx.Lock()
	defer b.mx.Unlock()
	lines := b.pending
	b.pending = nil
	return lines
}
