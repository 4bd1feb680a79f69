package runner

import (
	"sync"
)

// maxLineBytes caps a single log line. Longer output is emitted in chunks.
const maxLineBytes = 64 << 10

// lineWriter splits a byte stream into lines and hands each one to emit.
// "\n", "\r\n" and a bare "\r" all end a line, so carriage-return progress
// bars become one line per redraw. A trailing partial line is held until the
// next terminator, the size cap or Flush.
type lineWriter struct {
	mu   sync.Mutex
	line []byte
	// afterCR is set when the last byte seen was '\r'; a '\n' right after it
	// belongs to the same terminator.
	afterCR bool
	emit    func(string)
}

func newLineWriter(emit func(string)) *lineWriter {
	return &lineWriter{emit: emit}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range p {
		if w.afterCR {
			w.afterCR = false
			if b == '\n' {
				continue
			}
		}
		switch b {
		case '\n':
			w.emitLine()
		case '\r':
			// A redraw that starts with '\r' has nothing before it worth a line.
			if len(w.line) > 0 {
				w.emitLine()
			}
			w.afterCR = true
		default:
			w.line = append(w.line, b)
			if len(w.line) >= maxLineBytes {
				w.emitLine()
			}
		}
	}
	return len(p), nil
}

func (w *lineWriter) emitLine() {
	w.emit(string(w.line))
	w.line = w.line[:0]
}

// Flush emits any buffered partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.afterCR = false
	if len(w.line) > 0 {
		w.emitLine()
	}
}
