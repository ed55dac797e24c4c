package exec

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"io"
	"sync"
)

// maxLineLen bounds how much of an unterminated line is held back.
const maxLineLen = 64 << 10

// PrefixWriter copies complete lines to dst, each preceded by a fixed
// prefix. Writers that share a destination should share its lock so
// lines from different processes never interleave mid-line.
type PrefixWriter struct {
	dstMu  *sync.Mutex
	dst    io.Writer
	prefix []byte

	mu  sync.Mutex
	buf []byte
}

// NewPrefixWriter returns a writer that prefixes lines with "[name] ".
// A nil dstMu gives the writer its own lock.
func NewPrefixWriter(dst io.Writer, dstMu *sync.Mutex, name string, color bool) *PrefixWriter {
	if dstMu == nil {
		dstMu = &sync.Mutex{}
	}
	prefix := "[" + name + "] "
	if color {
		prefix = fmt.Sprintf("\x1b[%dm%s\x1b[0m", colorFor(name), prefix)
	}
	return &PrefixWriter{dstMu: dstMu, dst: dst, prefix: []byte(prefix)}
}

func (w *PrefixWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if err := w.emit(w.buf[:i+1]); err != nil {
			return 0, err
		}
		w.buf = w.buf[i+1:]
	}
	// A partial line longer than maxLineLen is emitted as its own line.
	if len(w.buf) >= maxLineLen {
		line := append(w.buf, '\n')
		w.buf = nil
		if err := w.emit(line); err != nil {
			return 0, err
		}
	}
	// Reclaim space once everything is flushed.
	if len(w.buf) == 0 {
		w.buf = nil
	}
	return len(p), nil
}

// Close flushes a trailing partial line, terminating it with a newline.
func (w *PrefixWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) == 0 {
		return nil
	}
	line := append(w.buf, '\n')
	w.buf = nil
	return w.emit(line)
}

func (w *PrefixWriter) emit(line []byte) error {
	w.dstMu.Lock()
	defer w.dstMu.Unlock()

	out := make([]byte, 0, len(w.prefix)+len(line))
	out = append(out, w.prefix...)
	out = append(out, line...)
	_, err := w.dst.Write(out)
	return err
}

// colorFor picks one of the six bright ANSI foreground colors.
func colorFor(name string) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	return 91 + int(h.Sum32()%6)
}
