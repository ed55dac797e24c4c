package exec

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestPrefixWriter_SplitsLines(t *testing.T) {
	var out bytes.Buffer
	w := NewPrefixWriter(&out, nil, "vloc_main-3", false)

	w.Write([]byte("first li"))
	w.Write([]byte("ne\nsecond line\nthi"))
	if got := out.String(); got != "[vloc_main-3] first line\n[vloc_main-3] second line\n" {
		t.Errorf("before close: %q", got)
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out.String(), "[vloc_main-3] thi\n") {
		t.Errorf("partial line not flushed: %q", out.String())
	}

	// A second Close is a no-op.
	before := out.Len()
	w.Close()
	if out.Len() != before {
		t.Errorf("second Close wrote output")
	}
}

func TestPrefixWriter_SharedDestinationKeepsLinesWhole(t *testing.T) {
	var out bytes.Buffer
	var mu sync.Mutex
	a := NewPrefixWriter(&out, &mu, "a", false)
	b := NewPrefixWriter(&out, &mu, "b", false)

	var wg sync.WaitGroup
	for _, w := range []*PrefixWriter{a, b} {
		wg.Add(1)
		go func(w *PrefixWriter) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				w.Write([]byte("0123456789\n"))
			}
		}(w)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 400 {
		t.Fatalf("got %d lines, want 400", len(lines))
	}
	for _, line := range lines {
		if line != "[a] 0123456789" && line != "[b] 0123456789" {
			t.Fatalf("interleaved line: %q", line)
		}
	}
}

func TestPrefixWriter_Color(t *testing.T) {
	var out bytes.Buffer
	w := NewPrefixWriter(&out, nil, "rviz2-1", true)
	w.Write([]byte("hello\n"))

	got := out.String()
	if !strings.HasPrefix(got, "\x1b[") || !strings.Contains(got, "[rviz2-1] \x1b[0mhello\n") {
		t.Errorf("unexpected colored output: %q", got)
	}
	if c := colorFor("rviz2-1"); c < 91 || c > 96 {
		t.Errorf("colorFor = %d", c)
	}
}

func TestPrefixWriter_LongLineIsBounded(t *testing.T) {
	var out bytes.Buffer
	w := NewPrefixWriter(&out, nil, "rviz2-1", false)

	chunk := bytes.Repeat([]byte("x"), 1024)
	for range 70 {
		w.Write(chunk)
	}
	if len(w.buf) >= maxLineLen {
		t.Errorf("held back %d bytes, limit %d", len(w.buf), maxLineLen)
	}
	if !strings.HasPrefix(out.String(), "[rviz2-1] xxx") || !strings.HasSuffix(out.String(), "x\n") {
		t.Errorf("long line not emitted: %d bytes written", out.Len())
	}

	w.Write([]byte("tail\n"))
	w.Close()
	total := strings.Count(out.String(), "x") + strings.Count(out.String(), "tail")
	if total != 70*1024+1 {
		t.Errorf("lost output: counted %d", total)
	}
}
