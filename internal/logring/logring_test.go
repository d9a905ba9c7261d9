package logring

import (
	"fmt"
	"testing"
)

func TestRingKeepsLastN(t *testing.T) {
	r := New(3)
	for i := 0; i < 5; i++ {
		fmt.Fprintf(r, "line %d\n", i)
	}
	lines := r.Lines()
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	want := []string{"line 2", "line 3", "line 4"}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("lines[%d] = %q, want %q", i, lines[i], w)
		}
	}
}

func TestLinesReturnsCopy(t *testing.T) {
	r := New(4)
	fmt.Fprintln(r, "first")
	lines := r.Lines()
	lines[0] = "mutated"
	if got := r.Lines()[0]; got != "first" {
		t.Errorf("ring shares its backing slice: %q", got)
	}
}

func TestEmptyWritesIgnored(t *testing.T) {
	r := New(4)
	r.Write([]byte("\n"))
	r.Write(nil)
	if got := len(r.Lines()); got != 0 {
		t.Errorf("got %d lines, want 0", got)
	}
}
