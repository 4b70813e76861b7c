// Copyright 2024-2026 Aiku AI

package cursor

import (
	"math/rand/v2"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()
	c := New("status")
	if c.Current() != "status" {
		t.Errorf("Current: got %q, want %q", c.Current(), "status")
	}
	if c.Index() != 0 || c.Len() != 1 {
		t.Errorf("Index/Len: got %d/%d, want 0/1", c.Index(), c.Len())
	}
}

func TestSingleElementMovesAreNoops(t *testing.T) {
	t.Parallel()
	c := New(42)
	c.Advance()
	if c.Index() != 0 {
		t.Errorf("Advance on single element: index %d", c.Index())
	}
	c.Retreat()
	if c.Index() != 0 {
		t.Errorf("Retreat on single element: index %d", c.Index())
	}
}

func TestAdvanceRetreatWrap(t *testing.T) {
	t.Parallel()
	c := New("a")
	c.Append("b")
	c.Append("c")

	c.Retreat()
	if c.Current() != "c" {
		t.Errorf("Retreat from 0: got %q, want %q", c.Current(), "c")
	}
	c.Advance()
	if c.Current() != "a" {
		t.Errorf("Advance from last: got %q, want %q", c.Current(), "a")
	}
	c.Advance()
	c.Advance()
	c.Advance()
	if c.Current() != "a" {
		t.Errorf("full cycle: got %q, want %q", c.Current(), "a")
	}
}

func TestAppendDoesNotMoveCursor(t *testing.T) {
	t.Parallel()
	c := New(0)
	c.Append(1)
	c.Advance()
	c.Append(2)
	c.Append(3)
	if c.Index() != 1 || c.Current() != 1 {
		t.Errorf("after Append: index %d current %d, want 1/1", c.Index(), c.Current())
	}
	c.Advance()
	c.Advance()
	c.Advance()
	if c.Current() != 0 {
		t.Errorf("wrap uses new length: got %d, want 0", c.Current())
	}
}

func TestSeek(t *testing.T) {
	t.Parallel()
	c := New("a")
	c.Append("b")
	c.Append("c")
	tests := []struct {
		seek int
		want int
	}{
		{0, 0},
		{2, 2},
		{3, 0},
		{7, 1},
		{1 << 40, (1 << 40) % 3},
		{-1, 2},
		{-4, 2},
	}
	for _, tt := range tests {
		c.Seek(tt.seek)
		if c.Index() != tt.want {
			t.Errorf("Seek(%d): index %d, want %d", tt.seek, c.Index(), tt.want)
		}
	}
}

func TestGetDoesNotMoveCursor(t *testing.T) {
	t.Parallel()
	c := New("a")
	c.Append("b")
	if v, ok := c.Get(1); !ok || v != "b" {
		t.Errorf("Get(1): got (%q, %v)", v, ok)
	}
	if c.Index() != 0 {
		t.Errorf("Get moved cursor to %d", c.Index())
	}
	if _, ok := c.Get(2); ok {
		t.Error("Get(2) should be out of bounds")
	}
	if _, ok := c.Get(-1); ok {
		t.Error("Get(-1) should be out of bounds")
	}
	if c.First() != "a" {
		t.Errorf("First: got %q", c.First())
	}
}

func TestIndexFunc(t *testing.T) {
	t.Parallel()
	c := New("status")
	c.Append("mm/general")
	c.Append("matrix/dev")
	if got := c.IndexFunc(func(s string) bool { return s == "matrix/dev" }); got != 2 {
		t.Errorf("IndexFunc: got %d, want 2", got)
	}
	if got := c.IndexFunc(func(s string) bool { return s == "nope" }); got != -1 {
		t.Errorf("IndexFunc miss: got %d, want -1", got)
	}
}

// TestRandomWalkStaysInBounds drives random moves and appends and checks the
// index invariant plus Advance/Retreat being inverses at every step.
func TestRandomWalkStaysInBounds(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(1, 2))
	c := New(0)
	for step := range 5000 {
		switch rng.IntN(5) {
		case 0:
			c.Append(step)
		case 1:
			c.Advance()
		case 2:
			c.Retreat()
		case 3:
			c.Seek(rng.IntN(1000) - 500)
		case 4:
			before := c.Index()
			c.Advance()
			c.Retreat()
			if c.Index() != before {
				t.Fatalf("step %d: advance+retreat moved %d -> %d", step, before, c.Index())
			}
			c.Retreat()
			c.Advance()
			if c.Index() != before {
				t.Fatalf("step %d: retreat+advance moved %d -> %d", step, before, c.Index())
			}
		}
		if c.Index() < 0 || c.Index() >= c.Len() {
			t.Fatalf("step %d: index %d out of [0, %d)", step, c.Index(), c.Len())
		}
	}
}
