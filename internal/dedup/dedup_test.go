package dedup

import (
	"fmt"
	"testing"
)

func TestAdmitRejectsRepeat(t *testing.T) {
	g := New(Config{})
	line := []byte(`{"atype":"createCollection","ts":{"$date":"2026-02-28T12:00:00.000000001Z"}}` + "\n")
	if !g.Admit(line) {
		t.Fatal("first occurrence rejected")
	}
	if g.Admit(line) {
		t.Error("duplicate admitted")
	}
	if g.Duplicates() != 1 {
		t.Errorf("Duplicates = %d, want 1", g.Duplicates())
	}
}

func TestAdmitDistinctLines(t *testing.T) {
	g := New(Config{Window: 8})
	for i := 0; i < 100; i++ {
		if !g.Admit([]byte(fmt.Sprintf(`{"n":%d}`, i))) {
			t.Fatalf("line %d rejected", i)
		}
	}
	if g.Duplicates() != 0 {
		t.Errorf("Duplicates = %d, want 0", g.Duplicates())
	}
}

func TestWindowForgetsOldest(t *testing.T) {
	g := New(Config{Window: 3})
	g.Admit([]byte("a"))
	g.Admit([]byte("b"))
	g.Admit([]byte("c"))
	if g.Admit([]byte("a")) {
		t.Fatal("a still in window, should be rejected")
	}
	g.Admit([]byte("d")) // evicts a
	if !g.Admit([]byte("a")) {
		t.Error("a evicted from window, should be admitted")
	}
}

func TestReset(t *testing.T) {
	g := New(Config{Window: 4})
	g.Admit([]byte("a"))
	g.Reset()
	if !g.Admit([]byte("a")) {
		t.Error("line rejected after Reset")
	}
}
