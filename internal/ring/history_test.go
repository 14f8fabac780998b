package ring

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHistory_AddAndAll(t *testing.T) {
	h := New[int](3)
	if h.Len() != 0 {
		t.Fatalf("expected empty history, got %d", h.Len())
	}

	for i := 1; i <= 3; i++ {
		if h.Add(i) {
			t.Errorf("unexpected eviction adding %d", i)
		}
	}
	if !h.Add(4) {
		t.Error("expected eviction when adding past capacity")
	}

	if diff := cmp.Diff([]int{2, 3, 4}, h.All()); diff != "" {
		t.Errorf("All() mismatch (-want +got):\n%s", diff)
	}
	if h.Len() != 3 || h.Cap() != 3 {
		t.Errorf("expected len=3 cap=3, got len=%d cap=%d", h.Len(), h.Cap())
	}
}

func TestHistory_Previous(t *testing.T) {
	h := New[string](4)
	h.Add("a")
	h.Add("b")

	if v, ok := h.Previous(1); !ok || v != "b" {
		t.Errorf("Previous(1) = %q, %v; want b, true", v, ok)
	}
	if v, ok := h.Previous(2); !ok || v != "a" {
		t.Errorf("Previous(2) = %q, %v; want a, true", v, ok)
	}
	if _, ok := h.Previous(3); ok {
		t.Error("Previous(3) should not exist")
	}
	if _, ok := h.Previous(0); ok {
		t.Error("Previous(0) should not exist")
	}
}

func TestHistory_PopOldest(t *testing.T) {
	h := New[int](2)
	h.Add(1)
	h.Add(2)
	h.Add(3)

	v, ok := h.PopOldest()
	if !ok || v != 2 {
		t.Fatalf("PopOldest = %d, %v; want 2, true", v, ok)
	}
	if oldest, _ := h.Oldest(); oldest != 3 {
		t.Errorf("expected oldest=3 after pop, got %d", oldest)
	}
	h.PopOldest()
	if _, ok := h.PopOldest(); ok {
		t.Error("expected PopOldest on empty history to fail")
	}
	if h.All() != nil {
		t.Error("expected nil All() on empty history")
	}
}

func TestHistory_Clear(t *testing.T) {
	h := New[int](0)
	if h.Cap() != 1 {
		t.Errorf("expected minimum capacity of 1, got %d", h.Cap())
	}
	h.Add(7)
	h.Clear()
	if h.Len() != 0 {
		t.Errorf("expected empty after Clear, got %d", h.Len())
	}
}
