package buffer

import "testing"

func TestRingWraps(t *testing.T) {
	ring := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		ring.Add(i)
	}

	got := ring.List()
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, want := range []int{3, 4, 5} {
		if got[i] != want {
			t.Fatalf("entry %d = %d, want %d", i, got[i], want)
		}
	}
}

func TestRingTail(t *testing.T) {
	ring := NewRing[string](4)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		ring.Add(s)
	}

	tail := ring.Tail(2)
	if len(tail) != 2 || tail[0] != "d" || tail[1] != "e" {
		t.Fatalf("unexpected tail %v", tail)
	}
	if ring.Tail(0) != nil {
		t.Fatal("zero tail should be nil")
	}
	if got := ring.Tail(10); len(got) != 4 {
		t.Fatalf("oversized tail returned %d entries", len(got))
	}
}

func TestRingZeroSize(t *testing.T) {
	ring := NewRing[int](0)
	ring.Add(1)
	if ring.Len() != 1 {
		t.Fatalf("zero-size ring should clamp to capacity 1, len=%d", ring.Len())
	}

	var nilRing *Ring[int]
	nilRing.Add(1)
	if nilRing.Len() != 0 || nilRing.List() != nil {
		t.Fatal("nil ring should be inert")
	}
}
