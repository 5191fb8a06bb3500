package ringbuf

import (
	"testing"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
)

func TestWindow_PushAndSlice(t *testing.T) {
	w := New(4)

	w.Push(model.Candle{Symbol: "A", Close: 100})
	w.Push(model.Candle{Symbol: "B", Close: 200})

	if w.Len() != 2 {
		t.Fatalf("expected len=2, got %d", w.Len())
	}

	got := w.Slice()
	if got[0].Symbol != "A" || got[1].Symbol != "B" {
		t.Fatalf("expected [A B], got [%s %s]", got[0].Symbol, got[1].Symbol)
	}

	last, ok := w.Last()
	if !ok || last.Symbol != "B" {
		t.Fatalf("expected last=B, got %v ok=%v", last.Symbol, ok)
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := New(3)

	for i := 0; i < 5; i++ {
		evicted := w.Push(model.Candle{Close: float64(i)})
		if want := i >= 3; evicted != want {
			t.Fatalf("push %d: expected evicted=%v, got %v", i, want, evicted)
		}
	}

	if w.Len() != 3 {
		t.Fatalf("expected len=3, got %d", w.Len())
	}
	if w.Evicted() != 2 {
		t.Fatalf("expected evicted=2, got %d", w.Evicted())
	}

	got := w.Slice()
	for i, c := range got {
		if c.Close != float64(i+2) {
			t.Errorf("slot %d: expected close=%d, got %v", i, i+2, c.Close)
		}
	}
}

func TestWindow_Wraparound(t *testing.T) {
	w := New(4)

	// Push many rounds and verify the window always holds the newest 4 in order
	for i := 0; i < 50; i++ {
		w.Push(model.Candle{Close: float64(i)})
		got := w.Slice()
		first := i - len(got) + 1
		for j, c := range got {
			if c.Close != float64(first+j) {
				t.Fatalf("after push %d slot %d: expected %d, got %v", i, j, first+j, c.Close)
			}
		}
	}
}

func TestWindow_SliceIsCopy(t *testing.T) {
	w := New(2)
	w.Push(model.Candle{Close: 1})

	s := w.Slice()
	s[0].Close = 99

	if got := w.Slice()[0].Close; got != 1 {
		t.Fatalf("mutating slice leaked into window: got %v", got)
	}
}

func TestWindow_EmptyAndMinCapacity(t *testing.T) {
	w := New(0)
	if w.Cap() != 1 {
		t.Fatalf("expected cap=1, got %d", w.Cap())
	}
	if _, ok := w.Last(); ok {
		t.Fatal("last on empty window should return false")
	}
	if len(w.Slice()) != 0 {
		t.Fatal("slice of empty window should be empty")
	}
}
