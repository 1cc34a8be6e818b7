package ringbuf

import (
	"strconv"
	"sync"
	"testing"

	"coinsignal/internal/model"
)

func price(v float64) model.HistoricalPrice {
	return model.HistoricalPrice{Date: strconv.Itoa(int(v)), Price: v}
}

func TestWindow_BasicPush(t *testing.T) {
	w := New(4)

	if w.Push(price(1)) || w.Push(price(2)) {
		t.Fatal("push into non-full window should not evict")
	}
	if w.Len() != 2 {
		t.Fatalf("expected len=2, got %d", w.Len())
	}

	snap := w.Snapshot()
	if len(snap) != 2 || snap[0].Price != 1 || snap[1].Price != 2 {
		t.Fatalf("unexpected snapshot %v", snap)
	}

	last, ok := w.Last()
	if !ok || last.Price != 2 {
		t.Fatalf("expected last=2, got %v ok=%v", last.Price, ok)
	}
}

func TestWindow_OverwritesOldest(t *testing.T) {
	w := New(3)
	for i := 1; i <= 3; i++ {
		w.Push(price(float64(i)))
	}

	if !w.Push(price(4)) {
		t.Fatal("push into full window should evict")
	}
	if w.Len() != 3 {
		t.Fatalf("expected len=3, got %d", w.Len())
	}

	snap := w.Snapshot()
	want := []float64{2, 3, 4}
	for i, p := range snap {
		if p.Price != want[i] {
			t.Fatalf("at %d: expected %v, got %v", i, want[i], p.Price)
		}
	}
}

func TestWindow_Wraparound(t *testing.T) {
	w := New(4)

	// Push many rounds; the window must always hold the last four in order
	for i := 0; i < 50; i++ {
		w.Push(price(float64(i)))
		snap := w.Snapshot()
		start := i - len(snap) + 1
		for j, p := range snap {
			if p.Price != float64(start+j) {
				t.Fatalf("after push %d, at %d: expected %d, got %v", i, j, start+j, p.Price)
			}
		}
	}
	if w.Len() != 4 || w.Cap() != 4 {
		t.Fatalf("expected len=cap=4, got len=%d cap=%d", w.Len(), w.Cap())
	}
}

func TestWindow_ReplaceLast(t *testing.T) {
	w := New(2)
	if w.ReplaceLast(price(1)) {
		t.Fatal("replace on empty window should fail")
	}

	w.Push(price(1))
	w.Push(price(2))
	w.Push(price(3)) // evicts 1, head moves
	if !w.ReplaceLast(price(9)) {
		t.Fatal("replace should succeed")
	}

	snap := w.Snapshot()
	if snap[0].Price != 2 || snap[1].Price != 9 {
		t.Fatalf("unexpected snapshot %v", snap)
	}
}

func TestWindow_SnapshotIsCopy(t *testing.T) {
	w := New(2)
	w.Push(price(1))
	snap := w.Snapshot()
	snap[0].Price = 100

	if got := w.Snapshot()[0].Price; got != 1 {
		t.Fatalf("snapshot mutation leaked into window: %v", got)
	}
}

func TestWindow_MinCapacity(t *testing.T) {
	if New(0).Cap() != 2 {
		t.Fatal("expected minimum capacity 2")
	}
}

func TestWindow_ConcurrentPushSnapshot(t *testing.T) {
	const count = 10_000
	w := New(64)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			w.Push(price(float64(i)))
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < count/10; i++ {
			snap := w.Snapshot()
			for j := 1; j < len(snap); j++ {
				if snap[j].Price != snap[j-1].Price+1 {
					t.Errorf("snapshot out of order at %d: %v then %v", j, snap[j-1].Price, snap[j].Price)
					return
				}
			}
		}
	}()

	wg.Wait()
	if w.Len() != 64 {
		t.Fatalf("expected full window, got %d", w.Len())
	}
}
