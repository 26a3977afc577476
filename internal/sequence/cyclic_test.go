package sequence

import (
	"errors"
	"sync"
	"testing"

	"github.com/wesleyorama2/rhino/internal/simerr"
)

func TestCyclic_Order(t *testing.T) {
	seq, err := New([]string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	want := []string{"a", "b", "c", "a", "b"}
	for i, w := range want {
		got, err := seq.Next()
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if got != w {
			t.Errorf("Next() #%d = %q, want %q", i, got, w)
		}
	}
	if !seq.HasNext() {
		t.Error("HasNext() = false before Stop, want true")
	}
}

func TestCyclic_Stop(t *testing.T) {
	seq, _ := New([]int{1})
	seq.Stop()
	seq.Stop()

	if seq.HasNext() {
		t.Error("HasNext() = true after Stop, want false")
	}
	for i := 0; i < 3; i++ {
		if _, err := seq.Next(); !errors.Is(err, simerr.ErrSequenceExhausted) {
			t.Errorf("Next() after Stop error = %v, want ErrSequenceExhausted", err)
		}
	}
}

func TestCyclic_Empty(t *testing.T) {
	_, err := New([]int{})
	var def *simerr.InvalidDefinitionError
	if !errors.As(err, &def) {
		t.Fatalf("New(empty) error = %v, want InvalidDefinitionError", err)
	}
}

func TestCyclic_CopiesItems(t *testing.T) {
	items := []int{1, 2}
	seq, _ := New(items)
	items[0] = 99

	if got, _ := seq.Next(); got != 1 {
		t.Errorf("Next() = %d, want 1", got)
	}
}

func TestCyclic_ConcurrentNext(t *testing.T) {
	const size = 8
	const rounds = 50

	items := make([]int, size)
	for i := range items {
		items[i] = i
	}
	seq, _ := New(items)

	var mu sync.Mutex
	counts := make(map[int]int)
	var wg sync.WaitGroup
	for w := 0; w < size; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				v, err := seq.Next()
				if err != nil {
					t.Errorf("Next() error = %v", err)
					return
				}
				mu.Lock()
				counts[v]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for i := 0; i < size; i++ {
		if counts[i] != rounds {
			t.Errorf("item %d returned %d times, want %d", i, counts[i], rounds)
		}
	}
}

func TestConditional_StopsAfterMatch(t *testing.T) {
	seq, err := NewConditional([]int{1, 2, 3}, func(v int) bool { return v == 2 })
	if err != nil {
		t.Fatalf("NewConditional() error = %v", err)
	}

	if v, _ := seq.Next(); v != 1 {
		t.Errorf("first Next() = %d, want 1", v)
	}
	if v, _ := seq.Next(); v != 2 {
		t.Errorf("second Next() = %d, want 2", v)
	}
	if seq.HasNext() {
		t.Error("HasNext() = true after match, want false")
	}
	if _, err := seq.Next(); !errors.Is(err, simerr.ErrSequenceExhausted) {
		t.Errorf("Next() after match error = %v, want ErrSequenceExhausted", err)
	}
}
