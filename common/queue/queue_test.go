package queue

import (
	"sync"
	"testing"
	"time"
)

func TestFIFOOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 100; i++ {
		q.Put(i)
	}
	if q.Len() != 100 {
		t.Fatalf("expected 100 queued items, got %d", q.Len())
	}
	for i := 0; i < 100; i++ {
		if v := q.Get(); v != i {
			t.Fatalf("expected %d, got %d", i, v)
		}
	}
	if _, ok := q.TryGet(); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestGetBlocksUntilPut(t *testing.T) {
	q := New[string]()
	got := make(chan string)
	go func() { got <- q.Get() }()

	select {
	case v := <-got:
		t.Fatalf("Get returned %q before anything was put", v)
	case <-time.After(20 * time.Millisecond):
	}
	q.Put("x")
	select {
	case v := <-got:
		if v != "x" {
			t.Fatalf("expected x, got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("Get did not wake after Put")
	}
}

func TestGetTimeout(t *testing.T) {
	q := New[int]()
	start := time.Now()
	if _, ok := q.GetTimeout(30 * time.Millisecond); ok {
		t.Fatalf("expected timeout on empty queue")
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("GetTimeout returned too early")
	}
	q.Put(7)
	if v, ok := q.GetTimeout(time.Second); !ok || v != 7 {
		t.Fatalf("expected 7, got %v %v", v, ok)
	}
}

func TestConcurrentProducers(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				q.Put(i)
			}
		}()
	}
	wg.Wait()
	sum := 0
	for i := 0; i < 2000; i++ {
		sum += q.Get()
	}
	if sum != 8*(249*250/2) {
		t.Fatalf("unexpected sum %d", sum)
	}
}
