package mrn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestAllocateMonotonicFromOne(t *testing.T) {
	alloc := NewMemAllocator()
	ctx := context.Background()

	for i := 1; i <= 25; i++ {
		a, err := alloc.Allocate(ctx, CategoryObstetri)
		if err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
		if a.Sequence != i {
			t.Fatalf("sequence = %d, want %d", a.Sequence, i)
		}
		if want := fmt.Sprintf("MROBS%04d", i); a.MrID != want {
			t.Fatalf("mr_id = %s, want %s", a.MrID, want)
		}
	}
}

func TestAllocateEndToEndExample(t *testing.T) {
	alloc := NewMemAllocator()
	ctx := context.Background()

	want := []string{"MROBS0001", "MROBS0002", "MROBS0003"}
	for i, w := range want {
		a, err := alloc.Allocate(ctx, CategoryObstetri)
		if err != nil {
			t.Fatalf("Allocate #%d: %v", i+1, err)
		}
		if a.MrID != w {
			t.Errorf("allocation %d = %s, want %s", i+1, a.MrID, w)
		}
	}
}

func TestAllocateRejectsInvalidCategory(t *testing.T) {
	alloc := NewMemAllocator()
	_, err := alloc.Allocate(context.Background(), Category("pediatri"))
	var invalid *InvalidCategoryError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidCategoryError, got %v", err)
	}
}

func TestAllocateConcurrentCategoryIsolation(t *testing.T) {
	alloc := NewMemAllocator()
	ctx := context.Background()

	const n = 50
	const m = 30

	var wg sync.WaitGroup
	obsIDs := make(chan int, n)
	gynIDs := make(chan int, m)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := alloc.Allocate(ctx, CategoryObstetri)
			if err != nil {
				t.Error(err)
				return
			}
			obsIDs <- a.Sequence
		}()
	}
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := alloc.Allocate(ctx, CategoryGynRepro)
			if err != nil {
				t.Error(err)
				return
			}
			gynIDs <- a.Sequence
		}()
	}
	wg.Wait()
	close(obsIDs)
	close(gynIDs)

	checkUnique := func(ch chan int, count int, label string) {
		seen := make(map[int]bool)
		for seq := range ch {
			if seen[seq] {
				t.Errorf("%s: sequence %d allocated twice", label, seq)
			}
			seen[seq] = true
			if seq < 1 || seq > count {
				t.Errorf("%s: sequence %d out of range [1,%d]", label, seq, count)
			}
		}
		if len(seen) != count {
			t.Errorf("%s: got %d unique sequences, want %d", label, len(seen), count)
		}
	}
	checkUnique(obsIDs, n, "obstetri")
	checkUnique(gynIDs, m, "gyn_repro")
}

func TestCountersReflectAllocations(t *testing.T) {
	alloc := NewMemAllocator()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := alloc.Allocate(ctx, CategoryObstetri); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := alloc.Allocate(ctx, CategoryGynSpecial); err != nil {
		t.Fatal(err)
	}

	counters, err := alloc.Counters(ctx)
	if err != nil {
		t.Fatalf("Counters: %v", err)
	}
	got := make(map[Category]int)
	for _, c := range counters {
		got[c.Category] = c.CurrentSequence
	}
	if got[CategoryObstetri] != 3 || got[CategoryGynRepro] != 0 || got[CategoryGynSpecial] != 1 {
		t.Errorf("counters = %v", got)
	}
}
