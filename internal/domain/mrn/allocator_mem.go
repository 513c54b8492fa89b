package mrn

import (
	"context"
	"sync"
	"time"
)

// memAllocator is an in-process Allocator with the same guarantees as the
// Postgres one: per-category mutual exclusion, no cross-category blocking.
// It exists for tests and for single-process tooling that runs without a
// database; multi-process deployments must use NewAllocatorPG.
type memAllocator struct {
	mu    sync.Mutex // guards the maps, not the counters
	locks map[Category]*sync.Mutex
	seqs  map[Category]int
}

// NewMemAllocator returns an empty in-memory allocator covering the fixed
// category set.
func NewMemAllocator() Allocator {
	m := &memAllocator{
		locks: make(map[Category]*sync.Mutex),
		seqs:  make(map[Category]int),
	}
	for _, c := range Categories() {
		m.locks[c] = &sync.Mutex{}
	}
	return m
}

func (m *memAllocator) Allocate(_ context.Context, category Category) (*Allocation, error) {
	if !category.Valid() {
		return nil, &InvalidCategoryError{Category: string(category)}
	}

	m.mu.Lock()
	lock := m.locks[category]
	m.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	m.seqs[category]++
	sequence := m.seqs[category]
	m.mu.Unlock()

	return &Allocation{
		MrID:     FormatMrID(category, sequence),
		Category: category,
		Sequence: sequence,
	}, nil
}

func (m *memAllocator) Counters(_ context.Context) ([]Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var counters []Counter
	for _, c := range Categories() {
		counters = append(counters, Counter{
			Category:        c,
			CurrentSequence: m.seqs[c],
			UpdatedAt:       time.Now(),
		})
	}
	return counters, nil
}
