package statistics

import "sort"

// tally counts occurrences per key and remembers the order keys were first seen.
type tally[K comparable, V any] struct {
	index   map[K]int
	entries []ranked[V]
}

type ranked[V any] struct {
	value V
	count int
}

func newTally[K comparable, V any]() *tally[K, V] {
	return &tally[K, V]{index: make(map[K]int)}
}

// add counts one occurrence of key. value is kept from the first occurrence.
func (t *tally[K, V]) add(key K, value V) {
	if i, ok := t.index[key]; ok {
		t.entries[i].count++
		return
	}
	t.index[key] = len(t.entries)
	t.entries = append(t.entries, ranked[V]{value: value, count: 1})
}

func (t *tally[K, V]) len() int {
	return len(t.entries)
}

// ranking returns entries by descending count. Equal counts keep first-seen order.
func (t *tally[K, V]) ranking() []ranked[V] {
	out := make([]ranked[V], len(t.entries))
	copy(out, t.entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].count > out[j].count
	})
	return out
}
