// Package handletable maps the opaque handle ids handed to
// the driver onto the open file contexts behind them.
package handletable

import (
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/godokan/go-dokan/fserr"
)

// MinimumHandle is the first id handed out. Smaller values
// are never valid, which keeps zero free to mean "no handle"
// in the driver's file info.
const MinimumHandle uint64 = 100

var (
	// ErrExhausted is returned when no further id can be
	// allocated.
	ErrExhausted = errors.New("handle ids exhausted")

	// ErrInvalidHandle matches the error returned by Lookup
	// for an unknown id.
	ErrInvalidHandle = fserr.ErrInvalidHandle
)

// Table is a concurrent map from handle id to value.
//
// Ids grow monotonically, so an id is never reused while
// the table lives, even after it was released.
type Table[T any] struct {
	mtx     sync.Mutex
	next    uint64
	limit   uint64
	entries map[uint64]T
}

// New creates an empty table.
func New[T any]() *Table[T] {
	return &Table[T]{
		next:    MinimumHandle,
		limit:   math.MaxUint64,
		entries: make(map[uint64]T),
	}
}

// Allocate stores v under a fresh id.
func (t *Table[T]) Allocate(v T) (uint64, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.next >= t.limit {
		return 0, ErrExhausted
	}
	id := t.next
	t.next++
	t.entries[id] = v
	return id, nil
}

// Lookup returns the value stored under id.
func (t *Table[T]) Lookup(id uint64) (T, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	v, ok := t.entries[id]
	if !ok {
		var zero T
		return zero, &fserr.HandleError{Handle: id}
	}
	return v, nil
}

// Release removes id from the table and returns the value
// it held. Releasing an unknown id is a no-op.
func (t *Table[T]) Release(id uint64) (T, bool) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	v, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return v, ok
}

// Len returns the number of live ids.
func (t *Table[T]) Len() int {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return len(t.entries)
}

type entry[T any] struct {
	id    uint64
	value T
}

func (t *Table[T]) snapshot() []entry[T] {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	result := make([]entry[T], 0, len(t.entries))
	for id, v := range t.entries {
		result = append(result, entry[T]{id: id, value: v})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].id < result[j].id
	})
	return result
}

// Range calls f for every live id in ascending order until
// f returns false. The table is not locked while f runs, so
// f may call back into the table.
func (t *Table[T]) Range(f func(id uint64, v T) bool) {
	for _, e := range t.snapshot() {
		if !f(e.id, e.value) {
			return
		}
	}
}

// Drain releases every live id and returns the values in
// ascending id order.
func (t *Table[T]) Drain() []T {
	t.mtx.Lock()
	entries := t.entries
	t.entries = make(map[uint64]T)
	t.mtx.Unlock()

	ids := make([]uint64, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	result := make([]T, 0, len(ids))
	for _, id := range ids {
		result = append(result, entries[id])
	}
	return result
}
