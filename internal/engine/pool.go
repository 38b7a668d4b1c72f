package engine

import "github.com/pawclicker/server/internal/domain/resource"

// Poolable is anything that can be parked and reused by a Pool.
type Poolable interface {
	Active() bool
	Activate()
	Deactivate()
}

// Pool hands out inactive items and grows only when all of them are in use.
// It never shrinks; items are recycled by deactivating them.
type Pool[T Poolable] struct {
	items   []T
	newItem func(index int) T
}

// NewPool creates an empty pool. newItem builds the item stored at index.
func NewPool[T Poolable](newItem func(index int) T) *Pool[T] {
	return &Pool[T]{newItem: newItem}
}

// Acquire returns the first inactive item, creating one if none is free.
// The returned item is already active.
func (p *Pool[T]) Acquire() T {
	for _, it := range p.items {
		if !it.Active() {
			it.Activate()
			return it
		}
	}

	it := p.newItem(len(p.items))
	it.Activate()
	p.items = append(p.items, it)
	return it
}

// Release makes an item eligible for the next Acquire.
func (p *Pool[T]) Release(it T) {
	it.Deactivate()
}

// Size is the number of items ever created.
func (p *Pool[T]) Size() int {
	return len(p.items)
}

// ActiveCount is the number of items currently handed out.
func (p *Pool[T]) ActiveCount() int {
	n := 0
	for _, it := range p.items {
		if it.Active() {
			n++
		}
	}
	return n
}

// TapTextPool recycles the floating "+N" feedback tokens.
type TapTextPool = Pool[*resource.FeedbackToken]

// NewTapTextPool creates an empty feedback token pool.
func NewTapTextPool() *TapTextPool {
	return NewPool(func(index int) *resource.FeedbackToken {
		return &resource.FeedbackToken{ID: index}
	})
}
