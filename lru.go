package disklru

import (
	"container/list"
	"iter"
)

// lruTable indexes entries by key and keeps them in access order, least
// recently used first.
type lruTable struct {
	items map[string]*list.Element
	order *list.List
}

func newLRUTable() *lruTable {
	return &lruTable{
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

// get returns the entry for key and marks it most recently used.
func (t *lruTable) get(key string) *entry {
	el, ok := t.items[key]
	if !ok {
		return nil
	}
	t.order.MoveToBack(el)
	return el.Value.(*entry) //nolint:forcetypeassert // only *entry is stored
}

// peek returns the entry for key without touching its position.
func (t *lruTable) peek(key string) *entry {
	el, ok := t.items[key]
	if !ok {
		return nil
	}
	return el.Value.(*entry) //nolint:forcetypeassert // only *entry is stored
}

// add inserts e as the most recently used entry.
func (t *lruTable) add(e *entry) {
	if el, ok := t.items[e.key]; ok {
		el.Value = e
		t.order.MoveToBack(el)
		return
	}
	t.items[e.key] = t.order.PushBack(e)
}

func (t *lruTable) remove(key string) {
	if el, ok := t.items[key]; ok {
		t.order.Remove(el)
		delete(t.items, key)
	}
}

func (t *lruTable) len() int {
	return len(t.items)
}

// all yields entries from least to most recently used. The entry being
// yielded may be removed during iteration.
func (t *lruTable) all() iter.Seq[*entry] {
	return func(yield func(*entry) bool) {
		for el := t.order.Front(); el != nil; {
			next := el.Next()
			if !yield(el.Value.(*entry)) { //nolint:forcetypeassert // only *entry is stored
				return
			}
			el = next
		}
	}
}
