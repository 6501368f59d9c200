package dsa

import (
	"github.com/armon/go-radix"
)

// Trie is a typed radix tree keyed by string.
// Keys sharing a prefix (document sources under one directory, ids with a
// common namespace) share nodes.
type Trie[V any] struct {
	tree *radix.Tree
}

// NewTrie creates an empty trie.
func NewTrie[V any]() *Trie[V] {
	return &Trie[V]{tree: radix.New()}
}

// Insert stores value under key and reports whether an existing value
// was replaced.
func (t *Trie[V]) Insert(key string, value V) bool {
	_, updated := t.tree.Insert(key, value)
	return updated
}

// Get returns the value stored under key.
func (t *Trie[V]) Get(key string) (V, bool) {
	raw, ok := t.tree.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	v, ok := raw.(V)
	return v, ok
}

// Delete removes key and reports whether it was present.
func (t *Trie[V]) Delete(key string) bool {
	_, ok := t.tree.Delete(key)
	return ok
}

// WalkPrefix calls fn for every entry whose key starts with prefix, in key
// order. Returning false from fn stops the walk.
func (t *Trie[V]) WalkPrefix(prefix string, fn func(key string, value V) bool) {
	t.tree.WalkPrefix(prefix, func(k string, raw interface{}) bool {
		v, ok := raw.(V)
		if !ok {
			return false
		}
		return !fn(k, v)
	})
}

// ValuesWithPrefix returns every value whose key starts with prefix, in key order.
func (t *Trie[V]) ValuesWithPrefix(prefix string) []V {
	var out []V
	t.WalkPrefix(prefix, func(_ string, v V) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Len returns the number of keys.
func (t *Trie[V]) Len() int {
	return t.tree.Len()
}
