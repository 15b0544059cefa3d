// Package wsalg contains the small generic containers the neighbor
// cache and RPL table are built on.  Adapted from AdGuardHome's
// internal/aghalg package: the insertion-order-preserving map this
// core's soft-state tables require (spec.md section 3: "Neighbor cache
// and RPL neighbor table are both insertion-ordered containers").
package wsalg

import "slices"

// InsertionMap is a map that iterates in the order keys were first
// inserted, which NCE and RN tables require (spec.md section 3).  It
// must be initialized with [NewInsertionMap].
type InsertionMap[K comparable, V any] struct {
	vals map[K]V
	keys []K
}

// NewInsertionMap returns an empty, ready-to-use map.
func NewInsertionMap[K comparable, V any]() (m *InsertionMap[K, V]) {
	return &InsertionMap[K, V]{
		vals: map[K]V{},
	}
}

// Set adds or replaces the value at key, appending key to the
// insertion order if it's new.
func (m *InsertionMap[K, V]) Set(key K, val V) {
	if _, has := m.vals[key]; !has {
		m.keys = append(m.keys, key)
	}

	m.vals[key] = val
}

// Get returns the value at key, if any.
func (m *InsertionMap[K, V]) Get(key K) (val V, ok bool) {
	val, ok = m.vals[key]

	return val, ok
}

// Del removes key, preserving the relative order of the rest.
func (m *InsertionMap[K, V]) Del(key K) {
	if _, has := m.vals[key]; !has {
		return
	}

	delete(m.vals, key)
	m.keys = slices.DeleteFunc(m.keys, func(k K) bool { return k == key })
}

// Len returns the number of entries.
func (m *InsertionMap[K, V]) Len() int { return len(m.keys) }

// Range calls f for every entry in insertion order, stopping early if
// f returns false.
func (m *InsertionMap[K, V]) Range(f func(key K, val V) (cont bool)) {
	for _, k := range m.keys {
		v, ok := m.vals[k]
		if !ok {
			continue
		}

		if !f(k, v) {
			return
		}
	}
}

// Keys returns a copy of the insertion-ordered key list.
func (m *InsertionMap[K, V]) Keys() (keys []K) {
	return slices.Clone(m.keys)
}

// Oldest returns the first-inserted entry still present, if any.  The
// neighbor cache's table-full eviction does not use it; it walks
// entries with [InsertionMap.Range] to find the oldest
// STALE/UNREACHABLE one.
func (m *InsertionMap[K, V]) Oldest() (key K, val V, ok bool) {
	for _, k := range m.keys {
		v, has := m.vals[k]
		if has {
			return k, v, true
		}
	}

	var zk K
	var zv V

	return zk, zv, false
}
