// imcore - An iMessage daemon event normalization library.
// Copyright (C) 2024 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package orderedmap provides a fixed-capacity key/value map ordered by
// recency of touch. Reads and writes both count as touches; when a bounded
// map would overflow, the least-recently-touched entry is evicted first.
package orderedmap

import "container/list"

type entry[K comparable, V any] struct {
	key   K
	value V
}

// OrderedMap is a key→value map that tracks recency. It is not safe for
// concurrent use; owners serialize access themselves.
type OrderedMap[K comparable, V any] struct {
	// capacity caps the entry count; zero or negative means unbounded.
	capacity int
	order    *list.List
	elements map[K]*list.Element
}

// New returns an unbounded OrderedMap.
func New[K comparable, V any]() *OrderedMap[K, V] {
	return WithCapacity[K, V](0)
}

// WithCapacity returns an OrderedMap that holds at most capacity entries,
// evicting the least-recently-touched entry on overflow.
func WithCapacity[K comparable, V any](capacity int) *OrderedMap[K, V] {
	return &OrderedMap[K, V]{
		capacity: capacity,
		order:    list.New(),
		elements: make(map[K]*list.Element),
	}
}

// Get returns the value for key and marks it most recently used.
func (m *OrderedMap[K, V]) Get(key K) (V, bool) {
	elem, ok := m.elements[key]
	if !ok {
		var zero V
		return zero, false
	}
	m.order.MoveToBack(elem)
	return elem.Value.(*entry[K, V]).value, true
}

// Set stores the value for key, marking it most recently used. Storing over
// an existing key never grows the map. When the map is at capacity, the
// least-recently-touched entry is evicted to make room.
func (m *OrderedMap[K, V]) Set(key K, value V) {
	if elem, ok := m.elements[key]; ok {
		elem.Value.(*entry[K, V]).value = value
		m.order.MoveToBack(elem)
		return
	}
	if m.capacity > 0 && m.order.Len() >= m.capacity {
		m.evictOldest()
	}
	m.elements[key] = m.order.PushBack(&entry[K, V]{key: key, value: value})
}

// Delete removes key if present.
func (m *OrderedMap[K, V]) Delete(key K) {
	if elem, ok := m.elements[key]; ok {
		m.order.Remove(elem)
		delete(m.elements, key)
	}
}

// Len returns the number of entries.
func (m *OrderedMap[K, V]) Len() int {
	return m.order.Len()
}

// RemoveOldest evicts the n least-recently-touched entries.
func (m *OrderedMap[K, V]) RemoveOldest(n int) {
	for i := 0; i < n && m.order.Len() > 0; i++ {
		m.evictOldest()
	}
}

// Shrink evicts oldest entries until at most size remain.
func (m *OrderedMap[K, V]) Shrink(size int) {
	if size < 0 {
		size = 0
	}
	m.RemoveOldest(m.order.Len() - size)
}

// Keys returns the keys from least to most recently touched.
func (m *OrderedMap[K, V]) Keys() []K {
	keys := make([]K, 0, m.order.Len())
	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*entry[K, V]).key)
	}
	return keys
}

// Values returns the values from least to most recently touched.
func (m *OrderedMap[K, V]) Values() []V {
	values := make([]V, 0, m.order.Len())
	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		values = append(values, elem.Value.(*entry[K, V]).value)
	}
	return values
}

func (m *OrderedMap[K, V]) evictOldest() {
	front := m.order.Front()
	if front == nil {
		return
	}
	m.order.Remove(front)
	delete(m.elements, front.Value.(*entry[K, V]).key)
}
