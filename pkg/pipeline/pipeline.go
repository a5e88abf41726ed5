// imcore - An iMessage daemon event normalization library.
// Copyright (C) 2024 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package pipeline implements a typed, multi-subscriber fan-out channel.
// Delivery is synchronous on the sender's goroutine, in registration order.
// Pipelines are the building block for every typed event stream the
// normalizer exposes, and handlers regularly re-publish onto other
// pipelines, so Send must be safe to call re-entrantly from a handler.
package pipeline

import (
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"
)

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Pipeline fans a value out to all current subscribers. Zero value is not
// usable; create with New.
type Pipeline[T any] struct {
	mu     sync.Mutex
	subs   []subscriber[T]
	nextID int
}

// New creates an empty pipeline.
func New[T any]() *Pipeline[T] {
	return &Pipeline[T]{}
}

// Subscribe registers a handler and returns a cancel func that removes it.
// Handlers registered during a Send see only subsequent sends.
func (p *Pipeline[T]) Subscribe(fn func(T)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs = append(p.subs, subscriber[T]{id: id, fn: fn})
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, sub := range p.subs {
			if sub.id == id {
				p.subs = append(p.subs[:i:i], p.subs[i+1:]...)
				return
			}
		}
	}
}

// Send delivers value to every subscriber synchronously, in registration
// order, on the calling goroutine. A panicking handler is logged and does
// not prevent delivery to the handlers after it.
func (p *Pipeline[T]) Send(value T) {
	p.mu.Lock()
	// Snapshot so handlers can subscribe/unsubscribe/Send without holding
	// the pipeline lock across user code.
	subs := p.subs
	p.mu.Unlock()

	for _, sub := range subs {
		deliver(sub.fn, value)
	}
}

func deliver[T any](fn func(T), value T) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Pipeline handler panicked")
		}
	}()
	fn(value)
}

// Glob subscribes dst's Send to each src, merging many pipelines of the same
// type into one.
func Glob[T any](dst *Pipeline[T], srcs ...*Pipeline[T]) *Pipeline[T] {
	for _, src := range srcs {
		src.Subscribe(dst.Send)
	}
	return dst
}
