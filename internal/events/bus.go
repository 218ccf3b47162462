// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


// Package events provides a minimal synchronous observer registry.
package events

import (
	"sync"
)

// A handler for events of type E
type Handler[E any] func(e E)

// Delivers published events to all subscribed handlers in registration order.
// Deliveries never overlap, so handlers run one at a time even when events are
// published from several goroutines
type Bus[E any] struct {
	mu         sync.Mutex
	nextID     int
	ids        []int
	handlers   []Handler[E]
	queue      []E
	delivering bool
}

// Registers a handler. Returns a function which removes it again
func (b *Bus[E]) Subscribe(h Handler[E]) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id:=b.nextID
	b.nextID++
	b.ids=append(b.ids, id)
	b.handlers=append(b.handlers, h)
	return func() { b.remove(id) }
}

func (b *Bus[E]) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, x:=range b.ids {
		if x==id {
			b.ids=append(b.ids[:i:i], b.ids[i+1:]...)
			b.handlers=append(b.handlers[:i:i], b.handlers[i+1:]...)
			return
		}
	}
}

// Calls all handlers registered when delivery of the event starts. If no delivery is in
// progress, this happens synchronously on the publishing goroutine. Otherwise the event is
// queued, and the ongoing delivery hands it out after the events published before it.
// Handlers may publish or subscribe themselves
func (b *Bus[E]) Publish(e E) {
	if b==nil { return }
	b.mu.Lock()
	b.queue=append(b.queue, e)
	if b.delivering {
		b.mu.Unlock()
		return
	}
	b.delivering=true
	b.mu.Unlock()

	defer func() {
		if r:=recover(); r!=nil {
			b.mu.Lock()
			b.delivering, b.queue = false, nil
			b.mu.Unlock()
			panic(r)
		}
	}()
	for {
		b.mu.Lock()
		if len(b.queue)==0 {
			b.delivering, b.queue = false, nil
			b.mu.Unlock()
			return
		}
		next, hs:=b.queue[0], b.handlers
		b.queue=b.queue[1:]
		b.mu.Unlock()
		for _,h:=range hs {
			h(next)
		}
	}
}
