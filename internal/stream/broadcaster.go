// Package stream carries the engine's monitor mix to passive listeners:
// people in a jam session without the stems, or anyone pointing a browser at
// the player. One Broadcaster consumes the engine's frame output; local
// playback and every network stream subscribe to it.
package stream

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is a listener's frame buffer: ~3s at 20ms per frame.
const DefaultBuffer = 150

// Broadcaster fans out PCM frames from one source to N listeners.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	buffer    int
}

// Listener receives 20ms PCM frames from the broadcaster.
type Listener struct {
	C     chan []int16
	done  chan struct{}
	label string
	drops atomic.Int64
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Drops reports how many frames were dropped because the listener lagged.
func (l *Listener) Drops() int64 { return l.drops.Load() }

// NewBroadcaster creates a broadcaster whose listeners buffer the given
// number of frames (DefaultBuffer when <= 0).
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
		buffer:    buffer,
	}
}

// Subscribe registers a listener. The label only shows up in logs.
func (b *Broadcaster) Subscribe(label string) *Listener {
	l := &Listener{
		C:     make(chan []int16, b.buffer),
		done:  make(chan struct{}),
		label: label,
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, present := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if !present {
		return
	}
	close(l.done)
	if d := l.Drops(); d > 0 {
		log.Printf("stream: listener %q dropped %d frames", l.label, d)
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Run fans frames from source out to all listeners until the source closes
// or ctx is cancelled. A slow listener loses frames; the mix never stalls on
// it.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					l.drops.Add(1)
				}
			}
			b.mu.RUnlock()
		}
	}
}
