package stream

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewBroadcaster(t *testing.T) {
	b := NewBroadcaster(0)
	if b.ListenerCount() != 0 {
		t.Errorf("initial ListenerCount = %d, want 0", b.ListenerCount())
	}
	if b.buffer != DefaultBuffer {
		t.Errorf("default buffer = %d, want %d", b.buffer, DefaultBuffer)
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster(8)

	l1 := b.Subscribe("one")
	l2 := b.Subscribe("two")
	if b.ListenerCount() != 2 {
		t.Errorf("ListenerCount = %d, want 2", b.ListenerCount())
	}

	b.Unsubscribe(l1)
	if b.ListenerCount() != 1 {
		t.Errorf("ListenerCount after unsubscribe = %d, want 1", b.ListenerCount())
	}

	// Unsubscribing twice must not panic on the done channel.
	b.Unsubscribe(l1)
	b.Unsubscribe(l2)
	if b.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d, want 0", b.ListenerCount())
	}
}

func TestBroadcastDelivers(t *testing.T) {
	b := NewBroadcaster(8)
	l := b.Subscribe("test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16, 10)
	go b.Run(ctx, source)

	frame := []int16{100, 200, 300, 400}
	source <- frame

	select {
	case got := <-l.C:
		if len(got) != len(frame) {
			t.Fatalf("frame length = %d, want %d", len(got), len(frame))
		}
		for i, v := range got {
			if v != frame[i] {
				t.Errorf("frame[%d] = %d, want %d", i, v, frame[i])
			}
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
	}

	b.Unsubscribe(l)
}

func TestBroadcastMultipleListeners(t *testing.T) {
	b := NewBroadcaster(8)
	listeners := make([]*Listener, 5)
	for i := range listeners {
		listeners[i] = b.Subscribe("n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16, 10)
	go b.Run(ctx, source)

	source <- []int16{42, -42}

	for i, l := range listeners {
		select {
		case got := <-l.C:
			if got[0] != 42 {
				t.Errorf("listener %d got frame[0]=%d, want 42", i, got[0])
			}
		case <-time.After(time.Second):
			t.Errorf("listener %d timed out", i)
		}
	}

	for _, l := range listeners {
		b.Unsubscribe(l)
	}
}

func TestBroadcastDropsSlowListener(t *testing.T) {
	b := NewBroadcaster(4)
	slow := b.Subscribe("slow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16, 32)
	go b.Run(ctx, source)

	for i := 0; i < 32; i++ {
		source <- []int16{int16(i)}
	}

	deadline := time.Now().Add(2 * time.Second)
	for slow.Drops() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if slow.Drops() == 0 {
		t.Fatal("no frames dropped for a listener that never reads")
	}
	if got := len(slow.C); got > 4 {
		t.Errorf("slow listener buffered %d frames, cap is 4", got)
	}

	b.Unsubscribe(slow)
}

func TestBroadcastStopsOnContextCancel(t *testing.T) {
	b := NewBroadcaster(8)
	ctx, cancel := context.WithCancel(context.Background())
	source := make(chan []int16, 10)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Run(ctx, source)
	}()

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster did not stop after context cancel")
	}
}

func TestBroadcastStopsOnSourceClose(t *testing.T) {
	b := NewBroadcaster(8)
	source := make(chan []int16, 10)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Run(context.Background(), source)
	}()

	close(source)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster did not stop after source closed")
	}
}

func TestListenerDoneChannel(t *testing.T) {
	b := NewBroadcaster(8)
	l := b.Subscribe("done")

	b.Unsubscribe(l)

	select {
	case <-l.Done():
	default:
		t.Error("done channel not closed after unsubscribe")
	}
}
