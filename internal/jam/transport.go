package jam

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Send after the transport has shut down.
var ErrClosed = errors.New("jam: transport closed")

// Transport carries jam messages between a host and its guests. Send must be
// safe for concurrent use; Messages is closed when the peer goes away.
type Transport interface {
	Send(Message) error
	Messages() <-chan Message
	Close() error
}

type pipeEnd struct {
	out chan<- Message
	in  <-chan Message

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	once   *sync.Once
}

// Pipe returns two in-memory transports wired back to back. Used by tests
// and by a guest UI attached to an in-process host.
func Pipe(buffer int) (Transport, Transport) {
	ab := make(chan Message, buffer)
	ba := make(chan Message, buffer)
	done := make(chan struct{})
	once := &sync.Once{}
	a := &pipeEnd{out: ab, in: ba, done: done, once: once}
	b := &pipeEnd{out: ba, in: ab, done: done, once: once}
	return a, b
}

func (p *pipeEnd) Send(m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.out <- m:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

func (p *pipeEnd) Messages() <-chan Message { return p.in }

// Close shuts down both ends. Either side closing ends the session, which
// matches a socket hangup.
func (p *pipeEnd) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.once.Do(func() { close(p.done) })
	close(p.out)
	return nil
}
