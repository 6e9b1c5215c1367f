package stream

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Sender delivers one wire message to the client transport.
type Sender interface {
	Send(msg interface{}) error
}

const emitterQueueSize = 32

// Emitter is the per-connection write pump: a single goroutine drains a
// bounded queue and hands messages to the Sender, keeping transport writes
// serialized. Send enqueues reliably (blocking); SendBestEffort drops when
// the queue is full, which is the policy for tentative results on a slow
// client. A transport write error marks the emitter inactive and later
// messages are discarded.
type Emitter struct {
	sender   Sender
	clientID string
	debug    bool

	queue    chan interface{}
	done     chan struct{}
	finished chan struct{}

	mu       sync.Mutex
	active   bool
	started  bool
	stopOnce sync.Once
}

// NewEmitter creates an emitter writing through sender.
func NewEmitter(sender Sender, clientID string, debug bool) (*Emitter, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender cannot be nil")
	}
	return &Emitter{
		sender:   sender,
		clientID: clientID,
		debug:    debug,
		queue:    make(chan interface{}, emitterQueueSize),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		active:   true,
	}, nil
}

// Start launches the write pump.
func (e *Emitter) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("emitter already started")
	}
	e.started = true

	go e.run(ctx)
	return nil
}

// Stop shuts the pump down after draining queued messages. Safe to call
// more than once.
func (e *Emitter) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
	})

	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if started {
		<-e.finished
	}
}

// stopped reports whether the pump has been told to stop or has exited.
func (e *Emitter) stopped() bool {
	select {
	case <-e.done:
		return true
	case <-e.finished:
		return true
	default:
		return false
	}
}

// Send enqueues a message, blocking until there is queue room. Used for
// committed results and control replies, which must not be silently lost.
func (e *Emitter) Send(msg interface{}) error {
	if e.stopped() {
		return fmt.Errorf("emitter stopped")
	}
	select {
	case e.queue <- msg:
		return nil
	case <-e.done:
		return fmt.Errorf("emitter stopped")
	case <-e.finished:
		return fmt.Errorf("emitter stopped")
	}
}

// SendBestEffort enqueues a message if there is room, dropping it
// otherwise. Returns whether the message was queued.
func (e *Emitter) SendBestEffort(msg interface{}) bool {
	if e.stopped() {
		return false
	}
	select {
	case e.queue <- msg:
		return true
	default:
		if e.debug {
			log.Printf("[Emitter] %s: queue full, dropping message", e.clientID)
		}
		return false
	}
}

// Active reports whether the transport is still believed writable.
func (e *Emitter) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// MarkInactive stops further transport writes; queued and future messages
// are discarded.
func (e *Emitter) MarkInactive() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = false
}

func (e *Emitter) run(ctx context.Context) {
	defer close(e.finished)

	for {
		select {
		case msg := <-e.queue:
			e.write(msg)
		case <-ctx.Done():
			e.MarkInactive()
			e.drain()
			return
		case <-e.done:
			e.drain()
			return
		}
	}
}

// drain empties the queue so late enqueuers are not left blocked, writing
// whatever the transport still accepts.
func (e *Emitter) drain() {
	for {
		select {
		case msg := <-e.queue:
			e.write(msg)
		default:
			return
		}
	}
}

func (e *Emitter) write(msg interface{}) {
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	if !active {
		return
	}

	if err := e.sender.Send(msg); err != nil {
		log.Printf("[Emitter] %s: send failed, marking connection inactive: %v", e.clientID, err)
		e.MarkInactive()
	}
}
