package download

import "sync"

// Signal names an event delivered to subscribers of a Download.
type Signal string

const (
	// SignalProgress is delivered once per received body chunk.
	SignalProgress Signal = "download.progress"
	// SignalDidFinish is delivered once when the download finishes or fails.
	// It is not delivered for a canceled download.
	SignalDidFinish Signal = "download.did-finish"
)

// Listener receives a signal. The payload is the download itself.
type Listener func(d *Download)

type subscription struct {
	id     uint64
	signal Signal
	fn     Listener
}

type event struct {
	signal Signal
	d      *Download
}

// emitter queues signals in transition order and delivers them from a
// single goroutine, so listeners never run under the download lock.
type emitter struct {
	mu     sync.Mutex
	subs   []subscription
	nextID uint64
	queue  []event
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newEmitter() *emitter {
	return &emitter{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (e *emitter) subscribe(sig Signal, fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscription{id: id, signal: sig, fn: fn})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// post queues a signal. Posts after close are dropped.
func (e *emitter) post(sig Signal, d *Download) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, event{signal: sig, d: d})
	e.mu.Unlock()
	e.notify()
}

// close stops accepting signals. Already queued signals are still delivered.
func (e *emitter) close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.notify()
}

func (e *emitter) notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// run delivers queued signals until the emitter is closed and drained.
func (e *emitter) run() {
	defer close(e.done)

	for {
		e.mu.Lock()
		batch, closed := e.queue, e.closed
		e.queue = nil
		e.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-e.wake
			continue
		}

		for _, ev := range batch {
			e.deliver(ev)
		}
	}
}

func (e *emitter) deliver(ev event) {
	e.mu.Lock()
	var fns []Listener
	for _, s := range e.subs {
		if s.signal == ev.signal {
			fns = append(fns, s.fn)
		}
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev.d)
	}
}
