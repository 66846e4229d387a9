// Package transport provides the "parallel context" that the qlt
// package is built on: rank/size identity plus non-blocking
// point-to-point messaging (Isend/Irecv/Waitall) and a handful of
// blocking collectives (AllReduce/Reduce/Gather).
//
// The production contract is the Context interface. SpawnLocal
// provides an in-process implementation, built on a small virtual-time
// event loop, that runs every rank as its own goroutine within one
// binary.
// A real MPI binding can satisfy the same interface without the qlt
// package knowing the difference.
package transport

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/unixpickle/essentials"
)

// An EventStream is a uni-directional channel of events passed
// through an EventLoop.
//
// It is only safe to use an EventStream on one EventLoop at once.
type EventStream struct {
	loop    *EventLoop
	pending []interface{}
}

// An Event is a message received on some EventStream.
type Event struct {
	Message interface{}
	Stream  *EventStream
}

// A Timer controls the delayed delivery of an event: a single send
// that will happen at some point in the (virtual) future.
type Timer struct {
	time  float64
	event *Event
}

// Time gets the virtual time at which the timer will fire.
func (t *Timer) Time() float64 {
	return t.time
}

// A Handle is a goroutine's private mechanism for accessing an
// EventLoop. Goroutines must not share Handles.
type Handle struct {
	*EventLoop

	// These fields are empty when the goroutine is not
	// polling on any stream.
	pollStreams []*EventStream
	pollChan    chan<- *Event
}

// Poll waits for the next event from a set of streams.
func (h *Handle) Poll(streams ...*EventStream) *Event {
	ch := make(chan *Event, 1)
	h.modifyHandles(func() {
		if h.pollStreams != nil {
			panic("Handle is shared between goroutines")
		}
		for _, stream := range streams {
			if len(stream.pending) > 0 {
				msg := stream.pending[0]
				essentials.OrderedDelete(&stream.pending, 0)
				ch <- &Event{Message: msg, Stream: stream}
				return
			}
		}
		h.pollStreams = streams
		h.pollChan = ch
	})
	return <-ch
}

// Schedule creates a Timer for delivering an event.
func (h *Handle) Schedule(stream *EventStream, msg interface{}, delay float64) *Timer {
	if stream.loop != h.EventLoop {
		panic("EventStream is not associated with the correct EventLoop")
	}
	var timer *Timer
	h.modify(func() {
		timer = &Timer{
			time:  h.time + delay,
			event: &Event{Message: msg, Stream: stream},
		}
		if math.IsInf(timer.time, 0) || math.IsNaN(timer.time) {
			panic(fmt.Sprintf("invalid deadline: %f", timer.time))
		}
		h.timers = append(h.timers, timer)
	})
	return timer
}

// Cancel stops a timer if it is still scheduled. If it already fired,
// this has no effect.
func (h *Handle) Cancel(t *Timer) {
	h.modify(func() {
		for i, timer := range h.timers {
			if timer == t {
				essentials.UnorderedDelete(&h.timers, i)
				return
			}
		}
	})
}

// Sleep waits for a certain amount of virtual time to elapse.
func (h *Handle) Sleep(delay float64) {
	stream := h.Stream()
	h.Schedule(stream, nil, delay)
	h.Poll(stream)
}

// An EventLoop is the scheduler for a simulated collection of ranks.
//
// Every goroutine that accesses an EventLoop must be started with
// EventLoop.Go. The loop only advances virtual time once every active
// goroutine is blocked in Poll — simulated ranks never have to worry
// about real wall-clock timing while doing local compute.
type EventLoop struct {
	lock    sync.Mutex
	timers  []*Timer
	handles []*Handle

	time float64

	running  bool
	notifyCh chan struct{}
}

// NewEventLoop creates an event loop whose clock starts at 0.
func NewEventLoop() *EventLoop {
	return &EventLoop{notifyCh: make(chan struct{}, 1)}
}

// Stream creates a new EventStream on this loop.
func (e *EventLoop) Stream() *EventStream {
	return &EventStream{loop: e}
}

// Go runs f in a goroutine, passing it a fresh Handle.
func (e *EventLoop) Go(f func(h *Handle)) {
	h := &Handle{EventLoop: e}
	e.lock.Lock()
	e.handles = append(e.handles, h)
	e.lock.Unlock()
	go func() {
		f(h)
		e.modifyHandles(func() {
			for i, handle := range e.handles {
				if handle == h {
					essentials.UnorderedDelete(&e.handles, i)
					return
				}
			}
			panic("cannot free handle that does not exist")
		})
	}()
}

// Run drives the loop until every goroutine started with Go has
// returned. It is not safe to call Run from more than one goroutine
// at a time. Returns an error if the simulated ranks deadlock (every
// handle is polling and no timers remain).
func (e *EventLoop) Run() error {
	e.lock.Lock()
	if e.running {
		e.lock.Unlock()
		panic("EventLoop is already running")
	}
	e.running = true
	e.lock.Unlock()

	defer func() {
		e.lock.Lock()
		e.running = false
		e.lock.Unlock()
	}()

	for range e.notifyCh {
		if shouldContinue, err := e.step(); !shouldContinue {
			return err
		}
	}

	panic("unreachable")
}

// Time gets the current virtual time.
func (e *EventLoop) Time() float64 {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.time
}

func (e *EventLoop) modify(f func()) {
	e.lock.Lock()
	defer e.lock.Unlock()
	f()
}

func (e *EventLoop) modifyHandles(f func()) {
	e.lock.Lock()
	defer func() {
		e.lock.Unlock()
		select {
		case e.notifyCh <- struct{}{}:
		default:
		}
	}()
	f()
}

func (e *EventLoop) step() (bool, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if len(e.handles) == 0 {
		return false, nil
	}

	for _, h := range e.handles {
		if len(h.pollStreams) == 0 {
			// A goroutine is doing real-time local work; let it run.
			return true, nil
		}
	}

	for len(e.timers) > 0 {
		// Shuffle so two timers with the same deadline don't
		// fire in a deterministic order.
		indices := rand.Perm(len(e.timers))

		minTimerIdx := indices[0]
		for _, i := range indices[1:] {
			if e.timers[i].time < e.timers[minTimerIdx].time {
				minTimerIdx = i
			}
		}
		timer := e.timers[minTimerIdx]

		essentials.UnorderedDelete(&e.timers, minTimerIdx)
		e.time = math.Max(e.time, timer.time)
		if e.deliver(timer.event) {
			return true, nil
		}
	}

	return false, errors.New("transport: deadlock, every rank is blocked in Poll")
}

func (e *EventLoop) deliver(event *Event) bool {
	indices := rand.Perm(len(e.handles))
	for _, i := range indices {
		h := e.handles[i]
		for _, stream := range h.pollStreams {
			if stream == event.Stream {
				h.pollChan <- event
				h.pollChan = nil
				h.pollStreams = nil
				return true
			}
		}
	}
	event.Stream.pending = append(event.Stream.pending, event.Message)
	return false
}
