package transport

import (
	"fmt"
)

// A Context is a rank's view of the world: its identity plus the
// non-blocking point-to-point primitives (Isend/Irecv/Waitall) and a
// handful of blocking collectives that spec.md assumes an MPI-like
// transport supplies. The qlt package is written entirely against
// this interface so that a real MPI binding can stand in for Local.
type Context interface {
	Rank() int
	Size() int
	IsRoot() bool

	// Time returns the current virtual time of the transport's event
	// loop, in seconds. Callers use it purely for metrics; the QLT
	// protocol itself has no notion of wall-clock time.
	Time() float64

	// Isend posts a non-blocking send of data to peer under tag. The
	// data is copied before Isend returns, so the caller's slice is
	// immediately reusable; the returned Request is only useful for
	// symmetry with Irecv; it is always safe to Waitall on it.
	Isend(peer, tag int, data []float64) *Request

	// Irecv posts a non-blocking receive from peer under tag into
	// buf. buf is only valid to read once the returned Request has
	// been passed to Waitall and that call has returned.
	Irecv(peer, tag int, buf []float64) *Request

	// Waitall blocks until every non-nil, non-already-completed
	// Request in reqs has completed. nil entries are ignored.
	Waitall(reqs []*Request) error

	// AllReduce combines data element-wise across all ranks with fn
	// and returns the result on every rank.
	AllReduce(data []float64, fn func(a, b float64) float64) ([]float64, error)

	// Reduce combines data element-wise across all ranks with fn and
	// returns the result on root only; other ranks receive nil.
	Reduce(root int, data []float64, fn func(a, b float64) float64) ([]float64, error)

	// Gather collects one flat vector from every rank into root's
	// result, ordered by rank. Other ranks receive nil.
	Gather(root int, data []float64) ([][]float64, error)
}

// reqKind distinguishes a send request (already complete once
// posted, since data is copied on Isend) from a receive request
// (completes only once the matching message has been delivered).
type reqKind int

const (
	reqSend reqKind = iota
	reqRecv
)

// A Request tracks the completion of one Isend or Irecv call.
type Request struct {
	kind   reqKind
	stream *EventStream
	tag    int
	buf    []float64
	done   bool
}

type localContext struct {
	handle  *Handle
	port    *Port
	ports   []*Port
	network Network
}

// SpawnLocal builds an in-process Network of size ranks and calls f
// once per rank in its own goroutine, then runs the event loop to
// completion. It returns any deadlock error the loop reports.
//
// This mirrors the teacher's collcomm.SpawnComms pattern: one Port
// per rank, a shared Network, one goroutine per rank under a single
// EventLoop.
func SpawnLocal(size int, network Network, f func(ctx Context)) error {
	if size <= 0 {
		return fmt.Errorf("transport: size must be positive, got %d", size)
	}
	loop := NewEventLoop()
	ports := make([]*Port, size)
	for i := range ports {
		ports[i] = newPort(loop, i, size)
	}
	for i := range ports {
		rank := i
		loop.Go(func(h *Handle) {
			f(&localContext{
				handle:  h,
				port:    ports[rank],
				ports:   ports,
				network: network,
			})
		})
	}
	return loop.Run()
}

func (c *localContext) Rank() int     { return c.port.Rank }
func (c *localContext) Size() int     { return len(c.ports) }
func (c *localContext) IsRoot() bool  { return c.port.Rank == 0 }
func (c *localContext) Time() float64 { return c.handle.Time() }

func (c *localContext) Isend(peer, tag int, data []float64) *Request {
	cp := make([]float64, len(data))
	copy(cp, data)
	c.network.Send(c.handle, &wireMessage{
		Source: c.port,
		Dest:   c.ports[peer],
		Tag:    tag,
		Data:   cp,
	})
	return &Request{kind: reqSend, done: true}
}

func (c *localContext) Irecv(peer, tag int, buf []float64) *Request {
	return &Request{
		kind:   reqRecv,
		stream: c.port.streams[peer],
		tag:    tag,
		buf:    buf,
	}
}

func (c *localContext) Waitall(reqs []*Request) error {
	streamToReq := map[*EventStream]*Request{}
	var pending []*Request
	for _, r := range reqs {
		if r == nil || r.done {
			continue
		}
		if r.kind != reqRecv {
			continue
		}
		pending = append(pending, r)
		streamToReq[r.stream] = r
	}
	for len(pending) > 0 {
		streams := make([]*EventStream, len(pending))
		for i, r := range pending {
			streams[i] = r.stream
		}
		ev := c.handle.Poll(streams...)
		req, ok := streamToReq[ev.Stream]
		if !ok {
			panic("transport: event delivered on an unrequested stream")
		}
		msg, ok := ev.Message.(*wireMessage)
		if !ok {
			panic("transport: unexpected message type on wire")
		}
		if msg.Tag != req.tag {
			return fmt.Errorf("transport: expected tag %d from rank %d, got %d",
				req.tag, msg.Source.Rank, msg.Tag)
		}
		if len(msg.Data) != len(req.buf) {
			return fmt.Errorf("transport: message from rank %d has length %d, expected %d",
				msg.Source.Rank, len(msg.Data), len(req.buf))
		}
		copy(req.buf, msg.Data)
		req.done = true
		delete(streamToReq, ev.Stream)
		next := pending[:0]
		for _, r := range pending {
			if r != req {
				next = append(next, r)
			}
		}
		pending = next
	}
	return nil
}

// mpiCollectiveTag is used internally by the naive collective
// implementations below; it is never visible to qlt, which always
// picks its own tag for point-to-point traffic.
const mpiCollectiveTag = -1

func (c *localContext) Reduce(root int, data []float64, fn func(a, b float64) float64) ([]float64, error) {
	if c.Rank() == root {
		acc := make([]float64, len(data))
		copy(acc, data)
		for peer := 0; peer < c.Size(); peer++ {
			if peer == root {
				continue
			}
			buf := make([]float64, len(data))
			if err := c.Waitall([]*Request{c.Irecv(peer, mpiCollectiveTag, buf)}); err != nil {
				return nil, err
			}
			for i := range acc {
				acc[i] = fn(acc[i], buf[i])
			}
		}
		return acc, nil
	}
	if err := c.Waitall([]*Request{c.Isend(root, mpiCollectiveTag, data)}); err != nil {
		return nil, err
	}
	return nil, nil
}

func (c *localContext) AllReduce(data []float64, fn func(a, b float64) float64) ([]float64, error) {
	reduced, err := c.Reduce(0, data, fn)
	if err != nil {
		return nil, err
	}
	if c.Rank() == 0 {
		for peer := 1; peer < c.Size(); peer++ {
			if err := c.Waitall([]*Request{c.Isend(peer, mpiCollectiveTag, reduced)}); err != nil {
				return nil, err
			}
		}
		return reduced, nil
	}
	buf := make([]float64, len(data))
	if err := c.Waitall([]*Request{c.Irecv(0, mpiCollectiveTag, buf)}); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *localContext) Gather(root int, data []float64) ([][]float64, error) {
	if c.Rank() == root {
		out := make([][]float64, c.Size())
		out[root] = append([]float64(nil), data...)
		for peer := 0; peer < c.Size(); peer++ {
			if peer == root {
				continue
			}
			buf := make([]float64, len(data))
			if err := c.Waitall([]*Request{c.Irecv(peer, mpiCollectiveTag, buf)}); err != nil {
				return nil, err
			}
			out[peer] = buf
		}
		return out, nil
	}
	if err := c.Waitall([]*Request{c.Isend(root, mpiCollectiveTag, data)}); err != nil {
		return nil, err
	}
	return nil, nil
}
