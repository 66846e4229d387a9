package transport

import (
	"math"
	"math/rand"
	"sync"
)

// A Port identifies one rank's point of communication on a Network.
// Every rank owns exactly one Port; a Port has one incoming
// EventStream per possible sender, so a Waitall can poll for a
// specific peer without racing against messages from other peers.
type Port struct {
	Rank    int
	streams []*EventStream
}

// newPort allocates a Port with one incoming stream per rank in
// [0, size).
func newPort(loop *EventLoop, rank, size int) *Port {
	streams := make([]*EventStream, size)
	for i := range streams {
		streams[i] = loop.Stream()
	}
	return &Port{Rank: rank, streams: streams}
}

// A wireMessage is a chunk of bulk data sent between ranks, carrying
// the same (source, tag) addressing scheme MPI point-to-point calls
// use.
type wireMessage struct {
	Source *Port
	Dest   *Port
	Tag    int
	Data   []float64
}

// A Network delivers wireMessages between Ports. Send is
// non-blocking: the message eventually arrives on the destination
// port's per-sender EventStream.
type Network interface {
	Send(h *Handle, msgs ...*wireMessage)
}

// A SimNetwork delivers every message after a latency uniformly
// distributed in [0, MaxLatency], independent of any bandwidth
// contention. It intentionally does not model shared-link
// oversubscription: the QLT wire protocol never has more than one
// message in flight between a given pair of ranks in a given
// direction within a level, so bandwidth sharing has nothing to
// contend over here.
//
// It does, however, guarantee non-overtaking delivery on every
// (source, dest) stream: a single sender/receiver pair exchanges one
// coalesced message per level across many levels of a sweep, all on
// the same EventStream (see Port.streams), so two messages queued for
// that stream out of send order would land in the wrong level's
// Waitall window. This mirrors the ordering guarantee real MPI gives
// point-to-point sends between a fixed pair of ranks, and is adapted
// from the teacher's simulator.OrderedNetwork, keyed here on the
// destination EventStream rather than on a Node, since a stream
// already is the exact per-(source,dest) channel.
type SimNetwork struct {
	MaxLatency float64

	mu        sync.Mutex
	nextAvail map[*EventStream]float64
}

// Send schedules each message with an independent random delay,
// clamped forward so it never overtakes a message already queued on
// the same destination stream.
func (s *SimNetwork) Send(h *Handle, msgs ...*wireMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextAvail == nil {
		s.nextAvail = make(map[*EventStream]float64)
	}

	now := h.Time()
	for _, msg := range msgs {
		stream := msg.Dest.streams[msg.Source.Rank]
		deliverAt := now + rand.Float64()*s.MaxLatency
		delay := deliverAt - now
		if prev, ok := s.nextAvail[stream]; ok {
			// Timers with equal deadlines fire in random order (see
			// EventLoop.step), so land strictly after prev.
			for now+delay <= prev {
				deliverAt = math.Nextafter(math.Max(deliverAt, prev), math.Inf(1))
				delay = deliverAt - now
			}
		}
		s.nextAvail[stream] = now + delay
		h.Schedule(stream, msg, delay)
	}
}
