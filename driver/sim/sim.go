// Package sim provides an in-memory radio medium for host-side development
// and testing. Every frame transmitted by one node is delivered to every
// other node joined to the same Air, optionally through a corruption hook.
// Completions are queued as coordination events and dispatched by an explicit
// pump, which keeps tests deterministic.
package sim

import (
	"sync"
	"time"

	"github.com/wakesync/wakesync/coordination"
)

// Air is the shared medium connecting simulated nodes.
type Air struct {
	mu    sync.Mutex
	nodes []*Node
	busy  bool

	// Corrupt, when set, rewrites every delivered frame copy. Used to
	// exercise checksum handling.
	Corrupt func(data []byte) []byte
}

func NewAir() *Air { return &Air{} }

// SetBusy controls what channel-activity checks report.
func (a *Air) SetBusy(busy bool) {
	a.mu.Lock()
	a.busy = busy
	a.mu.Unlock()
}

// Join adds a node to the medium.
func (a *Air) Join(name string) *Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := &Node{air: a, name: name}
	a.nodes = append(a.nodes, n)
	return n
}

func (a *Air) deliver(from *Node, data []byte) {
	for _, n := range a.nodes {
		if n == from {
			continue
		}
		frame := make([]byte, len(data))
		copy(frame, data)
		if a.Corrupt != nil {
			frame = a.Corrupt(frame)
		}
		if n.armed {
			n.armed = false
			n.events = append(n.events, coordination.Event{
				Type: coordination.EventRxDone, Data: frame,
			})
		} else {
			n.frames.push(frame)
		}
	}
}

// Node is one endpoint on the simulated medium. It implements
// coordination.Radio; completions are queued and handed out by Step.
type Node struct {
	air  *Air
	name string

	frames ring
	events []coordination.Event
	sent   [][]byte
	armed  bool
}

func (n *Node) Name() string { return n.name }

// Transmit delivers the frame to every other node and queues a transmit
// completion.
func (n *Node) Transmit(data []byte) error {
	n.air.mu.Lock()
	defer n.air.mu.Unlock()

	frame := make([]byte, len(data))
	copy(frame, data)
	n.sent = append(n.sent, frame)
	n.air.deliver(n, frame)
	n.events = append(n.events, coordination.Event{Type: coordination.EventTxDone})
	return nil
}

// StartReceive arms reception. A pending frame completes immediately;
// otherwise the node stays armed until a frame arrives or ExpireReceive is
// called.
func (n *Node) StartReceive() error {
	n.air.mu.Lock()
	defer n.air.mu.Unlock()

	if frame, ok := n.frames.pop(); ok {
		n.events = append(n.events, coordination.Event{
			Type: coordination.EventRxDone, Data: frame,
		})
		return nil
	}
	n.armed = true
	return nil
}

// StartChannelCheck completes immediately with the medium's busy flag.
func (n *Node) StartChannelCheck() error {
	n.air.mu.Lock()
	defer n.air.mu.Unlock()

	ev := coordination.Event{Type: coordination.EventChannelClear}
	if n.air.busy {
		ev.Type = coordination.EventChannelBusy
	}
	n.events = append(n.events, ev)
	return nil
}

// ExpireReceive turns an outstanding reception into a timeout completion.
func (n *Node) ExpireReceive() {
	n.air.mu.Lock()
	defer n.air.mu.Unlock()

	if n.armed {
		n.armed = false
		n.events = append(n.events, coordination.Event{Type: coordination.EventRxTimeout})
	}
}

// Inject queues a frame for this node as if it arrived over the air.
func (n *Node) Inject(data []byte) {
	n.air.mu.Lock()
	defer n.air.mu.Unlock()

	frame := make([]byte, len(data))
	copy(frame, data)
	if n.armed {
		n.armed = false
		n.events = append(n.events, coordination.Event{
			Type: coordination.EventRxDone, Data: frame,
		})
		return
	}
	n.frames.push(frame)
}

// Sent returns a copy of everything this node has transmitted.
func (n *Node) Sent() [][]byte {
	n.air.mu.Lock()
	defer n.air.mu.Unlock()

	out := make([][]byte, len(n.sent))
	for i, frame := range n.sent {
		cp := make([]byte, len(frame))
		copy(cp, frame)
		out[i] = cp
	}
	return out
}

// Step dispatches one queued completion to the machine. It reports whether
// an event was dispatched.
func (n *Node) Step(m coordination.Machine) bool {
	n.air.mu.Lock()
	if len(n.events) == 0 {
		n.air.mu.Unlock()
		return false
	}
	ev := n.events[0]
	n.events = n.events[1:]
	n.air.mu.Unlock()

	m.HandleEvent(ev)
	return true
}

// Drain dispatches queued completions until the queue is empty or limit is
// reached, returning the number dispatched. The limit bounds event chains
// that re-queue themselves, like repeated busy-channel checks.
func (n *Node) Drain(m coordination.Machine, limit int) int {
	dispatched := 0
	for dispatched < limit && n.Step(m) {
		dispatched++
	}
	return dispatched
}

// Run pumps the machine until the stop channel closes: ticks wall-clock
// deadlines, then dispatches pending completions.
func (n *Node) Run(stop <-chan struct{}, m coordination.Machine, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			m.Tick(now)
			n.Drain(m, 64)
		}
	}
}

const ringCapacity = 64

// ring is a bounded frame queue that overwrites the oldest entry when full,
// keeping memory bounded on a noisy medium.
type ring struct {
	data       [ringCapacity][]byte
	head, tail int
	count      int
}

func (r *ring) push(frame []byte) {
	if r.count == ringCapacity {
		r.data[r.tail] = nil
		r.head = (r.head + 1) % ringCapacity
		r.count--
	}
	r.data[r.tail] = frame
	r.tail = (r.tail + 1) % ringCapacity
	r.count++
}

func (r *ring) pop() ([]byte, bool) {
	if r.count == 0 {
		return nil, false
	}
	frame := r.data[r.head]
	r.data[r.head] = nil
	r.head = (r.head + 1) % ringCapacity
	r.count--
	return frame, true
}
