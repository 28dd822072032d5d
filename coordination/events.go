// Package coordination implements the per-role state machines that decide
// when a node transmits, listens, retries or sleeps, and the rendezvous
// arithmetic that keeps duty-cycled peers aligned.
//
// The machines never block on I/O. The radio collaborator pushes completion
// events (channel clear/busy, transmit done/timeout, frame received, receive
// timeout) into HandleEvent, and wall-clock deadlines are checked in Tick.
package coordination

import "time"

// EventType enumerates the radio-driver completions the machines react to.
type EventType uint8

const (
	EventChannelClear EventType = iota + 1
	EventChannelBusy
	EventTxDone
	EventTxTimeout
	EventRxDone
	EventRxTimeout
	EventRxError
)

func (t EventType) String() string {
	switch t {
	case EventChannelClear:
		return "channel-clear"
	case EventChannelBusy:
		return "channel-busy"
	case EventTxDone:
		return "tx-done"
	case EventTxTimeout:
		return "tx-timeout"
	case EventRxDone:
		return "rx-done"
	case EventRxTimeout:
		return "rx-timeout"
	case EventRxError:
		return "rx-error"
	}
	return "unknown"
}

// Event is a single radio completion pushed into a machine.
type Event struct {
	Type EventType
	Data []byte // received frame, EventRxDone only
}

// Machine is the driver-facing side of a role state machine. Tick advances
// wall-clock deadlines; HandleEvent consumes one radio completion. Both are
// synchronous and must be called from a single goroutine.
type Machine interface {
	Tick(now time.Time)
	HandleEvent(ev Event)
}
