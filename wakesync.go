// Package wakesync provides a facade to access the rendezvous coordination
// layer: packet codec, per-role state machines and the sleep scheduler.
package wakesync

import (
	"github.com/wakesync/wakesync/coordination"
	"github.com/wakesync/wakesync/protocol"
)

// Re-export the types that make up the public surface.
type (
	NodeID   = protocol.NodeID
	Packet   = protocol.Packet
	Layout   = protocol.Layout
	Event    = coordination.Event
	Machine  = coordination.Machine
	Sender   = coordination.Sender
	Receiver = coordination.Receiver
	Relay    = coordination.Relay
	State    = coordination.State
)

// Error constants exposed in the public API.
var (
	ErrChecksum   = protocol.ErrChecksum
	ErrFrameSize  = protocol.ErrFrameSize
	ErrBufferSize = protocol.ErrBufferSize
	ErrLayout     = protocol.ErrLayout
)

// Constants exposed in the public API.
const (
	LayoutTimeSync  = protocol.LayoutTimeSync
	LayoutBroadcast = protocol.LayoutBroadcast
	LayoutRouted    = protocol.LayoutRouted

	RelayRepair = coordination.RelayRepair
	RelayRoute  = coordination.RelayRoute
)
