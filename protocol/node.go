package protocol

import "fmt"

// NodeID identifies a node on the shared channel. Routed frames carry a
// source and a destination NodeID; the other layouts are point-to-point or
// broadcast and carry none.
type NodeID uint8

// NodeNone marks an unset identifier. Zero is a valid filter value nowhere
// in the routing rules, so it doubles as "no node".
const NodeNone NodeID = 0

func (id NodeID) String() string {
	return fmt.Sprintf("node-%d", uint8(id))
}
