package wakesync

import (
	"github.com/wakesync/wakesync/coordination"
	"github.com/wakesync/wakesync/driver/sim"
)

// Convenience constructors binding the coordination machines to the
// simulated radio medium. Hardware targets supply their own
// coordination.Radio and wire the machines directly.

// NewSimSender joins a sender to the given air.
func NewSimSender(cfg coordination.SenderConfig, air *sim.Air, power coordination.PowerController) (*Sender, *sim.Node) {
	node := air.Join("sender")
	return coordination.NewSender(cfg, node, power), node
}

// NewSimReceiver joins a receiver to the given air.
func NewSimReceiver(cfg coordination.ReceiverConfig, air *sim.Air, power coordination.PowerController, reporter coordination.Reporter) (*Receiver, *sim.Node) {
	node := air.Join("receiver")
	return coordination.NewReceiver(cfg, node, power, reporter), node
}

// NewSimRelay joins a relay to the given air.
func NewSimRelay(cfg coordination.RelayConfig, air *sim.Air) (*Relay, *sim.Node) {
	node := air.Join("relay")
	return coordination.NewRelay(cfg, node), node
}
