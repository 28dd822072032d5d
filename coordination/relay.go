package coordination

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wakesync/wakesync/protocol"
)

// RelayMode selects the relay's forwarding discipline.
type RelayMode uint8

const (
	// RelayRepair heals frames that arrive with a broken checksum and
	// forwards the healed copy. Frames that are already valid are NOT
	// forwarded, to avoid duplicate valid deliveries. This mode bypasses
	// the normal integrity path and exists for diagnostics; do not enable
	// it on a production link.
	RelayRepair RelayMode = iota + 1

	// RelayRoute forwards valid frames that match the configured
	// upstream/downstream pair, rewriting the source identifier to this
	// relay before re-transmission.
	RelayRoute
)

func (m RelayMode) String() string {
	switch m {
	case RelayRepair:
		return "repair"
	case RelayRoute:
		return "route"
	}
	return "unknown"
}

// RelayConfig carries the per-node parameters of a relay.
type RelayConfig struct {
	Layout protocol.Layout
	NodeID protocol.NodeID
	Mode   RelayMode

	// Routing filter, RelayRoute mode only.
	UpstreamID   protocol.NodeID
	DownstreamID protocol.NodeID
}

// Relay is the continuously-powered forwarding role. It never sleeps: after
// every frame, forwarded or dropped, it returns to listening.
type Relay struct {
	cfg   RelayConfig
	radio Radio

	log *logrus.Entry
}

func NewRelay(cfg RelayConfig, radio Radio) *Relay {
	return &Relay{
		cfg:   cfg,
		radio: radio,
		log: logrus.WithFields(logrus.Fields{
			"role": "relay",
			"node": cfg.NodeID,
			"mode": cfg.Mode.String(),
		}),
	}
}

// Listen arms the first reception.
func (ry *Relay) Listen() {
	ry.rearm()
}

// Tick is a no-op; the relay has no wall-clock deadlines.
func (ry *Relay) Tick(time.Time) {}

// HandleEvent consumes one radio completion.
func (ry *Relay) HandleEvent(ev Event) {
	switch ev.Type {
	case EventRxDone:
		ry.handleFrame(ev.Data)
	case EventRxTimeout, EventRxError:
		// Idle-restart policy: just listen again.
		ry.rearm()
	case EventTxDone, EventTxTimeout:
		ry.rearm()
	}
}

func (ry *Relay) handleFrame(data []byte) {
	defer ry.rearm()

	if len(data) != ry.cfg.Layout.Size() {
		ry.log.WithField("got", len(data)).Debug("frame length mismatch, ignoring")
		return
	}

	p, err := protocol.Decode(ry.cfg.Layout, data)
	switch ry.cfg.Mode {
	case RelayRepair:
		ry.repairForward(p, data, err)
	case RelayRoute:
		ry.routeForward(p, err)
	}
}

// repairForward heals broken frames and forwards the healed copy. A frame
// that already verifies is deliberately not forwarded: the downstream node
// would otherwise see the same valid delivery twice.
func (ry *Relay) repairForward(p *protocol.Packet, data []byte, decodeErr error) {
	if decodeErr == nil {
		ry.log.WithField("packet_id", p.PacketID).
			Warn("frame already valid, not forwarding")
		return
	}

	healed, healedData, err := protocol.Repair(ry.cfg.Layout, data)
	if err != nil {
		ry.log.WithError(err).Warn("cannot repair frame, dropping")
		return
	}

	ry.log.WithFields(logrus.Fields{
		"packet_id": healed.PacketID,
		"checksum":  healed.Checksum,
	}).Info("repaired frame, forwarding")

	if err := ry.radio.Transmit(healedData); err != nil {
		ry.log.WithError(err).Warn("forward transmit failed")
	}
}

// routeForward applies the source/destination filter and re-addresses the
// frame as coming from this relay.
func (ry *Relay) routeForward(p *protocol.Packet, decodeErr error) {
	if decodeErr != nil {
		ry.log.WithError(decodeErr).Debug("invalid frame, dropping")
		return
	}
	if p.SourceID == ry.cfg.NodeID {
		// Our own forward coming back at us.
		ry.log.WithField("packet_id", p.PacketID).Debug("own echo, dropping")
		return
	}
	if p.SourceID != ry.cfg.UpstreamID || p.DestID != ry.cfg.DownstreamID {
		// Shared-channel background traffic, not ours to forward.
		return
	}

	p.SourceID = ry.cfg.NodeID
	data, err := protocol.Encode(p)
	if err != nil {
		ry.log.WithError(err).Warn("cannot re-encode frame, dropping")
		return
	}

	ry.log.WithFields(logrus.Fields{
		"packet_id": p.PacketID,
		"dest":      p.DestID,
	}).Info("forwarding frame downstream")

	if err := ry.radio.Transmit(data); err != nil {
		ry.log.WithError(err).Warn("forward transmit failed")
	}
}

func (ry *Relay) rearm() {
	if err := ry.radio.StartReceive(); err != nil {
		ry.log.WithError(err).Error("receive request failed")
	}
}
