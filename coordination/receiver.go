package coordination

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wakesync/wakesync/protocol"
)

// ReceiverConfig carries the per-node parameters of a receiver.
type ReceiverConfig struct {
	Layout protocol.Layout
	NodeID protocol.NodeID

	// UpstreamID is the relay this node trusts. Only meaningful together
	// with Routing.
	UpstreamID protocol.NodeID

	// Routing makes the receiver accept only frames addressed to NodeID
	// that arrived from UpstreamID.
	Routing bool

	// Ack enables the confirmation echo: the checksum byte of each valid
	// frame is transmitted back several times at a fixed spacing.
	Ack bool
}

// Receiver is the duty-cycled listening role. It is entirely event-driven:
// every inbound frame is length-checked, decoded, optionally filtered by
// routing identifiers, reported, acknowledged, and answered with a suspend
// request that realigns the node with the sender's next cycle.
type Receiver struct {
	cfg      ReceiverConfig
	radio    Radio
	power    PowerController
	reporter Reporter

	// Store, when set, persists the role state before every suspend.
	Store Store
	// Now supplies the machine's wall clock. Overridable in tests.
	Now func() time.Time
	// Pause separates the acknowledgment repetitions. Overridable in
	// tests; defaults to time.Sleep.
	Pause func(d time.Duration)

	lastInterval uint16
	lastSleep    int64

	log *logrus.Entry
}

func NewReceiver(cfg ReceiverConfig, radio Radio, power PowerController, reporter Reporter) *Receiver {
	if reporter == nil {
		reporter = ReporterFunc(func(map[string]any) {})
	}
	return &Receiver{
		cfg:      cfg,
		radio:    radio,
		power:    power,
		reporter: reporter,
		Now:      time.Now,
		Pause:    time.Sleep,
		log: logrus.WithFields(logrus.Fields{
			"role":   "receiver",
			"node":   cfg.NodeID,
			"layout": cfg.Layout.String(),
		}),
	}
}

// LastSleep returns the most recently computed sleep duration in seconds.
func (r *Receiver) LastSleep() int64 { return r.lastSleep }

// Listen arms the first reception. Subsequent re-arms happen from the event
// handler.
func (r *Receiver) Listen() {
	r.rearm()
}

// Tick is a no-op; the receiver has no wall-clock deadlines of its own.
func (r *Receiver) Tick(time.Time) {}

// HandleEvent consumes one radio completion.
func (r *Receiver) HandleEvent(ev Event) {
	switch ev.Type {
	case EventRxDone:
		r.handleFrame(ev.Data)
	case EventRxTimeout:
		// Expected while idle on a quiet channel.
		r.rearm()
	case EventRxError:
		r.log.Debug("receive error, re-arming")
		r.rearm()
	}
}

func (r *Receiver) handleFrame(data []byte) {
	received := r.Now()

	if len(data) != r.cfg.Layout.Size() {
		r.log.WithFields(logrus.Fields{
			"got":  len(data),
			"want": r.cfg.Layout.Size(),
		}).Debug("frame length mismatch, ignoring")
		r.rearm()
		return
	}

	p, err := protocol.Decode(r.cfg.Layout, data)
	if err != nil {
		r.log.WithError(err).Warn("discarding invalid frame")
		r.rearm()
		return
	}

	if r.cfg.Routing && !r.accepts(p) {
		// Expected background traffic on a shared channel, not an error.
		r.log.WithFields(logrus.Fields{
			"source": p.SourceID,
			"dest":   p.DestID,
		}).Debug("frame not for this node, ignoring")
		r.rearm()
		return
	}

	r.lastInterval = p.Interval
	r.report(p)

	if r.cfg.Ack {
		r.acknowledge(p.Checksum)
	}

	sleep := SleepSeconds(r.Now(), received, p.Interval)
	r.lastSleep = sleep
	r.saveState()

	if Due(sleep) {
		r.log.WithField("sleep_s", sleep).
			Info("rendezvous already due, staying awake")
	} else {
		r.log.WithField("sleep_s", sleep).Info("suspending until next rendezvous")
		r.power.SuspendFor(ClampSleep(sleep))
	}
	r.rearm()
}

func (r *Receiver) accepts(p *protocol.Packet) bool {
	return p.DestID == r.cfg.NodeID && p.SourceID == r.cfg.UpstreamID
}

// acknowledge echoes the frame's checksum byte a fixed number of times. The
// fixed repetition count trades bandwidth for resilience against single lost
// acknowledgments; nothing confirms the acknowledgment itself arrived.
func (r *Receiver) acknowledge(checksum byte) {
	for i := 0; i < protocol.AckRepeatCount; i++ {
		r.Pause(protocol.AckSpacingMs * time.Millisecond)
		if err := r.radio.Transmit([]byte{checksum}); err != nil {
			r.log.WithError(err).Warn("acknowledgment transmit failed")
		}
	}
}

func (r *Receiver) report(p *protocol.Packet) {
	fields := map[string]any{
		"packet_id": p.PacketID,
		"interval":  p.Interval,
		"window":    p.Window,
		"checksum":  p.Checksum,
	}
	if p.Layout == protocol.LayoutTimeSync {
		fields["epoch_time"] = p.EpochTime
		fields["sleep_state"] = p.SleepState
	}
	if p.Layout == protocol.LayoutRouted {
		fields["source"] = p.SourceID
		fields["dest"] = p.DestID
	}
	r.reporter.Report(fields)
}

// Snapshot captures the fields that must survive a suspend cycle.
func (r *Receiver) Snapshot() *State {
	return &State{
		Role:            RoleReceiver,
		IntervalSeconds: r.lastInterval,
	}
}

func (r *Receiver) saveState() {
	if r.Store == nil {
		return
	}
	if err := r.Store.Save(r.Snapshot()); err != nil {
		r.log.WithError(err).Warn("failed to persist role state")
	}
}

func (r *Receiver) rearm() {
	if err := r.radio.StartReceive(); err != nil {
		r.log.WithError(err).Error("receive request failed")
	}
}
