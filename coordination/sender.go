package coordination

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/wakesync/wakesync/protocol"
)

// SenderState enumerates the sender machine's states.
type SenderState uint8

const (
	SenderIdle SenderState = iota + 1
	SenderChannelCheck
	SenderReadyToSend
	SenderAwaitingTxConfirm
	SenderAwaitingAck
	SenderCycleComplete
)

func (s SenderState) String() string {
	switch s {
	case SenderIdle:
		return "idle"
	case SenderChannelCheck:
		return "channel-check"
	case SenderReadyToSend:
		return "ready-to-send"
	case SenderAwaitingTxConfirm:
		return "awaiting-tx-confirm"
	case SenderAwaitingAck:
		return "awaiting-ack"
	case SenderCycleComplete:
		return "cycle-complete"
	}
	return "unknown"
}

// SenderConfig carries the per-node parameters of a sender.
type SenderConfig struct {
	Layout protocol.Layout
	NodeID protocol.NodeID // routed layout: source identifier
	DestID protocol.NodeID // routed layout: intended recipient

	IntervalSeconds uint16 // full cycle length between rendezvous
	WindowSeconds   uint16 // wake window bounding channel access per cycle
	WaitSeconds     uint16 // confirmation wait advertised to the peer
	SleepState      uint8

	// Confirm enables the host/client handshake: after transmitting, the
	// sender listens for the peer echoing the frame's checksum byte and
	// re-transmits until confirmed.
	Confirm bool

	// CorruptOutbound deliberately invalidates the checksum of every
	// outgoing frame to exercise a repairing relay. Diagnostic only.
	CorruptOutbound bool
}

// Sender is the duty-cycled transmitting role. It walks
// Idle -> ChannelCheck -> ReadyToSend -> AwaitingTxConfirm -> CycleComplete
// once per cycle, hands the computed sleep duration to the power controller
// and returns to Idle.
type Sender struct {
	cfg   SenderConfig
	radio Radio
	power PowerController

	// Store, when set, persists the role state before every suspend.
	Store Store
	// Now supplies the machine's wall clock. Overridable in tests.
	Now func() time.Time
	// Epoch supplies the wall-clock value stamped into time-sync packets.
	// Separate from Now so an NTP-backed source can be plugged in.
	Epoch func() time.Time

	resend *rate.Limiter

	state            SenderState
	cycleStart       time.Time
	lastSentAt       time.Time
	lastSentChecksum uint8
	counter          uint32
	lastSleep        int64

	log *logrus.Entry
}

func NewSender(cfg SenderConfig, radio Radio, power PowerController) *Sender {
	s := &Sender{
		cfg:   cfg,
		radio: radio,
		power: power,
		Now:   time.Now,
		Epoch: time.Now,
		resend: rate.NewLimiter(
			rate.Every(protocol.ResendCadenceMs*time.Millisecond), 1),
		state: SenderIdle,
		log: logrus.WithFields(logrus.Fields{
			"role":   "sender",
			"layout": cfg.Layout.String(),
		}),
	}
	return s
}

// State returns the current machine state.
func (s *Sender) State() SenderState { return s.state }

// LastSleep returns the most recently computed sleep duration in seconds.
func (s *Sender) LastSleep() int64 { return s.lastSleep }

// Tick advances wall-clock deadlines. Call it periodically from the node's
// single event loop.
func (s *Sender) Tick(now time.Time) {
	switch s.state {
	case SenderIdle:
		// A zero cycle start means cold boot: engage immediately.
		if s.cycleStart.IsZero() || now.Sub(s.cycleStart) >= s.intervalDuration() {
			s.cycleStart = now
			s.log.WithField("cycle_start", now.Unix()).Info("starting new cycle")
			s.state = SenderChannelCheck
			s.requestChannelCheck()
		}
	case SenderChannelCheck:
		if now.Sub(s.cycleStart) > s.windowDuration() {
			s.log.Warn("wake window ended with no free channel, abandoning cycle")
			s.completeCycle(now, s.cycleStart)
		}
	case SenderReadyToSend:
		s.send(now)
	case SenderAwaitingAck:
		if s.resend.AllowN(now, 1) {
			s.log.Debug("confirmation overdue, re-transmitting")
			s.send(now)
		}
	}
}

// HandleEvent consumes one radio completion.
func (s *Sender) HandleEvent(ev Event) {
	now := s.Now()

	switch ev.Type {
	case EventChannelBusy:
		if s.state == SenderChannelCheck {
			s.requestChannelCheck()
		}
	case EventChannelClear:
		if s.state == SenderChannelCheck {
			s.state = SenderReadyToSend
		}
	case EventTxDone:
		if s.state != SenderAwaitingTxConfirm {
			return
		}
		if s.cfg.Confirm {
			s.state = SenderAwaitingAck
			s.rearmReceive()
			return
		}
		s.completeCycle(now, s.cycleStart)
	case EventTxTimeout:
		if s.state != SenderAwaitingTxConfirm {
			return
		}
		s.log.Error("transmit timed out")
		s.completeCycle(now, s.cycleStart)
	case EventRxDone:
		if s.state != SenderAwaitingAck {
			return
		}
		if len(ev.Data) == 1 && ev.Data[0] == s.lastSentChecksum {
			s.log.WithField("checksum", s.lastSentChecksum).
				Info("exchange confirmed by peer")
			s.completeCycle(now, s.lastSentAt)
			return
		}
		s.rearmReceive()
	case EventRxTimeout, EventRxError:
		// Normal polling outcome while waiting for the confirmation byte.
		if s.state == SenderAwaitingAck {
			s.rearmReceive()
		}
	}
}

func (s *Sender) send(now time.Time) {
	window := s.cfg.WindowSeconds
	if s.cfg.Layout == protocol.LayoutTimeSync {
		window = s.cfg.WaitSeconds
	}
	p := &protocol.Packet{
		Layout:     s.cfg.Layout,
		SourceID:   s.cfg.NodeID,
		DestID:     s.cfg.DestID,
		PacketID:   s.counter,
		EpochTime:  s.Epoch().Unix(),
		Interval:   s.cfg.IntervalSeconds,
		Window:     window,
		SleepState: s.cfg.SleepState,
	}

	data, err := protocol.Encode(p)
	if err != nil {
		s.log.WithError(err).Error("cannot encode packet, abandoning cycle")
		s.completeCycle(now, s.cycleStart)
		return
	}
	if s.cfg.CorruptOutbound {
		data[len(data)-1] ^= 0xFF
		s.log.WithField("packet_id", p.PacketID).
			Warn("corrupting outbound checksum (diagnostic mode)")
	}

	if err := s.radio.Transmit(data); err != nil {
		s.log.WithError(err).Error("transmit request failed")
		s.completeCycle(now, s.cycleStart)
		return
	}

	s.lastSentAt = now
	s.lastSentChecksum = p.Checksum
	s.counter++
	s.resend.AllowN(now, 1) // restart the re-transmit cadence from this send
	s.state = SenderAwaitingTxConfirm
	s.log.WithFields(logrus.Fields{
		"packet_id": p.PacketID,
		"interval":  p.Interval,
		"window":    p.Window,
	}).Info("packet transmitted")
}

// completeCycle runs once per cycle: it computes the sleep duration from the
// reference exchange timestamp, persists the role state and requests
// suspension, then re-enters Idle.
func (s *Sender) completeCycle(now, reference time.Time) {
	s.state = SenderCycleComplete

	sleep := SleepSeconds(now, reference, s.cfg.IntervalSeconds)
	s.lastSleep = sleep
	s.saveState()

	if Due(sleep) {
		s.log.WithField("sleep_s", sleep).
			Info("rendezvous already due, re-engaging without suspend")
	} else {
		s.log.WithField("sleep_s", sleep).Info("cycle complete, suspending")
		s.power.SuspendFor(ClampSleep(sleep))
	}
	s.state = SenderIdle
}

// Snapshot captures the fields that must survive a suspend cycle.
func (s *Sender) Snapshot() *State {
	return &State{
		Role:             RoleSender,
		Machine:          uint8(s.state),
		IntervalSeconds:  s.cfg.IntervalSeconds,
		WindowSeconds:    s.cfg.WindowSeconds,
		CycleStart:       s.cycleStart,
		LastSentAt:       s.lastSentAt,
		LastSentChecksum: s.lastSentChecksum,
		SendCounter:      s.counter,
	}
}

// Restore rebuilds the sender from a persisted record at the resume entry
// point. The machine always resumes in Idle; any in-flight radio operation
// died with the suspend.
func (s *Sender) Restore(st *State) {
	s.cycleStart = st.CycleStart
	s.lastSentAt = st.LastSentAt
	s.lastSentChecksum = st.LastSentChecksum
	s.counter = st.SendCounter
	s.state = SenderIdle
}

func (s *Sender) saveState() {
	if s.Store == nil {
		return
	}
	if err := s.Store.Save(s.Snapshot()); err != nil {
		s.log.WithError(err).Warn("failed to persist role state")
	}
}

func (s *Sender) requestChannelCheck() {
	if err := s.radio.StartChannelCheck(); err != nil {
		s.log.WithError(err).Error("channel check request failed")
	}
}

func (s *Sender) rearmReceive() {
	if err := s.radio.StartReceive(); err != nil {
		s.log.WithError(err).Error("receive request failed")
	}
}

func (s *Sender) intervalDuration() time.Duration {
	return time.Duration(s.cfg.IntervalSeconds) * time.Second
}

func (s *Sender) windowDuration() time.Duration {
	return time.Duration(s.cfg.WindowSeconds) * time.Second
}
