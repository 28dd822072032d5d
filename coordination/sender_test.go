package coordination_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakesync/wakesync/coordination"
	"github.com/wakesync/wakesync/driver/sim"
	"github.com/wakesync/wakesync/protocol"
)

// testPower records suspend requests.
type testPower struct {
	calls []uint32
}

func (p *testPower) SuspendFor(seconds uint32) { p.calls = append(p.calls, seconds) }

func newTestSender(t *testing.T, cfg coordination.SenderConfig) (*coordination.Sender, *sim.Air, *sim.Node, *testPower, *time.Time) {
	t.Helper()
	air := sim.NewAir()
	node := air.Join("sender")
	power := &testPower{}
	s := coordination.NewSender(cfg, node, power)

	now := time.Unix(1000, 0)
	s.Now = func() time.Time { return now }
	s.Epoch = s.Now
	return s, air, node, power, &now
}

func broadcastSenderConfig() coordination.SenderConfig {
	return coordination.SenderConfig{
		Layout:          protocol.LayoutBroadcast,
		IntervalSeconds: 10,
		WindowSeconds:   3,
	}
}

func TestSenderFullCycle(t *testing.T) {
	s, _, node, power, now := newTestSender(t, broadcastSenderConfig())
	base := *now

	// Cold boot: the first tick opens a cycle and requests a channel check.
	s.Tick(base)
	assert.Equal(t, coordination.SenderChannelCheck, s.State())

	// Channel is clear; the next tick transmits.
	node.Drain(s, 8)
	assert.Equal(t, coordination.SenderReadyToSend, s.State())
	s.Tick(base)
	assert.Equal(t, coordination.SenderAwaitingTxConfirm, s.State())

	sent := node.Sent()
	require.Len(t, sent, 1)
	p, err := protocol.Decode(protocol.LayoutBroadcast, sent[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(0), p.PacketID)
	assert.Equal(t, uint16(10), p.Interval)
	assert.Equal(t, uint16(3), p.Window)

	// Transmit completion closes the cycle: one suspend, full interval.
	node.Drain(s, 8)
	assert.Equal(t, coordination.SenderIdle, s.State())
	assert.Equal(t, []uint32{10}, power.calls)

	// The next cycle begins only after the interval elapses.
	*now = base.Add(9 * time.Second)
	s.Tick(*now)
	assert.Equal(t, coordination.SenderIdle, s.State())
	*now = base.Add(10 * time.Second)
	s.Tick(*now)
	assert.Equal(t, coordination.SenderChannelCheck, s.State())
}

func TestSenderWakeWindowExhausted(t *testing.T) {
	s, air, node, power, now := newTestSender(t, broadcastSenderConfig())
	base := *now
	air.SetBusy(true)

	s.Tick(base)
	assert.Equal(t, coordination.SenderChannelCheck, s.State())

	// Every check reports busy and immediately re-requests another.
	assert.Equal(t, 5, node.Drain(s, 5))
	assert.Equal(t, coordination.SenderChannelCheck, s.State())

	// Window lapses with no free channel: the cycle must still terminate
	// with exactly one scheduled suspend.
	*now = base.Add(4 * time.Second)
	s.Tick(*now)
	assert.Equal(t, coordination.SenderIdle, s.State())
	assert.Equal(t, []uint32{6}, power.calls)
	assert.Empty(t, node.Sent())

	// Stale busy completions after the cycle ended are ignored.
	node.Drain(s, 16)
	assert.Equal(t, coordination.SenderIdle, s.State())
	assert.Equal(t, []uint32{6}, power.calls)
}

func TestSenderTransmitTimeout(t *testing.T) {
	s, _, node, power, now := newTestSender(t, broadcastSenderConfig())
	base := *now

	s.Tick(base)
	node.Drain(s, 8)
	s.Tick(base)
	require.Equal(t, coordination.SenderAwaitingTxConfirm, s.State())

	// Radio-layer failure ends the cycle; no retry inside the window.
	s.HandleEvent(coordination.Event{Type: coordination.EventTxTimeout})
	assert.Equal(t, coordination.SenderIdle, s.State())
	assert.Equal(t, []uint32{10}, power.calls)
}

func TestSenderConfirmHandshake(t *testing.T) {
	cfg := coordination.SenderConfig{
		Layout:          protocol.LayoutTimeSync,
		IntervalSeconds: 20,
		WindowSeconds:   6,
		WaitSeconds:     5,
		SleepState:      1,
		Confirm:         true,
	}
	s, _, node, power, now := newTestSender(t, cfg)
	base := *now

	s.Tick(base)
	node.Drain(s, 8)
	s.Tick(base)
	node.Drain(s, 8)
	assert.Equal(t, coordination.SenderAwaitingAck, s.State())

	// No confirmation yet: the sender re-transmits on its fixed cadence.
	*now = base.Add(2 * time.Second)
	s.Tick(*now)
	node.Drain(s, 8)
	require.Len(t, node.Sent(), 2)
	assert.Equal(t, coordination.SenderAwaitingAck, s.State())

	last, err := protocol.Decode(protocol.LayoutTimeSync, node.Sent()[1])
	require.NoError(t, err)

	// A foreign confirmation byte is ignored and reception re-armed.
	node.Inject([]byte{last.Checksum ^ 0x55})
	node.Drain(s, 8)
	assert.Equal(t, coordination.SenderAwaitingAck, s.State())
	assert.Empty(t, power.calls)

	// The matching checksum confirms the exchange; sleep counts from the
	// moment the confirmed frame was sent.
	*now = base.Add(4 * time.Second)
	node.Inject([]byte{last.Checksum})
	node.Drain(s, 8)
	assert.Equal(t, coordination.SenderIdle, s.State())
	assert.Equal(t, []uint32{18}, power.calls)
}

func TestSenderConfirmPacketFields(t *testing.T) {
	cfg := coordination.SenderConfig{
		Layout:          protocol.LayoutTimeSync,
		IntervalSeconds: 20,
		WindowSeconds:   6,
		WaitSeconds:     5,
		SleepState:      1,
		Confirm:         true,
	}
	s, _, node, _, _ := newTestSender(t, cfg)

	s.Tick(time.Unix(1000, 0))
	node.Drain(s, 8)
	s.Tick(time.Unix(1000, 0))

	sent := node.Sent()
	require.Len(t, sent, 1)
	p, err := protocol.Decode(protocol.LayoutTimeSync, sent[0])
	require.NoError(t, err)
	assert.Equal(t, int64(1000), p.EpochTime)
	assert.Equal(t, uint16(20), p.Interval)
	assert.Equal(t, uint16(5), p.Window) // time-sync frames carry the wait window
	assert.Equal(t, uint8(1), p.SleepState)
}

func TestSenderCorruptOutboundDiagnostic(t *testing.T) {
	cfg := broadcastSenderConfig()
	cfg.CorruptOutbound = true
	s, _, node, _, now := newTestSender(t, cfg)

	s.Tick(*now)
	node.Drain(s, 8)
	s.Tick(*now)

	sent := node.Sent()
	require.Len(t, sent, 1)
	_, err := protocol.Decode(protocol.LayoutBroadcast, sent[0])
	assert.ErrorIs(t, err, protocol.ErrChecksum)

	// The frame must still heal cleanly on the relay side.
	_, healed, err := protocol.Repair(protocol.LayoutBroadcast, sent[0])
	require.NoError(t, err)
	_, err = protocol.Decode(protocol.LayoutBroadcast, healed)
	assert.NoError(t, err)
}

func TestSenderSnapshotRestore(t *testing.T) {
	s, _, node, _, now := newTestSender(t, broadcastSenderConfig())

	s.Tick(*now)
	node.Drain(s, 8)
	s.Tick(*now)
	node.Drain(s, 8)

	snap := s.Snapshot()
	assert.Equal(t, coordination.RoleSender, snap.Role)
	assert.Equal(t, uint32(1), snap.SendCounter)

	// A fresh process resumes from the persisted record and continues the
	// sequence instead of restarting it.
	air := sim.NewAir()
	node2 := air.Join("sender")
	resumed := coordination.NewSender(broadcastSenderConfig(), node2, &testPower{})
	resumed.Now = func() time.Time { return now.Add(10 * time.Second) }
	resumed.Restore(snap)

	resumed.Tick(resumed.Now())
	node2.Drain(resumed, 8)
	resumed.Tick(resumed.Now())

	sent := node2.Sent()
	require.Len(t, sent, 1)
	p, err := protocol.Decode(protocol.LayoutBroadcast, sent[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(1), p.PacketID)
}
