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

// captureReporter records every reported field set.
type captureReporter struct {
	reports []map[string]any
}

func (c *captureReporter) Report(fields map[string]any) { c.reports = append(c.reports, fields) }

func newTestReceiver(t *testing.T, cfg coordination.ReceiverConfig) (*coordination.Receiver, *sim.Node, *testPower, *captureReporter) {
	t.Helper()
	air := sim.NewAir()
	node := air.Join("receiver")
	power := &testPower{}
	reporter := &captureReporter{}
	r := coordination.NewReceiver(cfg, node, power, reporter)
	r.Now = func() time.Time { return time.Unix(2000, 0) }
	r.Pause = func(time.Duration) {}
	r.Listen()
	return r, node, power, reporter
}

func TestReceiverAcknowledgesAndSuspends(t *testing.T) {
	r, node, power, reporter := newTestReceiver(t, coordination.ReceiverConfig{
		Layout: protocol.LayoutTimeSync,
		Ack:    true,
	})

	p := &protocol.Packet{
		Layout:     protocol.LayoutTimeSync,
		PacketID:   1,
		EpochTime:  1000,
		Interval:   20,
		Window:     5,
		SleepState: 1,
	}
	frame, err := protocol.Encode(p)
	require.NoError(t, err)

	node.Inject(frame)
	node.Drain(r, 16)

	// The checksum byte is echoed a fixed number of times.
	sent := node.Sent()
	require.Len(t, sent, protocol.AckRepeatCount)
	for _, ack := range sent {
		assert.Equal(t, []byte{p.Checksum}, ack)
	}

	// Decoded fields reach the display collaborator.
	require.Len(t, reporter.reports, 1)
	assert.Equal(t, uint32(1), reporter.reports[0]["packet_id"])
	assert.Equal(t, uint16(20), reporter.reports[0]["interval"])
	assert.Equal(t, int64(1000), reporter.reports[0]["epoch_time"])

	// Sleep realigns with the sender's next cycle.
	assert.Equal(t, []uint32{20}, power.calls)
	assert.Equal(t, int64(20), r.LastSleep())
}

func TestReceiverDiscardsCorruptFrame(t *testing.T) {
	r, node, power, reporter := newTestReceiver(t, coordination.ReceiverConfig{
		Layout: protocol.LayoutTimeSync,
		Ack:    true,
	})

	p := &protocol.Packet{Layout: protocol.LayoutTimeSync, PacketID: 2, Interval: 20, Window: 5}
	frame, err := protocol.Encode(p)
	require.NoError(t, err)
	frame[0] ^= 0x01

	node.Inject(frame)
	node.Drain(r, 16)

	// Discarded silently: no acknowledgment, no report, no suspend.
	assert.Empty(t, node.Sent())
	assert.Empty(t, reporter.reports)
	assert.Empty(t, power.calls)

	// Reception stayed armed: a valid frame is still processed.
	good, err := protocol.Encode(&protocol.Packet{
		Layout: protocol.LayoutTimeSync, PacketID: 3, Interval: 20, Window: 5,
	})
	require.NoError(t, err)
	node.Inject(good)
	node.Drain(r, 16)
	assert.Len(t, reporter.reports, 1)
	assert.Equal(t, []uint32{20}, power.calls)
}

func TestReceiverIgnoresForeignFrameLength(t *testing.T) {
	r, node, power, reporter := newTestReceiver(t, coordination.ReceiverConfig{
		Layout: protocol.LayoutTimeSync,
	})

	// A broadcast-sized frame is another protocol version; reject outright.
	frame, err := protocol.Encode(&protocol.Packet{
		Layout: protocol.LayoutBroadcast, PacketID: 1, Interval: 10, Window: 3,
	})
	require.NoError(t, err)

	node.Inject(frame)
	node.Drain(r, 16)

	assert.Empty(t, reporter.reports)
	assert.Empty(t, power.calls)
}

func TestReceiverRoutingFilter(t *testing.T) {
	const (
		ownID      = protocol.NodeID(2)
		upstreamID = protocol.NodeID(3)
	)

	tests := []struct {
		name   string
		source protocol.NodeID
		dest   protocol.NodeID
		accept bool
	}{
		{"addressed to us from sanctioned relay", upstreamID, ownID, true},
		{"wrong destination", upstreamID, 5, false},
		{"wrong source", 4, ownID, false},
		{"wrong both", 4, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, node, power, reporter := newTestReceiver(t, coordination.ReceiverConfig{
				Layout:     protocol.LayoutRouted,
				NodeID:     ownID,
				UpstreamID: upstreamID,
				Routing:    true,
			})

			frame, err := protocol.Encode(&protocol.Packet{
				Layout:   protocol.LayoutRouted,
				SourceID: tt.source,
				DestID:   tt.dest,
				PacketID: 1,
				Interval: 10,
				Window:   3,
			})
			require.NoError(t, err)

			node.Inject(frame)
			node.Drain(r, 16)

			if tt.accept {
				assert.Len(t, reporter.reports, 1)
				assert.Equal(t, []uint32{10}, power.calls)
			} else {
				// Checksum-valid but not for us: dropped, nothing mutated.
				assert.Empty(t, reporter.reports)
				assert.Empty(t, power.calls)
				assert.Empty(t, node.Sent())
			}
		})
	}
}
