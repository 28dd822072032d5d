package protocol

import "encoding/binary"

// Packet is a timing packet exchanged between duty-cycled nodes. One struct
// covers all three on-air layouts; the Layout field selects which fields are
// serialized.
//
// Layouts (all integers little-endian, trailing byte is the XOR checksum of
// everything before it):
//
//	TimeSync:  PacketID(4) | EpochTime(8) | Interval(2) | Window(2) | SleepState(1) | Checksum(1)
//	Broadcast: PacketID(4) | Interval(2) | Window(2) | Checksum(1)
//	Routed:    SourceID(1) | DestID(1) | PacketID(4) | Interval(2) | Window(2) | Checksum(1)
//
// Fields are written individually, never via a raw struct copy, so the wire
// format is independent of platform alignment.
type Packet struct {
	Layout Layout

	SourceID NodeID // routed layout only
	DestID   NodeID // routed layout only

	PacketID  uint32
	EpochTime int64 // time-sync layout only

	Interval uint16 // seconds between rendezvous
	Window   uint16 // confirmation-wait or wake-window seconds

	SleepState uint8 // 2-bit operating-mode flag, time-sync layout only
	Checksum   uint8 // populated by Encode and Decode
}

// Layout selects which optional fields a packet carries on air.
type Layout uint8

const (
	LayoutTimeSync Layout = iota + 1
	LayoutBroadcast
	LayoutRouted
)

// Size returns the fixed on-air frame size for the layout, or 0 for an
// unknown layout.
func (l Layout) Size() int {
	switch l {
	case LayoutTimeSync:
		return TimeSyncPacketSize
	case LayoutBroadcast:
		return BroadcastPacketSize
	case LayoutRouted:
		return RoutedPacketSize
	}
	return 0
}

func (l Layout) String() string {
	switch l {
	case LayoutTimeSync:
		return "timesync"
	case LayoutBroadcast:
		return "broadcast"
	case LayoutRouted:
		return "routed"
	}
	return "unknown"
}

// XORChecksum folds the buffer into a single byte. Any odd-weight corruption
// flips the result; even-weight multi-bit corruption can cancel out, which is
// a known detection limit of the scheme.
func XORChecksum(data []byte) byte {
	var chk byte
	for _, b := range data {
		chk ^= b
	}
	return chk
}

// Encode serialises p into a freshly allocated frame of exactly
// p.Layout.Size() bytes and records the computed checksum in p.Checksum.
func Encode(p *Packet) ([]byte, error) {
	size := p.Layout.Size()
	if size == 0 {
		return nil, ErrLayout
	}
	buf := make([]byte, size)
	if err := EncodeTo(p, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeTo serialises p into buf, which must be exactly the layout's frame
// size.
func EncodeTo(p *Packet, buf []byte) error {
	size := p.Layout.Size()
	if size == 0 {
		return ErrLayout
	}
	if len(buf) != size {
		return ErrBufferSize
	}

	off := 0
	if p.Layout == LayoutRouted {
		buf[0] = byte(p.SourceID)
		buf[1] = byte(p.DestID)
		off = 2
	}

	binary.LittleEndian.PutUint32(buf[off:], p.PacketID)
	off += PacketIDSize

	if p.Layout == LayoutTimeSync {
		binary.LittleEndian.PutUint64(buf[off:], uint64(p.EpochTime))
		off += EpochSize
	}

	binary.LittleEndian.PutUint16(buf[off:], p.Interval)
	off += IntervalSize
	binary.LittleEndian.PutUint16(buf[off:], p.Window)
	off += WindowSize

	if p.Layout == LayoutTimeSync {
		buf[off] = p.SleepState & SleepStateMask
		off++
	}

	p.Checksum = XORChecksum(buf[:off])
	buf[off] = p.Checksum
	return nil
}

// Decode parses a frame, enforcing both the fixed layout size and the
// trailing checksum. On any failure no decoded fields are exposed; the caller
// must not trust a rejected frame.
func Decode(layout Layout, data []byte) (*Packet, error) {
	size := layout.Size()
	if size == 0 {
		return nil, ErrLayout
	}
	if len(data) != size {
		return nil, ErrFrameSize
	}
	if XORChecksum(data[:size-1]) != data[size-1] {
		return nil, ErrChecksum
	}
	return decodeFields(layout, data), nil
}

// DecodeUnverified parses a frame without enforcing the checksum. The result
// is unverified: it is meant for diagnostics and for relay-side repair, never
// for deciding whether to trust data. The frame length is still enforced.
func DecodeUnverified(layout Layout, data []byte) (*Packet, error) {
	size := layout.Size()
	if size == 0 {
		return nil, ErrLayout
	}
	if len(data) != size {
		return nil, ErrFrameSize
	}
	return decodeFields(layout, data), nil
}

// Repair decodes a frame permissively, recomputes the checksum from the
// decoded fields and returns the healed packet together with its re-encoded
// bytes. This is an explicit, audited bypass of the accept/reject path, used
// only by a relay that intentionally forwards previously-invalid frames.
func Repair(layout Layout, data []byte) (*Packet, []byte, error) {
	p, err := DecodeUnverified(layout, data)
	if err != nil {
		return nil, nil, err
	}
	healed, err := Encode(p)
	if err != nil {
		return nil, nil, err
	}
	return p, healed, nil
}

func decodeFields(layout Layout, data []byte) *Packet {
	p := &Packet{Layout: layout}

	off := 0
	if layout == LayoutRouted {
		p.SourceID = NodeID(data[0])
		p.DestID = NodeID(data[1])
		off = 2
	}

	p.PacketID = binary.LittleEndian.Uint32(data[off:])
	off += PacketIDSize

	if layout == LayoutTimeSync {
		p.EpochTime = int64(binary.LittleEndian.Uint64(data[off:]))
		off += EpochSize
	}

	p.Interval = binary.LittleEndian.Uint16(data[off:])
	off += IntervalSize
	p.Window = binary.LittleEndian.Uint16(data[off:])
	off += WindowSize

	if layout == LayoutTimeSync {
		p.SleepState = data[off] & SleepStateMask
		off++
	}

	p.Checksum = data[off]
	return p
}
