package protocol

// Generic protocol constants (platform independent). All higher layers should depend on this file.
const (
	// Field widths shared by every layout.
	PacketIDSize = 4
	IntervalSize = 2
	WindowSize   = 2
	ChecksumSize = 1

	// Extra fields carried by individual layouts.
	EpochSize      = 8 // time-sync layout only
	SleepStateSize = 1 // time-sync layout only
	NodeIDSize     = 1 // routed layout carries two of these

	// On-air frame sizes. A node expecting one layout rejects any frame
	// of a different length outright; the size doubles as a protocol
	// version marker.
	TimeSyncPacketSize  = PacketIDSize + EpochSize + IntervalSize + WindowSize + SleepStateSize + ChecksumSize // 18
	BroadcastPacketSize = PacketIDSize + IntervalSize + WindowSize + ChecksumSize                              // 9
	RoutedPacketSize    = 2*NodeIDSize + PacketIDSize + IntervalSize + WindowSize + ChecksumSize               // 11

	// SleepState is a 2-bit operating-mode flag, opaque to the protocol.
	SleepStateMask = 0x03

	// Confirmation handshake (time-sync host/client variant).
	AckRepeatCount  = 5   // checksum byte repetitions per acknowledgment
	AckSpacingMs    = 225 // spacing between repetitions
	ResendCadenceMs = 1100

	// Demo timing defaults.
	DefaultIntervalSeconds = 10
	DefaultWaitSeconds     = 5
	DefaultWindowSeconds   = 3
	DefaultSleepState      = 1

	// Minimum suspend duration a caller may request. A computed sleep at
	// or below zero means the rendezvous is already due.
	MinSleepSeconds = 1
)
