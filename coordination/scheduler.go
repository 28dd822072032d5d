package coordination

import (
	"time"

	"github.com/wakesync/wakesync/protocol"
)

// SleepSeconds computes how long a node should suspend so that it wakes for
// the peer's next expected transmission: the negotiated interval minus the
// whole seconds elapsed since the reference exchange. The result can be zero
// or negative, which means the rendezvous is already due and the caller must
// re-engage immediately instead of sleeping. Pure and deterministic.
func SleepSeconds(now, reference time.Time, intervalSeconds uint16) int64 {
	elapsed := int64(now.Sub(reference) / time.Second)
	return int64(intervalSeconds) - elapsed
}

// Due reports whether a computed sleep duration signals an already-due
// rendezvous.
func Due(sleepSeconds int64) bool { return sleepSeconds <= 0 }

// ClampSleep floors a positive sleep duration at the minimum the power
// controller accepts. It must not be called with a due (non-positive) value.
func ClampSleep(sleepSeconds int64) uint32 {
	if sleepSeconds < protocol.MinSleepSeconds {
		return protocol.MinSleepSeconds
	}
	return uint32(sleepSeconds)
}
