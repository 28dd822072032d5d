package coordination

// Radio is the command side of the radio collaborator. Each call only starts
// an operation; the corresponding completion arrives later as an Event.
// Transmit and receive are mutually exclusive on the single shared radio, a
// constraint the state machines uphold by performing exactly one operation
// class per state.
type Radio interface {
	// Transmit queues one frame for transmission. Completion is reported
	// as EventTxDone or EventTxTimeout.
	Transmit(data []byte) error

	// StartReceive arms reception. Completion is EventRxDone,
	// EventRxTimeout or EventRxError.
	StartReceive() error

	// StartChannelCheck begins a channel-activity check. Completion is
	// EventChannelClear or EventChannelBusy.
	StartChannelCheck() error
}

// PowerController suspends the node. All non-persisted state is discarded;
// execution resumes from a fixed entry point with only the saved State
// record available.
type PowerController interface {
	SuspendFor(seconds uint32)
}

// Reporter receives decoded packet fields for display or logging. It is
// fire-and-forget and never influences protocol decisions.
type Reporter interface {
	Report(fields map[string]any)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(fields map[string]any)

func (f ReporterFunc) Report(fields map[string]any) { f(fields) }
