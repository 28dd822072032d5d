package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wakesync/wakesync/clock"
	"github.com/wakesync/wakesync/config"
	"github.com/wakesync/wakesync/coordination"
	"github.com/wakesync/wakesync/driver/sim"
	"github.com/wakesync/wakesync/protocol"
)

var withRelay bool

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a sender/receiver (optionally relayed) exchange over the simulated radio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runDemo(cfg)
	},
}

func init() {
	demoCmd.Flags().BoolVar(&withRelay, "relay", false, "insert a relay between sender and receiver")
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cfg *config.Config) error {
	layout, err := cfg.PacketLayout()
	if err != nil {
		return err
	}
	relayMode, err := cfg.RelayMode()
	if err != nil {
		return err
	}

	air := sim.NewAir()
	stop := make(chan struct{})
	var once sync.Once
	shutdown := func() { once.Do(func() { close(stop) }) }

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logrus.Info("shutting down")
		shutdown()
	}()

	// Sender. In the routed topology it addresses the client but the
	// frames reach it through the relay's rewrite.
	senderCfg := coordination.SenderConfig{
		Layout:          layout,
		NodeID:          protocol.NodeID(cfg.Host.ID),
		DestID:          protocol.NodeID(cfg.Client.ID),
		IntervalSeconds: cfg.IntervalSeconds,
		WindowSeconds:   cfg.WindowSeconds,
		WaitSeconds:     cfg.WaitSeconds,
		SleepState:      cfg.SleepState,
		Confirm:         layout == protocol.LayoutTimeSync,
		CorruptOutbound: cfg.CorruptOutbound,
	}
	senderNode := air.Join("sender")
	power := newNapController("sender", cfg.Cycles, shutdown)
	sender := coordination.NewSender(senderCfg, senderNode, power)
	if cfg.NTPServer != "" {
		sender.Epoch = clock.NewNTP(cfg.NTPServer).Now
	}
	sender.Store = coordination.NewFileStore(cfg.StateFile)
	if saved, err := sender.Store.Load(); err != nil {
		logrus.WithError(err).Warn("ignoring unreadable state file")
	} else if saved != nil {
		logrus.WithField("send_counter", saved.SendCounter).Info("resuming from saved state")
		sender.Restore(saved)
	}

	// Receiver.
	receiverCfg := coordination.ReceiverConfig{
		Layout:     layout,
		NodeID:     protocol.NodeID(cfg.Client.ID),
		UpstreamID: protocol.NodeID(cfg.Relay.ID),
		Routing:    layout == protocol.LayoutRouted && withRelay,
		Ack:        layout == protocol.LayoutTimeSync,
	}
	receiverNode := air.Join("receiver")
	receiver := coordination.NewReceiver(receiverCfg, receiverNode,
		newNapController("receiver", 0, nil), logReporter("receiver"))

	var wg sync.WaitGroup
	run := func(node *sim.Node, m coordination.Machine) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			node.Run(stop, m, 50*time.Millisecond)
		}()
	}

	if withRelay {
		relayCfg := coordination.RelayConfig{
			Layout:       layout,
			NodeID:       protocol.NodeID(cfg.Relay.ID),
			Mode:         relayMode,
			UpstreamID:   protocol.NodeID(cfg.Host.ID),
			DownstreamID: protocol.NodeID(cfg.Client.ID),
		}
		relayNode := air.Join("relay")
		relay := coordination.NewRelay(relayCfg, relayNode)
		relay.Listen()
		run(relayNode, relay)
	}

	receiver.Listen()
	run(receiverNode, receiver)
	run(senderNode, sender)

	wg.Wait()
	return nil
}

// napController stands in for the platform suspend primitive: it naps the
// calling goroutine for the requested duration. After a configured number of
// suspends it stops the demo.
type napController struct {
	name     string
	remain   int
	shutdown func()
	log      *logrus.Entry
}

func newNapController(name string, cycles int, shutdown func()) *napController {
	return &napController{
		name:     name,
		remain:   cycles,
		shutdown: shutdown,
		log:      logrus.WithField("power", name),
	}
}

func (c *napController) SuspendFor(seconds uint32) {
	c.log.WithField("seconds", seconds).Info("suspending")
	time.Sleep(time.Duration(seconds) * time.Second)
	c.log.Info("resumed")

	if c.shutdown != nil {
		c.remain--
		if c.remain <= 0 {
			c.shutdown()
		}
	}
}

func logReporter(name string) coordination.Reporter {
	entry := logrus.WithField("display", name)
	return coordination.ReporterFunc(func(fields map[string]any) {
		entry.WithFields(logrus.Fields(fields)).Info("packet received")
	})
}
