// Package config loads node configuration from file, environment and
// defaults via viper.
package config

import (
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/viper"

	"github.com/wakesync/wakesync/coordination"
	"github.com/wakesync/wakesync/protocol"
)

const envPrefix = "WAKESYNC"

// NodeRef identifies one participant in the demo topology.
type NodeRef struct {
	ID uint8 `mapstructure:"id"`
}

// Config is the full node/demo configuration.
type Config struct {
	Layout          string `mapstructure:"layout"` // timesync | broadcast | routed
	IntervalSeconds uint16 `mapstructure:"interval_seconds"`
	WaitSeconds     uint16 `mapstructure:"wait_seconds"`
	WindowSeconds   uint16 `mapstructure:"window_seconds"`
	SleepState      uint8  `mapstructure:"sleep_state"`

	Host   NodeRef `mapstructure:"host"`
	Client NodeRef `mapstructure:"client"`
	Relay  struct {
		ID   uint8  `mapstructure:"id"`
		Mode string `mapstructure:"mode"` // repair | route
	} `mapstructure:"relay"`

	CorruptOutbound bool   `mapstructure:"corrupt_outbound"`
	StateFile       string `mapstructure:"state_file"`
	NTPServer       string `mapstructure:"ntp_server"`
	LogLevel        string `mapstructure:"log_level"`
	Cycles          int    `mapstructure:"cycles"`
}

// Load reads configuration from the given file (optional), the environment
// and built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, oops.Wrapf(err, "reading config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, oops.Wrapf(err, "parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("layout", protocol.LayoutTimeSync.String())
	v.SetDefault("interval_seconds", protocol.DefaultIntervalSeconds)
	v.SetDefault("wait_seconds", protocol.DefaultWaitSeconds)
	v.SetDefault("window_seconds", protocol.DefaultWindowSeconds)
	v.SetDefault("sleep_state", protocol.DefaultSleepState)
	v.SetDefault("host.id", 1)
	v.SetDefault("client.id", 2)
	v.SetDefault("relay.id", 3)
	v.SetDefault("relay.mode", "repair")
	v.SetDefault("state_file", "wakesync-state.yaml")
	v.SetDefault("log_level", "info")
	v.SetDefault("cycles", 3)
}

// Validate checks the cross-field constraints.
func (c *Config) Validate() error {
	if _, err := c.PacketLayout(); err != nil {
		return err
	}
	if _, err := c.RelayMode(); err != nil {
		return err
	}
	if c.IntervalSeconds == 0 {
		return oops.Errorf("interval_seconds must be positive")
	}
	if c.WindowSeconds >= c.IntervalSeconds {
		return oops.Errorf("window_seconds (%d) must be shorter than interval_seconds (%d)",
			c.WindowSeconds, c.IntervalSeconds)
	}
	return nil
}

// PacketLayout resolves the configured layout name.
func (c *Config) PacketLayout() (protocol.Layout, error) {
	switch c.Layout {
	case protocol.LayoutTimeSync.String():
		return protocol.LayoutTimeSync, nil
	case protocol.LayoutBroadcast.String():
		return protocol.LayoutBroadcast, nil
	case protocol.LayoutRouted.String():
		return protocol.LayoutRouted, nil
	}
	return 0, oops.Errorf("unknown layout %q", c.Layout)
}

// RelayMode resolves the configured relay mode name.
func (c *Config) RelayMode() (coordination.RelayMode, error) {
	switch c.Relay.Mode {
	case coordination.RelayRepair.String():
		return coordination.RelayRepair, nil
	case coordination.RelayRoute.String():
		return coordination.RelayRoute, nil
	}
	return 0, oops.Errorf("unknown relay mode %q", c.Relay.Mode)
}
