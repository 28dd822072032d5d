// Package clock abstracts the wall-clock source stamped into time-sync
// packets. Duty-cycled hardware often has no trustworthy RTC, so the host
// can be pointed at an NTP server instead of the platform clock.
package clock

import (
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/sirupsen/logrus"
)

// Source supplies the current wall-clock time.
type Source interface {
	Now() time.Time
}

// System reads the platform clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// refreshInterval is how long a fetched NTP offset stays fresh. Seconds-scale
// slack is acceptable to the protocol, so hourly refreshes are plenty.
const refreshInterval = time.Hour

// NTP derives the wall clock from an NTP server, caching the measured offset
// and falling back to the system clock while the server is unreachable.
type NTP struct {
	Server string

	// query is swappable in tests.
	query func(server string) (*ntp.Response, error)

	mu        sync.Mutex
	offset    time.Duration
	refreshed time.Time

	log *logrus.Entry
}

func NewNTP(server string) *NTP {
	return &NTP{
		Server: server,
		query:  ntp.Query,
		log:    logrus.WithField("ntp_server", server),
	}
}

func (c *NTP) Now() time.Time {
	return time.Now().Add(c.currentOffset())
}

func (c *NTP) currentOffset() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.refreshed) < refreshInterval {
		return c.offset
	}

	resp, err := c.query(c.Server)
	if err != nil {
		c.log.WithError(err).Warn("ntp query failed, using system clock offset")
		// Back off for a fraction of the refresh interval so a dead
		// server is not queried on every packet.
		c.refreshed = time.Now().Add(-refreshInterval + time.Minute)
		return c.offset
	}

	c.offset = resp.ClockOffset
	c.refreshed = time.Now()
	c.log.WithField("offset", c.offset).Debug("ntp offset refreshed")
	return c.offset
}
