package runner

import (
	"context"
	"time"

	"github.com/wesleyorama2/rhino/internal/rate"
	"github.com/wesleyorama2/rhino/internal/session"
	"github.com/wesleyorama2/rhino/internal/simerr"
)

// DrainMode selects what happens to in-flight pairings when the run stops.
type DrainMode int

const (
	// DrainGraceful lets in-flight pairings finish, up to GracefulStop.
	DrainGraceful DrainMode = iota
	// DrainAbandon cancels in-flight pairings at once.
	DrainAbandon
)

func (d DrainMode) String() string {
	if d == DrainAbandon {
		return "abandon"
	}
	return "graceful"
}

// ParseDrainMode maps a mode name to a DrainMode. The empty name is graceful.
func ParseDrainMode(name string) (DrainMode, bool) {
	switch name {
	case "", "graceful":
		return DrainGraceful, true
	case "abandon":
		return DrainAbandon, true
	default:
		return DrainGraceful, false
	}
}

// Hook runs once per actor session before the run starts (prepare) or after
// it ends (cleanup).
type Hook func(ctx context.Context, s *session.Session) error

// Default values applied to a zero Config.
const (
	DefaultActorPollInterval = time.Second
	DefaultActorPollAttempts = 60
	DefaultGracefulStop      = 30 * time.Second
	DefaultEventBuffer       = 4096
)

// Config controls one simulation run.
type Config struct {
	Name string

	// Actors is the number of actors taken from the pool.
	Actors int
	// Parallelism is the number of pairings executing at once. Zero means
	// one per actor.
	Parallelism int

	// The pairing stream ends when Duration elapses or after MaxExecutions
	// pairings, whichever comes first. At least one must be set.
	Duration      time.Duration
	MaxExecutions int64

	Ramp     *rate.RampSpec
	Throttle *rate.ThrottleSpec

	ActorPollInterval time.Duration
	ActorPollAttempts int

	Drain        DrainMode
	GracefulStop time.Duration

	// EventBuffer sizes the event bus the runner creates.
	EventBuffer int

	Prepare Hook
	CleanUp Hook
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Parallelism <= 0 {
		c.Parallelism = c.Actors
	}
	if c.ActorPollInterval <= 0 {
		c.ActorPollInterval = DefaultActorPollInterval
	}
	if c.ActorPollAttempts <= 0 {
		c.ActorPollAttempts = DefaultActorPollAttempts
	}
	if c.GracefulStop == 0 && c.Drain == DrainGraceful {
		c.GracefulStop = DefaultGracefulStop
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
}

// Validate checks the run parameters.
func (c *Config) Validate() error {
	switch {
	case c.Actors <= 0:
		return simerr.Invalid("simulation", "actors", "must be > 0")
	case c.Parallelism < 0:
		return simerr.Invalid("simulation", "parallelism", "must be >= 0")
	case c.Duration < 0:
		return simerr.Invalid("simulation", "duration", "must be >= 0")
	case c.MaxExecutions < 0:
		return simerr.Invalid("simulation", "maxExecutions", "must be >= 0")
	case c.Duration == 0 && c.MaxExecutions == 0:
		return simerr.Invalid("simulation", "duration", "a duration or an execution count is required")
	}
	if c.Ramp != nil {
		if err := c.Ramp.Validate(); err != nil {
			return simerr.Invalid("simulation", "rampUp", err.Error())
		}
	}
	if c.Throttle != nil {
		if err := c.Throttle.Validate(); err != nil {
			return simerr.Invalid("simulation", "throttle", err.Error())
		}
	}
	return nil
}
