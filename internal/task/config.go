package task

import "time"

// Config holds the timing parameters of the task lifecycle.
type Config struct {
	// LeaseDuration is how long a claim stays valid.
	LeaseDuration time.Duration

	// SafetyMargin is kept free at the end of a lease so the final write
	// lands before the lease expires.
	SafetyMargin time.Duration

	// MinTimeBudget is the floor of the provider time budget.
	MinTimeBudget time.Duration

	// PollInterval is the pause between provider status requests.
	PollInterval time.Duration

	// DeadlineHorizon is added to the creation time to form a task's absolute deadline.
	DeadlineHorizon time.Duration

	// ReconcileInterval is the period of the Reconciler sweep.
	ReconcileInterval time.Duration

	// Clock returns the current time. Defaults to UTC wall time truncated to
	// microseconds, the precision of the lease column.
	Clock func() time.Time
}

// DefaultConfig returns a Config with the standard lifecycle timings.
func DefaultConfig() Config {
	return Config{
		LeaseDuration:     60 * time.Second,
		SafetyMargin:      3 * time.Second,
		MinTimeBudget:     5 * time.Second,
		PollInterval:      5 * time.Second,
		DeadlineHorizon:   120 * time.Second,
		ReconcileInterval: time.Minute,
		Clock:             systemClock,
	}
}

func systemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = d.LeaseDuration
	}
	if c.SafetyMargin < 0 {
		c.SafetyMargin = d.SafetyMargin
	}
	if c.MinTimeBudget <= 0 {
		c.MinTimeBudget = d.MinTimeBudget
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.DeadlineHorizon <= 0 {
		c.DeadlineHorizon = d.DeadlineHorizon
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = d.ReconcileInterval
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	return c
}

// TimeBudget is how long the provider may run under a lease that expires at
// leaseExpiresAt: the time left minus SafetyMargin, never below MinTimeBudget.
func (c Config) TimeBudget(leaseExpiresAt, now time.Time) time.Duration {
	budget := leaseExpiresAt.Sub(now) - c.SafetyMargin
	if budget < c.MinTimeBudget {
		return c.MinTimeBudget
	}
	return budget
}
