package model

import "time"

// AbusePolicy holds the tunables of the send throttle and the cadence
// detector. The cadence constants are empirical.
type AbusePolicy struct {
	// Cooldown is the flat minimum spacing between two sends. Zero disables it.
	Cooldown time.Duration
	// Tolerance is how close two consecutive intervals must be to count as
	// the same cadence.
	Tolerance time.Duration
	// Threshold is the length of a same-cadence run that triggers a mute.
	Threshold int
	// MuteTTL is how long a mute lasts.
	MuteTTL time.Duration
	// Window is how long an idle tracking record survives.
	Window time.Duration
}

// DefaultAbusePolicy returns the production defaults.
func DefaultAbusePolicy() AbusePolicy {
	return AbusePolicy{
		Cooldown:  time.Second,
		Tolerance: 100 * time.Millisecond,
		Threshold: 5,
		MuteTTL:   20 * time.Second,
		Window:    30 * time.Second,
	}
}

// AbuseVerdict is the outcome of one send attempt.
type AbuseVerdict int

const (
	VerdictAllowed AbuseVerdict = iota
	VerdictCooldown
	VerdictMuted
	// VerdictMutedNow means this attempt triggered the mute.
	VerdictMutedNow
)

func (v AbuseVerdict) String() string {
	switch v {
	case VerdictAllowed:
		return "allowed"
	case VerdictCooldown:
		return "cooldown"
	case VerdictMuted:
		return "muted"
	case VerdictMutedNow:
		return "muted_now"
	default:
		return "unknown"
	}
}

// AbuseDecision is returned by the abuse gate.
type AbuseDecision struct {
	Verdict    AbuseVerdict
	RetryAfter time.Duration
	Repeat     int
}

// Allowed reports whether the send may proceed.
func (d AbuseDecision) Allowed() bool {
	return d.Verdict == VerdictAllowed
}
