package retry

import (
	"time"

	"github.com/customeros/sitestack/config"
)

const (
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxAttempts = 5
)

// Decision is advisory: nothing in the service runs a timer on it.
type Decision struct {
	ShouldRetry bool
	Delay       time.Duration
}

type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		MaxAttempts: DefaultMaxAttempts,
	}
}

func NewPolicy(cfg *config.RetryConfig) Policy {
	policy := DefaultPolicy()
	if cfg == nil {
		return policy
	}
	if cfg.BaseDelay > 0 {
		policy.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		policy.MaxDelay = cfg.MaxDelay
	}
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay
	}
	return policy
}

// ComputeRetry returns base*2^(attempt-1) capped at MaxDelay. Once attempt
// reaches MaxAttempts no retry is advised and the delay is zero.
func (p Policy) ComputeRetry(attempt int) Decision {
	if attempt < 1 {
		attempt = 1
	}
	if attempt >= p.MaxAttempts {
		return Decision{ShouldRetry: false}
	}

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	return Decision{ShouldRetry: true, Delay: delay}
}
