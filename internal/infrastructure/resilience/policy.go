package resilience

import "time"

// Operation names used by the analyzer's outbound calls.
const (
	OpGeminiGenerate = "gemini.generate"
	OpOllamaGenerate = "ollama.generate"
	OpNATSPublish    = "nats.publish"
)

// RetryPolicy bounds the retries of one operation. Zero fields inherit from Config.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	// Operations overrides the retry policy per operation name.
	Operations map[string]RetryPolicy

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// DefaultConfig is tuned for model calls that hit rate limits: a few slow retries.
// Event publishing runs inside the job's bookkeeping window and retries quickly.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 250 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2.0,

		Operations: map[string]RetryPolicy{
			OpNATSPublish: {MaxAttempts: 3, InitialBackoff: 50 * time.Millisecond, MaxBackoff: 200 * time.Millisecond},
		},

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// WithOperation returns a copy of c with p set for operation.
func (c Config) WithOperation(operation string, p RetryPolicy) Config {
	ops := make(map[string]RetryPolicy, len(c.Operations)+1)
	for name, policy := range c.Operations {
		ops[name] = policy
	}
	ops[operation] = p
	c.Operations = ops
	return c
}

// FitWithin lowers the attempts of operation until the worst-case sleeps between
// attempts take at most half of budget, leaving the rest for the calls themselves.
// At least one attempt is always kept.
func (c Config) FitWithin(operation string, budget time.Duration) Config {
	if budget <= 0 {
		return c
	}
	p := c.normalize().policyFor(operation)
	for p.MaxAttempts > 1 && p.worstCaseBackoff() > budget/2 {
		p.MaxAttempts--
	}
	return c.WithOperation(operation, p)
}

func (c Config) policyFor(operation string) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts:    c.RetryMaxAttempts,
		InitialBackoff: c.RetryInitialBackoff,
		MaxBackoff:     c.RetryMaxBackoff,
		Multiplier:     c.RetryMultiplier,
	}
	override, ok := c.Operations[operation]
	if !ok {
		return p
	}
	if override.MaxAttempts > 0 {
		p.MaxAttempts = override.MaxAttempts
	}
	if override.InitialBackoff > 0 {
		p.InitialBackoff = override.InitialBackoff
	}
	if override.MaxBackoff > 0 {
		p.MaxBackoff = override.MaxBackoff
	}
	if override.Multiplier >= 1.0 {
		p.Multiplier = override.Multiplier
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	return p
}

// worstCaseBackoff sums the sleeps between MaxAttempts attempts.
func (p RetryPolicy) worstCaseBackoff() time.Duration {
	var total time.Duration
	backoff := p.InitialBackoff
	for i := 1; i < p.MaxAttempts; i++ {
		total += min(backoff, p.MaxBackoff)
		backoff = time.Duration(float64(backoff) * p.Multiplier)
	}
	return total
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}
