// Package directory checks phone numbers against the messaging directory.
//
// Validator issues a single existence check for one number representation.
// Resolver walks the variants of a raw phone in order and stops at the first
// confirmed match. Neither returns an error: failures are folded into the
// result as unverified.
package directory

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/crm-import/internal/resilience"
	"github.com/sells-group/crm-import/pkg/waha"
)

// Check is the outcome of one existence check.
type Check struct {
	// Verified is false when the directory could not be asked or did not
	// answer; Exists is nil in that case.
	Verified    bool
	Exists      *bool
	DirectoryID string
	Reason      string
}

// Found reports whether the directory confirmed the number.
func (c Check) Found() bool {
	return c.Exists != nil && *c.Exists
}

// Checker checks one number representation on a session.
type Checker interface {
	Check(ctx context.Context, variant, session string) Check
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithLimiter paces directory calls.
func WithLimiter(l *rate.Limiter) ValidatorOption {
	return func(v *Validator) { v.limiter = l }
}

// WithBreakers enables a circuit breaker per session.
func WithBreakers(b *resilience.Breakers) ValidatorOption {
	return func(v *Validator) { v.breakers = b }
}

// WithRetry retries transient failures per the policy.
func WithRetry(p resilience.Policy) ValidatorOption {
	return func(v *Validator) { v.retry = p }
}

// Validator implements Checker against the WAHA API.
type Validator struct {
	client   waha.Client
	limiter  *rate.Limiter
	breakers *resilience.Breakers
	retry    resilience.Policy
}

// NewValidator creates a Validator that calls the directory once per check
// unless WithRetry is given.
func NewValidator(client waha.Client, opts ...ValidatorOption) *Validator {
	v := &Validator{client: client, retry: resilience.SingleAttempt()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Check implements Checker.
func (v *Validator) Check(ctx context.Context, variant, session string) Check {
	if session == "" {
		return Check{Reason: "no session configured"}
	}

	breaker := v.breakers.Get(session)
	if err := breaker.Allow(); err != nil {
		return Check{Reason: err.Error()}
	}

	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			breaker.Cancel()
			return Check{Reason: "rate limiter: " + err.Error()}
		}
	}

	retry := v.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("waha", "check-exists")
	}
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*waha.CheckExistsResponse, error) {
		return v.client.CheckExists(ctx, variant, session)
	})
	if err != nil && ctx.Err() != nil {
		breaker.Cancel()
	} else {
		breaker.Record(err, tripsBreaker)
	}
	if err != nil {
		zap.L().Debug("directory: check failed",
			zap.String("variant", variant),
			zap.String("session", session),
			zap.Error(err),
		)
		return Check{Reason: err.Error()}
	}

	exists := resp.NumberExists
	check := Check{Verified: true, Exists: &exists}
	if exists {
		check.DirectoryID = resp.ChatID
		if check.DirectoryID == "" {
			check.DirectoryID = variant + "@c.us"
		}
	} else {
		check.Reason = "number not registered"
	}
	return check
}

// tripsBreaker counts server side and transport failures. Client errors
// such as a rejected number say nothing about session health.
func tripsBreaker(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	code := resilience.StatusCode(err)
	return code == 0 || code >= 500 || code == 429
}
