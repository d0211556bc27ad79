// Package mailer builds and delivers notification emails.
package mailer

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/printlog-cli/internal/model"
	"github.com/sells-group/printlog-cli/internal/resilience"
)

// Sender delivers one envelope.
type Sender interface {
	Send(ctx context.Context, env model.Envelope) error
}

// LogSender logs envelopes instead of delivering them. Used for dry runs.
type LogSender struct{}

func (LogSender) Send(_ context.Context, env model.Envelope) error {
	zap.L().Info("mailer: dry run, not sending",
		zap.String("to", env.To),
		zap.String("subject", env.Subject),
		zap.Int("body_bytes", len(env.HTMLBody)),
	)
	return nil
}

// RateLimited spaces out deliveries through a token bucket.
type RateLimited struct {
	next    Sender
	limiter *rate.Limiter
}

// NewRateLimited wraps next so at most perSecond messages go out per second.
// A non-positive rate disables limiting.
func NewRateLimited(next Sender, perSecond float64, burst int) Sender {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Send(ctx context.Context, env model.Envelope) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.next.Send(ctx, env)
}

// Retrying retries transient delivery failures.
type Retrying struct {
	next      Sender
	cfg       resilience.RetryConfig
	transport string
}

// NewRetrying wraps next with retry on transient errors.
func NewRetrying(next Sender, transport string, cfg resilience.RetryConfig) *Retrying {
	return &Retrying{next: next, cfg: cfg, transport: transport}
}

func (r *Retrying) Send(ctx context.Context, env model.Envelope) error {
	cfg := r.cfg
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(r.transport, env.To)
	}
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return r.next.Send(ctx, env)
	})
}
