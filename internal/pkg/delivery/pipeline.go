// Package delivery turns logical "send this email to this subscriber"
// intents into transport calls with retry, backoff and idempotent
// deduplication. Transient transport errors are absorbed here and never leak
// to callers; exhausted retries surface as a typed permanent failure carrying
// the subscriber and operation for operator follow-up.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/letterspace/core/internal/models"
	"github.com/letterspace/core/internal/pkg/idempotency"
	"github.com/letterspace/core/internal/pkg/mail"
	"go.uber.org/zap"
)

const (
	opConfirmation = "confirmation"
	opIssue        = "issue"

	// Successful sends stay settled for a long time so re-broadcasts of the
	// same content never double-send. Failures settle shorter: re-publishing
	// an issue after an outage re-attempts only the previously failed
	// subset once their failure records lapse.
	sentSettleTTL   = 7 * 24 * time.Hour
	failedSettleTTL = time.Hour
)

// ErrInFlight is returned when another caller holds the delivery lease for
// the same fingerprint.
var ErrInFlight = errors.New("delivery already in flight")

// PermanentFailureError reports a send whose retry budget is exhausted or
// that the transport rejected outright. The subscriber's status is untouched.
type PermanentFailureError struct {
	SubscriberID string
	Operation    string
	Err          error
}

func (e *PermanentFailureError) Error() string {
	return fmt.Sprintf("delivery of %s to subscriber %s permanently failed: %v", e.Operation, e.SubscriberID, e.Err)
}

func (e *PermanentFailureError) Unwrap() error { return e.Err }

// Transport is the outbound email collaborator.
type Transport interface {
	Send(ctx context.Context, msg mail.Message) error
}

// Options configures a Pipeline. All fields come resolved from the
// application config.
type Options struct {
	BaseURL     string
	SiteName    string
	MaxAttempts int
	Backoff     Backoff
	SendTimeout time.Duration
	LeaseTTL    time.Duration
	Concurrency int
}

// Pipeline orchestrates deduplicated, retried email delivery.
type Pipeline struct {
	transport Transport
	cache     idempotency.Cache
	opts      Options
	log       *zap.Logger

	// sleep waits between retries; injected so backoff behavior is testable
	// without real time.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPipeline(transport Transport, cache idempotency.Cache, opts Options, log *zap.Logger) *Pipeline {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		transport: transport,
		cache:     cache,
		opts:      opts,
		log:       log,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendConfirmation delivers the double opt-in confirmation email. The
// fingerprint binds the token's expiry, so re-subscribing after the old token
// lapsed produces a fresh send while request retries within the token's
// lifetime collapse onto one.
func (p *Pipeline) SendConfirmation(ctx context.Context, sub *models.SubscriberModel, tokenStr string, expiresAt time.Time) error {
	confirmURL := fmt.Sprintf("%s/api/v1/subscriptions/confirm?token=%s",
		p.opts.BaseURL, url.QueryEscape(tokenStr))

	msg, err := mail.ConfirmationMessage(sub.Email, mail.ConfirmationData{
		Name:       sub.Name,
		ConfirmURL: confirmURL,
		SiteName:   p.opts.SiteName,
	})
	if err != nil {
		return fmt.Errorf("build confirmation email: %w", err)
	}

	fp := idempotency.Fingerprint(opConfirmation, sub.ID, strconv.FormatInt(expiresAt.Unix(), 10))
	return p.deliver(ctx, fp, sub.ID, opConfirmation, msg)
}

// deliver acquires the idempotency lease for fp and drives the bounded retry
// loop. Exactly one transport transmission ever succeeds per fingerprint.
func (p *Pipeline) deliver(ctx context.Context, fp, subscriberID, operation string, msg mail.Message) error {
	res, outcome, err := p.cache.TryBegin(ctx, fp, p.opts.LeaseTTL)
	if err != nil {
		return fmt.Errorf("acquire delivery lease: %w", err)
	}
	switch res {
	case idempotency.AlreadySettled:
		if outcome == idempotency.OutcomeSent {
			return nil
		}
		return &PermanentFailureError{
			SubscriberID: subscriberID,
			Operation:    operation,
			Err:          errors.New("previous attempt permanently failed"),
		}
	case idempotency.AlreadyInFlight:
		return ErrInFlight
	}

	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, p.opts.SendTimeout)
		lastErr = p.transport.Send(sendCtx, msg)
		cancel()

		if lastErr == nil {
			if err := p.cache.Settle(ctx, fp, idempotency.OutcomeSent, sentSettleTTL); err != nil {
				p.log.Warn("settle after send failed",
					zap.String("fingerprint", fp), zap.Error(err))
			}
			return nil
		}

		if !transient(lastErr) {
			break
		}

		p.log.Info("transient send failure, backing off",
			zap.String("operation", operation),
			zap.String("subscriber", subscriberID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt == p.opts.MaxAttempts {
			break
		}
		if err := p.sleep(ctx, p.opts.Backoff.Delay(attempt)); err != nil {
			// Cancelled mid-backoff: release the lease so a later retry
			// does not have to wait out the TTL.
			if relErr := p.cache.Release(context.WithoutCancel(ctx), fp); relErr != nil {
				p.log.Warn("release delivery lease failed",
					zap.String("fingerprint", fp), zap.Error(relErr))
			}
			return err
		}
	}

	if err := p.cache.Settle(context.WithoutCancel(ctx), fp, idempotency.OutcomeFailed, failedSettleTTL); err != nil {
		p.log.Warn("settle after failure failed",
			zap.String("fingerprint", fp), zap.Error(err))
	}
	return &PermanentFailureError{SubscriberID: subscriberID, Operation: operation, Err: lastErr}
}

// transient reports whether the transport error is worth retrying. Context
// deadlines on the per-attempt timeout count as transient; cancellation of
// the whole request does not.
func transient(err error) bool {
	if mail.IsTemporary(err) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
