package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/letterspace/core/internal/models"
	"github.com/letterspace/core/internal/pkg/idempotency"
	"github.com/letterspace/core/internal/pkg/mail"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Issue is one newsletter issue to broadcast. ContentVersion identifies the
// content for deduplication: broadcasting the same version twice never
// double-sends to a recipient already marked sent.
type Issue struct {
	ContentVersion string `json:"content_version" binding:"required"`
	Title          string `json:"title"           binding:"required"`
	Excerpt        string `json:"excerpt"`
	DetailURL      string `json:"detail_url"`
}

// FailedRecipient is one recipient an issue could not be delivered to.
type FailedRecipient struct {
	SubscriberID string `json:"subscriber_id"`
	Reason       string `json:"reason"`
}

// Report is the per-broadcast outcome summary. A broadcast with failures is
// partial success, not an error.
type Report struct {
	Sent   int               `json:"sent"`
	Failed []FailedRecipient `json:"failed"`
}

// SubscriberSource streams confirmed subscribers to the broadcast without
// holding them all in memory. The source stops early when fn returns an
// error.
type SubscriberSource func(ctx context.Context, fn func(*models.SubscriberModel) error) error

// BroadcastIssue fans the issue out over every subscriber the source yields,
// with bounded parallelism. One recipient's permanent failure never aborts
// the broadcast; cancellation stops dispatching new sends and lets in-flight
// ones settle their lease.
func (p *Pipeline) BroadcastIssue(ctx context.Context, issue Issue, source SubscriberSource) (*Report, error) {
	var (
		mu     sync.Mutex
		report Report
	)

	fail := func(id, reason string) {
		mu.Lock()
		report.Failed = append(report.Failed, FailedRecipient{SubscriberID: id, Reason: reason})
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)

	srcErr := source(ctx, func(sub *models.SubscriberModel) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			err := p.sendIssue(ctx, sub, issue)
			switch {
			case err == nil:
				mu.Lock()
				report.Sent++
				mu.Unlock()
			case errors.Is(err, context.Canceled):
				// shutdown; the lease was released or will expire
			default:
				p.log.Warn("issue delivery failed",
					zap.String("subscriber", sub.ID),
					zap.String("content_version", issue.ContentVersion),
					zap.Error(err))
				fail(sub.ID, err.Error())
			}
			return nil
		})
		return nil
	})

	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()

	if srcErr != nil && !errors.Is(srcErr, context.Canceled) {
		return &report, fmt.Errorf("subscriber iteration: %w", srcErr)
	}
	return &report, nil
}

func (p *Pipeline) sendIssue(ctx context.Context, sub *models.SubscriberModel, issue Issue) error {
	msg, err := mail.IssueMessage(sub.Email, mail.IssueData{
		Title:     issue.Title,
		Excerpt:   issue.Excerpt,
		DetailURL: issue.DetailURL,
		SiteName:  p.opts.SiteName,
	})
	if err != nil {
		return fmt.Errorf("build issue email: %w", err)
	}

	fp := idempotency.Fingerprint(opIssue, sub.ID, issue.ContentVersion)
	return p.deliver(ctx, fp, sub.ID, opIssue, msg)
}
