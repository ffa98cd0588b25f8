// Package newsletter publishes issues to every confirmed subscriber.
package newsletter

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/letterspace/core/internal/models"
	"github.com/letterspace/core/internal/pkg/delivery"
	"github.com/letterspace/core/internal/pkg/response"
	"go.uber.org/zap"
)

const listBatchSize = 200

// ConfirmedLister streams confirmed subscribers, batch by batch.
type ConfirmedLister interface {
	EachConfirmed(ctx context.Context, batchSize int, fn func(*models.SubscriberModel) error) error
}

// Broadcaster is the slice of the delivery pipeline issue publishing needs.
type Broadcaster interface {
	BroadcastIssue(ctx context.Context, issue delivery.Issue, source delivery.SubscriberSource) (*delivery.Report, error)
}

type Service struct {
	store    ConfirmedLister
	pipeline Broadcaster
	log      *zap.Logger
}

func NewService(store ConfirmedLister, pipeline Broadcaster, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, pipeline: pipeline, log: log}
}

// PublishIssue fans the issue out over all confirmed subscribers and returns
// the per-recipient outcome report. Partial failure is a normal result, not
// an error.
func (s *Service) PublishIssue(ctx context.Context, issue delivery.Issue) (*delivery.Report, error) {
	if issue.ContentVersion == "" || issue.Title == "" {
		return nil, fmt.Errorf("issue needs a content version and a title")
	}

	source := func(ctx context.Context, fn func(*models.SubscriberModel) error) error {
		return s.store.EachConfirmed(ctx, listBatchSize, fn)
	}

	report, err := s.pipeline.BroadcastIssue(ctx, issue, source)
	if err != nil {
		return report, err
	}

	s.log.Info("issue published",
		zap.String("content_version", issue.ContentVersion),
		zap.Int("sent", report.Sent),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, adminMW gin.HandlerFunc) {
	g := rg.Group("/issues")
	g.POST("", adminMW, h.publish)
}

func (h *Handler) publish(c *gin.Context) {
	var issue delivery.Issue
	if err := c.ShouldBindJSON(&issue); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	report, err := h.svc.PublishIssue(c.Request.Context(), issue)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if report.Failed == nil {
		report.Failed = []delivery.FailedRecipient{}
	}
	response.OK(c, report)
}
