package newsletter

import (
	"context"
	"testing"

	"github.com/letterspace/core/internal/models"
	"github.com/letterspace/core/internal/pkg/delivery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticLister struct {
	subs []*models.SubscriberModel
}

func (l *staticLister) EachConfirmed(_ context.Context, _ int, fn func(*models.SubscriberModel) error) error {
	for _, s := range l.subs {
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

type recordingBroadcaster struct {
	issue  delivery.Issue
	seen   []string
	report *delivery.Report
}

func (b *recordingBroadcaster) BroadcastIssue(ctx context.Context, issue delivery.Issue, source delivery.SubscriberSource) (*delivery.Report, error) {
	b.issue = issue
	err := source(ctx, func(sub *models.SubscriberModel) error {
		b.seen = append(b.seen, sub.ID)
		return nil
	})
	return b.report, err
}

func confirmed(id string) *models.SubscriberModel {
	s := &models.SubscriberModel{Email: id + "@x.com", Name: id, Status: models.SubscriberConfirmed}
	s.ID = id
	return s
}

func TestPublishIssueStreamsConfirmedSubscribers(t *testing.T) {
	lister := &staticLister{subs: []*models.SubscriberModel{confirmed("a"), confirmed("b")}}
	bc := &recordingBroadcaster{report: &delivery.Report{Sent: 2}}
	svc := NewService(lister, bc, zap.NewNop())

	issue := delivery.Issue{ContentVersion: "v1", Title: "Issue #1"}
	report, err := svc.PublishIssue(context.Background(), issue)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, []string{"a", "b"}, bc.seen)
	assert.Equal(t, "v1", bc.issue.ContentVersion)
}

func TestPublishIssueRequiresVersionAndTitle(t *testing.T) {
	svc := NewService(&staticLister{}, &recordingBroadcaster{}, zap.NewNop())

	_, err := svc.PublishIssue(context.Background(), delivery.Issue{Title: "t"})
	assert.Error(t, err)

	_, err = svc.PublishIssue(context.Background(), delivery.Issue{ContentVersion: "v1"})
	assert.Error(t, err)
}
