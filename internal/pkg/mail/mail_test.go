package mail

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmationMessage(t *testing.T) {
	msg, err := ConfirmationMessage("a@x.com", ConfirmationData{
		Name:       "Ada",
		ConfirmURL: "https://letters.example.com/api/v1/subscriptions/confirm?token=abc",
		SiteName:   "Letters",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a@x.com"}, msg.To)
	assert.Contains(t, msg.Subject, "Letters")
	assert.Contains(t, msg.HTML, "token=abc")
	assert.Contains(t, msg.HTML, "Ada")
	assert.Contains(t, msg.Text, "token=abc")
}

func TestIssueMessage(t *testing.T) {
	msg, err := IssueMessage("a@x.com", IssueData{
		Title:     "Issue #1",
		Excerpt:   "The first one.",
		DetailURL: "https://letters.example.com/issues/1",
	})
	require.NoError(t, err)

	assert.Contains(t, msg.Subject, "Issue #1")
	assert.Contains(t, msg.HTML, "https://letters.example.com/issues/1")
	// SiteName falls back to a default
	assert.Contains(t, msg.Subject, "Letterspace")
}

func TestDisabledSenderIsNoOp(t *testing.T) {
	s := New(Config{Enable: false})
	err := s.Send(context.Background(), Message{To: []string{"a@x.com"}})
	assert.NoError(t, err)
}

func TestResendClassification(t *testing.T) {
	tests := []struct {
		status    int
		temporary bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnprocessableEntity, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"message":"nope"}`)
			}))
			defer srv.Close()

			s := New(Config{Enable: true, UseResend: true, ResendKey: "key", From: "f@x.com"})
			s.endpoint = srv.URL

			err := s.Send(context.Background(), Message{To: []string{"a@x.com"}, Subject: "s", HTML: "<p>h</p>"})
			require.Error(t, err)
			assert.Equal(t, tt.temporary, IsTemporary(err))
		})
	}
}

func TestResendSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(Config{Enable: true, UseResend: true, ResendKey: "key", From: "f@x.com"})
	s.endpoint = srv.URL

	err := s.Send(context.Background(), Message{To: []string{"a@x.com"}, Subject: "s", HTML: "<p>h</p>"})
	assert.NoError(t, err)
}

func TestIsTemporaryNonTransportError(t *testing.T) {
	assert.False(t, IsTemporary(fmt.Errorf("boom")))
	assert.False(t, IsTemporary(nil))
}
