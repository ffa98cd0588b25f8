package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/letterspace/core/internal/models"
	"github.com/letterspace/core/internal/pkg/delivery"
	"github.com/letterspace/core/internal/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore is an in-memory SubscriberStore with the same uniqueness and
// transition semantics as the GORM implementation.
type fakeStore struct {
	mu   sync.Mutex
	rows map[string]*models.SubscriberModel // by id
	seq  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]*models.SubscriberModel{}}
}

func (f *fakeStore) InsertPending(_ context.Context, email, name string) (*models.SubscriberModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.Email == email {
			return nil, ErrDuplicateEmail
		}
	}
	f.seq++
	sub := &models.SubscriberModel{Email: email, Name: name, Status: models.SubscriberPending}
	sub.ID = uuid.New().String()
	sub.CreatedAt = time.Now()
	f.rows[sub.ID] = sub
	return sub, nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*models.SubscriberModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.rows[id]
	if !ok {
		return nil, ErrSubscriberNotFound
	}
	return sub, nil
}

func (f *fakeStore) MarkConfirmed(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.rows[id]
	if !ok {
		return false, ErrSubscriberNotFound
	}
	if sub.Status == models.SubscriberConfirmed {
		return false, nil
	}
	sub.Status = models.SubscriberConfirmed
	return true, nil
}

func (f *fakeStore) EachConfirmed(_ context.Context, _ int, fn func(*models.SubscriberModel) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.rows {
		if sub.Status != models.SubscriberConfirmed {
			continue
		}
		if err := fn(sub); err != nil {
			return err
		}
	}
	return nil
}

// fakeSender records confirmation sends and can be scripted to fail.
type fakeSender struct {
	mu    sync.Mutex
	sends []string // subscriber ids
	err   error
}

func (f *fakeSender) SendConfirmation(_ context.Context, sub *models.SubscriberModel, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sends = append(f.sends, sub.ID)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeSender, *token.Codec) {
	t.Helper()
	codec, err := token.NewCodec("test-secret", time.Hour)
	require.NoError(t, err)
	store := newFakeStore()
	sender := &fakeSender{}
	return NewService(store, codec, sender, zap.NewNop()), store, sender, codec
}

func TestSubscribeCreatesPendingAndSendsOnce(t *testing.T) {
	svc, store, sender, _ := newTestService(t)

	sub, err := svc.Subscribe(context.Background(), "a@x.com", "A")
	require.NoError(t, err)
	require.NotNil(t, sub)

	assert.Equal(t, models.SubscriberPending, sub.Status)
	assert.Len(t, store.rows, 1)
	assert.Equal(t, []string{sub.ID}, sender.sends)
}

func TestSubscribeDuplicateEmailConflicts(t *testing.T) {
	svc, store, _, _ := newTestService(t)

	first, err := svc.Subscribe(context.Background(), "a@x.com", "A")
	require.NoError(t, err)

	_, err = svc.Subscribe(context.Background(), "a@x.com", "B")
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	// exactly one row, and it kept the first name
	require.Len(t, store.rows, 1)
	assert.Equal(t, "A", store.rows[first.ID].Name)
}

func TestSubscribeValidation(t *testing.T) {
	svc, store, sender, _ := newTestService(t)

	tests := []struct {
		name  string
		email string
		dname string
	}{
		{"empty email", "", "A"},
		{"malformed email", "not-an-email", "A"},
		{"spaces only email", "   ", "A"},
		{"empty name", "a@x.com", ""},
		{"blank name", "a@x.com", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Subscribe(context.Background(), tt.email, tt.dname)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	assert.Empty(t, store.rows, "validation failures must not touch the store")
	assert.Empty(t, sender.sends)
}

func TestSubscribePermanentSendFailureLeavesPending(t *testing.T) {
	svc, store, sender, _ := newTestService(t)
	sender.err = &delivery.PermanentFailureError{
		SubscriberID: "x", Operation: "confirmation", Err: errors.New("retries exhausted"),
	}

	sub, err := svc.Subscribe(context.Background(), "a@x.com", "A")

	var pf *delivery.PermanentFailureError
	require.ErrorAs(t, err, &pf)
	require.NotNil(t, sub, "the row exists despite the failed send")
	assert.Equal(t, models.SubscriberPending, store.rows[sub.ID].Status)
}

func TestConfirmTransitionsExactlyOnce(t *testing.T) {
	svc, store, _, codec := newTestService(t)

	sub, err := svc.Subscribe(context.Background(), "a@x.com", "A")
	require.NoError(t, err)

	tok, _, err := codec.Issue(sub.ID)
	require.NoError(t, err)

	got, err := svc.Confirm(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriberConfirmed, got.Status)

	// Re-visiting the same link is a success, and the store reports the
	// idempotent no-op.
	transitioned, err := store.MarkConfirmed(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.False(t, transitioned)

	got, err = svc.Confirm(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriberConfirmed, got.Status)
	assert.Len(t, store.rows, 1)
}

func TestConfirmRejectsBadTokens(t *testing.T) {
	svc, _, _, codec := newTestService(t)

	sub, err := svc.Subscribe(context.Background(), "a@x.com", "A")
	require.NoError(t, err)

	tok, _, err := codec.Issue(sub.ID)
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), "garbage")
	assert.ErrorIs(t, err, token.ErrMalformed)

	last := "A"
	if tok[len(tok)-1] == 'A' {
		last = "B"
	}
	tampered := tok[:len(tok)-1] + last
	_, err = svc.Confirm(context.Background(), tampered)
	assert.ErrorIs(t, err, token.ErrSignatureMismatch)
}

func TestConfirmUnknownSubscriber(t *testing.T) {
	svc, _, _, codec := newTestService(t)

	tok, _, err := codec.Issue("ghost")
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), tok)
	assert.ErrorIs(t, err, ErrSubscriberNotFound)
}
