package subscription

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/letterspace/core/internal/models"
	"github.com/letterspace/core/internal/pkg/token"
	"go.uber.org/zap"
)

// ErrValidation marks user-correctable input errors, rejected before any
// store call.
var ErrValidation = errors.New("invalid subscription input")

// ConfirmationSender is the slice of the delivery pipeline the state machine
// needs.
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, sub *models.SubscriberModel, tokenStr string, expiresAt time.Time) error
}

// Service is the subscription state machine: it owns the pending→confirmed
// transition protocol and what each transition triggers. The store mutation
// and the email send are deliberately not one atomic unit; a pending row
// whose confirmation email never went out is a valid, recoverable state.
type Service struct {
	store  SubscriberStore
	codec  *token.Codec
	sender ConfirmationSender
	log    *zap.Logger
}

func NewService(store SubscriberStore, codec *token.Codec, sender ConfirmationSender, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, codec: codec, sender: sender, log: log}
}

// Subscribe creates a pending subscriber and sends the confirmation email.
// The returned subscriber is non-nil whenever a row was created, even if the
// send permanently failed; callers decide how to surface that partial state.
func (s *Service) Subscribe(ctx context.Context, email, name string) (*models.SubscriberModel, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if err := validateInput(email, name); err != nil {
		return nil, err
	}

	sub, err := s.store.InsertPending(ctx, email, name)
	if err != nil {
		return nil, err
	}

	tok, expiresAt, err := s.codec.Issue(sub.ID)
	if err != nil {
		return sub, fmt.Errorf("issue confirmation token: %w", err)
	}

	if err := s.sender.SendConfirmation(ctx, sub, tok, expiresAt); err != nil {
		s.log.Warn("confirmation email not delivered, subscriber stays pending",
			zap.String("subscriber", sub.ID),
			zap.Error(err))
		return sub, err
	}

	s.log.Info("subscriber created",
		zap.String("subscriber", sub.ID),
		zap.String("email", email))
	return sub, nil
}

// Confirm verifies a token and transitions the subscriber to confirmed.
// Re-visiting a valid link is idempotent: an already-confirmed subscriber is
// a success, not an error.
func (s *Service) Confirm(ctx context.Context, tokenStr string) (*models.SubscriberModel, error) {
	subscriberID, err := s.codec.Verify(tokenStr)
	if err != nil {
		return nil, err
	}

	transitioned, err := s.store.MarkConfirmed(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	if transitioned {
		s.log.Info("subscriber confirmed", zap.String("subscriber", subscriberID))
	}

	return s.store.GetByID(ctx, subscriberID)
}

func validateInput(email, name string) error {
	if email == "" {
		return fmt.Errorf("%w: email must not be empty", ErrValidation)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fmt.Errorf("%w: malformed email address", ErrValidation)
	}
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrValidation)
	}
	return nil
}
