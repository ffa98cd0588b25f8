// Package mail delivers outbound email via SMTP or the Resend HTTP API.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gopkg.in/gomail.v2"
)

// Config holds mail provider settings.
type Config struct {
	Enable    bool
	Host      string
	Port      int
	User      string
	Pass      string
	From      string
	ReplyTo   string
	UseResend bool
	ResendKey string
}

// Message is a single email to send.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// TransportError is a failed transport call, classified so the delivery
// pipeline can decide between retrying and giving up.
type TransportError struct {
	Op        string
	Temporary bool
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mail %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTemporary reports whether err is a transport error worth retrying.
func IsTemporary(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Temporary
	}
	return false
}

const resendEndpoint = "https://api.resend.com/emails"

// Sender sends emails via SMTP or Resend.
type Sender struct {
	cfg      Config
	http     *http.Client
	endpoint string
}

func New(cfg Config) *Sender {
	return &Sender{
		cfg:      cfg,
		http:     &http.Client{Timeout: 15 * time.Second},
		endpoint: resendEndpoint,
	}
}

// Send dispatches an email. Uses Resend if configured, otherwise SMTP.
// A disabled sender is a successful no-op so development setups work without
// a mail provider.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	if !s.cfg.Enable {
		return nil
	}
	if s.cfg.UseResend && s.cfg.ResendKey != "" {
		return s.sendResend(ctx, msg)
	}
	return s.sendSMTP(ctx, msg)
}

// sendSMTP sends via gomail. gomail has no context support, so the dial and
// send runs in a goroutine and the context deadline wins the race.
func (s *Sender) sendSMTP(ctx context.Context, msg Message) error {
	from := s.cfg.From
	if from == "" {
		from = s.cfg.User
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	if s.cfg.ReplyTo != "" {
		m.SetHeader("Reply-To", s.cfg.ReplyTo)
	}
	if msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	} else {
		m.SetBody("text/html", msg.HTML)
	}

	port := s.cfg.Port
	if port == 0 {
		port = 587
	}
	dialer := gomail.NewDialer(s.cfg.Host, port, s.cfg.User, s.cfg.Pass)

	done := make(chan error, 1)
	go func() { done <- dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			// SMTP failures here are almost always connectivity or a
			// throttling server; a permanent rejection of the message
			// itself shows up as a 5xx from Resend instead.
			return &TransportError{Op: "smtp", Temporary: true, Err: err}
		}
		return nil
	case <-ctx.Done():
		return &TransportError{Op: "smtp", Temporary: true, Err: ctx.Err()}
	}
}

// sendResend sends via the Resend HTTP API.
func (s *Sender) sendResend(ctx context.Context, msg Message) error {
	from := s.cfg.From
	if from == "" {
		from = s.cfg.User
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"from":    from,
		"to":      msg.To,
		"subject": msg.Subject,
		"html":    msg.HTML,
		"text":    msg.Text,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Op: "resend", Temporary: false, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.ResendKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return &TransportError{Op: "resend", Temporary: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return &TransportError{
			Op: "resend",
			// 429 and 5xx are expected to clear on retry; other 4xx
			// (bad recipient, bad payload) will not.
			Temporary: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Err:       fmt.Errorf("resend error %d: %s", resp.StatusCode, errResp.Message),
		}
	}
	return nil
}
