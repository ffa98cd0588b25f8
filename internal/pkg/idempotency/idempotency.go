// Package idempotency deduplicates email delivery attempts. Each logical send
// is identified by a deterministic fingerprint; the cache hands out at most
// one lease per fingerprint until the attempt settles or the lease expires.
// Lease expiry is the recovery path after an ungraceful shutdown: an attempt
// that died mid-send becomes retryable once its lease TTL runs out.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Outcome is the terminal result of a delivery attempt.
type Outcome string

const (
	OutcomeSent   Outcome = "sent"
	OutcomeFailed Outcome = "failed"
)

// BeginResult classifies a TryBegin call.
type BeginResult int

const (
	// LeaseGranted means the caller owns the attempt and must Settle or
	// Release the fingerprint.
	LeaseGranted BeginResult = iota
	// AlreadyInFlight means another caller holds an unexpired lease.
	AlreadyInFlight
	// AlreadySettled means a terminal outcome is recorded; it accompanies
	// the settled Outcome.
	AlreadySettled
)

// Cache is the key-value contract the delivery pipeline deduplicates through.
// Implementations must make TryBegin a single atomic check-and-set.
type Cache interface {
	TryBegin(ctx context.Context, fingerprint string, leaseTTL time.Duration) (BeginResult, Outcome, error)
	Settle(ctx context.Context, fingerprint string, outcome Outcome, ttl time.Duration) error
	Release(ctx context.Context, fingerprint string) error
}

// Fingerprint derives the deduplication key for one logical send. The same
// (operation, subscriber, content version) triple always maps to the same
// key, so request retries, process restarts and concurrent workers all
// collapse onto a single delivery attempt.
func Fingerprint(operation, subscriberID, contentVersion string) string {
	sum := sha256.Sum256([]byte(operation + "|" + subscriberID + "|" + contentVersion))
	return fmt.Sprintf("letterspace:delivery:%s:%s", operation, hex.EncodeToString(sum[:16]))
}
