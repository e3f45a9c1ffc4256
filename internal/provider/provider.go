// Package provider abstracts the external delivery services behind a single
// send contract. One provider per channel; each is pluggable and classifies
// its own failures as transient or permanent so the dispatch pool can decide
// between retry and suppression.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/leadpulse/outreach/internal/content"
	"github.com/leadpulse/outreach/internal/domain"
)

// Provider delivers one rendered message to one contact identity and
// returns the provider-assigned message id.
type Provider interface {
	Channel() domain.Channel
	Send(ctx context.Context, identity string, msg *content.Rendered) (string, error)
}

// TransientError marks a failure worth retrying: timeouts, throttling,
// provider-side 5xx.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient provider error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that will never succeed for this identity:
// invalid recipient, hard bounce, blocked destination. The dispatcher
// suppresses the identity and cascade-stops on it.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent provider error: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error { return &TransientError{Err: err} }

// Permanent wraps err as non-retryable.
func Permanent(err error) error { return &PermanentError{Err: err} }

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsPermanent reports whether err is classified as non-retryable.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Registry maps channels to their configured providers.
type Registry struct {
	providers map[domain.Channel]Provider
}

// NewRegistry builds a registry from the given providers. Later entries for
// the same channel win.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[domain.Channel]Provider)}
	for _, p := range providers {
		r.providers[p.Channel()] = p
	}
	return r
}

// For returns the provider for a channel, or nil when none is configured.
// A missing provider is treated as channel unavailability, not an error.
func (r *Registry) For(c domain.Channel) Provider {
	return r.providers[c]
}

// Channels lists the channels with a configured provider.
func (r *Registry) Channels() []domain.Channel {
	out := make([]domain.Channel, 0, len(r.providers))
	for c := range r.providers {
		out = append(out, c)
	}
	return out
}
