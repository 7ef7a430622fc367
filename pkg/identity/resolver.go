// Package identity resolves which customer a conversation belongs to.
// Resolution is cheap and deterministic: explicit id phrasing first,
// then email and phone lookups against the customer table.
package identity

import (
	"context"
	"regexp"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/tunedesk/tunedesk/internal/observability"
	"github.com/tunedesk/tunedesk/pkg/agent"
)

// Lookup is the customer lookup surface the resolver needs.
// Implemented by internal/store.Store.
type Lookup interface {
	LookupCustomerIDByEmail(ctx context.Context, email string) (int, error)
	LookupCustomerIDByPhone(ctx context.Context, phone string) (int, error)
}

// Explicit id phrasing beats email and phone: a customer typing
// "customer id is 7" should never be re-resolved from an email
// mentioned elsewhere in the thread.
var customerIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)customer\s+id\s+is\s+(\d+)`),
	regexp.MustCompile(`(?i)customer\s+id\s*:\s*(\d+)`),
	regexp.MustCompile(`(?i)customer\s+id\s*=\s*(\d+)`),
	regexp.MustCompile(`(?i)my\s+customer\s+id\s+is\s+(\d+)`),
	regexp.MustCompile(`(?i)customer\s*#\s*(\d+)`),
	regexp.MustCompile(`(?i)\bid\s+(\d+)`),
}

var (
	emailPattern = regexp.MustCompile(`[\w\.-]+@[\w\.-]+\.\w+`)
	phonePattern = regexp.MustCompile(`\+?\d{10,15}`)
)

// Resolver extracts a customer ID from conversation history.
type Resolver struct {
	lookup Lookup
	logger zerolog.Logger
}

// Config holds resolver configuration
type Config struct {
	Lookup Lookup
	Logger zerolog.Logger
}

// New creates a new Resolver
func New(cfg Config) *Resolver {
	observability.EnsureRegistered()
	return &Resolver{
		lookup: cfg.Lookup,
		logger: cfg.Logger,
	}
}

// Resolve scans the user messages for a customer identifier. Explicit
// id phrasing wins over email, email over phone. The second return is
// false when nothing in the history identifies the customer. Store
// errors degrade to not-found.
func (r *Resolver) Resolve(ctx context.Context, messages []agent.Message) (string, bool) {
	for _, msg := range messages {
		if msg.Role != agent.RoleUser {
			continue
		}
		for _, pattern := range customerIDPatterns {
			if m := pattern.FindStringSubmatch(msg.Content); m != nil {
				r.logger.Debug().Str("customer_id", m[1]).Msg("Customer resolved from explicit id")
				observability.RecordIdentityResolution("explicit_id")
				return m[1], true
			}
		}
	}

	for _, msg := range messages {
		if msg.Role != agent.RoleUser {
			continue
		}
		if email := emailPattern.FindString(msg.Content); email != "" {
			id, err := r.lookup.LookupCustomerIDByEmail(ctx, email)
			if err != nil {
				r.logger.Warn().Err(err).Msg("Email lookup failed")
			} else if id > 0 {
				r.logger.Debug().Int("customer_id", id).Msg("Customer resolved from email")
				observability.RecordIdentityResolution("email")
				return strconv.Itoa(id), true
			}
		}
	}

	for _, msg := range messages {
		if msg.Role != agent.RoleUser {
			continue
		}
		if phone := phonePattern.FindString(msg.Content); phone != "" {
			id, err := r.lookup.LookupCustomerIDByPhone(ctx, phone)
			if err != nil {
				r.logger.Warn().Err(err).Msg("Phone lookup failed")
			} else if id > 0 {
				r.logger.Debug().Int("customer_id", id).Msg("Customer resolved from phone")
				observability.RecordIdentityResolution("phone")
				return strconv.Itoa(id), true
			}
		}
	}

	observability.RecordIdentityResolution("unresolved")
	return "", false
}
