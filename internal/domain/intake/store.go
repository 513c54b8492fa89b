package intake

import (
	"context"
	"strings"
	"time"
)

// Filter narrows a listing. Zero values mean "no constraint". Name and
// Phone are case-insensitive substring matches against the decrypted
// payload, so filtered listings cost a decryption per stored record.
type Filter struct {
	From  *time.Time
	To    *time.Time
	Risk  string // "high" or "normal"
	Name  string
	Phone string
}

// Matches evaluates f against a submission whose payload has already
// been resolved to plaintext.
func (f Filter) Matches(sub *Submission) bool {
	if f.From != nil && sub.ReceivedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && sub.ReceivedAt.After(*f.To) {
		return false
	}
	switch f.Risk {
	case "high":
		if !sub.IsHighRisk() {
			return false
		}
	case "normal":
		if sub.IsHighRisk() {
			return false
		}
	}
	if f.Name != "" && !strings.Contains(strings.ToLower(sub.FullName()), strings.ToLower(f.Name)) {
		return false
	}
	if f.Phone != "" && !strings.Contains(sub.Phone(), f.Phone) {
		return false
	}
	return true
}

// Store persists intake submissions. Implementations encrypt the payload
// on write when a codec is configured, and return submissions with the
// payload already decrypted. List results are ordered newest first.
type Store interface {
	// Save persists a new submission. Returns a *DuplicateError when an
	// active submission already exists for the same phone number.
	Save(ctx context.Context, sub *Submission) error

	// Get loads one submission. The id may be a unique prefix of the
	// full submission id. Returns ErrNotFound when nothing matches.
	Get(ctx context.Context, id string) (*Submission, error)

	// List returns submissions matching the filter, newest first.
	// Name and phone predicates apply to payload fields, so every
	// candidate row is decrypted before evaluation. No plaintext index
	// is kept; a filtered listing over n records costs n decryptions.
	List(ctx context.Context, f Filter) ([]*Submission, error)

	// UpdateStatus advances the lifecycle status of a submission.
	UpdateStatus(ctx context.Context, id string, status Status) error
}
