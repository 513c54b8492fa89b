package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dokterdibya/clinic/internal/platform/phi"
)

// Status is the review lifecycle of a submission. Transitions are forward
// only; submissions are medico-legal records and are never deleted.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusReviewed  Status = "reviewed"
	StatusImported  Status = "imported"
)

var statusOrder = map[Status]int{
	StatusDraft:     0,
	StatusSubmitted: 1,
	StatusReviewed:  2,
	StatusImported:  3,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is an allowed
// forward step.
func (s Status) CanTransitionTo(next Status) bool {
	cur, ok := statusOrder[s]
	if !ok {
		return false
	}
	n, ok := statusOrder[next]
	if !ok {
		return false
	}
	return n > cur
}

// Client is audit metadata captured at submission time. Immutable.
type Client struct {
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent"`
}

// Submission is one durable intake entry. Exactly one of Payload or
// Encrypted is populated on a stored record: when the encryption codec is
// configured the plaintext payload is never written to disk, and a loaded
// record has Payload resolved by decryption before it reaches callers.
type Submission struct {
	SubmissionID string          `json:"submissionId"`
	ReceivedAt   time.Time       `json:"receivedAt"`
	Status       Status          `json:"status"`
	HighRisk     bool            `json:"highRisk,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Encrypted    *phi.Wrapper    `json:"encrypted,omitempty"`
	Client       Client          `json:"client"`
}

// Validate enforces the stored-form invariant: exactly one of Payload or
// Encrypted present.
func (s *Submission) Validate() error {
	hasPayload := len(s.Payload) > 0
	hasEncrypted := s.Encrypted != nil
	if hasPayload == hasEncrypted {
		return fmt.Errorf("submission %s: exactly one of payload or encrypted must be set", s.SubmissionID)
	}
	return nil
}

// PayloadMap decodes the resolved plaintext payload into a generic map.
// Returns an empty map when the payload is absent, so field extraction
// never dereferences nil.
func (s *Submission) PayloadMap() (map[string]interface{}, error) {
	if len(s.Payload) == 0 {
		return map[string]interface{}{}, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(s.Payload, &m); err != nil {
		return nil, fmt.Errorf("decode payload for %s: %w", s.SubmissionID, err)
	}
	if m == nil {
		m = map[string]interface{}{}
	}
	return m, nil
}

// Phone returns the declared phone number, or "" when absent.
func (s *Submission) Phone() string {
	m, err := s.PayloadMap()
	if err != nil {
		return ""
	}
	phone, _ := m["phone"].(string)
	return strings.TrimSpace(phone)
}

// FullName returns the declared patient name, or "" when absent.
func (s *Submission) FullName() string {
	m, err := s.PayloadMap()
	if err != nil {
		return ""
	}
	name, _ := m["full_name"].(string)
	return name
}

// IsHighRisk reports the risk flag, preferring the stored top-level flag
// and falling back to payload metadata for records written before the
// flag was lifted out of the payload.
func (s *Submission) IsHighRisk() bool {
	if s.HighRisk {
		return true
	}
	m, err := s.PayloadMap()
	if err != nil {
		return false
	}
	meta, _ := m["metadata"].(map[string]interface{})
	hr, _ := meta["highRisk"].(bool)
	return hr
}

// ErrNotFound is returned when no submission matches the requested
// identifier. Lookups where absence is expected check it with errors.Is
// instead of treating it as a failure.
var ErrNotFound = errors.New("intake: submission not found")

// DuplicateError reports a submission colliding with an existing active
// one on the phone uniqueness key. ExistingID lets the caller offer an
// update path instead.
type DuplicateError struct {
	ExistingID string
	Phone      string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("intake: active submission %s already exists for phone %s", e.ExistingID, e.Phone)
}
