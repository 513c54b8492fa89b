package intake

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dokterdibya/clinic/internal/platform/phi"
)

var testLogger = zerolog.New(os.Stderr).Level(zerolog.Disabled)

func TestStatusTransitionsForwardOnly(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusDraft, StatusSubmitted},
		{StatusSubmitted, StatusReviewed},
		{StatusSubmitted, StatusImported},
		{StatusReviewed, StatusImported},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusSubmitted, StatusSubmitted},
		{StatusReviewed, StatusSubmitted},
		{StatusImported, StatusDraft},
		{StatusSubmitted, Status("void")},
	}
	for _, tc := range denied {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be denied", tc.from, tc.to)
		}
	}
}

func TestValidateExactlyOneForm(t *testing.T) {
	plain := &Submission{SubmissionID: "a", Payload: json.RawMessage(`{}`)}
	if err := plain.Validate(); err != nil {
		t.Errorf("plaintext-only should validate: %v", err)
	}

	encrypted := &Submission{SubmissionID: "b", Encrypted: &phi.Wrapper{Data: "x"}}
	if err := encrypted.Validate(); err != nil {
		t.Errorf("encrypted-only should validate: %v", err)
	}

	neither := &Submission{SubmissionID: "c"}
	if err := neither.Validate(); err == nil {
		t.Error("neither form should be rejected")
	}

	both := &Submission{SubmissionID: "d", Payload: json.RawMessage(`{}`), Encrypted: &phi.Wrapper{Data: "x"}}
	if err := both.Validate(); err == nil {
		t.Error("both forms should be rejected")
	}
}

func TestPayloadAccessors(t *testing.T) {
	sub := &Submission{
		SubmissionID: "s1",
		Payload:      json.RawMessage(`{"full_name":"Siti Rahma","phone":" 628111222333 "}`),
	}
	if got := sub.FullName(); got != "Siti Rahma" {
		t.Errorf("FullName = %q", got)
	}
	if got := sub.Phone(); got != "628111222333" {
		t.Errorf("Phone = %q, want trimmed", got)
	}

	empty := &Submission{SubmissionID: "s2"}
	if empty.Phone() != "" || empty.FullName() != "" {
		t.Error("accessors on empty payload should return empty strings")
	}
}

func TestIsHighRiskFallsBackToMetadata(t *testing.T) {
	flagged := &Submission{HighRisk: true}
	if !flagged.IsHighRisk() {
		t.Error("top-level flag should win")
	}

	legacy := &Submission{
		Payload: json.RawMessage(`{"metadata":{"highRisk":true}}`),
	}
	if !legacy.IsHighRisk() {
		t.Error("metadata flag should be honored for legacy records")
	}

	normal := &Submission{Payload: json.RawMessage(`{"metadata":{}}`)}
	if normal.IsHighRisk() {
		t.Error("unflagged record reported high risk")
	}
}
