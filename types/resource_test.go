package types

import (
	"errors"
	"testing"
)

func TestReferenceSet(t *testing.T) {
	s := NewReferenceSet("sg-1", "sg-2")

	if !s.Contains("sg-1") {
		t.Error("expected sg-1 in set")
	}
	s.Remove("sg-1")
	if s.Contains("sg-1") {
		t.Error("sg-1 should be removed")
	}
	s.Add("sg-3")
	if len(s.IDs()) != 2 {
		t.Errorf("expected 2 ids, got %d", len(s.IDs()))
	}
}

func TestResourceRecordAttributes(t *testing.T) {
	rec := ResourceRecord{
		Type: "security_group",
		ID:   "sg-abc",
		Attributes: map[string]any{
			"vpc_id":   "vpc-1",
			"attached": true,
			"tags":     map[string]string{"Team": "platform"},
		},
	}

	if rec.AttrString("vpc_id") != "vpc-1" {
		t.Errorf("unexpected vpc_id %q", rec.AttrString("vpc_id"))
	}
	if rec.AttrString("missing") != "" {
		t.Error("missing attribute should be empty")
	}
	if !rec.IsAttached() {
		t.Error("expected attached")
	}
	if rec.Tags()["Team"] != "platform" {
		t.Error("tags not returned")
	}
}

func TestOutcomeRetryable(t *testing.T) {
	tests := []struct {
		name      string
		outcome   Outcome
		succeeded bool
		retryable bool
	}{
		{"deleted", Deleted(), true, false},
		{"not found is success", NotFound(), true, false},
		{"blocked retries", Blocked("dependency violation"), false, true},
		{"failed retries", Failed(errors.New("throttled")), false, true},
		{"fatal does not retry", Fatal(errors.New("auth failure")), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.Succeeded(); got != tt.succeeded {
				t.Errorf("Succeeded() = %v, want %v", got, tt.succeeded)
			}
			if got := tt.outcome.Retryable(); got != tt.retryable {
				t.Errorf("Retryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestVerdictHelpers(t *testing.T) {
	p := Protected("name matches eks pattern")
	if p.Decision != DecisionProtected || p.Reason == "" {
		t.Errorf("unexpected verdict %+v", p)
	}

	u := InUse("backing running instance", "i-123")
	if u.Decision != DecisionInUse || len(u.Blockers) != 1 {
		t.Errorf("unexpected verdict %+v", u)
	}

	if Eligible().Decision != DecisionEligible {
		t.Error("eligible verdict wrong")
	}
}
