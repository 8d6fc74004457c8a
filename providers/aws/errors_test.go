package aws

import (
	"errors"
	"testing"

	"github.com/aws/smithy-go"

	"github.com/yairfalse/raivaus/types"
)

func TestOutcomeFromError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  types.OutcomeKind
		wantFatal bool
	}{
		{
			name:     "nil error is deleted",
			err:      nil,
			wantKind: types.OutcomeDeleted,
		},
		{
			name:     "instance not found",
			err:      &smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound"},
			wantKind: types.OutcomeNotFound,
		},
		{
			name:     "missing queue",
			err:      &smithy.GenericAPIError{Code: "AWS.SimpleQueueService.NonExistentQueue"},
			wantKind: types.OutcomeNotFound,
		},
		{
			name:     "missing IAM entity",
			err:      &smithy.GenericAPIError{Code: "NoSuchEntity"},
			wantKind: types.OutcomeNotFound,
		},
		{
			name:     "dependency violation is blocked",
			err:      &smithy.GenericAPIError{Code: "DependencyViolation"},
			wantKind: types.OutcomeBlocked,
		},
		{
			name:     "group in use is blocked",
			err:      &smithy.GenericAPIError{Code: "InvalidGroup.InUse"},
			wantKind: types.OutcomeBlocked,
		},
		{
			name:     "non-empty zone is blocked",
			err:      &smithy.GenericAPIError{Code: "HostedZoneNotEmpty"},
			wantKind: types.OutcomeBlocked,
		},
		{
			name:     "throttling is blocked",
			err:      &smithy.GenericAPIError{Code: "Throttling"},
			wantKind: types.OutcomeBlocked,
		},
		{
			name:      "auth failure is fatal",
			err:       &smithy.GenericAPIError{Code: "AuthFailure"},
			wantKind:  types.OutcomeFailed,
			wantFatal: true,
		},
		{
			name:      "unauthorized operation is fatal",
			err:       &smithy.GenericAPIError{Code: "UnauthorizedOperation"},
			wantKind:  types.OutcomeFailed,
			wantFatal: true,
		},
		{
			name:     "unknown API error is retryable failure",
			err:      &smithy.GenericAPIError{Code: "InternalError"},
			wantKind: types.OutcomeFailed,
		},
		{
			name:     "plain error is retryable failure",
			err:      errors.New("connection reset"),
			wantKind: types.OutcomeFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := outcomeFromError(tt.err)
			if got.Kind != tt.wantKind {
				t.Errorf("outcomeFromError() kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Fatal != tt.wantFatal {
				t.Errorf("outcomeFromError() fatal = %v, want %v", got.Fatal, tt.wantFatal)
			}
		})
	}
}

func TestClearFromError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind types.ClearKind
	}{
		{
			name:     "nil error is cleared",
			err:      nil,
			wantKind: types.ClearCleared,
		},
		{
			name:     "missing rule is already cleared",
			err:      &smithy.GenericAPIError{Code: "InvalidPermission.NotFound"},
			wantKind: types.ClearAlreadyCleared,
		},
		{
			name:     "missing entity is already cleared",
			err:      &smithy.GenericAPIError{Code: "NoSuchEntity"},
			wantKind: types.ClearAlreadyCleared,
		},
		{
			name:     "other API error is failed",
			err:      &smithy.GenericAPIError{Code: "InternalError"},
			wantKind: types.ClearFailed,
		},
		{
			name:     "plain error is failed",
			err:      errors.New("connection reset"),
			wantKind: types.ClearFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clearFromError(tt.err)
			if got.Kind != tt.wantKind {
				t.Errorf("clearFromError() = %v, want %v", got.Kind, tt.wantKind)
			}
		})
	}
}
