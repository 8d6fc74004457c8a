package aws

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/yairfalse/raivaus/types"
)

// fatalCodes end a resource's run immediately. Retrying an auth failure
// burns the pass budget without ever succeeding.
var fatalCodes = map[string]struct{}{
	"AuthFailure":           {},
	"UnauthorizedOperation": {},
	"AccessDenied":          {},
	"AccessDeniedException": {},
	"InvalidClientTokenId":  {},
	"ExpiredToken":          {},
	"ExpiredTokenException": {},
}

// blockedCodes mean another resource is still holding this one. The
// condition clears as the cascade progresses, so the resource stays in
// the working set.
var blockedCodes = map[string]struct{}{
	"DependencyViolation":        {},
	"DeleteConflict":             {},
	"ResourceInUseException":     {},
	"InvalidDBInstanceState":     {},
	"InvalidDBClusterStateFault": {},
	"InvalidClusterState":        {},
	"InvalidClusterStateFault":   {},
	"HostedZoneNotEmpty":         {},
	"Throttling":                 {},
	"ThrottlingException":        {},
	"RequestLimitExceeded":       {},
}

// outcomeFromError maps one raw SDK error to the Outcome taxonomy. This
// is the only place error codes are inspected; everything downstream
// works on Outcome kinds.
func outcomeFromError(err error) types.Outcome {
	if err == nil {
		return types.Deleted()
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return types.Failed(err)
	}

	code := apiErr.ErrorCode()
	switch {
	case isNotFoundCode(code):
		return types.NotFound()
	case isBlockedCode(code):
		return types.Blocked(code)
	case isFatalCode(code):
		return types.Fatal(err)
	default:
		return types.Failed(err)
	}
}

// clearFromError maps one raw SDK error from a reference-clearing call.
// A missing rule or missing resource means the reference is already gone.
func clearFromError(err error) types.ClearResult {
	if err == nil {
		return types.ClearResult{Kind: types.ClearCleared}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if isNotFoundCode(code) {
			return types.ClearResult{Kind: types.ClearAlreadyCleared}
		}
	}
	return types.ClearResult{Kind: types.ClearFailed, Err: err}
}

func isNotFoundCode(code string) bool {
	if strings.Contains(code, "NotFound") {
		return true
	}
	switch code {
	case "NoSuchEntity", "NoSuchHostedZone", "NoSuchChange",
		"AWS.SimpleQueueService.NonExistentQueue", "QueueDoesNotExist":
		return true
	}
	return false
}

func isBlockedCode(code string) bool {
	if _, ok := blockedCodes[code]; ok {
		return true
	}
	return strings.Contains(code, "InUse")
}

func isFatalCode(code string) bool {
	_, ok := fatalCodes[code]
	return ok
}
