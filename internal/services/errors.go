package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vitrine/internal/catalog"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrHosting        = errors.New("media hosting error")
	ErrRemote         = errors.New("remote publish error")
	ErrAuth           = errors.New("credential error")
	ErrLockContention = errors.New("run already in progress")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotFound       = errors.New("not found")
	ErrTimeout        = errors.New("timeout")
	ErrTransient      = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureReasonFor maps a pipeline error to the failure reason recorded on the
// post attempt. Context cancellation is checked first so a run that blows its
// wall-clock budget is reported as a timeout rather than whatever stage error
// the dying context produced.
func FailureReasonFor(err error) catalog.FailureReason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return catalog.ReasonTimeout
	case errors.Is(err, ErrValidation):
		return catalog.ReasonInvalidItem
	case errors.Is(err, ErrHosting):
		return catalog.ReasonMediaUnavailable
	case errors.Is(err, ErrRemote):
		return catalog.ReasonRemoteRejected
	default:
		return catalog.ReasonUnexpected
	}
}

func buildDetail(component, operation, message string) string {
	var parts []string
	for _, part := range []string{component, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
