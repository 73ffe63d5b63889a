package resolver

import (
	"errors"
	"fmt"
)

const (
	StageOne = "stage1"
	StageTwo = "stage2"
)

var (
	errMissingViewURL = errors.New("vieworderurl missing from response")
	errNoOrderID      = errors.New("orderId not found in vieworderurl")
)

// ResolutionError reports a failed stage of a resolution.
type ResolutionError struct {
	Stage string
	Cause error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Cause)
}

func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// StatusError reports a non-2xx backend response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// StageOf returns the failed stage of err, or "" when err is not a ResolutionError.
func StageOf(err error) string {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Stage
	}
	return ""
}
