package core

import (
	"github.com/cockroachdb/errors"
)

// Error classes. Concrete errors are marked with one of these so callers can
// branch with errors.Is without matching on messages.
var (
	// ErrConfiguration covers unsupported formats, usages, present modes,
	// missing devices or layers. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrSubmission covers queue submit, command recording and fence timeouts.
	ErrSubmission = errors.New("submission error")
	// ErrResourceExhausted covers fixed-size pools running out.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrSwapchainInvalidated is the only recoverable class: the swapchain is
	// out of date or suboptimal and must be rebuilt.
	ErrSwapchainInvalidated = errors.New("swapchain out of date or suboptimal")
)

func NewConfigurationError(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

func NewSubmissionError(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrSubmission)
}

func NewResourceExhaustedError(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrResourceExhausted)
}

// IsFatal reports whether err must stop the frame loop.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrSwapchainInvalidated)
}
