// File: internal/oom/errors.go

package oom

import (
	"github.com/pkg/errors"

	"github.com/edespino/oomtoolbox/internal/kconfig"
)

var (
	// ErrEmptyInput is fatal: the input holds no text at all.
	ErrEmptyInput = errors.New("empty input")
	// ErrInvalidInput is fatal: the begin marker "invoked oom-killer:" is missing.
	ErrInvalidInput = errors.New("input does not contain an OOM report")
	// ErrIncompleteInput is fatal: the report has no "Killed process" line.
	ErrIncompleteInput = errors.New("incomplete OOM report")

	// ErrExtraction marks a mandatory pattern without a match.
	ErrExtraction = errors.New("extraction failed")
	// ErrNumericCoercion marks a value that should be an integer but is not.
	ErrNumericCoercion = errors.New("numeric coercion failed")

	ErrVersionNotIdentified = kconfig.ErrVersionNotIdentified
	ErrUnknownRuleset       = kconfig.ErrUnknownRuleset
)

// IsFatal reports whether err stops the analysis pipeline.
func IsFatal(err error) bool {
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrIncompleteInput)
}
