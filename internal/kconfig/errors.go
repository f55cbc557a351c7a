// File: internal/kconfig/errors.go

package kconfig

import "github.com/pkg/errors"

var (
	// ErrVersionNotIdentified means the OOM text carries no usable kernel version.
	ErrVersionNotIdentified = errors.New("kernel version not identified")

	// ErrUnknownRuleset means no ruleset matched and the base ruleset is used instead.
	ErrUnknownRuleset = errors.New("no matching kernel ruleset")

	// ErrInvalidCatalog is returned for catalog documents that cannot be resolved.
	ErrInvalidCatalog = errors.New("invalid ruleset catalog")

	// ErrUnknownFlag is returned when a GFP flag name is not part of a ruleset.
	ErrUnknownFlag = errors.New("unknown GFP flag")
)
