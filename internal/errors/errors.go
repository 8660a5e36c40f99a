// Package errors provides error handling for couch-xray.
//
// This package re-exports github.com/cockroachdb/errors so every package wraps,
// annotates and inspects errors the same way:
//
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "list databases")
//	}
//
//	return errors.WithHint(err, "check the cluster URL and credentials")
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New         = crdb.New
	Newf        = crdb.Newf
	Wrap        = crdb.Wrap
	Wrapf       = crdb.Wrapf
	WithStack   = crdb.WithStack
	WithMessage = crdb.WithMessage
)

// User-facing messages and details
var (
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
	GetAllHints  = crdb.GetAllHints
	FlattenHints = crdb.FlattenHints
)

// Error inspection
var (
	Is        = crdb.Is
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Assertions
var (
	AssertionFailedf    = crdb.AssertionFailedf
	HasAssertionFailure = crdb.HasAssertionFailure
)

// Sentinel errors shared across the pipeline. Wrap them to add context while
// keeping errors.Is checks working.
var (
	// ErrNoHosts indicates no cluster URL was configured.
	ErrNoHosts = New("no cluster URL configured")

	// ErrInvalidConfig indicates a configuration value is out of range.
	ErrInvalidConfig = New("invalid configuration")
)
