package trampoline

import (
	"errors"
	"fmt"
	"strings"
)

// ExitFailure is the trampoline's exit code when it cannot locate,
// configure or spawn the child
const ExitFailure = 1

var (
	// ErrPayloadNotFound is returned when no candidate folder holds the runtime executable
	ErrPayloadNotFound = errors.New("runtime executable not found")
	// ErrRuntimeHomeNotFound is returned when the located folder has no cpython-* directory
	ErrRuntimeHomeNotFound = errors.New("interpreter home not found")
	// ErrAmbiguousRuntimeHome is returned when several cpython-* directories exist
	ErrAmbiguousRuntimeHome = errors.New("multiple interpreter homes found")
	// ErrTranslocated is returned when the bundle runs from a read-only translocated path
	ErrTranslocated = errors.New("application is running from a translocated read-only location")
)

// LocateError lists every path searched for the runtime executable
type LocateError struct {
	Payload  string
	Searched []string
}

func (e *LocateError) Error() string {
	return fmt.Sprintf("%s %q not found, searched:\n  %s", ErrPayloadNotFound, e.Payload, strings.Join(e.Searched, "\n  "))
}

func (e *LocateError) Unwrap() error {
	return ErrPayloadNotFound
}

// TranslocationError explains how to get out of macOS App Translocation
type TranslocationError struct {
	Path string
	Err  error
}

func (e *TranslocationError) Error() string {
	return fmt.Sprintf("%s (%s): %v\n"+
		"Move the application to /Applications (or any other folder) with Finder and launch it again. "+
		"Alternatively remove the quarantine attribute: xattr -dr com.apple.quarantine <app bundle>",
		ErrTranslocated, e.Path, e.Err)
}

func (e *TranslocationError) Unwrap() error {
	return ErrTranslocated
}

// ExitError pairs a failure with the exit code the trampoline reports
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func fatal(err error) *ExitError {
	return &ExitError{Code: ExitFailure, Err: err}
}
