package bundle

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAlreadyBundled is returned when backup creation is requested for a
// document that is already a single bundled file. This is a usage error,
// not an operational one: it is returned instead of being recorded.
var ErrAlreadyBundled = errors.New("bundle: document is already bundled")

// ErrConvertFailed wraps a failed or unverifiable djvmcvt invocation.
// Conversion failure is fatal for the attempt; finalization must never run
// without a verified candidate file.
var ErrConvertFailed = errors.New("bundle: conversion failed")

// Kind classifies a recorded problem.
type Kind string

const (
	// KindPrecondition marks a missing prerequisite (backup or candidate
	// file absent) that halts the operation before any mutation.
	KindPrecondition Kind = "precondition"
	// KindStep marks a failure during a finalization step; the operation
	// halts at that point and the caller decides whether to retry.
	KindStep Kind = "step"
	// KindMissingPart marks a component file listed by the dump but absent
	// on disk at backup time. Not fatal: stale dump output can reference a
	// file removed by an earlier partial run.
	KindMissingPart Kind = "missing_part"
	// KindValidation marks a package-validation finding. Validation
	// continues past it so one pass reports every problem.
	KindValidation Kind = "validation"
)

// Problem is one recorded failure. The message is written for an operator
// reading a log, not for automated retry logic.
type Problem struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

func (p Problem) String() string {
	if p.Path != "" {
		return fmt.Sprintf("[%s] %s (%s)", p.Kind, p.Message, p.Path)
	}
	return fmt.Sprintf("[%s] %s", p.Kind, p.Message)
}

// Summary formats a problem list for operator display.
func Summary(problems []Problem) string {
	if len(problems) == 0 {
		return "No errors found"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d error(s):\n", len(problems))
	for _, p := range problems {
		fmt.Fprintf(&b, "  - %s\n", p)
	}
	return strings.TrimRight(b.String(), "\n")
}
