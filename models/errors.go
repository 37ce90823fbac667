package models

import (
	"errors"
	"fmt"
)

// Domain error taxonomy. Service functions return these as values; the HTTP
// layer maps them to statuses (conflict, unprocessable, not found, internal).
var (
	ErrReportNotFound  = errors.New("report not found")
	ErrEntryNotFound   = errors.New("entry not found")
	ErrMissionNotFound = errors.New("mission not found")

	// lifecycle violations
	ErrReportLocked    = errors.New("report is locked")
	ErrReportSubmitted = errors.New("report is submitted")

	ErrDuplicateEntry        = errors.New("an active entry already exists for this report, mission and date")
	ErrDuplicateReportPeriod = errors.New("an active report already exists for this period")

	// administrative unlink only; the entry lifecycle path treats a missing
	// link as already-unlinked
	ErrMissionLinkNotFound = errors.New("report is not linked to this mission")
)

// InvalidTransitionError reports a lifecycle transition that is not allowed
// from the report's current state.
type InvalidTransitionError struct {
	From ReportStatus
	To   ReportStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid report transition from %s to %s", e.From, e.To)
}

// LedgerCommitError wraps a failed ledger append during the lock transition.
// It is the one failure that rolls back otherwise-valid work and it is not
// the caller's fault.
type LedgerCommitError struct {
	Err error
}

func (e *LedgerCommitError) Error() string {
	return fmt.Sprintf("ledger commit failed: %v", e.Err)
}

func (e *LedgerCommitError) Unwrap() error {
	return e.Err
}
