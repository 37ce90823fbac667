package models

import "errors"

type ReportStatus string

const (
	ReportStatusDraft     ReportStatus = "Draft"
	ReportStatusSubmitted ReportStatus = "Submitted"
	ReportStatusLocked    ReportStatus = "Locked"
)

func (s ReportStatus) IsValid() bool {
	switch s {
	case ReportStatusDraft, ReportStatusSubmitted, ReportStatusLocked:
		return true
	}
	return false
}

// CanTransitionTo encodes the full lifecycle: Draft -> Submitted -> Locked.
// Locked is terminal.
func (s ReportStatus) CanTransitionTo(next ReportStatus) bool {
	switch s {
	case ReportStatusDraft:
		return next == ReportStatusSubmitted
	case ReportStatusSubmitted:
		return next == ReportStatusLocked
	}
	return false
}

func ParseReportStatus(str string) (ReportStatus, error) {
	s := ReportStatus(str)
	if !s.IsValid() {
		return "", errors.New("invalid report status")
	}
	return s, nil
}

type OutboxAction string

const (
	OutboxActionCreate OutboxAction = "Create"
	OutboxActionUpdate OutboxAction = "Update"
	OutboxActionDelete OutboxAction = "Delete"
	OutboxActionSubmit OutboxAction = "Submit"
	OutboxActionLock   OutboxAction = "Lock"
)

type OutboxReferenceType string

const (
	OutboxReferenceTypeReport OutboxReferenceType = "Report"
	OutboxReferenceTypeEntry  OutboxReferenceType = "Entry"
)

type OutboxPublishStatus string

const (
	OutboxPublishStatusPending   OutboxPublishStatus = "Pending"
	OutboxPublishStatusPublished OutboxPublishStatus = "Published"
	OutboxPublishStatusDead      OutboxPublishStatus = "Dead"
)
