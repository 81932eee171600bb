package models

import "time"

// Decision is the verdict a single approver records on a step.
type Decision string

const (
	DecisionApprove        Decision = "approve"
	DecisionReject         Decision = "reject"
	DecisionRequestChanges Decision = "request_changes" // recorded only, never affects quorum
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject || d == DecisionRequestChanges
}

// ApprovalDecision is an immutable, timestamped decision record.
type ApprovalDecision struct {
	RequestID string    `json:"request_id,omitempty"`
	UserID    string    `json:"user_id"`
	UserEmail string    `json:"user_email"`
	Decision  Decision  `json:"decision"`
	Comments  string    `json:"comments,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MadeBy reports whether the decision was made by the given user identifier,
// matched against either the user ID or the e-mail.
func (d ApprovalDecision) MadeBy(user string) bool {
	if user == "" {
		return false
	}

	return d.UserID == user || d.UserEmail == user
}

// Voter returns the identity used to count distinct approvers.
func (d ApprovalDecision) Voter() string {
	if d.UserID != "" {
		return d.UserID
	}

	return d.UserEmail
}
