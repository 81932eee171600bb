// Package aggregator decides whether the decisions recorded on a step satisfy
// its quorum rule.
package aggregator

import "github.com/dukex/approvals/pkg/models"

// Verdict is the outcome of evaluating a step's decisions.
type Verdict string

const (
	VerdictPending  Verdict = "pending"
	VerdictApproved Verdict = "approved"
	VerdictRejected Verdict = "rejected"
)

// Evaluate returns the verdict for decisions under the quorum rule.
//
// A single reject rejects the step. With requiresAll every member of required
// (matched by user ID or e-mail) needs at least one approve; an empty required
// set then needs one approve from anyone. Without requiresAll one approve from
// anyone is enough. request_changes never counts either way. The result does
// not depend on the order of decisions.
func Evaluate(decisions []models.ApprovalDecision, required []string, requiresAll bool) Verdict {
	// Every approve stays in approvals: the same user may have voted once
	// by ID and once by ID and e-mail, and either record can match required.
	var approvals []models.ApprovalDecision

	for _, decision := range decisions {
		switch decision.Decision {
		case models.DecisionReject:
			return VerdictRejected
		case models.DecisionApprove:
			approvals = append(approvals, decision)
		case models.DecisionRequestChanges:
		}
	}

	if len(approvals) == 0 {
		return VerdictPending
	}

	if !requiresAll || len(required) == 0 {
		return VerdictApproved
	}

	for _, user := range required {
		if !approvedBy(approvals, user) {
			return VerdictPending
		}
	}

	return VerdictApproved
}

// DistinctApprovers counts the distinct users who approved.
func DistinctApprovers(decisions []models.ApprovalDecision) int {
	approvers := make(map[string]struct{})

	for _, decision := range decisions {
		if decision.Decision == models.DecisionApprove {
			approvers[decision.Voter()] = struct{}{}
		}
	}

	return len(approvers)
}

func approvedBy(approvals []models.ApprovalDecision, user string) bool {
	for _, decision := range approvals {
		if decision.MadeBy(user) {
			return true
		}
	}

	return false
}
