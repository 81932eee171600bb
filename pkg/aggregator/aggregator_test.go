package aggregator

import (
	"testing"
	"time"

	"github.com/dukex/approvals/pkg/models"
	"github.com/stretchr/testify/assert"
)

func decision(user string, d models.Decision) models.ApprovalDecision {
	return models.ApprovalDecision{
		UserID:    user,
		UserEmail: user + "@example.com",
		Decision:  d,
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name        string
		decisions   []models.ApprovalDecision
		required    []string
		requiresAll bool
		want        Verdict
	}{
		{
			name: "no decisions is pending",
			want: VerdictPending,
		},
		{
			name:      "single approve without requiresAll",
			decisions: []models.ApprovalDecision{decision("a", models.DecisionApprove)},
			required:  []string{"a", "b"},
			want:      VerdictApproved,
		},
		{
			name:      "approve from outside the assignees counts without requiresAll",
			decisions: []models.ApprovalDecision{decision("z", models.DecisionApprove)},
			required:  []string{"a"},
			want:      VerdictApproved,
		},
		{
			name:        "requiresAll waits for every assignee",
			decisions:   []models.ApprovalDecision{decision("a", models.DecisionApprove)},
			required:    []string{"a", "b"},
			requiresAll: true,
			want:        VerdictPending,
		},
		{
			name: "requiresAll completes when all approved",
			decisions: []models.ApprovalDecision{
				decision("a", models.DecisionApprove),
				decision("b", models.DecisionApprove),
			},
			required:    []string{"a", "b"},
			requiresAll: true,
			want:        VerdictApproved,
		},
		{
			name:        "requiresAll matches assignees by e-mail",
			decisions:   []models.ApprovalDecision{decision("a", models.DecisionApprove)},
			required:    []string{"a@example.com"},
			requiresAll: true,
			want:        VerdictApproved,
		},
		{
			name: "duplicate approvals count once",
			decisions: []models.ApprovalDecision{
				decision("a", models.DecisionApprove),
				decision("a", models.DecisionApprove),
			},
			required:    []string{"a", "b"},
			requiresAll: true,
			want:        VerdictPending,
		},
		{
			name: "reject wins over approvals",
			decisions: []models.ApprovalDecision{
				decision("a", models.DecisionApprove),
				decision("b", models.DecisionApprove),
				decision("c", models.DecisionReject),
			},
			required: []string{"a", "b", "c"},
			want:     VerdictRejected,
		},
		{
			name:      "request_changes does not satisfy quorum",
			decisions: []models.ApprovalDecision{decision("a", models.DecisionRequestChanges)},
			required:  []string{"a"},
			want:      VerdictPending,
		},
		{
			name:        "empty required set with requiresAll needs one approve",
			decisions:   []models.ApprovalDecision{decision("a", models.DecisionApprove)},
			requiresAll: true,
			want:        VerdictApproved,
		},
		{
			name:        "empty required set with requiresAll and no approve",
			requiresAll: true,
			want:        VerdictPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.decisions, tt.required, tt.requiresAll))
		})
	}
}

func permutations(decisions []models.ApprovalDecision) [][]models.ApprovalDecision {
	if len(decisions) <= 1 {
		return [][]models.ApprovalDecision{append([]models.ApprovalDecision(nil), decisions...)}
	}

	var result [][]models.ApprovalDecision

	for i := range decisions {
		rest := make([]models.ApprovalDecision, 0, len(decisions)-1)
		rest = append(rest, decisions[:i]...)
		rest = append(rest, decisions[i+1:]...)

		for _, perm := range permutations(rest) {
			result = append(result, append([]models.ApprovalDecision{decisions[i]}, perm...))
		}
	}

	return result
}

func TestEvaluate_OrderIndependent(t *testing.T) {
	sets := [][]models.ApprovalDecision{
		{
			decision("a", models.DecisionApprove),
			decision("b", models.DecisionApprove),
			decision("c", models.DecisionReject),
			decision("a", models.DecisionRequestChanges),
		},
		{
			decision("a", models.DecisionApprove),
			decision("a", models.DecisionApprove),
			decision("b", models.DecisionRequestChanges),
			decision("c", models.DecisionApprove),
		},
		{
			decision("a", models.DecisionApprove),
			decision("b", models.DecisionApprove),
			decision("c", models.DecisionApprove),
		},
	}

	required := []string{"a", "b", "c"}

	for _, set := range sets {
		for _, requiresAll := range []bool{true, false} {
			want := Evaluate(set, required, requiresAll)

			for _, perm := range permutations(set) {
				assert.Equal(t, want, Evaluate(perm, required, requiresAll))
			}
		}
	}

	mixed := []models.ApprovalDecision{
		{UserID: "u1", Decision: models.DecisionApprove},
		{UserID: "u1", UserEmail: "alice@example.com", Decision: models.DecisionApprove},
	}

	for _, perm := range permutations(mixed) {
		assert.Equal(t, VerdictApproved, Evaluate(perm, []string{"alice@example.com"}, true))
	}
}

func TestEvaluate_RejectionIsAbsorbing(t *testing.T) {
	decisions := []models.ApprovalDecision{decision("a", models.DecisionReject)}

	for _, user := range []string{"a", "b", "c", "d"} {
		decisions = append(decisions, decision(user, models.DecisionApprove))
		assert.Equal(t, VerdictRejected, Evaluate(decisions, []string{"a", "b", "c", "d"}, true))
		assert.Equal(t, VerdictRejected, Evaluate(decisions, []string{"a", "b", "c", "d"}, false))
	}
}

func TestDistinctApprovers(t *testing.T) {
	decisions := []models.ApprovalDecision{
		decision("a", models.DecisionApprove),
		decision("a", models.DecisionApprove),
		decision("b", models.DecisionReject),
		decision("c", models.DecisionApprove),
	}

	assert.Equal(t, 2, DistinctApprovers(decisions))
}
