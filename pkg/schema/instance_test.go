package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkflowInstance_EnterStep(t *testing.T) {
	now := time.Now()
	inst := WorkflowInstance{
		CurrentStep:     "plan",
		StepActionCount: 7,
	}

	inst.EnterStep("implement", now)

	assert.Equal(t, "implement", inst.CurrentStep)
	assert.Equal(t, now, inst.StepEnteredAt)
	assert.Zero(t, inst.StepActionCount, "per-step counters reset on entry")
	assert.Equal(t, now, inst.UpdatedAt)
}

func TestWorkflowInstance_TimeInStep(t *testing.T) {
	now := time.Now()
	inst := WorkflowInstance{StepEnteredAt: now.Add(-time.Minute)}
	assert.Equal(t, time.Minute, inst.TimeInStep(now))

	unset := WorkflowInstance{}
	assert.Zero(t, unset.TimeInStep(now), "zero entry time never counts as stuck")
}

func TestWorkflowInstance_ClearApproval(t *testing.T) {
	inst := WorkflowInstance{ApprovalPending: true, ApprovalConditionID: "done-gate"}
	inst.ClearApproval()
	assert.False(t, inst.ApprovalPending)
	assert.Empty(t, inst.ApprovalConditionID)
}
