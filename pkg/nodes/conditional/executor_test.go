package conditional

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/crmflow/pkg/conditions"
	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBranchingWorkflow() *models.WorkflowDefinition {
	return testutil.NewWorkflow("wf-branch").
		Trigger("start", models.TriggerLeadScoreChange).
		Condition("hot", "score", "greater", 50).
		Action("notify", "send_notification", nil).
		Action("nurture", "create_task", nil).
		Connect("start", "hot").
		ConnectBranch("hot", "notify", models.BranchTrue).
		ConnectBranch("hot", "nurture", models.BranchFalse).
		Build()
}

func TestExecutor_Branches(t *testing.T) {
	tests := []struct {
		name     string
		data     map[string]any
		wantNext []string
		want     bool
	}{
		{name: "true branch", data: map[string]any{"score": 80}, wantNext: []string{"notify"}, want: true},
		{name: "false branch", data: map[string]any{"score": 30}, wantNext: []string{"nurture"}, want: false},
		{name: "absent field takes false branch", data: map[string]any{}, wantNext: []string{"nurture"}, want: false},
	}

	executor := NewExecutor(conditions.NewEvaluator(slog.Default()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := newBranchingWorkflow()
			node, _ := wf.NodeByID("hot")

			result, err := executor.Execute(context.Background(), node, testutil.NewExecutionContext(wf, tt.data), slog.Default())
			require.NoError(t, err)

			assert.True(t, result.Success)
			assert.True(t, result.ShouldContinue)
			assert.Equal(t, tt.wantNext, result.NextNodes)
			assert.Equal(t, tt.want, result.Data["conditionResult"])
			assert.Equal(t, "score", result.Data["conditionField"])
		})
	}
}

func TestExecutor_MalformedConfig(t *testing.T) {
	wf := newBranchingWorkflow()
	node := testutil.CreateTestNode(
		testutil.WithType(models.NodeTypeCondition),
		testutil.WithConfig(map[string]any{"value": 3}),
	)

	_, err := NewExecutor(conditions.NewEvaluator(slog.Default())).
		Execute(context.Background(), node, testutil.NewExecutionContext(wf, nil), slog.Default())
	assert.ErrorIs(t, err, ErrMissingCondition)
}
