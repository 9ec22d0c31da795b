package ai

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/crmflow/pkg/mocks"
	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newAIWorkflow(config map[string]any) *models.WorkflowDefinition {
	return testutil.NewWorkflow("wf-ai").
		Trigger("start", models.TriggerMessageReceived).
		Node("qualify", models.NodeTypeAI, config).
		Action("reply", "send_message", nil).
		Connect("start", "qualify").
		Connect("qualify", "reply").
		Build()
}

func TestExecutor_MergesProviderResult(t *testing.T) {
	provider := &mocks.MockAIProvider{}
	provider.On("RunTask", mock.Anything, "lead_qualification", mock.MatchedBy(func(input map[string]any) bool {
		return input["prompt"] == "Qualify Ana" && input["contactId"] == "c-1"
	})).Return(map[string]any{"qualified": true, "confidence": 0.9}, nil)

	wf := newAIWorkflow(map[string]any{"task": "lead_qualification", "prompt": "Qualify {{ .name }}"})
	node, _ := wf.NodeByID("qualify")

	execCtx := testutil.NewExecutionContext(wf, map[string]any{"contactId": "c-1", "name": "Ana"})

	result, err := NewExecutor(provider).Execute(context.Background(), node, execCtx, slog.Default())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"reply"}, result.NextNodes)
	assert.Equal(t, true, result.Data["qualified"])
	assert.Equal(t, "lead_qualification", result.Data["aiTask"])
	assert.NotContains(t, execCtx.Data, "prompt", "the data bag must not be mutated by the executor")
	provider.AssertExpectations(t)
}

func TestExecutor_OutputKeyAndExplicitInput(t *testing.T) {
	provider := &mocks.MockAIProvider{}
	provider.On("RunTask", mock.Anything, "sentiment", map[string]any{"text": "great product"}).
		Return(map[string]any{"label": "positive"}, nil)

	wf := newAIWorkflow(map[string]any{
		"task":      "sentiment",
		"input":     map[string]any{"text": "{{ .message }}"},
		"outputKey": "sentiment",
	})
	node, _ := wf.NodeByID("qualify")

	result, err := NewExecutor(provider).Execute(context.Background(), node,
		testutil.NewExecutionContext(wf, map[string]any{"message": "great product"}), slog.Default())
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"label": "positive"}, result.Data["sentiment"])
	provider.AssertExpectations(t)
}

func TestExecutor_ProviderFailure(t *testing.T) {
	provider := &mocks.MockAIProvider{}
	provider.On("RunTask", mock.Anything, "summarize", mock.Anything).Return(nil, errors.New("model overloaded"))

	wf := newAIWorkflow(map[string]any{"task": "summarize"})
	node, _ := wf.NodeByID("qualify")

	result, err := NewExecutor(provider).Execute(context.Background(), node, testutil.NewExecutionContext(wf, nil), slog.Default())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.False(t, result.ShouldContinue)
	assert.Equal(t, "model overloaded", result.Error)
}

func TestExecutor_NoProvider(t *testing.T) {
	wf := newAIWorkflow(map[string]any{"task": "summarize"})
	node, _ := wf.NodeByID("qualify")

	result, err := NewExecutor(nil).Execute(context.Background(), node, testutil.NewExecutionContext(wf, nil), slog.Default())
	require.NoError(t, err)
	assert.Equal(t, ErrNoProvider.Error(), result.Error)
}
