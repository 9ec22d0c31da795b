package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/crmflow/pkg/mocks"
	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/persistence/memory"
	"github.com/dukex/crmflow/pkg/protocol"
	"github.com/dukex/crmflow/pkg/registry"
	"github.com/dukex/crmflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptedDispatcher struct {
	mu      sync.Mutex
	calls   []string
	results map[string]func(*models.ExecutionContext) *models.NodeExecutionResult
}

func (d *scriptedDispatcher) Dispatch(_ context.Context, node *models.WorkflowNode, execCtx *models.ExecutionContext, _ *slog.Logger) (*models.NodeExecutionResult, error) {
	d.mu.Lock()
	d.calls = append(d.calls, node.ID)
	fn := d.results[node.ID]
	d.mu.Unlock()

	if fn != nil {
		return fn(execCtx), nil
	}

	return models.Succeeded(map[string]any{node.ID: true}, execCtx.Successors(node.ID, "")), nil
}

func (d *scriptedDispatcher) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.calls...)
}

type recordingPublisher struct {
	mu          sync.Mutex
	executions  []*models.WorkflowExecution
	nodeUpdates []string
}

func (p *recordingPublisher) BroadcastExecutionUpdate(execution *models.WorkflowExecution) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.executions = append(p.executions, execution)
}

func (p *recordingPublisher) BroadcastNodeUpdate(_, nodeID string, _ *models.NodeExecutionResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nodeUpdates = append(p.nodeUpdates, nodeID)
}

func newRegistry(c registry.Collaborators) *registry.Registry {
	r := registry.NewRegistry(discardLogger())
	r.RegisterDefaultNodes(c)

	return r
}

func TestEngine_WelcomeScenario(t *testing.T) {
	messages := new(mocks.MockMessageGateway)
	messages.On("SendMessage", mock.Anything, "+5511999990000", "Welcome aboard").
		Return(protocol.DeliveryResult{MessageID: "msg-1", Status: "sent"}, nil)

	publisher := &recordingPublisher{}
	repo := memory.NewPersistence().Executions()
	engine := NewEngine(discardLogger(), newRegistry(registry.Collaborators{Messages: messages}),
		WithProgressPublisher(publisher),
		WithExecutionRepository(repo),
	)

	definition := testutil.NewWorkflow("welcome").
		Trigger("start", models.TriggerContactAdded).
		Action("greet", "send_message", map[string]any{"message": "Welcome aboard"}).
		Delay("wait", 10).
		Action("score", "update_lead_score", map[string]any{"scoreChange": 10}).
		Connect("start", "greet").
		Connect("greet", "wait").
		Connect("wait", "score").
		Build()

	execution, err := engine.Execute(t.Context(), definition, map[string]any{
		"contactId": "c-1",
		"phone":     "+5511999990000",
		"leadScore": 50,
	}, string(models.TriggerContactAdded))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, 60, execution.Output["newScore"])
	assert.Equal(t, true, execution.Output["messageSent"])
	require.Len(t, execution.Logs, 4)
	assert.Equal(t, []string{"start", "greet", "wait", "score"}, []string{
		execution.Logs[0].NodeID, execution.Logs[1].NodeID, execution.Logs[2].NodeID, execution.Logs[3].NodeID,
	})
	require.NotNil(t, execution.EndTime)
	assert.GreaterOrEqual(t, execution.Duration, 10*time.Millisecond)
	assert.Equal(t, "contact_added", execution.TriggeredBy)

	messages.AssertExpectations(t)

	assert.Equal(t, []string{"start", "greet", "wait", "score"}, publisher.nodeUpdates)
	last := publisher.executions[len(publisher.executions)-1]
	assert.Equal(t, models.ExecutionStatusCompleted, last.Status)

	stored, err := repo.GetByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Len(t, stored.Logs, 4)

	assert.Equal(t, 0, engine.store.Len(), "context must be retired")
	assert.Equal(t, 0, engine.Running())
}

func TestEngine_CyclesTerminate(t *testing.T) {
	dispatcher := &scriptedDispatcher{}
	engine := NewEngine(discardLogger(), dispatcher)

	definition := testutil.NewWorkflow("loop").
		Trigger("start", models.TriggerManual).
		Action("a", "echo", nil).
		Action("b", "echo", nil).
		Connect("start", "a").
		Connect("a", "b").
		Connect("b", "a").
		Connect("b", "start").
		Build()

	execution, err := engine.Execute(t.Context(), definition, nil, "manual")
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, []string{"start", "a", "b"}, dispatcher.Calls())
	assert.Len(t, execution.Logs, 3)
}

func TestEngine_MultipleTriggersShareVisitedSet(t *testing.T) {
	dispatcher := &scriptedDispatcher{}
	engine := NewEngine(discardLogger(), dispatcher)

	definition := testutil.NewWorkflow("two-entries").
		Trigger("added", models.TriggerContactAdded).
		Trigger("message", models.TriggerMessageReceived).
		Action("shared", "echo", nil).
		Connect("added", "shared").
		Connect("message", "shared").
		Build()

	_, err := engine.Execute(t.Context(), definition, nil, "manual")
	require.NoError(t, err)

	assert.Equal(t, []string{"added", "shared", "message"}, dispatcher.Calls())
}

func TestEngine_NoTriggerNode(t *testing.T) {
	dispatcher := &scriptedDispatcher{}
	engine := NewEngine(discardLogger(), dispatcher)

	definition := testutil.NewWorkflow("headless").
		Action("a", "echo", nil).
		Build()

	execution, err := engine.Execute(t.Context(), definition, nil, "manual")
	require.ErrorIs(t, err, ErrNoTriggerNode)

	assert.Empty(t, dispatcher.Calls())
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, ErrNoTriggerNode.Error(), execution.Error)
	assert.Empty(t, execution.Logs)
}

func TestEngine_FailureHaltsExecution(t *testing.T) {
	dispatcher := &scriptedDispatcher{results: map[string]func(*models.ExecutionContext) *models.NodeExecutionResult{
		"a": func(*models.ExecutionContext) *models.NodeExecutionResult { return models.Failed("no recipient") },
	}}
	engine := NewEngine(discardLogger(), dispatcher)

	definition := testutil.NewWorkflow("failing").
		Trigger("start", models.TriggerManual).
		Action("a", "send_message", nil).
		Action("b", "echo", nil).
		Action("c", "echo", nil).
		Connect("start", "a").
		Connect("start", "b").
		Connect("a", "c").
		Connect("b", "c").
		Build()

	execution, err := engine.Execute(t.Context(), definition, nil, "manual")
	require.ErrorIs(t, err, ErrNodeFailed)

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "a", execErr.NodeID)
	assert.Equal(t, execution.ID, execErr.ExecutionID)

	assert.Equal(t, []string{"start", "a"}, dispatcher.Calls())
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, "no recipient", execution.Error)
	assert.Equal(t, "a", execution.FailedNodeID)
	require.Len(t, execution.Logs, 2)
	assert.Equal(t, models.LogLevelError, execution.Logs[1].Level)
}

func TestEngine_SoftStopEndsOnlyItsBranch(t *testing.T) {
	dispatcher := &scriptedDispatcher{results: map[string]func(*models.ExecutionContext) *models.NodeExecutionResult{
		"approval": func(*models.ExecutionContext) *models.NodeExecutionResult {
			return models.SoftStop(map[string]any{"approvalPending": true})
		},
	}}
	engine := NewEngine(discardLogger(), dispatcher)

	definition := testutil.NewWorkflow("soft-stop").
		Trigger("start", models.TriggerManual).
		Action("approval", "request_approval", nil).
		Action("after-approval", "echo", nil).
		Action("notify", "echo", nil).
		Connect("start", "approval").
		Connect("start", "notify").
		Connect("approval", "after-approval").
		Build()

	execution, err := engine.Execute(t.Context(), definition, nil, "manual")
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, []string{"start", "approval", "notify"}, dispatcher.Calls())
	assert.Equal(t, true, execution.Output["approvalPending"])
}

func TestEngine_ConditionBranches(t *testing.T) {
	engine := NewEngine(discardLogger(), newRegistry(registry.Collaborators{}))

	definition := testutil.NewWorkflow("qualify").
		Trigger("start", models.TriggerLeadScoreChange).
		Condition("hot", "lead.score", "greater", 50).
		Action("bump", "update_lead_score", map[string]any{"scoreChange": 5, "currentScore": 80}).
		Action("nurture", "update_lead_score", map[string]any{"scoreChange": -5, "currentScore": 20}).
		Connect("start", "hot").
		ConnectBranch("hot", "bump", models.BranchTrue).
		ConnectBranch("hot", "nurture", models.BranchFalse).
		Build()

	tests := []struct {
		name      string
		score     int
		wantScore int
		wantCond  bool
	}{
		{name: "hot lead", score: 80, wantScore: 85, wantCond: true},
		{name: "cold lead", score: 20, wantScore: 15, wantCond: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			execution, err := engine.Execute(t.Context(), definition, map[string]any{
				"lead": map[string]any{"score": tt.score},
			}, "lead_score_change")
			require.NoError(t, err)

			assert.Equal(t, tt.wantCond, execution.Output["conditionResult"])
			assert.Equal(t, tt.wantScore, execution.Output["newScore"])
			assert.Len(t, execution.Logs, 3)
		})
	}
}

func TestEngine_UnknownNodeTypeIsFatal(t *testing.T) {
	engine := NewEngine(discardLogger(), newRegistry(registry.Collaborators{}))

	definition := testutil.NewWorkflow("unknown").
		Trigger("start", models.TriggerManual).
		Node("mystery", models.NodeType("webhook_call"), nil).
		Connect("start", "mystery").
		Build()

	execution, err := engine.Execute(t.Context(), definition, nil, "manual")
	require.ErrorIs(t, err, registry.ErrNoExecutorFound)

	assert.Equal(t, "mystery", execution.FailedNodeID)
	assert.Len(t, execution.Logs, 2)
}

func TestEngine_ConcurrentExecutionsAreIsolated(t *testing.T) {
	engine := NewEngine(discardLogger(), newRegistry(registry.Collaborators{}))

	definition := testutil.NewWorkflow("score").
		Trigger("start", models.TriggerManual).
		Delay("wait", 5).
		Action("score", "update_lead_score", map[string]any{"scoreChange": 10}).
		Connect("start", "wait").
		Connect("wait", "score").
		Build()

	const runs = 20

	var wg sync.WaitGroup

	results := make([]*models.WorkflowExecution, runs)

	for i := range runs {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			execution, err := engine.Execute(context.Background(), definition, map[string]any{"leadScore": i * 100}, "manual")
			assert.NoError(t, err)

			results[i] = execution
		}(i)
	}

	wg.Wait()

	ids := make(map[string]bool, runs)

	for i, execution := range results {
		require.NotNil(t, execution, "run %d", i)
		assert.Equal(t, i*100+10, execution.Output["newScore"], "run %d", i)
		assert.False(t, ids[execution.ID], "execution ids must be unique")
		ids[execution.ID] = true
	}

	assert.Equal(t, 0, engine.store.Len())
}

func TestEngine_StartAndStop(t *testing.T) {
	engine := NewEngine(discardLogger(), newRegistry(registry.Collaborators{}))

	definition := testutil.NewWorkflow("slow").
		Trigger("start", models.TriggerManual).
		Delay("wait", 60_000).
		Action("after", "update_lead_score", map[string]any{"scoreChange": 1}).
		Connect("start", "wait").
		Connect("wait", "after").
		Build()

	initial, err := engine.Start(t.Context(), definition, nil, "manual")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, initial.Status)

	running, err := engine.Execution(t.Context(), initial.ID)
	require.NoError(t, err)
	assert.Equal(t, initial.ID, running.ID)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	stopped, err := engine.Stop(ctx, initial.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, stopped.Status)
	assert.Equal(t, "StoppedByUser", stopped.Error)
	assert.NotContains(t, stopped.Output, "newScore")
	assert.Equal(t, 0, engine.store.Len())

	after, err := engine.Execution(t.Context(), initial.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, after.Status)

	_, err = engine.Stop(ctx, initial.ID)
	require.ErrorIs(t, err, ErrNoExecutionRunning)

	_, err = engine.Stop(ctx, "exec-unknown")
	require.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestEngine_DeadlineFailsExecution(t *testing.T) {
	engine := NewEngine(discardLogger(), newRegistry(registry.Collaborators{}))

	definition := testutil.NewWorkflow("deadline").
		Trigger("start", models.TriggerManual).
		Delay("wait", 60_000).
		Connect("start", "wait").
		Build()

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	execution, err := engine.Execute(ctx, definition, nil, "manual")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, "wait", execution.FailedNodeID)
}

func TestEngine_ExecutionIDsAreNeverReused(t *testing.T) {
	engine := NewEngine(discardLogger(), &scriptedDispatcher{},
		WithIDGenerator(func() string { return "exec-fixed" }),
	)

	definition := testutil.NewWorkflow("fixed").
		Trigger("start", models.TriggerManual).
		Build()

	_, err := engine.Execute(t.Context(), definition, nil, "manual")
	require.NoError(t, err)

	execution, err := engine.Execute(t.Context(), definition, nil, "manual")
	require.ErrorIs(t, err, ErrExecutionIDReused)
	assert.Nil(t, execution)
}

func TestEngine_ExecutionNotFound(t *testing.T) {
	engine := NewEngine(discardLogger(), &scriptedDispatcher{},
		WithExecutionRepository(memory.NewPersistence().Executions()),
	)

	_, err := engine.Execution(t.Context(), "exec-missing")
	require.ErrorIs(t, err, ErrExecutionNotFound)

	list, err := engine.ExecutionsByWorkflow(t.Context(), "wf-none")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func ExampleEngine_Execute() {
	engine := NewEngine(discardLogger(), newRegistry(registry.Collaborators{}))

	definition := testutil.NewWorkflow("example").
		Trigger("start", models.TriggerManual).
		Action("score", "update_lead_score", map[string]any{"scoreChange": 10}).
		Connect("start", "score").
		Build()

	execution, _ := engine.Execute(context.Background(), definition, map[string]any{"leadScore": 50}, "manual")

	fmt.Println(execution.Status, execution.Output["newScore"])
	// Output: completed 60
}
