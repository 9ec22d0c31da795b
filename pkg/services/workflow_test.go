package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/crmflow/pkg/mocks"
	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/persistence"
	"github.com/dukex/crmflow/pkg/persistence/file"
	"github.com/dukex/crmflow/pkg/registry"
	"github.com/dukex/crmflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *Workflow {
	t.Helper()

	reg := registry.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg.RegisterDefaultNodes(registry.Collaborators{})

	return NewWorkflow(file.NewPersistence(t.TempDir()), reg)
}

func welcomeWorkflow(id string) *models.WorkflowDefinition {
	return testutil.NewWorkflow(id).
		Trigger("start", models.TriggerContactAdded).
		Action("greet", "send_message", map[string]any{"message": "Hi"}).
		Connect("start", "greet").
		Build()
}

func TestWorkflow_Create(t *testing.T) {
	service := newService(t)

	workflow := welcomeWorkflow("")

	created, err := service.Create(t.Context(), workflow)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, created.UpdatedAt.IsZero())

	fetched, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, fetched.Name)
	assert.Len(t, fetched.Connections, 1)

	_, err = service.Create(t.Context(), welcomeWorkflow(created.ID))
	require.ErrorIs(t, err, ErrWorkflowExists)
	assert.True(t, IsConflictError(err))
}

func TestWorkflow_Validate(t *testing.T) {
	service := newService(t)

	tests := []struct {
		name     string
		workflow *models.WorkflowDefinition
		want     error
	}{
		{name: "nil", workflow: nil, want: ErrWorkflowNil},
		{
			name: "missing name",
			workflow: func() *models.WorkflowDefinition {
				wf := welcomeWorkflow("wf-1")
				wf.Name = ""

				return wf
			}(),
			want: ErrInvalidRequest,
		},
		{
			name: "no trigger",
			workflow: testutil.NewWorkflow("wf-2").
				Action("greet", "send_message", nil).
				Build(),
			want: ErrTriggerNodeRequired,
		},
		{
			name: "dangling connection",
			workflow: testutil.NewWorkflow("wf-3").
				Trigger("start", models.TriggerManual).
				Connect("start", "ghost").
				Build(),
			want: ErrInvalidGraph,
		},
		{
			name: "unknown node type",
			workflow: testutil.NewWorkflow("wf-4").
				Trigger("start", models.TriggerManual).
				Node("odd", models.NodeType("odd"), nil).
				Build(),
			want: ErrInvalidNode,
		},
		{
			name: "condition without operator",
			workflow: testutil.NewWorkflow("wf-5").
				Trigger("start", models.TriggerManual).
				Node("check", models.NodeTypeCondition, map[string]any{"field": "score"}).
				Build(),
			want: ErrInvalidNode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.Validate(tt.workflow)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidationError(err))

			var serviceErr *ServiceError
			assert.True(t, errors.As(err, &serviceErr))
		})
	}

	assert.NoError(t, service.Validate(welcomeWorkflow("wf-ok")))
}

func TestWorkflow_Update(t *testing.T) {
	service := newService(t)

	created, err := service.Create(t.Context(), welcomeWorkflow("wf-1"))
	require.NoError(t, err)

	changed := welcomeWorkflow("")
	changed.Name = "Renamed workflow"

	updated, err := service.Update(t.Context(), "wf-1", changed)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", updated.ID)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))

	_, err = service.Update(t.Context(), "wf-1", welcomeWorkflow("wf-other"))
	require.ErrorIs(t, err, ErrIDMismatch)

	_, err = service.Update(t.Context(), "wf-missing", welcomeWorkflow("wf-missing"))
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflow_Delete(t *testing.T) {
	service := newService(t)

	_, err := service.Create(t.Context(), welcomeWorkflow("wf-1"))
	require.NoError(t, err)

	require.NoError(t, service.Delete(t.Context(), "wf-1"))

	_, err = service.FetchByID(t.Context(), "wf-1")
	require.ErrorIs(t, err, ErrWorkflowNotFound)

	workflows, err := service.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, workflows)
}

func TestWorkflow_HealthCheck(t *testing.T) {
	store := mocks.NewMockPersistence()
	store.On("HealthCheck", mock.Anything).Return(errors.New("connection refused")).Once()
	store.On("HealthCheck", mock.Anything).Return(nil).Once()

	service := NewWorkflow(store, nil)

	message, ok := service.HealthCheck(context.Background())
	assert.False(t, ok)
	assert.Contains(t, message, "connection refused")

	_, ok = service.HealthCheck(context.Background())
	assert.True(t, ok)

	message, ok = NewWorkflow(nil, nil).HealthCheck(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "Persistence layer not initialized", message)

	store.AssertExpectations(t)
}

func TestWorkflow_CreateSaveFailure(t *testing.T) {
	store := mocks.NewMockPersistence()
	store.WorkflowRepo.On("GetByID", mock.Anything, "wf-1").
		Return(nil, persistence.NewWorkflowError("GetByID", "wf-1", persistence.ErrWorkflowNotFound))
	store.WorkflowRepo.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := NewWorkflow(store, nil).Create(t.Context(), welcomeWorkflow("wf-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
