package createtask

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/crmflow/pkg/mocks"
	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateTaskAction_Execute(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	due := now.Add(24 * time.Hour)

	store := &mocks.MockContactStore{}
	store.On("CreateTask", mock.Anything, protocol.Task{
		ContactID:  "c-1",
		Title:      "Call back",
		AssigneeID: "u-9",
		DueAt:      &due,
	}).Return("t-42", nil)

	action := NewCreateTaskAction(store)
	action.now = func() time.Time { return now }

	result, err := action.Execute(context.Background(),
		map[string]any{"title": "Call back", "assigneeId": "u-9", "dueInHours": "24"},
		&models.ExecutionContext{Data: map[string]any{"contactId": "c-1"}}, slog.Default())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "t-42", result.Data["taskId"])
	store.AssertExpectations(t)
}

func TestCreateTaskAction_MissingTitle(t *testing.T) {
	result, err := NewCreateTaskAction(&mocks.MockContactStore{}).Execute(context.Background(),
		map[string]any{}, &models.ExecutionContext{Data: map[string]any{"contactId": "c-1"}}, slog.Default())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "no task title", result.Error)
}
