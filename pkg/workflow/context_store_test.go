package workflow

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextStore_Lifecycle(t *testing.T) {
	store := NewContextStore()
	definition := &models.WorkflowDefinition{
		ID:        "wf-1",
		Nodes:     []*models.WorkflowNode{{ID: "start", Type: models.NodeTypeTrigger}},
		Variables: map[string]any{"team": "sales"},
	}
	triggerData := map[string]any{"contactId": "c-1"}

	execCtx, err := store.Create("exec-1", definition, triggerData, "contact_added")
	require.NoError(t, err)

	assert.Equal(t, "wf-1", execCtx.WorkflowID)
	assert.Equal(t, "c-1", execCtx.Data["contactId"])
	assert.Equal(t, "sales", execCtx.Variables["team"])
	assert.Equal(t, 1, execCtx.Metadata.TotalSteps)
	assert.Equal(t, "contact_added", execCtx.Metadata.TriggeredBy)
	assert.Equal(t, 1, store.Len())

	execCtx.Merge(map[string]any{"messageSent": true})
	assert.NotContains(t, triggerData, "messageSent", "trigger data must not be aliased")

	got, ok := store.Get("exec-1")
	require.True(t, ok)
	assert.Same(t, execCtx, got)

	_, err = store.Create("exec-1", definition, nil, "manual")
	require.ErrorIs(t, err, ErrExecutionIDReused)

	store.Delete("exec-1")
	assert.Equal(t, 0, store.Len())

	_, ok = store.Get("exec-1")
	assert.False(t, ok)

	_, err = store.Create("exec-1", definition, nil, "manual")
	assert.ErrorIs(t, err, ErrExecutionIDReused, "retired ids are never reused")
}

func TestContextStore_ConcurrentCreate(t *testing.T) {
	store := NewContextStore()
	definition := &models.WorkflowDefinition{ID: "wf-1"}

	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			_, err := store.Create(fmt.Sprintf("exec-%d", i), definition, nil, "manual")
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()
	assert.Equal(t, 50, store.Len())
}
