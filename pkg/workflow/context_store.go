package workflow

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/patrickmn/go-cache"
)

// ContextStore holds the execution context of every live execution. Ids are
// never reused: once deleted an id stays retired for the lifetime of the store.
type ContextStore struct {
	mu      sync.Mutex
	live    *cache.Cache
	retired map[string]struct{}
}

func NewContextStore() *ContextStore {
	return &ContextStore{
		live:    cache.New(cache.NoExpiration, 0),
		retired: make(map[string]struct{}),
	}
}

// Create registers a fresh context for executionID seeded with triggerData and
// the definition's variables.
func (s *ContextStore) Create(executionID string, definition *models.WorkflowDefinition, triggerData map[string]any, triggeredBy string) (*models.ExecutionContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.retired[executionID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionIDReused, executionID)
	}

	data := maps.Clone(triggerData)
	if data == nil {
		data = make(map[string]any)
	}

	variables := maps.Clone(definition.Variables)
	if variables == nil {
		variables = make(map[string]any)
	}

	execCtx := &models.ExecutionContext{
		ExecutionID: executionID,
		WorkflowID:  definition.ID,
		Data:        data,
		Variables:   variables,
		Metadata: models.ExecutionMetadata{
			StartTime:   time.Now().UTC(),
			TotalSteps:  len(definition.Nodes),
			TriggeredBy: triggeredBy,
		},
		Graph: definition,
	}

	err := s.live.Add(executionID, execCtx, cache.NoExpiration)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrExecutionIDReused, executionID)
	}

	return execCtx, nil
}

func (s *ContextStore) Get(executionID string) (*models.ExecutionContext, bool) {
	value, ok := s.live.Get(executionID)
	if !ok {
		return nil, false
	}

	return value.(*models.ExecutionContext), true
}

// Delete removes the context and retires its id. Deleting an unknown id only
// retires it.
func (s *ContextStore) Delete(executionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.live.Delete(executionID)
	s.retired[executionID] = struct{}{}
}

// Len returns the number of live contexts.
func (s *ContextStore) Len() int {
	return s.live.ItemCount()
}
