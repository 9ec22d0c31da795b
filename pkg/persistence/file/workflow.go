package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/persistence"
	"gopkg.in/yaml.v3"
)

var definitionExtensions = []string{".json", ".yaml", ".yml"}

// WorkflowRepository stores one definition per file under <root>/workflows.
// Definitions authored by hand may be YAML; saved definitions are JSON.
type WorkflowRepository struct {
	root string
	mu   sync.RWMutex
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (wr *WorkflowRepository) dir() string {
	return filepath.Join(wr.root, "workflows")
}

// GetAll returns every stored definition sorted by creation time.
func (wr *WorkflowRepository) GetAll(_ context.Context) ([]*models.WorkflowDefinition, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	entries, err := os.ReadDir(wr.dir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*models.WorkflowDefinition{}, nil
		}

		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.WorkflowDefinition, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}

		workflow, err := LoadDefinition(filepath.Join(wr.dir(), entry.Name()))
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	for _, ext := range definitionExtensions {
		workflow, err := LoadDefinition(filepath.Join(wr.dir(), workflowID+ext))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, persistence.NewWorkflowError("GetByID", workflowID, err)
		}

		return workflow, nil
	}

	return nil, persistence.NewWorkflowError("GetByID", workflowID, persistence.ErrWorkflowNotFound)
}

// Save saves a workflow to the file system.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.WorkflowDefinition) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	err := os.MkdirAll(wr.dir(), 0o750)
	if err != nil {
		return fmt.Errorf("failed to create workflows directory: %w", err)
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	err = os.WriteFile(filepath.Join(wr.dir(), workflow.ID+".json"), data, 0o600)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// Delete removes a workflow whatever format it was stored in.
func (wr *WorkflowRepository) Delete(_ context.Context, workflowID string) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	removed := false

	for _, ext := range definitionExtensions {
		err := os.Remove(filepath.Join(wr.dir(), workflowID+ext))
		if err == nil {
			removed = true

			continue
		}

		if !errors.Is(err, fs.ErrNotExist) {
			return persistence.NewWorkflowError("Delete", workflowID, err)
		}
	}

	if !removed {
		return persistence.NewWorkflowError("Delete", workflowID, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// LoadDefinition reads one definition file, JSON or YAML by extension.
func LoadDefinition(path string) (*models.WorkflowDefinition, error) {
	body, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	var workflow models.WorkflowDefinition

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(body, &workflow)
	default:
		err = json.Unmarshal(body, &workflow)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", path, err)
	}

	if workflow.ID == "" {
		base := filepath.Base(path)
		workflow.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return &workflow, nil
}

func isDefinitionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, known := range definitionExtensions {
		if ext == known {
			return true
		}
	}

	return false
}
