// Package ledger owns task records. Every state change goes through Update,
// which merges a partial patch into the stored task.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ytget/yt-downloader-api/internal/model"
)

// ErrDuplicateID is returned by Create when the id is already taken
var ErrDuplicateID = errors.New("task id already exists")

// TaskIDPrefix is used for fallback ids when UUID generation fails
const TaskIDPrefix = "task-"

// Store is the task ledger contract. Implementations must be safe for concurrent use.
type Store interface {
	// Create registers a new task; ids are never reused
	Create(task *model.Task) error
	// Get returns a copy of the task
	Get(id string) (model.Task, bool)
	// Update merges patch into the task. It returns false when the task is
	// absent, terminal, or the patch is rejected.
	Update(id string, patch model.TaskPatch) bool
	// Delete removes the task and returns its last state
	Delete(id string) (model.Task, bool)
	// List returns copies of all tasks ordered by creation time
	List() []model.Task
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
	used  map[string]struct{}

	onUpdate func(model.Task)
}

// NewMemoryStore creates an empty in-memory ledger
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*model.Task),
		used:  make(map[string]struct{}),
	}
}

// SetUpdateCallback registers fn to receive a snapshot after every applied change.
// fn runs outside the store lock.
func (s *MemoryStore) SetUpdateCallback(fn func(model.Task)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// Create registers task
func (s *MemoryStore) Create(task *model.Task) error {
	if task == nil || task.ID == "" {
		return errors.New("task must have an id")
	}

	s.mu.Lock()
	if _, exists := s.used[task.ID]; exists {
		s.mu.Unlock()
		return errors.Wrap(ErrDuplicateID, task.ID)
	}
	c := task.Clone()
	s.tasks[task.ID] = &c
	s.used[task.ID] = struct{}{}
	notify := s.onUpdate
	s.mu.Unlock()

	if notify != nil {
		notify(c.Clone())
	}
	return nil
}

// Get returns a copy of the task by ID
func (s *MemoryStore) Get(id string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, exists := s.tasks[id]
	if !exists {
		return model.Task{}, false
	}
	return task.Clone(), true
}

// Update merges patch into the task by ID
func (s *MemoryStore) Update(id string, patch model.TaskPatch) bool {
	s.mu.Lock()
	task, exists := s.tasks[id]
	if !exists || !patch.Apply(task) {
		s.mu.Unlock()
		return false
	}
	snapshot := task.Clone()
	notify := s.onUpdate
	s.mu.Unlock()

	if notify != nil {
		notify(snapshot)
	}
	return true
}

// Delete removes a task. Its id stays reserved.
func (s *MemoryStore) Delete(id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, exists := s.tasks[id]
	if !exists {
		return model.Task{}, false
	}
	delete(s.tasks, id)
	return task.Clone(), true
}

// List returns all tasks ordered by creation time, then id
func (s *MemoryStore) List() []model.Task {
	s.mu.RLock()
	tasks := make([]model.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

// Sink returns an update function bound to one task id
func Sink(store Store, id string) model.UpdateFunc {
	return func(patch model.TaskPatch) {
		store.Update(id, patch)
	}
}

// NewTaskID generates a unique task ID using UUID v7 for time ordering
func NewTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to timestamp if UUID generation fails
		return fmt.Sprintf(TaskIDPrefix+"%d", time.Now().UnixNano())
	}
	return id.String()
}
