// Package tasks provides the in-memory task registry.
//
// The registry is instance-based: callers own a *Registry and pass it where
// needed. All access is serialized through an internal mutex, so a single
// registry may be shared by the CLI, the orchestrator's tool dispatch, and
// the MCP server within one process.
package tasks

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskmindhq/taskmind/internal/models"
)

// ErrNotFound is returned when a task ID does not exist in the registry.
var ErrNotFound = fmt.Errorf("task not found")

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Registry holds tasks in memory. Contents vanish on process exit unless
// exported explicitly.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*models.Task)}
}

// CreateOptions carries the optional fields accepted at task creation.
type CreateOptions struct {
	Priority      models.TaskPriority
	Category      models.TaskCategory
	ParentID      string
	DependencyIDs []string
}

// Create adds a new task. Status defaults to pending, priority to medium,
// category to development. A ParentID referencing an unknown task is
// rejected.
func (r *Registry) Create(title, description string, opts CreateOptions) (*models.Task, error) {
	if title == "" {
		return nil, fmt.Errorf("task title is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if opts.ParentID != "" {
		if _, ok := r.tasks[opts.ParentID]; !ok {
			return nil, fmt.Errorf("parent task %s: %w", opts.ParentID, ErrNotFound)
		}
	}

	priority := opts.Priority
	if priority == "" {
		priority = models.TaskPriorityMedium
	}
	category := opts.Category
	if category == "" {
		category = models.TaskCategoryDevelopment
	}

	now := time.Now().UTC()
	t := &models.Task{
		ID:            newULID(),
		Title:         title,
		Description:   description,
		Status:        models.TaskStatusPending,
		Priority:      priority,
		Category:      category,
		ParentID:      opts.ParentID,
		DependencyIDs: append([]string(nil), opts.DependencyIDs...),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.tasks[t.ID] = t
	return cloneTask(t), nil
}

// Updates carries the mutable fields for Update. Nil pointers leave the
// corresponding field unchanged.
type Updates struct {
	Title         *string
	Description   *string
	Status        *models.TaskStatus
	Priority      *models.TaskPriority
	Category      *models.TaskCategory
	Result        *string
	DependencyIDs *[]string
}

// Update applies the given field updates and touches UpdatedAt. Setting
// status to completed stamps CompletedAt.
func (r *Registry) Update(id string, u Updates) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Status != nil {
		t.Status = *u.Status
		if *u.Status == models.TaskStatusCompleted && t.CompletedAt == nil {
			now := time.Now().UTC()
			t.CompletedAt = &now
		}
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.Category != nil {
		t.Category = *u.Category
	}
	if u.Result != nil {
		t.Result = *u.Result
	}
	if u.DependencyIDs != nil {
		t.DependencyIDs = append([]string(nil), (*u.DependencyIDs)...)
	}
	t.UpdatedAt = time.Now().UTC()
	return cloneTask(t), nil
}

// Complete marks a task finished: completed on success, failed otherwise.
// CompletedAt is stamped either way and the result payload attached.
func (r *Registry) Complete(id string, success bool, result string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	if success {
		t.Status = models.TaskStatusCompleted
	} else {
		t.Status = models.TaskStatusFailed
	}
	now := time.Now().UTC()
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.Result = result
	return cloneTask(t), nil
}

// Get returns a copy of the task with the given ID.
func (r *Registry) Get(id string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return cloneTask(t), nil
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Status   models.TaskStatus
	Category models.TaskCategory
	Priority models.TaskPriority
	Limit    int
}

// List returns tasks matching the filter, sorted by priority rank
// (critical, high, medium, low) and, within a rank, newest first.
func (r *Registry) List(f ListFilter) []*models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Task
	for _, t := range r.tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		out = append(out, cloneTask(t))
	}

	sort.Slice(out, func(i, j int) bool {
		ri, rj := models.PriorityRank(out[i].Priority), models.PriorityRank(out[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Subtasks returns the direct children of the given task, newest first.
func (r *Registry) Subtasks(parentID string) []*models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Task
	for _, t := range r.tasks {
		if t.ParentID == parentID {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// CountsByStatus returns the number of tasks in each status.
func (r *Registry) CountsByStatus() map[models.TaskStatus]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[models.TaskStatus]int)
	for _, t := range r.tasks {
		counts[t.Status]++
	}
	return counts
}

// Delete removes a task and, recursively, its subtasks. Tasks that merely
// depend on the deleted one are left untouched.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	r.deleteLocked(id)
	return nil
}

func (r *Registry) deleteLocked(id string) {
	delete(r.tasks, id)
	for childID, t := range r.tasks {
		if t.ParentID == id {
			r.deleteLocked(childID)
		}
	}
}

// Len returns the number of tasks in the registry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Clear removes all tasks.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = make(map[string]*models.Task)
}

// Export returns all tasks as a JSON array with RFC 3339 timestamps,
// ordered like an unfiltered List.
func (r *Registry) Export() ([]byte, error) {
	all := r.List(ListFilter{})
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tasks: %w", err)
	}
	return data, nil
}

// Import merges a JSON task array into the registry, replacing entries with
// matching IDs, and reports how many records were imported. A malformed
// payload or records without IDs are silently discarded.
func (r *Registry) Import(data []byte) int {
	var in []*models.Task
	if err := json.Unmarshal(data, &in); err != nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range in {
		if t == nil || t.ID == "" {
			continue
		}
		r.tasks[t.ID] = cloneTask(t)
		n++
	}
	return n
}

// Snapshot returns copies of all tasks in List order, for archival.
func (r *Registry) Snapshot() []*models.Task {
	return r.List(ListFilter{})
}

// Put inserts or replaces a task record as-is. Used when loading archived
// snapshots; records without IDs are ignored.
func (r *Registry) Put(t *models.Task) {
	if t == nil || t.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = cloneTask(t)
}

func cloneTask(t *models.Task) *models.Task {
	c := *t
	c.DependencyIDs = append([]string(nil), t.DependencyIDs...)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}
