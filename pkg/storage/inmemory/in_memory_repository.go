package inmemory

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"math/rand"
	"slices"
	"sync"

	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/ptr"
	"github.com/pbinitiative/zentask/pkg/storage"
)

// Storage keeps process information in memory,
// please use NewStorage to create a new object of this type.
type Storage struct {
	mu                 sync.RWMutex
	ProcessDefinitions map[int64]runtime.ProcessDefinition
	ProcessInstances   map[int64]runtime.ProcessInstance
	Tasks              map[int64]runtime.Task
}

func (mem *Storage) GenerateId() int64 {
	return rand.Int63()
}

func NewStorage() *Storage {
	return &Storage{
		ProcessDefinitions: make(map[int64]runtime.ProcessDefinition),
		ProcessInstances:   make(map[int64]runtime.ProcessInstance),
		Tasks:              make(map[int64]runtime.Task),
	}
}

var _ storage.Storage = &Storage{}

func (mem *Storage) NewBatch() storage.Batch {
	return &StorageBatch{
		db:        mem,
		stmtToRun: make([]func() error, 0, 10),
	}
}

func (mem *Storage) Clear(ctx context.Context) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	clear(mem.ProcessInstances)
	clear(mem.Tasks)
	return nil
}

var _ storage.ProcessDefinitionStorageReader = &Storage{}

func (mem *Storage) FindLatestProcessDefinitionById(ctx context.Context, processDefinitionId string) (runtime.ProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	var res runtime.ProcessDefinition
	found := false
	for _, def := range mem.ProcessDefinitions {
		if def.BpmnProcessId != processDefinitionId {
			continue
		}
		if found && def.Version < res.Version {
			continue
		}
		found = true
		res = def
	}
	if !found {
		return res, storage.ErrNotFound
	}
	return res, nil
}

func (mem *Storage) FindProcessDefinitionByKey(ctx context.Context, processDefinitionKey int64) (runtime.ProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.ProcessDefinitions[processDefinitionKey]
	if !ok {
		return res, storage.ErrNotFound
	}
	return res, nil
}

func (mem *Storage) FindProcessDefinitionsById(ctx context.Context, processId string) ([]runtime.ProcessDefinition, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.ProcessDefinition, 0)
	for _, def := range mem.ProcessDefinitions {
		if def.BpmnProcessId != processId {
			continue
		}
		res = append(res, def)
	}
	slices.SortFunc(res, func(a, b runtime.ProcessDefinition) int {
		return cmp.Compare(a.Version, b.Version)
	})
	return res, nil
}

var _ storage.ProcessDefinitionStorageWriter = &Storage{}

func (mem *Storage) SaveProcessDefinition(ctx context.Context, definition runtime.ProcessDefinition) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.ProcessDefinitions[definition.Key] = definition
	return nil
}

var _ storage.ProcessInstanceStorageReader = &Storage{}

func (mem *Storage) FindProcessInstanceByKey(ctx context.Context, processInstanceKey int64) (runtime.ProcessInstance, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.ProcessInstances[processInstanceKey]
	if !ok {
		return res, storage.ErrNotFound
	}
	return res, nil
}

func (mem *Storage) FindProcessInstancesByState(ctx context.Context, state runtime.ActivityState) ([]runtime.ProcessInstance, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.ProcessInstance, 0)
	for _, key := range slices.Sorted(maps.Keys(mem.ProcessInstances)) {
		inst := mem.ProcessInstances[key]
		if inst.State != state {
			continue
		}
		res = append(res, inst)
	}
	return res, nil
}

var _ storage.ProcessInstanceStorageWriter = &Storage{}

func (mem *Storage) SaveProcessInstance(ctx context.Context, processInstance runtime.ProcessInstance) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.ProcessInstances[processInstance.Key] = processInstance
	return nil
}

var _ storage.TaskStorageReader = &Storage{}

func (mem *Storage) FindTaskByKey(ctx context.Context, taskKey int64) (runtime.Task, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.Tasks[taskKey]
	if !ok {
		return res, storage.ErrNotFound
	}
	return cloneTask(res), nil
}

func (mem *Storage) FindTasks(ctx context.Context, filter storage.TaskFilter) ([]runtime.Task, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.Task, 0)
	for _, key := range slices.Sorted(maps.Keys(mem.Tasks)) {
		task := mem.Tasks[key]
		if filter.ProcessInstanceKey != nil && !ptr.EqualTo(task.ProcessInstanceKey, *filter.ProcessInstanceKey) {
			continue
		}
		if filter.TaskDefinitionKey != "" && task.TaskDefinitionKey != filter.TaskDefinitionKey {
			continue
		}
		if filter.State != "" && task.State != filter.State {
			continue
		}
		res = append(res, cloneTask(task))
	}
	return res, nil
}

var _ storage.TaskStorageWriter = &Storage{}

func (mem *Storage) SaveTask(ctx context.Context, task runtime.Task) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.Tasks[task.Key] = cloneTask(task)
	return nil
}

// cloneTask copies the variables map so stored tasks never share it with callers
func cloneTask(task runtime.Task) runtime.Task {
	task.Variables = maps.Clone(task.Variables)
	return task
}

type StorageBatch struct {
	db        *Storage
	stmtToRun []func() error
}

var _ storage.Batch = &StorageBatch{}

// Flush runs the collected statements in order, all of them are attempted even when one fails
func (b *StorageBatch) Flush(ctx context.Context) error {
	var joinErr error
	for _, stmt := range b.stmtToRun {
		err := stmt()
		if err != nil {
			joinErr = errors.Join(joinErr, err)
		}
	}
	b.stmtToRun = make([]func() error, 0)
	return joinErr
}

func (b *StorageBatch) SaveProcessDefinition(ctx context.Context, definition runtime.ProcessDefinition) error {
	b.stmtToRun = append(b.stmtToRun, func() error {
		return b.db.SaveProcessDefinition(ctx, definition)
	})
	return nil
}

func (b *StorageBatch) SaveProcessInstance(ctx context.Context, processInstance runtime.ProcessInstance) error {
	b.stmtToRun = append(b.stmtToRun, func() error {
		return b.db.SaveProcessInstance(ctx, processInstance)
	})
	return nil
}

func (b *StorageBatch) SaveTask(ctx context.Context, task runtime.Task) error {
	b.stmtToRun = append(b.stmtToRun, func() error {
		return b.db.SaveTask(ctx, task)
	})
	return nil
}
