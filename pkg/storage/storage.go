package storage

import (
	"context"
	"errors"

	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
)

var ErrNotFound = errors.New("not found")

// Storage interface for reading and writing engine data into a state.
// Interface is used by the bpmn engine and the task query to interact with state.
//
// Methods that are expected to return exactly one match MUST return ErrNotFound when the result does not exist
type Storage interface {
	ProcessDefinitionStorageReader
	ProcessDefinitionStorageWriter
	ProcessInstanceStorageReader
	ProcessInstanceStorageWriter
	TaskStorageReader
	TaskStorageWriter

	GenerateId() int64
	NewBatch() Batch

	// Clear removes all process instances and tasks, deployed definitions are kept
	Clear(ctx context.Context) error
}

type Batch interface {
	ProcessDefinitionStorageWriter
	ProcessInstanceStorageWriter
	TaskStorageWriter

	// Flush will write the batch into the storage and prepares the batch for new statements
	Flush(ctx context.Context) error
}

type ProcessDefinitionStorageReader interface {
	FindLatestProcessDefinitionById(ctx context.Context, processDefinitionId string) (runtime.ProcessDefinition, error)

	FindProcessDefinitionByKey(ctx context.Context, processDefinitionKey int64) (runtime.ProcessDefinition, error)

	// FindProcessDefinitionsById return zero or many registered processes with given ID
	// result array is ordered by version number, from 1 (first) and largest version (last)
	FindProcessDefinitionsById(ctx context.Context, processId string) ([]runtime.ProcessDefinition, error)
}

type ProcessDefinitionStorageWriter interface {
	// SaveProcessDefinition persists a ProcessDefinition
	// and potentially overwrites prior data stored with the given ProcessKey
	SaveProcessDefinition(ctx context.Context, definition runtime.ProcessDefinition) error
}

type ProcessInstanceStorageReader interface {
	FindProcessInstanceByKey(ctx context.Context, processInstanceKey int64) (runtime.ProcessInstance, error)

	// FindProcessInstancesByState returns instances in given state ordered by key
	FindProcessInstancesByState(ctx context.Context, state runtime.ActivityState) ([]runtime.ProcessInstance, error)
}

type ProcessInstanceStorageWriter interface {
	// SaveProcessInstance persists the instance
	// and potentially overwrites prior data stored with given process instance key
	SaveProcessInstance(ctx context.Context, processInstance runtime.ProcessInstance) error
}

// TaskFilter narrows FindTasks, zero values do not filter
type TaskFilter struct {
	ProcessInstanceKey *int64
	TaskDefinitionKey  string
	State              runtime.ActivityState
}

type TaskStorageReader interface {
	FindTaskByKey(ctx context.Context, taskKey int64) (runtime.Task, error)

	// FindTasks returns tasks matching the filter ordered by task key
	FindTasks(ctx context.Context, filter TaskFilter) ([]runtime.Task, error)
}

type TaskStorageWriter interface {
	// SaveTask persists the task
	// and potentially overwrites prior data stored with given task key
	SaveTask(ctx context.Context, task runtime.Task) error
}
