package runtime

import (
	"time"

	"github.com/pbinitiative/zentask/pkg/bpmn/model/bpmn20"
)

type ProcessDefinition struct {
	BpmnProcessId    string              // The ID as defined in the BPMN file
	Version          int32               // A version of the process, default=1, incremented, when another process with the same ID is loaded
	Key              int64               // The engines key for this given process with version
	Definitions      bpmn20.TDefinitions // parsed file content
	BpmnData         string              // the raw source data
	BpmnResourceName string              // some name for the resource
	BpmnChecksum     [16]byte            // internal checksum to identify different versions
}

type ProcessInstance struct {
	Definition *ProcessDefinition
	Key        int64
	CreatedAt  time.Time
	State      ActivityState
	// Tree is shared by every copy of the instance, it holds the scopes and element instances
	Tree *ExecutionTree
}

// Scope returns the process scope, the root of all variable scopes of the instance
func (pi *ProcessInstance) Scope() *VariableScope {
	return pi.Tree.Root().Scope()
}

func (pi *ProcessInstance) GetVariable(key string) any {
	return pi.Scope().GetVariable(key)
}

// ActivityState as per BPMN 2.0 spec, section 13.2.2 Activity, page 428.
// Only the subset reachable by the engine is listed.
type ActivityState string

const (
	ActivityStateReady      ActivityState = "READY"
	ActivityStateActive     ActivityState = "ACTIVE"
	ActivityStateCompleted  ActivityState = "COMPLETED"
	ActivityStateFailed     ActivityState = "FAILED"
	ActivityStateTerminated ActivityState = "TERMINATED"
	ActivityStateWithdrawn  ActivityState = "WITHDRAWN"
)

// Task is a user facing work item. Tasks created by the engine are bound 1:1 to an activity
// element instance; tasks created through the API are standalone and have no process instance.
type Task struct {
	Key                  int64
	Name                 string
	TaskDefinitionKey    string // element id of the user task, empty for standalone tasks
	ProcessInstanceKey   *int64
	ProcessDefinitionKey *int64
	ElementInstanceKey   int64
	Assignee             string
	State                ActivityState
	CreatedAt            time.Time
	// Variables are the local variables of a standalone task,
	// tasks of a process instance keep their variables in the execution tree
	Variables map[string]any
}

func (t Task) IsStandalone() bool {
	return t.ProcessInstanceKey == nil
}
