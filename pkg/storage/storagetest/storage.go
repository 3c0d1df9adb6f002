// Package storagetest holds the conformance suite every storage.Storage implementation has to pass
package storagetest

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	stdruntime "runtime"

	bpmnruntime "github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/ptr"
	"github.com/pbinitiative/zentask/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type StorageTestFunc func(s storage.Storage, t *testing.T) func(t *testing.T)

type StorageTester struct {
	processDefinition bpmnruntime.ProcessDefinition
	processInstance   bpmnruntime.ProcessInstance
}

func (st *StorageTester) GetTests() map[string]StorageTestFunc {
	tests := map[string]StorageTestFunc{}

	// all test functions need to be registered here
	functions := []StorageTestFunc{
		st.TestProcessDefinitionStorageWriter,
		st.TestProcessDefinitionStorageReader,
		st.TestProcessDefinitionVersions,
		st.TestProcessInstanceStorageWriter,
		st.TestProcessInstanceStorageReader,
		st.TestTaskStorageWriter,
		st.TestTaskStorageReader,
		st.TestStandaloneTaskStorage,
		st.TestTaskVariablesAreNotShared,
		st.TestBatchFlush,
		st.TestNotFound,
	}

	for _, function := range functions {
		funcName := getFunctionName(function)
		strippedName := funcName[strings.LastIndex(funcName, ".")+1:]
		// method values carry a "-fm" suffix
		strippedName = strings.TrimSuffix(strippedName, "-fm")
		tests[strippedName] = function
	}
	return tests
}

func getFunctionName(i any) string {
	return stdruntime.FuncForPC(reflect.ValueOf(i).Pointer()).Name()
}

func getProcessDefinition(r int64) bpmnruntime.ProcessDefinition {
	data := `<?xml version="1.0" encoding="UTF-8"?><bpmn:definitions><bpmn:process id="id-%d" name="aName" isExecutable="true"></bpmn:process></bpmn:definitions>`
	return bpmnruntime.ProcessDefinition{
		BpmnProcessId:    fmt.Sprintf("id-%d", r),
		Version:          1,
		Key:              r,
		BpmnData:         fmt.Sprintf(data, r),
		BpmnChecksum:     [16]byte{1},
		BpmnResourceName: fmt.Sprintf("resource-%d", r),
	}
}

func getProcessInstance(r int64, d bpmnruntime.ProcessDefinition) bpmnruntime.ProcessInstance {
	return bpmnruntime.ProcessInstance{
		Definition: &d,
		Key:        r,
		CreatedAt:  time.Now().Truncate(time.Millisecond),
		State:      bpmnruntime.ActivityStateActive,
		Tree:       bpmnruntime.NewExecutionTree(r, map[string]any{"foo": "bar"}),
	}
}

func getTask(r int64, taskDefinitionKey string, instance *bpmnruntime.ProcessInstance) bpmnruntime.Task {
	task := bpmnruntime.Task{
		Key:               r,
		Name:              fmt.Sprintf("task-%d", r),
		TaskDefinitionKey: taskDefinitionKey,
		State:             bpmnruntime.ActivityStateActive,
		CreatedAt:         time.Now().Truncate(time.Millisecond),
	}
	if instance != nil {
		task.ProcessInstanceKey = ptr.To(instance.Key)
		task.ProcessDefinitionKey = ptr.To(instance.Definition.Key)
		task.ElementInstanceKey = r
	}
	return task
}

func (st *StorageTester) PrepareTestData(s storage.Storage, t *testing.T) {
	r := s.GenerateId()

	st.processDefinition = getProcessDefinition(r)
	err := s.SaveProcessDefinition(t.Context(), st.processDefinition)
	assert.NoError(t, err)

	st.processInstance = getProcessInstance(r, st.processDefinition)
	err = s.SaveProcessInstance(t.Context(), st.processInstance)
	assert.NoError(t, err)
}

func (st *StorageTester) TestProcessDefinitionStorageWriter(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()

		def := getProcessDefinition(r)

		err := s.SaveProcessDefinition(t.Context(), def)
		assert.NoError(t, err)

		definition, err := s.FindProcessDefinitionByKey(t.Context(), r)
		assert.NoError(t, err)
		assert.Equal(t, r, definition.Key)
		assert.Equal(t, def.BpmnChecksum, definition.BpmnChecksum)
	}
}

func (st *StorageTester) TestProcessDefinitionStorageReader(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()

		def := getProcessDefinition(r)

		err := s.SaveProcessDefinition(t.Context(), def)
		assert.NoError(t, err)

		definition, err := s.FindLatestProcessDefinitionById(t.Context(), def.BpmnProcessId)
		assert.NoError(t, err)
		assert.Equal(t, r, definition.Key)

		definition, err = s.FindProcessDefinitionByKey(t.Context(), def.Key)
		assert.NoError(t, err)
		assert.Equal(t, r, definition.Key)

		definitions, err := s.FindProcessDefinitionsById(t.Context(), def.BpmnProcessId)
		assert.NoError(t, err)
		assert.Len(t, definitions, 1)
		assert.Equal(t, definitions[0].Key, definition.Key)
	}
}

func (st *StorageTester) TestProcessDefinitionVersions(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		v2 := getProcessDefinition(s.GenerateId())
		v1 := getProcessDefinition(s.GenerateId())
		v1.BpmnProcessId = v2.BpmnProcessId
		v2.Version = 2

		require.NoError(t, s.SaveProcessDefinition(t.Context(), v2))
		require.NoError(t, s.SaveProcessDefinition(t.Context(), v1))

		latest, err := s.FindLatestProcessDefinitionById(t.Context(), v2.BpmnProcessId)
		require.NoError(t, err)
		assert.Equal(t, v2.Key, latest.Key)

		definitions, err := s.FindProcessDefinitionsById(t.Context(), v2.BpmnProcessId)
		require.NoError(t, err)
		require.Len(t, definitions, 2)
		assert.Equal(t, int32(1), definitions[0].Version)
		assert.Equal(t, int32(2), definitions[1].Version)
	}
}

func (st *StorageTester) TestProcessInstanceStorageWriter(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()

		inst := getProcessInstance(r, st.processDefinition)

		err := s.SaveProcessInstance(t.Context(), inst)
		assert.NoError(t, err)

		inst.State = bpmnruntime.ActivityStateCompleted
		err = s.SaveProcessInstance(t.Context(), inst)
		assert.NoError(t, err)

		instance, err := s.FindProcessInstanceByKey(t.Context(), r)
		assert.NoError(t, err)
		assert.Equal(t, bpmnruntime.ActivityStateCompleted, instance.State)
	}
}

func (st *StorageTester) TestProcessInstanceStorageReader(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()

		inst := getProcessInstance(r, st.processDefinition)
		inst.State = bpmnruntime.ActivityStateFailed

		err := s.SaveProcessInstance(t.Context(), inst)
		assert.NoError(t, err)

		instance, err := s.FindProcessInstanceByKey(t.Context(), inst.Key)
		assert.NoError(t, err)
		assert.Equal(t, inst.Key, instance.Key)
		assert.Equal(t, inst.CreatedAt.Truncate(time.Millisecond), instance.CreatedAt.Truncate(time.Millisecond))
		assert.Equal(t, "bar", instance.GetVariable("foo"))
		assert.Equal(t, st.processDefinition.Key, instance.Definition.Key)

		failed, err := s.FindProcessInstancesByState(t.Context(), bpmnruntime.ActivityStateFailed)
		assert.NoError(t, err)
		keys := make([]int64, 0, len(failed))
		for _, f := range failed {
			assert.Equal(t, bpmnruntime.ActivityStateFailed, f.State)
			keys = append(keys, f.Key)
		}
		assert.Contains(t, keys, inst.Key)
	}
}

func (st *StorageTester) TestTaskStorageWriter(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()
		task := getTask(r, "writer-task", &st.processInstance)

		err := s.SaveTask(t.Context(), task)
		assert.NoError(t, err)

		task.State = bpmnruntime.ActivityStateCompleted
		err = s.SaveTask(t.Context(), task)
		assert.NoError(t, err)

		stored, err := s.FindTaskByKey(t.Context(), r)
		assert.NoError(t, err)
		assert.Equal(t, bpmnruntime.ActivityStateCompleted, stored.State)
		assert.Equal(t, st.processInstance.Key, *stored.ProcessInstanceKey)
		assert.Equal(t, r, stored.ElementInstanceKey)
	}
}

func (st *StorageTester) TestTaskStorageReader(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		definitionKey := fmt.Sprintf("reader-task-%d", s.GenerateId())
		active := []bpmnruntime.Task{
			getTask(s.GenerateId(), definitionKey, &st.processInstance),
			getTask(s.GenerateId(), definitionKey, &st.processInstance),
		}
		completed := getTask(s.GenerateId(), definitionKey, &st.processInstance)
		completed.State = bpmnruntime.ActivityStateCompleted
		for _, task := range append(active, completed) {
			require.NoError(t, s.SaveTask(t.Context(), task))
		}

		tasks, err := s.FindTasks(t.Context(), storage.TaskFilter{
			ProcessInstanceKey: ptr.To(st.processInstance.Key),
			TaskDefinitionKey:  definitionKey,
			State:              bpmnruntime.ActivityStateActive,
		})
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Less(t, tasks[0].Key, tasks[1].Key, "tasks are ordered by key")

		tasks, err = s.FindTasks(t.Context(), storage.TaskFilter{TaskDefinitionKey: definitionKey})
		require.NoError(t, err)
		assert.Len(t, tasks, 3)

		tasks, err = s.FindTasks(t.Context(), storage.TaskFilter{
			ProcessInstanceKey: ptr.To(st.processInstance.Key + 1),
			TaskDefinitionKey:  definitionKey,
		})
		require.NoError(t, err)
		assert.Empty(t, tasks)
	}
}

func (st *StorageTester) TestStandaloneTaskStorage(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		task := getTask(s.GenerateId(), "", nil)
		task.Variables = map[string]any{"orderItem": "Tic"}
		require.NoError(t, s.SaveTask(t.Context(), task))

		stored, err := s.FindTaskByKey(t.Context(), task.Key)
		require.NoError(t, err)
		assert.True(t, stored.IsStandalone())
		assert.Equal(t, "Tic", stored.Variables["orderItem"])

		byInstance, err := s.FindTasks(t.Context(), storage.TaskFilter{ProcessInstanceKey: ptr.To(st.processInstance.Key)})
		require.NoError(t, err)
		for _, task := range byInstance {
			assert.False(t, task.IsStandalone())
		}

		all, err := s.FindTasks(t.Context(), storage.TaskFilter{})
		require.NoError(t, err)
		keys := make([]int64, 0, len(all))
		for _, task := range all {
			keys = append(keys, task.Key)
		}
		assert.Contains(t, keys, task.Key)
	}
}

func (st *StorageTester) TestTaskVariablesAreNotShared(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		variables := map[string]any{"a": 1}
		task := getTask(s.GenerateId(), "", nil)
		task.Variables = variables
		require.NoError(t, s.SaveTask(t.Context(), task))

		// callers modifying their maps never reach the stored task
		variables["b"] = 2
		found, err := s.FindTaskByKey(t.Context(), task.Key)
		require.NoError(t, err)
		found.Variables["c"] = 3
		listed, err := s.FindTasks(t.Context(), storage.TaskFilter{})
		require.NoError(t, err)
		for _, listedTask := range listed {
			if listedTask.Key == task.Key {
				listedTask.Variables["d"] = 4
			}
		}

		stored, err := s.FindTaskByKey(t.Context(), task.Key)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": 1}, stored.Variables)
	}
}

func (st *StorageTester) TestBatchFlush(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()
		batch := s.NewBatch()
		inst := getProcessInstance(r, st.processDefinition)
		task := getTask(s.GenerateId(), "batch-task", &inst)

		require.NoError(t, batch.SaveProcessInstance(t.Context(), inst))
		require.NoError(t, batch.SaveTask(t.Context(), task))

		_, err := s.FindProcessInstanceByKey(t.Context(), r)
		assert.ErrorIs(t, err, storage.ErrNotFound, "nothing is written before flush")

		require.NoError(t, batch.Flush(t.Context()))

		_, err = s.FindProcessInstanceByKey(t.Context(), r)
		assert.NoError(t, err)
		_, err = s.FindTaskByKey(t.Context(), task.Key)
		assert.NoError(t, err)

		// a flushed batch is empty again
		require.NoError(t, batch.Flush(t.Context()))
	}
}

func (st *StorageTester) TestNotFound(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		missing := s.GenerateId()

		_, err := s.FindProcessDefinitionByKey(t.Context(), missing)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindLatestProcessDefinitionById(t.Context(), fmt.Sprintf("missing-%d", missing))
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindProcessInstanceByKey(t.Context(), missing)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindTaskByKey(t.Context(), missing)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		definitions, err := s.FindProcessDefinitionsById(t.Context(), fmt.Sprintf("missing-%d", missing))
		assert.NoError(t, err)
		assert.Empty(t, definitions)
	}
}

// TestClear wipes the storage, it must not share the storage with the other tests
func (st *StorageTester) TestClear(s storage.Storage, t *testing.T) {
	r := s.GenerateId()
	def := getProcessDefinition(r)
	require.NoError(t, s.SaveProcessDefinition(t.Context(), def))
	inst := getProcessInstance(r, def)
	require.NoError(t, s.SaveProcessInstance(t.Context(), inst))
	require.NoError(t, s.SaveTask(t.Context(), getTask(r, "clear-task", &inst)))

	require.NoError(t, s.Clear(t.Context()))

	_, err := s.FindProcessInstanceByKey(t.Context(), r)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	tasks, err := s.FindTasks(t.Context(), storage.TaskFilter{})
	assert.NoError(t, err)
	assert.Empty(t, tasks)
	_, err = s.FindProcessDefinitionByKey(t.Context(), r)
	assert.NoError(t, err, "definitions survive")
}
