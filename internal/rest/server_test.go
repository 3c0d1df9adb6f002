package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/pbinitiative/zentask/internal/config"
	"github.com/pbinitiative/zentask/internal/rest/middleware"
	"github.com/pbinitiative/zentask/pkg/bpmn"
	"github.com/pbinitiative/zentask/pkg/storage/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multiInstanceResource = "../../pkg/bpmn/test-cases/multi-instance-user-task-zeebe.bpmn"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	engine := bpmn.NewEngine(bpmn.EngineWithStorage(inmemory.NewStorage()))
	engine.Start()
	t.Cleanup(engine.Stop)
	return NewServer(&engine, config.Config{
		Name:       "zentask-test",
		HttpServer: config.HttpServer{Addr: ":0", Context: "/"},
	})
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var res T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	return res
}

func deployAndStart(t *testing.T, s *Server, orderItems any) ProcessInstance {
	t.Helper()
	data, err := os.ReadFile(multiInstanceResource)
	require.NoError(t, err)
	rec := do(t, s, http.MethodPost, "/v1/process-definitions?resourceName=orders.bpmn", data)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	definition := decode[ProcessDefinitionSimple](t, rec)
	require.Equal(t, "multi-instance-user-task-zeebe", definition.BpmnProcessId)

	rec = do(t, s, http.MethodPost, "/v1/process-instances", CreateProcessInstanceRequest{
		BpmnProcessId: &definition.BpmnProcessId,
		Variables:     map[string]any{"orderItems": orderItems},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[ProcessInstance](t, rec)
}

func TestMultiInstanceTasksOverRest(t *testing.T) {
	// given
	s := newTestServer(t)
	instance := deployAndStart(t, s, []string{"Tic", "Tac", "Toe"})
	assert.Equal(t, "ACTIVE", instance.State)

	// when
	rec := do(t, s, http.MethodGet, fmt.Sprintf("/v1/tasks?processInstanceKey=%d", instance.Key), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[TasksPage](t, rec)

	rec = do(t, s, http.MethodGet, fmt.Sprintf("/v1/tasks?processInstanceKey=%d&processVariable=orderItem:Tic", instance.Key), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	byProcessVariable := decode[TasksPage](t, rec)

	rec = do(t, s, http.MethodGet, fmt.Sprintf("/v1/tasks?processInstanceKey=%d&taskVariable=orderItem:Tac&single=true", instance.Key), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tac := decode[Task](t, rec)

	// then
	require.Len(t, page.Items, 3)
	assert.Equal(t, 3, page.PageMetadata.TotalCount)
	for _, task := range page.Items {
		assert.Equal(t, "ProcessCollectionItemTask", task.TaskDefinitionKey)
		assert.Equal(t, "kermit", task.Assignee)
	}
	assert.Zero(t, byProcessVariable.PageMetadata.TotalCount)
	rec = do(t, s, http.MethodGet, fmt.Sprintf("/v1/tasks/%d", tac.Key), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Tac", decode[Task](t, rec).Variables["orderItem"])

	for _, task := range page.Items {
		rec = do(t, s, http.MethodPost, fmt.Sprintf("/v1/tasks/%d/complete", task.Key), nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	}
	rec = do(t, s, http.MethodGet, fmt.Sprintf("/v1/process-instances/%d", instance.Key), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	completed := decode[ProcessInstance](t, rec)
	assert.Equal(t, "COMPLETED", completed.State)
	assert.Equal(t, []any{"Tic-done", "Tac-done", "Toe-done"}, completed.Variables["results"])
}

func TestTaskPagination(t *testing.T) {
	// given
	s := newTestServer(t)
	instance := deployAndStart(t, s, []string{"Tic", "Tac", "Toe"})

	// when
	rec := do(t, s, http.MethodGet, fmt.Sprintf("/v1/tasks?processInstanceKey=%d&page=2&size=2", instance.Key), nil)

	// then
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[TasksPage](t, rec)
	assert.Equal(t, PageMetadata{Page: 2, Size: 2, Count: 1, TotalCount: 3}, page.PageMetadata)

	rec = do(t, s, http.MethodGet, "/v1/tasks?page=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	instance := deployAndStart(t, s, []string{"Tic", "Tac"})

	t.Run("unknown process instance", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/v1/process-instances/42", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", decode[ApiError](t, rec).Type)
	})
	t.Run("malformed key", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/v1/process-instances/abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("single result with many matches", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, fmt.Sprintf("/v1/tasks?processInstanceKey=%d&single=true", instance.Key), nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "NOT_UNIQUE", decode[ApiError](t, rec).Type)
	})
	t.Run("single result without match", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, fmt.Sprintf("/v1/tasks?processInstanceKey=%d&taskVariable=orderItem:Toe&single=true", instance.Key), nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
	t.Run("input collection is not a sequence", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/process-instances", CreateProcessInstanceRequest{
			BpmnProcessId: &instance.BpmnProcessId,
			Variables:     map[string]any{"orderItems": "Tic"},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "EXPRESSION_EVALUATION", decode[ApiError](t, rec).Type)
	})
	t.Run("unknown process id", func(t *testing.T) {
		id := "unknown"
		rec := do(t, s, http.MethodPost, "/v1/process-instances", CreateProcessInstanceRequest{BpmnProcessId: &id})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
	t.Run("missing process reference", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/process-instances", CreateProcessInstanceRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("invalid xml", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/process-definitions", []byte("<definitions"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("complete task twice", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, fmt.Sprintf("/v1/tasks?processInstanceKey=%d&taskVariable=orderItem:Tic&single=true", instance.Key), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		task := decode[Task](t, rec)

		rec = do(t, s, http.MethodPost, fmt.Sprintf("/v1/tasks/%d/complete", task.Key), CompleteTaskRequest{Variables: map[string]any{"checked": true}})
		require.Equal(t, http.StatusNoContent, rec.Code)
		rec = do(t, s, http.MethodPost, fmt.Sprintf("/v1/tasks/%d/complete", task.Key), nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestStandaloneTasksOverRest(t *testing.T) {
	// given
	s := newTestServer(t)
	instance := deployAndStart(t, s, []string{"Tic"})

	// when
	rec := do(t, s, http.MethodPost, "/v1/tasks", CreateTaskRequest{
		Name:      "call customer",
		Assignee:  "piggy",
		Variables: map[string]any{"orderItem": "Tic"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[Task](t, rec)

	// then
	assert.Nil(t, created.ProcessInstanceKey)
	assert.Equal(t, "piggy", created.Assignee)

	all := decode[TasksPage](t, do(t, s, http.MethodGet, "/v1/tasks", nil))
	assert.Equal(t, 2, all.PageMetadata.TotalCount)
	byInstance := decode[TasksPage](t, do(t, s, http.MethodGet, fmt.Sprintf("/v1/tasks?processInstanceKey=%d", instance.Key), nil))
	assert.Equal(t, 1, byInstance.PageMetadata.TotalCount)
	byTaskVariable := decode[TasksPage](t, do(t, s, http.MethodGet, "/v1/tasks?taskVariable=orderItem:Tic", nil))
	assert.Equal(t, 2, byTaskVariable.PageMetadata.TotalCount)
	byProcessVariable := decode[TasksPage](t, do(t, s, http.MethodGet, "/v1/tasks?processVariable=orderItem:Tic", nil))
	assert.Zero(t, byProcessVariable.PageMetadata.TotalCount)

	rec = do(t, s, http.MethodPost, fmt.Sprintf("/v1/tasks/%d/complete", created.Key), CompleteTaskRequest{Variables: map[string]any{"reached": true}})
	require.Equal(t, http.StatusNoContent, rec.Code)
	stored := decode[Task](t, do(t, s, http.MethodGet, fmt.Sprintf("/v1/tasks/%d", created.Key), nil))
	assert.Equal(t, "COMPLETED", stored.State)
	assert.Equal(t, true, stored.Variables["reached"])
}

func TestSystemEndpoints(t *testing.T) {
	// given
	s := newTestServer(t)
	deployAndStart(t, s, []string{"Tic"})

	// when
	rec := do(t, s, http.MethodGet, "/system/status", nil)

	// then
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[SystemStatus](t, rec)
	assert.True(t, status.Running)
	assert.Equal(t, 1, status.ActiveProcessInstances)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIdHeader))

	rec = do(t, s, http.MethodGet, "/system/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIdIsEchoed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/system/status", nil)
	req.Header.Set(middleware.RequestIdHeader, "req-1")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-1", rec.Header().Get(middleware.RequestIdHeader))
}

func TestParseVariablePredicate(t *testing.T) {
	tests := []struct {
		in    string
		name  string
		value any
		err   bool
	}{
		{in: "orderItem:Tic", name: "orderItem", value: "Tic"},
		{in: `orderItem:"Tac"`, name: "orderItem", value: "Tac"},
		{in: "count:2", name: "count", value: json.Number("2")},
		{in: "customerId:9007199254740993", name: "customerId", value: json.Number("9007199254740993")},
		{in: "orderItems:[1,2]", name: "orderItems", value: []any{json.Number("1"), json.Number("2")}},
		{in: "pair:1 2", name: "pair", value: "1 2"},
		{in: "approved:true", name: "approved", value: true},
		{in: "note:a:b", name: "note", value: "a:b"},
		{in: "missing", err: true},
		{in: ":value", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, value, err := parseVariablePredicate(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.value, value)
		})
	}
}
