// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zentask/internal/config"
	"github.com/pbinitiative/zentask/internal/log"
	"github.com/pbinitiative/zentask/internal/rest/middleware"
	"github.com/pbinitiative/zentask/pkg/bpmn"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	PaginationDefaultPage = 1
	PaginationDefaultSize = 10

	defaultResourceName = "deployment.bpmn"
)

type Server struct {
	engine *bpmn.Engine
	addr   string
	server *http.Server
}

func NewServer(engine *bpmn.Engine, conf config.Config) *Server {
	r := chi.NewRouter()
	s := Server{
		engine: engine,
		addr:   conf.HttpServer.Addr,
		server: &http.Server{
			ReadHeaderTimeout: 3 * time.Second,
			Handler:           r,
			Addr:              conf.HttpServer.Addr,
		},
	}
	r.Use(middleware.RequestId())
	r.Use(middleware.Cors())
	r.Use(middleware.Opentelemetry(conf))
	r.Use(middleware.StripEmptyQueryParams())

	r.Route(strings.TrimSuffix(conf.HttpServer.Context, "/")+"/v1", func(r chi.Router) {
		r.Post("/process-definitions", s.CreateProcessDefinition)
		r.Get("/process-definitions/{bpmnProcessId}", s.GetProcessDefinitionVersions)
		r.Post("/process-instances", s.CreateProcessInstance)
		r.Get("/process-instances/{processInstanceKey}", s.GetProcessInstance)
		r.Post("/process-instances/{processInstanceKey}/cancel", s.CancelProcessInstance)
		r.Get("/tasks", s.GetTasks)
		r.Post("/tasks", s.CreateTask)
		r.Get("/tasks/{taskKey}", s.GetTask)
		r.Post("/tasks/{taskKey}/complete", s.CompleteTask)
	})
	// register system endpoints
	r.Route("/system", func(r chi.Router) {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
		r.Get("/status", s.GetStatus)
	})
	return &s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() (net.Listener, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	log.Info("ZenTask REST server listening on %s", listener.Addr())
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Error starting server: %s", err)
		}
	}()
	return listener, nil
}

func (s *Server) Stop(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		log.Error("Error stopping server: %s", err)
	}
}

func (s *Server) CreateProcessDefinition(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ApiError{Message: err.Error(), Type: "BAD_REQUEST"})
		return
	}
	resourceName := r.URL.Query().Get("resourceName")
	if resourceName == "" {
		resourceName = defaultResourceName
	}
	definition, err := s.engine.LoadFromBytes(r.Context(), data, resourceName)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProcessDefinitionSimple(*definition))
}

func (s *Server) GetProcessDefinitionVersions(w http.ResponseWriter, r *http.Request) {
	definitions, err := s.engine.FindProcessesById(r.Context(), chi.URLParam(r, "bpmnProcessId"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	items := make([]ProcessDefinitionSimple, 0, len(definitions))
	for _, def := range definitions {
		items = append(items, toProcessDefinitionSimple(def))
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) CreateProcessInstance(w http.ResponseWriter, r *http.Request) {
	var request CreateProcessInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, r, http.StatusBadRequest, ApiError{Message: err.Error(), Type: "BAD_REQUEST"})
		return
	}
	var instance *runtime.ProcessInstance
	var err error
	switch {
	case request.ProcessDefinitionKey != nil:
		instance, err = s.engine.CreateInstanceByKey(r.Context(), *request.ProcessDefinitionKey, request.Variables)
	case request.BpmnProcessId != nil:
		instance, err = s.engine.CreateInstanceById(r.Context(), *request.BpmnProcessId, request.Variables)
	default:
		writeError(w, r, http.StatusBadRequest, ApiError{
			Message: "either processDefinitionKey or bpmnProcessId is required",
			Type:    "BAD_REQUEST",
		})
		return
	}
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProcessInstance(*instance))
}

func (s *Server) GetProcessInstance(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r, "processInstanceKey")
	if !ok {
		return
	}
	instance, err := s.engine.FindProcessInstance(r.Context(), key)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProcessInstance(instance))
}

func (s *Server) CancelProcessInstance(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r, "processInstanceKey")
	if !ok {
		return
	}
	if err := s.engine.CancelInstanceByKey(r.Context(), key); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTasks translates query parameters into a task query.
// processVariable and taskVariable take name:value pairs, the value is decoded as JSON when possible
// so that count:2 matches a number and orderItem:Tic matches a string.
// With single=true the unique match is returned, 204 when nothing matches.
func (s *Server) GetTasks(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := s.engine.NewTaskQuery()
	if v := params.Get("processInstanceKey"); v != "" {
		key, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, ApiError{Message: fmt.Sprintf("invalid processInstanceKey %q", v), Type: "BAD_REQUEST"})
			return
		}
		query.ProcessInstanceKey(key)
	}
	if v := params.Get("taskDefinitionKey"); v != "" {
		query.TaskDefinitionKey(v)
	}
	if v := params.Get("state"); v != "" {
		if strings.EqualFold(v, "any") {
			v = ""
		}
		query.State(runtime.ActivityState(strings.ToUpper(v)))
	}
	for _, p := range params["processVariable"] {
		name, value, err := parseVariablePredicate(p)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, ApiError{Message: err.Error(), Type: "BAD_REQUEST"})
			return
		}
		query.ProcessVariableValueEquals(name, value)
	}
	for _, p := range params["taskVariable"] {
		name, value, err := parseVariablePredicate(p)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, ApiError{Message: err.Error(), Type: "BAD_REQUEST"})
			return
		}
		query.TaskVariableValueEquals(name, value)
	}

	if params.Get("single") == "true" {
		task, err := query.SingleResult(r.Context())
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		if task == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, toTask(*task, nil))
		return
	}

	page, size, err := pagination(params.Get("page"), params.Get("size"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ApiError{Message: err.Error(), Type: "BAD_REQUEST"})
		return
	}
	tasks, err := query.List(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	totalCount := len(tasks)
	startIndex := min((page-1)*size, totalCount)
	endIndex := min(startIndex+size, totalCount)
	items := make([]Task, 0, endIndex-startIndex)
	for _, task := range tasks[startIndex:endIndex] {
		items = append(items, toTask(task, nil))
	}
	writeJSON(w, http.StatusOK, TasksPage{
		Items: items,
		PageMetadata: PageMetadata{
			Page:       page,
			Size:       size,
			Count:      len(items),
			TotalCount: totalCount,
		},
	})
}

func (s *Server) CreateTask(w http.ResponseWriter, r *http.Request) {
	var request CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, r, http.StatusBadRequest, ApiError{Message: err.Error(), Type: "BAD_REQUEST"})
		return
	}
	task := s.engine.NewTask(request.Name, request.Variables)
	task.Assignee = request.Assignee
	if err := s.engine.SaveTask(r.Context(), task); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTask(task, task.Variables))
}

// GetTask returns the task with the variables of its own scope
func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r, "taskKey")
	if !ok {
		return
	}
	task, err := s.engine.FindTaskByKey(r.Context(), key)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	var variables map[string]any
	if task.State == runtime.ActivityStateActive || task.IsStandalone() {
		variables, err = s.engine.TaskLocalVariables(r.Context(), key)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toTask(task, variables))
}

func (s *Server) CompleteTask(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r, "taskKey")
	if !ok {
		return
	}
	var request CompleteTaskRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, r, http.StatusBadRequest, ApiError{Message: err.Error(), Type: "BAD_REQUEST"})
			return
		}
	}
	if err := s.engine.CompleteTask(r.Context(), key, request.Variables); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := SystemStatus{
		Name:    s.engine.Name(),
		Running: s.engine.IsRunning(),
	}
	if status.Running {
		instances, err := s.engine.FindActiveProcessInstances(r.Context())
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		status.ActiveProcessInstances = len(instances)
	}
	writeJSON(w, http.StatusOK, status)
}

func parseVariablePredicate(p string) (string, any, error) {
	name, raw, found := strings.Cut(p, ":")
	if !found || name == "" {
		return "", nil, fmt.Errorf("invalid variable predicate %q, expected name:value", p)
	}
	// numbers stay json.Number so large ids compare exactly
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil || dec.More() {
		return name, raw, nil
	}
	return name, value, nil
}

func keyParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	key, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ApiError{Message: fmt.Sprintf("invalid %s %q", name, raw), Type: "BAD_REQUEST"})
		return 0, false
	}
	return key, true
}

func pagination(pageParam, sizeParam string) (int, int, error) {
	page, size := PaginationDefaultPage, PaginationDefaultSize
	var err error
	if pageParam != "" {
		if page, err = strconv.Atoi(pageParam); err != nil || page < 1 {
			return 0, 0, fmt.Errorf("invalid page %q", pageParam)
		}
	}
	if sizeParam != "" {
		if size, err = strconv.Atoi(sizeParam); err != nil || size < 1 {
			return 0, 0, fmt.Errorf("invalid size %q", sizeParam)
		}
	}
	return page, size, nil
}

// writeEngineError maps engine errors onto status codes
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notUnique     *bpmn.NotUniqueResultError
		unmarshalling *bpmn.BpmnEngineUnmarshallingError
		expression    *bpmn.ExpressionEvaluationError
		unknownScope  *bpmn.UnknownScopeError
		engineErr     *bpmn.BpmnEngineError
	)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, ApiError{Message: err.Error(), Type: "NOT_FOUND"})
	case errors.As(err, &notUnique):
		writeError(w, r, http.StatusConflict, ApiError{Message: err.Error(), Type: "NOT_UNIQUE"})
	case errors.As(err, &unmarshalling):
		writeError(w, r, http.StatusBadRequest, ApiError{Message: err.Error(), Type: "BAD_REQUEST"})
	case errors.As(err, &expression):
		writeError(w, r, http.StatusUnprocessableEntity, ApiError{Message: err.Error(), Type: "EXPRESSION_EVALUATION"})
	case errors.As(err, &unknownScope):
		writeError(w, r, http.StatusConflict, ApiError{Message: err.Error(), Type: "UNKNOWN_SCOPE"})
	case errors.As(err, &engineErr):
		writeError(w, r, http.StatusConflict, ApiError{Message: err.Error(), Type: "CONFLICT"})
	default:
		log.Errorf(r.Context(), "request %s %s failed: %s", r.Method, r.URL.Path, err)
		writeError(w, r, http.StatusInternalServerError, ApiError{Message: err.Error(), Type: "ERROR"})
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, resp interface{}) {
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, resp interface{}) {
	body, err := json.Marshal(resp)
	if err != nil {
		log.Error("Server error: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
