// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package rest

import (
	"time"

	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
)

type ApiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type PageMetadata struct {
	Page       int `json:"page"`
	Size       int `json:"size"`
	Count      int `json:"count"`
	TotalCount int `json:"totalCount"`
}

type ProcessDefinitionSimple struct {
	Key           int64  `json:"key"`
	BpmnProcessId string `json:"bpmnProcessId"`
	Version       int    `json:"version"`
	ResourceName  string `json:"resourceName"`
}

type CreateProcessInstanceRequest struct {
	ProcessDefinitionKey *int64         `json:"processDefinitionKey,omitempty"`
	BpmnProcessId        *string        `json:"bpmnProcessId,omitempty"`
	Variables            map[string]any `json:"variables,omitempty"`
}

type ProcessInstance struct {
	Key                  int64          `json:"key"`
	ProcessDefinitionKey int64          `json:"processDefinitionKey"`
	BpmnProcessId        string         `json:"bpmnProcessId"`
	State                string         `json:"state"`
	CreatedAt            time.Time      `json:"createdAt"`
	Variables            map[string]any `json:"variables"`
}

type CreateTaskRequest struct {
	Name      string         `json:"name"`
	Assignee  string         `json:"assignee,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

type CompleteTaskRequest struct {
	Variables map[string]any `json:"variables,omitempty"`
}

type Task struct {
	Key                  int64          `json:"key"`
	Name                 string         `json:"name"`
	TaskDefinitionKey    string         `json:"taskDefinitionKey,omitempty"`
	ProcessInstanceKey   *int64         `json:"processInstanceKey,omitempty"`
	ProcessDefinitionKey *int64         `json:"processDefinitionKey,omitempty"`
	Assignee             string         `json:"assignee,omitempty"`
	State                string         `json:"state"`
	CreatedAt            time.Time      `json:"createdAt"`
	Variables            map[string]any `json:"variables,omitempty"`
}

type TasksPage struct {
	Items        []Task       `json:"items"`
	PageMetadata PageMetadata `json:"pageMetadata"`
}

type SystemStatus struct {
	Name                   string `json:"name"`
	Running                bool   `json:"running"`
	ActiveProcessInstances int    `json:"activeProcessInstances"`
}

func toProcessDefinitionSimple(def runtime.ProcessDefinition) ProcessDefinitionSimple {
	return ProcessDefinitionSimple{
		Key:           def.Key,
		BpmnProcessId: def.BpmnProcessId,
		Version:       int(def.Version),
		ResourceName:  def.BpmnResourceName,
	}
}

func toProcessInstance(instance runtime.ProcessInstance) ProcessInstance {
	return ProcessInstance{
		Key:                  instance.Key,
		ProcessDefinitionKey: instance.Definition.Key,
		BpmnProcessId:        instance.Definition.BpmnProcessId,
		State:                string(instance.State),
		CreatedAt:            instance.CreatedAt,
		Variables:            instance.Scope().LocalVariables(),
	}
}

func toTask(task runtime.Task, variables map[string]any) Task {
	return Task{
		Key:                  task.Key,
		Name:                 task.Name,
		TaskDefinitionKey:    task.TaskDefinitionKey,
		ProcessInstanceKey:   task.ProcessInstanceKey,
		ProcessDefinitionKey: task.ProcessDefinitionKey,
		Assignee:             task.Assignee,
		State:                string(task.State),
		CreatedAt:            task.CreatedAt,
		Variables:            variables,
	}
}
