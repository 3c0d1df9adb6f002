// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pbinitiative/zentask/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
)

// LoadFromFile loads a given BPMN file by filename into the engine
// and returns ProcessDefinition details for the deployed workflow
func (engine *Engine) LoadFromFile(ctx context.Context, filename string) (*runtime.ProcessDefinition, error) {
	xmlData, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load from file: %w", err)
	}
	return engine.load(ctx, xmlData, filepath.Base(filename))
}

// LoadFromBytes loads a given BPMN file by xmlData byte array into the engine
// and returns ProcessDefinition details for the deployed workflow
func (engine *Engine) LoadFromBytes(ctx context.Context, xmlData []byte, resourceName string) (*runtime.ProcessDefinition, error) {
	def, err := engine.load(ctx, xmlData, resourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to load from bytes: %w", err)
	}
	return def, nil
}

// Deploy registers definitions built in code, see the model package.
// They are serialized to BPMN XML first, so versioning behaves exactly like for loaded files.
func (engine *Engine) Deploy(ctx context.Context, definitions *bpmn20.TDefinitions) (*runtime.ProcessDefinition, error) {
	xmlData, err := xml.MarshalIndent(definitions, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal process %s: %w", definitions.Process.Id, err)
	}
	return engine.load(ctx, xmlData, definitions.Process.Id+".bpmn")
}

func (engine *Engine) load(ctx context.Context, xmlData []byte, resourceName string) (*runtime.ProcessDefinition, error) {
	md5sum := md5.Sum(xmlData)
	var definitions bpmn20.TDefinitions
	err := xml.Unmarshal(xmlData, &definitions)
	if err != nil {
		return nil, &BpmnEngineUnmarshallingError{Msg: "failed to unmarshal xml data", Err: err}
	}
	if definitions.Process.Id == "" {
		return nil, &BpmnEngineUnmarshallingError{Msg: "invalid process definition", Err: errors.New("process has no id")}
	}

	engine.definitionLock.Lock()
	defer engine.definitionLock.Unlock()

	processInfo := runtime.ProcessDefinition{
		Version:          1,
		BpmnProcessId:    definitions.Process.Id,
		Key:              engine.generateKey(),
		Definitions:      definitions,
		BpmnData:         string(xmlData),
		BpmnResourceName: resourceName,
		BpmnChecksum:     md5sum,
	}
	processes, err := engine.FindProcessesById(ctx, definitions.Process.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to load processes by id %s: %w", definitions.Process.Id, err)
	}
	if len(processes) > 0 {
		latestIndex := len(processes) - 1
		if processes[latestIndex].BpmnChecksum == md5sum {
			return &processes[latestIndex], nil
		}
		processInfo.Version = processes[latestIndex].Version + 1
	}
	err = engine.persistence.SaveProcessDefinition(ctx, processInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to save process definition: %w", err)
	}
	engine.definitionCache.Remove(processInfo.BpmnProcessId)

	engine.logger.Debug("process definition deployed", "processId", processInfo.BpmnProcessId, "version", processInfo.Version, "key", processInfo.Key)
	engine.exportNewProcessEvent(processInfo, xmlData, resourceName, hex.EncodeToString(md5sum[:]))
	return &processInfo, nil
}

// FindProcessesById returns all versions of the process, ordered by version
func (engine *Engine) FindProcessesById(ctx context.Context, bpmnProcessId string) ([]runtime.ProcessDefinition, error) {
	return engine.persistence.FindProcessDefinitionsById(ctx, bpmnProcessId)
}

// FindLatestProcessDefinitionById returns the highest deployed version of the process
func (engine *Engine) FindLatestProcessDefinitionById(ctx context.Context, bpmnProcessId string) (runtime.ProcessDefinition, error) {
	if def, ok := engine.definitionCache.Get(bpmnProcessId); ok {
		return def, nil
	}
	def, err := engine.persistence.FindLatestProcessDefinitionById(ctx, bpmnProcessId)
	if err != nil {
		return runtime.ProcessDefinition{}, err
	}
	engine.definitionCache.Add(bpmnProcessId, def)
	return def, nil
}
