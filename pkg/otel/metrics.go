package otel

import (
	"errors"

	"go.opentelemetry.io/otel/metric"
)

type EngineMetrics struct {
	ProcessesStarted metric.Int64Counter
	ProcessesEnded   metric.Int64Counter
	ProcessesRunning metric.Int64UpDownCounter
	TasksCreated     metric.Int64Counter
	TasksCompleted   metric.Int64Counter
	TasksWithdrawn   metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*EngineMetrics, error) {
	var errJoin error

	processesStartedTotal, err := meter.Int64Counter("processes_started", metric.WithDescription("Number of processes started"))
	errJoin = errors.Join(errJoin, err)

	processesCompletedTotal, err := meter.Int64Counter("processes_completed", metric.WithDescription("Number of processes completed"))
	errJoin = errors.Join(errJoin, err)

	processesRunning, err := meter.Int64UpDownCounter("processes_running", metric.WithDescription("Number of processes currently running"))
	errJoin = errors.Join(errJoin, err)

	tasksCreated, err := meter.Int64Counter("tasks_created", metric.WithDescription("Number of user tasks created"))
	errJoin = errors.Join(errJoin, err)

	tasksCompleted, err := meter.Int64Counter("tasks_completed", metric.WithDescription("Number of user tasks completed"))
	errJoin = errors.Join(errJoin, err)

	tasksWithdrawn, err := meter.Int64Counter("tasks_withdrawn", metric.WithDescription("Number of user tasks withdrawn by a completion condition or cancellation"))
	errJoin = errors.Join(errJoin, err)

	metrics := EngineMetrics{
		ProcessesStarted: processesStartedTotal,
		ProcessesEnded:   processesCompletedTotal,
		ProcessesRunning: processesRunning,
		TasksCreated:     tasksCreated,
		TasksCompleted:   tasksCompleted,
		TasksWithdrawn:   tasksWithdrawn,
	}
	return &metrics, errJoin
}
