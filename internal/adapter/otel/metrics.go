package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "ticketpilot"

// Metrics holds all TicketPilot metric instruments.
type Metrics struct {
	RunsStarted     metric.Int64Counter
	RunsCompleted   metric.Int64Counter
	RunsFailed      metric.Int64Counter
	StepRetries     metric.Int64Counter
	ToolCalls       metric.Int64Counter
	CheckpointWaits metric.Int64Counter
	RunDuration     metric.Float64Histogram
	RunCost         metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RunsStarted, err = meter.Int64Counter("ticketpilot.runs.started",
		metric.WithDescription("Number of runs started"))
	if err != nil {
		return nil, err
	}

	m.RunsCompleted, err = meter.Int64Counter("ticketpilot.runs.completed",
		metric.WithDescription("Number of runs completed"))
	if err != nil {
		return nil, err
	}

	m.RunsFailed, err = meter.Int64Counter("ticketpilot.runs.failed",
		metric.WithDescription("Number of runs failed"))
	if err != nil {
		return nil, err
	}

	m.StepRetries, err = meter.Int64Counter("ticketpilot.steps.retries",
		metric.WithDescription("Number of step retry attempts"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("ticketpilot.toolcalls",
		metric.WithDescription("Number of tool calls dispatched"))
	if err != nil {
		return nil, err
	}

	m.CheckpointWaits, err = meter.Int64Counter("ticketpilot.checkpoints.requested",
		metric.WithDescription("Number of checkpoint suspensions"))
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram("ticketpilot.run.duration_seconds",
		metric.WithDescription("Run duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.RunCost, err = meter.Float64Histogram("ticketpilot.run.cost_usd",
		metric.WithDescription("Run cost in USD"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
