package messagequeue

// RunCreatedPayload is the schema for runs.created messages.
type RunCreatedPayload struct {
	RunID  string `json:"run_id"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

// RunStatusPayload is the schema for runs.status messages.
type RunStatusPayload struct {
	RunID       string  `json:"run_id"`
	Status      string  `json:"status"`
	CurrentStep string  `json:"current_step"`
	Error       string  `json:"error"`
	CostUSD     float64 `json:"cost_usd"`
}

// RunStepPayload is the schema for runs.step messages.
type RunStepPayload struct {
	RunID   string `json:"run_id"`
	Step    string `json:"step"`
	Attempt int    `json:"attempt"`
	Phase   string `json:"phase"` // started | finished | failed
}

// RunCompletedPayload is the schema for runs.completed messages.
type RunCompletedPayload struct {
	RunID   string  `json:"run_id"`
	Status  string  `json:"status"`
	Error   string  `json:"error"`
	CostUSD float64 `json:"cost_usd"`
}

// CheckpointRequestedPayload is the schema for checkpoints.requested messages.
type CheckpointRequestedPayload struct {
	CheckpointID string `json:"checkpoint_id"`
	RunID        string `json:"run_id"`
	Step         string `json:"step"`
}

// CheckpointDecidedPayload is the schema for checkpoints.decided messages.
type CheckpointDecidedPayload struct {
	CheckpointID string `json:"checkpoint_id"`
	RunID        string `json:"run_id"`
	Status       string `json:"status"`
	Feedback     string `json:"feedback"`
}

// TicketOutcomePayload is the schema for tickets.outcome messages.
type TicketOutcomePayload struct {
	RunID   string  `json:"run_id"`
	Source  string  `json:"source"`
	Success bool    `json:"success"`
	Error   string  `json:"error"`
	CostUSD float64 `json:"cost_usd"`
}
