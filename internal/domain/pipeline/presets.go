package pipeline

// Step names of the built-in ticket pipeline.
const (
	StepRecon     = "recon"
	StepImplement = "implement"
	StepMerge     = "merge"
)

// Default returns the built-in three-step ticket pipeline:
// recon (investigate the project) → implement (test-driven loop) →
// merge (rebase and integrate). Only the merge step is checkpoint-gated;
// gating is policy, not structure, so custom definitions may gate any step.
func Default() Definition {
	return Definition{
		ID: "ticket-default",
		Steps: []Step{
			{Name: StepRecon},
			{Name: StepImplement},
			{Name: StepMerge, Gated: true},
		},
	}
}
