package telemetry

// Semantic convention keys for Muster-specific attributes
const (
	// Issue attributes
	KeyIssueID    = "muster.issue.id"
	KeyIssueState = "muster.issue.state"
	KeyOrgID      = "muster.org.id"

	// Plan attributes
	KeyStepNumber = "muster.plan.step"
	KeyStepCount  = "muster.plan.steps"

	// PR attributes
	KeyPRKey = "muster.pr.key"
	KeyPRURL = "muster.pr.url"

	// Agent attributes
	KeyWorkDir      = "muster.agent.workdir"
	KeyPromptLength = "muster.agent.prompt_length"

	// Error attributes
	KeyErrorType = "muster.error.type"
)
