package promptbuilder

const mainObjective = `# Agent Specific Objective

You are a task-solving agent that uses tools step-by-step to answer the user's question. Your goal is to provide complete, accurate and well-reasoned answers using additional tools.`

const agentBrowsingObjective = `# Agent Specific Objective

You are an agent that performs the task of searching and browsing the web for specific information and generating the desired answer. Your task is to retrieve reliable, factual, and verifiable information that fills in knowledge gaps.
Do not infer, speculate, summarize broadly, or attempt to fill in missing parts yourself. Only return factual content.`

const genericDelegateObjective = `# Agent Specific Objective

You are a delegate agent invoked by a main agent to carry out one focused sub-task. Use the tools available to you to complete it, then report your findings precisely; do not speculate beyond what you can verify.`

// roleObjectives is the role-template registry (SPEC_FULL §4.5): the
// distilled spec names only "main" and "agent-browsing" as example roles,
// but AgentConfig.SubAgents permits arbitrary names, so any name not found
// here falls back to genericDelegateObjective rather than erroring.
var roleObjectives = map[string]string{
	"main":           mainObjective,
	"agent-browsing": agentBrowsingObjective,
	"browsing-agent": agentBrowsingObjective,
}

// ObjectiveFor returns the objective paragraph for roleName, falling back to
// a generic delegate paragraph for unrecognized sub-agent role names.
func ObjectiveFor(roleName string) string {
	if p, ok := roleObjectives[roleName]; ok {
		return p
	}
	return genericDelegateObjective
}
