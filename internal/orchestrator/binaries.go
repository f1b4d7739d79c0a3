package orchestrator

import "github.com/madhatter5501/agentkanbd/internal/kanban"

// DefaultBinaryResolver resolves agent binaries from a project's
// per-agent overrides, falling back to the engine-wide configured
// binaries for "cursor" and everything else ("claude").
type DefaultBinaryResolver struct {
	ClaudeBinary string
	CursorBinary string
}

func (r *DefaultBinaryResolver) Resolve(project *kanban.Project, agentKind string) string {
	if project != nil && project.AgentBinaryOverrides != nil {
		if override, ok := project.AgentBinaryOverrides[agentKind]; ok && override != "" {
			return override
		}
	}
	if agentKind == "cursor" {
		return r.CursorBinary
	}
	return r.ClaudeBinary
}
