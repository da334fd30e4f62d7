package orchestrator

import (
	"context"
	"strings"
)

// LiteralResolver is a minimal stand-in for the git-inspection collaborator
// that §1 explicitly treats as external and out of scope: it does not
// inspect any repository. It resolves GitBranch to itself as the commit
// (deployments that front it with a real git-aware resolver replace this
// entirely) and always proposes DefaultArchs as the required architecture
// set, leaving narrowing to the caller-supplied CreateRequest.Archs
// intersection in Orchestrator.CreatePipeline.
type LiteralResolver struct {
	DefaultArchs []string
}

func (r LiteralResolver) Resolve(_ context.Context, req ResolveRequest) (ResolveResult, error) {
	return ResolveResult{
		GitSHA:           req.GitBranch,
		RequiredArchs:    r.DefaultArchs,
		TopicDescription: strings.Join(req.Packages, ", "),
	}, nil
}
