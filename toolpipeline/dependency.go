package toolpipeline

import (
	"context"

	"github.com/agentrt/runtime/planner"
	"github.com/agentrt/runtime/tools"
)

// executeDependency topologically sorts calls using dependencies (edges
// From -> To meaning To depends on From), executes phases in order, and
// within a phase runs up to config.MaxConcurrency in parallel. failFast
// aborts subsequent phases once any entry in a completed phase failed.
func (p *Pipeline) executeDependency(ctx context.Context, calls []planner.ToolCallAction, deps []planner.Dependency, cfg planner.DependencyConfig, correlationID string) []planner.ToolEntry {
	phases, order := topoPhases(calls, deps)

	byName := make(map[tools.Ident]planner.ToolCallAction, len(calls))
	for _, c := range calls {
		byName[c.ToolName] = c
	}

	results := make(map[tools.Ident]planner.ToolEntry, len(calls))
	aborted := false
	for _, phase := range phases {
		if aborted {
			break
		}
		phaseCalls := make([]planner.ToolCallAction, 0, len(phase))
		for _, name := range phase {
			phaseCalls = append(phaseCalls, byName[name])
		}
		entries := p.executeParallel(ctx, phaseCalls, cfg.MaxConcurrency, cfg.FailFast, correlationID)
		for _, entry := range entries {
			results[entry.ToolName] = entry
			if cfg.FailFast && entry.Err != nil {
				aborted = true
			}
		}
	}

	out := make([]planner.ToolEntry, 0, len(order))
	for _, name := range order {
		if entry, ok := results[name]; ok {
			out = append(out, entry)
		}
	}
	return out
}

// topoPhases groups calls into dependency-ordered phases (Kahn's
// algorithm layered by in-degree) and also returns the original input
// order, so callers can reassemble results preserving it.
func topoPhases(calls []planner.ToolCallAction, deps []planner.Dependency) ([][]tools.Ident, []tools.Ident) {
	order := make([]tools.Ident, 0, len(calls))
	inDegree := make(map[tools.Ident]int, len(calls))
	edges := make(map[tools.Ident][]tools.Ident)

	for _, c := range calls {
		order = append(order, c.ToolName)
		inDegree[c.ToolName] = 0
	}
	for _, d := range deps {
		if _, ok := inDegree[d.To]; !ok {
			continue
		}
		edges[d.From] = append(edges[d.From], d.To)
		inDegree[d.To]++
	}

	remaining := make(map[tools.Ident]int, len(inDegree))
	for k, v := range inDegree {
		remaining[k] = v
	}

	var phases [][]tools.Ident
	placed := make(map[tools.Ident]bool, len(calls))
	for len(placed) < len(calls) {
		var phase []tools.Ident
		for _, name := range order {
			if placed[name] {
				continue
			}
			if remaining[name] == 0 {
				phase = append(phase, name)
			}
		}
		if len(phase) == 0 {
			// Cycle (or unresolved reference): flush whatever remains as
			// a single final phase rather than looping forever.
			for _, name := range order {
				if !placed[name] {
					phase = append(phase, name)
				}
			}
		}
		for _, name := range phase {
			placed[name] = true
			for _, next := range edges[name] {
				remaining[next]--
			}
		}
		phases = append(phases, phase)
	}
	return phases, order
}
