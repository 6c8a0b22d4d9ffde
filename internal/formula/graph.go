package formula

import (
	"github.com/okovacs/pulseboard/internal/dataset"
)

// candidateSlug stands in for a field that has no slug yet (new, unsaved)
const candidateSlug = "(new field)"

// findCycle builds the dependency graph across all active calculated fields,
// substituting the candidate formula for the candidate's own slug, and walks
// it depth-first. It returns the cycle path (ending where it started) if the
// candidate sits on a cycle, nil otherwise.
func findCycle(fields []dataset.CalculatedField, selfSlug, selfFormula string) []string {
	if selfSlug == "" {
		selfSlug = candidateSlug
	}

	slugs := make(map[string]bool, len(fields)+1)
	for _, f := range fields {
		if f.IsActive {
			slugs[f.Slug] = true
		}
	}
	slugs[selfSlug] = true

	graph := make(map[string][]string, len(fields)+1)
	for _, f := range fields {
		if !f.IsActive || f.Slug == selfSlug {
			continue
		}
		graph[f.Slug] = calcRefs(f.Formula, slugs)
	}
	graph[selfSlug] = calcRefs(selfFormula, slugs)

	return walk(graph, selfSlug, selfSlug, map[string]bool{}, []string{selfSlug})
}

// calcRefs extracts the referenced slugs that are themselves calculated fields
func calcRefs(formulaStr string, slugs map[string]bool) []string {
	tokens, err := Tokenize(formulaStr)
	if err != nil {
		// a formula that doesn't tokenize contributes no edges; its own
		// validation reports the syntax failure
		return nil
	}

	var refs []string
	for _, ref := range References(tokens) {
		if slugs[ref] {
			refs = append(refs, ref)
		}
	}
	return refs
}

// walk depth-first searches for a path from node back to target
func walk(graph map[string][]string, node, target string, visited map[string]bool, path []string) []string {
	for _, next := range graph[node] {
		if next == target {
			return append(path, next)
		}
		if visited[next] {
			continue
		}
		visited[next] = true
		if cycle := walk(graph, next, target, visited, append(path, next)); cycle != nil {
			return cycle
		}
	}
	return nil
}
