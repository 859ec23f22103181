package engine

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationResult describes problems found in a pipeline topology.
type ValidationResult struct {
	Status   string            `json:"validation_status"` // valid, warnings, errors
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
	// Order lists component ids with every component after its inputs.
	Order []string `json:"order,omitempty"`
}

// ValidationIssue is a single topology problem.
type ValidationIssue struct {
	Type        string   `json:"type"`     // unknown_input, cycle, no_sources, ...
	Severity    string   `json:"severity"` // error, warning
	Component   string   `json:"component"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// OK reports whether the topology can run.
func (r *ValidationResult) OK() bool { return len(r.Errors) == 0 }

// Error summarizes the error issues.
func (r *ValidationResult) Error() string {
	msgs := make([]string, len(r.Errors))
	for i, issue := range r.Errors {
		msgs[i] = fmt.Sprintf("%s: %s", issue.Component, issue.Message)
	}
	return "invalid pipeline: " + strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(issue ValidationIssue) {
	issue.Severity = "error"
	r.Errors = append(r.Errors, issue)
}

func (r *ValidationResult) addWarning(issue ValidationIssue) {
	issue.Severity = "warning"
	r.Warnings = append(r.Warnings, issue)
}

// validate checks the node graph: every input exists, sources take no
// inputs, other components take at least one, and the graph is acyclic.
func validate(nodes map[string]*node) *ValidationResult {
	result := &ValidationResult{Status: "valid", Errors: []ValidationIssue{}, Warnings: []ValidationIssue{}}

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sources := 0
	consumers := make(map[string]int, len(nodes))
	for _, id := range ids {
		n := nodes[id]
		if n.stage == stageSource {
			sources++
			continue
		}
		if len(n.inputs) == 0 {
			result.addError(ValidationIssue{
				Type:        "no_inputs",
				Component:   id,
				Message:     fmt.Sprintf("%s has no inputs", n.stage),
				Suggestions: []string{"List at least one upstream component id in inputs"},
			})
		}
		for _, in := range n.inputs {
			up, ok := nodes[in]
			switch {
			case !ok:
				result.addError(ValidationIssue{
					Type:        "unknown_input",
					Component:   id,
					Message:     fmt.Sprintf("input %q does not exist", in),
					Suggestions: []string{"Check the component id spelling", "Define the input as a source or transform"},
				})
			case up.stage == stageSink:
				result.addError(ValidationIssue{
					Type:      "sink_as_input",
					Component: id,
					Message:   fmt.Sprintf("input %q is a sink and produces nothing", in),
				})
			default:
				consumers[in]++
			}
		}
	}

	if sources == 0 {
		result.addError(ValidationIssue{
			Type:      "no_sources",
			Component: "(pipeline)",
			Message:   "pipeline has no sources",
		})
	}

	for _, id := range ids {
		if nodes[id].stage != stageSink && consumers[id] == 0 {
			result.addWarning(ValidationIssue{
				Type:        "dangling_output",
				Component:   id,
				Message:     "output is not consumed; its events will be dropped",
				Suggestions: []string{"Add this component to a transform or sink inputs"},
			})
		}
	}

	order, cycle := topoSort(nodes, ids)
	if len(cycle) > 0 {
		result.addError(ValidationIssue{
			Type:      "cycle",
			Component: cycle[0],
			Message:   "components form a cycle: " + strings.Join(cycle, ", "),
		})
	} else {
		result.Order = order
	}

	switch {
	case len(result.Errors) > 0:
		result.Status = "errors"
	case len(result.Warnings) > 0:
		result.Status = "warnings"
	}
	return result
}

// topoSort orders ids by Kahn's algorithm. When a cycle exists it returns
// the ids that could not be ordered.
func topoSort(nodes map[string]*node, ids []string) ([]string, []string) {
	indegree := make(map[string]int, len(ids))
	for _, id := range ids {
		for _, in := range nodes[id].inputs {
			if _, ok := nodes[in]; ok {
				indegree[id]++
			}
		}
	}

	var queue, order []string
	for _, id := range ids {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, other := range ids {
			for _, in := range nodes[other].inputs {
				if in == id {
					indegree[other]--
					if indegree[other] == 0 {
						queue = append(queue, other)
					}
				}
			}
		}
	}

	if len(order) == len(ids) {
		return order, nil
	}
	var stuck []string
	for _, id := range ids {
		if indegree[id] > 0 {
			stuck = append(stuck, id)
		}
	}
	return nil, stuck
}
