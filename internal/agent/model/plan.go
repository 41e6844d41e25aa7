package model

import "time"

// ToolNeeded is one tool the planner decided the turn requires.
type ToolNeeded struct {
	Name      string `json:"name"`
	CallCount int    `json:"call_count"`
}

// PlanningResult is the structured outcome of the planning stage for a single
// turn. It is never persisted beyond the turn.
//
// InputsMissing and InputsUncertain are keyed "tool.input"; the value is the
// planner's rationale (missing) or ambiguity description (uncertain).
type PlanningResult struct {
	Reasoning       string            `json:"reasoning"`
	ToolsNeeded     []ToolNeeded      `json:"tools_needed"`
	InputsProvided  map[string]string `json:"inputs_provided"`
	InputsMissing   map[string]string `json:"inputs_missing"`
	InputsUncertain map[string]string `json:"inputs_uncertain"`

	// ParsingMetadata accumulates non-fatal parse diagnostics (bad records,
	// truncation) in the same way the planner output parser reports them.
	ParsingMetadata map[string]any `json:"parsing_metadata,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// NeedsClarification reports whether any planner input was marked uncertain.
// Uncertainty always short-circuits the turn into a clarification question.
func (p *PlanningResult) NeedsClarification() bool {
	return p != nil && len(p.InputsUncertain) > 0
}

// WantsTool reports whether the planner proposed the named tool.
func (p *PlanningResult) WantsTool(name string) bool {
	if p == nil {
		return false
	}
	for _, t := range p.ToolsNeeded {
		if t.Name == name {
			return true
		}
	}
	return false
}
