package flow

import (
	"fmt"
	"regexp"
	"strings"

	"supreme-bot/internal/config"
)

type Kind string

const (
	KindText   Kind = "text"
	KindChoice Kind = "choice"
)

type Choice struct {
	Label       string
	Value       string
	Description string
}

// Branch jumps forward to Goto once the step is answered and Data[When] is set
// (and equals Equals, when given).
type Branch struct {
	When   string
	Equals string
	Goto   string
}

type Step struct {
	ID          string
	Prompt      string
	Placeholder string
	Kind        Kind
	Choices     []Choice
	Required    bool
	Field       string
	Extractor   string
	Pattern     string
	Branches    []Branch

	pattern *regexp.Regexp
	extract Extractor
	gotos   []int
}

func (s Step) choice(value string) (Choice, bool) {
	for _, c := range s.Choices {
		if c.Value == value {
			return c, true
		}
	}
	return Choice{}, false
}

type Definition struct {
	Name  string
	Steps []Step
	index map[string]int
}

func StepsFromConfig(items []config.StepConfig) []Step {
	steps := make([]Step, 0, len(items))
	for _, item := range items {
		step := Step{
			ID:          item.ID,
			Prompt:      item.Prompt,
			Placeholder: item.Placeholder,
			Kind:        Kind(strings.ToLower(item.Kind)),
			Required:    item.Required,
			Field:       item.Field,
			Extractor:   item.Extractor,
			Pattern:     item.Pattern,
		}
		if step.Kind == "" {
			step.Kind = KindText
		}
		for _, c := range item.Choices {
			value := c.Value
			if value == "" {
				value = c.Label
			}
			step.Choices = append(step.Choices, Choice{Label: c.Label, Value: value, Description: c.Description})
		}
		for _, b := range item.Branches {
			step.Branches = append(step.Branches, Branch{When: b.When, Equals: b.Equals, Goto: b.Goto})
		}
		steps = append(steps, step)
	}
	return steps
}

// NewDefinition validates the steps and resolves extractors, patterns and branch targets.
func NewDefinition(name string, steps []Step, extractors Extractors) (*Definition, error) {
	if extractors == nil {
		extractors = DefaultExtractors()
	}
	def := &Definition{Name: name, Steps: make([]Step, len(steps)), index: make(map[string]int, len(steps))}
	copy(def.Steps, steps)

	for i, step := range def.Steps {
		if step.ID == "" {
			return nil, fmt.Errorf("flow %s: step #%d has no id", name, i+1)
		}
		if _, dup := def.index[step.ID]; dup {
			return nil, fmt.Errorf("flow %s: duplicate step id %q", name, step.ID)
		}
		if strings.TrimSpace(step.Prompt) == "" {
			return nil, fmt.Errorf("flow %s: step %q has no prompt", name, step.ID)
		}
		def.index[step.ID] = i
	}

	for i := range def.Steps {
		step := &def.Steps[i]
		switch step.Kind {
		case KindText:
		case KindChoice:
			if len(step.Choices) == 0 {
				return nil, fmt.Errorf("flow %s: choice step %q has no choices", name, step.ID)
			}
			seen := make(map[string]bool, len(step.Choices))
			for _, c := range step.Choices {
				if seen[c.Value] {
					return nil, fmt.Errorf("flow %s: step %q has duplicate choice %q", name, step.ID, c.Value)
				}
				seen[c.Value] = true
			}
		default:
			return nil, fmt.Errorf("flow %s: step %q has unknown kind %q", name, step.ID, step.Kind)
		}

		extractorName := step.Extractor
		if extractorName == "" && step.Field != "" {
			extractorName = ExtractText
		}
		if extractorName != "" {
			fn, ok := extractors[extractorName]
			if !ok {
				return nil, fmt.Errorf("flow %s: step %q uses unknown extractor %q", name, step.ID, extractorName)
			}
			step.extract = fn
		}

		if step.Pattern != "" {
			re, err := regexp.Compile(step.Pattern)
			if err != nil {
				return nil, fmt.Errorf("flow %s: step %q pattern: %w", name, step.ID, err)
			}
			step.pattern = re
		}

		step.gotos = make([]int, len(step.Branches))
		for j, branch := range step.Branches {
			if branch.When == "" {
				return nil, fmt.Errorf("flow %s: step %q branch #%d has no condition", name, step.ID, j+1)
			}
			target, ok := def.index[branch.Goto]
			if !ok {
				return nil, fmt.Errorf("flow %s: step %q branches to unknown step %q", name, step.ID, branch.Goto)
			}
			if target <= i {
				return nil, fmt.Errorf("flow %s: step %q may only branch forward, %q is not after it", name, step.ID, branch.Goto)
			}
			step.gotos[j] = target
		}
	}
	return def, nil
}

func (d *Definition) Len() int {
	return len(d.Steps)
}

func (d *Definition) IndexOf(stepID string) (int, bool) {
	i, ok := d.index[stepID]
	return i, ok
}
