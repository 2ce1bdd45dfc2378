package cmd

import (
	"fmt"
	"imageforge/pkg/api"
	"strconv"
	"strings"
)

// parseSteps converts --op flag values into pipeline steps.
// Each value is "kind" or "kind:key=value,key=value", e.g.
// "resize:width=800,height=600" or "grayscale".
func parseSteps(specs []string) ([]api.PipelineStep, error) {
	steps := make([]api.PipelineStep, 0, len(specs))
	for _, spec := range specs {
		kind, rest, hasParams := strings.Cut(spec, ":")
		kind = strings.TrimSpace(kind)
		if kind == "" {
			return nil, fmt.Errorf("empty operation in %q", spec)
		}

		step := api.PipelineStep{Kind: kind}
		if hasParams && rest != "" {
			step.Params = make(map[string]any)
			for _, pair := range strings.Split(rest, ",") {
				key, value, ok := strings.Cut(pair, "=")
				key = strings.TrimSpace(key)
				if !ok || key == "" {
					return nil, fmt.Errorf("invalid parameter %q in %q, expected key=value", pair, spec)
				}
				step.Params[key] = parseParamValue(strings.TrimSpace(value))
			}
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// parseParamValue keeps numeric and boolean parameters typed so the
// controller sees the same JSON types a structured client would send.
func parseParamValue(value string) any {
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}
