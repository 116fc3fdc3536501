// Package validator implements C4, the cross-file validator: seven
// additive-penalty sub-checks run against a newly generated file and the
// project's accumulated context, composed into one ValidationResult
// (spec.md §4.4).
package validator

import (
	"github.com/plugincraft/forge/pkg/shared/types"
)

// ProjectContext is the subset of IncrementalContext the validator reads:
// the other files already created, keyed by file name, plus the plugin
// name (used to tolerate packages that embed it).
type ProjectContext struct {
	Files      map[string]string
	PluginName string
}

// check is one sub-check; it appends to issues/suggestions and returns
// the penalty to subtract from the starting score of 100.
type check func(step *types.FileStep, content string, ctx ProjectContext) (penalty int, issues, suggestions []string)

var checks = []check{
	checkPackageConsistency,
	checkClassReferences,
	checkImportAnalysis,
	checkConfigConsistency,
	checkPluginDescriptorConsistency,
	checkDependencyFulfilment,
	checkStyleConsistency,
}

// Validate runs all seven sub-checks and composes the final
// ValidationResult: score = clamp(100 - Σpenalty, 0, 100); isValid ⇔
// issues is empty.
func Validate(step *types.FileStep, content string, ctx ProjectContext) types.ValidationResult {
	var (
		total       int
		issues      []string
		suggestions []string
	)
	for _, c := range checks {
		penalty, chkIssues, chkSuggestions := c(step, content, ctx)
		total += penalty
		issues = append(issues, chkIssues...)
		suggestions = append(suggestions, chkSuggestions...)
	}

	score := clamp(100-total, 0, 100)
	return types.ValidationResult{
		IsValid:     len(issues) == 0,
		Score:       score,
		Issues:      issues,
		Suggestions: suggestions,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
