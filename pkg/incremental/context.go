// Package incremental implements C5, the incremental planner+executor: it
// turns a requirements description into an ordered file plan and produces
// the project one file at a time, carrying full cross-file context into
// every prompt (spec.md §4.3).
package incremental

import (
	"sync"

	"github.com/plugincraft/forge/pkg/shared/types"
	"github.com/plugincraft/forge/pkg/validator"
)

// Context is one C5 execution's exclusive working state (spec.md §3's
// IncrementalContext). It is owned by exactly one Execute call and
// discarded on completion or abort.
type Context struct {
	mu sync.Mutex

	ProjectPath string
	PluginName  string

	order        []string
	steps        map[string]*types.FileStep
	content      map[string]string
	dependencies map[string][]string

	CompilationHistory []string
	QualityScores      []int
	AccuracyHistory    []int
	FailurePatterns    []string
	Relationships      map[string][]string
}

// NewContext builds an empty Context rooted at projectPath.
func NewContext(projectPath, pluginName string) *Context {
	return &Context{
		ProjectPath:  projectPath,
		PluginName:   pluginName,
		steps:        make(map[string]*types.FileStep),
		content:      make(map[string]string),
		dependencies: make(map[string][]string),
		Relationships: make(map[string][]string),
	}
}

// RecordFile commits a step's final content and folds its score into the
// running quality aggregate.
func (c *Context) RecordFile(step *types.FileStep, content string, score int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.steps[step.FileName]; !exists {
		c.order = append(c.order, step.FileName)
	}
	c.steps[step.FileName] = step
	c.content[step.FileName] = content
	c.dependencies[step.FileName] = step.Dependencies
	c.QualityScores = append(c.QualityScores, score)
	c.AccuracyHistory = append(c.AccuracyHistory, score)
	for _, dep := range step.Dependencies {
		c.Relationships[dep] = append(c.Relationships[dep], step.FileName)
	}
}

// RecordFailure appends a failure-pattern entry, used by the correction
// pass and by later planning to avoid repeating known-bad approaches.
func (c *Context) RecordFailure(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FailurePatterns = append(c.FailurePatterns, pattern)
}

// Snapshot returns a defensive copy of committed file contents, in commit
// order — the form every downstream prompt and the validator consume.
func (c *Context) Snapshot() (order []string, content map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	order = append([]string(nil), c.order...)
	content = make(map[string]string, len(c.content))
	for k, v := range c.content {
		content[k] = v
	}
	return order, content
}

// ProjectContext adapts the current snapshot into validator.ProjectContext.
func (c *Context) ProjectContext() validator.ProjectContext {
	_, content := c.Snapshot()
	return validator.ProjectContext{Files: content, PluginName: c.PluginName}
}

// AverageQuality is the running mean of every committed file's score.
func (c *Context) AverageQuality() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.QualityScores) == 0 {
		return 0
	}
	var sum int
	for _, s := range c.QualityScores {
		sum += s
	}
	return float64(sum) / float64(len(c.QualityScores))
}
