package ir

import (
	"github.com/pkg/errors"
)

// Pass represents a single transformation or check over a program
type Pass interface {
	Name() string
	Description() string
	Apply(program *Program) (bool, error) // Returns true if changes were made
}

// Pipeline manages the sequence of passes
type Pipeline struct {
	passes []Pass
}

// NewPipeline creates a pipeline running passes in the given order
func NewPipeline(passes ...Pass) *Pipeline {
	pipeline := &Pipeline{}
	for _, pass := range passes {
		pipeline.AddPass(pass)
	}
	return pipeline
}

// AddPass adds a pass to the pipeline
func (p *Pipeline) AddPass(pass Pass) {
	p.passes = append(p.passes, pass)
}

// Passes returns the passes in execution order
func (p *Pipeline) Passes() []Pass {
	return p.passes
}

// Run executes all passes on the program and stops at the first failure.
// It reports whether any pass changed the program.
func (p *Pipeline) Run(program *Program) (bool, error) {
	log.Infof("running %d passes on program %q", len(p.passes), program.Name)

	changed := false
	for _, pass := range p.passes {
		log.Debugf("  - %s: %s", pass.Name(), pass.Description())
		passChanged, err := pass.Apply(program)
		if err != nil {
			return changed, errors.Wrapf(err, "pass %s", pass.Name())
		}
		if passChanged {
			log.Debugf("    %s changed the program", pass.Name())
			changed = true
		} else {
			log.Debugf("    %s: no changes needed", pass.Name())
		}
	}
	return changed, nil
}
