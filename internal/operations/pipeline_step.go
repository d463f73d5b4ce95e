package operations

import (
	"context"
	"fmt"

	"valuepulse/internal/pipeline"
)

// StepResult is what a step reports back through the operation context
type StepResult struct {
	Rows    int
	Outputs []string
}

func resultKey(stepID string) string { return "result:" + stepID }

// SetStepResult records a step's result on the operation
func SetStepResult(state *OperationState, stepID string, res StepResult) {
	state.SetContext(resultKey(stepID), res)
}

// GetStepResult reads a step's recorded result
func GetStepResult(state *OperationState, stepID string) (StepResult, bool) {
	v, ok := state.GetContext(resultKey(stepID))
	if !ok {
		return StepResult{}, false
	}
	res, ok := v.(StepResult)
	return res, ok
}

// PipelineStep runs a catalog pipeline as an operation step. Operation
// parameters are passed to the pipeline unchanged.
type PipelineStep struct {
	pipeline pipeline.Pipeline
	env      *pipeline.Env
}

// NewPipelineStep wraps p so it runs against env
func NewPipelineStep(p pipeline.Pipeline, env *pipeline.Env) *PipelineStep {
	return &PipelineStep{pipeline: p, env: env}
}

func (s *PipelineStep) ID() string { return s.pipeline.Name }

func (s *PipelineStep) Name() string {
	if s.pipeline.Description != "" {
		return s.pipeline.Description
	}
	return s.pipeline.Name
}

func (s *PipelineStep) GetDependencies() []string {
	return append([]string(nil), s.pipeline.DependsOn...)
}

// Validate checks the step has somewhere to read and write
func (s *PipelineStep) Validate(*OperationState) error {
	if s.env == nil || s.env.Store == nil {
		return fmt.Errorf("pipeline %s has no store", s.pipeline.Name)
	}
	return nil
}

// Execute runs the pipeline and records its outputs
func (s *PipelineStep) Execute(ctx context.Context, state *OperationState) error {
	res, err := s.pipeline.Run(ctx, s.env, pipeline.Params(state.ParamsCopy()))
	if err != nil {
		return Classify(s.ID(), err)
	}
	outputs := make([]string, len(res.Outputs))
	for i, loc := range res.Outputs {
		outputs[i] = loc.String()
	}
	SetStepResult(state, s.ID(), StepResult{Rows: res.Rows, Outputs: outputs})
	return nil
}

// RegisterCatalog registers every catalog pipeline as a step
func RegisterCatalog(reg *Registry, catalog *pipeline.Catalog, env *pipeline.Env) error {
	for _, p := range catalog.List() {
		if err := reg.Register(NewPipelineStep(p, env)); err != nil {
			return err
		}
	}
	return reg.ValidateDependencies()
}

// OperationTypes describes the catalog's pipelines for clients
func OperationTypes(catalog *pipeline.Catalog) []OperationType {
	pipelines := catalog.List()
	types := make([]OperationType, 0, len(pipelines))
	for _, p := range pipelines {
		params := make([]ParameterDefinition, 0, len(p.Params))
		for _, name := range p.Params {
			params = append(params, ParameterDefinition{Name: name, Type: "string"})
		}
		types = append(types, OperationType{
			ID:           p.Name,
			Name:         p.Name,
			Description:  p.Description,
			Dependencies: append([]string{}, p.DependsOn...),
			CanRunAlone:  len(p.DependsOn) == 0,
			Parameters:   params,
		})
	}
	return types
}
