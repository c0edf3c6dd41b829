// Package saga runs a sequence of steps and undoes the completed ones when a
// later step fails.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Step is one unit of work with a compensating action that undoes it.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

// FuncStep adapts a pair of functions to Step. A nil Undo means the step has
// nothing to compensate.
type FuncStep struct {
	StepName string
	Do       func(ctx context.Context) error
	Undo     func(ctx context.Context) error
}

func (s FuncStep) Name() string { return s.StepName }

func (s FuncStep) Execute(ctx context.Context) error {
	if s.Do == nil {
		return nil
	}
	return s.Do(ctx)
}

func (s FuncStep) Compensate(ctx context.Context) error {
	if s.Undo == nil {
		return nil
	}
	return s.Undo(ctx)
}

// StepError reports the step that failed. Compensation failures, if any, are
// joined into Err.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("saga step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type Orchestrator struct {
	steps  []Step
	logger *slog.Logger
}

func NewOrchestrator(logger *slog.Logger, steps ...Step) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{steps: steps, logger: logger}
}

// Run executes the steps in order. When one fails, the steps that completed
// are compensated in reverse order.
func (o *Orchestrator) Run(ctx context.Context) error {
	completed := make([]Step, 0, len(o.steps))

	for _, step := range o.steps {
		if err := step.Execute(ctx); err != nil {
			o.logger.WarnContext(ctx, "saga step failed, compensating", "step", step.Name(), "completed", len(completed), "error", err)
			if rollbackErr := o.rollback(ctx, completed); rollbackErr != nil {
				err = errors.Join(err, rollbackErr)
			}
			return &StepError{Step: step.Name(), Err: err}
		}
		completed = append(completed, step)
	}
	return nil
}

func (o *Orchestrator) rollback(ctx context.Context, steps []Step) error {
	// compensation must still run if the request context was cancelled
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if err := step.Compensate(ctx); err != nil {
			o.logger.ErrorContext(ctx, "saga compensation failed", "step", step.Name(), "error", err)
			errs = append(errs, fmt.Errorf("compensate %s: %w", step.Name(), err))
		}
	}
	return errors.Join(errs...)
}
