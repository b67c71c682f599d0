package workflows

import (
	"fmt"
)

// ErrorSeverity says whether a workflow step failure ends the workflow.
type ErrorSeverity string

const (
	// ErrorSeverityCritical fails the workflow.
	ErrorSeverityCritical ErrorSeverity = "critical"
	// ErrorSeverityHigh is recorded in the result; the workflow continues.
	ErrorSeverityHigh ErrorSeverity = "high"
)

// StepError is a failed workflow step.
type StepError struct {
	Step     string
	Severity ErrorSeverity
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// stepFailed records err in the result and returns the error the workflow
// should return: the wrapped error for critical steps, nil otherwise.
//
// Critical: the reflection could not be built or saved.
// High: the ready notification could not be created; the reflection is
// already stored, so the run still succeeds.
func stepFailed(result *WeeklyReflectionResult, step string, severity ErrorSeverity, err error) error {
	se := &StepError{Step: step, Severity: severity, Err: err}
	result.Errors = append(result.Errors, se.Error())
	if severity == ErrorSeverityCritical {
		return se
	}
	return nil
}
