package transform

import "fmt"

// ErrorCode classifies every way a transform execution can fail. All
// failures surface as Result values; the system never panics or returns
// Go errors for gameplay-level failures.
type ErrorCode string

const (
	// Structural / configuration.
	CodeUnknownTransform         ErrorCode = "UNKNOWN_TRANSFORM"
	CodeInvalidTrigger           ErrorCode = "INVALID_TRIGGER"
	CodeUnsupportedMode          ErrorCode = "UNSUPPORTED_MODE"
	CodeMissingEntitySystem      ErrorCode = "MISSING_ENTITY_SYSTEM"
	CodeMissingEntityRequirement ErrorCode = "MISSING_ENTITY_REQUIREMENTS"

	// Input validation.
	CodeInvalidRuns                  ErrorCode = "INVALID_RUNS"
	CodeInvalidEntityCount           ErrorCode = "INVALID_ENTITY_COUNT"
	CodeInvalidEntityStatRequirement ErrorCode = "INVALID_ENTITY_STAT_REQUIREMENT"
	CodeInvalidDurationFormula       ErrorCode = "INVALID_DURATION_FORMULA"
	CodeInvalidInputFormula          ErrorCode = "INVALID_INPUT_FORMULA"
	CodeInvalidOutputFormula         ErrorCode = "INVALID_OUTPUT_FORMULA"
	CodeInvalidSuccessRate           ErrorCode = "INVALID_SUCCESS_RATE"

	// Runtime / state gating.
	CodeTransformLocked       ErrorCode = "TRANSFORM_LOCKED"
	CodeCooldownActive        ErrorCode = "COOLDOWN_ACTIVE"
	CodeMaxRunsExceeded       ErrorCode = "MAX_RUNS_EXCEEDED"
	CodeMaxOutstandingBatches ErrorCode = "MAX_OUTSTANDING_BATCHES"
	CodeInsufficientEntities  ErrorCode = "INSUFFICIENT_ENTITIES"
	CodeInsufficientResources ErrorCode = "INSUFFICIENT_RESOURCES"

	// Execution failure.
	CodeSpendFailed                   ErrorCode = "SPEND_FAILED"
	CodeResourceStateMissingAddAmount ErrorCode = "RESOURCE_STATE_MISSING_ADD_AMOUNT"
	CodeOutputResourceNotFound        ErrorCode = "OUTPUT_RESOURCE_NOT_FOUND"
)

// Error carries a typed failure code and an optional human message.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result reports the outcome of an execution attempt. Runs counts the
// repetitions that fully committed; a batched request that hits the run
// budget partway still succeeds with the committed count.
type Result struct {
	Success bool
	Runs    int
	Error   *Error
}

func failure(code ErrorCode, format string, args ...any) Result {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return Result{Error: &Error{Code: code, Message: msg}}
}

func success(runs int) Result {
	return Result{Success: true, Runs: runs}
}
