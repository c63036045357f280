package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Stage errors
const (
	// ErrCodeContractViolation indicates a unit of work or stage was wired
	// against its declared shape.
	ErrCodeContractViolation ErrorCode = "CONTRACT_VIOLATION"
	// ErrCodeCollaboratorFailure indicates the unit of work itself failed.
	ErrCodeCollaboratorFailure ErrorCode = "COLLABORATOR_FAILURE"
	// ErrCodeAlreadyStarted indicates a second start of a run-once stage.
	ErrCodeAlreadyStarted ErrorCode = "ALREADY_STARTED"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// IsStageFatal reports whether the code terminates the stage that raised it.
func IsStageFatal(code ErrorCode) bool {
	return code == ErrCodeContractViolation || code == ErrCodeCollaboratorFailure
}
