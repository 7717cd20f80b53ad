package models

import "encoding/json"

// ErrorType classifies why an isolated execution failed.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "ValidationError"
	ErrorTypeTimeout    ErrorType = "TimeoutError"
	ErrorTypeMemory     ErrorType = "MemoryError"
	ErrorTypeRuntime    ErrorType = "RuntimeError"
	ErrorTypeSandbox    ErrorType = "SandboxError"
)

// ValidationResult is the verdict of the static validator.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Violations  []string `json:"violations"`
	ImportsUsed []string `json:"imports_used"`
}

// ExecutionResult is what the restricted executor reports for one run of
// user code. Exactly one of ResultBytes / ResultJSON is set on success,
// depending on what the entry function returned; ResultTypeName carries the
// interpreter-side type name for diagnostics.
type ExecutionResult struct {
	Success         bool            `json:"success"`
	ResultBytes     []byte          `json:"-"`
	ResultJSON      json.RawMessage `json:"result,omitempty"`
	ResultTypeName  string          `json:"result_type,omitempty"`
	Error           string          `json:"error,omitempty"`
	ErrorType       ErrorType       `json:"error_type,omitempty"`
	Stdout          string          `json:"stdout"`
	Stderr          string          `json:"stderr"`
	ExecutionTimeMS int64           `json:"execution_time_ms"`
	MemoryUsedBytes *int64          `json:"memory_used_bytes,omitempty"`
}

// HasBytesResult reports whether the entry function returned a bytes-like
// value. An empty byte string still counts.
func (r *ExecutionResult) HasBytesResult() bool {
	return r.ResultTypeName == "bytes" || r.ResultTypeName == "bytearray"
}

// ChallengeResult is the outcome of evaluating one submission against a
// challenge's reference input.
type ChallengeResult struct {
	Success         bool                   `json:"success"`
	Score           *int64                 `json:"score,omitempty"`
	Breakdown       map[string]interface{} `json:"breakdown,omitempty"`
	Error           string                 `json:"error,omitempty"`
	ErrorCode       string                 `json:"error_code,omitempty"`
	ExecutionTimeMS int64                  `json:"execution_time_ms"`
}
