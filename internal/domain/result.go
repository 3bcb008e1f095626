package domain

import "fmt"

// ExecutionResult is the uniform outcome of a protocol adapter call.
// Adapters communicate venue failures through the result value, never by
// returning a Go error, so settlement has a single branch.
type ExecutionResult struct {
	Success        bool
	TxHash         string
	OutputAmount   float64
	ExecutionPrice float64
	SlippagePct    float64
	GasCostUSD     float64
	Err            string
}

// Unsupported is the declared failure for an operation a venue does not
// offer.
func Unsupported(protocol, operation string) ExecutionResult {
	return ExecutionResult{
		Err: fmt.Sprintf("%s does not support %s", protocol, operation),
	}
}

// ReadOnly is the declared failure for a mutating call on a venue with no
// signing credential configured.
func ReadOnly(protocol string) ExecutionResult {
	return ExecutionResult{
		Err: fmt.Sprintf("%s: no signing key configured (read-only mode)", protocol),
	}
}
