package domain

// ExecutionStatus is the terminal outcome of an execution request.
type ExecutionStatus string

const (
	StatusSuccess               ExecutionStatus = "success"
	StatusAllProvidersExhausted ExecutionStatus = "allProvidersExhausted"
	StatusRejected              ExecutionStatus = "rejected"
	StatusRateLimited           ExecutionStatus = "rateLimited"
	StatusClientSideDirective   ExecutionStatus = "clientSideDirective"
)

// IsTerminal returns true if the status represents a final state.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusAllProvidersExhausted, StatusRejected,
		StatusRateLimited, StatusClientSideDirective:
		return true
	}
	return false
}

// ExecutionRequest is a validated-or-not snippet submission.
type ExecutionRequest struct {
	RequestID   string
	RequestorID string
	Language    string
	SourceCode  string
	Stdin       string
}

// AttemptOutcome describes what happened to one provider during dispatch.
type AttemptOutcome string

const (
	OutcomeSkippedUnhealthy   AttemptOutcome = "skipped_unhealthy"
	OutcomeSkippedRateLimited AttemptOutcome = "skipped_rate_limited"
	OutcomeFailed             AttemptOutcome = "failed"
	OutcomeSucceeded          AttemptOutcome = "succeeded"
	OutcomeDelegated          AttemptOutcome = "delegated"
)

// Attempt records one provider considered while dispatching.
type Attempt struct {
	ProviderID string         `json:"provider_id"`
	Outcome    AttemptOutcome `json:"outcome"`
	ErrorKind  ErrorKind      `json:"error_kind,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// Output is the canonical, provider-independent execution output.
type Output struct {
	Stdout          string
	Stderr          string
	ExitCode        int
	ExecutionTimeMs int64
	Truncated       bool
}

// ExecutionResult is the single normalized result returned for every request.
type ExecutionResult struct {
	Status          ExecutionStatus `json:"status"`
	Stdout          string          `json:"stdout"`
	Stderr          string          `json:"stderr"`
	ExitCode        int             `json:"exit_code"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	ProviderUsed    *string         `json:"provider_used"`
	Truncated       bool            `json:"truncated,omitempty"`
	Attempts        []Attempt       `json:"attempts,omitempty"`
}

// Provider returns the provider that backed the result, or "".
func (r *ExecutionResult) Provider() string {
	if r.ProviderUsed == nil {
		return ""
	}
	return *r.ProviderUsed
}

// ExecuteRequest is the JSON body accepted by the relay.
type ExecuteRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Input    string `json:"input"`
}

// ExecuteResponse is the JSON body returned for success and client-side directives.
type ExecuteResponse struct {
	Status          ExecutionStatus `json:"status"`
	Output          string          `json:"output"`
	Error           string          `json:"error"`
	ExitCode        int             `json:"exitCode"`
	ExecutionTimeMs int64           `json:"executionTimeMs"`
	Provider        string          `json:"provider,omitempty"`
	Language        string          `json:"language,omitempty"`
	Truncated       bool            `json:"truncated,omitempty"`
}

// ErrorResponse is the structured failure body.
type ErrorResponse struct {
	Code    ErrorKind `json:"code"`
	Message string    `json:"message"`
}

// LanguageInfo describes a language and the providers able to run it.
type LanguageInfo struct {
	Name       string   `json:"name"`
	Providers  []string `json:"providers"`
	ClientSide bool     `json:"client_side"`
}
