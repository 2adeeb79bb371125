package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ErrTaskNotFound returns an error for when a task id does not exist.
func ErrTaskNotFound(id int64) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("task not found: %d", id),
		Suggestion: "Use 'taskflow list' to see all tasks",
	}
}

// ErrInvalidTaskID returns an error for a non-numeric task id argument.
func ErrInvalidTaskID(arg string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid task id: %s", arg),
		Suggestion: "Task ids are positive integers, as shown by 'taskflow list'",
	}
}

// ErrServerUnreachable returns an error when the API cannot be reached, with a
// suggestion derived from the failure reason.
func ErrServerUnreachable(url, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("server %s is unreachable: %s", url, reason),
		Suggestion: getSmartSuggestion(reason),
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and the client.api_url setting"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the server is running ('taskflow serve') and accessible"
	}

	if strings.Contains(lowerReason, "timeout") || strings.Contains(lowerReason, "deadline exceeded") {
		return "The server may be slow or unreachable. Try again later"
	}

	return "Check your network connection and try again"
}

// ErrInvalidStatus returns an error for an invalid status with valid options.
func ErrInvalidStatus(status string, valid []string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid status: %s", status),
		Suggestion: fmt.Sprintf("Valid options: %s", strings.Join(valid, ", ")),
	}
}

// ErrUnauthorized returns an error when the server rejects the API token.
func ErrUnauthorized() error {
	return &ErrorWithSuggestion{
		Err:        errors.New("the server rejected the API token"),
		Suggestion: "Store a valid token with 'taskflow token set' or set TASKFLOW_API_TOKEN",
	}
}

// ErrNoInteractiveTerminal returns an error when a command needs a TTY.
func ErrNoInteractiveTerminal(what string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%s requires an interactive terminal", what),
		Suggestion: "Run the command from a terminal, or use the non-interactive subcommands",
	}
}
