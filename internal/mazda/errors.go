package mazda

import "fmt"

// AuthError indicates the upstream API rejected our credentials or token.
// It is never retried; the caller is expected to re-authenticate once and
// surface a second failure.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ValidationError indicates the request parameters were rejected before
// reaching the vehicle. Never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// CommandRejectedError indicates the API understood a command but declined
// to execute it (vehicle unreachable, command not permitted). Distinct
// from ValidationError and never retried.
type CommandRejectedError struct {
	Kind       CommandKind
	ResultCode string
}

func (e *CommandRejectedError) Error() string {
	return fmt.Sprintf("command %s rejected by API (result code %s)", e.Kind, e.ResultCode)
}
