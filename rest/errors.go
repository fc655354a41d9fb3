package rest

import "fmt"

// CommandError represents a failed user-initiated command such as order
// submission. It always carries a human-readable reason and is propagated to
// the caller synchronously; command failures are never silently swallowed.
type CommandError struct {
	Op     string
	Reason string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Reason)
}
