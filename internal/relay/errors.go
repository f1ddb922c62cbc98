// Package relay classifies connection-teardown errors so that routine
// socket closes are not reported as failures.
package relay

import "strings"

// isExpectedCloseError reports whether an error is part of normal
// connection teardown and not worth logging loudly.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
