package mcp

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for all tests in the mcp package.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Transport read loops wind down asynchronously after session Close.
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}
