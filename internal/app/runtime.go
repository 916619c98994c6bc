package app

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// TestModeEnv switches binaries into a no-op mode under tests.
const TestModeEnv = "LEDGER_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func readTestMode() {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(TestModeEnv))) {
	case "1", "true", "yes":
		testMode.Store(true)
	default:
		testMode.Store(false)
	}
}

// InTestMode reports whether the process should skip runtime side effects
// such as listening on a port or connecting to brokers.
func InTestMode() bool {
	testModeOnce.Do(readTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads the flag after the environment changed.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	readTestMode()
}
