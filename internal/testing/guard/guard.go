// Package guard switches the process into test mode when imported by a test.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("LEDGER_TEST_MODE") == "" {
			_ = os.Setenv("LEDGER_TEST_MODE", "1")
		}
		if os.Getenv("LEDGER_STORE") == "" {
			_ = os.Setenv("LEDGER_STORE", "memory")
		}
	})
}
