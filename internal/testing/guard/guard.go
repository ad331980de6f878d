// Package guard flips the binaries into test mode when imported from tests.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("LAADSTOCK_TEST_MODE") == "" {
			_ = os.Setenv("LAADSTOCK_TEST_MODE", "1")
		}
	})
}
