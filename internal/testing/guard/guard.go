// Package guard forces test mode when imported, so a test binary that
// links a main package never starts real servers or workers.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ARKIVO_TEST_MODE") == "" {
			_ = os.Setenv("ARKIVO_TEST_MODE", "1")
		}
	})
}
