package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("AGENCYHUB_TEST_MODE") == "" {
			_ = os.Setenv("AGENCYHUB_TEST_MODE", "1")
		}
	})
}
