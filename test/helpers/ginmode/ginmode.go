// Package ginmode switches gin to test mode exactly once per test binary.
package ginmode

import (
	"sync"

	"github.com/gin-gonic/gin"
)

var once sync.Once

// EnsureGinTestMode sets gin.TestMode. Safe to call from parallel tests.
func EnsureGinTestMode() {
	once.Do(func() {
		gin.SetMode(gin.TestMode)
	})
}
