package ndi

import (
	"math"
	"time"
)

// MaxTimeout is the longest timeout the library accepts; timeouts cross the
// boundary as a 32-bit millisecond count.
const MaxTimeout = time.Duration(math.MaxUint32) * time.Millisecond

func timeoutMs(d time.Duration) (uint32, error) {
	if d < 0 {
		return 0, invalidConfig("timeout %s is negative", d)
	}
	if d > MaxTimeout {
		return 0, invalidConfig("timeout %s exceeds maximum %s", d, MaxTimeout)
	}
	return uint32(d / time.Millisecond), nil
}
