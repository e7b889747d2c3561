//go:build windows

package ndi

import "sync"

// The Windows runtime has been seen to fault when null-frame flushes from
// several senders overlap, so they are serialized process-wide.
var flushMu sync.Mutex

func lockFlush() func() {
	flushMu.Lock()
	return flushMu.Unlock
}
