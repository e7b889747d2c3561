package ndi

import (
	"sync"
	"time"
)

// completion is a resettable one-shot event. It starts signalled.
type completion struct {
	mu   sync.Mutex
	cond *sync.Cond
	done bool
}

func newCompletion() *completion {
	c := &completion{done: true}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *completion) reset() {
	c.mu.Lock()
	c.done = false
	c.mu.Unlock()
}

func (c *completion) signal() {
	c.mu.Lock()
	c.done = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

// wait blocks until signalled or timeout elapses and reports which.
func (c *completion) wait(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	t := time.AfterFunc(timeout, func() {
		c.mu.Lock()
		c.mu.Unlock()
		c.cond.Broadcast()
	})
	defer t.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.done {
		if !time.Now().Before(deadline) {
			return false
		}
		c.cond.Wait()
	}
	return true
}
