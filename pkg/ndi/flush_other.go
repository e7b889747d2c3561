//go:build !windows

package ndi

func lockFlush() func() { return func() {} }
