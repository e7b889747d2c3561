// Package ndi wraps an NDI library so that captured frames are freed
// exactly once, borrowed views cannot outlive their receiver and a
// zero-copy asynchronous send cannot be reused while the library reads it.
//
// Everything starts from a Runtime:
//
//	rt, err := ndi.AcquireDefault()
//	if err != nil { ... }
//	defer rt.Close()
//
// Finder, Receiver, Sender and FrameSync hold a reference on the runtime
// and on their native instance. The native layer is selected by passing a
// native.Library to Acquire; native.Loopback serves tests and development.
package ndi
