//go:build ndi && cgo && !ndi_advanced

package native

// asyncRegistration is empty when the advanced SDK is not linked.
type asyncRegistration struct{}

// SendSetVideoAsyncCompletion is only available with the advanced SDK.
func (s *sdkLibrary) SendSetVideoAsyncCompletion(SendInstance, func()) bool {
	return false
}

func (s *sdkLibrary) dropAsync(SendInstance) {}
