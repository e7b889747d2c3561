//go:build !ndi || !cgo

package native

// SDK reports ErrUnavailable; build with -tags ndi and cgo enabled to link
// the NDI runtime.
func SDK() (Library, error) {
	return nil, ErrUnavailable
}
