//go:build !(linux || darwin)

package engine

// NativeEngine is unavailable on platforms without a vendor redistributable.
type NativeEngine struct{}

// OpenNative reports the engine as unavailable.
func OpenNative(libDir string) (*NativeEngine, error) {
	return nil, ErrUnavailable
}

// OpenClip never succeeds on this platform.
func (e *NativeEngine) OpenClip(path string) (Clip, error) {
	return nil, ErrUnavailable
}

// Close is a no-op.
func (e *NativeEngine) Close() error { return nil }
