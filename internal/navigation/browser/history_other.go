//go:build !(js && wasm)

package browser

// DefaultHistory returns an in-memory history starting at "/".
func DefaultHistory() History {
	return NewMemoryHistory("/")
}
