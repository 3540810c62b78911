//go:build js && wasm

package browser

import "syscall/js"

// WindowHistory is the History of the hosting browser window.
type WindowHistory struct{}

var _ History = WindowHistory{}

// PushState implements History.PushState.
func (WindowHistory) PushState(target string) {
	js.Global().Get("history").Call("pushState", js.Null(), "", target)
}

// ReplaceState implements History.ReplaceState.
func (WindowHistory) ReplaceState(target string) {
	js.Global().Get("history").Call("replaceState", js.Null(), "", target)
}

// Back implements History.Back.
func (WindowHistory) Back() {
	js.Global().Get("history").Call("back")
}

// Location implements History.Location.
func (WindowHistory) Location() string {
	loc := js.Global().Get("location")

	return loc.Get("pathname").String() + loc.Get("search").String()
}

// Assign implements History.Assign.
func (WindowHistory) Assign(target string, replace bool) {
	if replace {
		js.Global().Get("location").Call("replace", target)

		return
	}

	js.Global().Get("location").Call("assign", target)
}

// DefaultHistory returns the window's history.
func DefaultHistory() History {
	return WindowHistory{}
}
