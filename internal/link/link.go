// Package link tracks whether the network server currently holds a session
// with the device. The flash fallback only engages while it is down.
package link

import "sync/atomic"

type Flag struct {
	connected atomic.Bool
}

func (f *Flag) Connected() bool {
	return f.connected.Load()
}

// Set records the connectivity reported by the server and returns the
// previous value.
func (f *Flag) Set(connected bool) bool {
	return f.connected.Swap(connected)
}
