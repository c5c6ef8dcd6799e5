// Package foreign adapts call-based stream objects that live across a host
// boundary into plain byte streams.
//
// A foreign object is anything that can resolve named capabilities ("read",
// "write", "flush") into callables. Each callable invocation is one boundary
// crossing and runs inside a process-wide exclusive section, much like a
// scripting runtime's interpreter lock. The section is taken fresh for every
// call and released as soon as the call returns; no parsing or formatting work
// ever happens while it is held.
package foreign

import (
	"errors"
	"sync"
)

// Capability names resolved on foreign objects.
const (
	CapRead  = "read"
	CapWrite = "write"
	CapFlush = "flush"
)

// Callable is one boundary-crossing call.
type Callable func(args ...any) (any, error)

// Object is a handle to a value on the far side of the boundary.
type Object interface {
	// Attr resolves the named capability. ok is false when the object lacks it.
	Attr(name string) (c Callable, ok bool)
}

// Attrs is an Object backed by a literal capability table. Host bindings and
// tests use it to describe foreign objects.
type Attrs map[string]Callable

// Attr implements Object.
func (a Attrs) Attr(name string) (Callable, bool) {
	c, ok := a[name]
	return c, ok && c != nil
}

// ErrTextMode is returned by a host's write capability when the stream only
// accepts decoded text. The adapter reports it as a mode error.
var ErrTextMode = errors.New("foreign: stream is open in text mode")

// boundary is the process-wide exclusive section around every foreign call.
var boundary sync.Mutex

// Enter acquires the boundary section and returns the function releasing it.
// Host bindings use it to serialize their own boundary traffic with the
// adapter's. Calling an adapter method while holding the section deadlocks.
func Enter() (exit func()) {
	boundary.Lock()
	return boundary.Unlock
}

// invoke runs c inside the boundary section.
func invoke(c Callable, args ...any) (any, error) {
	boundary.Lock()
	defer boundary.Unlock()
	return c(args...)
}
