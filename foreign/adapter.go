package foreign

import (
	"errors"
	"fmt"
	"io"

	"github.com/darianmavgo/streamcsv/converters/common"
)

// Mode selects the capability an adapter is built around.
type Mode int

const (
	ReadMode Mode = iota
	WriteMode
)

func (m Mode) String() string {
	if m == WriteMode {
		return "write"
	}
	return "read"
}

// Adapter presents a foreign object as a byte stream. It holds one reference
// to the object and never closes it.
//
// An Adapter is not safe for concurrent use; the foreign stream behind it is
// itself a serially accessed resource.
type Adapter struct {
	obj  Object
	mode Mode
	call Callable
}

var (
	_ io.Reader = (*Adapter)(nil)
	_ io.Writer = (*Adapter)(nil)
)

// FromCapability builds an adapter after resolving obj's read (ReadMode) or
// write (WriteMode) capability once. A missing capability is a
// common.KindCapability error.
func FromCapability(obj Object, mode Mode) (*Adapter, error) {
	op := "new " + mode.String() + " adapter"
	if obj == nil {
		return nil, common.Errorf(common.KindCapability, op, nil, "expected a %sable object, got nil", mode)
	}
	name := CapRead
	if mode == WriteMode {
		name = CapWrite
	}
	c, ok := obj.Attr(name)
	if !ok {
		return nil, common.Errorf(common.KindCapability, op, nil, "expected a %sable object, got %s with no %q capability", mode, describe(obj), name)
	}
	return &Adapter{obj: obj, mode: mode, call: c}, nil
}

// Object returns the wrapped foreign object.
func (a *Adapter) Object() Object { return a.obj }

// Mode reports which capability the adapter was built around.
func (a *Adapter) Mode() Mode { return a.mode }

// ReadBytes issues one read(maxLen) call and returns exactly the bytes
// received. An empty result means end of stream.
func (a *Adapter) ReadBytes(maxLen int) ([]byte, error) {
	if a.mode != ReadMode {
		return nil, common.Errorf(common.KindCapability, CapRead, nil, "adapter for %s was opened for writing", describe(a.obj))
	}
	res, err := invoke(a.call, maxLen)
	if err != nil {
		if errors.Is(err, ErrTextMode) {
			return nil, common.Errorf(common.KindMode, CapRead, err, "%s is not open in binary mode", describe(a.obj))
		}
		return nil, common.Errorf(common.KindIO, CapRead, err, "could not read from %s", describe(a.obj))
	}
	switch v := res.(type) {
	case []byte:
		if len(v) > maxLen {
			return nil, common.Errorf(common.KindIO, CapRead, nil, "%s returned %d bytes, asked for at most %d", describe(a.obj), len(v), maxLen)
		}
		return v, nil
	case string:
		cause := fmt.Errorf("read returned text (%d chars), expected bytes", len(v))
		return nil, common.Errorf(common.KindMode, CapRead, cause, "%s is not open in binary mode", describe(a.obj))
	case nil:
		return nil, common.Errorf(common.KindIO, CapRead, nil, "%s returned nothing, expected bytes", describe(a.obj))
	default:
		return nil, common.Errorf(common.KindIO, CapRead, nil, "%s returned %T, expected bytes", describe(a.obj), res)
	}
}

// Read implements io.Reader on top of ReadBytes.
func (a *Adapter) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b, err := a.ReadBytes(len(p))
	if err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return 0, io.EOF
	}
	return copy(p, b), nil
}

// WriteBytes issues one write(buf) call and returns the count the foreign
// object reports, which may be less than len(buf).
func (a *Adapter) WriteBytes(buf []byte) (int, error) {
	if a.mode != WriteMode {
		return 0, common.Errorf(common.KindCapability, CapWrite, nil, "adapter for %s was opened for reading", describe(a.obj))
	}
	res, err := invoke(a.call, buf)
	if err != nil {
		if errors.Is(err, ErrTextMode) {
			return 0, common.Errorf(common.KindMode, CapWrite, err, "%s is not open in binary mode", describe(a.obj))
		}
		return 0, common.Errorf(common.KindIO, CapWrite, err, "could not write to %s", describe(a.obj))
	}
	n, ok := asInt(res)
	if !ok {
		return 0, common.Errorf(common.KindIO, CapWrite, nil, "%s returned %T, expected a byte count", describe(a.obj), res)
	}
	if n < 0 || n > len(buf) {
		return 0, common.Errorf(common.KindIO, CapWrite, nil, "%s reported %d bytes written of %d", describe(a.obj), n, len(buf))
	}
	return n, nil
}

// Write implements io.Writer, repeating WriteBytes over short writes.
func (a *Adapter) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := a.WriteBytes(p[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, common.Errorf(common.KindIO, CapWrite, io.ErrShortWrite, "%s accepted no bytes", describe(a.obj))
		}
	}
	return written, nil
}

// Flush resolves and invokes the object's flush capability. An object without
// one is an error, not a silent no-op.
func (a *Adapter) Flush() error {
	c, ok := a.obj.Attr(CapFlush)
	if !ok {
		return common.Errorf(common.KindCapability, CapFlush, nil, "%s has no %q capability", describe(a.obj), CapFlush)
	}
	if _, err := invoke(c); err != nil {
		return common.Errorf(common.KindIO, CapFlush, err, "could not flush %s", describe(a.obj))
	}
	return nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	}
	return 0, false
}

func describe(obj Object) string {
	if s, ok := obj.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", obj)
}
