package foreign

import (
	"fmt"
	"io"
	"os"
)

// maxEmptyReads bounds how many (0, nil) results an io.Reader may return in
// a row before a read is treated as stalled.
const maxEmptyReads = 100

type nativeObject struct {
	v     any
	attrs Attrs
	// pending holds a read error that arrived together with data.
	pending error
}

// Native binds a Go value as a foreign object: an io.Reader answers read(n)
// with []byte, an io.Writer answers write(b) with the count written, and a
// Flush() error method answers flush. An *os.File gets a no-op flush since
// Go files are unbuffered. Values with no flush method have no flush
// capability.
//
// Native of an *Adapter returns the adapter's own object, so boundary calls
// are never nested.
func Native(v any) Object {
	if a, ok := v.(*Adapter); ok {
		return a.obj
	}
	o := &nativeObject{v: v, attrs: Attrs{}}
	if r, ok := v.(io.Reader); ok {
		o.attrs[CapRead] = func(args ...any) (any, error) { return o.read(r, args) }
	}
	if w, ok := v.(io.Writer); ok {
		o.attrs[CapWrite] = func(args ...any) (any, error) { return nativeWrite(w, args) }
	}
	switch f := v.(type) {
	case interface{ Flush() error }:
		o.attrs[CapFlush] = func(...any) (any, error) { return nil, f.Flush() }
	case *os.File:
		o.attrs[CapFlush] = func(...any) (any, error) { return nil, nil }
	}
	return o
}

func (o *nativeObject) Attr(name string) (Callable, bool) { return o.attrs.Attr(name) }

func (o *nativeObject) String() string {
	if f, ok := o.v.(*os.File); ok {
		return fmt.Sprintf("<file %s>", f.Name())
	}
	return fmt.Sprintf("<%T>", o.v)
}

func (o *nativeObject) read(r io.Reader, args []any) (any, error) {
	if o.pending != nil {
		err := o.pending
		o.pending = nil
		return nil, err
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("read takes 1 argument, got %d", len(args))
	}
	size, ok := args[0].(int)
	if !ok || size < 0 {
		return nil, fmt.Errorf("read size must be a non-negative int, got %v", args[0])
	}
	buf := make([]byte, size)
	for range maxEmptyReads {
		n, err := r.Read(buf)
		if n > 0 {
			if err != nil && err != io.EOF {
				o.pending = err
			}
			return buf[:n], nil
		}
		if err == io.EOF {
			return []byte{}, nil
		}
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return []byte{}, nil
		}
	}
	return nil, io.ErrNoProgress
}

func nativeWrite(w io.Writer, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("write takes 1 argument, got %d", len(args))
	}
	b, ok := args[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("write expects bytes, got %T", args[0])
	}
	n, err := w.Write(b)
	if err != nil && n == 0 {
		return nil, err
	}
	return n, nil
}
