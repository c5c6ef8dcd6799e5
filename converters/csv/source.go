package csv

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/darianmavgo/streamcsv/converters/common"
	"github.com/darianmavgo/streamcsv/foreign"
)

// SourceKind tells a path source from a foreign stream source.
type SourceKind int

const (
	SourcePath SourceKind = iota
	SourceReadable
)

// Source is where a Reader gets its bytes: a local path it opens and owns,
// or a readable foreign object it borrows.
type Source struct {
	Kind     SourceKind
	Path     string
	Readable *foreign.Adapter
}

// NewSource classifies v. A string is a path. A foreign.Object or an
// io.Reader must expose a read capability. Anything else is a
// common.KindCapability error.
func NewSource(v any) (Source, error) {
	switch s := v.(type) {
	case Source:
		return s, nil
	case string:
		return Source{Kind: SourcePath, Path: s}, nil
	case *foreign.Adapter:
		if s == nil || s.Mode() != foreign.ReadMode {
			return Source{}, common.Errorf(common.KindCapability, "new reader", nil, "expected a path or a readable object, got a write adapter")
		}
		return Source{Kind: SourceReadable, Readable: s}, nil
	case foreign.Object:
		return readableSource(s)
	case io.Reader:
		return readableSource(foreign.Native(s))
	case nil:
		return Source{}, common.Errorf(common.KindCapability, "new reader", nil, "expected a path or a readable object, got nil")
	}
	return Source{}, common.Errorf(common.KindCapability, "new reader", nil, "expected a path or a readable object, got %T", v)
}

func readableSource(obj foreign.Object) (Source, error) {
	a, err := foreign.FromCapability(obj, foreign.ReadMode)
	if err != nil {
		var e *common.Error
		if errors.As(err, &e) {
			e.Op = "new reader"
		}
		return Source{}, err
	}
	return Source{Kind: SourceReadable, Readable: a}, nil
}

func (s Source) String() string {
	if s.Kind == SourcePath {
		return s.Path
	}
	return fmt.Sprint(s.Readable.Object())
}

// Open returns the byte stream behind s. The closer is non-nil only for path
// sources, whose file the caller now owns.
func (s Source) Open() (io.Reader, io.Closer, error) {
	if s.Kind == SourceReadable {
		return s.Readable, nil, nil
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, nil, common.Errorf(common.KindIO, "open", err, "could not open %s", s.Path)
	}
	return f, f, nil
}
