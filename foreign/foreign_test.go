package foreign

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/darianmavgo/streamcsv/converters/common"
)

// chunkedReadable serves data through a read capability, at most step bytes per call.
func chunkedReadable(data []byte, step int) Attrs {
	return Attrs{
		CapRead: func(args ...any) (any, error) {
			n := args[0].(int)
			if n > step {
				n = step
			}
			if n > len(data) {
				n = len(data)
			}
			out := data[:n]
			data = data[n:]
			return out, nil
		},
	}
}

func TestFromCapabilityMissing(t *testing.T) {
	tests := []struct {
		name string
		obj  Object
		mode Mode
	}{
		{"nil object", nil, ReadMode},
		{"no read", Attrs{CapWrite: func(...any) (any, error) { return 0, nil }}, ReadMode},
		{"no write", Attrs{CapRead: func(...any) (any, error) { return []byte{}, nil }}, WriteMode},
		{"nil callable", Attrs{CapRead: nil}, ReadMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromCapability(tt.obj, tt.mode)
			if !errors.Is(err, common.ErrCapability) {
				t.Fatalf("expected capability error, got %v", err)
			}
			if !strings.Contains(err.Error(), "expected a "+tt.mode.String()+"able object") {
				t.Errorf("unexpected message: %v", err)
			}
		})
	}
}

func TestReadBytes(t *testing.T) {
	a, err := FromCapability(chunkedReadable([]byte("hello world"), 4), ReadMode)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for {
		b, err := a.ReadBytes(100)
		if err != nil {
			t.Fatalf("ReadBytes: %v", err)
		}
		if len(b) == 0 {
			break
		}
		got = append(got, string(b))
	}
	want := []string{"hell", "o wo", "rld"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got chunks %q, want %q", got, want)
	}
}

func TestReadBytesResultKinds(t *testing.T) {
	tests := []struct {
		name   string
		result any
		err    error
		kind   common.ErrorKind
	}{
		{"text result", "a,b\n", nil, common.KindMode},
		{"text mode error", nil, ErrTextMode, common.KindMode},
		{"none", nil, nil, common.KindIO},
		{"wrong type", 42, nil, common.KindIO},
		{"too long", []byte("abcdef"), nil, common.KindIO},
		{"call fails", nil, errors.New("disk on fire"), common.KindIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := Attrs{CapRead: func(...any) (any, error) { return tt.result, tt.err }}
			a, err := FromCapability(obj, ReadMode)
			if err != nil {
				t.Fatal(err)
			}
			_, err = a.ReadBytes(4)
			if got := common.KindOf(err); got != tt.kind {
				t.Fatalf("kind = %v, want %v (err: %v)", got, tt.kind, err)
			}
			if tt.kind == common.KindMode && !strings.Contains(err.Error(), "not open in binary mode") {
				t.Errorf("mode error should mention binary mode: %v", err)
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Errorf("cause %v not preserved in %v", tt.err, err)
			}
		})
	}
}

func TestAdapterAsReader(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 1000)
	a, err := FromCapability(chunkedReadable(data, 333), ReadMode)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(a)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("read %d bytes, want %d", len(got), len(data))
	}
}

func TestWriteBytesCount(t *testing.T) {
	tests := []struct {
		name    string
		result  any
		want    int
		wantErr bool
	}{
		{"full", 3, 3, false},
		{"short", 1, 1, false},
		{"int64", int64(2), 2, false},
		{"negative", -1, 0, true},
		{"too many", 4, 0, true},
		{"not a count", "3", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := Attrs{CapWrite: func(...any) (any, error) { return tt.result, nil }}
			a, err := FromCapability(obj, WriteMode)
			if err != nil {
				t.Fatal(err)
			}
			n, err := a.WriteBytes([]byte("abc"))
			if tt.wantErr {
				if !errors.Is(err, common.ErrIO) {
					t.Fatalf("expected io error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.want {
				t.Errorf("n = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestWriteRetriesShortWrites(t *testing.T) {
	var sink bytes.Buffer
	calls := 0
	obj := Attrs{CapWrite: func(args ...any) (any, error) {
		calls++
		b := args[0].([]byte)
		if len(b) > 2 {
			b = b[:2]
		}
		sink.Write(b)
		return len(b), nil
	}}
	a, _ := FromCapability(obj, WriteMode)
	n, err := a.Write([]byte("abcde"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 || sink.String() != "abcde" || calls != 3 {
		t.Errorf("n=%d sink=%q calls=%d", n, sink.String(), calls)
	}
}

func TestWriteNoProgress(t *testing.T) {
	obj := Attrs{CapWrite: func(...any) (any, error) { return 0, nil }}
	a, _ := FromCapability(obj, WriteMode)
	_, err := a.Write([]byte("x"))
	if !errors.Is(err, io.ErrShortWrite) || !errors.Is(err, common.ErrIO) {
		t.Fatalf("expected short write io error, got %v", err)
	}
}

func TestWriteTextMode(t *testing.T) {
	obj := Attrs{CapWrite: func(...any) (any, error) { return nil, ErrTextMode }}
	a, _ := FromCapability(obj, WriteMode)
	_, err := a.Write([]byte("x"))
	if !errors.Is(err, common.ErrMode) {
		t.Fatalf("expected mode error, got %v", err)
	}
}

func TestFlush(t *testing.T) {
	write := func(args ...any) (any, error) { return len(args[0].([]byte)), nil }

	t.Run("missing", func(t *testing.T) {
		a, _ := FromCapability(Attrs{CapWrite: write}, WriteMode)
		if err := a.Flush(); !errors.Is(err, common.ErrCapability) {
			t.Fatalf("expected capability error, got %v", err)
		}
	})
	t.Run("fails", func(t *testing.T) {
		cause := errors.New("broken pipe")
		a, _ := FromCapability(Attrs{CapWrite: write, CapFlush: func(...any) (any, error) { return nil, cause }}, WriteMode)
		err := a.Flush()
		if !errors.Is(err, common.ErrIO) || !errors.Is(err, cause) {
			t.Fatalf("expected io error wrapping cause, got %v", err)
		}
	})
	t.Run("ok", func(t *testing.T) {
		flushed := false
		a, _ := FromCapability(Attrs{CapWrite: write, CapFlush: func(...any) (any, error) { flushed = true; return nil, nil }}, WriteMode)
		if err := a.Flush(); err != nil || !flushed {
			t.Fatalf("flush err=%v flushed=%v", err, flushed)
		}
	})
}

func TestWrongModeCalls(t *testing.T) {
	obj := Attrs{
		CapRead:  func(...any) (any, error) { return []byte{}, nil },
		CapWrite: func(...any) (any, error) { return 0, nil },
	}
	r, _ := FromCapability(obj, ReadMode)
	if _, err := r.WriteBytes([]byte("x")); !errors.Is(err, common.ErrCapability) {
		t.Errorf("write on read adapter: %v", err)
	}
	w, _ := FromCapability(obj, WriteMode)
	if _, err := w.ReadBytes(1); !errors.Is(err, common.ErrCapability) {
		t.Errorf("read on write adapter: %v", err)
	}
}

func TestBoundaryHeldDuringCall(t *testing.T) {
	var heldInside bool
	obj := Attrs{CapRead: func(...any) (any, error) {
		heldInside = !boundary.TryLock()
		if !heldInside {
			boundary.Unlock()
		}
		return []byte{}, nil
	}}
	a, _ := FromCapability(obj, ReadMode)
	if _, err := a.ReadBytes(8); err != nil {
		t.Fatal(err)
	}
	if !heldInside {
		t.Error("boundary section was not held during the foreign call")
	}
	if !boundary.TryLock() {
		t.Fatal("boundary section still held after the call returned")
	}
	boundary.Unlock()

	exit := Enter()
	if boundary.TryLock() {
		t.Fatal("Enter did not take the boundary section")
	}
	exit()
}

func TestNativeReader(t *testing.T) {
	a, err := FromCapability(Native(bytes.NewReader([]byte("a,b\n1,2\n"))), ReadMode)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(a)
	if err != nil || string(got) != "a,b\n1,2\n" {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, ok := Native(bytes.NewReader(nil)).Attr(CapWrite); ok {
		t.Error("bytes.Reader should not expose write")
	}
}

type failingReader struct{ sent bool }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.sent {
		return 0, errors.New("connection reset")
	}
	f.sent = true
	return copy(p, "abc"), errors.New("connection reset")
}

func TestNativeReaderDataThenError(t *testing.T) {
	a, _ := FromCapability(Native(&failingReader{}), ReadMode)
	b, err := a.ReadBytes(16)
	if err != nil || string(b) != "abc" {
		t.Fatalf("first read: %q, %v", b, err)
	}
	if _, err := a.ReadBytes(16); !errors.Is(err, common.ErrIO) {
		t.Fatalf("second read should surface the stashed error, got %v", err)
	}
}

func TestNativeWriterFlush(t *testing.T) {
	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	a, err := FromCapability(Native(bw), WriteMode)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Write([]byte("x,y\n")); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Fatalf("bufio.Writer flushed early: %q", out.String())
	}
	if err := a.Flush(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "x,y\n" {
		t.Errorf("got %q after flush", out.String())
	}

	// bytes.Buffer has no Flush method, so the capability is absent.
	b, _ := FromCapability(Native(&out), WriteMode)
	if err := b.Flush(); !errors.Is(err, common.ErrCapability) {
		t.Errorf("expected capability error, got %v", err)
	}
}

func TestNativeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	obj := Native(f)
	if s := obj.(interface{ String() string }).String(); !strings.Contains(s, "out.csv") {
		t.Errorf("String() = %q", s)
	}
	a, err := FromCapability(obj, WriteMode)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Write([]byte("1,2\n")); err != nil {
		t.Fatal(err)
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("file flush: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "1,2\n" {
		t.Errorf("file holds %q", data)
	}
}

func TestNativeOfAdapter(t *testing.T) {
	inner := chunkedReadable([]byte("abc"), 8)
	a, _ := FromCapability(inner, ReadMode)
	obj := Native(a)
	if _, ok := obj.(Attrs); !ok {
		t.Fatalf("Native(*Adapter) should unwrap to the adapter's object, got %T", obj)
	}
}
