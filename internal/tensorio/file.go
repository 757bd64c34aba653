// Package tensorio reads and writes raw little-endian tensor buffers.
package tensorio

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

var (
	ErrTooLarge   = errors.New("tensor file too large to map")
	ErrShortRead  = errors.New("tensor file shorter than expected")
	ErrBadPayload = errors.New("tensor payload length does not match dtype")
)

// File is a read-only view over a raw tensor file.
type File struct {
	Data    []byte
	mmapped bool
}

// Open maps path read-only. If mmap is unavailable it falls back to
// ReadAt-based loading. The returned file must be closed to release any
// mapping, and Data must not be retained after Close.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 > int64(int(^uint(0)>>1)) {
		return nil, ErrTooLarge
	}
	size := int(size64)
	if size == 0 {
		return &File{Data: []byte{}}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		return &File{Data: data, mmapped: true}, nil
	}

	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return &File{Data: data}, nil
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if off == int64(size) {
				break
			}
			return nil, ErrShortRead
		}
		return nil, err
	}
	return out, nil
}

// Close releases the mapping, if any.
func (f *File) Close() error {
	if f == nil || f.Data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.Data)
	}
	f.Data = nil
	f.mmapped = false
	return err
}

// ReadFile opens path and decodes its contents as dt into T. The returned
// slice does not reference the mapping.
func ReadFile[T Element](path string, dt DType) ([]T, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Decode[T](f.Data, dt)
}

// WriteFile encodes values as dt and writes them to path.
func WriteFile[T Element](path string, values []T, dt DType) error {
	raw, err := Encode(values, dt)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
