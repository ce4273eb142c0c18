package reader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ssargent/poreread/pkg/dtype"
)

// Mapping is a read-only view of one whole file. Every segment view derived
// from it is only valid until Close.
type Mapping struct {
	path string
	data []byte
	// mapped is false when data was read into memory instead of mmapped.
	mapped bool
}

// mapFile maps path read-only. The file descriptor is closed before
// returning; the mapping stays valid until Close.
func mapFile(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v; %s", ErrIO, path, err, ioHint)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v; %s", ErrIO, path, err, ioHint)
	}

	m := &Mapping{path: path}
	if info.Size() == 0 {
		return m, nil
	}

	data, mapped, err := mmapFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v; %s", ErrIO, path, err, ioHint)
	}
	m.data = data
	m.mapped = mapped
	return m, nil
}

// Path returns the mapped file's path.
func (m *Mapping) Path() string {
	return m.path
}

// Size returns the size of the mapped file in bytes.
func (m *Mapping) Size() int64 {
	return int64(len(m.data))
}

// View returns the zero-copy element view of the payload described by cfg.
func (m *Mapping) View(cfg FileConfig) (dtype.Slice, error) {
	if cfg.HeaderBytes > m.Size() {
		return dtype.Slice{}, fmt.Errorf("%w: %s: header length %d exceeds file size %d", ErrConfig, m.path, cfg.HeaderBytes, m.Size())
	}

	view := dtype.NewSlice(m.data[cfg.HeaderBytes:], cfg.DType)
	if cfg.Records > 0 && cfg.Records < view.Len() {
		view = view.Sub(0, cfg.Records)
	}
	return view, nil
}

// Close releases the mapping.
func (m *Mapping) Close() error {
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	if !m.mapped {
		return nil
	}
	if err := munmap(data); err != nil {
		return fmt.Errorf("failed to unmap %s: %w", m.path, err)
	}
	return nil
}
