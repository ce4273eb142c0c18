package storage

import (
	"os"

	"go.uber.org/zap"

	"github.com/ssargent/poreread/pkg/reader"
)

const headerPrefix = "hdr/"

type headerEntry struct {
	Size    int64           `json:"size"`
	ModTime int64           `json:"mod_time"` // Unix nanoseconds
	Sources []reader.Source `json:"sources"`
}

// HeaderCache remembers the resolved sources of data files so reopening an
// unchanged file skips decoding its header. An entry is used only while the
// file's size and modification time are unchanged.
type HeaderCache struct {
	store  *Store
	logger *zap.Logger
}

// NewHeaderCache returns a cache backed by store.
func NewHeaderCache(store *Store, logger *zap.Logger) *HeaderCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeaderCache{store: store, logger: logger}
}

func headerKey(format, path string) []byte {
	return []byte(headerPrefix + format + "\x00" + path)
}

// Get returns the cached sources of path if they are still current.
func (c *HeaderCache) Get(format, path string, info os.FileInfo) ([]reader.Source, bool) {
	var entry headerEntry
	ok, err := c.store.getJSON(headerKey(format, path), &entry)
	if err != nil {
		c.logger.Warn("header cache read failed", zap.String("path", path), zap.Error(err))
		return nil, false
	}
	if !ok || entry.Size != info.Size() || entry.ModTime != info.ModTime().UnixNano() {
		return nil, false
	}
	return entry.Sources, true
}

// Put stores the sources of path.
func (c *HeaderCache) Put(format, path string, info os.FileInfo, sources []reader.Source) error {
	return c.store.putJSON(headerKey(format, path), headerEntry{
		Size:    info.Size(),
		ModTime: info.ModTime().UnixNano(),
		Sources: sources,
	})
}

// Len returns the number of cached files.
func (c *HeaderCache) Len() (int, error) {
	n := 0
	err := c.store.scan([]byte(headerPrefix), func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}
