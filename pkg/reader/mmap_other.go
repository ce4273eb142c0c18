//go:build !unix

package reader

import (
	"io"
	"os"
)

// mmapFile reads the whole file on platforms without mmap support.
func mmapFile(f *os.File, size int64) ([]byte, bool, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, false, err
	}
	return data, false, nil
}

func munmap(data []byte) error {
	return nil
}
