package reader

import "errors"

// Errors
var (
	ErrConfig     = &ReadError{"configuration error"}
	ErrNotFound   = &ReadError{"data file not found"}
	ErrIO         = &ReadError{"data file is not accessible"}
	ErrRange      = &ReadError{"invalid data load request"}
	ErrPattern    = &ReadError{"unable to derive a file pattern"}
	ErrTimestamp  = &ReadError{"unable to extract a timestamp from the file name"}
	ErrChannelTag = &ReadError{"unable to extract a channel tag from the file name"}
	ErrClosed     = &ReadError{"experiment is closed"}
)

// ReadError represents an error of the data access layer
type ReadError struct {
	Message string
}

func (e *ReadError) Error() string {
	return e.Message
}

// ioHint is appended to access failures.
const ioHint = "if the file is on a network share or removable media, copy it to local storage and try again"

func isReadError(err error) bool {
	var re *ReadError
	return errors.As(err, &re)
}
